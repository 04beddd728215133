package entity

import "time"

// TypingState 正在输入状态，按（会话，用户）键控
// 纯内存态，不落库；到期或显式停止后删除
type TypingState struct {
	ConversationID uint64
	UserID         uint64
	ExpiresAt      time.Time
}

// Expired 是否已过期
func (t *TypingState) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
