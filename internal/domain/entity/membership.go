package entity

import "time"

// ConversationMember 会话成员关系（外部实体，本引擎只读+推进已读位置）
type ConversationMember struct {
	ConversationID uint64    `json:"conversation_id"`
	UserID         uint64    `json:"user_id"`
	LastReadSeq    uint64    `json:"last_read_seq"` // 只允许单调前移
	IsActive       bool      `json:"is_active"`
	IsMuted        bool      `json:"is_muted"`
	JoinedAt       time.Time `json:"joined_at"`
}
