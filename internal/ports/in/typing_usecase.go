package in

import "context"

// TypingUseCase 输入指示用例
type TypingUseCase interface {
	// StartTyping 首次触发广播 typing.started，重复触发只续期不重播
	StartTyping(ctx context.Context, conversationID, userID uint64, excludeSessionID string) error
	// StopTyping 幂等：状态不存在时为空操作
	StopTyping(ctx context.Context, conversationID, userID uint64, excludeSessionID string) error
}
