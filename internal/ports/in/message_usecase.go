package in

import (
	"context"

	"github.com/chatloop/realtime_service/internal/domain/entity"
)

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	ConversationID uint64
	SenderID       uint64
	SenderSession  string // 广播时排除的发送方会话，避免回声
	ClientMsgID    string // 幂等令牌（tempId）
	ContentType    entity.MessageContentType
	Content        string
}

// MessageUseCase 消息发送与历史同步用例
type MessageUseCase interface {
	// SendMessage 幂等发送：同一（发送方，ClientMsgID）重复提交返回原消息，
	// duplicate 为 true 且不产生第二条消息
	SendMessage(ctx context.Context, req *SendMessageRequest) (msg *entity.Message, duplicate bool, err error)
	// GetHistoryAfter 重连后的增量补拉
	GetHistoryAfter(ctx context.Context, userID, conversationID, afterSeq uint64, limit int) ([]*entity.Message, error)
}
