package out

import (
	"context"

	"github.com/chatloop/realtime_service/internal/domain/entity"
)

// MessageRepository 消息持久化仓储
type MessageRepository interface {
	Create(ctx context.Context, msg *entity.Message) error
	GetByID(ctx context.Context, id uint64) (*entity.Message, error)
	// GetByClientMsgID 按（发送方，幂等令牌）查找，未找到返回 (nil, nil)
	GetByClientMsgID(ctx context.Context, senderID uint64, clientMsgID string) (*entity.Message, error)
	GetHistoryAfter(ctx context.Context, conversationID, afterSeq uint64, limit int) ([]*entity.Message, error)
	// CountUnread 统计会话内 seq 大于 afterSeq、非本人发送且未软删除的消息数
	CountUnread(ctx context.Context, conversationID, userID, afterSeq uint64) (int, error)
}

// SequenceRepository 会话内序号分配
type SequenceRepository interface {
	NextSeq(ctx context.Context, conversationID uint64) (uint64, error)
}
