package out

import (
	"context"

	"github.com/chatloop/realtime_service/internal/domain/entity"
)

// MessageSentEvent 新消息事件（跨节点扇出用）
type MessageSentEvent struct {
	NodeID         string `json:"node_id"`
	MessageID      uint64 `json:"message_id"`
	ConversationID uint64 `json:"conversation_id"`
	SenderID       uint64 `json:"sender_id"`
	Seq            uint64 `json:"seq"`
	ContentType    int8   `json:"content_type"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
}

// ReceiptEvent 回执事件
type ReceiptEvent struct {
	NodeID         string `json:"node_id"`
	MessageID      uint64 `json:"message_id"`
	ConversationID uint64 `json:"conversation_id"`
	UserID         uint64 `json:"user_id"`
	Type           string `json:"type"` // delivered | read
	OccurredAt     int64  `json:"occurred_at"`
}

// PresenceChangedEvent 在线状态变更事件
type PresenceChangedEvent struct {
	NodeID     string                `json:"node_id"`
	UserID     uint64                `json:"user_id"`
	Status     entity.PresenceStatus `json:"status"`
	LastSeenAt int64                 `json:"last_seen_at,omitempty"`
	Timestamp  int64                 `json:"timestamp"`
}

// EventPublisher 领域事件发布（Kafka），供其他节点消费后在本地房间二次扇出
// 发布失败只记日志不回传：实时广播相对持久化是尽力而为
type EventPublisher interface {
	PublishMessageSent(ctx context.Context, event *MessageSentEvent) error
	PublishReceipt(ctx context.Context, event *ReceiptEvent) error
	PublishPresenceChange(ctx context.Context, event *PresenceChangedEvent) error
	Close() error
}
