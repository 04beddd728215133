package entity

import "time"

// ReceiptType 回执类型
type ReceiptType int8

const (
	ReceiptTypeDelivered ReceiptType = 1
	ReceiptTypeRead      ReceiptType = 2
)

func (t ReceiptType) String() string {
	switch t {
	case ReceiptTypeDelivered:
		return "delivered"
	case ReceiptTypeRead:
		return "read"
	default:
		return "unknown"
	}
}

// MessageReceipt 投递/已读回执
// 每个（消息，接收者，类型）至多一条；重复写入视为无事发生而非错误，
// 以容忍底层事件的至少一次投递
type MessageReceipt struct {
	MessageID  uint64      `json:"message_id"`
	UserID     uint64      `json:"user_id"`
	Type       ReceiptType `json:"type"`
	OccurredAt time.Time   `json:"occurred_at"`
}
