package entity

import "time"

// MessageContentType 消息内容类型
type MessageContentType int8

const (
	ContentTypeText  MessageContentType = 1
	ContentTypeImage MessageContentType = 2
	ContentTypeFile  MessageContentType = 3
)

// MessageStatus 消息状态
type MessageStatus int8

const (
	MessageStatusNormal  MessageStatus = 1
	MessageStatusDeleted MessageStatus = 2
)

// Message 消息实体
// Seq 在会话内单调递增，是投递顺序的排序键
// ClientMsgID 为客户端生成的幂等令牌（tempId），同一发送方重复提交返回原消息
type Message struct {
	ID             uint64             `json:"id"`
	ConversationID uint64             `json:"conversation_id"`
	SenderID       uint64             `json:"sender_id"`
	ClientMsgID    string             `json:"client_msg_id"`
	Seq            uint64             `json:"seq"`
	ContentType    MessageContentType `json:"content_type"`
	Content        string             `json:"content"`
	Status         MessageStatus      `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Deleted 是否已被软删除
func (m *Message) Deleted() bool {
	return m.Status == MessageStatusDeleted
}
