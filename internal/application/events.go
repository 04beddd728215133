package application

import (
	"encoding/json"
	"time"
)

// 对客户端下发的事件类型
const (
	EventMessageNew       = "message.new"
	EventMessageAck       = "message.ack"
	EventMessageDelivered = "message.delivered"
	EventMessageRead      = "message.read"
	EventTypingStarted    = "typing.started"
	EventTypingStopped    = "typing.stopped"
	EventPresenceChanged  = "presence.changed"
)

// Event 下行事件信封
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	Ts   int64           `json:"ts"`
}

// encodeEvent 组装下行事件载荷
func encodeEvent(eventType string, data interface{}) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	payload, err := json.Marshal(Event{
		Type: eventType,
		Data: raw,
		Ts:   time.Now().UnixMilli(),
	})
	if err != nil {
		return nil
	}
	return payload
}
