package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/chatloop/realtime_service/internal/ports/out"
)

const (
	// Kafka Topic 定义
	TopicMessageNew      = "rt.message.new"
	TopicReceipt         = "rt.receipt"
	TopicPresenceChanged = "rt.presence.changed"
)

// KafkaEventPublisher Kafka事件发布器
type KafkaEventPublisher struct {
	producer sarama.SyncProducer
}

// NewKafkaEventPublisher 创建Kafka事件发布器
func NewKafkaEventPublisher(brokers []string) (out.EventPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Timeout = 10 * time.Second
	// 确保消息顺序性 - 相同会话的消息发到同一分区
	config.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &KafkaEventPublisher{producer: producer}, nil
}

func (p *KafkaEventPublisher) PublishMessageSent(ctx context.Context, event *out.MessageSentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal message sent event failed: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: TopicMessageNew,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d", event.ConversationID)), // 按会话分区
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte("message_sent")},
			{Key: []byte("timestamp"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	_, _, err = p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish message sent event failed: %w", err)
	}

	return nil
}

func (p *KafkaEventPublisher) PublishReceipt(ctx context.Context, event *out.ReceiptEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal receipt event failed: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: TopicReceipt,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d", event.ConversationID)),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
			{Key: []byte("timestamp"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	_, _, err = p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish receipt event failed: %w", err)
	}

	return nil
}

func (p *KafkaEventPublisher) PublishPresenceChange(ctx context.Context, event *out.PresenceChangedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal presence changed event failed: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: TopicPresenceChanged,
		Key:   sarama.StringEncoder(fmt.Sprintf("%d", event.UserID)), // 按用户分区
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte("presence_changed")},
			{Key: []byte("timestamp"), Value: []byte(time.Now().UTC().Format(time.RFC3339))},
		},
	}

	_, _, err = p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish presence changed event failed: %w", err)
	}

	return nil
}

func (p *KafkaEventPublisher) Close() error {
	return p.producer.Close()
}
