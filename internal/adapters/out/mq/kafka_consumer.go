package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/chatloop/realtime_service/internal/application"
	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

// KafkaEventConsumer 跨节点事件消费者
// 消费其他节点发布的消息/回执/状态事件，在本地房间二次扇出；
// 事件带 node_id，自己发布的跳过避免重复投递
type KafkaEventConsumer struct {
	consumerGroup sarama.ConsumerGroup
	topics        []string
	nodeID        string
	messageUC     *application.MessageUseCaseImpl
	receiptUC     *application.ReceiptTracker
	presenceUC    *application.PresenceTracker
	ready         chan bool
	cancel        context.CancelFunc
}

// NewKafkaEventConsumer 创建跨节点事件消费者
// groupID 必须含节点标识：每个节点一个独立消费组，全量消费所有事件
func NewKafkaEventConsumer(
	brokers []string,
	groupID string,
	nodeID string,
	messageUC *application.MessageUseCaseImpl,
	receiptUC *application.ReceiptTracker,
	presenceUC *application.PresenceTracker,
) (*KafkaEventConsumer, error) {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &KafkaEventConsumer{
		consumerGroup: consumerGroup,
		topics:        []string{TopicMessageNew, TopicReceipt, TopicPresenceChanged},
		nodeID:        nodeID,
		messageUC:     messageUC,
		receiptUC:     receiptUC,
		presenceUC:    presenceUC,
		ready:         make(chan bool),
	}, nil
}

// Start 启动消费
func (c *KafkaEventConsumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	handler := &eventGroupHandler{consumer: c, ready: c.ready}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if err := c.consumerGroup.Consume(ctx, c.topics, handler); err != nil {
					zap.L().Warn("consumer group error", zap.Error(err))
				}
				// 重置ready channel
				c.ready = make(chan bool)
				handler.ready = c.ready
			}
		}
	}()

	// 等待消费者准备就绪
	<-c.ready
	zap.L().Info("kafka consumer ready", zap.String("nodeID", c.nodeID))

	return nil
}

// Stop 停止消费
func (c *KafkaEventConsumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return c.consumerGroup.Close()
}

// eventGroupHandler 消费组处理器
type eventGroupHandler struct {
	consumer *KafkaEventConsumer
	ready    chan bool
}

func (h *eventGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

func (h *eventGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *eventGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handleMessage(session.Context(), message)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *eventGroupHandler) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) {
	switch message.Topic {
	case TopicMessageNew:
		h.handleMessageSent(message.Value)
	case TopicReceipt:
		h.handleReceipt(message.Value)
	case TopicPresenceChanged:
		h.handlePresenceChanged(ctx, message.Value)
	default:
		zap.L().Warn("unknown topic", zap.String("topic", message.Topic))
	}
}

func (h *eventGroupHandler) handleMessageSent(data []byte) {
	var event out.MessageSentEvent
	if err := json.Unmarshal(data, &event); err != nil {
		zap.L().Warn("unmarshal message sent event failed", zap.Error(err))
		return
	}
	if event.NodeID == h.consumer.nodeID {
		return
	}
	h.consumer.messageUC.FanoutRemote(&event)
}

func (h *eventGroupHandler) handleReceipt(data []byte) {
	var event out.ReceiptEvent
	if err := json.Unmarshal(data, &event); err != nil {
		zap.L().Warn("unmarshal receipt event failed", zap.Error(err))
		return
	}
	if event.NodeID == h.consumer.nodeID {
		return
	}
	h.consumer.receiptUC.FanoutRemote(&event)
}

func (h *eventGroupHandler) handlePresenceChanged(ctx context.Context, data []byte) {
	var event out.PresenceChangedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		zap.L().Warn("unmarshal presence changed event failed", zap.Error(err))
		return
	}
	if event.NodeID == h.consumer.nodeID {
		return
	}

	ev := &entity.PresenceEvent{
		UserID:    event.UserID,
		NewStatus: event.Status,
	}
	if event.LastSeenAt > 0 {
		ev.LastSeenAt = time.Unix(event.LastSeenAt, 0)
	}
	// 本地只扇出，不再回写事件总线
	h.consumer.presenceUC.Fanout(ctx, ev, false)
}
