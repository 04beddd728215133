package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/in"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

// ReceiptTracker 投递/已读回执追踪器
// 幂等 upsert：每个（消息，接收者，类型）至多一条，重复上报静默成功且不重复广播
type ReceiptTracker struct {
	receiptRepo    out.ReceiptRepository
	messageRepo    out.MessageRepository
	membershipRepo out.MembershipRepository
	eventPub       out.EventPublisher
	router         *RoomRouter
	nodeID         string
}

var _ in.ReceiptUseCase = (*ReceiptTracker)(nil)

func NewReceiptTracker(
	receiptRepo out.ReceiptRepository,
	messageRepo out.MessageRepository,
	membershipRepo out.MembershipRepository,
	eventPub out.EventPublisher,
	router *RoomRouter,
	nodeID string,
) *ReceiptTracker {
	return &ReceiptTracker{
		receiptRepo:    receiptRepo,
		messageRepo:    messageRepo,
		membershipRepo: membershipRepo,
		eventPub:       eventPub,
		router:         router,
		nodeID:         nodeID,
	}
}

// RecordDelivered 记录投递回执；发送方自己的回执直接忽略
func (t *ReceiptTracker) RecordDelivered(ctx context.Context, messageID, recipientID uint64) error {
	msg, err := t.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if msg == nil {
		return entity.ErrMessageNotFound
	}
	if msg.SenderID == recipientID {
		return nil
	}

	inserted, err := t.saveReceipt(ctx, msg, recipientID, entity.ReceiptTypeDelivered)
	if err != nil {
		return err
	}
	if inserted {
		t.notify(ctx, msg, recipientID, entity.ReceiptTypeDelivered)
	}
	return nil
}

// RecordRead 记录已读回执并单调推进已读位置
// 已读蕴含已送达：缺失的 DELIVERED 回执在此补记
func (t *ReceiptTracker) RecordRead(ctx context.Context, messageID, recipientID uint64) error {
	msg, err := t.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if msg == nil {
		return entity.ErrMessageNotFound
	}
	if msg.SenderID == recipientID {
		return nil
	}

	delivered, err := t.saveReceipt(ctx, msg, recipientID, entity.ReceiptTypeDelivered)
	if err != nil {
		return err
	}
	if delivered {
		t.notify(ctx, msg, recipientID, entity.ReceiptTypeDelivered)
	}

	inserted, err := t.saveReceipt(ctx, msg, recipientID, entity.ReceiptTypeRead)
	if err != nil {
		return err
	}

	// 推进已读位置；早于当前位置的 readSeq 被仓储层忽略，保证只进不退
	if err := t.membershipRepo.AdvanceLastRead(ctx, msg.ConversationID, recipientID, msg.Seq); err != nil {
		zap.L().Warn("advance last read failed",
			zap.Uint64("conversationID", msg.ConversationID),
			zap.Uint64("userID", recipientID),
			zap.Error(err))
	}

	if inserted {
		t.notify(ctx, msg, recipientID, entity.ReceiptTypeRead)
	}
	return nil
}

// UnreadCount 成员在会话中的未读数，按已读位置即时统计
func (t *ReceiptTracker) UnreadCount(ctx context.Context, conversationID, userID uint64) (int, error) {
	member, err := t.membershipRepo.GetMember(ctx, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("load member: %w", err)
	}
	if member == nil || !member.IsActive {
		return 0, entity.ErrForbidden
	}
	return t.messageRepo.CountUnread(ctx, conversationID, userID, member.LastReadSeq)
}

func (t *ReceiptTracker) saveReceipt(ctx context.Context, msg *entity.Message, recipientID uint64, typ entity.ReceiptType) (bool, error) {
	inserted, err := t.receiptRepo.Save(ctx, &entity.MessageReceipt{
		MessageID:  msg.ID,
		UserID:     recipientID,
		Type:       typ,
		OccurredAt: time.Now(),
	})
	if err != nil {
		return false, fmt.Errorf("save %s receipt: %w", typ, err)
	}
	return inserted, nil
}

// FanoutRemote 其他节点的回执经事件总线到达后在本地二次扇出
func (t *ReceiptTracker) FanoutRemote(ev *out.ReceiptEvent) {
	eventType := EventMessageDelivered
	if ev.Type == entity.ReceiptTypeRead.String() {
		eventType = EventMessageRead
	}
	payload := encodeEvent(eventType, map[string]interface{}{
		"message_id":      ev.MessageID,
		"conversation_id": ev.ConversationID,
		"user_id":         ev.UserID,
	})
	t.router.Broadcast(ev.ConversationID, eventType, payload, "")
}

// notify 向会话房间广播回执事件并发布到事件总线
func (t *ReceiptTracker) notify(ctx context.Context, msg *entity.Message, recipientID uint64, typ entity.ReceiptType) {
	eventType := EventMessageDelivered
	if typ == entity.ReceiptTypeRead {
		eventType = EventMessageRead
	}

	now := time.Now()
	payload := encodeEvent(eventType, map[string]interface{}{
		"message_id":      msg.ID,
		"conversation_id": msg.ConversationID,
		"user_id":         recipientID,
	})
	t.router.Broadcast(msg.ConversationID, eventType, payload, "")

	if t.eventPub != nil {
		ev := &out.ReceiptEvent{
			NodeID:         t.nodeID,
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			UserID:         recipientID,
			Type:           typ.String(),
			OccurredAt:     now.Unix(),
		}
		go func() {
			if err := t.eventPub.PublishReceipt(context.Background(), ev); err != nil {
				zap.L().Warn("publish receipt failed",
					zap.Uint64("messageID", ev.MessageID), zap.Error(err))
			}
		}()
	}
}
