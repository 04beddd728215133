package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/in"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

// MessageUseCaseImpl 消息发送用例实现
// 顺序：幂等检查 → 成员校验 → 取序号 → 落库 → 本地房间扇出 → 事件总线
type MessageUseCaseImpl struct {
	messageRepo    out.MessageRepository
	seqRepo        out.SequenceRepository
	membershipRepo out.MembershipRepository
	eventPub       out.EventPublisher
	router         *RoomRouter
	nodeID         string
}

var _ in.MessageUseCase = (*MessageUseCaseImpl)(nil)

func NewMessageUseCase(
	messageRepo out.MessageRepository,
	seqRepo out.SequenceRepository,
	membershipRepo out.MembershipRepository,
	eventPub out.EventPublisher,
	router *RoomRouter,
	nodeID string,
) *MessageUseCaseImpl {
	return &MessageUseCaseImpl{
		messageRepo:    messageRepo,
		seqRepo:        seqRepo,
		membershipRepo: membershipRepo,
		eventPub:       eventPub,
		router:         router,
		nodeID:         nodeID,
	}
}

// SendMessage 发送消息
// 同一（发送方，ClientMsgID）重复提交直接返回原消息，duplicate=true，
// 不再产生新序号、新广播
func (uc *MessageUseCaseImpl) SendMessage(ctx context.Context, req *in.SendMessageRequest) (*entity.Message, bool, error) {
	if req.ClientMsgID != "" {
		existing, err := uc.messageRepo.GetByClientMsgID(ctx, req.SenderID, req.ClientMsgID)
		if err != nil {
			return nil, false, fmt.Errorf("dedup lookup: %w", err)
		}
		if existing != nil {
			zap.L().Debug("duplicate client message id",
				zap.Uint64("senderID", req.SenderID),
				zap.String("clientMsgID", req.ClientMsgID),
				zap.Uint64("messageID", existing.ID))
			return existing, true, nil
		}
	}

	active, err := uc.membershipRepo.IsActiveMember(ctx, req.ConversationID, req.SenderID)
	if err != nil {
		return nil, false, fmt.Errorf("check membership: %w", err)
	}
	if !active {
		return nil, false, entity.ErrForbidden
	}

	seq, err := uc.seqRepo.NextSeq(ctx, req.ConversationID)
	if err != nil {
		return nil, false, fmt.Errorf("next seq: %w", err)
	}

	msg := &entity.Message{
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		ClientMsgID:    req.ClientMsgID,
		Seq:            seq,
		ContentType:    req.ContentType,
		Content:        req.Content,
		Status:         entity.MessageStatusNormal,
	}
	if err := uc.messageRepo.Create(ctx, msg); err != nil {
		// 并发重复提交：前置查重没拦住时由唯一索引兜底，回查原消息按重复成功返回
		if errors.Is(err, entity.ErrDuplicateMessage) && req.ClientMsgID != "" {
			existing, lookupErr := uc.messageRepo.GetByClientMsgID(ctx, req.SenderID, req.ClientMsgID)
			if lookupErr == nil && existing != nil {
				return existing, true, nil
			}
		}
		return nil, false, fmt.Errorf("create message: %w", err)
	}

	uc.broadcast(msg, req.SenderSession)

	if uc.eventPub != nil {
		ev := &out.MessageSentEvent{
			NodeID:         uc.nodeID,
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Seq:            msg.Seq,
			ContentType:    int8(msg.ContentType),
			Content:        msg.Content,
			CreatedAt:      msg.CreatedAt.Unix(),
		}
		go func() {
			if err := uc.eventPub.PublishMessageSent(context.Background(), ev); err != nil {
				zap.L().Warn("publish message sent failed",
					zap.Uint64("messageID", ev.MessageID), zap.Error(err))
			}
		}()
	}
	return msg, false, nil
}

// broadcast 本地房间扇出，排除发送方自身会话避免回声
func (uc *MessageUseCaseImpl) broadcast(msg *entity.Message, excludeSessionID string) {
	payload := encodeEvent(EventMessageNew, msg)
	uc.router.Broadcast(msg.ConversationID, EventMessageNew, payload, excludeSessionID)
}

// FanoutRemote 其他节点产生的消息经事件总线到达后在本地二次扇出
func (uc *MessageUseCaseImpl) FanoutRemote(ev *out.MessageSentEvent) {
	payload := encodeEvent(EventMessageNew, map[string]interface{}{
		"id":              ev.MessageID,
		"conversation_id": ev.ConversationID,
		"sender_id":       ev.SenderID,
		"seq":             ev.Seq,
		"content_type":    ev.ContentType,
		"content":         ev.Content,
		"created_at":      ev.CreatedAt,
	})
	uc.router.Broadcast(ev.ConversationID, EventMessageNew, payload, "")
}

// GetHistoryAfter 增量补拉会话历史，非成员不可见
func (uc *MessageUseCaseImpl) GetHistoryAfter(ctx context.Context, userID, conversationID, afterSeq uint64, limit int) ([]*entity.Message, error) {
	active, err := uc.membershipRepo.IsActiveMember(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !active {
		return nil, entity.ErrForbidden
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return uc.messageRepo.GetHistoryAfter(ctx, conversationID, afterSeq, limit)
}
