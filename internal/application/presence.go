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

// PresenceTracker 在线状态追踪器
// 只响应会话注册表的用户级边沿：首个会话上线、最后一个会话下线，
// 按被观察者的可见性策略过滤后向共同会话房间与联系人扇出
type PresenceTracker struct {
	presenceRepo   out.PresenceRepository
	policyRepo     out.PolicyRepository
	membershipRepo out.MembershipRepository
	contactRepo    out.ContactRepository
	eventPub       out.EventPublisher
	registry       *SessionRegistry
	router         *RoomRouter
	nodeID         string
}

var _ in.PresenceUseCase = (*PresenceTracker)(nil)

func NewPresenceTracker(
	presenceRepo out.PresenceRepository,
	policyRepo out.PolicyRepository,
	membershipRepo out.MembershipRepository,
	contactRepo out.ContactRepository,
	eventPub out.EventPublisher,
	registry *SessionRegistry,
	router *RoomRouter,
	nodeID string,
) *PresenceTracker {
	return &PresenceTracker{
		presenceRepo:   presenceRepo,
		policyRepo:     policyRepo,
		membershipRepo: membershipRepo,
		contactRepo:    contactRepo,
		eventPub:       eventPub,
		registry:       registry,
		router:         router,
		nodeID:         nodeID,
	}
}

// OnSessionChange 处理用户级上线/下线边沿
func (t *PresenceTracker) OnSessionChange(ctx context.Context, userID uint64, nowOnline bool) error {
	now := time.Now()
	ev := &entity.PresenceEvent{
		UserID:    userID,
		Timestamp: now,
	}

	if nowOnline {
		ev.OldStatus, ev.NewStatus = entity.PresenceStatusOffline, entity.PresenceStatusOnline
		if err := t.presenceRepo.SetOnline(ctx, userID); err != nil {
			return fmt.Errorf("set online: %w", err)
		}
	} else {
		ev.OldStatus, ev.NewStatus = entity.PresenceStatusOnline, entity.PresenceStatusOffline
		ev.LastSeenAt = now
		if err := t.presenceRepo.SetOffline(ctx, userID, now); err != nil {
			return fmt.Errorf("set offline: %w", err)
		}
	}

	t.Fanout(ctx, ev, true)
	return nil
}

// Fanout 按可见性策略把状态变更扇出到本地会话
// publishRemote 为 true 时同时发布到事件总线，供其他节点二次扇出
// NOBODY 策略的变更照常落库，但从不对外广播
func (t *PresenceTracker) Fanout(ctx context.Context, ev *entity.PresenceEvent, publishRemote bool) {
	policy, err := t.policyRepo.VisibilityOf(ctx, ev.UserID)
	if err != nil {
		zap.L().Warn("visibility lookup failed, defaulting to everyone",
			zap.Uint64("userID", ev.UserID), zap.Error(err))
		policy = entity.VisibilityEveryone
	}
	if policy == entity.VisibilityNobody {
		return
	}

	data := map[string]interface{}{
		"user_id": ev.UserID,
		"status":  ev.NewStatus,
	}
	if ev.NewStatus == entity.PresenceStatusOffline {
		data["last_seen_at"] = ev.LastSeenAt.Unix()
	}
	payload := encodeEvent(EventPresenceChanged, data)

	// 联系人直投（两种策略都送达）
	contactIDs, err := t.contactRepo.ListContactIDs(ctx, ev.UserID)
	if err != nil {
		zap.L().Warn("list contacts failed", zap.Uint64("userID", ev.UserID), zap.Error(err))
	}
	for _, contactID := range contactIDs {
		t.registry.SendToUser(contactID, payload)
	}

	// EVERYONE 策略额外广播到共同会话房间
	if policy == entity.VisibilityEveryone {
		convIDs, err := t.membershipRepo.ListConversationIDs(ctx, ev.UserID)
		if err != nil {
			zap.L().Warn("list conversations failed", zap.Uint64("userID", ev.UserID), zap.Error(err))
		}
		for _, convID := range convIDs {
			t.router.Broadcast(convID, EventPresenceChanged, payload, "")
		}
	}

	if publishRemote && t.eventPub != nil {
		remote := &out.PresenceChangedEvent{
			NodeID:    t.nodeID,
			UserID:    ev.UserID,
			Status:    ev.NewStatus,
			Timestamp: ev.Timestamp.Unix(),
		}
		if ev.NewStatus == entity.PresenceStatusOffline {
			remote.LastSeenAt = ev.LastSeenAt.Unix()
		}
		go func() {
			if err := t.eventPub.PublishPresenceChange(context.Background(), remote); err != nil {
				zap.L().Warn("publish presence change failed", zap.Error(err))
			}
		}()
	}
}

// GetPresence 查询在线状态，按被查看者的可见性策略裁剪
func (t *PresenceTracker) GetPresence(ctx context.Context, viewerID, userID uint64) (*entity.UserPresence, error) {
	policy, err := t.policyRepo.VisibilityOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("visibility lookup: %w", err)
	}

	visible := false
	switch policy {
	case entity.VisibilityEveryone:
		visible = true
	case entity.VisibilityContacts:
		contactIDs, err := t.contactRepo.ListContactIDs(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list contacts: %w", err)
		}
		for _, id := range contactIDs {
			if id == viewerID {
				visible = true
				break
			}
		}
	case entity.VisibilityNobody:
		visible = false
	}
	if viewerID == userID {
		visible = true
	}

	if !visible {
		// 被屏蔽的观察者拿到的是脱敏视图，不含最后活跃时间
		return &entity.UserPresence{
			UserID: userID,
			Online: false,
			Status: entity.PresenceStatusOffline,
		}, nil
	}
	return t.presenceRepo.GetPresence(ctx, userID)
}
