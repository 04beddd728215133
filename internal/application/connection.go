package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/in"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

// ConnectionUseCaseImpl 连接生命周期编排
// 注册表产生用户级边沿，这里把边沿翻译成在线状态变更与房间订阅
type ConnectionUseCaseImpl struct {
	registry     *SessionRegistry
	router       *RoomRouter
	presence     in.PresenceUseCase
	presenceRepo out.PresenceRepository
}

var _ in.ConnectionUseCase = (*ConnectionUseCaseImpl)(nil)

func NewConnectionUseCase(
	registry *SessionRegistry,
	router *RoomRouter,
	presence in.PresenceUseCase,
	presenceRepo out.PresenceRepository,
) *ConnectionUseCaseImpl {
	return &ConnectionUseCaseImpl{
		registry:     registry,
		router:       router,
		presence:     presence,
		presenceRepo: presenceRepo,
	}
}

// Connect 注册会话并加入全部所属房间
// 仅当用户由不可达转为可达时触发一次在线边沿
func (uc *ConnectionUseCaseImpl) Connect(ctx context.Context, conn out.Connection) (*entity.Session, error) {
	now := time.Now()
	sess := &entity.Session{
		ID:           conn.SessionID(),
		UserID:       conn.UserID(),
		DeviceID:     conn.DeviceID(),
		ConnectedAt:  now,
		LastActiveAt: now,
	}

	cameOnline := uc.registry.Register(sess, conn)

	if err := uc.router.JoinAll(ctx, conn); err != nil {
		zap.L().Warn("join rooms failed",
			zap.Uint64("userID", sess.UserID),
			zap.String("sessionID", sess.ID),
			zap.Error(err))
	}

	if cameOnline {
		if err := uc.presence.OnSessionChange(ctx, sess.UserID, true); err != nil {
			zap.L().Warn("presence online transition failed",
				zap.Uint64("userID", sess.UserID), zap.Error(err))
		}
	}
	return sess, nil
}

// Disconnect 注销会话并清理房间订阅
// 对未注册的会话幂等：重复断开不报错、不产生第二次下线边沿
func (uc *ConnectionUseCaseImpl) Disconnect(ctx context.Context, sessionID string) error {
	sess, wentOffline, err := uc.registry.Unregister(sessionID)
	if err == entity.ErrSessionNotFound {
		uc.router.LeaveAll(sessionID)
		return nil
	}
	if err != nil {
		return err
	}

	uc.router.LeaveAll(sessionID)

	if wentOffline {
		if err := uc.presence.OnSessionChange(ctx, sess.UserID, false); err != nil {
			zap.L().Warn("presence offline transition failed",
				zap.Uint64("userID", sess.UserID), zap.Error(err))
		}
	}
	return nil
}

// Heartbeat 刷新会话活跃时间并给在线标记续期
func (uc *ConnectionUseCaseImpl) Heartbeat(ctx context.Context, sessionID string) error {
	sess, _, ok := uc.registry.Get(sessionID)
	if !ok {
		return entity.ErrSessionNotFound
	}
	uc.registry.Touch(sessionID, time.Now())
	return uc.presenceRepo.UpdateHeartbeat(ctx, sess.UserID)
}

// JoinConversation 显式加入单个房间，成员校验由路由器完成
func (uc *ConnectionUseCaseImpl) JoinConversation(ctx context.Context, sessionID string, conversationID uint64) error {
	_, conn, ok := uc.registry.Get(sessionID)
	if !ok {
		return entity.ErrSessionNotFound
	}
	return uc.router.Join(ctx, conn, conversationID)
}

// LeaveConversation 显式退出单个房间，幂等
func (uc *ConnectionUseCaseImpl) LeaveConversation(ctx context.Context, sessionID string, conversationID uint64) error {
	uc.router.Leave(sessionID, conversationID)
	return nil
}
