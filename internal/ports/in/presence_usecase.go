package in

import (
	"context"

	"github.com/chatloop/realtime_service/internal/domain/entity"
)

// PresenceUseCase 在线状态用例
type PresenceUseCase interface {
	// OnSessionChange 会话注册表在用户级边沿回调：首个会话上线、最后一个会话下线
	OnSessionChange(ctx context.Context, userID uint64, nowOnline bool) error
	// GetPresence 查询在线状态，按被查看者的可见性策略过滤
	GetPresence(ctx context.Context, viewerID, userID uint64) (*entity.UserPresence, error)
}
