package out

import (
	"context"
	"time"

	"github.com/chatloop/realtime_service/internal/domain/entity"
)

// PresenceRepository 在线状态仓储
type PresenceRepository interface {
	SetOnline(ctx context.Context, userID uint64) error
	SetOffline(ctx context.Context, userID uint64, lastSeen time.Time) error
	GetPresence(ctx context.Context, userID uint64) (*entity.UserPresence, error)
	GetPresences(ctx context.Context, userIDs []uint64) (map[uint64]*entity.UserPresence, error)
	// UpdateHeartbeat 刷新在线标记的 TTL
	UpdateHeartbeat(ctx context.Context, userID uint64) error
}

// PolicyRepository 在线状态可见性策略（归属用户资料，外部协作方）
type PolicyRepository interface {
	// VisibilityOf 未配置时返回 VisibilityEveryone
	VisibilityOf(ctx context.Context, userID uint64) (entity.VisibilityPolicy, error)
}
