package in

import (
	"context"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

// ConnectionUseCase 连接生命周期用例
type ConnectionUseCase interface {
	// Connect 注册会话、加入所属会话房间并在用户级上线边沿触发在线状态变更
	Connect(ctx context.Context, conn out.Connection) (*entity.Session, error)
	// Disconnect 注销会话；用户最后一个会话退出时触发下线边沿
	Disconnect(ctx context.Context, sessionID string) error
	// Heartbeat 刷新会话与在线标记的活跃时间
	Heartbeat(ctx context.Context, sessionID string) error
	// JoinConversation 显式加入房间（如入群后），非活跃成员返回 entity.ErrForbidden
	JoinConversation(ctx context.Context, sessionID string, conversationID uint64) error
	// LeaveConversation 显式退出房间，幂等
	LeaveConversation(ctx context.Context, sessionID string, conversationID uint64) error
}
