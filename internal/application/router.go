package application

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

const roomShardCount = 16

// roomShard 按会话ID分片的房间集合
type roomShard struct {
	mu    sync.RWMutex
	rooms map[uint64]map[string]out.Connection // conversationID -> sessionID -> conn
}

// RoomRouter 房间路由器
// 维护会话ID到当前已订阅成员会话集合的映射，并把事件精确扇出到这些会话
// 同一房间内广播顺序与服务端观察到的事件顺序一致（每房间 FIFO）
type RoomRouter struct {
	shards         [roomShardCount]*roomShard
	membershipRepo out.MembershipRepository
}

func NewRoomRouter(membershipRepo out.MembershipRepository) *RoomRouter {
	r := &RoomRouter{membershipRepo: membershipRepo}
	for i := 0; i < roomShardCount; i++ {
		r.shards[i] = &roomShard{rooms: make(map[uint64]map[string]out.Connection)}
	}
	return r
}

func (r *RoomRouter) shardOf(conversationID uint64) *roomShard {
	return r.shards[conversationID%roomShardCount]
}

// Join 加入房间；仅允许活跃成员加入，否则返回 entity.ErrForbidden
func (r *RoomRouter) Join(ctx context.Context, conn out.Connection, conversationID uint64) error {
	active, err := r.membershipRepo.IsActiveMember(ctx, conversationID, conn.UserID())
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if !active {
		return entity.ErrForbidden
	}

	shard := r.shardOf(conversationID)
	shard.mu.Lock()
	room, ok := shard.rooms[conversationID]
	if !ok {
		room = make(map[string]out.Connection)
		shard.rooms[conversationID] = room
	}
	room[conn.SessionID()] = conn
	shard.mu.Unlock()
	return nil
}

// JoinAll 连接建立时把会话加入其全部活跃会话的房间
func (r *RoomRouter) JoinAll(ctx context.Context, conn out.Connection) error {
	convIDs, err := r.membershipRepo.ListConversationIDs(ctx, conn.UserID())
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	for _, convID := range convIDs {
		shard := r.shardOf(convID)
		shard.mu.Lock()
		room, ok := shard.rooms[convID]
		if !ok {
			room = make(map[string]out.Connection)
			shard.rooms[convID] = room
		}
		room[conn.SessionID()] = conn
		shard.mu.Unlock()
	}
	return nil
}

// Leave 退出单个房间，幂等
func (r *RoomRouter) Leave(sessionID string, conversationID uint64) {
	shard := r.shardOf(conversationID)
	shard.mu.Lock()
	if room, ok := shard.rooms[conversationID]; ok {
		delete(room, sessionID)
		if len(room) == 0 {
			delete(shard.rooms, conversationID)
		}
	}
	shard.mu.Unlock()
}

// LeaveAll 会话断开时从所有房间移除
func (r *RoomRouter) LeaveAll(sessionID string) {
	for _, shard := range r.shards {
		shard.mu.Lock()
		for convID, room := range shard.rooms {
			if _, ok := room[sessionID]; ok {
				delete(room, sessionID)
				if len(room) == 0 {
					delete(shard.rooms, convID)
				}
			}
		}
		shard.mu.Unlock()
	}
}

// Broadcast 向房间内除 excludeSessionID 外的全部会话投递事件
// 对每个接收方非阻塞：缓冲溢出断开该接收方，其余接收方不受影响
func (r *RoomRouter) Broadcast(conversationID uint64, eventType string, payload []byte, excludeSessionID string) {
	if payload == nil {
		return
	}

	shard := r.shardOf(conversationID)
	shard.mu.RLock()
	room := shard.rooms[conversationID]
	conns := make([]out.Connection, 0, len(room))
	for sid, conn := range room {
		if sid == excludeSessionID {
			continue
		}
		conns = append(conns, conn)
	}
	shard.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(payload); err != nil {
			if err == entity.ErrSendBufferFull {
				overflowKickTotal.Inc()
				zap.L().Warn("send buffer overflow, disconnecting session",
					zap.Uint64("conversationID", conversationID),
					zap.String("sessionID", conn.SessionID()))
				conn.Close()
				continue
			}
			zap.L().Debug("transient send failure dropped",
				zap.Uint64("conversationID", conversationID),
				zap.String("sessionID", conn.SessionID()),
				zap.Error(err))
			continue
		}
		broadcastTotal.WithLabelValues(eventType).Inc()
	}
}

// RoomSize 房间当前会话数
func (r *RoomRouter) RoomSize(conversationID uint64) int {
	shard := r.shardOf(conversationID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return len(shard.rooms[conversationID])
}
