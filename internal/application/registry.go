package application

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

const registryShardCount = 32

// sessionSlot 注册表内部条目
type sessionSlot struct {
	sess *entity.Session
	conn out.Connection
}

// userShard 按用户分片：同一用户的会话集合变更串行化，跨用户互不阻塞
type userShard struct {
	mu    sync.RWMutex
	users map[uint64]map[string]*sessionSlot // userID -> sessionID -> slot
}

// indexShard sessionID -> userID 反查索引
type indexShard struct {
	mu    sync.RWMutex
	index map[string]uint64
}

// SessionRegistry 会话注册表
// 本子系统中唯一的共享可变核心结构，是"用户当前可达"的唯一事实来源
type SessionRegistry struct {
	userShards  [registryShardCount]*userShard
	indexShards [registryShardCount]*indexShard

	totalConns int64
	totalMsgs  int64
}

func NewSessionRegistry() *SessionRegistry {
	r := &SessionRegistry{}
	for i := 0; i < registryShardCount; i++ {
		r.userShards[i] = &userShard{users: make(map[uint64]map[string]*sessionSlot)}
		r.indexShards[i] = &indexShard{index: make(map[string]uint64)}
	}
	return r
}

func (r *SessionRegistry) userShardOf(userID uint64) *userShard {
	return r.userShards[userID%registryShardCount]
}

func (r *SessionRegistry) indexShardOf(sessionID string) *indexShard {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return r.indexShards[h.Sum32()%registryShardCount]
}

// Register 注册会话，返回该用户是否由不可达转为可达（用户级上线边沿）
// 同一（用户，设备）已有连接时顶掉旧连接；顶替不构成边沿
func (r *SessionRegistry) Register(sess *entity.Session, conn out.Connection) bool {
	shard := r.userShardOf(sess.UserID)
	shard.mu.Lock()

	devices, ok := shard.users[sess.UserID]
	if !ok {
		devices = make(map[string]*sessionSlot)
		shard.users[sess.UserID] = devices
	}
	cameOnline := !ok

	// 设备顶替：关闭同设备的旧连接
	var kicked *sessionSlot
	for sid, slot := range devices {
		if slot.sess.DeviceID == sess.DeviceID {
			kicked = slot
			delete(devices, sid)
			break
		}
	}
	devices[sess.ID] = &sessionSlot{sess: sess, conn: conn}
	shard.mu.Unlock()

	if kicked != nil {
		r.dropIndex(kicked.sess.ID)
		kicked.conn.Close()
		atomic.AddInt64(&r.totalConns, -1)
		zap.L().Info("session replaced by same device",
			zap.Uint64("userID", sess.UserID),
			zap.String("deviceID", sess.DeviceID),
			zap.String("oldSessionID", kicked.sess.ID))
	}

	idx := r.indexShardOf(sess.ID)
	idx.mu.Lock()
	idx.index[sess.ID] = sess.UserID
	idx.mu.Unlock()

	atomic.AddInt64(&r.totalConns, 1)
	zap.L().Info("session registered",
		zap.Uint64("userID", sess.UserID),
		zap.String("sessionID", sess.ID),
		zap.String("deviceID", sess.DeviceID),
		zap.Bool("cameOnline", cameOnline))
	return cameOnline
}

// Unregister 注销会话，返回该用户是否由可达转为不可达（用户级下线边沿）
// 未注册的会话返回 entity.ErrSessionNotFound，调用方可按幂等处理
func (r *SessionRegistry) Unregister(sessionID string) (*entity.Session, bool, error) {
	userID, ok := r.dropIndex(sessionID)
	if !ok {
		return nil, false, entity.ErrSessionNotFound
	}

	shard := r.userShardOf(userID)
	shard.mu.Lock()
	devices, ok := shard.users[userID]
	if !ok {
		shard.mu.Unlock()
		return nil, false, entity.ErrSessionNotFound
	}
	slot, ok := devices[sessionID]
	if !ok {
		shard.mu.Unlock()
		return nil, false, entity.ErrSessionNotFound
	}
	delete(devices, sessionID)
	wentOffline := len(devices) == 0
	if wentOffline {
		delete(shard.users, userID)
	}
	shard.mu.Unlock()

	slot.conn.Close()
	atomic.AddInt64(&r.totalConns, -1)
	zap.L().Info("session unregistered",
		zap.Uint64("userID", userID),
		zap.String("sessionID", sessionID),
		zap.Bool("wentOffline", wentOffline))
	return slot.sess, wentOffline, nil
}

func (r *SessionRegistry) dropIndex(sessionID string) (uint64, bool) {
	idx := r.indexShardOf(sessionID)
	idx.mu.Lock()
	userID, ok := idx.index[sessionID]
	if ok {
		delete(idx.index, sessionID)
	}
	idx.mu.Unlock()
	return userID, ok
}

// Get 按会话ID查找
func (r *SessionRegistry) Get(sessionID string) (*entity.Session, out.Connection, bool) {
	idx := r.indexShardOf(sessionID)
	idx.mu.RLock()
	userID, ok := idx.index[sessionID]
	idx.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}

	shard := r.userShardOf(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	if devices, ok := shard.users[userID]; ok {
		if slot, ok := devices[sessionID]; ok {
			return slot.sess, slot.conn, true
		}
	}
	return nil, nil, false
}

// SessionsFor 用户当前的会话ID集合
func (r *SessionRegistry) SessionsFor(userID uint64) []string {
	shard := r.userShardOf(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	devices, ok := shard.users[userID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(devices))
	for sid := range devices {
		ids = append(ids, sid)
	}
	return ids
}

// IsOnline 至少存在一个活跃会话即在线
func (r *SessionRegistry) IsOnline(userID uint64) bool {
	shard := r.userShardOf(userID)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	devices, ok := shard.users[userID]
	return ok && len(devices) > 0
}

// Touch 心跳刷新最近活跃时间
func (r *SessionRegistry) Touch(sessionID string, at time.Time) {
	if sess, _, ok := r.Get(sessionID); ok {
		sess.LastActiveAt = at
	}
}

// SendToUser 发往用户全部设备；单个会话缓冲溢出时断开该会话，不影响其他设备
func (r *SessionRegistry) SendToUser(userID uint64, message []byte) {
	shard := r.userShardOf(userID)
	shard.mu.RLock()
	devices := shard.users[userID]
	conns := make([]out.Connection, 0, len(devices))
	for _, slot := range devices {
		conns = append(conns, slot.conn)
	}
	shard.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.Send(message); err != nil {
			r.handleSendError(conn, err)
			continue
		}
		atomic.AddInt64(&r.totalMsgs, 1)
	}
}

// handleSendError 溢出断开该接收方；其余发送失败静默丢弃，接收方靠历史同步补齐
func (r *SessionRegistry) handleSendError(conn out.Connection, err error) {
	if err == entity.ErrSendBufferFull {
		overflowKickTotal.Inc()
		zap.L().Warn("send buffer overflow, disconnecting session",
			zap.Uint64("userID", conn.UserID()),
			zap.String("sessionID", conn.SessionID()))
		conn.Close()
		return
	}
	zap.L().Debug("transient send failure dropped",
		zap.String("sessionID", conn.SessionID()),
		zap.Error(err))
}

// Stats 运行统计
func (r *SessionRegistry) Stats() map[string]int64 {
	var users int64
	for _, shard := range r.userShards {
		shard.mu.RLock()
		users += int64(len(shard.users))
		shard.mu.RUnlock()
	}
	return map[string]int64{
		"total_connections": atomic.LoadInt64(&r.totalConns),
		"total_messages":    atomic.LoadInt64(&r.totalMsgs),
		"online_users":      users,
	}
}
