package application

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatloop/realtime_service/internal/ports/in"
)

const (
	typingShardCount = 8
	typingTTL        = 5 * time.Second
	typingSweepEvery = 2 * time.Second
)

type typingKey struct {
	conversationID uint64
	userID         uint64
}

type typingShard struct {
	mu      sync.Mutex
	entries map[typingKey]time.Time // key -> expiry
}

// TypingBroadcaster 正在输入广播器
// 纯内存、带 TTL 的键值表：仅首次开始输入时广播，续期静默，
// 过期由后台清扫补发 stopped，保证对端不会卡在"正在输入"
type TypingBroadcaster struct {
	shards [typingShardCount]*typingShard
	router *RoomRouter
	ttl    time.Duration
}

var _ in.TypingUseCase = (*TypingBroadcaster)(nil)

func NewTypingBroadcaster(router *RoomRouter) *TypingBroadcaster {
	b := &TypingBroadcaster{router: router, ttl: typingTTL}
	for i := 0; i < typingShardCount; i++ {
		b.shards[i] = &typingShard{entries: make(map[typingKey]time.Time)}
	}
	return b
}

func (b *TypingBroadcaster) shardOf(key typingKey) *typingShard {
	return b.shards[(key.conversationID^key.userID)%typingShardCount]
}

// StartTyping 记录输入状态并在首次开始时广播；续期只刷新 TTL
func (b *TypingBroadcaster) StartTyping(ctx context.Context, conversationID, userID uint64, excludeSessionID string) error {
	key := typingKey{conversationID: conversationID, userID: userID}
	now := time.Now()

	shard := b.shardOf(key)
	shard.mu.Lock()
	expiry, exists := shard.entries[key]
	fresh := !exists || now.After(expiry)
	shard.entries[key] = now.Add(b.ttl)
	shard.mu.Unlock()

	if !fresh {
		return nil
	}

	payload := encodeEvent(EventTypingStarted, map[string]interface{}{
		"conversation_id": conversationID,
		"user_id":         userID,
	})
	b.router.Broadcast(conversationID, EventTypingStarted, payload, excludeSessionID)
	return nil
}

// StopTyping 显式停止；键不存在时为幂等空操作，不重复广播
func (b *TypingBroadcaster) StopTyping(ctx context.Context, conversationID, userID uint64, excludeSessionID string) error {
	key := typingKey{conversationID: conversationID, userID: userID}

	shard := b.shardOf(key)
	shard.mu.Lock()
	_, exists := shard.entries[key]
	delete(shard.entries, key)
	shard.mu.Unlock()

	if !exists {
		return nil
	}

	payload := encodeEvent(EventTypingStopped, map[string]interface{}{
		"conversation_id": conversationID,
		"user_id":         userID,
	})
	b.router.Broadcast(conversationID, EventTypingStopped, payload, excludeSessionID)
	return nil
}

// Run 后台清扫循环，ctx 取消后退出
func (b *TypingBroadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(typingSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.sweep(now)
		}
	}
}

// sweep 过期条目视同显式停止，补发 stopped 事件
func (b *TypingBroadcaster) sweep(now time.Time) {
	type expired struct {
		key typingKey
	}
	var dead []expired
	for _, shard := range b.shards {
		shard.mu.Lock()
		for key, expiry := range shard.entries {
			if now.After(expiry) {
				delete(shard.entries, key)
				dead = append(dead, expired{key: key})
			}
		}
		shard.mu.Unlock()
	}

	for _, e := range dead {
		typingSweepTotal.Inc()
		payload := encodeEvent(EventTypingStopped, map[string]interface{}{
			"conversation_id": e.key.conversationID,
			"user_id":         e.key.userID,
		})
		b.router.Broadcast(e.key.conversationID, EventTypingStopped, payload, "")
	}
	if len(dead) > 0 {
		zap.L().Debug("typing states expired", zap.Int("count", len(dead)))
	}
}
