package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

const (
	// 在线状态Key前缀
	presenceKeyPrefix = "rt:presence:"
	// 在线状态过期时间（心跳间隔的3倍）
	presenceTTL = 3 * time.Minute
	// 最后活跃时间Key前缀
	lastSeenKeyPrefix = "rt:lastseen:"
	// 最后活跃时间保留期
	lastSeenTTL = 7 * 24 * time.Hour
)

// PresenceRepositoryRedis Redis在线状态仓储实现
// 在线标记带TTL：节点崩溃不执行下线流程时，标记也会在心跳停止后自然过期
type PresenceRepositoryRedis struct {
	client *redis.Client
}

func NewPresenceRepositoryRedis(client *redis.Client) out.PresenceRepository {
	return &PresenceRepositoryRedis{client: client}
}

func (r *PresenceRepositoryRedis) getKey(userID uint64) string {
	return fmt.Sprintf("%s%d", presenceKeyPrefix, userID)
}

func (r *PresenceRepositoryRedis) getLastSeenKey(userID uint64) string {
	return fmt.Sprintf("%s%d", lastSeenKeyPrefix, userID)
}

func (r *PresenceRepositoryRedis) SetOnline(ctx context.Context, userID uint64) error {
	now := time.Now()
	presence := &entity.UserPresence{
		UserID:    userID,
		Online:    true,
		Status:    entity.PresenceStatusOnline,
		UpdatedAt: now,
	}

	data, err := json.Marshal(presence)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, r.getKey(userID), string(data), presenceTTL).Err()
}

func (r *PresenceRepositoryRedis) SetOffline(ctx context.Context, userID uint64, lastSeen time.Time) error {
	// 先落最后活跃时间，再删在线标记
	if err := r.client.Set(ctx, r.getLastSeenKey(userID), lastSeen.Unix(), lastSeenTTL).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, r.getKey(userID)).Err()
}

func (r *PresenceRepositoryRedis) GetPresence(ctx context.Context, userID uint64) (*entity.UserPresence, error) {
	data, err := r.client.Get(ctx, r.getKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			// 用户离线，尝试获取最后活跃时间
			lastSeen, _ := r.client.Get(ctx, r.getLastSeenKey(userID)).Int64()
			presence := &entity.UserPresence{
				UserID: userID,
				Online: false,
				Status: entity.PresenceStatusOffline,
			}
			if lastSeen > 0 {
				presence.LastSeenAt = time.Unix(lastSeen, 0)
			}
			return presence, nil
		}
		return nil, err
	}

	var presence entity.UserPresence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return nil, err
	}
	return &presence, nil
}

func (r *PresenceRepositoryRedis) GetPresences(ctx context.Context, userIDs []uint64) (map[uint64]*entity.UserPresence, error) {
	result := make(map[uint64]*entity.UserPresence)

	if len(userIDs) == 0 {
		return result, nil
	}

	// 使用Pipeline批量获取
	pipe := r.client.Pipeline()
	cmds := make(map[uint64]*redis.StringCmd)

	for _, userID := range userIDs {
		cmds[userID] = pipe.Get(ctx, r.getKey(userID))
	}

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, err
	}

	// 离线用户再批量取最后活跃时间
	lastSeenPipe := r.client.Pipeline()
	lastSeenCmds := make(map[uint64]*redis.StringCmd)

	for userID, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			if err == redis.Nil {
				lastSeenCmds[userID] = lastSeenPipe.Get(ctx, r.getLastSeenKey(userID))
			}
			continue
		}

		var presence entity.UserPresence
		if err := json.Unmarshal([]byte(data), &presence); err != nil {
			continue
		}
		result[userID] = &presence
	}

	if len(lastSeenCmds) > 0 {
		lastSeenPipe.Exec(ctx)
		for userID, cmd := range lastSeenCmds {
			lastSeen, _ := cmd.Int64()
			presence := &entity.UserPresence{
				UserID: userID,
				Online: false,
				Status: entity.PresenceStatusOffline,
			}
			if lastSeen > 0 {
				presence.LastSeenAt = time.Unix(lastSeen, 0)
			}
			result[userID] = presence
		}
	}

	return result, nil
}

func (r *PresenceRepositoryRedis) UpdateHeartbeat(ctx context.Context, userID uint64) error {
	data, err := r.client.Get(ctx, r.getKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}

	var presence entity.UserPresence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return err
	}

	presence.UpdatedAt = time.Now()

	newData, err := json.Marshal(presence)
	if err != nil {
		return err
	}

	// 更新并刷新TTL
	return r.client.Set(ctx, r.getKey(userID), string(newData), presenceTTL).Err()
}
