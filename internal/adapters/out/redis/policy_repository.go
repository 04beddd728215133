package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/chatloop/realtime_service/internal/domain/entity"
	"github.com/chatloop/realtime_service/internal/ports/out"
)

// 可见性策略Key前缀；由用户资料服务写入，这里只读
const policyKeyPrefix = "rt:policy:visibility:"

// PolicyRepositoryRedis Redis可见性策略仓储实现
type PolicyRepositoryRedis struct {
	client *redis.Client
}

func NewPolicyRepositoryRedis(client *redis.Client) out.PolicyRepository {
	return &PolicyRepositoryRedis{client: client}
}

// VisibilityOf 未配置或值非法时回退为 everyone
func (r *PolicyRepositoryRedis) VisibilityOf(ctx context.Context, userID uint64) (entity.VisibilityPolicy, error) {
	key := fmt.Sprintf("%s%d", policyKeyPrefix, userID)
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return entity.VisibilityEveryone, nil
		}
		return entity.VisibilityEveryone, err
	}

	switch entity.VisibilityPolicy(value) {
	case entity.VisibilityEveryone, entity.VisibilityContacts, entity.VisibilityNobody:
		return entity.VisibilityPolicy(value), nil
	default:
		return entity.VisibilityEveryone, nil
	}
}
