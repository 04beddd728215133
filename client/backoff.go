package client

import (
	"math"
	"math/rand"
	"time"
)

// reconnector 指数退避重连策略
// 延迟为 base*2^attempt 加抖动，封顶 maxDelay；任何一次连接成功都把计数归零，
// 即便随后立刻掉线，下一轮退避也从 base 重新开始
type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int // 0 表示不限次数
	attempt     int
}

func newReconnector(baseDelay, maxDelay time.Duration, maxAttempts int) *reconnector {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	return &reconnector{
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		maxAttempts: maxAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

// markConnected 连接成功：重连计数归零
func (r *reconnector) markConnected() {
	r.attempt = 0
}

// nextDelay 返回下次重连前的等待时间并推进计数
func (r *reconnector) nextDelay() time.Duration {
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}
