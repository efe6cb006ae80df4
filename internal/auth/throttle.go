package auth

import (
	"context"
	"fmt"
	"time"

	"webmail/backend/internal/storage/redis"
)

// Throttle 基于 Redis 的登录尝试限流器
//
// 以邮箱为维度统计滑动窗口内的登录尝试次数，超过上限后拒绝。
type Throttle struct {
	rdb    *redis.Client
	limit  int64
	window time.Duration
}

// NewThrottle 创建登录限流器
func NewThrottle(rdb *redis.Client, limit int, window time.Duration) *Throttle {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Throttle{
		rdb:    rdb,
		limit:  int64(limit),
		window: window,
	}
}

// Allow 记录一次登录尝试并返回是否放行。
func (t *Throttle) Allow(ctx context.Context, email string) (bool, error) {
	key := fmt.Sprintf("signin:attempts:%s", email)
	count, err := t.rdb.IncrWithWindow(ctx, key, t.window)
	if err != nil {
		return false, fmt.Errorf("failed to count signin attempts: %w", err)
	}
	return count <= t.limit, nil
}

// Reset 清除某邮箱的尝试计数（登录成功后调用）。
func (t *Throttle) Reset(ctx context.Context, email string) error {
	return t.rdb.Del(ctx, fmt.Sprintf("signin:attempts:%s", email))
}
