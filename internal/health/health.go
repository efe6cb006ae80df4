package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"webmail/backend/internal/domain"
	"webmail/backend/internal/storage/redis"
)

// Checker 健康检查器
type Checker struct {
	handler healthcheck.Handler
	store   domain.Store
	rdb     *redis.Client
	logger  *zap.Logger
}

// NewChecker 创建健康检查器。rdb 可以为 nil（未启用 Redis 时）。
func NewChecker(store domain.Store, rdb *redis.Client, logger *zap.Logger) *Checker {
	c := &Checker{
		handler: healthcheck.NewHandler(),
		store:   store,
		rdb:     rdb,
		logger:  logger,
	}
	c.addChecks()
	return c
}

// addChecks 添加健康检查
func (c *Checker) addChecks() {
	c.handler.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(200))

	c.handler.AddReadinessCheck("store", func() error {
		return c.store.Health()
	})

	if c.rdb != nil {
		c.handler.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return c.rdb.Ping(ctx)
		})
	}
}

// Handler 返回健康检查处理器（/live 与 /ready）
func (c *Checker) Handler() http.Handler {
	return c.handler
}
