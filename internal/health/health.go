package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	goredis "github.com/redis/go-redis/v9"

	"aliasflare/backend/internal/storage"
)

// Checker 健康检查器。
// 存活探针只看本地存储；就绪探针额外要求复制存储可达。
// 远端 API 不参与就绪判断：它不可用时服务仍能读本地记录。
type Checker struct {
	handler healthcheck.Handler
}

// NewChecker 创建健康检查器。redis 允许为 nil（未启用复制存储）。
func NewChecker(store storage.Store, redis *goredis.Client) *Checker {
	handler := healthcheck.NewHandler()

	handler.AddLivenessCheck("store", func() error {
		return store.Health()
	})

	if redis != nil {
		handler.AddReadinessCheck("replica", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redis.Ping(ctx).Err()
		})
	}

	handler.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(500))

	return &Checker{handler: handler}
}

// Live 存活探针处理函数
func (c *Checker) Live() http.HandlerFunc {
	return c.handler.LiveEndpoint
}

// Ready 就绪探针处理函数
func (c *Checker) Ready() http.HandlerFunc {
	return c.handler.ReadyEndpoint
}
