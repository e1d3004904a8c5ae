package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const healthCheckTimeout = 2 * time.Second

// registerHealthRoutes mounts liveness and readiness probes. Liveness only
// proves the process answers; readiness also pings the backing stores.
func registerHealthRoutes(router *gin.Engine, pool *pgxpool.Pool, rdb *redis.Client) {
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		checks := gin.H{"postgres": "ok", "redis": "ok"}
		healthy := true

		if err := pool.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			healthy = false
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, checks)
	})
}
