package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// healthHandler 存活检查
func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Timestamp: time.Now().Unix()})
}

// pingHandler Ping 检查
func pingHandler(c *gin.Context) {
	c.String(http.StatusOK, "pong")
}

// readyHandler 就绪检查；数据库不可用时返回 503，Redis 未配置时标记为 disabled
func readyHandler(db *gorm.DB, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		checks := make(map[string]string)
		healthy := true

		dbStatus := "ok"
		if sqlDB, err := db.DB(); err != nil {
			dbStatus = "error: " + err.Error()
			healthy = false
		} else if err := sqlDB.PingContext(ctx); err != nil {
			dbStatus = "error: " + err.Error()
			healthy = false
		}
		checks["database"] = dbStatus

		// 限流与归因锁在 Redis 不可用时降级，不影响就绪
		switch {
		case redisClient == nil:
			checks["redis"] = "disabled"
		default:
			if err := redisClient.Ping(ctx).Err(); err != nil {
				checks["redis"] = "degraded: " + err.Error()
			} else {
				checks["redis"] = "ok"
			}
		}

		status := http.StatusOK
		text := "ready"
		if !healthy {
			status = http.StatusServiceUnavailable
			text = "not ready"
		}
		c.JSON(status, HealthResponse{Status: text, Timestamp: time.Now().Unix(), Checks: checks})
	}
}
