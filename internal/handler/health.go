package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"yuzu/internal/pkg/cache"
	"yuzu/internal/pkg/mongodb"
)

// HealthHandler 健康检查处理器
type HealthHandler struct {
	mongo *mongodb.Client
	cache *cache.RedisCache // 可为 nil
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(mongo *mongodb.Client, c *cache.RedisCache) *HealthHandler {
	return &HealthHandler{mongo: mongo, cache: c}
}

// Health 健康检查（进程存活）
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready 就绪检查（依赖可用）
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	deps := gin.H{}
	healthy := true

	if err := h.mongo.Ping(ctx); err != nil {
		deps["mongo"] = err.Error()
		healthy = false
	} else {
		deps["mongo"] = "ok"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			deps["redis"] = err.Error()
			healthy = false
		} else {
			deps["redis"] = "ok"
		}
	}

	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded",
			"deps":   deps,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"deps":   deps,
	})
}
