package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"yuzu/internal/pkg/apperr"
	"yuzu/internal/pkg/cache"
	"yuzu/internal/pkg/ctxutil"
)

// EventsHandler 会话事件订阅处理器
// 客户端长连接订阅自己的会话事件（对话完成/改名/删除），收到后刷新会话列表
type EventsHandler struct {
	cache *cache.RedisCache // 可为 nil（Redis未配置时路由不注册）
}

// NewEventsHandler 创建会话事件订阅处理器
func NewEventsHandler(c *cache.RedisCache) *EventsHandler {
	return &EventsHandler{cache: c}
}

// Subscribe 订阅会话事件
// @Summary      订阅会话事件
// @Description  以NDJSON长连接推送当前用户的会话事件，连接断开即退出
// @Tags         会话
// @Produce      application/x-ndjson
// @Success      200  {object}  model.SessionEvent
// @Failure      401  {object}  model.ErrorResponse
// @Router       /api/v1/events [get]
func (h *EventsHandler) Subscribe(c *gin.Context) {
	principal, ok := ctxutil.GetPrincipal(c.Request.Context())
	if !ok {
		writeError(c, apperr.ErrUnauthenticated)
		return
	}

	ctx := c.Request.Context()
	pubsub := h.cache.Subscribe(ctx, cache.SessionEventChannel(principal.UserID))
	defer pubsub.Close()

	c.Header("Content-Type", "application/x-ndjson; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Redis里已经是JSON，原样转发加换行
			if _, err := c.Writer.WriteString(msg.Payload + "\n"); err != nil {
				log.Debug().Err(err).Msg("event client write failed")
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}
