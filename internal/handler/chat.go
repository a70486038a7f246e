package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"yuzu/internal/ai"
	"yuzu/internal/model"
	"yuzu/internal/service"
)

// ChatHandler 对话处理器
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler 创建对话处理器
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Stream 流式对话
// @Summary      流式对话
// @Description  提交用户消息并以NDJSON流式返回模型回答，每行一个JSON块，最后一块isLast=true
// @Tags         对话
// @Accept       json
// @Produce      application/x-ndjson
// @Param        id       path      string                   true  "对话ID"
// @Param        request  body      model.SubmitChatRequest  true  "对话请求"
// @Success      200      {object}  model.StreamChunk
// @Failure      400      {object}  model.ErrorResponse
// @Failure      404      {object}  model.ErrorResponse
// @Router       /api/v1/chat/{id} [post]
func (h *ChatHandler) Stream(c *gin.Context) {
	var req model.SubmitChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	ctx := c.Request.Context()
	chunks, err := h.chatService.Stream(ctx, c.Param("id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "application/x-ndjson; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	encoder := json.NewEncoder(c.Writer)
	for chunk := range chunks {
		if err := encoder.Encode(chunk); err != nil {
			// 客户端断开，服务端流由请求context取消
			log.Debug().Err(err).Msg("client write failed")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// Complete 非流式对话
// @Summary      非流式对话
// @Description  提交用户消息并一次性返回完整回答
// @Tags         对话
// @Accept       json
// @Produce      json
// @Param        id       path      string                   true  "对话ID"
// @Param        request  body      model.SubmitChatRequest  true  "对话请求"
// @Success      200      {object}  model.ChatResponse
// @Failure      400      {object}  model.ErrorResponse
// @Router       /api/v1/chat/{id}/complete [post]
func (h *ChatHandler) Complete(c *gin.Context) {
	var req model.SubmitChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	resp, err := h.chatService.Complete(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Save 保存assistant消息
// @Summary      保存assistant消息
// @Description  流式完成但持久化失败时的补救保存，不触发新的生成
// @Tags         对话
// @Accept       json
// @Produce      json
// @Param        id       path      string                    true  "对话ID"
// @Param        request  body      model.SaveMessageRequest  true  "保存请求"
// @Success      200      {object}  model.Message
// @Failure      400      {object}  model.ErrorResponse
// @Router       /api/v1/chat/{id}/save [post]
func (h *ChatHandler) Save(c *gin.Context) {
	var req model.SaveMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	msg, err := h.chatService.SaveAssistantMessage(c.Request.Context(), c.Param("id"), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// ListMessages 查询对话消息
// @Summary      查询对话消息
// @Description  按创建时间升序返回对话的全部消息
// @Tags         对话
// @Produce      json
// @Param        id   path      string  true  "对话ID"
// @Success      200  {array}   model.Message
// @Failure      404  {object}  model.ErrorResponse
// @Router       /api/v1/chat/{id}/messages [get]
func (h *ChatHandler) ListMessages(c *gin.Context) {
	messages, err := h.chatService.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	// 消息列表对流式过程敏感，禁止任何中间缓存
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, messages)
}

// ListModels 查询可用模型
// @Summary      查询可用模型
// @Tags         对话
// @Produce      json
// @Success      200  {array}  model.ModelInfo
// @Router       /api/v1/models [get]
func (h *ChatHandler) ListModels(c *gin.Context) {
	c.JSON(http.StatusOK, ai.List())
}
