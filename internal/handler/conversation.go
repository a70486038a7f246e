package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"yuzu/internal/model"
	"yuzu/internal/service"
)

// ConversationHandler 对话管理处理器
type ConversationHandler struct {
	convService *service.ConversationService
}

// NewConversationHandler 创建对话管理处理器
func NewConversationHandler(convService *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{convService: convService}
}

// List 查询对话列表
// @Summary      查询对话列表
// @Description  返回当前用户的对话列表，新的在前
// @Tags         会话
// @Produce      json
// @Success      200  {array}   model.ConversationSummary
// @Failure      401  {object}  model.ErrorResponse
// @Router       /api/v1/conversations [get]
func (h *ConversationHandler) List(c *gin.Context) {
	summaries, err := h.convService.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// Create 创建对话
// @Summary      创建对话
// @Description  创建新对话，标题为占位标题，首轮对话完成后自动改名
// @Tags         会话
// @Accept       json
// @Produce      json
// @Param        request  body      model.CreateConversationRequest  true  "创建请求"
// @Success      201      {object}  model.Conversation
// @Failure      400      {object}  model.ErrorResponse
// @Router       /api/v1/conversations [post]
func (h *ConversationHandler) Create(c *gin.Context) {
	var req model.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	conv, err := h.convService.Create(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// Delete 删除对话
// @Summary      删除对话
// @Description  删除对话及其全部消息，仅所有者或管理员可操作
// @Tags         会话
// @Produce      json
// @Param        id   path      string  true  "对话ID"
// @Success      204  "no content"
// @Failure      403  {object}  model.ErrorResponse
// @Failure      404  {object}  model.ErrorResponse
// @Router       /api/v1/conversations/{id} [delete]
func (h *ConversationHandler) Delete(c *gin.Context) {
	if err := h.convService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
