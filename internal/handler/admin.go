package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"yuzu/internal/model"
	"yuzu/internal/service"
)

// AdminHandler 管理端处理器（路由层已经做过admin角色校验）
type AdminHandler struct {
	adminService *service.AdminService
}

// NewAdminHandler 创建管理端处理器
func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// ListUsers 查询用户列表
// @Summary      查询用户列表
// @Tags         管理端
// @Produce      json
// @Success      200  {array}   service.UserSummary
// @Failure      403  {object}  model.ErrorResponse
// @Router       /api/v1/admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.adminService.ListUsers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// CreateUser 创建用户
// @Summary      创建用户
// @Tags         管理端
// @Accept       json
// @Produce      json
// @Param        request  body      model.CreateUserRequest  true  "创建请求"
// @Success      201      {object}  auth.User
// @Failure      400      {object}  model.ErrorResponse
// @Router       /api/v1/admin/users [post]
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req model.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	user, err := h.adminService.CreateUser(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) {
			c.JSON(http.StatusConflict, model.ErrorResponse{
				Code:    40901,
				Message: err.Error(),
			})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// DeleteUser 删除用户
// @Summary      删除用户
// @Description  删除用户及其全部对话和消息
// @Tags         管理端
// @Produce      json
// @Param        id   path  string  true  "用户ID"
// @Success      204  "no content"
// @Failure      404  {object}  model.ErrorResponse
// @Router       /api/v1/admin/users/{id} [delete]
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	if err := h.adminService.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, model.ErrorResponse{
				Code:    40402,
				Message: err.Error(),
			})
			return
		}
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListConversations 查询全部对话
// @Summary      查询全部用户的最近对话
// @Tags         管理端
// @Produce      json
// @Success      200  {array}   model.ConversationSummary
// @Failure      403  {object}  model.ErrorResponse
// @Router       /api/v1/admin/conversations [get]
func (h *AdminHandler) ListConversations(c *gin.Context) {
	convs, err := h.adminService.ListAllConversations(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}
