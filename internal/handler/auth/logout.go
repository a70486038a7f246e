package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	authmodel "yuzu/internal/model/auth"
)

// Logout 用户登出
// @Summary      用户登出
// @Description  作废Refresh Token；Access Token在过期前仍然有效
// @Tags         认证
// @Accept       json
// @Produce      json
// @Param        request  body      auth.LogoutRequest  true  "登出请求"
// @Success      200     {object}  map[string]interface{}
// @Failure      400     {object}  ErrorResponse
// @Router       /api/v1/auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	var req authmodel.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "登出成功",
	})
}
