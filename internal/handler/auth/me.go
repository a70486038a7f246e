package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"yuzu/internal/pkg/ctxutil"
	"yuzu/internal/service"
)

// Me 获取当前用户信息
// @Summary      获取当前用户信息
// @Tags         认证
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  ErrorResponse
// @Router       /api/v1/auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	principal, ok := ctxutil.GetPrincipal(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    40101,
			Message: "未认证",
		})
		return
	}

	user, err := h.authService.GetUserByID(c.Request.Context(), principal.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    40402,
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    50001,
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    toUserInfo(user),
	})
}
