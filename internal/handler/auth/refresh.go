package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	authmodel "yuzu/internal/model/auth"
	"yuzu/internal/service"
)

// RefreshResponseData 刷新响应数据
type RefreshResponseData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Refresh 刷新Token
// @Summary      刷新Token
// @Description  使用Refresh Token换发新的Access Token，旧的Refresh Token作废
// @Tags         认证
// @Accept       json
// @Produce      json
// @Param        request  body      auth.RefreshRequest  true  "刷新请求"
// @Success      200     {object}  map[string]interface{}
// @Failure      400     {object}  ErrorResponse
// @Failure      401     {object}  ErrorResponse
// @Router       /api/v1/auth/refresh [post]
func (h *Handler) Refresh(c *gin.Context) {
	var req authmodel.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	resp, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidToken) || errors.Is(err, service.ErrTokenExpired) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Code:    40102,
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
		"message": "刷新成功",
		"data": RefreshResponseData{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			ExpiresIn:    resp.ExpiresIn,
			TokenType:    "Bearer",
		},
	})
}
