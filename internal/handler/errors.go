package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"yuzu/internal/model"
	"yuzu/internal/pkg/apperr"
)

// writeError 将服务层错误映射为HTTP响应
// 错误码沿用 4xx/5xx + 两位序号的约定
func writeError(c *gin.Context, err error) {
	var rateLimit *apperr.RateLimitError
	if errors.As(err, &rateLimit) {
		resp := model.ErrorResponse{
			Code:    42901,
			Message: "上游限流，请稍后重试",
			Detail:  rateLimit.Message,
		}
		if rateLimit.RetryAfter > 0 {
			resp.RetryAfter = int(rateLimit.RetryAfter.Seconds())
		}
		c.JSON(http.StatusTooManyRequests, resp)
		return
	}

	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, model.ErrorResponse{
			Code:    40101,
			Message: "未认证",
		})
	case errors.Is(err, apperr.ErrForbidden):
		c.JSON(http.StatusForbidden, model.ErrorResponse{
			Code:    40301,
			Message: "无权访问该资源",
		})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, model.ErrorResponse{
			Code:    40401,
			Message: "资源不存在",
		})
	case errors.Is(err, apperr.ErrUnknownModel):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Code:    40002,
			Message: "未注册的模型标识",
		})
	case errors.Is(err, apperr.ErrAborted):
		// 客户端主动取消，无需错误体
		c.Status(499)
	case errors.Is(err, apperr.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, model.ErrorResponse{
			Code:    42901,
			Message: "上游限流，请稍后重试",
		})
	case errors.Is(err, apperr.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, model.ErrorResponse{
			Code:    50201,
			Message: "上游服务不可用",
			Detail:  err.Error(),
		})
	case errors.Is(err, apperr.ErrPersistenceFailure):
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50002,
			Message: "数据写入失败",
			Detail:  err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Code:    50001,
			Message: "内部错误",
			Detail:  err.Error(),
		})
	}
}

// writeBindError 请求体校验失败
func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{
		Code:    40001,
		Message: "Invalid request body",
		Detail:  err.Error(),
	})
}
