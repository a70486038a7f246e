package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"yuzu/internal/pkg/ctxutil"
	"yuzu/internal/pkg/jwt"
)

// Auth JWT 认证中间件
// 从 Authorization header 中提取 Bearer token，验证后注入 Principal 到 context
func Auth(jwtUtil *jwt.JWT) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    40101,
				"message": "未授权",
			})
			c.Abort()
			return
		}

		// 提取 Token（Bearer {token}）
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    40101,
				"message": "Invalid authorization header",
			})
			c.Abort()
			return
		}

		claims, err := jwtUtil.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    40102,
				"message": "Token无效或已过期",
			})
			c.Abort()
			return
		}

		ctx := ctxutil.WithPrincipal(c.Request.Context(), ctxutil.Principal{
			UserID:  claims.UserID,
			IsAdmin: claims.Role == "admin",
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// AdminOnly 管理员权限中间件（必须在 Auth 之后）
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := ctxutil.GetPrincipal(c.Request.Context())
		if !ok || !principal.IsAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"code":    40301,
				"message": "需要管理员权限",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
