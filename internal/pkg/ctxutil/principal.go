package ctxutil

import "context"

// Principal 已认证主体
// 认证中间件解析 JWT 成功后注入，下游所有操作都依赖它做所有权判断
type Principal struct {
	UserID  string
	IsAdmin bool
}

// principalKeyType 使用私有类型避免与其他 context key 冲突
type principalKeyType struct{}

var principalKey = principalKeyType{}

// WithPrincipal 将认证主体注入到 context 中
// 说明：应在认证中间件中调用，例如解析 JWT 成功后：
//
//	ctx := ctxutil.WithPrincipal(c.Request.Context(), ctxutil.Principal{UserID: claims.UserID, IsAdmin: claims.Role == "admin"})
//	c.Request = c.Request.WithContext(ctx)
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal 从 context 中解析认证主体
// 返回值：
//   - Principal: 解析到的主体
//   - bool     : 是否存在有效的主体
func GetPrincipal(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, false
	}
	return p, true
}
