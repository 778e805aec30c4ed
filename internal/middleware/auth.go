package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/card-battle/internal/errors"
)

// TokenResolver 将令牌解析为用户ID
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (string, error)
}

// AuthMiddleware 认证中间件
type AuthMiddleware struct {
	resolver TokenResolver
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(resolver TokenResolver) *AuthMiddleware {
	return &AuthMiddleware{resolver: resolver}
}

// RequireAuth 需要认证的中间件
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		userID, err := m.resolver.ResolveToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(apperrors.HTTPStatusOf(err), apperrors.NewErrorResponse(err))
			return
		}

		c.Set("userID", userID)
		c.Set("token", token)
		c.Next()
	}
}

// OptionalAuth 可选认证的中间件，令牌无效时按匿名处理
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := ExtractToken(c); token != "" {
			if userID, err := m.resolver.ResolveToken(c.Request.Context(), token); err == nil {
				c.Set("userID", userID)
				c.Set("token", token)
			}
		}
		c.Next()
	}
}

// ExtractToken 从请求中提取令牌
func ExtractToken(c *gin.Context) string {
	// 1. Authorization: Bearer <token>
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// 2. X-Access-Token
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 3. Cookie
	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token
	}

	// 4. Query参数，浏览器WebSocket无法设置请求头
	return c.Query("token")
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) (string, bool) {
	if v, exists := c.Get("userID"); exists {
		if id, ok := v.(string); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// IsAuthenticated 检查是否已认证
func IsAuthenticated(c *gin.Context) bool {
	_, ok := GetUserID(c)
	return ok
}
