// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"context"
	"net/http"
	"strings"

	"amazing-kissan-go/internal/model"
	"amazing-kissan-go/internal/service"
	"amazing-kissan-go/pkg/database"
	"amazing-kissan-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const bearerPrefix = "Bearer "

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，验证其有效性，并将完整的 User 对象存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权头"})
			return
		}
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的授权头格式"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		user, claims, ok := resolveUser(tokenString, jwtManager, userService)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
			return
		}

		c.Set("user", user)
		c.Set("claims", claims)
		c.Next()
	}
}

// OptionalAuthMiddleware 与 AuthMiddleware 类似，但允许游客通过。
// 无有效 token 时以游客身份继续：会话标识取 X-Session-Id 请求头，
// 缺失时生成一个新的并通过响应头返回给客户端保存。
func OptionalAuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if strings.HasPrefix(authHeader, bearerPrefix) {
			tokenString := strings.TrimPrefix(authHeader, bearerPrefix)
			if user, claims, ok := resolveUser(tokenString, jwtManager, userService); ok {
				c.Set("user", user)
				c.Set("claims", claims)
				c.Next()
				return
			}
		}

		// 游客路径：确保有会话标识
		sessionID := c.GetHeader("X-Session-Id")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}
		c.Set("guestSessionID", sessionID)
		c.Header("X-Session-Id", sessionID)
		c.Next()
	}
}

// resolveUser 验证 token、检查登出黑名单并加载完整的用户对象。
func resolveUser(tokenString string, jwtManager *token.JWTManager, userService service.UserService) (*model.User, *token.CustomClaims, bool) {
	claims, err := jwtManager.VerifyToken(tokenString)
	if err != nil {
		return nil, nil, false
	}

	// 已登出的 token 在黑名单中
	blacklisted, err := database.RDB.Exists(context.Background(), "blacklist:"+tokenString).Result()
	if err == nil && blacklisted > 0 {
		return nil, nil, false
	}

	user, err := userService.GetProfile(claims.Username)
	if err != nil {
		// token 中的用户可能已被删除
		return nil, nil, false
	}
	return user, claims, true
}
