package middleware

import (
	"strings"

	apperr "Photo_Archive/internal/errors"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	ContextUserIDKey = "user_id"
	ContextRoleKey   = "role"
)

func bearer(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware 校验 token 与 redis 中的当前会话，注入 user_id 与 role
func AuthMiddleware(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c)
		if !ok {
			apperr.HandleError(c, apperr.Unauthorized("missing or malformed authorization header"))
			c.Abort()
			return
		}
		claims, err := users.Authenticate(c.Request.Context(), token)
		if err != nil {
			apperr.HandleError(c, err)
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextRoleKey, claims.Role)
		c.Next()
	}
}

// OptionalAuth 有合法 token 时注入身份，否则按匿名访客继续
func OptionalAuth(users *service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearer(c); ok {
			if claims, err := users.Authenticate(c.Request.Context(), token); err == nil {
				c.Set(ContextUserIDKey, claims.UserID)
				c.Set(ContextRoleKey, claims.Role)
			}
		}
		c.Next()
	}
}

// RequireModerator 必须挂在 AuthMiddleware 之后
func RequireModerator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsModerator(c) {
			apperr.HandleError(c, apperr.Forbidden("moderator role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID 未登录返回 0
func UserID(c *gin.Context) uint64 {
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(uint64); ok {
			return id
		}
	}
	return 0
}

func IsModerator(c *gin.Context) bool {
	return c.GetInt(ContextRoleKey) >= model.RoleModerator
}
