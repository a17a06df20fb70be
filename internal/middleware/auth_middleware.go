package middleware

import (
	"strings"

	"hirehub/internal/models"
	"hirehub/internal/services"
	"hirehub/pkg/jwt"
	"hirehub/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 权限中间件
type AuthMiddleware struct {
	userService *services.UserService
	jwtManager  *jwt.JWTManager
}

func NewAuthMiddleware(userService *services.UserService) *AuthMiddleware {
	return &AuthMiddleware{
		userService: userService,
		jwtManager:  jwt.GetJWTManager(), // 使用全局JWT管理器
	}
}

// RequireLogin 要求已登录
func (m *AuthMiddleware) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从Authorization头获取JWT token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		// 检查Bearer格式
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(c, "认证头格式错误")
			c.Abort()
			return
		}

		tokenString := authHeader[7:] // 去掉 "Bearer "

		claims, err := m.jwtManager.VerifyToken(tokenString)
		if err != nil {
			response.Unauthorized(c, "Token无效或已过期")
			c.Abort()
			return
		}

		// 获取用户信息并检查状态
		user, err := m.userService.GetByID(claims.UserID)
		if err != nil {
			response.Unauthorized(c, "用户不存在")
			c.Abort()
			return
		}
		if user.Status != models.UserStatusActive {
			response.Unauthorized(c, "用户已被禁用")
			c.Abort()
			return
		}

		// 将用户信息保存到上下文
		c.Set("user", user)
		c.Set("user_id", claims.UserID)
		c.Set("organization_id", claims.OrganizationID)
		c.Set("username", claims.Username)
		c.Set("is_platform_admin", claims.IsPlatformAdmin)
		c.Set("claims", claims)

		c.Next()
	}
}

// RequirePlatformAdmin 要求平台管理员
func (m *AuthMiddleware) RequirePlatformAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := c.Get("user")
		if !exists {
			response.Unauthorized(c, "请先登录")
			c.Abort()
			return
		}

		if !user.(*models.User).IsPlatformAdmin {
			response.Forbidden(c, "需要平台管理员权限")
			c.Abort()
			return
		}

		c.Next()
	}
}
