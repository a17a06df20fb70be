package middleware

import (
	"net/http"
	"strings"

	"hirehub/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// ServiceAuthMiddleware 服务间调用认证（部署服务回调使用）
// 与用户认证不同，服务方按HTTP状态码判断结果，失败必须返回真实的401
type ServiceAuthMiddleware struct {
	secret      string
	serviceName string
}

func NewServiceAuthMiddleware(secret, serviceName string) *ServiceAuthMiddleware {
	return &ServiceAuthMiddleware{
		secret:      secret,
		serviceName: serviceName,
	}
}

// RequireService 校验X-Service头和服务令牌
func (m *ServiceAuthMiddleware) RequireService() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.secret == "" {
			m.reject(c, "服务间认证未配置")
			return
		}

		if c.GetHeader("X-Service") != m.serviceName {
			m.reject(c, "缺少或错误的服务标识")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			m.reject(c, "认证头格式错误")
			return
		}

		service, err := jwt.VerifyServiceToken(m.secret, authHeader[7:])
		if err != nil {
			m.reject(c, "服务令牌无效或已过期")
			return
		}
		if service != m.serviceName {
			m.reject(c, "服务令牌主体不匹配")
			return
		}

		c.Set("service", service)
		c.Next()
	}
}

func (m *ServiceAuthMiddleware) reject(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    http.StatusUnauthorized,
		"message": message,
	})
}
