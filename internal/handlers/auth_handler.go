package handlers

import (
	"hirehub/internal/services"
	"hirehub/pkg/jwt"
	"hirehub/pkg/response"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	userService *services.UserService
	jwtManager  *jwt.JWTManager
}

func NewAuthHandler(userService *services.UserService) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		jwtManager:  jwt.GetJWTManager(),
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	user, err := h.userService.Authenticate(req.Username, req.Password)
	if err != nil {
		response.Unauthorized(c, err.Error())
		return
	}

	var orgID uint
	if user.OrganizationID != nil {
		orgID = *user.OrganizationID
	}

	token, err := h.jwtManager.GenerateToken(user.ID, orgID, user.Username, user.IsPlatformAdmin)
	if err != nil {
		response.ServerError(c, "生成Token失败")
		return
	}

	response.Success(c, gin.H{
		"token":      token,
		"expires_in": int(h.jwtManager.GetTokenDuration().Seconds()),
		"user":       user,
	})
}

// RefreshToken 刷新Token
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	newToken, err := h.jwtManager.RefreshToken(req.Token)
	if err != nil {
		response.Unauthorized(c, "Token无效或已过期")
		return
	}

	response.Success(c, gin.H{
		"token":      newToken,
		"expires_in": int(h.jwtManager.GetTokenDuration().Seconds()),
	})
}
