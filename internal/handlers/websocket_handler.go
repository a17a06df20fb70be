package handlers

import (
	"net/http"
	"time"

	"hirehub/internal/models"
	"hirehub/internal/services"
	"hirehub/pkg/jwt"
	"hirehub/pkg/logger"
	"hirehub/pkg/queue"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 跨域校验由CORS中间件统一处理
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler 部署日志实时推送
// 客户端连上后先收到全部历史日志，之后按轮询增量推送，
// 部署进入终态后推完剩余日志即关闭连接
type WebSocketHandler struct {
	deploymentService *services.DeploymentService
	userService       *services.UserService
	logBuffer         queue.DeployLogBuffer
	jwtManager        *jwt.JWTManager
	pollInterval      time.Duration
}

func NewWebSocketHandler(deploymentService *services.DeploymentService, userService *services.UserService, logBuffer queue.DeployLogBuffer) *WebSocketHandler {
	return &WebSocketHandler{
		deploymentService: deploymentService,
		userService:       userService,
		logBuffer:         logBuffer,
		jwtManager:        jwt.GetJWTManager(), // 使用全局JWT管理器
		pollInterval:      2 * time.Second,
	}
}

// StreamDeployLogs 订阅部署日志
// 部署日志包含主机配置命令和错误输出，只对平台管理员开放
func (h *WebSocketHandler) StreamDeployLogs(c *gin.Context) {
	deploymentID := c.Param("deploymentId")

	// 从查询参数获取token（WebSocket不支持自定义header）
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "缺少认证令牌"})
		return
	}

	claims, err := h.jwtManager.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "Token无效或已过期"})
		return
	}

	user, err := h.userService.GetByID(claims.UserID)
	if err != nil || user.Status != models.UserStatusActive {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "用户不存在或已被禁用"})
		return
	}
	if !user.IsPlatformAdmin {
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "需要平台管理员权限"})
		return
	}

	if _, err := h.deploymentService.GetByID(deploymentID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "部署记录不存在"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.GetLogger().Warnf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sent := 0
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		entries, err := h.logBuffer.Get(deploymentID)
		if err != nil {
			_ = conn.WriteJSON(gin.H{"error": "读取部署日志失败"})
			return
		}

		for ; sent < len(entries); sent++ {
			if err := conn.WriteJSON(entries[sent]); err != nil {
				return
			}
		}

		deployment, err := h.deploymentService.GetByID(deploymentID)
		if err != nil {
			return
		}
		if models.IsTerminalDeployStatus(deployment.Status) {
			_ = conn.WriteJSON(gin.H{
				"event":  "done",
				"status": deployment.Status,
			})
			return
		}

		select {
		case <-ticker.C:
		case <-c.Request.Context().Done():
			return
		}
	}
}
