package handlers

import (
	"errors"
	"net/http"

	"hirehub/internal/services"
	"hirehub/pkg/response"

	"github.com/gin-gonic/gin"
)

// CallbackHandler 部署服务回调处理器
// 认证由服务令牌中间件完成，到达这里的请求已通过校验
type CallbackHandler struct {
	callbackService *services.CallbackService
}

func NewCallbackHandler(callbackService *services.CallbackService) *CallbackHandler {
	return &CallbackHandler{callbackService: callbackService}
}

// HandleDeploymentCallback 接收部署完成/失败通知
// 调用方是外部服务，按真实HTTP状态码返回，不走管理端的统一封装
func (h *CallbackHandler) HandleDeploymentCallback(c *gin.Context) {
	var req services.DeploymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "回调参数错误: " + err.Error()})
		return
	}

	if err := h.callbackService.HandleCallback(&req); err != nil {
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": validationErr.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "回调处理失败: " + err.Error()})
		return
	}

	response.SuccessWithMessage(c, "回调已处理", nil)
}
