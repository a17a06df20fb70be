package handlers

import (
	"hirehub/internal/deployclient"
	"hirehub/pkg/response"

	"github.com/gin-gonic/gin"
)

// DeploymentServiceHandler 外部部署服务状态查询
type DeploymentServiceHandler struct {
	client *deployclient.Client
}

func NewDeploymentServiceHandler(client *deployclient.Client) *DeploymentServiceHandler {
	return &DeploymentServiceHandler{client: client}
}

// Health 部署服务健康状态
func (h *DeploymentServiceHandler) Health(c *gin.Context) {
	if h.client == nil {
		response.Success(c, gin.H{"enabled": false})
		return
	}

	status, err := h.client.HealthCheck()
	if err != nil {
		response.Success(c, gin.H{
			"enabled":   true,
			"reachable": false,
			"error":     err.Error(),
		})
		return
	}

	response.Success(c, gin.H{
		"enabled":   true,
		"reachable": true,
		"status":    status,
	})
}

// PortStats 部署服务端口分配统计
func (h *DeploymentServiceHandler) PortStats(c *gin.Context) {
	if h.client == nil {
		response.BadRequest(c, "未启用外部部署服务")
		return
	}

	stats, err := h.client.GetPortStats()
	if err != nil {
		response.ServerError(c, "查询部署服务失败: "+err.Error())
		return
	}

	response.Success(c, stats)
}
