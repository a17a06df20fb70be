package handlers

import (
	"errors"

	"hirehub/internal/services"
	"hirehub/pkg/pagination"
	"hirehub/pkg/queue"
	"hirehub/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// InstanceHandler 租户实例开通处理器
type InstanceHandler struct {
	provisionService  *services.ProvisionService
	deploymentService *services.DeploymentService
	logBuffer         queue.DeployLogBuffer
}

func NewInstanceHandler(provisionService *services.ProvisionService, deploymentService *services.DeploymentService, logBuffer queue.DeployLogBuffer) *InstanceHandler {
	return &InstanceHandler{
		provisionService:  provisionService,
		deploymentService: deploymentService,
		logBuffer:         logBuffer,
	}
}

// Provision 发起租户实例开通
func (h *InstanceHandler) Provision(c *gin.Context) {
	var req services.ProvisionInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	result, err := h.provisionService.ProvisionInstance(&req)
	if err != nil {
		var validationErr *services.ValidationError
		switch {
		case errors.As(err, &validationErr):
			response.BadRequest(c, validationErr.Message)
		case errors.Is(err, services.ErrSlugTaken), errors.Is(err, services.ErrEmailTaken),
			errors.Is(err, services.ErrNoCapacity):
			response.BadRequest(c, err.Error())
		default:
			response.ServerError(c, "开通失败: "+err.Error())
		}
		return
	}

	response.SuccessWithMessage(c, "开通流程已启动", result)
}

// List 分页查询部署记录
func (h *InstanceHandler) List(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	status := c.Query("status")
	deploymentModel := c.Query("deployment_model")

	deployments, total, err := h.deploymentService.GetWithFiltersAndPage(status, deploymentModel, params.Page, params.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败: "+err.Error())
		return
	}

	pageInfo := pagination.NewPageInfo(params.Page, params.PageSize, total)
	response.SuccessWithPage(c, deployments, pageInfo)
}

// GetStatus 查询部署状态（含关联主机和过程日志）
func (h *InstanceHandler) GetStatus(c *gin.Context) {
	deploymentID := c.Param("deploymentId")

	deployment, err := h.deploymentService.GetByID(deploymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "部署记录不存在")
			return
		}
		response.ServerError(c, "查询失败: "+err.Error())
		return
	}

	// 日志缓冲有保留窗口，过期部署返回空日志属于正常情况
	entries, err := h.logBuffer.Get(deploymentID)
	if err != nil {
		entries = nil
	}

	response.Success(c, gin.H{
		"deployment": deployment,
		"logs":       entries,
	})
}

// GetLogs 查询部署过程日志
func (h *InstanceHandler) GetLogs(c *gin.Context) {
	deploymentID := c.Param("deploymentId")

	// 先确认部署存在，避免把任意ID当成空日志返回
	if _, err := h.deploymentService.GetByID(deploymentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "部署记录不存在")
			return
		}
		response.ServerError(c, "查询失败: "+err.Error())
		return
	}

	entries, err := h.logBuffer.Get(deploymentID)
	if err != nil {
		response.ServerError(c, "读取部署日志失败: "+err.Error())
		return
	}

	response.Success(c, gin.H{
		"deployment_id": deploymentID,
		"entries":       entries,
	})
}
