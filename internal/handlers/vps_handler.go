package handlers

import (
	"errors"
	"strconv"

	"hirehub/internal/services"
	"hirehub/pkg/pagination"
	"hirehub/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// VPSHandler VPS注册表处理器
type VPSHandler struct {
	registryService *services.VPSRegistryService
}

func NewVPSHandler(registryService *services.VPSRegistryService) *VPSHandler {
	return &VPSHandler{registryService: registryService}
}

// Register 手动注册主机
func (h *VPSHandler) Register(c *gin.Context) {
	var params services.RegisterVPSParams
	if err := c.ShouldBindJSON(&params); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	vps, err := h.registryService.RegisterVPS(&params)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "主机注册成功", vps)
}

// List 分页查询主机
func (h *VPSHandler) List(c *gin.Context) {
	params := pagination.ParsePageParams(c)
	deploymentType := c.Query("deployment_type")
	status := c.Query("status")

	instances, total, err := h.registryService.GetWithFiltersAndPage(deploymentType, status, params.Page, params.PageSize)
	if err != nil {
		response.ServerError(c, "查询失败: "+err.Error())
		return
	}

	pageInfo := pagination.NewPageInfo(params.Page, params.PageSize, total)
	response.SuccessWithPage(c, instances, pageInfo)
}

// GetByID 查询主机详情
func (h *VPSHandler) GetByID(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的ID")
		return
	}

	vps, err := h.registryService.GetByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "主机不存在")
			return
		}
		response.ServerError(c, "查询失败: "+err.Error())
		return
	}

	response.Success(c, vps)
}

// GetAvailable 查询有空余槽位的共享主机
func (h *VPSHandler) GetAvailable(c *gin.Context) {
	instances, err := h.registryService.GetAvailable()
	if err != nil {
		response.ServerError(c, "查询失败: "+err.Error())
		return
	}
	response.Success(c, instances)
}

// GetStats 注册表统计
func (h *VPSHandler) GetStats(c *gin.Context) {
	stats, err := h.registryService.GetStats()
	if err != nil {
		response.ServerError(c, "查询失败: "+err.Error())
		return
	}
	response.Success(c, stats)
}

// UpdateStatus 更新主机生命周期状态
func (h *VPSHandler) UpdateStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		response.BadRequest(c, "无效的ID")
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	vps, err := h.registryService.UpdateStatus(uint(id), req.Status)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c, "主机不存在")
			return
		}
		response.BadRequest(c, err.Error())
		return
	}

	response.SuccessWithMessage(c, "状态更新成功", vps)
}
