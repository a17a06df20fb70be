package services

import (
	"fmt"

	"hirehub/internal/models"

	"gorm.io/gorm"
)

// VPSRegistryService VPS容量注册表
// currentTenants 计数只能通过本服务的注册/分配操作变更
type VPSRegistryService struct {
	db *gorm.DB
}

// VPSStats 注册表统计信息
type VPSStats struct {
	Total         int64 `json:"total"`
	Shared        int64 `json:"shared"`
	Dedicated     int64 `json:"dedicated"`
	Active        int64 `json:"active"`
	TotalCapacity int64 `json:"total_capacity"`
	UsedCapacity  int64 `json:"used_capacity"`
}

// RegisterVPSParams 注册新主机的参数
type RegisterVPSParams struct {
	Name           string `json:"name" binding:"required"`
	IPAddress      string `json:"ip_address" binding:"required"`
	Hostname       string `json:"hostname"`
	DeploymentType string `json:"deployment_type" binding:"required,oneof=shared dedicated"`
	Location       string `json:"location"`
	CPUCores       int    `json:"cpu_cores"`
	MemoryGB       int    `json:"memory_gb"`
	DiskGB         int    `json:"disk_gb"`
	MaxTenants     int    `json:"max_tenants"`
	Status         string `json:"status"`
}

func NewVPSRegistryService(db *gorm.DB) *VPSRegistryService {
	return &VPSRegistryService{db: db}
}

// SelectOptimalSharedVPS 选择负载最低的可用共享VPS
// 按currentTenants升序，相同时按ID升序
func (s *VPSRegistryService) SelectOptimalSharedVPS() (*models.VPSInstance, error) {
	var vps models.VPSInstance
	err := s.db.
		Where("deployment_type = ? AND status = ? AND current_tenants < max_tenants",
			models.DeploymentModelShared, models.VPSStatusActive).
		Order("current_tenants ASC, id ASC").
		First(&vps).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNoCapacity
		}
		return nil, err
	}
	return &vps, nil
}

// AssignOrganizationToVPS 将组织分配到指定VPS
// 容量检查和计数递增在同一条条件UPDATE里完成，避免并发超卖
func (s *VPSRegistryService) AssignOrganizationToVPS(orgID, vpsID uint) (*models.VPSInstance, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.VPSInstance{}).
			Where("id = ? AND status = ? AND current_tenants < max_tenants", vpsID, models.VPSStatusActive).
			UpdateColumn("current_tenants", gorm.Expr("current_tenants + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// 主机不存在、不可用或已满
			return ErrNoCapacity
		}

		if err := tx.Model(&models.Organization{}).
			Where("id = ?", orgID).
			Update("vps_id", vpsID).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetByID(vpsID)
}

// ReleaseOrganizationFromVPS 释放组织占用的槽位（下线/迁移时使用）
func (s *VPSRegistryService) ReleaseOrganizationFromVPS(orgID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var org models.Organization
		if err := tx.First(&org, orgID).Error; err != nil {
			return err
		}
		if org.VPSID == nil {
			return nil
		}

		if err := tx.Model(&models.VPSInstance{}).
			Where("id = ? AND current_tenants > 0", *org.VPSID).
			UpdateColumn("current_tenants", gorm.Expr("current_tenants - 1")).Error; err != nil {
			return err
		}

		return tx.Model(&models.Organization{}).
			Where("id = ?", orgID).
			Update("vps_id", nil).Error
	})
}

// RegisterVPS 注册新主机，计数从0开始
func (s *VPSRegistryService) RegisterVPS(params *RegisterVPSParams) (*models.VPSInstance, error) {
	if !models.IsValidDeploymentModel(params.DeploymentType) {
		return nil, fmt.Errorf("部署类型只能是 shared 或 dedicated")
	}

	maxTenants := params.MaxTenants
	if params.DeploymentType == models.DeploymentModelDedicated {
		// 专属主机固定单租户
		maxTenants = 1
	} else if maxTenants <= 0 {
		maxTenants = 10
	}

	status := params.Status
	if status == "" {
		status = models.VPSStatusActive
	}
	if !models.IsValidVPSStatus(status) {
		return nil, fmt.Errorf("无效的VPS状态: %s", status)
	}

	vps := &models.VPSInstance{
		Name:           params.Name,
		IPAddress:      params.IPAddress,
		Hostname:       params.Hostname,
		DeploymentType: params.DeploymentType,
		Location:       params.Location,
		CPUCores:       params.CPUCores,
		MemoryGB:       params.MemoryGB,
		DiskGB:         params.DiskGB,
		MaxTenants:     maxTenants,
		CurrentTenants: 0,
		Status:         status,
	}

	if err := s.db.Create(vps).Error; err != nil {
		return nil, err
	}
	return vps, nil
}

// GetByID 根据ID获取主机
func (s *VPSRegistryService) GetByID(id uint) (*models.VPSInstance, error) {
	var vps models.VPSInstance
	err := s.db.First(&vps, id).Error
	return &vps, err
}

// GetWithFiltersAndPage 组合查询（分页版本）
func (s *VPSRegistryService) GetWithFiltersAndPage(deploymentType, status string, page, pageSize int) ([]*models.VPSInstance, int64, error) {
	var instances []*models.VPSInstance
	var total int64

	query := s.db.Model(&models.VPSInstance{})
	if deploymentType != "" {
		query = query.Where("deployment_type = ?", deploymentType)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("id ASC").Offset(offset).Limit(pageSize).Find(&instances).Error
	if err != nil {
		return nil, 0, err
	}

	return instances, total, nil
}

// GetAvailable 获取所有有空余槽位的共享主机
func (s *VPSRegistryService) GetAvailable() ([]*models.VPSInstance, error) {
	var instances []*models.VPSInstance
	err := s.db.
		Where("deployment_type = ? AND status = ? AND current_tenants < max_tenants",
			models.DeploymentModelShared, models.VPSStatusActive).
		Order("current_tenants ASC, id ASC").
		Find(&instances).Error
	return instances, err
}

// GetStats 获取注册表统计
func (s *VPSRegistryService) GetStats() (*VPSStats, error) {
	stats := &VPSStats{}

	s.db.Model(&models.VPSInstance{}).Count(&stats.Total)
	s.db.Model(&models.VPSInstance{}).Where("deployment_type = ?", models.DeploymentModelShared).Count(&stats.Shared)
	s.db.Model(&models.VPSInstance{}).Where("deployment_type = ?", models.DeploymentModelDedicated).Count(&stats.Dedicated)
	s.db.Model(&models.VPSInstance{}).Where("status = ?", models.VPSStatusActive).Count(&stats.Active)

	type capacityRow struct {
		TotalCapacity int64
		UsedCapacity  int64
	}
	var row capacityRow
	s.db.Model(&models.VPSInstance{}).
		Where("deployment_type = ? AND status = ?", models.DeploymentModelShared, models.VPSStatusActive).
		Select("COALESCE(SUM(max_tenants),0) as total_capacity, COALESCE(SUM(current_tenants),0) as used_capacity").
		Scan(&row)
	stats.TotalCapacity = row.TotalCapacity
	stats.UsedCapacity = row.UsedCapacity

	return stats, nil
}

// UpdateStatus 更新主机生命周期状态
func (s *VPSRegistryService) UpdateStatus(id uint, status string) (*models.VPSInstance, error) {
	if !models.IsValidVPSStatus(status) {
		return nil, fmt.Errorf("无效的VPS状态: %s", status)
	}

	var vps models.VPSInstance
	if err := s.db.First(&vps, id).Error; err != nil {
		return nil, err
	}

	// 仍有租户的主机不能直接下线
	if status == models.VPSStatusDecommissioned && vps.CurrentTenants > 0 {
		return nil, fmt.Errorf("主机上仍有 %d 个租户，不能下线", vps.CurrentTenants)
	}

	vps.Status = status
	if err := s.db.Save(&vps).Error; err != nil {
		return nil, err
	}
	return &vps, nil
}
