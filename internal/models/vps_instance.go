package models

// VPSInstance 主机模型 - 共享或专属VPS
type VPSInstance struct {
	BaseModel
	Name           string `json:"name" gorm:"unique;not null;size:100"`
	IPAddress      string `json:"ip_address" gorm:"size:45"`
	Hostname       string `json:"hostname" gorm:"size:100"`
	DeploymentType string `json:"deployment_type" gorm:"not null;size:20"` // shared/dedicated
	Location       string `json:"location" gorm:"size:50"`

	// 硬件规格
	CPUCores int `json:"cpu_cores"`
	MemoryGB int `json:"memory_gb"`
	DiskGB   int `json:"disk_gb"`

	// 容量计数，只能通过注册/分配操作变更
	MaxTenants     int `json:"max_tenants" gorm:"default:1"`
	CurrentTenants int `json:"current_tenants" gorm:"default:0"`

	Status string `json:"status" gorm:"default:'active';size:20"`
}

// TableName 表名
func (v *VPSInstance) TableName() string {
	return "vps_instances"
}

// VPS状态常量
const (
	VPSStatusActive         = "active"
	VPSStatusProvisioning   = "provisioning"
	VPSStatusMaintenance    = "maintenance"
	VPSStatusDecommissioned = "decommissioned"
)

// IsValidVPSStatus 检查VPS状态是否有效
func IsValidVPSStatus(status string) bool {
	switch status {
	case VPSStatusActive, VPSStatusProvisioning, VPSStatusMaintenance, VPSStatusDecommissioned:
		return true
	default:
		return false
	}
}

// HasCapacity 检查是否还能接收新租户
// 与注册表的SQL筛选条件保持一致：仅active主机计入容量
func (v *VPSInstance) HasCapacity() bool {
	return v.Status == VPSStatusActive && v.CurrentTenants < v.MaxTenants
}
