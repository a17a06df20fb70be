package models

import (
	"time"
)

// InstanceDeployment 租户实例部署记录 - 开通流程的持久化状态机
// 每次开通尝试创建一条新记录，失败后重新开通不复用旧记录
type InstanceDeployment struct {
	ID              string     `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrganizationID  uint       `json:"organization_id" gorm:"not null;index"`
	DeploymentModel string     `json:"deployment_model" gorm:"not null;size:20"`
	Status          string     `json:"status" gorm:"not null;size:20;index"`
	StatusMessage   string     `json:"status_message" gorm:"size:255"`
	ErrorMessage    string     `json:"error_message" gorm:"size:1000"`
	Subdomain       string     `json:"subdomain" gorm:"size:50"`
	Tier            string     `json:"tier" gorm:"size:20"`
	VPSID           *uint      `json:"vps_id" gorm:"index"`
	AccessURL       string     `json:"access_url" gorm:"size:255"`
	StartedAt       *time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	FailedAt        *time.Time `json:"failed_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	// 关联
	Organization *Organization `json:"organization,omitempty" gorm:"foreignKey:OrganizationID"`
	VPS          *VPSInstance  `json:"vps,omitempty" gorm:"foreignKey:VPSID"`
}

// TableName 表名
func (d *InstanceDeployment) TableName() string {
	return "instance_deployments"
}

// 部署状态常量，状态只能向前推进，active/failed为终态
const (
	DeployStatusProvisioning = "provisioning"
	DeployStatusCreatingVPS  = "creating_vps"
	DeployStatusConfiguring  = "configuring"
	DeployStatusDeploying    = "deploying"
	DeployStatusActive       = "active"
	DeployStatusFailed       = "failed"
)

// IsTerminalDeployStatus 是否为终态
func IsTerminalDeployStatus(status string) bool {
	return status == DeployStatusActive || status == DeployStatusFailed
}

// deployStatusOrder 状态推进顺序，用于拒绝回退转换
var deployStatusOrder = map[string]int{
	DeployStatusProvisioning: 0,
	DeployStatusCreatingVPS:  1,
	DeployStatusConfiguring:  2,
	DeployStatusDeploying:    3,
	DeployStatusActive:       4,
	DeployStatusFailed:       5,
}

// CanTransition 检查状态转换是否合法（只允许向前，终态不可再变）
func CanTransition(from, to string) bool {
	if IsTerminalDeployStatus(from) {
		return false
	}
	if to == DeployStatusFailed {
		return true
	}
	fromOrder, ok1 := deployStatusOrder[from]
	toOrder, ok2 := deployStatusOrder[to]
	if !ok1 || !ok2 {
		return false
	}
	return toOrder > fromOrder
}
