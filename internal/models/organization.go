package models

import (
	"gorm.io/datatypes"
)

// Organization 租户组织模型 - 贫血模型，只包含数据结构
type Organization struct {
	BaseModel
	Name            string `json:"name" gorm:"not null;size:100"`
	Slug            string `json:"slug" gorm:"unique;not null;size:50;index"` // 子域名，创建后不可变
	Tier            string `json:"tier" gorm:"not null;size:20"`
	DeploymentModel string `json:"deployment_model" gorm:"not null;size:20"`
	Status          string `json:"status" gorm:"default:'active';size:20"`

	// 创建时从套餐快照的资源上限
	MaxUsers      int            `json:"max_users"`
	MaxWorkspaces int            `json:"max_workspaces"`
	MaxJobs       int            `json:"max_jobs"`
	MaxCandidates int            `json:"max_candidates"`
	Features      datatypes.JSON `json:"features"`

	// 共享模式下指向所在VPS
	VPSID *uint `json:"vps_id" gorm:"index"`
}

// TableName 表名
func (o *Organization) TableName() string {
	return "organizations"
}

// 组织状态常量
const (
	OrgStatusActive   = "active"
	OrgStatusInactive = "inactive"
)

// 部署模式常量
const (
	DeploymentModelShared    = "shared"
	DeploymentModelDedicated = "dedicated"
)

// 套餐常量
const (
	TierStarter      = "starter"
	TierProfessional = "professional"
	TierEnterprise   = "enterprise"
)

// IsValidTier 检查套餐名是否有效
func IsValidTier(tier string) bool {
	switch tier {
	case TierStarter, TierProfessional, TierEnterprise:
		return true
	default:
		return false
	}
}

// IsValidDeploymentModel 检查部署模式是否有效
func IsValidDeploymentModel(model string) bool {
	switch model {
	case DeploymentModelShared, DeploymentModelDedicated:
		return true
	default:
		return false
	}
}

// TierLimits 套餐资源上限快照
type TierLimits struct {
	MaxUsers      int      `json:"max_users"`
	MaxWorkspaces int      `json:"max_workspaces"`
	MaxJobs       int      `json:"max_jobs"`
	MaxCandidates int      `json:"max_candidates"`
	Features      []string `json:"features"`
}

// TierLimitsFor 根据套餐名返回资源上限
func TierLimitsFor(tier string) TierLimits {
	switch tier {
	case TierEnterprise:
		return TierLimits{
			MaxUsers:      500,
			MaxWorkspaces: 50,
			MaxJobs:       1000,
			MaxCandidates: 100000,
			Features:      []string{"ats", "interviews", "reports", "api_access", "sso", "custom_branding"},
		}
	case TierProfessional:
		return TierLimits{
			MaxUsers:      100,
			MaxWorkspaces: 10,
			MaxJobs:       200,
			MaxCandidates: 20000,
			Features:      []string{"ats", "interviews", "reports", "api_access"},
		}
	default: // starter
		return TierLimits{
			MaxUsers:      20,
			MaxWorkspaces: 3,
			MaxJobs:       30,
			MaxCandidates: 2000,
			Features:      []string{"ats", "interviews"},
		}
	}
}
