package models

import (
	"time"
)

// License 组织许可证记录，部署完成回调时顺带激活
type License struct {
	BaseModel
	OrganizationID uint       `json:"organization_id" gorm:"not null;index"`
	Tier           string     `json:"tier" gorm:"not null;size:20"`
	Status         string     `json:"status" gorm:"default:'pending';size:20"`
	ActivatedAt    *time.Time `json:"activated_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// TableName 表名
func (l *License) TableName() string {
	return "licenses"
}

// 许可证状态常量
const (
	LicenseStatusPending = "pending"
	LicenseStatusActive  = "active"
	LicenseStatusExpired = "expired"
	LicenseStatusRevoked = "revoked"
)
