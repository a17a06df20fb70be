package cloud

import (
	"context"
	"errors"
	"time"

	"hirehub/internal/models"
)

// ErrReadyTimeout VPS就绪等待超时，对本次开通是致命错误
var ErrReadyTimeout = errors.New("等待VPS就绪超时")

// VPSInfo 创建成功后返回的主机信息
type VPSInfo struct {
	Name      string `json:"name"`
	IPAddress string `json:"ip_address"`
	Hostname  string `json:"hostname"`
}

// CreateRequest 创建专属VPS的请求
type CreateRequest struct {
	OrganizationID uint
	Slug           string
	Tier           string
}

// Provider 云VPS厂商客户端接口
type Provider interface {
	// CreateDedicatedVPS 创建专属VPS，返回名称和地址信息
	CreateDedicatedVPS(ctx context.Context, req *CreateRequest) (*VPSInfo, error)
	// WaitForReady 轮询厂商状态直到主机就绪或超时（超时返回ErrReadyTimeout）
	WaitForReady(ctx context.Context, vpsName string, timeout time.Duration) error
}

// HardwareSpec 套餐对应的硬件规格
type HardwareSpec struct {
	CPUCores   int
	MemoryGB   int
	DiskGB     int
	ServerType string // 厂商机型标识
}

// SpecForTier 套餐到硬件规格的固定映射
func SpecForTier(tier string) HardwareSpec {
	switch tier {
	case models.TierEnterprise:
		return HardwareSpec{CPUCores: 4, MemoryGB: 8, DiskGB: 200, ServerType: "cpx41"}
	case models.TierProfessional:
		return HardwareSpec{CPUCores: 2, MemoryGB: 4, DiskGB: 100, ServerType: "cpx21"}
	default: // starter
		return HardwareSpec{CPUCores: 1, MemoryGB: 2, DiskGB: 50, ServerType: "cx22"}
	}
}
