package cloud

import (
	"context"
	"fmt"
	"time"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// HetznerProvider 基于Hetzner Cloud API的Provider实现
type HetznerProvider struct {
	client       *hcloud.Client
	location     string
	image        string
	pollInterval time.Duration
}

// HetznerOption 配置HetznerProvider
type HetznerOption func(*HetznerProvider)

// WithHCloudClient 注入自定义hcloud客户端（测试用）
func WithHCloudClient(client *hcloud.Client) HetznerOption {
	return func(p *HetznerProvider) {
		p.client = client
	}
}

// WithLocation 设置机房位置
func WithLocation(location string) HetznerOption {
	return func(p *HetznerProvider) {
		p.location = location
	}
}

// NewHetznerProvider 创建Hetzner厂商客户端
func NewHetznerProvider(token string, opts ...HetznerOption) *HetznerProvider {
	p := &HetznerProvider{
		client:       hcloud.NewClient(hcloud.WithToken(token)),
		location:     "nbg1",
		image:        "ubuntu-24.04",
		pollInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateDedicatedVPS 按套餐规格创建专属VPS
func (p *HetznerProvider) CreateDedicatedVPS(ctx context.Context, req *CreateRequest) (*VPSInfo, error) {
	spec := SpecForTier(req.Tier)
	name := fmt.Sprintf("hh-%s-%d", req.Slug, req.OrganizationID)

	opts := hcloud.ServerCreateOpts{
		Name:       name,
		ServerType: &hcloud.ServerType{Name: spec.ServerType},
		Image:      &hcloud.Image{Name: p.image},
		Location:   &hcloud.Location{Name: p.location},
		Labels: map[string]string{
			"managed-by": "hirehub",
			"org-slug":   req.Slug,
			"tier":       req.Tier,
		},
	}

	result, _, err := p.client.Server.Create(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("创建VPS失败: %w", err)
	}

	info := &VPSInfo{
		Name:     name,
		Hostname: name,
	}
	if result.Server != nil && !result.Server.PublicNet.IPv4.IsUnspecified() {
		info.IPAddress = result.Server.PublicNet.IPv4.IP.String()
	}

	return info, nil
}

// WaitForReady 轮询直到主机running，超出timeout返回ErrReadyTimeout
func (p *HetznerProvider) WaitForReady(ctx context.Context, vpsName string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		server, _, err := p.client.Server.GetByName(ctx, vpsName)
		if err != nil {
			return fmt.Errorf("查询VPS状态失败: %w", err)
		}
		if server != nil && server.Status == hcloud.ServerStatusRunning {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrReadyTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
}
