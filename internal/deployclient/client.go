package deployclient

import (
	"errors"
	"fmt"
	"time"

	"hirehub/pkg/jwt"

	"github.com/go-resty/resty/v2"
)

// ErrServiceUnreachable 部署服务连接失败，调用方应回退到本地编排
var ErrServiceUnreachable = errors.New("部署服务不可达")

// DeployTenantRequest 下发给部署服务的租户部署任务
type DeployTenantRequest struct {
	VPSID            uint   `json:"vps_id"`
	VPSIP            string `json:"vps_ip"`
	TenantID         string `json:"tenant_id"` // 部署记录ID，回调时原样带回
	OrganizationID   uint   `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
	OrganizationSlug string `json:"organization_slug"`
	Tier             string `json:"tier"`
	AdminEmail       string `json:"admin_email"`
	AdminName        string `json:"admin_name"`
}

// DeployTenantResponse 部署服务受理结果（受理不代表完成，完成走回调）
type DeployTenantResponse struct {
	Accepted bool   `json:"accepted"`
	JobID    string `json:"job_id"`
	Message  string `json:"message"`
}

// HealthStatus 部署服务健康状态
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  int64  `json:"uptime_seconds"`
}

// PortStats 部署服务端口分配统计
type PortStats struct {
	Allocated int `json:"allocated"`
	Available int `json:"available"`
	Total     int `json:"total"`
}

// Client 外部部署服务客户端
type Client struct {
	http   *resty.Client
	secret string
}

// NewClient 创建部署服务客户端
func NewClient(baseURL, secret string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   http,
		secret: secret,
	}
}

// authToken 为每次请求签发短期服务令牌
func (c *Client) authToken() (string, error) {
	return jwt.GenerateServiceToken(c.secret, "hirehub-backend", 5*time.Minute)
}

// DeployTenant 提交部署任务，服务受理后立即返回，实际完成通过回调上报
func (c *Client) DeployTenant(req *DeployTenantRequest) (*DeployTenantResponse, error) {
	token, err := c.authToken()
	if err != nil {
		return nil, fmt.Errorf("签发服务令牌失败: %v", err)
	}

	var result DeployTenantResponse
	resp, err := c.http.R().
		SetAuthToken(token).
		SetHeader("X-Service", "hirehub-backend").
		SetBody(req).
		SetResult(&result).
		Post("/api/v1/deploy")
	if err != nil {
		// 传输层错误：服务不可达，交由调用方回退到本地编排
		return nil, fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("部署服务拒绝任务: HTTP %d %s", resp.StatusCode(), resp.String())
	}

	return &result, nil
}

// HealthCheck 健康检查，无副作用
func (c *Client) HealthCheck() (*HealthStatus, error) {
	var result HealthStatus
	resp, err := c.http.R().
		SetResult(&result).
		Get("/health")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("部署服务异常: HTTP %d", resp.StatusCode())
	}
	return &result, nil
}

// GetPortStats 查询端口分配统计，无副作用
func (c *Client) GetPortStats() (*PortStats, error) {
	token, err := c.authToken()
	if err != nil {
		return nil, fmt.Errorf("签发服务令牌失败: %v", err)
	}

	var result PortStats
	resp, err := c.http.R().
		SetAuthToken(token).
		SetResult(&result).
		Get("/api/v1/ports")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("部署服务异常: HTTP %d", resp.StatusCode())
	}
	return &result, nil
}
