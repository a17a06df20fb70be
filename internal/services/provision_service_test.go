package services

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hirehub/internal/cloud"
	"hirehub/internal/deployclient"
	"hirehub/internal/models"
	"hirehub/internal/orchestrator"
	"hirehub/pkg/config"
	"hirehub/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeRunner 记录执行过的命令，可按子串注入失败
type fakeRunner struct {
	commands []string
	failOn   string
}

func (r *fakeRunner) Run(command string) (string, error) {
	r.commands = append(r.commands, command)
	if r.failOn != "" && strings.Contains(command, r.failOn) {
		return "permission denied", fmt.Errorf("exit status 1")
	}
	return "ok", nil
}

// fakeProvider 可脚本化的云厂商
type fakeProvider struct {
	createErr error
	waitErr   error
	created   []*cloud.CreateRequest
}

func (p *fakeProvider) CreateDedicatedVPS(ctx context.Context, req *cloud.CreateRequest) (*cloud.VPSInfo, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, req)
	return &cloud.VPSInfo{
		Name:      fmt.Sprintf("hh-%s-%d", req.Slug, req.OrganizationID),
		IPAddress: "203.0.113.10",
		Hostname:  fmt.Sprintf("hh-%s-%d.hirehub.test", req.Slug, req.OrganizationID),
	}, nil
}

func (p *fakeProvider) WaitForReady(ctx context.Context, vpsName string, timeout time.Duration) error {
	return p.waitErr
}

type provisionFixture struct {
	db       *gorm.DB
	svc      *ProvisionService
	runner   *fakeRunner
	provider *fakeProvider
}

func newProvisionFixture(t *testing.T) *provisionFixture {
	t.Helper()

	db := setupTestDB(t)
	runner := &fakeRunner{}
	provider := &fakeProvider{}

	orch := orchestrator.NewHostOrchestrator(
		func(vps *models.VPSInstance) (orchestrator.CommandRunner, error) {
			return runner, nil
		},
		queue.NewMemoryLogBuffer(),
		"hirehub.test",
	)

	cfg := config.ProvisionConfig{
		BaseDomain:      "hirehub.test",
		VPSReadyTimeout: time.Second,
		StuckThreshold:  15 * time.Minute,
	}

	svc := NewProvisionService(
		db,
		NewVPSRegistryService(db),
		NewDeploymentService(db),
		provider,
		orch,
		nil,
		cfg,
	)

	return &provisionFixture{db: db, svc: svc, runner: runner, provider: provider}
}

func (f *provisionFixture) deploymentStatus(t *testing.T, id string) string {
	t.Helper()
	deployment, err := f.svc.deployments.GetByID(id)
	require.NoError(t, err)
	return deployment.Status
}

func TestProvisionInstanceValidation(t *testing.T) {
	f := newProvisionFixture(t)

	cases := []struct {
		name string
		req  ProvisionInstanceRequest
	}{
		{"无效套餐", ProvisionInstanceRequest{
			OrganizationName: "Acme", Slug: "acme", Tier: "gold",
			DeploymentModel: models.DeploymentModelShared,
			AdminEmail:      "a@acme.com", AdminName: "A",
		}},
		{"无效部署模式", ProvisionInstanceRequest{
			OrganizationName: "Acme", Slug: "acme", Tier: models.TierStarter,
			DeploymentModel: "hybrid",
			AdminEmail:      "a@acme.com", AdminName: "A",
		}},
		{"子域名太短", ProvisionInstanceRequest{
			OrganizationName: "Acme", Slug: "a", Tier: models.TierStarter,
			DeploymentModel: models.DeploymentModelShared,
			AdminEmail:      "a@acme.com", AdminName: "A",
		}},
		{"子域名含大写", ProvisionInstanceRequest{
			OrganizationName: "Acme", Slug: "Acme", Tier: models.TierStarter,
			DeploymentModel: models.DeploymentModelShared,
			AdminEmail:      "a@acme.com", AdminName: "A",
		}},
		{"子域名连字符开头", ProvisionInstanceRequest{
			OrganizationName: "Acme", Slug: "-acme", Tier: models.TierStarter,
			DeploymentModel: models.DeploymentModelShared,
			AdminEmail:      "a@acme.com", AdminName: "A",
		}},
		{"组织名称为空", ProvisionInstanceRequest{
			OrganizationName: "", Slug: "acme", Tier: models.TierStarter,
			DeploymentModel: models.DeploymentModelShared,
			AdminEmail:      "a@acme.com", AdminName: "A",
		}},
		{"管理员邮箱为空", ProvisionInstanceRequest{
			OrganizationName: "Acme", Slug: "acme", Tier: models.TierStarter,
			DeploymentModel: models.DeploymentModelShared,
			AdminEmail:      "", AdminName: "A",
		}},
		{"管理员姓名为空", ProvisionInstanceRequest{
			OrganizationName: "Acme", Slug: "acme", Tier: models.TierStarter,
			DeploymentModel: models.DeploymentModelShared,
			AdminEmail:      "a@acme.com", AdminName: "  ",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.ProvisionInstance(&tc.req)
			var validationErr *ValidationError
			assert.ErrorAs(t, err, &validationErr)
		})
	}

	// 校验失败不应留下任何组织
	var count int64
	f.db.Model(&models.Organization{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestProvisionInstanceSlugTaken(t *testing.T) {
	f := newProvisionFixture(t)
	createTestOrg(t, f.db, "acme", models.TierStarter, models.DeploymentModelShared)

	_, err := f.svc.ProvisionInstance(&ProvisionInstanceRequest{
		OrganizationName: "Acme 2", Slug: "acme", Tier: models.TierStarter,
		DeploymentModel: models.DeploymentModelShared,
		AdminEmail:      "a@acme.com", AdminName: "A",
	})
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestProvisionInstanceSharedHappyPath(t *testing.T) {
	f := newProvisionFixture(t)
	createTestVPS(t, f.db, "shared-1", models.DeploymentModelShared, 0, 10)

	resp, err := f.svc.ProvisionInstance(&ProvisionInstanceRequest{
		OrganizationName: "Acme Inc", Slug: "acme", Tier: models.TierProfessional,
		DeploymentModel: models.DeploymentModelShared,
		AdminEmail:      "admin@acme.com", AdminName: "Acme Admin",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.DeploymentID)
	assert.Equal(t, "https://acme.hirehub.test", resp.URL)

	// 共享模式同步返回一次性凭证
	require.NotNil(t, resp.Credentials)
	assert.Equal(t, "admin@acme.com", resp.Credentials.Email)
	assert.Len(t, resp.Credentials.TempPassword, 16)

	// 管理员已随事务创建
	var admin models.User
	require.NoError(t, f.db.Where("email = ?", "admin@acme.com").First(&admin).Error)
	assert.True(t, admin.IsOrgAdmin)
	assert.True(t, admin.CheckPassword(resp.Credentials.TempPassword))

	// 许可证处于待激活状态
	var license models.License
	require.NoError(t, f.db.Where("organization_id = ?", resp.OrganizationID).First(&license).Error)
	assert.Equal(t, models.LicenseStatusPending, license.Status)

	// 后台任务完成后部署进入active
	assert.Eventually(t, func() bool {
		return f.deploymentStatus(t, resp.DeploymentID) == models.DeployStatusActive
	}, 3*time.Second, 20*time.Millisecond)

	// 槽位已占用
	var vps models.VPSInstance
	require.NoError(t, f.db.Where("name = ?", "shared-1").First(&vps).Error)
	assert.Equal(t, 1, vps.CurrentTenants)
}

func TestProvisionInstanceNoCapacity(t *testing.T) {
	f := newProvisionFixture(t)

	// 没有任何共享主机，受理阶段直接拒绝
	_, err := f.svc.ProvisionInstance(&ProvisionInstanceRequest{
		OrganizationName: "Acme", Slug: "acme", Tier: models.TierStarter,
		DeploymentModel: models.DeploymentModelShared,
		AdminEmail:      "a@acme.com", AdminName: "A",
	})
	assert.ErrorIs(t, err, ErrNoCapacity)

	// 拒绝时不创建组织
	var count int64
	f.db.Model(&models.Organization{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestProvisionInstanceExplicitVPSMustBeShared(t *testing.T) {
	f := newProvisionFixture(t)
	// 有空余槽位的专属主机也不能接收共享租户
	vps := createTestVPS(t, f.db, "dedicated-1", models.DeploymentModelDedicated, 0, 1)

	_, err := f.svc.ProvisionInstance(&ProvisionInstanceRequest{
		OrganizationName: "Acme", Slug: "acme", Tier: models.TierStarter,
		DeploymentModel: models.DeploymentModelShared,
		VPSID:           &vps.ID,
		AdminEmail:      "a@acme.com", AdminName: "A",
	})
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)

	var count int64
	f.db.Model(&models.Organization{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestProvisionInstanceExplicitVPSWithoutCapacity(t *testing.T) {
	f := newProvisionFixture(t)
	vps := createTestVPS(t, f.db, "shared-1", models.DeploymentModelShared, 10, 10)

	_, err := f.svc.ProvisionInstance(&ProvisionInstanceRequest{
		OrganizationName: "Acme", Slug: "acme", Tier: models.TierStarter,
		DeploymentModel: models.DeploymentModelShared,
		VPSID:           &vps.ID,
		AdminEmail:      "a@acme.com", AdminName: "A",
	})
	assert.ErrorIs(t, err, ErrNoCapacity)
}

func TestSharedWorkflowCapacityRace(t *testing.T) {
	f := newProvisionFixture(t)
	// 选中后槽位被并发占满，后台分配必须失败而不是超卖
	vps := createTestVPS(t, f.db, "shared-1", models.DeploymentModelShared, 10, 10)

	org := createTestOrg(t, f.db, "acme", models.TierStarter, models.DeploymentModelShared)
	deployment, err := f.svc.deployments.Create(org.ID, models.DeploymentModelShared, models.TierStarter, "acme")
	require.NoError(t, err)

	req := &ProvisionInstanceRequest{
		OrganizationName: "Acme", Slug: "acme", Tier: models.TierStarter,
		DeploymentModel: models.DeploymentModelShared,
		AdminEmail:      "a@acme.com", AdminName: "A",
	}
	f.svc.runSharedWorkflow(deployment, org, req, vps)

	reloaded, err := f.svc.deployments.GetByID(deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeployStatusFailed, reloaded.Status)
	assert.NotEmpty(t, reloaded.ErrorMessage)

	// 槽位计数不变
	var fresh models.VPSInstance
	require.NoError(t, f.db.First(&fresh, vps.ID).Error)
	assert.Equal(t, 10, fresh.CurrentTenants)
}

func TestSharedWorkflowStepFailure(t *testing.T) {
	f := newProvisionFixture(t)
	f.runner.failOn = "issue_cert"
	vps := createTestVPS(t, f.db, "shared-1", models.DeploymentModelShared, 0, 10)

	org := createTestOrg(t, f.db, "acme", models.TierStarter, models.DeploymentModelShared)
	deployment, err := f.svc.deployments.Create(org.ID, models.DeploymentModelShared, models.TierStarter, "acme")
	require.NoError(t, err)

	req := &ProvisionInstanceRequest{
		OrganizationName: "Acme", Slug: "acme", Tier: models.TierStarter,
		DeploymentModel: models.DeploymentModelShared,
		AdminEmail:      "a@acme.com", AdminName: "A",
	}
	f.svc.runSharedWorkflow(deployment, org, req, vps)

	reloaded, err := f.svc.deployments.GetByID(deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeployStatusFailed, reloaded.Status)
	assert.Contains(t, reloaded.ErrorMessage, "issue_certificate")
}

func TestSharedWorkflowDeploymentServiceFallback(t *testing.T) {
	f := newProvisionFixture(t)

	// 部署服务地址不可达，流程应回退到本地编排并完成
	srv := httptest.NewServer(nil)
	srv.Close()
	f.svc.cfg.UseDeploymentService = true
	f.svc.deployClient = deployclient.NewClient(srv.URL, "test-secret")

	vps := createTestVPS(t, f.db, "shared-1", models.DeploymentModelShared, 0, 10)
	org := createTestOrg(t, f.db, "acme", models.TierStarter, models.DeploymentModelShared)
	deployment, err := f.svc.deployments.Create(org.ID, models.DeploymentModelShared, models.TierStarter, "acme")
	require.NoError(t, err)

	req := &ProvisionInstanceRequest{
		OrganizationName: "Acme", Slug: "acme", Tier: models.TierStarter,
		DeploymentModel: models.DeploymentModelShared,
		AdminEmail:      "a@acme.com", AdminName: "A",
	}
	f.svc.runSharedWorkflow(deployment, org, req, vps)

	reloaded, err := f.svc.deployments.GetByID(deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeployStatusActive, reloaded.Status)

	// 回退路径确实走了本地编排
	assert.NotEmpty(t, f.runner.commands)
}

func TestDedicatedWorkflowHappyPath(t *testing.T) {
	f := newProvisionFixture(t)

	org := createTestOrg(t, f.db, "bigcorp", models.TierEnterprise, models.DeploymentModelDedicated)
	deployment, err := f.svc.deployments.Create(org.ID, models.DeploymentModelDedicated, models.TierEnterprise, "bigcorp")
	require.NoError(t, err)

	req := &ProvisionInstanceRequest{
		OrganizationName: "BigCorp", Slug: "bigcorp", Tier: models.TierEnterprise,
		DeploymentModel: models.DeploymentModelDedicated,
		AdminEmail:      "admin@bigcorp.com", AdminName: "Big Admin",
	}
	f.svc.runDedicatedWorkflow(deployment, org, req)

	reloaded, err := f.svc.deployments.GetByID(deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeployStatusActive, reloaded.Status)
	assert.Equal(t, "https://bigcorp.hirehub.test", reloaded.AccessURL)

	// 专属主机已注册且固定单租户满载
	var vps models.VPSInstance
	require.NoError(t, f.db.Where("deployment_type = ?", models.DeploymentModelDedicated).First(&vps).Error)
	assert.Equal(t, 1, vps.MaxTenants)
	assert.Equal(t, 1, vps.CurrentTenants)
	assert.Equal(t, "203.0.113.10", vps.IPAddress)

	// 管理员在实例就绪后创建
	var admin models.User
	require.NoError(t, f.db.Where("email = ?", "admin@bigcorp.com").First(&admin).Error)
	assert.True(t, admin.IsOrgAdmin)

	// 基础安装步骤只在专属主机上执行
	joined := strings.Join(f.runner.commands, "\n")
	assert.Contains(t, joined, "bootstrap_host")
	assert.Contains(t, joined, "start_tenant")
}

func TestDedicatedWorkflowReadyTimeout(t *testing.T) {
	f := newProvisionFixture(t)
	f.provider.waitErr = cloud.ErrReadyTimeout

	org := createTestOrg(t, f.db, "bigcorp", models.TierEnterprise, models.DeploymentModelDedicated)
	deployment, err := f.svc.deployments.Create(org.ID, models.DeploymentModelDedicated, models.TierEnterprise, "bigcorp")
	require.NoError(t, err)

	req := &ProvisionInstanceRequest{
		OrganizationName: "BigCorp", Slug: "bigcorp", Tier: models.TierEnterprise,
		DeploymentModel: models.DeploymentModelDedicated,
		AdminEmail:      "admin@bigcorp.com", AdminName: "Big Admin",
	}
	f.svc.runDedicatedWorkflow(deployment, org, req)

	reloaded, err := f.svc.deployments.GetByID(deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeployStatusFailed, reloaded.Status)

	// 超时的主机不进入注册表
	var count int64
	f.db.Model(&models.VPSInstance{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestDedicatedWorkflowWithoutProvider(t *testing.T) {
	f := newProvisionFixture(t)
	f.svc.provider = nil

	org := createTestOrg(t, f.db, "bigcorp", models.TierEnterprise, models.DeploymentModelDedicated)
	deployment, err := f.svc.deployments.Create(org.ID, models.DeploymentModelDedicated, models.TierEnterprise, "bigcorp")
	require.NoError(t, err)

	req := &ProvisionInstanceRequest{
		OrganizationName: "BigCorp", Slug: "bigcorp", Tier: models.TierEnterprise,
		DeploymentModel: models.DeploymentModelDedicated,
		AdminEmail:      "admin@bigcorp.com", AdminName: "Big Admin",
	}
	f.svc.runDedicatedWorkflow(deployment, org, req)

	reloaded, err := f.svc.deployments.GetByID(deployment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeployStatusFailed, reloaded.Status)
}
