package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"hirehub/internal/cloud"
	"hirehub/internal/deployclient"
	"hirehub/internal/models"
	"hirehub/internal/orchestrator"
	"hirehub/pkg/config"
	"hirehub/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProvisionService 租户实例开通入口
// 同步阶段只做校验和组织创建，其余工作在后台goroutine完成
// 后台失败一律落到部署记录的error_message，调用方通过状态接口感知
type ProvisionService struct {
	db           *gorm.DB
	registry     *VPSRegistryService
	deployments  *DeploymentService
	provider     cloud.Provider
	orch         *orchestrator.HostOrchestrator
	deployClient *deployclient.Client
	cfg          config.ProvisionConfig
	log          *logrus.Logger
}

// NewProvisionService 创建开通服务
// provider和deployClient允许为nil（未配置云厂商/未启用部署服务）
func NewProvisionService(
	db *gorm.DB,
	registry *VPSRegistryService,
	deployments *DeploymentService,
	provider cloud.Provider,
	orch *orchestrator.HostOrchestrator,
	deployClient *deployclient.Client,
	cfg config.ProvisionConfig,
) *ProvisionService {
	return &ProvisionService{
		db:           db,
		registry:     registry,
		deployments:  deployments,
		provider:     provider,
		orch:         orch,
		deployClient: deployClient,
		cfg:          cfg,
		log:          logger.GetLogger(),
	}
}

// ProvisionInstanceRequest 开通请求
type ProvisionInstanceRequest struct {
	OrganizationName string `json:"organization_name" binding:"required"`
	Slug             string `json:"slug" binding:"required,subdomain"`
	Tier             string `json:"tier" binding:"required"`
	DeploymentModel  string `json:"deployment_model" binding:"required"`
	VPSID            *uint  `json:"vps_id"`
	AdminEmail       string `json:"admin_email" binding:"required,email"`
	AdminName        string `json:"admin_name" binding:"required"`
}

// ProvisionInstanceResponse 开通响应
// 同步返回即表示受理成功，后续进度需轮询状态接口
type ProvisionInstanceResponse struct {
	DeploymentID   string                `json:"deployment_id"`
	OrganizationID uint                  `json:"organization_id"`
	URL            string                `json:"url"`
	Credentials    *BootstrapCredentials `json:"credentials,omitempty"`
}

// validate 校验请求参数
// gin绑定标签只覆盖HTTP入口，直接调用服务的路径也要完整校验
func (s *ProvisionService) validate(req *ProvisionInstanceRequest) error {
	if strings.TrimSpace(req.OrganizationName) == "" {
		return &ValidationError{Message: "组织名称不能为空"}
	}
	if strings.TrimSpace(req.AdminEmail) == "" {
		return &ValidationError{Message: "管理员邮箱不能为空"}
	}
	if strings.TrimSpace(req.AdminName) == "" {
		return &ValidationError{Message: "管理员姓名不能为空"}
	}
	if !models.IsValidTier(req.Tier) {
		return &ValidationError{Message: "套餐只能是 starter、professional 或 enterprise"}
	}
	if !models.IsValidDeploymentModel(req.DeploymentModel) {
		return &ValidationError{Message: "部署模式只能是 shared 或 dedicated"}
	}
	if !IsValidSubdomain(req.Slug) {
		return &ValidationError{Message: "子域名长度必须在2-50个字符之间，且只能包含小写字母、数字和连字符"}
	}
	return nil
}

// IsValidSubdomain 子域名格式校验，注册为gin的自定义校验器复用
func IsValidSubdomain(slug string) bool {
	if len(slug) < 2 || len(slug) > 50 {
		return false
	}
	if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		return false
	}
	for _, r := range slug {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return false
		}
	}
	return true
}

// ProvisionInstance 受理开通请求
// 组织和初始管理员在同一事务中创建，任一失败全部回滚
// 部署记录在事务提交后创建，后台任务随即启动，本方法立即返回
func (s *ProvisionService) ProvisionInstance(req *ProvisionInstanceRequest) (*ProvisionInstanceResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	// 共享模式先选好主机，容量不足直接拒绝（不创建组织）
	// 实际占用槽位在后台任务里原子完成，选中后仍可能因并发被抢占
	var sharedVPS *models.VPSInstance
	if req.DeploymentModel == models.DeploymentModelShared {
		vps, err := s.pickSharedVPS(req.VPSID)
		if err != nil {
			return nil, err
		}
		sharedVPS = vps
	}

	limits := models.TierLimitsFor(req.Tier)
	featuresJSON, _ := json.Marshal(limits.Features)

	var org *models.Organization
	var credentials *BootstrapCredentials

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// 检查子域名是否已占用
		var count int64
		tx.Model(&models.Organization{}).Where("slug = ?", req.Slug).Count(&count)
		if count > 0 {
			return ErrSlugTaken
		}

		org = &models.Organization{
			Name:            req.OrganizationName,
			Slug:            req.Slug,
			Tier:            req.Tier,
			DeploymentModel: req.DeploymentModel,
			Status:          models.OrgStatusActive,
			MaxUsers:        limits.MaxUsers,
			MaxWorkspaces:   limits.MaxWorkspaces,
			MaxJobs:         limits.MaxJobs,
			MaxCandidates:   limits.MaxCandidates,
			Features:        datatypes.JSON(featuresJSON),
		}
		if err := tx.Create(org).Error; err != nil {
			return err
		}

		// 许可证随组织创建，部署完成回调时激活
		license := &models.License{
			OrganizationID: org.ID,
			Tier:           req.Tier,
			Status:         models.LicenseStatusPending,
		}
		if err := tx.Create(license).Error; err != nil {
			return err
		}

		// 共享模式同步创建初始管理员，凭证随响应返回一次
		// 专属模式的管理员在实例就绪后由后台任务创建
		if req.DeploymentModel == models.DeploymentModelShared {
			tx.Model(&models.User{}).Where("email = ?", req.AdminEmail).Count(&count)
			if count > 0 {
				return ErrEmailTaken
			}

			creds, err := GenerateBootstrapCredentials(req.AdminEmail)
			if err != nil {
				return err
			}

			admin := &models.User{
				OrganizationID: &org.ID,
				Username:       req.AdminEmail,
				Email:          req.AdminEmail,
				PasswordHash:   creds.PasswordHash,
				Name:           req.AdminName,
				Status:         models.UserStatusActive,
				IsOrgAdmin:     true,
			}
			if err := tx.Create(admin).Error; err != nil {
				return err
			}
			credentials = creds
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	// 事务已提交，创建部署记录
	deployment, err := s.deployments.Create(org.ID, req.DeploymentModel, req.Tier, req.Slug)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"deployment_id":    deployment.ID,
		"organization_id":  org.ID,
		"slug":             org.Slug,
		"tier":             org.Tier,
		"deployment_model": org.DeploymentModel,
	}).Info("Instance provisioning accepted")

	// 后台任务，不阻塞调用方；进程重启会丢弃进行中的任务，
	// 卡住的部署由监控任务标记后人工重新开通
	go s.runWorkflow(deployment, org, req, sharedVPS)

	return &ProvisionInstanceResponse{
		DeploymentID:   deployment.ID,
		OrganizationID: org.ID,
		URL:            s.orch.AccessURL(org.Slug),
		Credentials:    credentials,
	}, nil
}

// runWorkflow 后台开通流程入口，所有错误都落到部署记录
func (s *ProvisionService) runWorkflow(deployment *models.InstanceDeployment, org *models.Organization, req *ProvisionInstanceRequest, sharedVPS *models.VPSInstance) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("Provisioning workflow panic: %v", r)
			s.failDeployment(deployment.ID, fmt.Sprintf("开通流程异常: %v", r))
		}
	}()

	if org.DeploymentModel == models.DeploymentModelDedicated {
		s.runDedicatedWorkflow(deployment, org, req)
		return
	}
	s.runSharedWorkflow(deployment, org, req, sharedVPS)
}

// runSharedWorkflow 共享模式：占用预选主机的槽位、主机配置
// 启用部署服务时任务下发给外部服务，不可达则回退本地编排
func (s *ProvisionService) runSharedWorkflow(deployment *models.InstanceDeployment, org *models.Organization, req *ProvisionInstanceRequest, vps *models.VPSInstance) {
	if _, err := s.registry.AssignOrganizationToVPS(org.ID, vps.ID); err != nil {
		s.failDeployment(deployment.ID, fmt.Sprintf("分配VPS失败: %v", err))
		return
	}
	if err := s.deployments.SetVPS(deployment.ID, vps.ID); err != nil {
		s.log.Warnf("Failed to record VPS on deployment %s: %v", deployment.ID, err)
	}

	// 启用外部部署服务时优先走委托路径
	if s.cfg.UseDeploymentService && s.deployClient != nil {
		if s.dispatchToDeploymentService(deployment, org, vps, req) {
			return
		}
		// 服务不可达，回退到本地编排
	}

	if err := s.orch.OnboardShared(deployment.ID, org, vps); err != nil {
		s.failDeployment(deployment.ID, err.Error())
		return
	}

	s.activateDeployment(deployment.ID, org)
}

// pickSharedVPS 手动指定或自动选择共享主机
func (s *ProvisionService) pickSharedVPS(explicitID *uint) (*models.VPSInstance, error) {
	if explicitID != nil {
		vps, err := s.registry.GetByID(*explicitID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &ValidationError{Message: "指定的VPS不存在"}
			}
			return nil, err
		}
		// 手动指定的主机同样必须是有空余槽位的共享主机
		if vps.DeploymentType != models.DeploymentModelShared {
			return nil, &ValidationError{Message: "指定的VPS不是共享主机"}
		}
		if !vps.HasCapacity() {
			return nil, ErrNoCapacity
		}
		return vps, nil
	}
	return s.registry.SelectOptimalSharedVPS()
}

// runDedicatedWorkflow 专属模式：创建VPS、等待就绪、注册、完整安装
func (s *ProvisionService) runDedicatedWorkflow(deployment *models.InstanceDeployment, org *models.Organization, req *ProvisionInstanceRequest) {
	if s.provider == nil {
		s.failDeployment(deployment.ID, "未配置云VPS厂商，无法创建专属实例")
		return
	}

	if err := s.deployments.MarkCreatingVPS(deployment.ID, "正在创建专属VPS"); err != nil {
		s.log.Warnf("Failed to advance deployment %s: %v", deployment.ID, err)
	}

	ctx := context.Background()
	info, err := s.provider.CreateDedicatedVPS(ctx, &cloud.CreateRequest{
		OrganizationID: org.ID,
		Slug:           org.Slug,
		Tier:           org.Tier,
	})
	if err != nil {
		s.failDeployment(deployment.ID, fmt.Sprintf("云厂商创建VPS失败: %v", err))
		return
	}

	if err := s.provider.WaitForReady(ctx, info.Name, s.cfg.VPSReadyTimeout); err != nil {
		// 超时对本次开通是致命的，不注册VPS，由运营方重新开通
		s.failDeployment(deployment.ID, fmt.Sprintf("等待VPS就绪超时: %v", err))
		return
	}

	// IP和主机名已确认，注册进容量注册表
	spec := cloud.SpecForTier(org.Tier)
	vps, err := s.registry.RegisterVPS(&RegisterVPSParams{
		Name:           info.Name,
		IPAddress:      info.IPAddress,
		Hostname:       info.Hostname,
		DeploymentType: models.DeploymentModelDedicated,
		CPUCores:       spec.CPUCores,
		MemoryGB:       spec.MemoryGB,
		DiskGB:         spec.DiskGB,
	})
	if err != nil {
		s.failDeployment(deployment.ID, fmt.Sprintf("注册VPS失败: %v", err))
		return
	}

	if _, err := s.registry.AssignOrganizationToVPS(org.ID, vps.ID); err != nil {
		s.failDeployment(deployment.ID, fmt.Sprintf("分配VPS失败: %v", err))
		return
	}
	if err := s.deployments.SetVPS(deployment.ID, vps.ID); err != nil {
		s.log.Warnf("Failed to record VPS on deployment %s: %v", deployment.ID, err)
	}

	// 启用外部部署服务时，容器编排交给外部服务
	if s.cfg.UseDeploymentService && s.deployClient != nil {
		if s.dispatchToDeploymentService(deployment, org, vps, req) {
			return
		}
	}

	if err := s.deployments.MarkConfiguring(deployment.ID, "正在配置主机"); err != nil {
		s.log.Warnf("Failed to advance deployment %s: %v", deployment.ID, err)
	}
	if err := s.orch.ConfigureDedicated(deployment.ID, org, vps); err != nil {
		s.failDeployment(deployment.ID, err.Error())
		return
	}

	if err := s.deployments.MarkDeploying(deployment.ID, "正在启动租户应用"); err != nil {
		s.log.Warnf("Failed to advance deployment %s: %v", deployment.ID, err)
	}
	if err := s.orch.StartTenantApp(deployment.ID, org, vps); err != nil {
		s.failDeployment(deployment.ID, err.Error())
		return
	}

	// 专属模式的初始管理员在实例就绪后创建，凭证只记录日志
	s.createDedicatedAdmin(org, req)

	s.activateDeployment(deployment.ID, org)
}

// dispatchToDeploymentService 提交任务给外部部署服务
// 返回true表示已受理（完成走回调）；连接失败返回false让调用方回退
func (s *ProvisionService) dispatchToDeploymentService(deployment *models.InstanceDeployment, org *models.Organization, vps *models.VPSInstance, req *ProvisionInstanceRequest) bool {
	if err := s.deployments.MarkDeploying(deployment.ID, "任务已提交外部部署服务"); err != nil {
		s.log.Warnf("Failed to advance deployment %s: %v", deployment.ID, err)
	}

	resp, err := s.deployClient.DeployTenant(&deployclient.DeployTenantRequest{
		VPSID:            vps.ID,
		VPSIP:            vps.IPAddress,
		TenantID:         deployment.ID,
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		OrganizationSlug: org.Slug,
		Tier:             org.Tier,
		AdminEmail:       req.AdminEmail,
		AdminName:        req.AdminName,
	})
	if err != nil {
		if errors.Is(err, deployclient.ErrServiceUnreachable) {
			s.log.WithField("deployment_id", deployment.ID).
				Warnf("Deployment service unreachable, falling back to local orchestrator: %v", err)
			return false
		}
		// 服务明确拒绝任务，按失败处理
		s.failDeployment(deployment.ID, fmt.Sprintf("部署服务拒绝任务: %v", err))
		return true
	}

	s.log.WithFields(logrus.Fields{
		"deployment_id": deployment.ID,
		"job_id":        resp.JobID,
	}).Info("Deployment job accepted by deployment service")
	return true
}

// createDedicatedAdmin 专属实例就绪后创建初始管理员
// 同步响应早已返回，凭证只能通过日志/邮件渠道送达
func (s *ProvisionService) createDedicatedAdmin(org *models.Organization, req *ProvisionInstanceRequest) {
	var count int64
	s.db.Model(&models.User{}).Where("email = ?", req.AdminEmail).Count(&count)
	if count > 0 {
		s.log.Warnf("Admin email %s already registered, skip bootstrap admin for org %d", req.AdminEmail, org.ID)
		return
	}

	creds, err := GenerateBootstrapCredentials(req.AdminEmail)
	if err != nil {
		s.log.Errorf("Failed to generate bootstrap credentials for org %d: %v", org.ID, err)
		return
	}

	admin := &models.User{
		OrganizationID: &org.ID,
		Username:       req.AdminEmail,
		Email:          req.AdminEmail,
		PasswordHash:   creds.PasswordHash,
		Name:           req.AdminName,
		Status:         models.UserStatusActive,
		IsOrgAdmin:     true,
	}
	if err := s.db.Create(admin).Error; err != nil {
		s.log.Errorf("Failed to create bootstrap admin for org %d: %v", org.ID, err)
		return
	}

	// TODO: 接入邮件通知后改为邮件送达，不再写日志
	s.log.WithFields(logrus.Fields{
		"organization_id": org.ID,
		"admin_email":     creds.Email,
	}).Warnf("Bootstrap admin created, temp password: %s", creds.TempPassword)
}

// activateDeployment 标记部署成功并激活许可证
func (s *ProvisionService) activateDeployment(deploymentID string, org *models.Organization) {
	url := s.orch.AccessURL(org.Slug)
	if _, err := s.deployments.MarkActive(deploymentID, url); err != nil {
		s.log.Errorf("Failed to mark deployment %s active: %v", deploymentID, err)
		return
	}

	if err := s.db.Model(&models.License{}).
		Where("organization_id = ? AND status = ?", org.ID, models.LicenseStatusPending).
		Updates(map[string]interface{}{
			"status":       models.LicenseStatusActive,
			"activated_at": time.Now(),
		}).Error; err != nil {
		s.log.Errorf("Failed to activate license for org %d: %v", org.ID, err)
	}

	s.log.WithFields(logrus.Fields{
		"deployment_id":   deploymentID,
		"organization_id": org.ID,
		"access_url":      url,
	}).Info("Instance provisioning completed")
}

// failDeployment 标记部署失败并记录审计日志
func (s *ProvisionService) failDeployment(deploymentID, errorMessage string) {
	if _, err := s.deployments.MarkFailed(deploymentID, errorMessage); err != nil {
		s.log.Errorf("Failed to mark deployment %s failed: %v", deploymentID, err)
		return
	}

	s.log.WithFields(logrus.Fields{
		"deployment_id": deploymentID,
		"error":         errorMessage,
	}).Error("Instance provisioning failed")
}
