package services

import (
	"time"

	"hirehub/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeploymentService 部署状态存储
// 状态只能向前推进，所有变更都是单条条件UPDATE，重复投递天然幂等
type DeploymentService struct {
	db *gorm.DB
}

func NewDeploymentService(db *gorm.DB) *DeploymentService {
	return &DeploymentService{db: db}
}

// Create 创建一条新的部署记录，初始状态provisioning
func (s *DeploymentService) Create(orgID uint, deploymentModel, tier, subdomain string) (*models.InstanceDeployment, error) {
	now := time.Now()
	deployment := &models.InstanceDeployment{
		ID:              uuid.New().String(),
		OrganizationID:  orgID,
		DeploymentModel: deploymentModel,
		Status:          models.DeployStatusProvisioning,
		StatusMessage:   "开通流程已创建",
		Subdomain:       subdomain,
		Tier:            tier,
		StartedAt:       &now,
	}

	if err := s.db.Create(deployment).Error; err != nil {
		return nil, err
	}
	return deployment, nil
}

// GetByID 获取部署记录（带组织和VPS关联）
func (s *DeploymentService) GetByID(id string) (*models.InstanceDeployment, error) {
	var deployment models.InstanceDeployment
	err := s.db.Preload("Organization").Preload("VPS").
		Where("id = ?", id).First(&deployment).Error
	if err != nil {
		return nil, err
	}
	return &deployment, nil
}

// GetWithFiltersAndPage 组合查询（分页版本）
func (s *DeploymentService) GetWithFiltersAndPage(status, deploymentModel string, page, pageSize int) ([]*models.InstanceDeployment, int64, error) {
	var deployments []*models.InstanceDeployment
	var total int64

	query := s.db.Model(&models.InstanceDeployment{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if deploymentModel != "" {
		query = query.Where("deployment_model = ?", deploymentModel)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Preload("Organization").Preload("VPS").
		Order("created_at DESC").Offset(offset).Limit(pageSize).
		Find(&deployments).Error
	if err != nil {
		return nil, 0, err
	}

	return deployments, total, nil
}

// SetVPS 记录部署所用的VPS
func (s *DeploymentService) SetVPS(id string, vpsID uint) error {
	return s.db.Model(&models.InstanceDeployment{}).
		Where("id = ?", id).
		Update("vps_id", vpsID).Error
}

// ========== 状态推进 ==========

// MarkCreatingVPS 进入创建VPS阶段
func (s *DeploymentService) MarkCreatingVPS(id, message string) error {
	return s.advance(id, models.DeployStatusCreatingVPS, message,
		[]string{models.DeployStatusProvisioning})
}

// MarkConfiguring 进入主机配置阶段
func (s *DeploymentService) MarkConfiguring(id, message string) error {
	return s.advance(id, models.DeployStatusConfiguring, message,
		[]string{models.DeployStatusProvisioning, models.DeployStatusCreatingVPS})
}

// MarkDeploying 进入应用部署阶段
func (s *DeploymentService) MarkDeploying(id, message string) error {
	return s.advance(id, models.DeployStatusDeploying, message,
		[]string{models.DeployStatusProvisioning, models.DeployStatusCreatingVPS, models.DeployStatusConfiguring})
}

// advance 向前推进状态，仅当当前状态在允许的前驱集合内才生效
// 重复推进同一状态不报错也不产生变化
func (s *DeploymentService) advance(id, to, message string, allowedFrom []string) error {
	return s.db.Model(&models.InstanceDeployment{}).
		Where("id = ? AND status IN ?", id, allowedFrom).
		Updates(map[string]interface{}{
			"status":         to,
			"status_message": message,
		}).Error
}

// MarkActive 部署成功，记录访问地址和完成时间
// 返回受影响行数：已经是终态的记录不会被改写（幂等）
func (s *DeploymentService) MarkActive(id, accessURL string) (int64, error) {
	result := s.db.Model(&models.InstanceDeployment{}).
		Where("id = ? AND status NOT IN ?", id,
			[]string{models.DeployStatusActive, models.DeployStatusFailed}).
		Updates(map[string]interface{}{
			"status":         models.DeployStatusActive,
			"status_message": "租户实例已就绪",
			"access_url":     accessURL,
			"completed_at":   time.Now(),
		})
	return result.RowsAffected, result.Error
}

// MarkActiveByOrganization 按组织ID激活（回调方不知道部署ID时的兼容路径）
// 只命中非终态记录，避免改写已激活的部署
func (s *DeploymentService) MarkActiveByOrganization(orgID uint, accessURL string) (int64, error) {
	result := s.db.Model(&models.InstanceDeployment{}).
		Where("organization_id = ? AND status NOT IN ?", orgID,
			[]string{models.DeployStatusActive, models.DeployStatusFailed}).
		Updates(map[string]interface{}{
			"status":         models.DeployStatusActive,
			"status_message": "租户实例已就绪",
			"access_url":     accessURL,
			"completed_at":   time.Now(),
		})
	return result.RowsAffected, result.Error
}

// MarkFailed 部署失败（终态），记录错误信息
func (s *DeploymentService) MarkFailed(id, errorMessage string) (int64, error) {
	result := s.db.Model(&models.InstanceDeployment{}).
		Where("id = ? AND status NOT IN ?", id,
			[]string{models.DeployStatusActive, models.DeployStatusFailed}).
		Updates(map[string]interface{}{
			"status":         models.DeployStatusFailed,
			"status_message": "开通失败",
			"error_message":  errorMessage,
			"failed_at":      time.Now(),
		})
	return result.RowsAffected, result.Error
}

// MarkFailedByOrganization 按组织ID标记失败（回调兼容路径）
func (s *DeploymentService) MarkFailedByOrganization(orgID uint, errorMessage string) (int64, error) {
	result := s.db.Model(&models.InstanceDeployment{}).
		Where("organization_id = ? AND status NOT IN ?", orgID,
			[]string{models.DeployStatusActive, models.DeployStatusFailed}).
		Updates(map[string]interface{}{
			"status":         models.DeployStatusFailed,
			"status_message": "开通失败",
			"error_message":  errorMessage,
			"failed_at":      time.Now(),
		})
	return result.RowsAffected, result.Error
}

// FindStuck 查找卡住的部署：非终态且超过阈值无任何进展
func (s *DeploymentService) FindStuck(threshold time.Duration) ([]*models.InstanceDeployment, error) {
	var deployments []*models.InstanceDeployment
	cutoff := time.Now().Add(-threshold)
	err := s.db.
		Where("status NOT IN ? AND updated_at < ?",
			[]string{models.DeployStatusActive, models.DeployStatusFailed}, cutoff).
		Find(&deployments).Error
	return deployments, err
}
