package services

import (
	"fmt"
	"time"

	"hirehub/internal/models"
	"hirehub/pkg/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CallbackService 处理外部部署服务的完成回调
// 回调可能重复投递，所有状态变更必须幂等
type CallbackService struct {
	db          *gorm.DB
	deployments *DeploymentService
	baseDomain  string
	log         *logrus.Logger
}

func NewCallbackService(db *gorm.DB, deployments *DeploymentService, baseDomain string) *CallbackService {
	return &CallbackService{
		db:          db,
		deployments: deployments,
		baseDomain:  baseDomain,
		log:         logger.GetLogger(),
	}
}

// DeploymentCallbackRequest 部署服务回调载荷
// TenantID即本系统的部署ID；旧版服务只携带OrganizationID
type DeploymentCallbackRequest struct {
	TenantID       string `json:"tenant_id"`
	OrganizationID uint   `json:"organization_id"`
	Status         string `json:"status" binding:"required"`
	AccessURL      string `json:"access_url"`
	ErrorMessage   string `json:"error_message"`
}

// HandleCallback 处理回调
// 优先按部署ID定位，旧版服务只带组织ID时回退按组织匹配非终态记录
// 任何一条记录都没命中时静默成功（重复投递的回调属于正常情况）
func (s *CallbackService) HandleCallback(req *DeploymentCallbackRequest) error {
	switch req.Status {
	case "completed":
		return s.handleCompleted(req)
	case "failed":
		return s.handleFailed(req)
	default:
		return &ValidationError{Message: fmt.Sprintf("未知的回调状态: %s", req.Status)}
	}
}

func (s *CallbackService) handleCompleted(req *DeploymentCallbackRequest) error {
	accessURL := req.AccessURL
	var orgID uint

	if req.TenantID != "" {
		deployment, err := s.deployments.GetByID(req.TenantID)
		if err == nil {
			orgID = deployment.OrganizationID
			if accessURL == "" {
				accessURL = fmt.Sprintf("https://%s.%s", deployment.Subdomain, s.baseDomain)
			}
			rows, err := s.deployments.MarkActive(req.TenantID, accessURL)
			if err != nil {
				return err
			}
			if rows == 0 {
				s.log.WithField("deployment_id", req.TenantID).
					Info("Callback replay ignored, deployment already terminal")
				return nil
			}
			s.activateLicense(orgID)
			s.logActivated(req.TenantID, orgID, accessURL)
			return nil
		}
		s.log.Warnf("Callback references unknown deployment %s, falling back to organization match", req.TenantID)
	}

	if req.OrganizationID == 0 {
		return &ValidationError{Message: "回调必须携带tenant_id或organization_id"}
	}

	if accessURL == "" {
		var org models.Organization
		if err := s.db.First(&org, req.OrganizationID).Error; err != nil {
			return &ValidationError{Message: "回调指向的组织不存在"}
		}
		accessURL = fmt.Sprintf("https://%s.%s", org.Slug, s.baseDomain)
	}

	rows, err := s.deployments.MarkActiveByOrganization(req.OrganizationID, accessURL)
	if err != nil {
		return err
	}
	if rows == 0 {
		s.log.WithField("organization_id", req.OrganizationID).
			Info("Callback matched no in-flight deployment for organization")
		return nil
	}
	s.activateLicense(req.OrganizationID)
	s.logActivated(req.TenantID, req.OrganizationID, accessURL)
	return nil
}

func (s *CallbackService) handleFailed(req *DeploymentCallbackRequest) error {
	errorMessage := req.ErrorMessage
	if errorMessage == "" {
		errorMessage = "部署服务报告失败，未提供原因"
	}

	if req.TenantID != "" {
		deployment, err := s.deployments.GetByID(req.TenantID)
		if err == nil {
			rows, err := s.deployments.MarkFailed(req.TenantID, errorMessage)
			if err != nil {
				return err
			}
			if rows > 0 {
				s.logFailed(req.TenantID, deployment.OrganizationID, errorMessage)
			}
			return nil
		}
		s.log.Warnf("Callback references unknown deployment %s, falling back to organization match", req.TenantID)
	}

	if req.OrganizationID == 0 {
		return &ValidationError{Message: "回调必须携带tenant_id或organization_id"}
	}

	rows, err := s.deployments.MarkFailedByOrganization(req.OrganizationID, errorMessage)
	if err != nil {
		return err
	}
	if rows > 0 {
		s.logFailed(req.TenantID, req.OrganizationID, errorMessage)
	}
	return nil
}

// activateLicense 部署成功后激活组织许可证
func (s *CallbackService) activateLicense(orgID uint) {
	err := s.db.Model(&models.License{}).
		Where("organization_id = ? AND status = ?", orgID, models.LicenseStatusPending).
		Updates(map[string]interface{}{
			"status":       models.LicenseStatusActive,
			"activated_at": time.Now(),
		}).Error
	if err != nil {
		s.log.Errorf("Failed to activate license for org %d: %v", orgID, err)
	}
}

func (s *CallbackService) logActivated(deploymentID string, orgID uint, accessURL string) {
	s.log.WithFields(logrus.Fields{
		"deployment_id":   deploymentID,
		"organization_id": orgID,
		"access_url":      accessURL,
	}).Info("Deployment activated via callback")
}

func (s *CallbackService) logFailed(deploymentID string, orgID uint, errorMessage string) {
	s.log.WithFields(logrus.Fields{
		"deployment_id":   deploymentID,
		"organization_id": orgID,
		"error":           errorMessage,
	}).Error("Deployment failed via callback")
}
