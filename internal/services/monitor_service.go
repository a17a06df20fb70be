package services

import (
	"time"

	"hirehub/pkg/logger"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// MonitorService 卡住部署监控
// 后台任务随进程重启丢失，超过阈值仍无进展的部署标记失败，
// 由运营方重新发起开通
type MonitorService struct {
	deployments *DeploymentService
	threshold   time.Duration
	cron        *cron.Cron
	log         *logrus.Logger
}

func NewMonitorService(deployments *DeploymentService, threshold time.Duration) *MonitorService {
	return &MonitorService{
		deployments: deployments,
		threshold:   threshold,
		cron:        cron.New(),
		log:         logger.GetLogger(),
	}
}

// Start 启动定时巡检，每分钟一次
func (s *MonitorService) Start() error {
	if _, err := s.cron.AddFunc("@every 1m", s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Infof("Deployment monitor started, stuck threshold %s", s.threshold)
	return nil
}

// Stop 停止巡检，等待进行中的任务结束
func (s *MonitorService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// sweep 标记所有超时无进展的部署
func (s *MonitorService) sweep() {
	stuck, err := s.deployments.FindStuck(s.threshold)
	if err != nil {
		s.log.Errorf("Failed to scan stuck deployments: %v", err)
		return
	}

	for _, d := range stuck {
		rows, err := s.deployments.MarkFailed(d.ID, "开通流程超时无进展，已自动终止")
		if err != nil {
			s.log.Errorf("Failed to mark stuck deployment %s failed: %v", d.ID, err)
			continue
		}
		if rows > 0 {
			s.log.WithFields(logrus.Fields{
				"deployment_id":   d.ID,
				"organization_id": d.OrganizationID,
				"status":          d.Status,
			}).Warn("Stuck deployment marked as failed")
		}
	}
}
