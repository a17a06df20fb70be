package orchestrator

import (
	"fmt"
	"time"

	"hirehub/internal/models"
	"hirehub/pkg/connector"
	"hirehub/pkg/logger"
	"hirehub/pkg/queue"

	"github.com/sirupsen/logrus"
)

// CommandRunner 远程命令执行接口，生产环境为SSH连接器
type CommandRunner interface {
	Run(command string) (string, error)
}

// RunnerFactory 按目标主机创建CommandRunner
type RunnerFactory func(vps *models.VPSInstance) (CommandRunner, error)

// StepError 某个配置步骤失败
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("步骤 %s 失败: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// step 主机配置步骤，命令本身需要幂等（重复执行不产生副作用）
type step struct {
	name    string
	command string
}

// HostOrchestrator 主机配置编排器
// 按固定顺序执行幂等步骤，每步结果写入部署日志缓冲
// 失败时不回滚已执行的步骤，残留配置需要人工清理
type HostOrchestrator struct {
	runnerFor  RunnerFactory
	logs       queue.DeployLogBuffer
	baseDomain string
	log        *logrus.Logger
}

// NewHostOrchestrator 创建编排器
func NewHostOrchestrator(runnerFor RunnerFactory, logs queue.DeployLogBuffer, baseDomain string) *HostOrchestrator {
	return &HostOrchestrator{
		runnerFor:  runnerFor,
		logs:       logs,
		baseDomain: baseDomain,
		log:        logger.GetLogger(),
	}
}

// SSHRunnerFactory 默认的SSH执行器工厂
func SSHRunnerFactory(sshUser, keyPath, keyData string) RunnerFactory {
	return func(vps *models.VPSInstance) (CommandRunner, error) {
		if keyData != "" {
			return connector.NewSSHConnector(vps.IPAddress, 22, sshUser, "", keyData), nil
		}
		if keyPath != "" {
			return connector.NewSSHConnectorFromKeyFile(vps.IPAddress, 22, sshUser, keyPath)
		}
		return nil, fmt.Errorf("未配置SSH私钥，无法连接主机 %s", vps.IPAddress)
	}
}

// AccessURL 租户访问地址
func (o *HostOrchestrator) AccessURL(slug string) string {
	return fmt.Sprintf("https://%s.%s", slug, o.baseDomain)
}

// configureSteps 主机配置阶段：子域名路由和TLS证书
// dedicated为true时先做平台基础安装
func (o *HostOrchestrator) configureSteps(org *models.Organization, dedicated bool) []step {
	domain := fmt.Sprintf("%s.%s", org.Slug, o.baseDomain)
	var steps []step
	if dedicated {
		steps = append(steps, step{
			name:    "bootstrap_host",
			command: "/opt/hirehub/scripts/bootstrap_host.sh",
		})
	}
	return append(steps,
		step{
			name:    "configure_subdomain",
			command: fmt.Sprintf("/opt/hirehub/scripts/provision_subdomain.sh %s %s", org.Slug, domain),
		},
		step{
			name:    "issue_certificate",
			command: fmt.Sprintf("/opt/hirehub/scripts/issue_cert.sh %s", domain),
		},
	)
}

// startSteps 应用启动阶段：拉起租户容器并做健康探测
func (o *HostOrchestrator) startSteps(org *models.Organization) []step {
	domain := fmt.Sprintf("%s.%s", org.Slug, o.baseDomain)
	return []step{
		{
			name:    "start_tenant_app",
			command: fmt.Sprintf("/opt/hirehub/scripts/start_tenant.sh %s %s", org.Slug, org.Tier),
		},
		{
			name:    "health_probe",
			command: fmt.Sprintf("curl -sf --max-time 30 https://%s/healthz", domain),
		},
	}
}

// OnboardShared 在已有共享主机上为新租户做配置并启动应用
func (o *HostOrchestrator) OnboardShared(deploymentID string, org *models.Organization, vps *models.VPSInstance) error {
	steps := append(o.configureSteps(org, false), o.startSteps(org)...)
	return o.runSteps(deploymentID, org, vps, steps)
}

// ConfigureDedicated 专属主机首次配置（基础安装+路由+证书）
func (o *HostOrchestrator) ConfigureDedicated(deploymentID string, org *models.Organization, vps *models.VPSInstance) error {
	return o.runSteps(deploymentID, org, vps, o.configureSteps(org, true))
}

// StartTenantApp 启动租户应用
func (o *HostOrchestrator) StartTenantApp(deploymentID string, org *models.Organization, vps *models.VPSInstance) error {
	return o.runSteps(deploymentID, org, vps, o.startSteps(org))
}

// runSteps 顺序执行步骤，首个失败即终止
func (o *HostOrchestrator) runSteps(deploymentID string, org *models.Organization, vps *models.VPSInstance, steps []step) error {
	runner, err := o.runnerFor(vps)
	if err != nil {
		o.appendLog(deploymentID, "connect", "failed", err.Error())
		return &StepError{Step: "connect", Err: err}
	}

	for _, s := range steps {
		o.appendLog(deploymentID, s.name, "running", s.command)

		output, err := runner.Run(s.command)
		if err != nil {
			o.appendLog(deploymentID, s.name, "failed", fmt.Sprintf("%v: %s", err, output))
			o.log.WithFields(logrus.Fields{
				"deployment_id": deploymentID,
				"org_slug":      org.Slug,
				"vps":           vps.Name,
				"step":          s.name,
			}).Errorf("Host configuration step failed: %v", err)
			return &StepError{Step: s.name, Err: err}
		}

		o.appendLog(deploymentID, s.name, "completed", output)
	}

	o.log.WithFields(logrus.Fields{
		"deployment_id": deploymentID,
		"org_slug":      org.Slug,
		"vps":           vps.Name,
	}).Info("Host configuration completed")
	return nil
}

func (o *HostOrchestrator) appendLog(deploymentID, stepName, status, message string) {
	entry := queue.DeployLogEntry{
		DeploymentID: deploymentID,
		Step:         stepName,
		Status:       status,
		Message:      message,
		Timestamp:    time.Now(),
	}
	if err := o.logs.Append(deploymentID, entry); err != nil {
		o.log.Warnf("Failed to append deployment log: %v", err)
	}
}
