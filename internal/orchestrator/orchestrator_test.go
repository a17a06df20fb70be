package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"hirehub/internal/models"
	"hirehub/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRunner struct {
	commands []string
	failOn   string
}

func (r *scriptedRunner) Run(command string) (string, error) {
	r.commands = append(r.commands, command)
	if r.failOn != "" && strings.Contains(command, r.failOn) {
		return "boom", errors.New("exit status 1")
	}
	return "done", nil
}

func newTestOrchestrator(runner CommandRunner) (*HostOrchestrator, *queue.MemoryLogBuffer) {
	logs := queue.NewMemoryLogBuffer()
	orch := NewHostOrchestrator(
		func(vps *models.VPSInstance) (CommandRunner, error) {
			return runner, nil
		},
		logs,
		"hirehub.test",
	)
	return orch, logs
}

func testOrg() *models.Organization {
	return &models.Organization{
		Slug: "acme",
		Tier: models.TierStarter,
	}
}

func testVPS() *models.VPSInstance {
	return &models.VPSInstance{
		Name:      "shared-1",
		IPAddress: "10.0.0.1",
	}
}

func TestAccessURL(t *testing.T) {
	orch, _ := newTestOrchestrator(&scriptedRunner{})
	assert.Equal(t, "https://acme.hirehub.test", orch.AccessURL("acme"))
}

func TestOnboardSharedRunsAllSteps(t *testing.T) {
	runner := &scriptedRunner{}
	orch, logs := newTestOrchestrator(runner)

	err := orch.OnboardShared("dep-1", testOrg(), testVPS())
	require.NoError(t, err)

	joined := strings.Join(runner.commands, "\n")
	// 共享主机不做基础安装
	assert.NotContains(t, joined, "bootstrap_host")
	assert.Contains(t, joined, "provision_subdomain.sh acme acme.hirehub.test")
	assert.Contains(t, joined, "issue_cert.sh acme.hirehub.test")
	assert.Contains(t, joined, "start_tenant.sh acme starter")
	assert.Contains(t, joined, "https://acme.hirehub.test/healthz")

	// 每步都有running和completed两条日志
	entries, err := logs.Get("dep-1")
	require.NoError(t, err)
	assert.Len(t, entries, 8)
	assert.Equal(t, "running", entries[0].Status)
	assert.Equal(t, "completed", entries[len(entries)-1].Status)
}

func TestConfigureDedicatedIncludesBootstrap(t *testing.T) {
	runner := &scriptedRunner{}
	orch, _ := newTestOrchestrator(runner)

	err := orch.ConfigureDedicated("dep-1", testOrg(), testVPS())
	require.NoError(t, err)

	require.NotEmpty(t, runner.commands)
	assert.Contains(t, runner.commands[0], "bootstrap_host.sh")
	// 配置阶段不启动应用
	assert.NotContains(t, strings.Join(runner.commands, "\n"), "start_tenant")
}

func TestRunStepsStopsAtFirstFailure(t *testing.T) {
	runner := &scriptedRunner{failOn: "issue_cert"}
	orch, logs := newTestOrchestrator(runner)

	err := orch.OnboardShared("dep-1", testOrg(), testVPS())
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "issue_certificate", stepErr.Step)

	// 失败步骤之后的命令不再执行
	assert.NotContains(t, strings.Join(runner.commands, "\n"), "start_tenant")

	entries, lerr := logs.Get("dep-1")
	require.NoError(t, lerr)
	last := entries[len(entries)-1]
	assert.Equal(t, "failed", last.Status)
	assert.Equal(t, "issue_certificate", last.Step)
}

func TestRunStepsConnectFailure(t *testing.T) {
	logs := queue.NewMemoryLogBuffer()
	orch := NewHostOrchestrator(
		func(vps *models.VPSInstance) (CommandRunner, error) {
			return nil, fmt.Errorf("未配置SSH私钥，无法连接主机 %s", vps.IPAddress)
		},
		logs,
		"hirehub.test",
	)

	err := orch.OnboardShared("dep-1", testOrg(), testVPS())
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "connect", stepErr.Step)
}
