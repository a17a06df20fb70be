package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidTier(t *testing.T) {
	assert.True(t, IsValidTier(TierStarter))
	assert.True(t, IsValidTier(TierProfessional))
	assert.True(t, IsValidTier(TierEnterprise))
	assert.False(t, IsValidTier("gold"))
	assert.False(t, IsValidTier(""))
}

func TestIsValidDeploymentModel(t *testing.T) {
	assert.True(t, IsValidDeploymentModel(DeploymentModelShared))
	assert.True(t, IsValidDeploymentModel(DeploymentModelDedicated))
	assert.False(t, IsValidDeploymentModel("hybrid"))
}

func TestTierLimitsFor(t *testing.T) {
	starter := TierLimitsFor(TierStarter)
	professional := TierLimitsFor(TierProfessional)
	enterprise := TierLimitsFor(TierEnterprise)

	// 套餐升级后各项配额只增不减
	assert.Greater(t, professional.MaxUsers, starter.MaxUsers)
	assert.Greater(t, enterprise.MaxUsers, professional.MaxUsers)
	assert.Greater(t, enterprise.MaxCandidates, starter.MaxCandidates)

	// 未知套餐按最低配额处理
	assert.Equal(t, starter, TierLimitsFor("unknown"))
}

func TestVPSHasCapacity(t *testing.T) {
	vps := &VPSInstance{MaxTenants: 2, CurrentTenants: 1, Status: VPSStatusActive}
	assert.True(t, vps.HasCapacity())

	vps.CurrentTenants = 2
	assert.False(t, vps.HasCapacity())

	vps.CurrentTenants = 0
	vps.Status = VPSStatusMaintenance
	assert.False(t, vps.HasCapacity())
}
