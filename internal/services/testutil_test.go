package services

import (
	"testing"

	"hirehub/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupTestDB 每个测试独立的内存数据库
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.VPSInstance{},
		&models.InstanceDeployment{},
		&models.License{},
	)
	require.NoError(t, err)

	return db
}

// createTestVPS 插入一台测试主机
func createTestVPS(t *testing.T, db *gorm.DB, name string, deploymentType string, current, max int) *models.VPSInstance {
	t.Helper()

	vps := &models.VPSInstance{
		Name:           name,
		IPAddress:      "10.0.0.1",
		DeploymentType: deploymentType,
		CPUCores:       4,
		MemoryGB:       8,
		DiskGB:         100,
		MaxTenants:     max,
		CurrentTenants: current,
		Status:         models.VPSStatusActive,
	}
	require.NoError(t, db.Create(vps).Error)
	return vps
}

// createTestOrg 插入一个测试组织
func createTestOrg(t *testing.T, db *gorm.DB, slug, tier, deploymentModel string) *models.Organization {
	t.Helper()

	org := &models.Organization{
		Name:            "Org " + slug,
		Slug:            slug,
		Tier:            tier,
		DeploymentModel: deploymentModel,
		Status:          models.OrgStatusActive,
	}
	require.NoError(t, db.Create(org).Error)
	return org
}
