package main

import (
	"fmt"
	"os"

	"hirehub/internal/database"
	"hirehub/internal/models"
	"hirehub/pkg/logger"

	"gorm.io/gorm"
)

// seedData 初始化种子数据
func seedData() error {
	appLogger := logger.GetLogger()
	appLogger.Info("Starting seed data initialization...")

	db := database.GetDB()

	// 1. 创建平台管理员
	if err := createPlatformAdmin(db); err != nil {
		return fmt.Errorf("创建平台管理员失败: %v", err)
	}

	// 2. 开发环境注册本机共享主机，方便本地联调
	if err := seedDevSharedVPS(db); err != nil {
		return fmt.Errorf("注册开发共享主机失败: %v", err)
	}

	appLogger.Info("Seed data initialization completed successfully")
	return nil
}

// createPlatformAdmin 创建平台管理员用户
func createPlatformAdmin(db *gorm.DB) error {
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count > 0 {
		logger.GetLogger().Info("平台管理员已存在，跳过创建")
		return nil
	}

	admin := &models.User{
		Username:        "admin",
		Email:           "admin@hirehub.io",
		Name:            "平台管理员",
		Status:          models.UserStatusActive,
		IsPlatformAdmin: true,
	}

	password := os.Getenv("ADMIN_INITIAL_PASSWORD")
	if password == "" {
		password = "Admin@123"
	}
	if err := admin.SetPassword(password); err != nil {
		return err
	}

	if err := db.Create(admin).Error; err != nil {
		return err
	}

	logger.GetLogger().Warn("平台管理员创建成功，请尽快修改初始密码")
	return nil
}

// seedDevSharedVPS 开发模式下注册一台本机共享主机
func seedDevSharedVPS(db *gorm.DB) error {
	if os.Getenv("SERVER_MODE") != "debug" {
		return nil
	}

	var count int64
	db.Model(&models.VPSInstance{}).Where("name = ?", "dev-shared-01").Count(&count)
	if count > 0 {
		return nil
	}

	vps := &models.VPSInstance{
		Name:           "dev-shared-01",
		IPAddress:      "127.0.0.1",
		Hostname:       "localhost",
		DeploymentType: models.DeploymentModelShared,
		Location:       "local",
		CPUCores:       4,
		MemoryGB:       8,
		DiskGB:         100,
		MaxTenants:     10,
		CurrentTenants: 0,
		Status:         models.VPSStatusActive,
	}

	if err := db.Create(vps).Error; err != nil {
		return err
	}

	logger.GetLogger().Info("开发共享主机注册成功: dev-shared-01")
	return nil
}
