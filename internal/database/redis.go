package database

import (
	"hirehub/pkg/config"
	"hirehub/pkg/logger"
	"hirehub/pkg/queue"
	"sync"
)

var (
	logBufferInstance queue.DeployLogBuffer
	logBufferOnce     sync.Once
)

// GetDeployLogBuffer 获取部署日志缓冲的单例实例
// 配置了Redis时使用Redis列表，否则退化为内存缓冲
func GetDeployLogBuffer() queue.DeployLogBuffer {
	logBufferOnce.Do(func() {
		cfg := config.GetConfig()
		if cfg.Redis.Host == "" {
			logger.GetLogger().Warn("Redis not configured, deployment logs use in-memory buffer")
			logBufferInstance = queue.NewMemoryLogBuffer()
			return
		}

		redisBuffer := queue.NewRedisLogBuffer(&queue.Config{
			Host:      cfg.Redis.Host,
			Port:      cfg.Redis.Port,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Prefix:    cfg.Redis.Prefix,
			Retention: cfg.Provision.DeployLogRetention,
		})
		if err := redisBuffer.Ping(); err != nil {
			logger.GetLogger().Warnf("Redis unreachable, deployment logs use in-memory buffer: %v", err)
			logBufferInstance = queue.NewMemoryLogBuffer()
			return
		}
		logBufferInstance = redisBuffer
	})
	return logBufferInstance
}

// CloseDeployLogBuffer 关闭日志缓冲
func CloseDeployLogBuffer() error {
	if logBufferInstance != nil {
		return logBufferInstance.Close()
	}
	return nil
}
