package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DeployLogEntry 部署日志条目
type DeployLogEntry struct {
	DeploymentID string    `json:"deployment_id"`
	Step         string    `json:"step"`
	Status       string    `json:"status"` // running/completed/failed
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
}

// DeployLogBuffer 按部署ID追加的日志缓冲，保留窗口过后可清理
type DeployLogBuffer interface {
	Append(deploymentID string, entry DeployLogEntry) error
	Get(deploymentID string) ([]DeployLogEntry, error)
	Purge(deploymentID string) error
	Close() error
}

// Config Redis配置
type Config struct {
	Host      string
	Port      int
	Password  string
	DB        int
	Prefix    string
	Retention time.Duration
}

// ========== Redis实现 ==========

// RedisLogBuffer Redis列表实现，Append刷新过期时间
type RedisLogBuffer struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisLogBuffer 创建Redis日志缓冲
func NewRedisLogBuffer(config *Config) *RedisLogBuffer {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})

	prefix := config.Prefix
	if prefix == "" {
		prefix = "hirehub:deploy"
	}

	retention := config.Retention
	if retention <= 0 {
		retention = time.Hour
	}

	return &RedisLogBuffer{
		client:    client,
		prefix:    prefix,
		retention: retention,
	}
}

// Ping 测试Redis连接
func (b *RedisLogBuffer) Ping() error {
	ctx := context.Background()
	return b.client.Ping(ctx).Err()
}

func (b *RedisLogBuffer) key(deploymentID string) string {
	return fmt.Sprintf("%s:logs:%s", b.prefix, deploymentID)
}

// Append 追加日志条目（右侧入队）
func (b *RedisLogBuffer) Append(deploymentID string, entry DeployLogEntry) error {
	ctx := context.Background()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("序列化日志条目失败: %v", err)
	}

	key := b.key(deploymentID)
	if err := b.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("日志入队失败: %v", err)
	}

	// 每次追加都重置保留窗口
	b.client.Expire(ctx, key, b.retention)
	return nil
}

// Get 读取指定部署的全部日志
func (b *RedisLogBuffer) Get(deploymentID string) ([]DeployLogEntry, error) {
	ctx := context.Background()

	raw, err := b.client.LRange(ctx, b.key(deploymentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取日志失败: %v", err)
	}

	entries := make([]DeployLogEntry, 0, len(raw))
	for _, item := range raw {
		var entry DeployLogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Purge 清理指定部署的日志
func (b *RedisLogBuffer) Purge(deploymentID string) error {
	ctx := context.Background()
	return b.client.Del(ctx, b.key(deploymentID)).Err()
}

// Close 关闭Redis连接
func (b *RedisLogBuffer) Close() error {
	return b.client.Close()
}

// ========== 内存实现 ==========

// MemoryLogBuffer 内存实现，未配置Redis时使用（进程重启即丢失）
type MemoryLogBuffer struct {
	mu      sync.RWMutex
	entries map[string][]DeployLogEntry
}

// NewMemoryLogBuffer 创建内存日志缓冲
func NewMemoryLogBuffer() *MemoryLogBuffer {
	return &MemoryLogBuffer{
		entries: make(map[string][]DeployLogEntry),
	}
}

func (b *MemoryLogBuffer) Append(deploymentID string, entry DeployLogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[deploymentID] = append(b.entries[deploymentID], entry)
	return nil
}

func (b *MemoryLogBuffer) Get(deploymentID string) ([]DeployLogEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entries := make([]DeployLogEntry, len(b.entries[deploymentID]))
	copy(entries, b.entries[deploymentID])
	return entries, nil
}

func (b *MemoryLogBuffer) Purge(deploymentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, deploymentID)
	return nil
}

func (b *MemoryLogBuffer) Close() error {
	return nil
}
