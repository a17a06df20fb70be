package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig `mapstructure:"jwt"`
	Log       LogConfig
	Redis     RedisConfig
	Provision ProvisionConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey       string `mapstructure:"secret_key"`       // JWT密钥
	TokenDuration   string `mapstructure:"token_duration"`   // 令牌有效期，如 "24h"
	RefreshDuration string `mapstructure:"refresh_duration"` // 刷新令牌有效期
}

type LogConfig struct {
	Level      string
	FilePath   string
	MaxSize    int    // MB
	MaxBackups int    // 保留的备份文件数
	MaxAge     int    // 保留天数
	Compress   bool   // 是否压缩
	Format     string // json 或 text
}

type RedisConfig struct {
	Host     string // Redis主机地址，为空时部署日志退化为内存缓冲
	Port     int    // Redis端口
	Password string // Redis密码
	DB       int    // Redis数据库编号
	Prefix   string // 部署日志键前缀
}

// ProvisionConfig 租户实例开通相关配置
type ProvisionConfig struct {
	BaseDomain              string        // 租户子域名后缀，如 hirehub.io
	UseDeploymentService    bool          // 是否启用外部部署服务
	DeploymentServiceURL    string        // 外部部署服务地址
	DeploymentServiceSecret string        // 部署回调JWT密钥
	HCloudToken             string        // 云VPS厂商API Token
	SSHUser                 string        // 主机配置SSH用户
	SSHKeyPath              string        // SSH私钥文件路径
	SSHPrivateKey           string        // SSH私钥内容（优先于文件路径）
	VPSReadyTimeout         time.Duration // 专属VPS就绪等待超时
	DeployLogRetention      time.Duration // 部署日志保留时长
	StuckThreshold          time.Duration // 部署多久无进展视为卡住
}

type CORSConfig struct {
	AllowOrigins     []string // 允许的源
	AllowMethods     []string // 允许的HTTP方法
	AllowHeaders     []string // 允许的请求头
	ExposeHeaders    []string // 暴露的响应头
	AllowCredentials bool     // 是否允许携带凭证
	MaxAge           int      // 预检请求缓存时间（小时）
}

// 全局配置实例和同步锁
var (
	globalConfig *Config
	once         sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		var err error
		globalConfig, err = LoadConfig()
		if err != nil {
			// 如果加载失败，可以panic或使用默认配置
			panic("Failed to load config: " + err.Error())
		}
	})
	return globalConfig
}

// 获取环境变量，如果不存在则使用默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// 获取环境变量转换为int
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// 获取环境变量转换为bool
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}

// 获取环境变量转换为time.Duration
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// 获取环境变量转换为字符串数组（逗号分隔）
func getEnvAsStringArray(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		// 处理逗号分隔的字符串，去除空格
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

func LoadConfig() (*Config, error) {
	// .env不存在时直接读环境变量
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Mode: getEnv("SERVER_MODE", "debug"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "hirehub"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey:       getEnv("JWT_SECRET_KEY", "default-secret-change-me"),
			TokenDuration:   getEnv("JWT_TOKEN_DURATION", "24h"),
			RefreshDuration: getEnv("JWT_REFRESH_DURATION", "7d"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/app.log"),
			MaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 7),
			MaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),
			Compress:   getEnvAsBool("LOG_COMPRESS", true),
			Format:     getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "hirehub:deploy"),
		},
		Provision: ProvisionConfig{
			BaseDomain:              getEnv("BASE_DOMAIN", "hirehub.io"),
			UseDeploymentService:    getEnvAsBool("USE_DEPLOYMENT_SERVICE", false),
			DeploymentServiceURL:    getEnv("DEPLOYMENT_SERVICE_URL", "http://localhost:9090"),
			DeploymentServiceSecret: getEnv("DEPLOYMENT_SERVICE_SECRET", "deployment-secret-change-me"),
			HCloudToken:             getEnv("HCLOUD_TOKEN", ""),
			SSHUser:                 getEnv("VPS_SSH_USER", "root"),
			SSHKeyPath:              getEnv("VPS_SSH_KEY_PATH", ""),
			SSHPrivateKey:           getEnv("VPS_SSH_PRIVATE_KEY", ""),
			VPSReadyTimeout:         getEnvAsDuration("VPS_READY_TIMEOUT", 5*time.Minute),
			DeployLogRetention:      getEnvAsDuration("DEPLOY_LOG_RETENTION", time.Hour),
			StuckThreshold:          getEnvAsDuration("PROVISION_STUCK_THRESHOLD", 15*time.Minute),
		},
		CORS: CORSConfig{
			AllowOrigins:     getEnvAsStringArray("CORS_ALLOW_ORIGINS", []string{"*"}),
			AllowMethods:     getEnvAsStringArray("CORS_ALLOW_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
			AllowHeaders:     getEnvAsStringArray("CORS_ALLOW_HEADERS", []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With", "X-Service"}),
			ExposeHeaders:    getEnvAsStringArray("CORS_EXPOSE_HEADERS", []string{"Content-Length", "Content-Type"}),
			AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           getEnvAsInt("CORS_MAX_AGE", 12),
		},
	}

	return config, nil
}
