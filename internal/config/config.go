package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// CloudflareConfig 定义 Email Routing API 的访问配置
type CloudflareConfig struct {
	APIToken string        // API 令牌，只出现在请求头里，绝不写日志
	BaseURL  string        // API 基础地址，测试时可指向本地模拟服务
	Zones    []string      // 受管理的区域ID列表
	Timeout  time.Duration // 单次请求超时，默认 10 秒
}

// SyncConfig 定义同步协调器的触发参数
type SyncConfig struct {
	Interval       time.Duration // 周期触发间隔，默认 5 分钟
	Cooldown       time.Duration // 两次同步的最小间隔，默认 10 秒
	Debounce       time.Duration // 复制推送静默期，默认 2 秒
	StartupRetries int           // 启动同步的有限重试次数，默认 3
	OwnerTag       string        // 本实例创建记录时打的来源标识
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到标准输出
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 存储类型: "mysql"、"postgres" 或 "file"，留空使用内存存储
	DSN             string        // 数据库连接字符串；"file" 类型时为数据目录路径
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义复制存储（Redis）配置
type RedisConfig struct {
	Enabled  bool   // 是否启用复制存储
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// AuthConfig 定义认证相关配置
type AuthConfig struct {
	APIKeyHash    string        // API Key 的 bcrypt 散列，留空关闭认证
	JWTSecret     string        // 会话令牌签名密钥
	JWTIssuer     string        // 会话令牌签发者标识
	SessionExpiry time.Duration // WebSocket 会话令牌有效期，默认 15 分钟
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server     ServerConfig
	Cloudflare CloudflareConfig
	Sync       SyncConfig
	CORS       CORSConfig
	Log        LogConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: ALIASFLARE_
// 例如: ALIASFLARE_CLOUDFLARE_API_TOKEN, ALIASFLARE_CLOUDFLARE_ZONES
func Load() (*Config, error) {
	// .env 文件是可选的，加载失败静默跳过
	loadEnvFile()

	viper.SetEnvPrefix("aliasflare")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("cloudflare.api_token", "")
	viper.SetDefault("cloudflare.base_url", "https://api.cloudflare.com/client/v4")
	viper.SetDefault("cloudflare.zones", "")
	viper.SetDefault("cloudflare.timeout", "10s")
	viper.SetDefault("sync.interval", "5m")
	viper.SetDefault("sync.cooldown", "10s")
	viper.SetDefault("sync.debounce", "2s")
	viper.SetDefault("sync.startup_retries", 3)
	viper.SetDefault("sync.owner_tag", "")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("auth.api_key_hash", "")
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.jwt_issuer", "aliasflare")
	viper.SetDefault("auth.session_expiry", "15m")

	apiToken := viper.GetString("cloudflare.api_token")
	if apiToken == "" {
		return nil, fmt.Errorf("cloudflare.api_token is required: set ALIASFLARE_CLOUDFLARE_API_TOKEN")
	}

	zones := parseList(viper.GetString("cloudflare.zones"))
	if len(zones) == 0 {
		return nil, fmt.Errorf("cloudflare.zones must not be empty: set ALIASFLARE_CLOUDFLARE_ZONES")
	}

	cfTimeout, err := time.ParseDuration(viper.GetString("cloudflare.timeout"))
	if err != nil || cfTimeout <= 0 {
		cfTimeout = 10 * time.Second
	}

	syncInterval, err := time.ParseDuration(viper.GetString("sync.interval"))
	if err != nil || syncInterval <= 0 {
		syncInterval = 5 * time.Minute
	}
	cooldown, err := time.ParseDuration(viper.GetString("sync.cooldown"))
	if err != nil || cooldown <= 0 {
		cooldown = 10 * time.Second
	}
	debounce, err := time.ParseDuration(viper.GetString("sync.debounce"))
	if err != nil || debounce <= 0 {
		debounce = 2 * time.Second
	}

	ownerTag := viper.GetString("sync.owner_tag")
	if ownerTag == "" {
		if hostname, err := os.Hostname(); err == nil {
			ownerTag = hostname
		} else {
			ownerTag = "aliasflare"
		}
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	sessionExpiry, err := time.ParseDuration(viper.GetString("auth.session_expiry"))
	if err != nil || sessionExpiry <= 0 {
		sessionExpiry = 15 * time.Minute
	}

	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret != "" && len(jwtSecret) < 32 {
		return nil, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Cloudflare: CloudflareConfig{
			APIToken: apiToken,
			BaseURL:  viper.GetString("cloudflare.base_url"),
			Zones:    zones,
			Timeout:  cfTimeout,
		},
		Sync: SyncConfig{
			Interval:       syncInterval,
			Cooldown:       cooldown,
			Debounce:       debounce,
			StartupRetries: viper.GetInt("sync.startup_retries"),
			OwnerTag:       ownerTag,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			APIKeyHash:    viper.GetString("auth.api_key_hash"),
			JWTSecret:     jwtSecret,
			JWTIssuer:     viper.GetString("auth.jwt_issuer"),
			SessionExpiry: sessionExpiry,
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（从 backend/ 子目录运行时）
//
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
