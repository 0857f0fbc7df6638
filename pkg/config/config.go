// Package config 提供 TOML 配置加载、环境变量覆盖与校验
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 基础配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// gRPC 服务配置
	GRPC GRPCConfig `mapstructure:"grpc"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 追踪配置
	Tracing TracingConfig `mapstructure:"tracing"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	// 身份配置
	Auth AuthConfig `mapstructure:"auth"`
	// 账本业务配置
	Ledger LedgerConfig `mapstructure:"ledger"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// GRPCConfig gRPC 服务配置
type GRPCConfig struct {
	Host                 string `mapstructure:"host"`
	Port                 int    `mapstructure:"port"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
	// 连接空闲超时（秒）
	IdleTimeout int `mapstructure:"idle_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql, postgres, memory
	Driver string `mapstructure:"driver"`
	// 数据源名称
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	// 是否启用 SQL 日志
	LogEnabled bool `mapstructure:"log_enabled"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
	// 启动时自动迁移表结构
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 为 false 时使用进程内锁与限流，不缓存分析结果
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ConnTimeout  int    `mapstructure:"conn_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// Addr 返回 host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// Broker 地址列表，为空时通知只写日志
	Brokers []string `mapstructure:"brokers"`
	// 交易完成通知的 topic
	NotificationTopic string `mapstructure:"notification_topic"`
	// 写超时（毫秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// OTel 收集器端点
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	SamplingRate      float64 `mapstructure:"sampling_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// 每秒请求数
	QPS   int `mapstructure:"qps"`
	Burst int `mapstructure:"burst"`
}

// AuthConfig 调用方身份配置，凭证校验由外部认证服务完成
type AuthConfig struct {
	// HMAC 密钥，为空时不解析 Bearer token
	JWTSecret string `mapstructure:"jwt_secret"`
	// 受信网关写入的用户 ID 头
	UserHeader string `mapstructure:"user_header"`
}

// LedgerConfig 账本业务配置
type LedgerConfig struct {
	// 按账户类型的最低开户金额（十进制字符串）
	MinBalance map[string]string `mapstructure:"min_balance"`
	// 开户策略：one_per_type, unlimited, tiered, expr
	AccountPolicy string `mapstructure:"account_policy"`
	// account_policy = expr 时的规则表达式
	PolicyExpr string `mapstructure:"policy_expr"`
	// tiered 策略下各等级允许的同类型活跃账户数
	TierLimits map[string]int `mapstructure:"tier_limits"`
	// 获取账户锁的超时（毫秒）
	LockTimeout int `mapstructure:"lock_timeout"`
	// 业务拒绝时是否记录 failed 交易
	RecordFailed bool `mapstructure:"record_failed"`
	// 分类统计保留的前 N 项
	TopCategories int `mapstructure:"top_categories"`
	// 通知队列长度
	NotifyBuffer int `mapstructure:"notify_buffer"`
	// 分析结果缓存时间（秒）
	AnalyticsCacheTTL int `mapstructure:"analytics_cache_ttl"`
	// 计息任务间隔（秒），0 表示不启动
	InterestInterval int `mapstructure:"interest_interval"`
	// 雪花算法节点号，0 表示使用公共库全局生成器
	NodeID int64 `mapstructure:"node_id"`
}

// Load 从 TOML 文件加载配置，支持环境变量覆盖，文件必须存在
func Load(configPath string) (*Config, error) {
	return load(configPath, true)
}

// LoadWithDefaults 从 TOML 文件加载配置，文件不存在时只使用默认值与环境变量
func LoadWithDefaults(configPath string) (*Config, error) {
	return load(configPath, false)
}

func load(configPath string, mustExist bool) (*Config, error) {
	// .env 只补充尚未设置的环境变量
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil && mustExist {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 设置环境变量前缀，APP_DATABASE_DSN 覆盖 database.dsn
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.GRPC.Port)
	}
	switch c.Database.Driver {
	case "memory":
	case "mysql", "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	switch c.Ledger.AccountPolicy {
	case "one_per_type", "unlimited", "tiered":
	case "expr":
		if c.Ledger.PolicyExpr == "" {
			return fmt.Errorf("ledger.policy_expr is required for expr policy")
		}
	default:
		return fmt.Errorf("unsupported account policy: %s", c.Ledger.AccountPolicy)
	}
	if c.Ledger.LockTimeout <= 0 {
		return fmt.Errorf("ledger.lock_timeout must be positive")
	}
	if c.Ledger.TopCategories <= 0 {
		return fmt.Errorf("ledger.top_categories must be positive")
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "bankledger")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)
	v.SetDefault("grpc.max_concurrent_streams", 1000)
	v.SetDefault("grpc.idle_timeout", 300)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.notification_topic", "ledger.transaction.completed")
	v.SetDefault("kafka.write_timeout", 2000)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/ledger.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.collector_endpoint", "localhost:4317")
	v.SetDefault("tracing.sampling_rate", 1.0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.qps", 100)
	v.SetDefault("ratelimit.burst", 200)

	v.SetDefault("auth.user_header", "X-User-ID")

	v.SetDefault("ledger.min_balance", map[string]string{
		"savings":    "0",
		"current":    "0",
		"investment": "100",
	})
	v.SetDefault("ledger.account_policy", "one_per_type")
	v.SetDefault("ledger.tier_limits", map[string]int{"standard": 1, "premium": 3})
	v.SetDefault("ledger.lock_timeout", 3000)
	v.SetDefault("ledger.record_failed", true)
	v.SetDefault("ledger.top_categories", 5)
	v.SetDefault("ledger.notify_buffer", 1024)
	v.SetDefault("ledger.analytics_cache_ttl", 30)
	v.SetDefault("ledger.interest_interval", 0)
	v.SetDefault("ledger.node_id", 0)
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
