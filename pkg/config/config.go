// Package config 提供 TOML 配置加载、环境变量覆盖、默认值与 schema 校验
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name" validate:"required"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment" validate:"oneof=dev staging prod"`

	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout" validate:"min=1"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout" validate:"min=1"`
	// 优雅关闭等待（秒）
	ShutdownTimeout int `mapstructure:"shutdown_timeout" validate:"min=1"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql, postgres, sqlite
	Driver string `mapstructure:"driver" validate:"oneof=mysql postgres sqlite"`
	// 数据源名称
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"min=0"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int  `mapstructure:"conn_max_lifetime"`
	LogEnabled      bool `mapstructure:"log_enabled"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
	// 启动时自动迁移表结构
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port" validate:"min=1,max=65535"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db" validate:"min=0"`
	MaxPoolSize int    `mapstructure:"max_pool_size" validate:"min=1"`
	// 连接超时（秒）
	ConnTimeout  int `mapstructure:"conn_timeout"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	// 消息发送最大尝试次数
	MaxRetries int `mapstructure:"max_retries" validate:"min=1"`
	// 重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff" validate:"min=0"`
	// 批量发送超时（毫秒）
	BatchTimeout int `mapstructure:"batch_timeout" validate:"min=1"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json text"`
	Output     string `mapstructure:"output" validate:"oneof=stdout file both"`
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
	SamplingRate      float64 `mapstructure:"sampling_rate" validate:"min=0,max=1"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"startswith=/"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// 每个客户端每秒请求数
	QPS   float64 `mapstructure:"qps" validate:"gt=0"`
	Burst int     `mapstructure:"burst" validate:"min=1"`
}

// BreakerConfig 熔断配置，保护 outbox 向 Kafka 的投递
type BreakerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MaxRequests uint32 `mapstructure:"max_requests"`
	// 统计窗口（秒）
	Interval int `mapstructure:"interval"`
	// 打开状态持续时间（秒）
	Timeout      int     `mapstructure:"timeout"`
	FailureRatio float64 `mapstructure:"failure_ratio" validate:"min=0,max=1"`
	MinRequests  uint32  `mapstructure:"min_requests"`
}

// PricingConfig 定价服务业务配置
type PricingConfig struct {
	// 最新定价结果缓存时间（秒）
	CacheTTL int `mapstructure:"cache_ttl" validate:"min=1"`
	// 历史查询默认条数
	DefaultHistoryLimit int `mapstructure:"default_history_limit" validate:"min=1"`
	// 历史查询最大条数
	MaxHistoryLimit int `mapstructure:"max_history_limit" validate:"min=1"`
	// 定价记录保留天数
	RetentionDays int `mapstructure:"retention_days" validate:"min=1"`
	// 维护任务 cron 表达式
	CleanupCron string `mapstructure:"cleanup_cron" validate:"required"`
	// outbox 单次拉取条数
	OutboxBatchSize int `mapstructure:"outbox_batch_size" validate:"min=1"`
	// outbox 轮询间隔（毫秒）
	OutboxPollInterval int `mapstructure:"outbox_poll_interval" validate:"min=1"`
	// outbox 最大重试次数，超过后标记为失败
	OutboxMaxRetries int `mapstructure:"outbox_max_retries" validate:"min=1"`
	// 已发送 outbox 消息保留小时数
	OutboxRetentionHours int `mapstructure:"outbox_retention_hours" validate:"min=1"`
	// outbox 目标 topic 前缀
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// CacheTTLDuration 返回缓存时间
func (p PricingConfig) CacheTTLDuration() time.Duration {
	return time.Duration(p.CacheTTL) * time.Second
}

// OutboxPollDuration 返回 outbox 轮询间隔
func (p PricingConfig) OutboxPollDuration() time.Duration {
	return time.Duration(p.OutboxPollInterval) * time.Millisecond
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load 从 TOML 文件加载配置，支持默认值与 APP_ 前缀环境变量覆盖
// configPath 为空或文件不存在时仅使用默认值和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Database.DSN == "" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}
	if c.Pricing.DefaultHistoryLimit > c.Pricing.MaxHistoryLimit {
		return fmt.Errorf("pricing default_history_limit %d exceeds max_history_limit %d",
			c.Pricing.DefaultHistoryLimit, c.Pricing.MaxHistoryLimit)
	}
	return nil
}

// Addr 返回 HTTP 监听地址
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "pricing")
	v.SetDefault("version", "v1.0.0")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)
	v.SetDefault("http.shutdown_timeout", 10)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:pricing.db?cache=shared")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 200)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)
	v.SetDefault("kafka.batch_timeout", 10)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/pricing.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.collector_endpoint", "localhost:4317")
	v.SetDefault("tracing.sampling_rate", 1.0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.qps", 100)
	v.SetDefault("ratelimit.burst", 200)

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_requests", 1)
	v.SetDefault("breaker.interval", 60)
	v.SetDefault("breaker.timeout", 30)
	v.SetDefault("breaker.failure_ratio", 0.5)
	v.SetDefault("breaker.min_requests", 5)

	v.SetDefault("pricing.cache_ttl", 900)
	v.SetDefault("pricing.default_history_limit", 20)
	v.SetDefault("pricing.max_history_limit", 500)
	v.SetDefault("pricing.retention_days", 90)
	v.SetDefault("pricing.cleanup_cron", "0 3 * * *")
	v.SetDefault("pricing.outbox_batch_size", 100)
	v.SetDefault("pricing.outbox_poll_interval", 500)
	v.SetDefault("pricing.outbox_max_retries", 10)
	v.SetDefault("pricing.outbox_retention_hours", 72)
	v.SetDefault("pricing.topic_prefix", "")
}
