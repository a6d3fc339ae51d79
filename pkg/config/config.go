// Package config 提供 TOML 配置加载、环境变量覆盖、配置热更与 schema 校验
package config

import (
	"fmt"
	"os"
	"strings"

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
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 管理接口限流配置
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	// 风控引擎配置
	RiskCtrl RiskCtrlConfig `mapstructure:"riskctrl"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host" default:"0.0.0.0"`
	// 监听端口
	Port int `mapstructure:"port" default:"8080"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout" default:"30"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout" default:"30"`
	// 最大连接数
	MaxConnections int `mapstructure:"max_connections" default:"1000"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql
	Driver string `mapstructure:"driver" default:"mysql"`
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns" default:"25"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns" default:"5"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime" default:"300"`
	// 是否启用日志
	LogEnabled bool `mapstructure:"log_enabled" default:"false"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold" default:"1000"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 主机地址
	Host string `mapstructure:"host" default:"localhost"`
	// 端口
	Port int `mapstructure:"port" default:"6379"`
	// 密码
	Password string `mapstructure:"password"`
	// 数据库编号
	DB int `mapstructure:"db" default:"0"`
	// 最大连接数
	MaxPoolSize int `mapstructure:"max_pool_size" default:"10"`
	// 连接超时（秒）
	ConnTimeout int `mapstructure:"conn_timeout" default:"5"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout" default:"3"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout" default:"3"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// Consumer Group ID
	GroupID string `mapstructure:"group_id"`
	// 分区数
	Partitions int `mapstructure:"partitions" default:"3"`
	// 副本数
	Replication int `mapstructure:"replication" default:"1"`
	// 消费者超时（秒）
	SessionTimeout int `mapstructure:"session_timeout" default:"10"`
	// 最大重试次数
	MaxRetries int `mapstructure:"max_retries" default:"3"`
	// 重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff" default:"100"`
	// 主题配置
	Topics KafkaTopics `mapstructure:"topics"`
}

// KafkaTopics 服务使用的 Kafka 主题
type KafkaTopics struct {
	// PnL 快照主题（消费）
	PnlSnapshots string `mapstructure:"pnl_snapshots" default:"risk.pnl.snapshots"`
	// 持仓变动主题（消费）
	PositionUpdates string `mapstructure:"position_updates" default:"risk.position.updates"`
	// 风控决策主题（生产）
	RiskDecisions string `mapstructure:"risk_decisions" default:"risk.decisions"`
	// 死信主题
	DeadLetter string `mapstructure:"dead_letter" default:"risk.dead_letter"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	// 日志级别
	Level string `mapstructure:"level" default:"info"`
	// 输出格式
	Format string `mapstructure:"format" default:"json"`
	// 输出目标
	Output string `mapstructure:"output" default:"stdout"`
	// 文件路径
	FilePath string `mapstructure:"file_path" default:"logs/app.log"`
	// 最大文件大小（MB）
	MaxSize int `mapstructure:"max_size" default:"100"`
	// 最大备份文件数
	MaxBackups int `mapstructure:"max_backups" default:"10"`
	// 最大保留天数
	MaxAge int `mapstructure:"max_age" default:"30"`
	// 是否压缩
	Compress bool `mapstructure:"compress" default:"true"`
	// 是否输出调用者信息
	WithCaller bool `mapstructure:"with_caller" default:"true"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled" default:"true"`
	// Prometheus 监听端口
	Port int `mapstructure:"port" default:"9090"`
	// 指标路径
	Path string `mapstructure:"path" default:"/metrics"`
}

// RateLimitConfig 管理接口限流配置
type RateLimitConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled" default:"false"`
	// 每秒请求数
	QPS int `mapstructure:"qps" default:"50"`
	// 突发容量
	Burst int `mapstructure:"burst" default:"100"`
}

// RiskCtrlConfig 风控引擎配置
type RiskCtrlConfig struct {
	// 规则快照刷新间隔（毫秒）
	RefreshIntervalMs int `mapstructure:"refresh_interval_ms" default:"2000"`
	// PnL 快照过期预算（毫秒），超过即按超时拒绝
	PnlStalenessMs int `mapstructure:"pnl_staleness_ms" default:"5000"`
	// 自成交触发容忍次数，超过即拒绝
	SelfTradeTolerance int `mapstructure:"self_trade_tolerance" default:"0"`
	// 累计计数器是否按交易日重置
	DailyReset bool `mapstructure:"daily_reset" default:"false"`
	// scope 锁分片数
	ScopeLockStripes int `mapstructure:"scope_lock_stripes" default:"256"`
	// 决策审计是否落库
	AuditEnabled bool `mapstructure:"audit_enabled" default:"true"`
}

// Load 从 TOML 文件加载配置，支持环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 设置环境变量前缀
	v.SetEnvPrefix("APP")
	// 自动绑定环境变量（使用 _ 替代 .）
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

// LoadWithDefaults 从 TOML 文件加载配置，使用默认值
func LoadWithDefaults(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// 配置文件不存在时使用默认值
	_ = v.ReadInConfig()

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
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
	}
	if c.RiskCtrl.RefreshIntervalMs <= 0 {
		return fmt.Errorf("riskctrl.refresh_interval_ms must be positive")
	}
	if c.RiskCtrl.PnlStalenessMs <= 0 {
		return fmt.Errorf("riskctrl.pnl_staleness_ms must be positive")
	}
	if c.RiskCtrl.SelfTradeTolerance < 0 {
		return fmt.Errorf("riskctrl.self_trade_tolerance must not be negative")
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)
	v.SetDefault("http.max_connections", 1000)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.replication", 1)
	v.SetDefault("kafka.session_timeout", 10)
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)
	v.SetDefault("kafka.topics.pnl_snapshots", "risk.pnl.snapshots")
	v.SetDefault("kafka.topics.position_updates", "risk.position.updates")
	v.SetDefault("kafka.topics.risk_decisions", "risk.decisions")
	v.SetDefault("kafka.topics.dead_letter", "risk.dead_letter")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.qps", 50)
	v.SetDefault("ratelimit.burst", 100)

	v.SetDefault("riskctrl.refresh_interval_ms", 2000)
	v.SetDefault("riskctrl.pnl_staleness_ms", 5000)
	v.SetDefault("riskctrl.self_trade_tolerance", 0)
	v.SetDefault("riskctrl.daily_reset", false)
	v.SetDefault("riskctrl.scope_lock_stripes", 256)
	v.SetDefault("riskctrl.audit_enabled", true)
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
