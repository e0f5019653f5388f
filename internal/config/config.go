package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // postgres, sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`      // sqlite 文件路径
	LogLevel string `mapstructure:"log_level"` // silent, error, warn, info
}

// DSN 返回 postgres 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// ChainConfig 单链配置
type ChainConfig struct {
	ChainType      string        `mapstructure:"chain_type"`      // 链类型 (ethereum, polygon, bsc)
	ChainId        int64         `mapstructure:"chain_id"`        // 链ID
	RpcUrl         string        `mapstructure:"rpc_url"`         // RPC节点URL
	WsUrl          string        `mapstructure:"ws_url"`          // 新区块订阅，可为空
	ValueDecimals  int32         `mapstructure:"value_decimals"`  // 链上金额精度，ETH为18
	StartBlock     uint64        `mapstructure:"start_block"`     // 首次扫描的起始区块，0 表示从当前高度开始
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // 单次RPC超时
}

// ReconcileConfig 对账参数
type ReconcileConfig struct {
	RequiredConfirmations uint64        `mapstructure:"required_confirmations"` // 最终确认所需区块深度
	FinalityWindow        uint64        `mapstructure:"finality_window"`        // 已终结意向继续校验重组的区块数
	Concurrency           int           `mapstructure:"concurrency"`            // 单轮并发评估上限
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	ScanBatchSize         uint64        `mapstructure:"scan_batch_size"`
	IntentTTL             time.Duration `mapstructure:"intent_ttl"` // 待提交意向的过期时间
	MaxAttempts           int           `mapstructure:"max_attempts"`
	RetryInitialInterval  time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval      time.Duration `mapstructure:"retry_max_interval"`
	RetryMaxElapsed       time.Duration `mapstructure:"retry_max_elapsed"`
}

// WebhookConfig 状态变更通知
type WebhookConfig struct {
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	BatchSize int           `mapstructure:"batch_size"`
	Interval  time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// SetDefaults 设置默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "ledger.db")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("chain.chain_type", "ethereum")
	v.SetDefault("chain.chain_id", 1)
	v.SetDefault("chain.value_decimals", 18)
	v.SetDefault("chain.start_block", 0)
	v.SetDefault("chain.request_timeout", 10*time.Second)
	v.SetDefault("reconcile.required_confirmations", 12)
	v.SetDefault("reconcile.finality_window", 64)
	v.SetDefault("reconcile.concurrency", 8)
	v.SetDefault("reconcile.poll_interval", 15*time.Second)
	v.SetDefault("reconcile.scan_batch_size", 100)
	v.SetDefault("reconcile.intent_ttl", 24*time.Hour)
	v.SetDefault("reconcile.max_attempts", 10)
	v.SetDefault("reconcile.retry_initial_interval", 500*time.Millisecond)
	v.SetDefault("reconcile.retry_max_interval", 10*time.Second)
	v.SetDefault("reconcile.retry_max_elapsed", 30*time.Second)
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout", 5*time.Second)
	v.SetDefault("webhook.batch_size", 100)
	v.SetDefault("webhook.interval", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
}

// Load 加载配置，path 为空时按默认路径查找 config.yaml
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ilr")
	}

	// 自动读取环境变量, 如 ILR_RECONCILE_REQUIRED_CONFIRMATIONS
	v.SetEnvPrefix("ILR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Reconcile.RequiredConfirmations < 1 {
		return fmt.Errorf("reconcile.required_confirmations must be >= 1, got %d", c.Reconcile.RequiredConfirmations)
	}
	if c.Reconcile.Concurrency < 1 {
		return fmt.Errorf("reconcile.concurrency must be >= 1, got %d", c.Reconcile.Concurrency)
	}
	if c.Reconcile.MaxAttempts < 1 {
		return fmt.Errorf("reconcile.max_attempts must be >= 1, got %d", c.Reconcile.MaxAttempts)
	}
	if c.Reconcile.ScanBatchSize < 1 {
		return fmt.Errorf("reconcile.scan_batch_size must be >= 1, got %d", c.Reconcile.ScanBatchSize)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

// GetLevel 实现 logger.Options 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.Options 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.Options 接口
func (l LogConfig) GetFile() string {
	return l.File
}
