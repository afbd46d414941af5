package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// 环境变量名称。
const (
	EnvConfigPath = "TOOLBOX_CONFIG"
	EnvRPCURL     = "RPC_URL"
)

// DefaultPath 是未设置 TOOLBOX_CONFIG 时尝试读取的配置文件。
var DefaultPath = filepath.Join("configs", "toolbox.json")

// Config 描述了工具箱守护进程在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Web3      Web3Config      `json:"web3"`
	Journal   JournalConfig   `json:"journal"`
	Sequencer SequencerConfig `json:"sequencer"`
	Events    EventsConfig    `json:"events"`
	Auth      AuthConfig      `json:"auth"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
// MetricsAddress 非空时额外启动独立的指标端口，API 端口上的 /metrics 始终可用。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// Web3Config 描述节点连接、链身份约束与本地签名密钥。
type Web3Config struct {
	RPCURL                string `json:"rpc_url"`
	ChainConfig           string `json:"chain_config"`
	DefaultChain          string `json:"default_chain"`
	ExpectedChainID       uint64 `json:"expected_chain_id"`
	GasCap                uint64 `json:"gas_cap"`
	NameRegistry          string `json:"name_registry"`
	DevAccounts           *bool  `json:"dev_accounts"`
	PrivateKeysEnv        string `json:"private_keys_env"`
	ReceiptPollMillis     int    `json:"receipt_poll_millis"`
	ReceiptTimeoutSeconds int    `json:"receipt_timeout_seconds"`
}

// UseDevAccounts 判断是否加载本地开发链的默认账户，未配置时默认开启。
func (w Web3Config) UseDevAccounts() bool {
	return w.DevAccounts == nil || *w.DevAccounts
}

// ReceiptPollInterval 返回回执轮询间隔。
func (w Web3Config) ReceiptPollInterval() time.Duration {
	return time.Duration(w.ReceiptPollMillis) * time.Millisecond
}

// ReceiptTimeout 返回等待回执的最长时间。
func (w Web3Config) ReceiptTimeout() time.Duration {
	return time.Duration(w.ReceiptTimeoutSeconds) * time.Second
}

// JournalConfig 描述转账流水的存储后端。
type JournalConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// SequencerConfig 描述同一发送方广播交易的串行化方式。
type SequencerConfig struct {
	Driver         string      `json:"driver"`
	Redis          RedisConfig `json:"redis"`
	LockTTLSeconds int         `json:"lock_ttl_seconds"`
	RetryMillis    int         `json:"retry_millis"`
}

// RedisConfig 描述 Redis 的连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// EventsConfig 描述转账事件的投递方式。
type EventsConfig struct {
	Driver   string         `json:"driver"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 的连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
	Durable  bool   `json:"durable"`
}

// AuthConfig 控制 API 的访问认证。
type AuthConfig struct {
	Mode string         `json:"mode"`
	Keys []APIKeyConfig `json:"keys"`
}

// APIKeyConfig 描述一个 API Key。Key 为空时从 KeyEnv 指定的环境变量读取。
type APIKeyConfig struct {
	Name        string   `json:"name"`
	Key         string   `json:"key"`
	KeyEnv      string   `json:"key_env"`
	Permissions []string `json:"permissions"`
}

// Secret 返回实际使用的密钥。
func (k APIKeyConfig) Secret() string {
	if key := strings.TrimSpace(k.Key); key != "" {
		return key
	}
	if k.KeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(k.KeyEnv))
}

// LoggingConfig 控制结构化日志与审计日志。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志的滚动策略。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	cfg.applyEnv()
	return &cfg, nil
}

// Default 返回只依赖默认值与环境变量的配置。
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults(".")
	cfg.applyEnv()
	return cfg
}

// LoadFromEnv 读取 TOOLBOX_CONFIG 指向的文件。未显式配置且默认文件不存在时回退到 Default。
func LoadFromEnv() (*Config, error) {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultPath); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(DefaultPath)
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":3000"
	}

	if c.Web3.GasCap == 0 {
		c.Web3.GasCap = 30_000_000
	}
	if c.Web3.ReceiptPollMillis <= 0 {
		c.Web3.ReceiptPollMillis = 1000
	}
	if c.Web3.ReceiptTimeoutSeconds <= 0 {
		c.Web3.ReceiptTimeoutSeconds = 120
	}
	if c.Web3.ChainConfig != "" && !filepath.IsAbs(c.Web3.ChainConfig) {
		c.Web3.ChainConfig = filepath.Join(baseDir, c.Web3.ChainConfig)
	}

	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}

	if c.Sequencer.Driver == "" {
		c.Sequencer.Driver = "memory"
	}
	if c.Sequencer.LockTTLSeconds <= 0 {
		c.Sequencer.LockTTLSeconds = 180
	}
	if c.Sequencer.RetryMillis <= 0 {
		c.Sequencer.RetryMillis = 100
	}
	if c.Sequencer.Redis.Prefix == "" {
		c.Sequencer.Redis.Prefix = "toolbox:sender:"
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Events.RabbitMQ.Exchange == "" {
		c.Events.RabbitMQ.Exchange = "toolbox.transfers"
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = "disabled"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Audit.Path != "" && !filepath.IsAbs(c.Logging.Audit.Path) {
		c.Logging.Audit.Path = filepath.Join(baseDir, c.Logging.Audit.Path)
	}
}

// applyEnv 使用环境变量覆盖文件中的配置。
func (c *Config) applyEnv() {
	if rpcURL := strings.TrimSpace(os.Getenv(EnvRPCURL)); rpcURL != "" {
		c.Web3.RPCURL = rpcURL
	}
}
