package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 LaunchMCP 在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Web3     Web3Config     `json:"web3"`
	Tokens   TokensConfig   `json:"tokens"`
	Launch   LaunchConfig   `json:"launch"`
	Swap     SwapConfig     `json:"swap"`
	Social   SocialConfig   `json:"social"`
	Metadata MetadataConfig `json:"metadata"`
	Wallet   WalletConfig   `json:"wallet"`
	Auth     AuthConfig     `json:"auth"`
	Runner   RunnerConfig   `json:"runner"`
	Logging  LoggingConfig  `json:"logging"`
	Alerting AlertingConfig `json:"alerting"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 统一描述对话记录存储后端的连接信息。
type StorageConfig struct {
	Transcript TranscriptStoreConfig `json:"transcript_store"`
}

// TranscriptStoreConfig 支持内存实现与 MySQL 实现之间切换。
type TranscriptStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述工作流运行分发队列的驱动与连接方式。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 为 Redis 队列提供连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Key      string `json:"key"`
}

// RabbitMQConfig 为 RabbitMQ 队列提供连接参数。
type RabbitMQConfig struct {
	URL       string `json:"url"`
	QueueName string `json:"queue_name"`
}

// Web3Config 包含访问区块链节点所需的信息。
type Web3Config struct {
	ChainFile      string `json:"chain_file"`
	Chain          string `json:"chain"`
	ChainID        int64  `json:"chain_id"`
	ConfirmTimeout int    `json:"confirm_timeout_seconds"`
	ConfirmPoll    int    `json:"confirm_poll_ms"`
	Contracts      ContractsConfig `json:"contracts"`
}

// ContractsConfig 列出链上协作合约的地址。
type ContractsConfig struct {
	TokenFactory  string `json:"token_factory"`
	MarketFactory string `json:"market_factory"`
	PoolFactory   string `json:"pool_factory"`
	SwapRouter    string `json:"swap_router"`
}

// TokensConfig 指向代币符号注册表文件。
type TokensConfig struct {
	RegistryFile string `json:"registry_file"`
}

// LaunchConfig 控制发币流程的默认参数。
type LaunchConfig struct {
	Decimals        uint8  `json:"decimals"`
	MintAmount      string `json:"mint_amount"`
	PoolSupplyShare int    `json:"pool_supply_share_percent"`
	QuoteAmount     string `json:"quote_amount"`
	// QuoteSymbol 指定与新代币配对的报价资产，需在代币注册表中存在。
	QuoteSymbol string `json:"quote_symbol"`
}

// SwapConfig 控制兑换流程的保护参数。
type SwapConfig struct {
	DeadlineSeconds int `json:"deadline_seconds"`
	FeeTier         int `json:"fee_tier"`
	// MinOutBps 以万分比规定最小产出相对投入数量的下限，
	// 0 表示不设下限。例如 9950 要求产出不低于投入的 99.5%。
	MinOutBps int `json:"min_out_bps"`
}

// SocialConfig 描述群组创建协作方的调用方式。
type SocialConfig struct {
	BaseURL       string `json:"base_url"`
	BotToken      string `json:"bot_token"`
	AdminUsername string `json:"admin_username"`
}

// MetadataConfig 描述元数据上传协作方。
type MetadataConfig struct {
	BaseURL string `json:"base_url"`
}

// WalletConfig 指定签名钱包的 keystore 信息。
type WalletConfig struct {
	KeystoreDir  string `json:"keystore_dir"`
	Address      string `json:"address"`
	PasswordFile string `json:"password_file"`
}

// AuthConfig 维护 API 会话令牌与钱包地址的映射。
type AuthConfig struct {
	Enabled  bool              `json:"enabled"`
	Sessions map[string]string `json:"sessions"`
}

// RunnerConfig 控制工作流执行器的并发度。
type RunnerConfig struct {
	Workers int `json:"workers"`
}

// LoggingConfig 映射到 pkg/logger 的配置。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
	Audit       AuditLogConfig `json:"audit"`
}

// AuditLogConfig 控制审计日志的滚动策略。
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// AlertingConfig 列出需要接收工作流失败告警的 Webhook。
type AlertingConfig struct {
	Webhooks []WebhookConfig `json:"webhooks"`
}

// WebhookConfig 描述单个告警接收端。
type WebhookConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
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

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Transcript.Driver == "" {
		c.Storage.Transcript.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Redis.Key == "" {
		c.Queue.Redis.Key = "launchmcp:runs"
	}
	if c.Queue.RabbitMQ.QueueName == "" {
		c.Queue.RabbitMQ.QueueName = "launchmcp.runs"
	}

	if c.Web3.Chain == "" {
		c.Web3.Chain = "mantle"
	}
	if c.Web3.ConfirmTimeout <= 0 {
		c.Web3.ConfirmTimeout = 120
	}
	if c.Web3.ConfirmPoll <= 0 {
		c.Web3.ConfirmPoll = 1500
	}
	if c.Web3.ChainFile != "" && !filepath.IsAbs(c.Web3.ChainFile) {
		c.Web3.ChainFile = filepath.Join(baseDir, c.Web3.ChainFile)
	}

	if c.Tokens.RegistryFile != "" && !filepath.IsAbs(c.Tokens.RegistryFile) {
		c.Tokens.RegistryFile = filepath.Join(baseDir, c.Tokens.RegistryFile)
	}

	if c.Launch.Decimals == 0 {
		c.Launch.Decimals = 9
	}
	if c.Launch.MintAmount == "" {
		c.Launch.MintAmount = "10000000000"
	}
	if c.Launch.PoolSupplyShare <= 0 || c.Launch.PoolSupplyShare > 100 {
		c.Launch.PoolSupplyShare = 10
	}
	if c.Launch.QuoteAmount == "" {
		c.Launch.QuoteAmount = "4"
	}
	if c.Launch.QuoteSymbol == "" {
		c.Launch.QuoteSymbol = "MNT"
	}

	if c.Swap.DeadlineSeconds <= 0 {
		c.Swap.DeadlineSeconds = 300
	}
	if c.Swap.FeeTier <= 0 {
		c.Swap.FeeTier = 500
	}
	if c.Swap.MinOutBps < 0 || c.Swap.MinOutBps > 10_000 {
		c.Swap.MinOutBps = 0
	}

	if c.Runner.Workers <= 0 {
		c.Runner.Workers = 4
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Wallet.KeystoreDir != "" && !filepath.IsAbs(c.Wallet.KeystoreDir) {
		c.Wallet.KeystoreDir = filepath.Join(baseDir, c.Wallet.KeystoreDir)
	}
	if c.Wallet.PasswordFile != "" && !filepath.IsAbs(c.Wallet.PasswordFile) {
		c.Wallet.PasswordFile = filepath.Join(baseDir, c.Wallet.PasswordFile)
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
