package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"LaunchMCP-Chain/internal/api"
	"LaunchMCP-Chain/internal/auth"
	"LaunchMCP-Chain/internal/chainops"
	"LaunchMCP-Chain/internal/chainops/ethereum"
	"LaunchMCP-Chain/internal/config"
	"LaunchMCP-Chain/internal/launch"
	"LaunchMCP-Chain/internal/metadata"
	"LaunchMCP-Chain/internal/observability/alerting"
	"LaunchMCP-Chain/internal/run"
	"LaunchMCP-Chain/internal/social/telegram"
	"LaunchMCP-Chain/internal/swap"
	"LaunchMCP-Chain/internal/tokens"
	"LaunchMCP-Chain/internal/transcript"
	"LaunchMCP-Chain/internal/wallet"
	"LaunchMCP-Chain/pkg/logger"
)

// main 是 LaunchMCP 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := realMain(ctx); err != nil {
		log.Fatalf("launchmcpd 运行失败: %v", err)
	}
}

func realMain(ctx context.Context) error {
	configPath := os.Getenv("LAUNCHMCP_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "launchmcp.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	// 对话记录存储。
	var transcripts transcript.Store
	switch cfg.Storage.Transcript.Driver {
	case "", "memory":
		transcripts = transcript.NewMemoryStore()
	case "mysql":
		store, err := transcript.NewMySQLStore(cfg.Storage.Transcript.DSN)
		if err != nil {
			return err
		}
		transcripts = store
	default:
		return fmt.Errorf("未知的对话记录存储驱动: %s", cfg.Storage.Transcript.Driver)
	}
	defer func() { _ = transcripts.Close() }()

	// 运行分发队列。
	var queue run.Queue
	switch cfg.Queue.Driver {
	case "", "memory":
		queue = run.NewMemoryQueue(1024)
	case "redis":
		redisQueue, err := run.NewRedisQueue(run.RedisQueueConfig{
			Address:  cfg.Queue.Redis.Address,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Queue:    cfg.Queue.Redis.Key,
		})
		if err != nil {
			return err
		}
		queue = redisQueue
	case "rabbitmq":
		rabbitQueue, err := run.NewRabbitMQQueue(run.RabbitMQConfig{
			URL:     cfg.Queue.RabbitMQ.URL,
			Queue:   cfg.Queue.RabbitMQ.QueueName,
			Durable: true,
		})
		if err != nil {
			return err
		}
		queue = rabbitQueue
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Queue.Driver)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.L().Error("关闭运行队列失败", "error", err)
		}
	}()

	registry, err := tokens.LoadRegistry(cfg.Tokens.RegistryFile)
	if err != nil {
		return err
	}

	// 链上客户端与签名钱包。
	chains, err := ethereum.LoadChainDefinitions(cfg.Web3.ChainFile)
	if err != nil {
		return err
	}
	chainDef, err := chains.Resolve(cfg.Web3.Chain)
	if err != nil {
		return err
	}
	chainID := cfg.Web3.ChainID
	if chainID == 0 {
		chainID = chainDef.ChainID
	}
	if chainID == 0 {
		return errors.New("未配置链 ID")
	}

	signer, err := wallet.NewKeystoreSigner(wallet.KeystoreConfig{
		KeystoreDir:  cfg.Wallet.KeystoreDir,
		Address:      cfg.Wallet.Address,
		PasswordFile: cfg.Wallet.PasswordFile,
		ChainID:      big.NewInt(chainID),
	})
	if err != nil {
		return err
	}

	var uploader metadata.Uploader
	if cfg.Metadata.BaseURL != "" {
		httpUploader, err := metadata.NewHTTPUploader(cfg.Metadata.BaseURL)
		if err != nil {
			return err
		}
		uploader = httpUploader
	} else {
		uploader = metadata.NewMemoryUploader()
	}

	chainClient, err := ethereum.NewClient(ctx, ethereum.Config{
		Name:    cfg.Web3.Chain,
		RPCURL:  chainDef.RPCURL,
		ChainID: big.NewInt(chainID),
		Contracts: ethereum.ContractAddresses{
			TokenFactory:  common.HexToAddress(cfg.Web3.Contracts.TokenFactory),
			MarketFactory: common.HexToAddress(cfg.Web3.Contracts.MarketFactory),
			PoolFactory:   common.HexToAddress(cfg.Web3.Contracts.PoolFactory),
			SwapRouter:    common.HexToAddress(cfg.Web3.Contracts.SwapRouter),
		},
		ConfirmTimeout: time.Duration(cfg.Web3.ConfirmTimeout) * time.Second,
		PollInterval:   time.Duration(cfg.Web3.ConfirmPoll) * time.Millisecond,
	}, signer, uploader)
	if err != nil {
		return err
	}
	defer chainClient.Close()

	invoker := &chainops.Dispatcher{
		Minter:   chainClient,
		Markets:  chainClient,
		Pools:    chainClient,
		Reader:   chainClient,
		Approver: chainClient,
		Swapper:  chainClient,
	}
	if cfg.Social.BaseURL != "" {
		announcer, err := telegram.NewClient(telegram.Config{
			BaseURL:       cfg.Social.BaseURL,
			BotToken:      cfg.Social.BotToken,
			AdminUsername: cfg.Social.AdminUsername,
		})
		if err != nil {
			return err
		}
		invoker.Announcer = announcer
	}

	// 告警派发。
	notifiers := make([]alerting.Notifier, 0, len(cfg.Alerting.Webhooks))
	for _, webhook := range cfg.Alerting.Webhooks {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(webhook.Name, webhook.URL))
	}
	alerter := alerting.NewFanout(notifiers...)

	runStore := run.NewMemoryStore()
	runService := run.NewService(runStore, queue)
	runner := run.NewRunner(runStore, queue, invoker, transcripts,
		run.WithWorkerCount(cfg.Runner.Workers),
		run.WithRunnerLogger(logger.Named("runner")),
		run.WithAlertDispatcher(alerter),
	)

	runnerCtx, runnerCancel := context.WithCancel(ctx)
	defer runnerCancel()
	go func() {
		if err := runner.Start(runnerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("运行处理器异常退出", "error", err)
		}
	}()

	// 发币与兑换的构建参数。
	mintAmount, ok := new(big.Int).SetString(cfg.Launch.MintAmount, 10)
	if !ok {
		return fmt.Errorf("非法的铸造数量: %s", cfg.Launch.MintAmount)
	}
	quoteAmount, ok := new(big.Int).SetString(cfg.Launch.QuoteAmount, 10)
	if !ok {
		return fmt.Errorf("非法的报价数量: %s", cfg.Launch.QuoteAmount)
	}
	quoteToken, err := registry.Resolve(cfg.Launch.QuoteSymbol)
	if err != nil {
		return err
	}
	launchParams := launch.Params{
		Decimals:        cfg.Launch.Decimals,
		MintAmount:      mintAmount,
		PoolSupplyShare: cfg.Launch.PoolSupplyShare,
		QuoteAmount:     quoteAmount,
		QuoteAddress:    quoteToken.SpendAddress(),
	}

	swapBuilder := swap.NewBuilder(registry, swap.Config{
		RouterAddress: cfg.Web3.Contracts.SwapRouter,
		DeadlineTTL:   time.Duration(cfg.Swap.DeadlineSeconds) * time.Second,
		FeeTier:       int64(cfg.Swap.FeeTier),
		MinOutBps:     int64(cfg.Swap.MinOutBps),
	})

	server := api.NewServer(api.Config{
		Addr:         cfg.Server.Address,
		DefaultOwner: strings.ToLower(signer.Address().Hex()),
		Transcripts:  transcripts,
		Runs:         runService,
		LaunchParams: launchParams,
		Swaps:        swapBuilder,
		Auth: auth.NewService(auth.Config{
			Enabled:  cfg.Auth.Enabled,
			Sessions: cfg.Auth.Sessions,
		}),
	})

	logger.L().Info("launchmcpd 启动",
		"address", cfg.Server.Address,
		"chain", cfg.Web3.Chain,
		"wallet", signer.Address().Hex(),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
