package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OpenMCP-EVM/internal/api"
	"OpenMCP-EVM/internal/auth"
	"OpenMCP-EVM/internal/config"
	"OpenMCP-EVM/internal/events"
	"OpenMCP-EVM/internal/journal"
	"OpenMCP-EVM/internal/observability/alerting"
	"OpenMCP-EVM/internal/observability/metrics"
	"OpenMCP-EVM/internal/storage/mysql"
	"OpenMCP-EVM/internal/storage/redis"
	"OpenMCP-EVM/internal/toolbox"
	"OpenMCP-EVM/internal/web3/provider"
	"OpenMCP-EVM/pkg/logger"
)

// main 是工具箱守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("toolboxd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Service:     "toolboxd",
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
			Compress:   cfg.Logging.Audit.Compress,
		},
	}); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("toolboxd")

	adapter, err := provider.Open(ctx, cfg.Web3)
	if err != nil {
		return err
	}
	defer adapter.Close()
	if snapshot, err := adapter.Snapshot(ctx); err != nil {
		lg.Warn("节点暂不可用，将在首次调用时重试", slog.Any("error", err))
	} else {
		lg.Info("已连接链节点",
			slog.String("chain", snapshot.Name),
			slog.Uint64("chain_id", snapshot.ChainID),
			slog.Uint64("block", snapshot.BlockNumber))
	}

	store, err := openJournal(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			lg.Warn("关闭转账流水失败", slog.Any("error", err))
		}
	}()

	sequencer, closeSequencer, err := openSequencer(ctx, cfg.Sequencer)
	if err != nil {
		return err
	}
	defer closeSequencer()

	publisher, err := openPublisher(cfg.Events)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			lg.Warn("关闭事件发布器失败", slog.Any("error", err))
		}
	}()

	reg := metrics.New()
	if addr := cfg.Server.MetricsAddress; addr != "" {
		go func() {
			if err := reg.StartServer(ctx, addr); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	svc, err := toolbox.NewService(adapter,
		toolbox.WithJournal(store),
		toolbox.WithSequencer(sequencer),
		toolbox.WithPublisher(publisher),
		toolbox.WithMetrics(reg),
		toolbox.WithAlerts(alerting.NewFanout(&alerting.LogNotifier{})),
	)
	if err != nil {
		return err
	}

	guard, err := openAuth(cfg.Auth)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Address, svc, reg, api.WithAuth(guard))
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openJournal(ctx context.Context, cfg config.JournalConfig) (journal.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return journal.NewMemoryStore(), nil
	case "mysql":
		repo, err := mysql.NewTransferRepository(ctx, mysql.ConfigFromJournal(cfg))
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("未知的流水存储驱动: %s", cfg.Driver)
	}
}

func openSequencer(ctx context.Context, cfg config.SequencerConfig) (toolbox.Sequencer, func(), error) {
	switch cfg.Driver {
	case "", "memory":
		return toolbox.NewMemorySequencer(), func() {}, nil
	case "redis":
		lock, err := redis.NewSenderLock(ctx, redis.LockConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      time.Duration(cfg.LockTTLSeconds) * time.Second,
			Retry:    time.Duration(cfg.RetryMillis) * time.Millisecond,
		})
		if err != nil {
			return nil, nil, err
		}
		return lock, func() { _ = lock.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("未知的串行器驱动: %s", cfg.Driver)
	}
}

func openPublisher(cfg config.EventsConfig) (events.Publisher, error) {
	switch cfg.Driver {
	case "", "none":
		return events.NopPublisher{}, nil
	case "memory":
		return events.NewMemoryPublisher(), nil
	case "rabbitmq":
		pub, err := events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
			Durable:  cfg.RabbitMQ.Durable,
		})
		if err != nil {
			return nil, err
		}
		return pub, nil
	default:
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Driver)
	}
}

func openAuth(cfg config.AuthConfig) (*auth.Service, error) {
	keys := make([]auth.Key, 0, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys = append(keys, auth.Key{Name: k.Name, Secret: k.Secret(), Permissions: k.Permissions})
	}
	return auth.NewService(auth.Config{Mode: auth.Mode(cfg.Mode), Keys: keys})
}
