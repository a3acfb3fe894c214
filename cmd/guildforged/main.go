package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"GuildForge-Chain/internal/api"
	"GuildForge-Chain/internal/auth"
	"GuildForge-Chain/internal/chain"
	"GuildForge-Chain/internal/config"
	"GuildForge-Chain/internal/observability/alerting"
	"GuildForge-Chain/internal/record"
	"GuildForge-Chain/internal/satellite"
	"GuildForge-Chain/internal/summoner"
	"GuildForge-Chain/pkg/logger"
)

// defaultFactoryAddress 在配置缺省时作为工厂的托管地址。
const defaultFactoryAddress = "0x0000000000000000000000000000000000000Fac"

// main 是 GuildForge 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("guildforged 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("GUILDFORGE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "guildforge.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	// 加载创世状态并搭建执行环境。
	genesis, err := summoner.LoadGenesis(cfg.Chain.GenesisPath)
	if err != nil {
		return err
	}
	env := chain.NewEnv()
	orgs, tokens, err := genesis.Apply(env)
	if err != nil {
		return err
	}

	factoryAddr := cfg.Chain.FactoryAddress
	if factoryAddr == "" {
		factoryAddr = defaultFactoryAddress
	}
	if !common.IsHexAddress(factoryAddr) {
		return fmt.Errorf("工厂地址不合法: %s", factoryAddr)
	}
	factory := satellite.NewFactory(env, common.HexToAddress(factoryAddr))

	var store record.Store
	switch cfg.Storage.RecordStore.Driver {
	case "", "memory":
		store = record.NewMemoryStore()
	case "mysql":
		sqlStore, err := record.NewSQLStore(cfg.Storage.RecordStore.DSN)
		if err != nil {
			return err
		}
		store = sqlStore
	default:
		return fmt.Errorf("未知的记录存储驱动: %s", cfg.Storage.RecordStore.Driver)
	}

	var bus record.Bus
	switch cfg.Bus.Driver {
	case "", "memory":
		bus = record.NewMemoryBus(0)
	case "redis":
		redisBus, err := record.NewRedisBus(record.RedisBusConfig{
			Address:  cfg.Bus.Redis.Address,
			Password: cfg.Bus.Redis.Password,
			DB:       cfg.Bus.Redis.DB,
			Queue:    cfg.Bus.Redis.Queue,
		})
		if err != nil {
			return err
		}
		bus = redisBus
	case "rabbitmq":
		rabbitBus, err := record.NewRabbitBus(record.RabbitBusConfig{
			URL:      cfg.Bus.RabbitMQ.URL,
			Queue:    cfg.Bus.RabbitMQ.Queue,
			Prefetch: cfg.Bus.RabbitMQ.Prefetch,
			Durable:  cfg.Bus.RabbitMQ.Durable,
		})
		if err != nil {
			return err
		}
		bus = rabbitBus
	default:
		return fmt.Errorf("未知的总线驱动: %s", cfg.Bus.Driver)
	}
	indexer := record.NewIndexer(store, bus)
	indexerCtx, indexerCancel := context.WithCancel(ctx)
	defer indexerCancel()
	go func() {
		if err := indexer.Start(indexerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("部署索引器异常退出: %v", err)
		}
	}()

	alerter := alerting.NewFanout(&alerting.LogNotifier{})
	svc := summoner.NewService(factory, orgs, tokens, store, bus,
		summoner.WithAlertDispatcher(alerter),
	)
	defer func() {
		if err := svc.Close(); err != nil {
			log.Printf("关闭部署服务失败: %v", err)
		}
	}()

	authSvc, err := auth.NewService(cfg.Auth)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Address, svc, authSvc)
	logger.L().Info("guildforged 启动",
		"address", cfg.Server.Address,
		"store", cfg.Storage.RecordStore.Driver,
		"bus", cfg.Bus.Driver,
	)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
