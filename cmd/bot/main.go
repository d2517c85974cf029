// =======================
// File: cmd/bot/main.go
// =======================
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	chain "github.com/pumpscience/solana-wallet-bot/internal/blockchain/solana"
	"github.com/pumpscience/solana-wallet-bot/internal/bot"
	"github.com/pumpscience/solana-wallet-bot/internal/config"
	"github.com/pumpscience/solana-wallet-bot/internal/jupiter"
	"github.com/pumpscience/solana-wallet-bot/internal/logger"
	"github.com/pumpscience/solana-wallet-bot/internal/market"
	"github.com/pumpscience/solana-wallet-bot/internal/poster"
	"github.com/pumpscience/solana-wallet-bot/internal/session"
	"github.com/pumpscience/solana-wallet-bot/internal/storage"
	"github.com/pumpscience/solana-wallet-bot/internal/storage/models"
	"github.com/pumpscience/solana-wallet-bot/internal/storage/postgres"
	"github.com/pumpscience/solana-wallet-bot/internal/trade"
	"github.com/pumpscience/solana-wallet-bot/internal/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env удобен при локальной разработке; в проде переменные приходят из окружения
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Хранилище сессий
	store, err := newSessionStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to init session store: %w", err)
	}
	defer func() { _ = store.Close() }()

	// Опциональное postgres-хранилище дашборда
	var dashboard storage.Storage
	var mirror wallet.Mirror
	if cfg.PostgresURL != "" {
		dashboard, err = postgres.NewStorage(cfg.PostgresURL, log.WithComponent("storage"))
		if err != nil {
			return fmt.Errorf("failed to init storage: %w", err)
		}
		defer func() { _ = dashboard.Close() }()
		if err := dashboard.RunMigrations(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		seedDefaultTemplate(ctx, dashboard, log.Logger)
		mirror = dashboard
	}

	chainClient, err := chain.NewClient(cfg.RPCList, log.WithComponent("solana"))
	if err != nil {
		return fmt.Errorf("failed to init solana client: %w", err)
	}

	marketSvc := market.NewService(cfg.DexScreenerURL, log.WithComponent("market"))
	swapClient := jupiter.NewClient(cfg.JupiterURL, log.WithComponent("jupiter"))

	provisioner := wallet.NewProvisioner(store, mirror, log.WithComponent("wallet"))
	tradeSvc := trade.NewService(
		store,
		chainClient,
		marketSvc,
		swapClient,
		cfg.SlippageBps,
		cfg.FeeReserveSOL,
		cfg.Retries,
		log,
	)

	tgBot, err := bot.New(cfg, provisioner, tradeSvc, log.WithComponent("bot"))
	if err != nil {
		return fmt.Errorf("failed to init telegram bot: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return tgBot.Start(ctx)
	})

	// Публикации в канал включаются только при заданном channel_id
	if cfg.ChannelID != 0 {
		var renderer poster.Renderer
		if cfg.RenderServiceURL != "" {
			renderer = poster.NewHTTPRenderer(cfg.RenderServiceURL)
		} else {
			renderer = poster.NewChartRenderer()
		}
		channelPoster := poster.New(
			poster.NewTelegramPublisher(tgBot.API()),
			renderer,
			marketSvc,
			dashboard,
			cfg.ChannelID,
			time.Duration(cfg.PostInterval)*time.Second,
			log.Logger,
		)
		if err := channelPoster.Start(ctx); err != nil {
			return fmt.Errorf("failed to start poster: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			channelPoster.Stop()
			return nil
		})
	}

	log.Info("Bot is up",
		zap.String("session_backend", cfg.SessionBackend),
		zap.Bool("dashboard_storage", dashboard != nil),
		zap.Bool("channel_poster", cfg.ChannelID != 0))

	return g.Wait()
}

// seedDefaultTemplate создаёт стартовый шаблон карточки при первом запуске,
// пока дашборд не настроил свои.
func seedDefaultTemplate(ctx context.Context, dashboard storage.Storage, log *zap.Logger) {
	if _, err := dashboard.ActiveTemplate(ctx); !errors.Is(err, storage.ErrNotFound) {
		return
	}
	seed := &models.Template{
		Name:         "Market Update",
		TokenAddress: jupiter.WSOLMint,
		Active:       true,
	}
	if err := dashboard.SaveTemplate(ctx, seed); err != nil {
		log.Warn("Failed to seed default card template", zap.Error(err))
	}
}

// newSessionStore выбирает реализацию хранилища сессий по конфигурации.
func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch config.SessionBackend(cfg.SessionBackend) {
	case config.SessionBackendMemory:
		return session.NewMemoryStore(), nil
	case config.SessionBackendRedis:
		return session.NewRedisStore(ctx, cfg.RedisAddr)
	case config.SessionBackendFile:
		return session.NewFileStore(cfg.SessionFilePath)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}
