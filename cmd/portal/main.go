package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rouleplus/autoecole-core/internal/app"
	"github.com/rouleplus/autoecole-core/internal/cache"
	"github.com/rouleplus/autoecole-core/internal/config"
	"github.com/rouleplus/autoecole-core/internal/notify"
	"github.com/rouleplus/autoecole-core/internal/repository"
	"github.com/rouleplus/autoecole-core/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	repos := repository.NewRepos(pool)
	txm := repository.NewPgxTxManager(pool)

	// Интерфейс присваивается только при включённом Redis: typed-nil
	// указатель в интерфейсе сломал бы nil-проверки сервисов
	var availCache service.AvailabilityCache
	if cfg.RedisAddr != "" {
		redisCache := cache.NewAvailability(cfg.RedisAddr, cfg.RedisPassword, logger)
		defer redisCache.Close()
		availCache = redisCache
	}

	var sender notify.Sender
	if cfg.TelegramToken != "" {
		tg, err := notify.NewTelegramSender(cfg.TelegramToken, logger)
		if err != nil {
			logger.Fatal("Failed to create telegram sender", zap.Error(err))
		}
		sender = tg
	} else {
		logger.Warn("TELEGRAM_TOKEN is not set, notifications will be dropped")
	}

	core := service.NewCore(repos, txm, availCache, cfg, logger)

	dispatcher := app.NewDispatcher(repos.Outbox, sender, cfg.AdminChatID, cfg.DispatchInterval, logger)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	// Ядро — in-process сервисная граница: core отдаётся наружу слоем
	// портала (HTTP-обвязка живёт в соседнем репозитории). Здесь только
	// жизненный цикл процесса.
	_ = core

	logger.Info("Booking engine started",
		zap.String("environment", cfg.Environment),
		zap.Bool("cache_enabled", availCache != nil),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
}
