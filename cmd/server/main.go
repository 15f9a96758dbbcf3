package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/logging"
	"github.com/iliyamo/storefront/internal/middleware"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/router"
	"github.com/iliyamo/storefront/internal/service"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile, cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	dsn := cfg.DBURL
	if cfg.DBDriver == database.MySQL && dsn == "" {
		dsn = database.MySQLDSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	}
	db, err := database.Open(cfg.DBDriver, dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(ctx, 30*time.Second)
	err = database.Migrate(migrateCtx, db)
	cancelMigrate()
	if err != nil {
		return err
	}
	logger.Info("store ready", zap.String("driver", db.Dialect.Name))

	var sessionStore service.SessionStore = repository.NewSessionRepo(db)
	if cfg.SessionStore == "bolt" {
		bs, err := repository.OpenBoltSessionStore(cfg.SessionBoltPath)
		if err != nil {
			return err
		}
		defer bs.Close()
		sessionStore = bs
	}
	sessions := service.NewSessionAuthority(sessionStore, cfg.SessionTTL, logger)

	sched := cron.New()
	if _, err := sched.AddFunc("@every 15m", func() {
		pctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := sessions.Prune(pctx)
		if err != nil {
			logger.Warn("session prune failed", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("expired sessions pruned", zap.Int64("count", n))
		}
	}); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	} else {
		logger.Warn("redis unavailable: login throttle is per process, cache and review limiter are off")
	}

	throttleCfg := config.LoadLoginThrottleConfig()
	var throttle service.Throttle = service.NewMemoryThrottle(throttleCfg.MaxAttempts, throttleCfg.Window)
	if rdb != nil {
		throttle = service.NewRedisThrottle(rdb, throttleCfg.MaxAttempts, throttleCfg.Window, throttleCfg.Prefix, logger)
	}

	cacheCfg := config.LoadCacheConfig()
	var publishers queue.Fanout
	if rdb != nil && cacheCfg.Enabled {
		publishers = append(publishers, middleware.NewCacheBuster(rdb, cacheCfg.Prefix))
	}
	if cfg.AMQPEnabled {
		amqpPub := queue.NewAMQPPublisher(cfg.AMQPURL, logger)
		defer amqpPub.Close()
		publishers = append(publishers, amqpPub)

		go func() {
			err := queue.StartAuditConsumer(ctx, cfg.AMQPURL, filepath.Join(".", "logs"), logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}

	catalog := service.NewCatalogService(
		repository.NewProductRepo(db),
		repository.NewReviewRepo(db),
		repository.NewSettingsRepo(db),
		publishers,
		logger,
	)

	e := router.New(router.Deps{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Catalog:   catalog,
		Sessions:  sessions,
		Throttle:  throttle,
		Redis:     rdb,
		Cache:     cacheCfg,
		RateLimit: config.LoadRateLimitConfig(),
	})

	addr := ":" + cfg.Port
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
