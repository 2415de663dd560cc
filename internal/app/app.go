// Package app assembles the ingestion service from its parts.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifelog-ingest/internal/adapters"
	"lifelog-ingest/internal/auth"
	"lifelog-ingest/internal/common/logging"
	"lifelog-ingest/internal/config"
	"lifelog-ingest/internal/dailystore"
	"lifelog-ingest/internal/dedup"
	"lifelog-ingest/internal/enrich"
	"lifelog-ingest/internal/eventlog"
	"lifelog-ingest/internal/handlers"
	"lifelog-ingest/internal/locks"
	"lifelog-ingest/internal/metrics"
	"lifelog-ingest/internal/notify"
	"lifelog-ingest/internal/providerapi"
	"lifelog-ingest/internal/redis"
	"lifelog-ingest/internal/retention"
	"lifelog-ingest/internal/server"
	"lifelog-ingest/internal/storage"
)

// App owns the wired service and its lifecycle.
type App struct {
	cfg       *config.Config
	store     storage.Storage
	redis     *redis.Client
	retention *retention.Job
	server    *server.Server
	logger    logging.Logger
}

// New wires the service. Redis is optional: without it the dedup chain runs
// volatile plus archive and write locks stay in-process.
func New(cfg *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Global()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.ReportingTimeZone)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(cfg)
	if err != nil {
		return nil, err
	}

	checkers := []dedup.Checker{dedup.NewVolatile(24 * time.Hour)}
	lockMgr := locks.Manager(locks.NewLocal())
	var redisClient *redis.Client
	if cfg.RedisAddress != "" {
		redisClient, err = redis.NewClient(cfg)
		if err != nil {
			store.Close()
			return nil, err
		}
		checkers = append(checkers, dedup.NewRedis(redisClient, 72*time.Hour))
		lockMgr = locks.NewDistributed(redisClient.GetGoRedisClient(), 30*time.Second)
		logger.Info("Redis connected", logging.String("addr", cfg.RedisAddress))
	}
	checkers = append(checkers, dedup.NewArchive(store))

	enricher, err := enrich.New(cfg.ReportingTimeZone, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	providerClient := providerapi.NewHTTPClient(cfg.Providers, cfg.ProviderAPITimeout, logger)
	registry := adapters.NewRegistry(providerClient, loc, logger)

	var notifier *notify.Dispatcher
	if cfg.NotifyWebhookURL != "" {
		creds := notify.NewCredentialResolver(cfg.NotifyCredentialsDir, cfg.NotifySharedToken)
		notifier = notify.New(cfg.NotifyWebhookURL, cfg.NotifyChannel, creds, logger)
	}

	var authService *auth.Service
	if cfg.InspectionAPIEnabled() {
		authService = auth.NewService(cfg.JWTSecret, cfg.AdminUsername, cfg.AdminPasswordHash, 24*time.Hour, logger)
	} else {
		logger.Warn("Inspection API disabled, set JWT_SECRET and ADMIN_PASSWORD_HASH to enable")
	}

	events := eventlog.New(store, logger)
	h := handlers.New(cfg, registry, dedup.NewChain(checkers...), events,
		enricher, notifier, dailystore.New(store, logger), store,
		lockMgr, metrics.New(), authService, logger)

	return &App{
		cfg:       cfg,
		store:     store,
		redis:     redisClient,
		retention: retention.New(events, cfg.EventLogRetentionDays, loc, logger),
		server:    server.New(cfg.Port, h.Router(), logger),
		logger:    logger,
	}, nil
}

// Run serves until SIGINT or SIGTERM, then drains and closes resources.
func (a *App) Run() error {
	if err := a.retention.Start(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.close()
		return err
	case sig := <-sigCh:
		a.logger.Info("Signal received, shutting down", logging.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := a.server.Shutdown(ctx)
	a.close()
	return err
}

func (a *App) close() {
	a.retention.Stop()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Redis close failed", logging.Err(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Storage close failed", logging.Err(err))
	}
}
