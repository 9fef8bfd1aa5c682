package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/reportsync/common/audit"
	"github.com/telhawk-systems/reportsync/common/logging"
	"github.com/telhawk-systems/reportsync/common/messaging"
	natsclient "github.com/telhawk-systems/reportsync/common/messaging/nats"
	"github.com/telhawk-systems/reportsync/internal/backfill"
	"github.com/telhawk-systems/reportsync/internal/config"
	"github.com/telhawk-systems/reportsync/internal/iccid"
	"github.com/telhawk-systems/reportsync/internal/refresh"
	"github.com/telhawk-systems/reportsync/internal/repository"
	"github.com/telhawk-systems/reportsync/internal/source"
	"github.com/telhawk-systems/reportsync/internal/syncer"
	"github.com/telhawk-systems/reportsync/internal/tenant"
	"github.com/telhawk-systems/reportsync/internal/watermark"
	"github.com/telhawk-systems/reportsync/internal/writer"
)

// app holds the long-lived dependencies of run and serve.
type app struct {
	repo         *repository.PostgresRepository
	watermarks   watermark.Store
	orchestrator *syncer.Orchestrator
	closers      []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{}

	repo, err := repository.NewPostgresRepository(ctx, cfg.DatabaseURL(), cfg.Database.MaxConns)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)
	pool := repo.Pool()

	switch cfg.Watermark.Backend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid redis.url: %w", err)
		}
		opts.MaxRetries = cfg.Redis.MaxRetries
		opts.PoolSize = cfg.Redis.PoolSize
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.watermarks = watermark.NewRedisStore(client, cfg.Watermark.KeyPrefix)
	default:
		a.watermarks = watermark.NewPostgresStore(pool)
	}

	var publisher messaging.Publisher = messaging.NopPublisher{}
	var signer *audit.Signer
	if cfg.NATS.Enabled {
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.MaxReconnects = cfg.NATS.MaxReconnects
		if cfg.NATS.ReconnectWait > 0 {
			natsCfg.ReconnectWait = cfg.NATS.ReconnectWait
		}
		client, err := natsclient.NewClient(natsCfg)
		if err != nil {
			logger.Warn("NATS unavailable, run summaries will not be published",
				slog.String("url", cfg.NATS.URL), logging.Error(err))
		} else {
			a.closers = append(a.closers, func() { _ = client.Close() })
			publisher = client
			if cfg.NATS.SigningKey != "" {
				signer = audit.NewSigner(cfg.NATS.SigningKey)
			}
			logger.Info("publishing run summaries to NATS", "url", cfg.NATS.URL)
		}
	}

	reader := source.New(source.Config{
		BaseURL:    cfg.Source.URL,
		APIKey:     cfg.Source.APIKey,
		Timeout:    cfg.Source.Timeout,
		PageSize:   cfg.Source.PageSize,
		MaxRecords: cfg.Source.MaxRecords,
		MaxOffset:  cfg.Source.MaxOffset,
	}, logger)
	registry := tenant.Default()

	a.orchestrator = syncer.New(syncer.Deps{
		Reader:     reader,
		Registry:   registry,
		Index:      iccid.NewBuilder(reader, registry, logger),
		Writer:     writer.New(pool, cfg.Sync.BatchSize, logger),
		Watermarks: a.watermarks,
		Backfill:   backfill.NewReconciler(backfill.NewPostgresStore(pool), logger),
		Refresher:  refresh.New(pool, cfg.Sync.Views, logger),
		Runs:       repo,
		Publisher:  publisher,
		Signer:     signer,
		Logger:     logger,
	})
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
