package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-pos/internal/actionlog"
	"github.com/angelmondragon/packfinderz-pos/internal/bootstrap"
	"github.com/angelmondragon/packfinderz-pos/internal/numbering"
	"github.com/angelmondragon/packfinderz-pos/internal/orders"
	"github.com/angelmondragon/packfinderz-pos/internal/pairing"
	"github.com/angelmondragon/packfinderz-pos/internal/remote"
	"github.com/angelmondragon/packfinderz-pos/internal/syncer"
	"github.com/angelmondragon/packfinderz-pos/internal/syncloop"
	"github.com/angelmondragon/packfinderz-pos/internal/totals"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/db"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/meta"
	"github.com/angelmondragon/packfinderz-pos/pkg/metrics"
	"github.com/angelmondragon/packfinderz-pos/pkg/migrate"
	"github.com/angelmondragon/packfinderz-pos/pkg/redis"
	"github.com/angelmondragon/packfinderz-pos/pkg/secrets"
)

// app holds every component of a running terminal.
type app struct {
	cfg       *config.Config
	logg      *logger.Logger
	db        *db.Client
	kv        *redis.Client
	meta      meta.Store
	syncState meta.Store
	secrets   secrets.Store
	audit     actionlog.Recorder
	registry  *prometheus.Registry
	metrics   *metrics.SyncMetrics
	remote    *remote.Client
	pairing   *pairing.Service
	bootstrap *bootstrap.Engine
	syncer    *syncer.Service
	orders    orders.Service
	runner    *syncloop.Runner
}

// openStore opens the local database, migrates it when configured and
// normalizes order numbers before anything else writes.
func openStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*db.Client, error) {
	client, err := db.New(ctx, cfg.Store, logg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if cfg.Store.AutoMigrate {
		if err := migrate.Up(ctx, sqlDB); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	version, err := migrate.Version(ctx, sqlDB)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	relabels, err := numbering.Normalize(ctx, client.DB())
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("normalize order numbers: %w", err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{
		"path":           cfg.Store.Path,
		"schema_version": version,
		"relabeled":      len(relabels),
	}), "local store ready")
	return client, nil
}

func newApp(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*app, error) {
	a := &app{cfg: cfg, logg: logg}
	var err error
	if a.db, err = openStore(ctx, cfg, logg); err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled() {
		if a.kv, err = redis.New(ctx, cfg.Redis, logg); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	var kv redis.KV
	if a.kv != nil {
		kv = a.kv
	}
	if a.secrets, err = secrets.Open(ctx, cfg.Secrets, kv, logg); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.meta = meta.NewStore(a.db.DB())
	a.syncState = meta.NewSyncState(a.db.DB())
	a.audit = actionlog.NewRecorder(a.db.DB(), logg)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewSyncMetrics(a.registry)

	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	var err error
	a.remote, err = remote.NewClient(a.meta, a.secrets,
		remote.WithTimeout(a.cfg.Sync.RequestTimeout),
		remote.WithLogger(a.logg),
		remote.WithSyncState(a.syncState),
		remote.WithRevokeHook(pairing.RevokedHook(a.audit)),
	)
	if err != nil {
		return err
	}
	if a.pairing, err = pairing.NewService(pairing.ServiceParams{
		Remote:    a.remote,
		Meta:      a.meta,
		Secrets:   a.secrets,
		SyncState: a.syncState,
		Audit:     a.audit,
		Logger:    a.logg,
	}); err != nil {
		return err
	}
	if a.bootstrap, err = bootstrap.NewEngine(bootstrap.EngineParams{
		Remote:    a.remote,
		Tx:        a.db,
		Meta:      a.meta,
		SyncState: a.syncState,
		Audit:     a.audit,
		Logger:    a.logg,
		SeedLimit: a.cfg.Sync.SeedOrderLimit,
	}); err != nil {
		return err
	}
	if a.syncer, err = syncer.NewService(syncer.ServiceParams{
		DB:        a.db.DB(),
		Tx:        a.db,
		Remote:    a.remote,
		Meta:      a.meta,
		SyncState: a.syncState,
		Logger:    a.logg,
	}); err != nil {
		return err
	}

	totalsEngine, err := totals.NewEngine(totals.EngineParams{Scale: a.cfg.Orders.MoneyScale})
	if err != nil {
		return err
	}
	style, err := enums.ParseNumberStyle(strings.ToLower(a.cfg.Orders.NumberStyle))
	if err != nil {
		return err
	}
	alloc, err := numbering.NewAllocator(numbering.AllocatorParams{
		Style:  style,
		Prefix: a.cfg.Orders.NumberPrefix,
		Logger: a.logg,
	})
	if err != nil {
		return err
	}
	if a.orders, err = orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(a.db.DB()),
		Tx:      a.db,
		Totals:  totalsEngine,
		Numbers: alloc,
		Meta:    a.meta,
		Audit:   a.audit,
		Logger:  a.logg,
	}); err != nil {
		return err
	}

	a.runner, err = syncloop.NewRunner(syncloop.RunnerParams{
		Syncer:    a.syncer,
		Bootstrap: a.bootstrap,
		Meta:      a.meta,
		SyncState: a.syncState,
		Metrics:   a.metrics,
		Logger:    a.logg,
		Floor:     a.cfg.Sync.BackoffFloor,
		Ceiling:   a.cfg.Sync.BackoffCeiling,
		BatchSize: a.cfg.Sync.PushBatchSize,
	})
	return err
}

func (a *app) Close() error {
	var err error
	if a.kv != nil {
		err = multierr.Append(err, a.kv.Close())
	}
	if a.db != nil {
		err = multierr.Append(err, a.db.Close())
	}
	return err
}
