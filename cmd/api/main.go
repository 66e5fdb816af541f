package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/routes"
	"github.com/angelmondragon/storefront/internal/backend"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/catalog"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/cron"
	"github.com/angelmondragon/storefront/internal/snapshots"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/instance"
	"github.com/angelmondragon/storefront/pkg/kv"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
	"github.com/angelmondragon/storefront/pkg/migrate"
	"github.com/angelmondragon/storefront/pkg/redis"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Instance:    instance.GetID(),
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"cart_storage": cfg.Cart.Storage,
	})

	var closers []io.Closer
	defer func() {
		var errs error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, closers[i].Close())
		}
		if errs != nil {
			logg.Error(context.Background(), "error releasing resources", errs)
		}
	}()

	pingers := map[string]controllers.Pinger{}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		closers = append(closers, redisClient)
		pingers["redis"] = redisClient
	}

	cartMetrics := metrics.NewCartMetrics(prometheus.DefaultRegisterer)

	var storage kv.Store
	switch cfg.Cart.Storage {
	case config.CartStorageRedis:
		storage = redisClient.KV(cfg.Cart.TTL)
	case config.CartStorageSQL:
		dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
		requireResource(ctx, logg, "database", err)
		closers = append(closers, dbClient)
		pingers["database"] = dbClient

		err = migrate.MaybeRunDev(ctx, cfg.App.IsDev(), cfg.FeatureFlags.AutoMigrate, logg, dbClient)
		requireResource(ctx, logg, "dev migrations", err)

		repo, err := snapshots.NewRepository(dbClient.DB())
		requireResource(ctx, logg, "snapshot repository", err)
		storage = repo

		maintenance, err := newMaintenance(cfg, logg, repo, redisClient)
		requireResource(ctx, logg, "maintenance", err)
		go func() {
			if err := maintenance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "maintenance loop stopped unexpectedly", err)
			}
		}()
	default:
		storage = kv.NewMemory()
	}

	backendClient, err := backend.NewClient(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithAPIToken(cfg.Backend.APIToken),
		backend.WithLogger(logg),
	)
	requireResource(ctx, logg, "backend client", err)
	pingers["backend"] = backendClient

	catalogParams := catalog.ServiceParams{Source: backendClient, CacheTTL: cfg.Backend.ProductCacheTTL, Logger: logg}
	if redisClient != nil {
		catalogParams.Cache = redisClient
	}
	catalogService, err := catalog.NewService(catalogParams)
	requireResource(ctx, logg, "catalog service", err)

	checkoutService, err := checkout.NewService(backendClient, logg)
	requireResource(ctx, logg, "checkout service", err)

	carts := cart.NewRegistry(cart.RegistryParams{
		Storage:   storage,
		KeyPrefix: cfg.Cart.KeyPrefix,
		Logger:    logg,
		Metrics:   cartMetrics,
	})
	go carts.Run(ctx, cfg.Cart.SweepInterval, cfg.Cart.IdleTimeout)

	deps := routes.Deps{
		Carts:    carts,
		Catalog:  catalogService,
		Checkout: checkoutService,
		Pingers:  pingers,
		Gatherer: prometheus.DefaultGatherer,
	}
	if redisClient != nil {
		deps.Idempotency = redisClient
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "graceful shutdown failed", err)
		}
		logg.Info(shutdownCtx, "api server shut down")
	}
}

func newMaintenance(cfg *config.Config, logg *logger.Logger, repo *snapshots.Repository, redisClient *redis.Client) (*cron.Service, error) {
	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	job, err := cron.NewSnapshotRetentionJob(cron.SnapshotRetentionJobParams{
		Logger:    logg,
		Snapshots: repo,
		Retention: cfg.Cart.Retention,
		Metrics:   jobMetrics,
	})
	if err != nil {
		return nil, err
	}

	registry, err := cron.NewRegistry(job)
	if err != nil {
		return nil, err
	}
	params := cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Metrics:  jobMetrics,
		Interval: cfg.Cart.MaintenanceInterval,
	}
	if redisClient != nil {
		lock, err := cron.NewRedisLock(redisClient, redisClient.CacheKey(cron.LockScope, cfg.App.Env), 0)
		if err != nil {
			return nil, fmt.Errorf("maintenance lock: %w", err)
		}
		params.Lock = lock
	}
	return cron.NewService(params)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
