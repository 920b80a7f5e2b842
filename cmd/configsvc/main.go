package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cacsvc/core/pkg/config"
	"github.com/cacsvc/core/pkg/contextregistry"
	"github.com/cacsvc/core/pkg/defaultconfig"
	"github.com/cacsvc/core/pkg/dimension"
	"github.com/cacsvc/core/pkg/httpapi"
	"github.com/cacsvc/core/pkg/idempotency"
	"github.com/cacsvc/core/pkg/resolver"

	_ "github.com/lib/pq"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()
	cfg := config.Load()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		return 1
	}
	logger.Info("postgres: connected")

	dimStore := dimension.NewPostgresStore(db)
	if err := dimStore.Init(ctx); err != nil {
		logger.Error("failed to init dimension store", "error", err)
		return 1
	}
	dimensions := dimension.New(dimStore)

	defaultStore := defaultconfig.NewPostgresStore(db)
	if err := defaultStore.Init(ctx); err != nil {
		logger.Error("failed to init default-config store", "error", err)
		return 1
	}
	defaults := defaultconfig.New(defaultStore)

	contextStore := contextregistry.NewPostgresStore(db)
	if err := contextStore.Init(ctx); err != nil {
		logger.Error("failed to init context store", "error", err)
		return 1
	}
	contexts := contextregistry.New(contextStore, dimensions, defaults)

	res := resolver.New(defaults, contexts, logger)

	idemStore := idempotency.NewPostgresStore(db, 24*time.Hour)
	if err := idemStore.Init(); err != nil {
		logger.Error("failed to init idempotency store", "error", err)
		return 1
	}

	if err := bootstrapSeeds(ctx, cfg.SeedDir, dimensions, defaults, logger); err != nil {
		logger.Warn("seed bootstrap skipped", "error", err)
	}

	a := &api{dimensions: dimensions, defaults: defaults, contexts: contexts, resolver: res}

	limiter := httpapi.NewRateLimiter(100, 200)
	handler := httpapi.Chain(
		httpapi.RequestID,
		httpapi.AccessLog(logger),
		limiter.Middleware,
		idempotency.Middleware(idemStore),
	)(a.routes())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("configsvc: listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("configsvc: shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return 1
	}
	return 0
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// bootstrapSeeds loads dimension and default-config entries from
// SEED_DIR so a fresh deployment starts with a usable baseline instead
// of an empty registry. Missing or empty seed directories are not an
// error: an operator may prefer to populate the registries entirely
// through the API.
func bootstrapSeeds(ctx context.Context, dir string, dimensions *dimension.Registry, defaults *defaultconfig.Registry, logger *slog.Logger) error {
	seed, err := config.LoadAllSeeds(dir)
	if err != nil {
		return err
	}

	for _, d := range seed.Dimensions {
		err := dimensions.Create(ctx, dimensionFromSeed(d))
		if err != nil {
			logger.Warn("seed dimension rejected", "name", d.Name, "error", err)
		}
	}

	for _, dc := range seed.DefaultConfigs {
		entry, err := defaultConfigFromSeed(dc)
		if err != nil {
			logger.Warn("seed default-config malformed", "key", dc.Key, "error", err)
			continue
		}
		if err := defaults.Upsert(ctx, entry); err != nil {
			logger.Warn("seed default-config rejected", "key", dc.Key, "error", err)
		}
	}

	logger.Info("seed bootstrap complete", "dimensions", len(seed.Dimensions), "default_configs", len(seed.DefaultConfigs))
	return nil
}

func dimensionFromSeed(d config.SeedDimension) dimension.Dimension {
	return dimension.Dimension{
		Name:      d.Name,
		Priority:  d.Priority,
		CreatedAt: time.Now().UTC(),
		CreatedBy: "seed",
	}
}

func defaultConfigFromSeed(dc config.SeedDefaultConfig) (defaultconfig.Entry, error) {
	value, err := dc.ValueJSON()
	if err != nil {
		return defaultconfig.Entry{}, err
	}
	schema, err := dc.SchemaJSON()
	if err != nil {
		return defaultconfig.Entry{}, err
	}
	return defaultconfig.Entry{Key: dc.Key, Value: value, Schema: schema}, nil
}
