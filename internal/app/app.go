// Package app wires configuration into a running service: the query
// source, the result cache, the session manager and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/systemshift/cypherview/internal/cache"
	"github.com/systemshift/cypherview/internal/config"
	"github.com/systemshift/cypherview/internal/gateway"
	"github.com/systemshift/cypherview/internal/metrics"
	"github.com/systemshift/cypherview/internal/server/api"
	"github.com/systemshift/cypherview/internal/server/graph"
	"github.com/systemshift/cypherview/internal/viz/session"
)

// ErrNoSource is returned when neither a gateway URL nor any database is
// configured.
var ErrNoSource = errors.New("no query source: set gateway.url or configure a database")

// App holds the long-lived components.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	Pool     *graph.Pool
	Fetcher  session.Fetcher
	Sessions *session.Manager
	API      *api.Server

	store cache.Store
}

// Build creates every component from cfg. Close releases them.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(cfg.Metrics.Namespace),
	}

	if len(cfg.Databases) > 0 {
		configs := make(map[string]graph.Config, len(cfg.Databases))
		for name, db := range cfg.Databases {
			configs[name] = graph.Config{
				URI:      db.URI,
				Username: db.Username,
				Password: db.Password,
				Database: db.Database,
			}
		}
		a.Pool = graph.NewPool(configs, nil, logger.Named("neo4j"), a.Metrics)
	}

	var upstream cache.Upstream
	switch {
	case cfg.Gateway.URL != "":
		client, err := gateway.New(cfg.GatewayClientConfig(), logger.Named("gateway"))
		if err != nil {
			return nil, err
		}
		upstream = client
		logger.Info("Reading query results from gateway", zap.String("url", cfg.Gateway.URL))
	case a.Pool != nil:
		upstream = a.Pool
		logger.Info("Reading query results from Neo4j", zap.Strings("databases", a.Pool.Databases()))
	default:
		return nil, ErrNoSource
	}

	store, err := openStore(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	a.store = store
	if store != nil {
		a.Fetcher = cache.NewFetcher(upstream, store, cfg.Cache.TTL.Duration, cfg.Cache.Backend, logger.Named("cache"), a.Metrics)
	} else {
		a.Fetcher = upstream
	}

	a.Sessions = session.NewManager(a.Fetcher, cfg.SessionOptions(), logger.Named("session"), a.Metrics)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	a.API = api.New(a.Pool, a.Sessions, a.Metrics, logger.Named("http"), api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MetricsPath:    metricsPath,
	})
	return a, nil
}

// Router returns the HTTP handler.
func (a *App) Router() *chi.Mux {
	return a.API.Router()
}

// Close stops every session and closes the cache and database drivers.
func (a *App) Close(ctx context.Context) error {
	a.Sessions.Shutdown()

	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing cache: %w", err))
		}
	}
	if a.Pool != nil {
		if err := a.Pool.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return cache.NewMemory(cfg.MaxEntries), nil
	case "redis":
		return cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case "sqlite":
		return cache.NewSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
