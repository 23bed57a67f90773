package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-correlator/internal/cache"
	"github.com/miradorstack/mirador-correlator/internal/config"
	"github.com/miradorstack/mirador-correlator/internal/correlation"
	"github.com/miradorstack/mirador-correlator/internal/graph"
	"github.com/miradorstack/mirador-correlator/internal/inference"
	"github.com/miradorstack/mirador-correlator/internal/repo"
	"github.com/miradorstack/mirador-correlator/internal/services"
	"github.com/miradorstack/mirador-correlator/internal/telemetry"
)

// graphStore is the read and write side of the dependency graph.
type graphStore interface {
	graph.Store
	correlation.GraphStore
}

// app holds the wired components shared by every command.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	cache      cache.Provider
	db         *sql.DB
	graph      graphStore
	incidents  services.IncidentStore
	correlator *services.CorrelatorService
	discovery  *services.DiscoveryService
}

// newApp wires the correlator and discovery services from cfg. A nil source
// uses the configured discovery API.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, source services.DiscoverySource) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	a.cache = newCacheProvider(cfg.Cache, logger)

	if cfg.Postgres.DSN != "" {
		db, err := repo.OpenPostgres(ctx, repo.PostgresConfig{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			_ = a.cache.Close()
			return nil, err
		}
		if cfg.Postgres.MigrateOnStart {
			if err := repo.EnsureSchema(ctx, db); err != nil {
				_ = db.Close()
				_ = a.cache.Close()
				return nil, err
			}
		}
		a.db = db
		a.graph = repo.NewPostgresGraphStore(db, a.cache, cfg.Cache.GraphTTL, logger)
		a.incidents = repo.NewPostgresIncidentStore(db, cfg.Postgres.IncidentLimit)
	} else {
		logger.Warn("postgres dsn not set, graph and incidents are kept in memory")
		a.graph = graph.NewMemoryStore()
		a.incidents = repo.NewMemoryIncidentStore()
	}

	recorder := telemetry.Multi(telemetry.NewLogRecorder(logger), telemetry.MetricsRecorder{})

	var embedder correlation.EmbeddingProvider = repo.NoopEmbeddings{}
	if cfg.Embeddings.Enabled {
		embedder = repo.NewOpenAIEmbeddings(repo.OpenAIEmbeddingsConfig{
			APIKey:        cfg.Embeddings.APIKey,
			BaseURL:       cfg.Embeddings.BaseURL,
			Model:         cfg.Embeddings.Model,
			Timeout:       cfg.Embeddings.Timeout,
			CacheTTL:      cfg.Cache.EmbeddingTTL,
			RatePerSecond: cfg.Embeddings.RatePerSecond,
			Burst:         cfg.Embeddings.Burst,
		}, a.cache, logger)
	}

	weights := cfg.Correlation.Weights
	correlator := correlation.NewOrchestrator(logger, recorder,
		correlation.Options{
			Threshold:       cfg.Correlation.Threshold,
			StrategyTimeout: cfg.Correlation.StrategyTimeout,
			MaxParallel:     cfg.Correlation.MaxParallel,
		},
		correlation.Weighted{Strategy: correlation.NewTimeWindow(cfg.Correlation.TimeWindow), Weight: weights.TimeWindow},
		correlation.Weighted{Strategy: correlation.NewTopology(a.graph, cfg.Correlation.TopologyDepth, logger), Weight: weights.Topology},
		correlation.Weighted{Strategy: correlation.NewSimilarity(embedder), Weight: weights.Similarity},
	)
	a.correlator = services.NewCorrelatorService(logger, correlator, a.incidents)

	allow, err := inference.LoadAllowList(cfg.Inference.AllowListPath, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load allow-list: %w", err)
	}
	inferrer := inference.NewOrchestrator(logger, recorder,
		inference.Options{StrategyTimeout: cfg.Inference.StrategyTimeout, RunTimeout: cfg.Inference.RunTimeout},
		inference.Without(inference.DefaultStrategies(allow), cfg.Inference.Disabled...)...,
	)

	if source == nil && cfg.Discovery.BaseURL != "" {
		source = repo.NewDiscoveryClient(
			cfg.Discovery.BaseURL,
			cfg.Discovery.ResourcesPath,
			cfg.Discovery.EnrichmentPath,
			cfg.Discovery.Timeout,
			a.cache,
			cfg.Cache.DiscoveryTTL,
		)
	}
	if source != nil {
		a.discovery = services.NewDiscoveryService(logger, source, inferrer,
			graph.NewWriter(a.graph, cfg.Graph.BatchSize, logger))
		a.discovery.UseLock(a.cache)
	}

	logger.Info("components wired",
		slog.Bool("postgres", a.db != nil),
		slog.Bool("embeddings", cfg.Embeddings.Enabled),
		slog.Bool("discovery", a.discovery != nil),
		slog.Any("inference_strategies", inferrer.Strategies()),
	)
	return a, nil
}

// Close releases the database and cache connections.
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close postgres", slog.Any("error", err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("close cache", slog.Any("error", err))
		}
	}
}

func newCacheProvider(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if !cfg.Enabled {
		return cache.NoopProvider{}
	}
	if cfg.Addr == "" {
		return cache.NewMemoryProvider()
	}
	provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		KeyPrefix:    cfg.KeyPrefix,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
	})
	if err != nil {
		logger.Warn("valkey cache unavailable", slog.Any("error", err))
		return cache.NoopProvider{}
	}
	return provider
}
