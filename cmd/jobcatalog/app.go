package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amishk599/jobcatalog/internal/adapter"
	"github.com/amishk599/jobcatalog/internal/clock"
	"github.com/amishk599/jobcatalog/internal/collector"
	"github.com/amishk599/jobcatalog/internal/config"
	"github.com/amishk599/jobcatalog/internal/dedup"
	"github.com/amishk599/jobcatalog/internal/embed"
	"github.com/amishk599/jobcatalog/internal/kv"
	"github.com/amishk599/jobcatalog/internal/loader"
	"github.com/amishk599/jobcatalog/internal/lock"
	"github.com/amishk599/jobcatalog/internal/metrics"
	"github.com/amishk599/jobcatalog/internal/model"
	"github.com/amishk599/jobcatalog/internal/notifier"
	"github.com/amishk599/jobcatalog/internal/orchestrator"
	"github.com/amishk599/jobcatalog/internal/processor"
	"github.com/amishk599/jobcatalog/internal/ratelimit"
	"github.com/amishk599/jobcatalog/internal/rawstore"
	"github.com/amishk599/jobcatalog/internal/retry"
	"github.com/amishk599/jobcatalog/internal/search"
	"github.com/amishk599/jobcatalog/internal/skills"
	"github.com/amishk599/jobcatalog/internal/store"
	"github.com/amishk599/jobcatalog/internal/vectorindex"
)

const lockPrefix = "jobcatalog:sig:"

// app holds the wired pipeline. Commands build one, use what they need and Close it.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	clock  clock.Clock

	store    *store.Store
	backend  *kv.Backend
	raw      *rawstore.Store
	vectors  *vectorindex.Index
	sources  *adapter.Registry
	embedder model.Embedder
	metrics  *metrics.Metrics
	notifier notifier.Notifier

	collector *collector.Collector
	processor *processor.Processor
	loader    *loader.Loader
	orch      *orchestrator.Orchestrator
	searcher  *search.Searcher

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, clock: clock.Real{}, metrics: metrics.New()}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) (err error) {
	cfg, logger := a.cfg, a.logger

	a.store, err = store.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	a.backend, err = kv.Open(cfg.Storage.BadgerDir, false, logger)
	if err != nil {
		return fmt.Errorf("open kv backend: %w", err)
	}
	a.closers = append(a.closers, a.backend.Close)
	a.raw = rawstore.New(a.backend)
	a.vectors = vectorindex.New(a.backend)

	httpClient := &http.Client{Timeout: cfg.Collector.Timeout}
	a.sources, err = adapter.NewRegistry(cfg.Sources, httpClient)
	if err != nil {
		return fmt.Errorf("build sources: %w", err)
	}
	limiters, err := buildLimiters(cfg.Sources, a.clock)
	if err != nil {
		return err
	}

	a.embedder, err = embed.New(cfg.Embedding, logger)
	if err != nil {
		return fmt.Errorf("build embedder: %w", err)
	}
	taxonomy, err := loadTaxonomy(cfg.Skills)
	if err != nil {
		return err
	}

	var closeNotifier func() error
	a.notifier, closeNotifier, err = notifier.New(cfg.Notification, &http.Client{Timeout: 30 * time.Second}, logger)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}
	a.closers = append(a.closers, closeNotifier)

	a.collector = collector.New(a.sources, a.raw, limiters, collector.Options{
		Policy: retry.Policy{
			MaxAttempts: cfg.Collector.MaxAttempts,
			BaseDelay:   cfg.Collector.BaseDelay,
			MaxDelay:    cfg.Collector.MaxDelay,
			Jitter:      0.3,
		},
		Timeout:  cfg.Collector.Timeout,
		MaxPages: cfg.Collector.MaxPages,
	}, a.clock, logger)

	a.processor, err = processor.New(a.raw, a.store, a.sources, taxonomy, a.embedder, processor.Options{
		BatchWorkers: cfg.Processor.BatchWorkers,
		ItemWorkers:  cfg.Processor.ItemWorkers,
		EmbeddingPolicy: retry.Policy{
			MaxAttempts: cfg.Processor.EmbeddingAttempts,
			BaseDelay:   cfg.Processor.EmbeddingDelay,
			Jitter:      0.3,
		},
	}, a.clock, logger)
	if err != nil {
		return fmt.Errorf("build processor: %w", err)
	}
	a.closers = append(a.closers, func() error { a.processor.Release(); return nil })

	locker, err := a.locker()
	if err != nil {
		return err
	}
	a.loader = loader.New(a.store, dedup.New(cfg.Dedup), locker, loader.Options{
		ConflictAttempts: cfg.Dedup.ConflictAttempts,
	}, a.clock, logger)

	a.orch = orchestrator.New(a.collector, a.processor, a.loader, a.store.Queries(), a.notifier, a.metrics, orchestrator.Options{
		Targets:        orchestrator.Targets(cfg),
		SettleDelay:    cfg.Orchestrator.SettleDelay,
		RunTimeout:     cfg.Orchestrator.RunTimeout,
		Embedder:       a.processor,
		EmbeddingModel: a.embedder.Model(),
	}, a.clock, logger)

	a.searcher = search.New(a.store, a.vectors, a.embedder, logger)
	return nil
}

// locker picks the redis lock when configured, else an in-process one.
func (a *app) locker() (lock.Locker, error) {
	if a.cfg.Lock.RedisAddr == "" {
		return lock.NewKeyedMutex(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: a.cfg.Lock.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", a.cfg.Lock.RedisAddr, err)
	}
	a.closers = append(a.closers, client.Close)
	a.logger.Info("using redis signature lock", "addr", a.cfg.Lock.RedisAddr)
	return lock.NewRedisLocker(client, lockPrefix, a.cfg.Lock.TTL, a.logger), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func buildLimiters(sources []config.SourceConfig, clk clock.Clock) (*ratelimit.Registry, error) {
	reg := ratelimit.NewRegistry()
	for _, s := range sources {
		l, err := ratelimit.New(ratelimit.Config{
			Strategy: s.RateLimit.Strategy,
			RPS:      s.RateLimit.RPS,
			Burst:    s.RateLimit.Burst,
			MinDelay: s.RateLimit.MinDelay,
		}, clk)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", s.Name, err)
		}
		reg.Set(s.Name, l)
	}
	return reg, nil
}

func loadTaxonomy(cfg config.SkillsConfig) (*skills.Taxonomy, error) {
	if cfg.TaxonomyFile == "" {
		return skills.Default()
	}
	t, err := skills.Load(cfg.TaxonomyFile)
	if err != nil {
		return nil, fmt.Errorf("load skills taxonomy: %w", err)
	}
	return t, nil
}
