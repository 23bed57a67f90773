package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/miradorstack/mirador-correlator/internal/cache"
	"github.com/miradorstack/mirador-correlator/internal/config"
	"github.com/miradorstack/mirador-correlator/internal/graph"
	"github.com/miradorstack/mirador-correlator/internal/inference"
	"github.com/miradorstack/mirador-correlator/internal/metrics"
	"github.com/miradorstack/mirador-correlator/internal/models"
)

// DiscoverySource supplies the raw nodes and enrichment for a tenant.
type DiscoverySource interface {
	FetchResources(ctx context.Context, tenantID string) ([]models.ServiceNode, error)
	FetchEnrichment(ctx context.Context, tenantID string) (models.Enrichment, error)
}

// DiscoveryOptions tunes a single discovery run.
type DiscoveryOptions struct {
	// DryRun infers edges without writing to the graph store.
	DryRun bool
}

// DiscoveryService runs inference over a discovery snapshot and writes the
// canonical graph.
type DiscoveryService struct {
	logger       *slog.Logger
	source       DiscoverySource
	orchestrator *inference.Orchestrator
	writer       *graph.Writer
	lock         cache.Provider
}

// NewDiscoveryService wires the discovery pipeline. writer may be nil when
// only dry runs are expected.
func NewDiscoveryService(logger *slog.Logger, source DiscoverySource, orchestrator *inference.Orchestrator, writer *graph.Writer) *DiscoveryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscoveryService{
		logger:       logger,
		source:       source,
		orchestrator: orchestrator,
		writer:       writer,
	}
}

// Run fetches the tenant's resources and enrichment, infers dependency edges
// and, unless opts.DryRun, upserts services and edges into the graph.
func (s *DiscoveryService) Run(ctx context.Context, tenantID string, opts DiscoveryOptions) (models.DiscoveryReport, error) {
	if s == nil || s.source == nil || s.orchestrator == nil {
		return models.DiscoveryReport{}, fmt.Errorf("discovery: %w", ErrNotConfigured)
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return models.DiscoveryReport{}, fmt.Errorf("tenant_id is required: %w", ErrInvalidArgument)
	}
	if !opts.DryRun && s.writer == nil {
		return models.DiscoveryReport{}, fmt.Errorf("graph writer: %w", ErrNotConfigured)
	}

	start := time.Now()
	report := models.DiscoveryReport{
		RunID:     uuid.NewString(),
		TenantID:  tenantID,
		DryRun:    opts.DryRun,
		StartedAt: start.UTC(),
	}
	logger := s.logger.With(slog.String("run_id", report.RunID), slog.String("tenant_id", tenantID))

	fail := func(err error) (models.DiscoveryReport, error) {
		report.DurationMs = time.Since(start).Milliseconds()
		metrics.ObserveDiscovery(time.Since(start), metrics.OutcomeError)
		logger.Error("discovery run failed", slog.Any("error", err))
		return report, err
	}

	nodes, err := s.source.FetchResources(ctx, tenantID)
	if err != nil {
		return fail(fmt.Errorf("fetch resources: %w", err))
	}
	report.Nodes = len(nodes)

	enrichment, err := s.source.FetchEnrichment(ctx, tenantID)
	if err != nil {
		if ctx.Err() != nil {
			return fail(fmt.Errorf("fetch enrichment: %w", ctx.Err()))
		}
		logger.Warn("enrichment unavailable, inferring from resources only", slog.Any("error", err))
		enrichment = models.Enrichment{}
	}

	result, err := s.orchestrator.Run(ctx, tenantID, nodes, enrichment)
	if err != nil {
		return fail(fmt.Errorf("infer dependencies: %w", err))
	}
	report.Proposed = result.Proposed
	report.Edges = result.Edges
	report.Strategies = result.Strategies
	report.Failures = result.Failures

	if !opts.DryRun {
		written, err := s.writer.WriteServices(ctx, tenantID, nodes)
		report.ServicesWritten = written
		if err != nil {
			return fail(fmt.Errorf("write services: %w", err))
		}
		written, err = s.writer.WriteDependencies(ctx, tenantID, result.Edges)
		report.EdgesWritten = written
		if err != nil {
			return fail(fmt.Errorf("write dependencies: %w", err))
		}
	}

	duration := time.Since(start)
	report.DurationMs = duration.Milliseconds()
	metrics.ObserveDiscovery(duration, metrics.OutcomeSuccess)
	logger.Info("discovery run complete",
		slog.Int("nodes", report.Nodes),
		slog.Int("proposed", report.Proposed),
		slog.Int("edges", len(report.Edges)),
		slog.Int("failures", report.Failures),
		slog.Bool("dry_run", report.DryRun),
		slog.Duration("duration", duration),
	)
	return report, nil
}

// Schedule discovers every tenant once, then again on each tick of the cron
// spec until ctx is done. Overlapping ticks are skipped.
func (s *DiscoveryService) Schedule(ctx context.Context, tenants []string, spec string) error {
	if spec == "" || len(tenants) == 0 {
		return nil
	}
	sched, err := config.ScheduleParser.Parse(spec)
	if err != nil {
		return fmt.Errorf("discovery schedule %q: %w", spec, err)
	}
	lockTTL := tickLockTTL(sched, time.Now())

	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithParser(config.ScheduleParser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	runAll := func() { s.runScheduled(ctx, tenants, lockTTL) }
	c.Schedule(sched, cron.FuncJob(runAll))

	s.logger.Info("discovery scheduled", slog.String("schedule", spec), slog.Any("tenants", tenants))
	runAll()
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// UseLock makes scheduled runs claim a per-tenant key in p first, so only one
// replica sharing p discovers a tenant on each tick.
func (s *DiscoveryService) UseLock(p cache.Provider) {
	s.lock = p
}

func (s *DiscoveryService) runScheduled(ctx context.Context, tenants []string, lockTTL time.Duration) {
	for _, tenant := range tenants {
		if ctx.Err() != nil {
			return
		}
		if s.lock != nil {
			claimed, err := s.lock.SetNX(ctx, "discovery:lock:"+tenant, []byte(time.Now().UTC().Format(time.RFC3339)), lockTTL)
			if err != nil {
				s.logger.Warn("discovery lock unavailable, running anyway", slog.String("tenant_id", tenant), slog.Any("error", err))
			} else if !claimed {
				s.logger.Debug("discovery tick claimed elsewhere", slog.String("tenant_id", tenant))
				continue
			}
		}
		_, _ = s.Run(ctx, tenant, DiscoveryOptions{})
	}
}

// tickLockTTL is half the gap between the schedule's next two ticks, so a
// claim outlives clock skew between replicas but expires before the next tick.
func tickLockTTL(sched cron.Schedule, now time.Time) time.Duration {
	next := sched.Next(now)
	ttl := sched.Next(next).Sub(next) / 2
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

// cronLogger routes cron's scheduler logs into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
