package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"notionrelay/internal/state"
)

const (
	otelScope       = "notionrelay/sync"
	spanSyncAll     = "sync.all"
	metricCreated   = "notionrelay.sync.items.created"
	metricUpdated   = "notionrelay.sync.items.updated"
	metricDeleted   = "notionrelay.sync.items.deleted"
	metricConflicts = "notionrelay.sync.conflicts"
	metricErrors    = "notionrelay.sync.errors"
)

// Stats tracks the number of mutations performed in a single sync pass.
type Stats struct {
	Created   int
	Updated   int
	Deleted   int
	Conflicts int
	Errors    int
}

func (s *Stats) add(d statsDelta) {
	s.Created += d.created
	s.Updated += d.updated
	s.Deleted += d.deleted
	s.Conflicts += d.conflicts
}

func (s *Stats) merge(o Stats) {
	s.Created += o.Created
	s.Updated += o.Updated
	s.Deleted += o.Deleted
	s.Conflicts += o.Conflicts
	s.Errors += o.Errors
}

// Orchestrator runs sync passes over all enabled mappings. It is an explicit
// instance with injected collaborators — tests run isolated orchestrators in
// parallel. A single cooperative flag serializes passes: a trigger arriving
// while a pass runs fails fast with [ErrAlreadySyncing] instead of queueing.
type Orchestrator struct {
	apple  TaskSource
	notion RecordSource
	store  StateStore
	exec   *Executor
	log    *slog.Logger

	mu       stdsync.Mutex
	syncing  bool
	lastSync time.Time
	lastErr  error

	// OTel instruments — always non-nil (no-op when telemetry is disabled).
	tracer       trace.Tracer
	cntCreated   metric.Int64Counter
	cntUpdated   metric.Int64Counter
	cntDeleted   metric.Int64Counter
	cntConflicts metric.Int64Counter
	cntErrors    metric.Int64Counter
}

// NewOrchestrator creates an Orchestrator wired to the given adapters and
// state store.
func NewOrchestrator(apple TaskSource, notion RecordSource, store StateStore, logger *slog.Logger) *Orchestrator {
	tracer := otel.Tracer(otelScope)
	meter := otel.Meter(otelScope)

	mustCounter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Error("creating OTel counter", "name", name, "error", err)
			return noop.Int64Counter{}
		}
		return c
	}

	return &Orchestrator{
		apple:  apple,
		notion: notion,
		store:  store,
		exec:   NewExecutor(apple, notion, store, logger),
		log:    logger,

		tracer:       tracer,
		cntCreated:   mustCounter(metricCreated, "Number of items created during sync"),
		cntUpdated:   mustCounter(metricUpdated, "Number of items updated during sync"),
		cntDeleted:   mustCounter(metricDeleted, "Number of items deleted during sync"),
		cntConflicts: mustCounter(metricConflicts, "Number of conflict resolutions during sync"),
		cntErrors:    mustCounter(metricErrors, "Number of errors encountered during sync"),
	}
}

// Status reports whether a pass is running, plus the last pass's completion
// time and aggregate error. The error is observability only — callers must
// not branch on it.
func (o *Orchestrator) Status() (syncing bool, lastSync time.Time, lastErr error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.syncing, o.lastSync, o.lastErr
}

// begin transitions Idle → Syncing, or fails fast when a pass is running.
func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.syncing {
		return ErrAlreadySyncing
	}
	o.syncing = true
	return nil
}

// end transitions back to Idle and records the pass outcome. Always called
// via defer so a panicking action cannot wedge the flag.
func (o *Orchestrator) end(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.syncing = false
	o.lastSync = time.Now().UTC()
	o.lastErr = err
}

// SyncAll runs one pass over every enabled mapping, strictly sequentially.
// Mapping-level errors are captured and the loop continues: every enabled
// mapping is attempted exactly once per invocation. The returned error joins
// all mapping errors and is surfaced for observability only.
func (o *Orchestrator) SyncAll(ctx context.Context) (Stats, error) {
	if err := o.begin(); err != nil {
		return Stats{}, err
	}

	var stats Stats
	var passErr error
	defer func() { o.end(passErr) }()

	ctx, span := o.tracer.Start(ctx, spanSyncAll)
	defer span.End()

	mappings, err := o.store.ListMappings(ctx)
	if err != nil {
		passErr = fmt.Errorf("loading mappings: %w", err)
		span.RecordError(passErr)
		return stats, passErr
	}

	var errs []error
	for _, m := range mappings {
		if !m.Enabled {
			continue
		}
		ms, err := o.syncMapping(ctx, m)
		stats.merge(ms)
		if err != nil {
			errs = append(errs, fmt.Errorf("mapping %q: %w", m.AppleListID, err))
		}
	}
	passErr = errors.Join(errs...)

	o.recordStats(ctx, span, stats, passErr)

	o.log.Info("sync pass complete",
		"created", stats.Created,
		"updated", stats.Updated,
		"deleted", stats.Deleted,
		"conflicts", stats.Conflicts,
		"errors", stats.Errors,
	)

	return stats, passErr
}

// syncMapping runs one full pass for a single mapping: fetch both sides,
// plan, execute every action, write history, stamp the mapping.
func (o *Orchestrator) syncMapping(ctx context.Context, m *state.Mapping) (Stats, error) {
	o.log.Debug("syncing mapping", "list", m.AppleListID, "database", m.NotionDatabaseID)

	var stats Stats

	appleItems, err := o.apple.ListItems(ctx, m.AppleListID)
	if err != nil {
		return stats, fmt.Errorf("fetching reminders: %w", err)
	}

	notionItems, err := o.notion.ListRecords(ctx, m)
	if err != nil {
		return stats, fmt.Errorf("fetching Notion pages: %w", err)
	}

	records, err := o.store.RecordsForMapping(ctx, m.ID)
	if err != nil {
		return stats, fmt.Errorf("loading sync records: %w", err)
	}

	plan := buildPlan(appleItems, notionItems, records)

	// Action errors are isolated: record the string, keep going.
	var errStrings []string
	for _, act := range plan {
		delta, err := o.exec.execute(ctx, act, m)
		if err != nil {
			o.log.Error("sync action failed",
				"action", act.kind,
				"title", act.title(),
				"error", err,
			)
			stats.Errors++
			errStrings = append(errStrings, fmt.Sprintf("%s %q: %v", act.kind, act.title(), err))
			continue
		}
		stats.add(delta)
	}

	now := time.Now().UTC()
	entry := &state.HistoryEntry{
		MappingID: m.ID,
		Operation: "sync",
		Created:   stats.Created,
		Updated:   stats.Updated,
		Deleted:   stats.Deleted,
		Conflicts: stats.Conflicts,
		Errors:    errStrings,
		Timestamp: now,
	}
	if err := o.store.AppendHistory(ctx, entry); err != nil {
		return stats, fmt.Errorf("writing history: %w", err)
	}
	if err := o.store.TouchMapping(ctx, m.ID, now); err != nil {
		return stats, fmt.Errorf("stamping mapping: %w", err)
	}

	return stats, nil
}

// recordStats emits the pass counters and span attributes.
func (o *Orchestrator) recordStats(ctx context.Context, span trace.Span, stats Stats, err error) {
	if stats.Created > 0 {
		o.cntCreated.Add(ctx, int64(stats.Created))
	}
	if stats.Updated > 0 {
		o.cntUpdated.Add(ctx, int64(stats.Updated))
	}
	if stats.Deleted > 0 {
		o.cntDeleted.Add(ctx, int64(stats.Deleted))
	}
	if stats.Conflicts > 0 {
		o.cntConflicts.Add(ctx, int64(stats.Conflicts))
	}
	if stats.Errors > 0 {
		o.cntErrors.Add(ctx, int64(stats.Errors))
	}

	span.SetAttributes(
		attribute.Int("sync.created", stats.Created),
		attribute.Int("sync.updated", stats.Updated),
		attribute.Int("sync.deleted", stats.Deleted),
		attribute.Int("sync.conflicts", stats.Conflicts),
		attribute.Int("sync.errors", stats.Errors),
	)
	if err != nil {
		span.RecordError(err)
	}
}
