package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/precedence"
)

var (
	ErrPartialDeletion = errors.New("deduplication stopped after a failed delete batch")
	ErrAlreadyRunning  = errors.New("deduplication already running")
	ErrInvalidPerson   = errors.New("person id is required")
)

const DefaultBatchSize = 100

// Store is the write side of the recurring record collection.
type Store interface {
	ListRecurringRecords(ctx context.Context) ([]model.RecurringRecord, error)
	FetchRecurringRecords(ctx context.Context, personID string) ([]model.RecurringRecord, error)
	DeleteRecurringRecords(ctx context.Context, ids []string) (int, error)
}

type Config struct {
	BatchSize int
	// DryRun computes reports without deleting anything.
	DryRun bool
}

// Request scopes a single run. DryRun is additive with Config.DryRun.
type Request struct {
	PersonID string
	DryRun   bool
}

type Report struct {
	RunID           string `json:"run_id"`
	PersonID        string `json:"person_id,omitempty"`
	DryRun          bool   `json:"dry_run"`
	Scanned         int    `json:"scanned"`
	Kept            int    `json:"kept"`
	Deleted         int    `json:"deleted"`
	Groups          int    `json:"groups"`
	DuplicateGroups int    `json:"duplicate_groups"`
	Ambiguous       int    `json:"ambiguous"`
	Batches         int    `json:"batches"`
	// Pending lists ids that were selected for deletion but not deleted:
	// everything in a dry run, the failed batch onwards after a failure.
	Pending    []string  `json:"pending,omitempty"`
	Complete   bool      `json:"complete"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Maintainer converges the recurring records to one row per key. Runs are
// serialized: a call made while another is in progress fails fast with
// ErrAlreadyRunning.
type Maintainer struct {
	store  Store
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
	mu     sync.Mutex
}

func NewMaintainer(store Store, cfg Config, logger *slog.Logger) *Maintainer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintainer{
		store:  store,
		cfg:    cfg,
		logger: logger,
		tracer: otel.Tracer("trainingplanner/dedup"),
		now:    time.Now,
	}
}

// Deduplicate runs over every recurring record in the store.
func (m *Maintainer) Deduplicate(ctx context.Context) (Report, error) {
	return m.Run(ctx, Request{})
}

// DeduplicatePerson runs over one person's records only.
func (m *Maintainer) DeduplicatePerson(ctx context.Context, personID string) (Report, error) {
	personID = strings.TrimSpace(personID)
	if personID == "" {
		return Report{}, ErrInvalidPerson
	}
	return m.Run(ctx, Request{PersonID: personID})
}

// Run groups records by (person, weekday, slot), keeps the record chosen by
// precedence.Pick and deletes the rest in batches of at most BatchSize ids.
// A failed batch stops the run: earlier batches stay deleted and the report
// returned with ErrPartialDeletion says how far it got. Re-running is safe.
func (m *Maintainer) Run(ctx context.Context, req Request) (Report, error) {
	if !m.mu.TryLock() {
		return Report{}, ErrAlreadyRunning
	}
	defer m.mu.Unlock()

	report := Report{
		RunID:     uuid.NewString(),
		PersonID:  strings.TrimSpace(req.PersonID),
		DryRun:    req.DryRun || m.cfg.DryRun,
		StartedAt: m.now().UTC(),
	}
	ctx, span := m.tracer.Start(ctx, "dedup.Run", trace.WithAttributes(
		attribute.String("dedup.run_id", report.RunID),
		attribute.String("planning.person_id", report.PersonID),
		attribute.Bool("dedup.dry_run", report.DryRun),
	))
	defer span.End()

	records, err := m.load(ctx, report.PersonID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return m.finish(report, err), err
	}

	plan := precedence.BuildPlan(records)
	report.Scanned = len(records)
	report.Groups = len(plan.Keep)
	report.DuplicateGroups = plan.DuplicateKeys
	report.Ambiguous = len(plan.Ambiguous)
	report.Kept = len(plan.Keep)
	for _, c := range plan.Ambiguous {
		m.logger.Warn("multiple validated recurring declarations",
			"run_id", report.RunID,
			"person_id", c.Record.PersonID,
			"weekday", c.Record.Weekday,
			"slot", c.Record.Slot,
			"validated_count", c.Validated,
			"kept_id", c.Record.ID,
		)
	}

	if report.DryRun {
		report.Pending = append([]string(nil), plan.Drop...)
		report.Complete = true
		return m.finish(report, nil), nil
	}

	batch := m.cfg.BatchSize
	for start := 0; start < len(plan.Drop); start += batch {
		end := min(start+batch, len(plan.Drop))
		if err := ctx.Err(); err != nil {
			return m.fail(span, report, plan.Drop[start:], err)
		}
		n, err := m.store.DeleteRecurringRecords(ctx, plan.Drop[start:end])
		if err != nil {
			return m.fail(span, report, plan.Drop[start:], fmt.Errorf("batch %d: %w", report.Batches+1, err))
		}
		report.Batches++
		report.Deleted += n
	}

	report.Complete = true
	span.SetAttributes(
		attribute.Int("dedup.scanned", report.Scanned),
		attribute.Int("dedup.deleted", report.Deleted),
	)
	return m.finish(report, nil), nil
}

func (m *Maintainer) load(ctx context.Context, personID string) ([]model.RecurringRecord, error) {
	if personID == "" {
		records, err := m.store.ListRecurringRecords(ctx)
		if err != nil {
			return nil, fmt.Errorf("list recurring records: %w", err)
		}
		return records, nil
	}
	records, err := m.store.FetchRecurringRecords(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("fetch recurring records: %w", err)
	}
	return records, nil
}

func (m *Maintainer) fail(span trace.Span, report Report, pending []string, cause error) (Report, error) {
	err := fmt.Errorf("%w: %w", ErrPartialDeletion, cause)
	span.RecordError(err)
	span.SetStatus(codes.Error, "partial deletion")
	report.Pending = append([]string(nil), pending...)
	return m.finish(report, err), err
}

func (m *Maintainer) finish(report Report, err error) Report {
	report.FinishedAt = m.now().UTC()
	attrs := []any{
		"run_id", report.RunID,
		"person_id", report.PersonID,
		"dry_run", report.DryRun,
		"scanned", report.Scanned,
		"kept", report.Kept,
		"deleted", report.Deleted,
		"duplicate_groups", report.DuplicateGroups,
		"pending", len(report.Pending),
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	}
	if err != nil {
		report.Error = err.Error()
		m.logger.Error("deduplication failed", append(attrs, "err", err)...)
		return report
	}
	m.logger.Info("deduplication finished", attrs...)
	return report
}
