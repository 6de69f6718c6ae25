package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/calendar"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/overrides"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/precedence"
)

var (
	ErrStoreUnavailable = errors.New("availability store unavailable")
	ErrInvalidQuery     = errors.New("invalid availability query")
)

// Store is the read side of the record store.
type Store interface {
	FetchRecurringRecords(ctx context.Context, personID string) ([]model.RecurringRecord, error)
	FetchExceptionalRecords(ctx context.Context, personID string, approval model.Approval) ([]model.OverrideRecord, error)
}

type Query struct {
	PersonID string
	Date     string
	// Weekday is optional; when empty it is derived from Date.
	Weekday model.Weekday
	Slot    model.Slot
}

type Decision struct {
	Status model.Status
	Source model.Source
	// Declared is the raw status of the authoritative recurring record.
	Declared    model.Status
	RecordID    string
	OverrideIDs []string
}

// unknown is decided on the recurring-pattern path even when no record or
// no data was available.
func unknown() Decision {
	return Decision{Status: model.StatusUnknown, Source: model.SourceRecurring}
}

// Engine resolves availability from a read-only view of the store. It keeps
// no state between calls and is safe for concurrent use.
type Engine struct {
	store     Store
	cal       calendar.Calendar
	overrides overrides.Resolver
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewEngine(store Store, cal calendar.Calendar, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:     store,
		cal:       cal,
		overrides: overrides.NewResolver(cal),
		logger:    logger,
		tracer:    otel.Tracer("trainingplanner/availability"),
	}
}

func (e *Engine) Calendar() calendar.Calendar {
	return e.cal
}

type target struct {
	personID string
	date     string
	weekday  model.Weekday
	business bool
	slot     model.Slot
}

func (e *Engine) normalize(q Query) (target, error) {
	personID := strings.TrimSpace(q.PersonID)
	if personID == "" {
		return target{}, fmt.Errorf("%w: person id is required", ErrInvalidQuery)
	}
	date, err := e.cal.Normalize(q.Date)
	if err != nil {
		return target{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	derived, business, err := e.cal.Weekday(date)
	if err != nil {
		return target{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if q.Weekday != "" {
		wd, err := model.ParseWeekday(string(q.Weekday))
		if err != nil {
			return target{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
		if !business || wd != derived {
			return target{}, fmt.Errorf("%w: %s is not a %s", ErrInvalidQuery, date, wd)
		}
	}
	slot, err := model.ParseSlot(string(q.Slot))
	if err != nil {
		return target{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return target{personID: personID, date: date, weekday: derived, business: business, slot: slot}, nil
}

// Resolve decides availability for one (person, date, slot):
//  1. an approved absence covering the date makes it unavailable, whatever
//     the slot;
//  2. otherwise an approved exceptional availability makes it available,
//     even over a recurring "unavailable";
//  3. otherwise the authoritative recurring record for the weekday and slot
//     decides; without one the status is unknown.
//
// Store failures are returned wrapped in ErrStoreUnavailable together with an
// unknown decision.
func (e *Engine) Resolve(ctx context.Context, q Query) (Decision, error) {
	ctx, span := e.tracer.Start(ctx, "availability.Resolve", trace.WithAttributes(
		attribute.String("planning.person_id", q.PersonID),
		attribute.String("planning.date", q.Date),
		attribute.String("planning.slot", string(q.Slot)),
	))
	defer span.End()

	t, err := e.normalize(q)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return unknown(), err
	}

	records, err := e.fetchOverrides(ctx, t.personID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
		return unknown(), err
	}
	if d, ok := e.decideOverrides(records, t); ok {
		span.SetAttributes(attribute.String("planning.source", string(d.Source)))
		return d, nil
	}
	if !t.business {
		return unknown(), nil
	}

	recurring, err := e.fetchRecurring(ctx, t.personID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unavailable")
		return unknown(), err
	}
	d := e.decideRecurring(recurring, t)
	span.SetAttributes(attribute.String("planning.source", string(d.Source)))
	return d, nil
}

// IsExceptionallyAbsent reports whether an approved absence covers date.
func (e *Engine) IsExceptionallyAbsent(ctx context.Context, personID, date string) (bool, error) {
	m, err := e.matchOverrides(ctx, personID, date)
	if err != nil {
		return false, err
	}
	return m.Absent(), nil
}

// IsExceptionallyAvailable reports whether an approved exceptional
// availability covers date.
func (e *Engine) IsExceptionallyAvailable(ctx context.Context, personID, date string) (bool, error) {
	m, err := e.matchOverrides(ctx, personID, date)
	if err != nil {
		return false, err
	}
	return m.Available(), nil
}

func (e *Engine) matchOverrides(ctx context.Context, personID, date string) (overrides.Match, error) {
	if strings.TrimSpace(personID) == "" {
		return overrides.Match{}, fmt.Errorf("%w: person id is required", ErrInvalidQuery)
	}
	if _, err := e.cal.Parse(date); err != nil {
		return overrides.Match{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	records, err := e.fetchOverrides(ctx, personID)
	if err != nil {
		return overrides.Match{}, err
	}
	m, err := e.overrides.Evaluate(records, date)
	if err != nil {
		return overrides.Match{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	e.logMalformed(personID, m)
	return m, nil
}

func (e *Engine) fetchOverrides(ctx context.Context, personID string) ([]model.OverrideRecord, error) {
	records, err := e.store.FetchExceptionalRecords(ctx, personID, model.ApprovalApproved)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch exceptional records: %w", ErrStoreUnavailable, err)
	}
	return records, nil
}

func (e *Engine) fetchRecurring(ctx context.Context, personID string) ([]model.RecurringRecord, error) {
	records, err := e.store.FetchRecurringRecords(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch recurring records: %w", ErrStoreUnavailable, err)
	}
	return records, nil
}

func (e *Engine) decideOverrides(records []model.OverrideRecord, t target) (Decision, bool) {
	m, err := e.overrides.Evaluate(records, t.date)
	if err != nil {
		// t.date was normalized already; nothing can match an unparseable date.
		return Decision{}, false
	}
	e.logMalformed(t.personID, m)
	if m.Absent() {
		return Decision{
			Status:      model.StatusUnavailable,
			Source:      model.SourceOverride,
			OverrideIDs: m.AbsenceIDs,
		}, true
	}
	if m.Available() {
		return Decision{
			Status:      model.StatusAvailable,
			Source:      model.SourceOverride,
			OverrideIDs: m.AvailabilityIDs,
		}, true
	}
	return Decision{}, false
}

func (e *Engine) decideRecurring(records []model.RecurringRecord, t target) Decision {
	key := model.Key{PersonID: t.personID, Weekday: t.weekday, Slot: t.slot}
	var group []model.RecurringRecord
	for _, r := range records {
		if r.Key() == key {
			group = append(group, r)
		}
	}
	choice, ok := precedence.Pick(group)
	if !ok {
		return unknown()
	}
	if choice.Ambiguous() {
		e.logger.Warn("multiple validated recurring declarations",
			"person_id", key.PersonID,
			"weekday", key.Weekday,
			"slot", key.Slot,
			"validated_count", choice.Validated,
			"record_id", choice.Record.ID,
		)
	}

	d := Decision{
		Status:   model.StatusUnknown,
		Source:   model.SourceRecurring,
		Declared: choice.Record.Status,
		RecordID: choice.Record.ID,
	}
	switch choice.Record.Status {
	case model.StatusAvailable, model.StatusUnavailable:
		d.Status = choice.Record.Status
	}
	return d
}

func (e *Engine) logMalformed(personID string, m overrides.Match) {
	if len(m.Malformed) == 0 {
		return
	}
	e.logger.Warn("skipping override rows with invalid dates",
		"person_id", personID,
		"override_ids", m.Malformed,
	)
}
