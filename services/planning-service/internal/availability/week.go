package availability

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
)

type Cell struct {
	Date     string
	Weekday  model.Weekday
	Slot     model.Slot
	Decision Decision
}

// Week is the resolved grid of one person's business week.
type Week struct {
	PersonID string
	Dates    []string
	Slots    []model.Slot
	Cells    []Cell
	// Degraded is set when the store could not be read; every cell is then
	// unknown.
	Degraded bool
}

// Cell returns the decision for (date, slot).
func (w Week) Cell(date string, slot model.Slot) (Cell, bool) {
	for _, c := range w.Cells {
		if c.Date == date && c.Slot == slot {
			return c, true
		}
	}
	return Cell{}, false
}

// ResolveWeek resolves every (date, slot) of the week containing ref. The
// person's records are read once and every cell goes through the same
// decision steps as Resolve. On a store failure the grid is still returned,
// all unknown, alongside the error.
func (e *Engine) ResolveWeek(ctx context.Context, personID, ref string, slots []model.Slot) (Week, error) {
	ctx, span := e.tracer.Start(ctx, "availability.ResolveWeek", trace.WithAttributes(
		attribute.String("planning.person_id", personID),
		attribute.String("planning.ref", ref),
	))
	defer span.End()

	personID = strings.TrimSpace(personID)
	if personID == "" {
		return Week{}, fmt.Errorf("%w: person id is required", ErrInvalidQuery)
	}
	dates, err := e.cal.WeekWindowOf(ref)
	if err != nil {
		return Week{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	normalized := make([]model.Slot, 0, len(slots))
	for _, s := range slots {
		slot, err := model.ParseSlot(string(s))
		if err != nil {
			return Week{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
		}
		normalized = append(normalized, slot)
	}

	week := Week{PersonID: personID, Dates: dates, Slots: normalized}

	overrideRows, err := e.fetchOverrides(ctx, personID)
	var recurring []model.RecurringRecord
	if err == nil {
		recurring, err = e.fetchRecurring(ctx, personID)
	}
	if err != nil {
		span.RecordError(err)
		week.Degraded = true
		for i, d := range dates {
			for _, s := range normalized {
				week.Cells = append(week.Cells, Cell{Date: d, Weekday: model.Weekdays[i], Slot: s, Decision: unknown()})
			}
		}
		return week, err
	}

	for i, d := range dates {
		for _, s := range normalized {
			t := target{personID: personID, date: d, weekday: model.Weekdays[i], business: true, slot: s}
			decision, ok := e.decideOverrides(overrideRows, t)
			if !ok {
				decision = e.decideRecurring(recurring, t)
			}
			week.Cells = append(week.Cells, Cell{Date: d, Weekday: t.weekday, Slot: s, Decision: decision})
		}
	}
	return week, nil
}

// Board is the admin overview of a week for a roster of trainers.
type Board struct {
	Dates    []string
	Slots    []model.Slot
	Rows     []Week
	Degraded bool
}

// BuildBoard resolves the week of ref for every non-archived person. A
// person whose records cannot be read gets a degraded, all-unknown row; the
// board itself is still produced.
func (e *Engine) BuildBoard(ctx context.Context, people []model.Person, ref string, slots []model.Slot) (Board, error) {
	dates, err := e.cal.WeekWindowOf(ref)
	if err != nil {
		return Board{}, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	board := Board{Dates: dates, Slots: slots}
	for _, p := range people {
		if p.Archived {
			continue
		}
		week, err := e.ResolveWeek(ctx, p.ID, ref, slots)
		if err != nil && !week.Degraded {
			return Board{}, err
		}
		if err != nil {
			e.logger.Error("board row degraded", "person_id", p.ID, "err", err)
			board.Degraded = true
		}
		board.Slots = week.Slots
		board.Rows = append(board.Rows, week)
	}
	return board, nil
}
