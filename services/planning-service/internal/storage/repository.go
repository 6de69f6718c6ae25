package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/trainingplanner/libs/db"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
)

var ErrBatchTooLarge = errors.New("delete batch exceeds store limit")

// DefaultMaxDeleteBatch mirrors the request-size limit of the hosted store.
const DefaultMaxDeleteBatch = 100

type Repository struct {
	pool     *db.Pool
	maxBatch int
}

func NewRepository(pool *db.Pool, maxDeleteBatch int) *Repository {
	if maxDeleteBatch <= 0 {
		maxDeleteBatch = DefaultMaxDeleteBatch
	}
	return &Repository{pool: pool, maxBatch: maxDeleteBatch}
}

const recurringColumns = `id::text, person_id::text, weekday, slot, status, validated, location_id::text, created_at, updated_at`

func (r *Repository) FetchRecurringRecords(ctx context.Context, personID string) ([]model.RecurringRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recurringColumns+`
		FROM planning_types
		WHERE person_id = $1
		ORDER BY weekday, slot, updated_at DESC
	`, personID)
	if err != nil {
		return nil, err
	}
	return collectRecurring(rows)
}

func (r *Repository) ListRecurringRecords(ctx context.Context) ([]model.RecurringRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recurringColumns+`
		FROM planning_types
		ORDER BY person_id, weekday, slot, updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return collectRecurring(rows)
}

func collectRecurring(rows pgx.Rows) ([]model.RecurringRecord, error) {
	defer rows.Close()

	var out []model.RecurringRecord
	for rows.Next() {
		var (
			rec                   model.RecurringRecord
			weekday, slot, status string
			createdAt, updatedAt  time.Time
		)
		if err := rows.Scan(&rec.ID, &rec.PersonID, &weekday, &slot, &status, &rec.Validated, &rec.LocationID, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rec.Weekday = normalizeWeekday(weekday)
		rec.Slot = normalizeSlot(slot)
		rec.Status = model.ParseStatus(status)
		rec.CreatedAt = createdAt.UTC()
		rec.UpdatedAt = updatedAt.UTC()
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Legacy rows may carry spellings the parsers do not know; they keep their
// raw (lowercased) value so they still group with identical rows.
func normalizeWeekday(raw string) model.Weekday {
	if wd, err := model.ParseWeekday(raw); err == nil {
		return wd
	}
	return model.Weekday(strings.ToLower(strings.TrimSpace(raw)))
}

func normalizeSlot(raw string) model.Slot {
	if s, err := model.ParseSlot(raw); err == nil {
		return s
	}
	return model.Slot(strings.ToLower(strings.TrimSpace(raw)))
}

// FetchExceptionalRecords reads every absence row of the person and keeps the
// ones whose approval parses to the requested value. Filtering happens after
// ParseApproval because stored spellings vary (approved, validé, ...).
func (r *Repository) FetchExceptionalRecords(ctx context.Context, personID string, approval model.Approval) ([]model.OverrideRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, person_id::text, start_date::text, end_date::text, kind, approval_status, created_at
		FROM absences
		WHERE person_id = $1
		ORDER BY start_date
	`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OverrideRecord
	for rows.Next() {
		var (
			rec              model.OverrideRecord
			kind, approvalSt string
		)
		if err := rows.Scan(&rec.ID, &rec.PersonID, &rec.StartDate, &rec.EndDate, &kind, &approvalSt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Kind = model.ParseOverrideKind(kind)
		rec.Approval = model.Approval(approvalSt)
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return keepApproval(out, approval), nil
}

// keepApproval normalizes each record's approval and drops the ones that do
// not match want.
func keepApproval(records []model.OverrideRecord, want model.Approval) []model.OverrideRecord {
	var out []model.OverrideRecord
	for _, rec := range records {
		rec.Approval = model.ParseApproval(string(rec.Approval))
		if rec.Approval == want {
			out = append(out, rec)
		}
	}
	return out
}

// DeleteRecurringRecords removes the given rows and reports how many
// existed. Ids already gone are not an error.
func (r *Repository) DeleteRecurringRecords(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if len(ids) > r.maxBatch {
		return 0, ErrBatchTooLarge
	}
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM planning_types
		WHERE id = ANY($1::uuid[])
	`, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *Repository) ListTrainers(ctx context.Context) ([]model.Person, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, display_name, role, archived
		FROM persons
		WHERE role IN ('formateur', 'trainer')
		ORDER BY display_name, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Person
	for rows.Next() {
		var p model.Person
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.Role, &p.Archived); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
