package dedup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/precedence"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/storage"
)

var base = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func rec(id, person string, wd model.Weekday, validated bool, age time.Duration) model.RecurringRecord {
	return model.RecurringRecord{
		ID:        id,
		PersonID:  person,
		Weekday:   wd,
		Slot:      model.SlotMorning,
		Status:    model.StatusAvailable,
		Validated: validated,
		CreatedAt: base,
		UpdatedAt: base.Add(age),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seed stores n duplicates for each of keys keys of person p1.
func seed(store *storage.Memory, keys, n int) {
	for k := 0; k < keys; k++ {
		wd := model.Weekdays[k%len(model.Weekdays)]
		person := fmt.Sprintf("p%d", k/len(model.Weekdays))
		for i := 0; i < n; i++ {
			store.AddRecurring(rec(fmt.Sprintf("%s-%s-%02d", person, wd, i), person, wd, false, time.Duration(i)*time.Minute))
		}
	}
}

func remaining(t *testing.T, store *storage.Memory) []model.RecurringRecord {
	t.Helper()
	records, err := store.ListRecurringRecords(context.Background())
	if err != nil {
		t.Fatalf("ListRecurringRecords: %v", err)
	}
	return records
}

func TestDeduplicate_Converges(t *testing.T) {
	store := storage.NewMemory()
	store.AddRecurring(
		rec("a1", "p1", model.Tuesday, false, time.Hour),
		rec("a2", "p1", model.Tuesday, true, 0),
		rec("a3", "p1", model.Tuesday, false, 2*time.Hour),
		rec("b1", "p1", model.Wednesday, false, 0),
		rec("c1", "p2", model.Tuesday, false, 0),
		rec("c2", "p2", model.Tuesday, false, time.Hour),
	)
	m := NewMaintainer(store, Config{}, quietLogger())

	report, err := m.Deduplicate(context.Background())
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if report.Scanned != 6 || report.Kept != 3 || report.Deleted != 3 {
		t.Fatalf("expected scanned=6 kept=3 deleted=3, got %+v", report)
	}
	if report.DuplicateGroups != 2 || !report.Complete || report.RunID == "" {
		t.Fatalf("unexpected report %+v", report)
	}

	left := remaining(t, store)
	if len(left) != 3 {
		t.Fatalf("expected 3 records left, got %d", len(left))
	}
	byKey := precedence.GroupByKey(left)
	for k, group := range byKey {
		if len(group) != 1 {
			t.Fatalf("key %+v still has %d records", k, len(group))
		}
	}
	kept := map[string]bool{}
	for _, r := range left {
		kept[r.ID] = true
	}
	if !kept["a2"] || !kept["b1"] || !kept["c2"] {
		t.Fatalf("expected a2, b1 and c2 kept, got %v", kept)
	}

	again, err := m.Deduplicate(context.Background())
	if err != nil {
		t.Fatalf("second Deduplicate: %v", err)
	}
	if again.Deleted != 0 || again.Scanned != 3 || again.DuplicateGroups != 0 {
		t.Fatalf("expected second run to delete nothing, got %+v", again)
	}
}

func TestDeduplicate_BatchesRespectLimit(t *testing.T) {
	store := storage.NewMemory()
	store.SetMaxBatch(10)
	seed(store, 5, 8)
	m := NewMaintainer(store, Config{BatchSize: 10}, quietLogger())

	report, err := m.Deduplicate(context.Background())
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if report.Deleted != 35 || report.Batches != 4 {
		t.Fatalf("expected 35 deletions in 4 batches, got %d in %d", report.Deleted, report.Batches)
	}
	if store.DeleteBatches() != 4 {
		t.Fatalf("expected 4 delete calls, got %d", store.DeleteBatches())
	}
	if n := len(remaining(t, store)); n != 5 {
		t.Fatalf("expected 5 records left, got %d", n)
	}
}

func TestDeduplicate_PartialFailureThenRerun(t *testing.T) {
	store := storage.NewMemory()
	seed(store, 5, 5)
	boom := errors.New("request too large")
	store.SetDeleteFailure(func(batch int) error {
		if batch == 2 {
			return boom
		}
		return nil
	})
	m := NewMaintainer(store, Config{BatchSize: 6}, quietLogger())

	report, err := m.Deduplicate(context.Background())
	if !errors.Is(err, ErrPartialDeletion) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrPartialDeletion wrapping cause, got %v", err)
	}
	if report.Complete {
		t.Fatalf("expected incomplete report")
	}
	if report.Deleted != 6 || report.Batches != 1 {
		t.Fatalf("expected first batch of 6 applied, got deleted=%d batches=%d", report.Deleted, report.Batches)
	}
	if len(report.Pending) != 14 {
		t.Fatalf("expected 14 pending ids, got %d", len(report.Pending))
	}
	if report.Error == "" {
		t.Fatalf("expected error recorded in report")
	}
	if n := len(remaining(t, store)); n != 19 {
		t.Fatalf("expected 19 records left after partial run, got %d", n)
	}

	store.SetDeleteFailure(nil)
	again, err := m.Deduplicate(context.Background())
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if again.Deleted != 14 || !again.Complete {
		t.Fatalf("expected rerun to finish the job, got %+v", again)
	}
	if n := len(remaining(t, store)); n != 5 {
		t.Fatalf("expected 5 records left, got %d", n)
	}
}

func TestDeduplicate_DryRun(t *testing.T) {
	store := storage.NewMemory()
	seed(store, 2, 3)
	m := NewMaintainer(store, Config{DryRun: true}, quietLogger())

	report, err := m.Deduplicate(context.Background())
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if !report.DryRun || report.Deleted != 0 || len(report.Pending) != 4 {
		t.Fatalf("expected dry run with 4 pending, got %+v", report)
	}
	if store.DeleteBatches() != 0 {
		t.Fatalf("expected no delete calls, got %d", store.DeleteBatches())
	}
	if n := len(remaining(t, store)); n != 6 {
		t.Fatalf("expected store untouched, got %d records", n)
	}
}

func TestRun_RequestDryRun(t *testing.T) {
	store := storage.NewMemory()
	seed(store, 1, 2)
	m := NewMaintainer(store, Config{}, quietLogger())

	report, err := m.Run(context.Background(), Request{DryRun: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.DryRun || len(report.Pending) != 1 {
		t.Fatalf("expected dry run, got %+v", report)
	}
}

func TestDeduplicatePerson_ScopedToPerson(t *testing.T) {
	store := storage.NewMemory()
	store.AddRecurring(
		rec("a1", "p1", model.Monday, false, 0),
		rec("a2", "p1", model.Monday, false, time.Hour),
		rec("b1", "p2", model.Monday, false, 0),
		rec("b2", "p2", model.Monday, false, time.Hour),
	)
	m := NewMaintainer(store, Config{}, quietLogger())

	report, err := m.DeduplicatePerson(context.Background(), "p1")
	if err != nil {
		t.Fatalf("DeduplicatePerson: %v", err)
	}
	if report.PersonID != "p1" || report.Deleted != 1 {
		t.Fatalf("expected one deletion for p1, got %+v", report)
	}
	if n := len(remaining(t, store)); n != 3 {
		t.Fatalf("expected p2 untouched, got %d records", n)
	}

	if _, err := m.DeduplicatePerson(context.Background(), "  "); !errors.Is(err, ErrInvalidPerson) {
		t.Fatalf("expected ErrInvalidPerson, got %v", err)
	}
}

func TestDeduplicate_LoadFailure(t *testing.T) {
	store := storage.NewMemory()
	boom := errors.New("down")
	store.SetFetchError(boom)
	m := NewMaintainer(store, Config{}, quietLogger())

	report, err := m.Deduplicate(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if report.Complete || report.Deleted != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

type blockingStore struct {
	*storage.Memory
	entered chan struct{}
	release chan struct{}
}

func (s *blockingStore) ListRecurringRecords(ctx context.Context) ([]model.RecurringRecord, error) {
	close(s.entered)
	<-s.release
	return s.Memory.ListRecurringRecords(ctx)
}

func TestDeduplicate_RefusesConcurrentRun(t *testing.T) {
	store := &blockingStore{Memory: storage.NewMemory(), entered: make(chan struct{}), release: make(chan struct{})}
	m := NewMaintainer(store, Config{}, quietLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := m.Deduplicate(context.Background()); err != nil {
			t.Errorf("first run: %v", err)
		}
	}()

	<-store.entered
	if _, err := m.Deduplicate(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	close(store.release)
	wg.Wait()
}
