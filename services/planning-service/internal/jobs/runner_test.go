package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/trainingplanner/libs/lock"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/dedup"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/storage"
)

type recordingPublisher struct {
	mu      sync.Mutex
	reports []dedup.Report
	err     error
}

func (p *recordingPublisher) PublishReport(_ context.Context, report dedup.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, report)
	return p.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seeded() *storage.Memory {
	store := storage.NewMemory()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	store.AddRecurring(
		model.RecurringRecord{ID: "a", PersonID: "p1", Weekday: model.Monday, Slot: model.SlotMorning, Status: model.StatusAvailable, UpdatedAt: base},
		model.RecurringRecord{ID: "b", PersonID: "p1", Weekday: model.Monday, Slot: model.SlotMorning, Status: model.StatusAvailable, UpdatedAt: base.Add(time.Hour)},
	)
	return store
}

func TestRunOncePublishesReport(t *testing.T) {
	store := seeded()
	pub := &recordingPublisher{}
	m := dedup.NewMaintainer(store, dedup.Config{}, quietLogger())
	r := NewRunner(m, lock.NewLocal(), pub, quietLogger(), RunnerConfig{})

	report, err := r.RunOnce(context.Background(), dedup.Request{})
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if report.Deleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", report.Deleted)
	}
	if len(pub.reports) != 1 || pub.reports[0].RunID != report.RunID {
		t.Fatalf("expected report published, got %v", pub.reports)
	}
}

func TestRunOnceLockHeldElsewhere(t *testing.T) {
	locker := lock.NewLocal()
	release, err := locker.TryLock(context.Background(), "planning-dedup", time.Minute)
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	defer func() { _ = release(context.Background()) }()

	store := seeded()
	pub := &recordingPublisher{}
	r := NewRunner(dedup.NewMaintainer(store, dedup.Config{}, quietLogger()), locker, pub, quietLogger(), RunnerConfig{})

	_, err = r.RunOnce(context.Background(), dedup.Request{})
	if !errors.Is(err, dedup.ErrAlreadyRunning) || !errors.Is(err, lock.ErrNotAcquired) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if store.DeleteBatches() != 0 || len(pub.reports) != 0 {
		t.Fatalf("expected nothing to run")
	}

	// A person-scoped run takes its own lock.
	report, err := r.RunOnce(context.Background(), dedup.Request{PersonID: "p1"})
	if err != nil || report.Deleted != 1 {
		t.Fatalf("expected person run to proceed, got %+v (%v)", report, err)
	}
}

func TestRunOnceReleasesLock(t *testing.T) {
	locker := lock.NewLocal()
	r := NewRunner(dedup.NewMaintainer(seeded(), dedup.Config{}, quietLogger()), locker, nil, quietLogger(), RunnerConfig{})
	for i := 0; i < 2; i++ {
		if _, err := r.RunOnce(context.Background(), dedup.Request{}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
}

func TestRunOncePartialFailureStillPublished(t *testing.T) {
	store := seeded()
	store.SetDeleteFailure(func(int) error { return errors.New("timeout") })
	pub := &recordingPublisher{err: errors.New("kafka down")}
	r := NewRunner(dedup.NewMaintainer(store, dedup.Config{}, quietLogger()), lock.NewLocal(), pub, quietLogger(), RunnerConfig{})

	report, err := r.RunOnce(context.Background(), dedup.Request{})
	if !errors.Is(err, dedup.ErrPartialDeletion) {
		t.Fatalf("expected ErrPartialDeletion, got %v", err)
	}
	if report.Complete || len(pub.reports) != 1 {
		t.Fatalf("expected partial report to be published, got %+v", report)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	r := NewRunner(nil, lock.NewLocal(), nil, quietLogger(), RunnerConfig{Schedule: "not a schedule"})
	if err := r.Start(context.Background()); err == nil {
		t.Fatal("expected schedule error")
	}
	disabled := NewRunner(nil, lock.NewLocal(), nil, quietLogger(), RunnerConfig{})
	if err := disabled.Start(context.Background()); err != nil {
		t.Fatalf("expected disabled schedule to be accepted, got %v", err)
	}
}
