package storage

import (
	"context"
	"sync"

	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
)

// Memory is an in-process record store. It backs tests and local runs
// without Postgres, and can be told to fail to exercise error paths.
type Memory struct {
	mu         sync.RWMutex
	recurring  []model.RecurringRecord
	overrides  []model.OverrideRecord
	people     []model.Person
	maxBatch   int
	fetchErr   error
	deleteFail func(batch int) error
	batches    int
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) AddRecurring(records ...model.RecurringRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recurring = append(m.recurring, records...)
}

func (m *Memory) AddOverrides(records ...model.OverrideRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = append(m.overrides, records...)
}

func (m *Memory) AddPeople(people ...model.Person) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.people = append(m.people, people...)
}

// SetMaxBatch makes deletes of more than n ids fail with ErrBatchTooLarge.
func (m *Memory) SetMaxBatch(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxBatch = n
}

// SetFetchError makes every read fail with err until reset with nil.
func (m *Memory) SetFetchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchErr = err
}

// SetDeleteFailure installs a hook consulted before every delete batch
// (numbered from 1). A non-nil result fails that batch without deleting.
func (m *Memory) SetDeleteFailure(fn func(batch int) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteFail = fn
}

// DeleteBatches is the number of delete calls received so far.
func (m *Memory) DeleteBatches() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.batches
}

func (m *Memory) FetchRecurringRecords(_ context.Context, personID string) ([]model.RecurringRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []model.RecurringRecord
	for _, r := range m.recurring {
		if r.PersonID == personID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) FetchExceptionalRecords(_ context.Context, personID string, approval model.Approval) ([]model.OverrideRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var mine []model.OverrideRecord
	for _, r := range m.overrides {
		if r.PersonID == personID {
			mine = append(mine, r)
		}
	}
	return keepApproval(mine, approval), nil
}

func (m *Memory) ListRecurringRecords(_ context.Context) ([]model.RecurringRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]model.RecurringRecord, len(m.recurring))
	copy(out, m.recurring)
	return out, nil
}

func (m *Memory) DeleteRecurringRecords(_ context.Context, ids []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.maxBatch > 0 && len(ids) > m.maxBatch {
		return 0, ErrBatchTooLarge
	}
	if m.deleteFail != nil {
		if err := m.deleteFail(m.batches); err != nil {
			return 0, err
		}
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := m.recurring[:0]
	deleted := 0
	for _, r := range m.recurring {
		if _, ok := drop[r.ID]; ok {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.recurring = kept
	return deleted, nil
}

func (m *Memory) ListTrainers(_ context.Context) ([]model.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	out := make([]model.Person, len(m.people))
	copy(out, m.people)
	return out, nil
}
