// Package precedence selects the authoritative recurring declaration for a
// (person, weekday, slot) key. Both the availability engine and the
// deduplication maintainer go through Pick; there is no other selection rule.
package precedence

import (
	"sort"

	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
)

// Choice is the outcome of Pick.
type Choice struct {
	Record model.RecurringRecord
	// Candidates is the size of the input group.
	Candidates int
	// Validated counts validated candidates. More than one means the store
	// violates the one-row-per-key invariant in a way dedup alone should not
	// have produced; callers log it as a data-quality signal.
	Validated int
}

// Ambiguous reports multiple validated rows for one key.
func (c Choice) Ambiguous() bool {
	return c.Validated > 1
}

// Pick returns the authoritative record of a group sharing one key:
//  1. validated rows win over unvalidated ones, whatever their age;
//  2. within the winning tier the most recently updated row wins.
//
// Timestamp ties fall back to CreatedAt, then to the greatest row id, so the
// result never depends on input order. ok is false for an empty group.
func Pick(records []model.RecurringRecord) (Choice, bool) {
	if len(records) == 0 {
		return Choice{}, false
	}

	best := -1
	validated := 0
	for i, r := range records {
		if r.Validated {
			validated++
		}
		if best < 0 || outranks(r, records[best]) {
			best = i
		}
	}
	return Choice{
		Record:     records[best],
		Candidates: len(records),
		Validated:  validated,
	}, true
}

func outranks(a, b model.RecurringRecord) bool {
	if a.Validated != b.Validated {
		return a.Validated
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// GroupByKey buckets records by (person, weekday, slot).
func GroupByKey(records []model.RecurringRecord) map[model.Key][]model.RecurringRecord {
	groups := make(map[model.Key][]model.RecurringRecord)
	for _, r := range records {
		k := r.Key()
		groups[k] = append(groups[k], r)
	}
	return groups
}

// SortedKeys returns the keys of groups in a stable order.
func SortedKeys(groups map[model.Key][]model.RecurringRecord) []model.Key {
	keys := make([]model.Key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].PersonID != keys[j].PersonID {
			return keys[i].PersonID < keys[j].PersonID
		}
		if keys[i].Weekday != keys[j].Weekday {
			return keys[i].Weekday < keys[j].Weekday
		}
		return keys[i].Slot < keys[j].Slot
	})
	return keys
}

// Plan is the per-key outcome of applying Pick to a whole record set.
type Plan struct {
	Keep      []model.RecurringRecord
	Drop      []string
	Ambiguous []Choice
	// DuplicateKeys counts keys that had more than one record.
	DuplicateKeys int
}

// BuildPlan picks one record per key and lists every other record id for
// removal. Drop ids are ordered by key then id so batches are reproducible.
func BuildPlan(records []model.RecurringRecord) Plan {
	groups := GroupByKey(records)
	plan := Plan{Keep: make([]model.RecurringRecord, 0, len(groups))}
	for _, k := range SortedKeys(groups) {
		group := groups[k]
		choice, ok := Pick(group)
		if !ok {
			continue
		}
		plan.Keep = append(plan.Keep, choice.Record)
		if len(group) > 1 {
			plan.DuplicateKeys++
		}
		if choice.Ambiguous() {
			plan.Ambiguous = append(plan.Ambiguous, choice)
		}
		var drop []string
		for _, r := range group {
			if r.ID != choice.Record.ID {
				drop = append(drop, r.ID)
			}
		}
		sort.Strings(drop)
		plan.Drop = append(plan.Drop, drop...)
	}
	return plan
}
