package overrides

import (
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/calendar"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
)

// Match is the evaluation of every approved override against one date.
type Match struct {
	AbsenceIDs      []string
	AvailabilityIDs []string
	// Malformed lists rows whose dates could not be parsed; they are skipped.
	Malformed []string
}

func (m Match) Absent() bool {
	return len(m.AbsenceIDs) > 0
}

func (m Match) Available() bool {
	return len(m.AvailabilityIDs) > 0
}

type Resolver struct {
	cal calendar.Calendar
}

func NewResolver(cal calendar.Calendar) Resolver {
	return Resolver{cal: cal}
}

// Evaluate tests every record against date. All covering records are
// reported: storage order carries no meaning, so nothing short-circuits.
// Records that are not approved, or of a kind other than absence and
// exceptional availability, never match.
func (r Resolver) Evaluate(records []model.OverrideRecord, date string) (Match, error) {
	if _, err := r.cal.Parse(date); err != nil {
		return Match{}, err
	}

	var m Match
	for _, rec := range records {
		if rec.Approval != model.ApprovalApproved {
			continue
		}
		if rec.Kind != model.KindAbsence && rec.Kind != model.KindExceptionalAvailability {
			continue
		}
		covered, err := r.cal.DateInRange(date, rec.StartDate, rec.EndDate)
		if err != nil {
			m.Malformed = append(m.Malformed, rec.ID)
			continue
		}
		if !covered {
			continue
		}
		switch rec.Kind {
		case model.KindAbsence:
			m.AbsenceIDs = append(m.AbsenceIDs, rec.ID)
		case model.KindExceptionalAvailability:
			m.AvailabilityIDs = append(m.AvailabilityIDs, rec.ID)
		}
	}
	return m, nil
}

// IsExceptionallyAbsent reports whether an approved absence covers date.
func (r Resolver) IsExceptionallyAbsent(records []model.OverrideRecord, date string) (bool, error) {
	m, err := r.Evaluate(records, date)
	if err != nil {
		return false, err
	}
	return m.Absent(), nil
}

// IsExceptionallyAvailable reports whether an approved exceptional
// availability covers date.
func (r Resolver) IsExceptionallyAvailable(records []model.OverrideRecord, date string) (bool, error) {
	m, err := r.Evaluate(records, date)
	if err != nil {
		return false, err
	}
	return m.Available(), nil
}
