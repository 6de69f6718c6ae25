package model

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrUnknownWeekday = errors.New("unknown weekday")
	ErrUnknownSlot    = errors.New("unknown slot")
)

// Weekday is one of the five business days a recurring declaration can target.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
)

// Weekdays lists the business week in order, Monday first.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

var weekdayAliases = map[string]Weekday{
	"monday":    Monday,
	"lundi":     Monday,
	"tuesday":   Tuesday,
	"mardi":     Tuesday,
	"wednesday": Wednesday,
	"mercredi":  Wednesday,
	"thursday":  Thursday,
	"jeudi":     Thursday,
	"friday":    Friday,
	"vendredi":  Friday,
}

// ParseWeekday accepts English or French weekday names, case-insensitively.
func ParseWeekday(raw string) (Weekday, error) {
	if wd, ok := weekdayAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return wd, nil
	}
	return "", ErrUnknownWeekday
}

// WeekdayOf maps a time.Weekday onto the business week. Saturday and Sunday
// report false.
func WeekdayOf(d time.Weekday) (Weekday, bool) {
	switch d {
	case time.Monday:
		return Monday, true
	case time.Tuesday:
		return Tuesday, true
	case time.Wednesday:
		return Wednesday, true
	case time.Thursday:
		return Thursday, true
	case time.Friday:
		return Friday, true
	}
	return "", false
}

// Slot is a named segment of a working day, never a raw time range.
type Slot string

const (
	SlotMorning   Slot = "morning"
	SlotAfternoon Slot = "afternoon"
)

var slotAliases = map[string]Slot{
	"matin":      SlotMorning,
	"am":         SlotMorning,
	"apres-midi": SlotAfternoon,
	"après-midi": SlotAfternoon,
	"apres_midi": SlotAfternoon,
	"aprem":      SlotAfternoon,
	"pm":         SlotAfternoon,
}

// ParseSlot normalizes a slot name. Known French aliases map onto the
// canonical names; any other non-empty name is kept lowercased so that
// organisations with extra segments (evening, ...) still resolve.
func ParseSlot(raw string) (Slot, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return "", ErrUnknownSlot
	}
	if s, ok := slotAliases[name]; ok {
		return s, nil
	}
	return Slot(name), nil
}

// Status is either a declared availability state or a resolution outcome.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusUnknown     Status = "unknown"
)

// ParseStatus maps stored values (including the legacy French ones) onto
// Status. Values it does not recognise are kept as-is.
func ParseStatus(raw string) Status {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "available", "disponible":
		return StatusAvailable
	case "unavailable", "indisponible":
		return StatusUnavailable
	case "":
		return StatusUnknown
	}
	return Status(v)
}

// Source tells which data set produced a resolution.
type Source string

const (
	SourceRecurring Source = "recurring-pattern"
	SourceOverride  Source = "exceptional-override"
)

// Key identifies the slot a recurring declaration applies to.
type Key struct {
	PersonID string
	Weekday  Weekday
	Slot     Slot
}

// RecurringRecord is one submitted "planning type" row.
type RecurringRecord struct {
	ID         string
	PersonID   string
	Weekday    Weekday
	Slot       Slot
	Status     Status
	Validated  bool
	LocationID *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r RecurringRecord) Key() Key {
	return Key{PersonID: r.PersonID, Weekday: r.Weekday, Slot: r.Slot}
}

// OverrideKind distinguishes absences from exceptional availabilities.
type OverrideKind string

const (
	KindAbsence                 OverrideKind = "absence"
	KindExceptionalAvailability OverrideKind = "exceptional_availability"
)

// ParseOverrideKind maps stored kind values onto OverrideKind. Unrecognised
// kinds are kept as-is and never affect a resolution.
func ParseOverrideKind(raw string) OverrideKind {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "absence", "conge", "congé", "indisponibilite", "indisponibilité":
		return KindAbsence
	case "exceptional_availability", "disponibilite_exceptionnelle", "disponibilité_exceptionnelle", "formation":
		return KindExceptionalAvailability
	}
	return OverrideKind(v)
}

type Approval string

const (
	ApprovalPending  Approval = "pending"
	ApprovalApproved Approval = "approved"
	ApprovalRejected Approval = "rejected"
)

// ParseApproval maps stored approval values; anything unknown is pending.
func ParseApproval(raw string) Approval {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved", "approuve", "approuvé", "valide", "validé":
		return ApprovalApproved
	case "rejected", "refuse", "refusé", "rejete", "rejeté":
		return ApprovalRejected
	}
	return ApprovalPending
}

// OverrideRecord is a date-range exception to the recurring pattern. Start
// and end are inclusive calendar dates formatted YYYY-MM-DD.
type OverrideRecord struct {
	ID        string
	PersonID  string
	StartDate string
	EndDate   string
	Kind      OverrideKind
	Approval  Approval
	CreatedAt time.Time
}

// Person is the slice of the user directory the engine reads.
type Person struct {
	ID          string
	DisplayName string
	Role        string
	Archived    bool
}
