package calendar

import (
	"errors"
	"strings"
	"time"

	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
)

// DateLayout is the only wire format for calendar dates.
const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid calendar date")

// Calendar interprets YYYY-MM-DD strings in one location. All date
// arithmetic in the service goes through it.
type Calendar struct {
	loc *time.Location
}

// New returns a Calendar for loc; nil means time.Local.
func New(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{loc: loc}
}

func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// Parse returns the start of the given calendar day. A trailing time-of-day
// ("2025-09-01T00:00:00Z", "2025-09-01 08:30:00") is ignored: only the date
// part is significant.
func (c Calendar) Parse(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if len(s) > len(DateLayout) {
		if sep := s[len(DateLayout)]; sep != 'T' && sep != ' ' {
			return time.Time{}, ErrInvalidDate
		}
		s = s[:len(DateLayout)]
	}
	t, err := time.ParseInLocation(DateLayout, s, c.Location())
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// Normalize re-formats a date, dropping any time-of-day suffix.
func (c Calendar) Normalize(raw string) (string, error) {
	t, err := c.Parse(raw)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

func (c Calendar) noon(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, c.Location())
}

// Today is the current calendar date in the calendar's location.
func (c Calendar) Today(now time.Time) string {
	return now.In(c.Location()).Format(DateLayout)
}

// Weekday reports the business weekday of a date; ok is false on weekends.
func (c Calendar) Weekday(raw string) (wd model.Weekday, ok bool, err error) {
	t, err := c.Parse(raw)
	if err != nil {
		return "", false, err
	}
	wd, ok = model.WeekdayOf(t.Weekday())
	return wd, ok, nil
}
