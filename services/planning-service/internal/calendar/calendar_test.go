package calendar

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
)

func paris(t *testing.T) Calendar {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return New(loc)
}

func equalDates(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestWeekWindow_MondayToFriday(t *testing.T) {
	cal := paris(t)
	want := []string{"2025-09-01", "2025-09-02", "2025-09-03", "2025-09-04", "2025-09-05"}

	for _, ref := range []string{"2025-09-01", "2025-09-03", "2025-09-05", "2025-09-06"} {
		got, err := cal.WeekWindowOf(ref)
		if err != nil {
			t.Fatalf("WeekWindowOf(%s): %v", ref, err)
		}
		if !equalDates(got, want) {
			t.Fatalf("ref %s: expected %v, got %v", ref, want, got)
		}
	}
}

func TestWeekWindow_SundayBelongsToPreviousWeek(t *testing.T) {
	cal := paris(t)
	got, err := cal.WeekWindowOf("2025-09-07")
	if err != nil {
		t.Fatalf("WeekWindowOf: %v", err)
	}
	want := []string{"2025-09-01", "2025-09-02", "2025-09-03", "2025-09-04", "2025-09-05"}
	if !equalDates(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestWeekWindow_IdempotentOnMonday(t *testing.T) {
	cal := paris(t)
	start := time.Date(2024, 12, 20, 12, 0, 0, 0, cal.Location())
	for i := 0; i < 400; i++ {
		ref := start.AddDate(0, 0, i)
		window := cal.WeekWindow(ref)
		if len(window) != WeekDays {
			t.Fatalf("ref %s: expected %d dates, got %d", ref.Format(DateLayout), WeekDays, len(window))
		}
		again, err := cal.WeekWindowOf(window[0])
		if err != nil {
			t.Fatalf("WeekWindowOf(%s): %v", window[0], err)
		}
		if !equalDates(window, again) {
			t.Fatalf("ref %s: window %v not stable on its Monday: %v", ref.Format(DateLayout), window, again)
		}
		for j, d := range window {
			wd, ok, err := cal.Weekday(d)
			if err != nil || !ok {
				t.Fatalf("date %s: expected business weekday, got ok=%v err=%v", d, ok, err)
			}
			if wd != model.Weekdays[j] {
				t.Fatalf("date %s: expected %s, got %s", d, model.Weekdays[j], wd)
			}
			if j > 0 {
				prev, _ := cal.Parse(window[j-1])
				cur, _ := cal.Parse(d)
				if cur.Sub(prev) < 23*time.Hour || cur.Sub(prev) > 25*time.Hour {
					t.Fatalf("dates %s and %s are not consecutive", window[j-1], d)
				}
			}
		}
	}
}

func TestWeekWindow_AcrossDSTAndYearBoundary(t *testing.T) {
	cal := paris(t)
	// Clocks go forward on Sunday 2025-03-30 in Paris.
	got, err := cal.WeekWindowOf("2025-03-30")
	if err != nil {
		t.Fatalf("WeekWindowOf: %v", err)
	}
	want := []string{"2025-03-24", "2025-03-25", "2025-03-26", "2025-03-27", "2025-03-28"}
	if !equalDates(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	got, err = cal.WeekWindowOf("2026-01-01")
	if err != nil {
		t.Fatalf("WeekWindowOf: %v", err)
	}
	want = []string{"2025-12-29", "2025-12-30", "2025-12-31", "2026-01-01", "2026-01-02"}
	if !equalDates(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestWeekWindow_UsesCalendarLocation(t *testing.T) {
	cal := paris(t)
	// 23:30 UTC on Sunday is already Monday in Paris.
	ref := time.Date(2025, 9, 7, 23, 30, 0, 0, time.UTC)
	got := cal.WeekWindow(ref)
	if got[0] != "2025-09-08" {
		t.Fatalf("expected week starting 2025-09-08, got %v", got)
	}
}

func TestDateInRange_InclusiveBounds(t *testing.T) {
	cal := paris(t)
	cases := []struct {
		query string
		want  bool
	}{
		{"2025-09-01", true},
		{"2025-09-02", true},
		{"2025-09-03", true},
		{"2025-08-31", false},
		{"2025-09-04", false},
	}
	for _, tc := range cases {
		got, err := cal.DateInRange(tc.query, "2025-09-01", "2025-09-03")
		if err != nil {
			t.Fatalf("DateInRange(%s): %v", tc.query, err)
		}
		if got != tc.want {
			t.Fatalf("DateInRange(%s): expected %v, got %v", tc.query, tc.want, got)
		}
	}
}

func TestDateInRange_IgnoresTimeOfDay(t *testing.T) {
	cal := paris(t)
	ok, err := cal.DateInRange("2025-09-03T23:59:00Z", "2025-09-01T00:00:00", "2025-09-03 00:00:00")
	if err != nil {
		t.Fatalf("DateInRange: %v", err)
	}
	if !ok {
		t.Fatal("expected end date with time-of-day to be inside the range")
	}
	ok, err = cal.DateInRange("2025-08-31T23:59:59Z", "2025-09-01T00:00:00Z", "2025-09-03T00:00:00Z")
	if err != nil {
		t.Fatalf("DateInRange: %v", err)
	}
	if ok {
		t.Fatal("expected the day before the range to be outside")
	}
}

func TestDateInRange_SingleDayAndInverted(t *testing.T) {
	cal := paris(t)
	ok, err := cal.DateInRange("2025-03-30", "2025-03-30", "2025-03-30")
	if err != nil || !ok {
		t.Fatalf("expected single-day range on DST day to match, got ok=%v err=%v", ok, err)
	}
	ok, err = cal.DateInRange("2025-09-02", "2025-09-03", "2025-09-01")
	if err != nil {
		t.Fatalf("DateInRange: %v", err)
	}
	if ok {
		t.Fatal("expected inverted range to contain nothing")
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	cal := paris(t)
	for _, raw := range []string{"", "2025-13-01", "01/09/2025", "2025-09-01X", "2025-9-1"} {
		if _, err := cal.Parse(raw); err != ErrInvalidDate {
			t.Fatalf("Parse(%q): expected ErrInvalidDate, got %v", raw, err)
		}
	}
	if _, err := cal.DateInRange("nope", "2025-09-01", "2025-09-02"); err != ErrInvalidDate {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestWeekday_Weekend(t *testing.T) {
	cal := paris(t)
	wd, ok, err := cal.Weekday("2025-09-02")
	if err != nil || !ok || wd != model.Tuesday {
		t.Fatalf("expected tuesday, got %q ok=%v err=%v", wd, ok, err)
	}
	_, ok, err = cal.Weekday("2025-09-06")
	if err != nil {
		t.Fatalf("Weekday: %v", err)
	}
	if ok {
		t.Fatal("expected saturday to be outside the business week")
	}
}
