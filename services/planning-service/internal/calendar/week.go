package calendar

import "time"

// WeekDays is the length of a business week window.
const WeekDays = 5

// WeekStart returns noon of the Monday on or before ref's calendar date in
// the calendar's location. Sunday belongs to the week that started six days
// earlier, never to the following one.
func (c Calendar) WeekStart(ref time.Time) time.Time {
	local := ref.In(c.Location())
	// Monday=0 ... Sunday=6
	offset := (int(local.Weekday()) + 6) % 7
	y, m, d := local.Date()
	return c.noon(y, m, d-offset)
}

// WeekWindow returns the Monday..Friday dates of the week containing ref.
func (c Calendar) WeekWindow(ref time.Time) []string {
	monday := c.WeekStart(ref)
	y, m, d := monday.Date()
	out := make([]string, 0, WeekDays)
	for i := 0; i < WeekDays; i++ {
		out = append(out, c.noon(y, m, d+i).Format(DateLayout))
	}
	return out
}

// WeekWindowOf is WeekWindow for a YYYY-MM-DD reference date.
func (c Calendar) WeekWindowOf(raw string) ([]string, error) {
	t, err := c.Parse(raw)
	if err != nil {
		return nil, err
	}
	return c.WeekWindow(t), nil
}
