package calendar

import "time"

// DateInRange reports whether query falls within [start, end], both bounds
// inclusive.
//
// The query is placed at local noon, start at the first instant of its day
// and end at the last instant of its day. Comparing those instants (rather
// than strings or midnights) keeps endpoint dates inside the range whatever
// time-of-day suffix the inputs carry and across DST transitions.
func (c Calendar) DateInRange(query, start, end string) (bool, error) {
	q, err := c.Parse(query)
	if err != nil {
		return false, err
	}
	s, err := c.Parse(start)
	if err != nil {
		return false, err
	}
	e, err := c.Parse(end)
	if err != nil {
		return false, err
	}

	point := c.noon(q.Date())
	from := c.startOfDay(s)
	to := c.endOfDay(e)
	return !point.Before(from) && !point.After(to), nil
}

func (c Calendar) startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Location())
}

func (c Calendar) endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), c.Location())
}
