package clock

import "time"

// Calendar resolves calendar days in the business time zone.
//
// Dates (due dates, "today") are represented as midnight UTC of the local
// calendar day so they compare consistently across databases. Window starts
// are real instants (local midnight expressed in UTC).
type Calendar struct {
	Location *time.Location
}

func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{Location: loc}
}

// Today returns the local calendar date of now as a UTC-midnight value.
func (c Calendar) Today(now time.Time) time.Time {
	y, m, d := now.In(c.loc()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns the instant of local midnight for the day containing now.
func (c Calendar) StartOfDay(now time.Time) time.Time {
	y, m, d := now.In(c.loc()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc()).UTC()
}

// DateOf normalizes an arbitrary date value to a UTC-midnight calendar date,
// keeping the calendar fields as written.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD into a calendar date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
