// Package schedule implements the three composable schedule sources a job
// can configure — calendar expression, fixed interval, and post-chain — and
// combines them by taking the earliest next-fire time across whichever
// sources a job configures.
package schedule

import (
	"time"

	"github.com/loykin/pcron/internal/catalog"
)

// maxSearchYears bounds the calendar search so an expression that can never
// match (e.g. "31" in a month with no 31st combined with a month field that
// excludes every such month) returns "no future fire" instead of spinning
// forever.
const maxSearchYears = 4

// CalendarNext returns the earliest minute at or after t0 (exclusive of t0
// itself, so a schedule never re-fires the instant it last fired) at which
// cal's fields all admit the clock, or false if no such minute exists within
// the search bound.
func CalendarNext(cal *catalog.Job, t0 time.Time) (time.Time, bool) {
	c := cal.Time
	if c == nil {
		return time.Time{}, false
	}

	loc := t0.Location()
	limit := t0.AddDate(maxSearchYears, 0, 0)

	t := t0.Truncate(time.Minute).Add(time.Minute)
	for !t.After(limit) {
		if c.Month.Contains(int(t.Month())) {
			if domDowMatch(c, t) {
				if c.Hour.Contains(t.Hour()) {
					if c.Minute.Contains(t.Minute()) {
						return t, true
					}
					if next, ok := nextMinuteInHour(c, t); ok {
						t = next
						continue
					}
				}
				t = nextMinuteMatchingHour(c, t)
				continue
			}
			t = nextDay(t, loc)
			continue
		}
		t = nextMonth(t, loc)
	}
	return time.Time{}, false
}

// domDowMatch applies the traditional day-of-month/day-of-week combining
// rule: when both fields are restricted, a day qualifies if either field
// admits it (OR); when either field is the unrestricted "*", only the other
// field constrains the day.
func domDowMatch(c *catalog.Calendar, t time.Time) bool {
	domOK := c.Dom.Contains(t.Day())
	dowOK := c.Dow.Contains(int(t.Weekday()))
	switch {
	case c.DomStar && c.DowStar:
		return true
	case c.DomStar:
		return dowOK
	case c.DowStar:
		return domOK
	default:
		return domOK || dowOK
	}
}

// nextMinuteInHour finds the next admissible minute later than t.Minute()
// within t's own hour, so a minute-restricted field (e.g. "30 * * * *" or
// "*/15 * * * *") doesn't get skipped just because the current hour already
// matches.
func nextMinuteInHour(c *catalog.Calendar, t time.Time) (time.Time, bool) {
	for _, m := range c.Minute.Sorted() {
		if m > t.Minute() {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), m, 0, 0, t.Location()), true
		}
	}
	return time.Time{}, false
}

// nextMinuteMatchingHour jumps straight to the next hour whose hour field is
// admissible, landing on that hour's earliest admissible minute, avoiding a
// minute-by-minute scan across a whole excluded day.
func nextMinuteMatchingHour(c *catalog.Calendar, t time.Time) time.Time {
	for h := t.Hour() + 1; h < 24; h++ {
		if c.Hour.Contains(h) {
			return time.Date(t.Year(), t.Month(), t.Day(), h, firstMinute(c), 0, 0, t.Location())
		}
	}
	return nextDay(t, t.Location())
}

// firstMinute returns the earliest admissible minute for c, used when
// landing on a freshly admissible hour or day.
func firstMinute(c *catalog.Calendar) int {
	sorted := c.Minute.Sorted()
	if len(sorted) == 0 {
		return 0
	}
	return sorted[0]
}

func nextDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}

func nextMonth(t time.Time, loc *time.Location) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, loc).AddDate(0, 1, 0)
}
