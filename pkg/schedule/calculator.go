package schedule

import (
	"time"

	"github.com/finflow/recurring/pkg/core"
)

// maxIterations bounds the candidate search so malformed input can never
// spin the calculator forever.
const maxIterations = 500

// Next computes the next occurrence strictly after the reference
// instant, in UTC. The second return value is false when the schedule is
// exhausted: either the next candidate would fall past the configured
// end instant, or no candidate could be produced within the iteration
// bound.
func (s *Spec) Next(after time.Time) (time.Time, bool) {
	cursor := after
	if s.StartAt.After(cursor) {
		cursor = s.StartAt
	}
	cursor = cursor.In(s.Location)

	for i := 0; i < maxIterations; i++ {
		candidate := s.candidateFor(cursor)
		if candidate.Before(s.StartAt) || !candidate.After(after) {
			cursor = s.advance(cursor)
			continue
		}
		if s.EndAt != nil && candidate.After(*s.EndAt) {
			return time.Time{}, false
		}
		return candidate.UTC(), true
	}
	return time.Time{}, false
}

// candidateFor builds the occurrence belonging to the cursor's period:
// the cursor's day (daily), the cursor's week advanced to the anchored
// weekday (weekly), the cursor's month at the clamped anchor day
// (monthly), or the start date's month/day in the cursor's year
// (yearly), always at the fixed wall-clock time.
func (s *Spec) candidateFor(cursor time.Time) time.Time {
	year, month, day := cursor.Date()

	switch s.Frequency {
	case core.FreqWeekly:
		// Sunday is stored as 0 but treated as 7 so that advancing
		// within a Monday-first week is monotonic.
		target := s.Weekday
		if target == 0 {
			target = 7
		}
		current := int(cursor.Weekday())
		if current == 0 {
			current = 7
		}
		day += target - current
	case core.FreqMonthly:
		day = clampDay(year, month, s.DayOfMonth)
	case core.FreqYearly:
		start := s.StartAt.In(s.Location)
		month = start.Month()
		day = clampDay(year, month, start.Day())
	}

	return time.Date(year, month, day, s.Hour, s.Minute, 0, 0, s.Location)
}

// advance moves the cursor into the next period. Month and year steps
// rebase onto the first day of the period so a cursor sitting on day 31
// can never overflow past a short month.
func (s *Spec) advance(cursor time.Time) time.Time {
	year, month, day := cursor.Date()

	switch s.Frequency {
	case core.FreqWeekly:
		return time.Date(year, month, day+7, s.Hour, s.Minute, 0, 0, s.Location)
	case core.FreqMonthly:
		return time.Date(year, month+1, 1, s.Hour, s.Minute, 0, 0, s.Location)
	case core.FreqYearly:
		return time.Date(year+1, time.January, 1, s.Hour, s.Minute, 0, 0, s.Location)
	default:
		return time.Date(year, month, day+1, s.Hour, s.Minute, 0, 0, s.Location)
	}
}

// clampDay resolves an anchor day against the actual length of the
// month, so day 31 in February becomes the 28th (or 29th).
func clampDay(year int, month time.Month, day int) int {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		return last
	}
	return day
}

// OccurrenceDate returns the calendar day, in the spec's timezone, that
// the given occurrence instant belongs to ("YYYY-MM-DD").
func (s *Spec) OccurrenceDate(occurrence time.Time) string {
	return occurrence.In(s.Location).Format("2006-01-02")
}

// Period returns the "YYYY-MM" budget period the occurrence belongs to,
// again in the spec's timezone.
func (s *Spec) Period(occurrence time.Time) string {
	return occurrence.In(s.Location).Format("2006-01")
}
