package schedule

import (
	"fmt"
	"time"

	"github.com/finflow/recurring/pkg/core"
)

// IntervalSpec is a validated interval recurrence: every N days, weeks
// or months from the start date, at a fixed wall-clock time.
type IntervalSpec struct {
	Every    int
	Unit     core.IntervalUnit
	Hour     int
	Minute   int
	Location *time.Location
	StartAt  time.Time
	EndAt    *time.Time
}

// NewIntervalSpec validates the interval fields and constructs a spec.
func NewIntervalSpec(every int, unit core.IntervalUnit, timeOfDay, timezone string, startAt time.Time, endAt *time.Time) (*IntervalSpec, error) {
	if every < 1 {
		return nil, core.ErrInvalidInterval
	}
	switch unit {
	case core.UnitDay, core.UnitWeek, core.UnitMonth:
	default:
		return nil, core.ErrInvalidUnit
	}
	hour, minute, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidTimezone, timezone)
	}
	if endAt != nil && endAt.Before(startAt) {
		return nil, core.ErrEndBeforeStart
	}
	return &IntervalSpec{
		Every:    every,
		Unit:     unit,
		Hour:     hour,
		Minute:   minute,
		Location: loc,
		StartAt:  startAt,
		EndAt:    endAt,
	}, nil
}

// ForIntervalRule builds the spec for a stored interval rule.
func ForIntervalRule(r *core.IntervalRule) (*IntervalSpec, error) {
	return NewIntervalSpec(r.Every, r.Unit, r.TimeOfDay, r.Timezone, r.StartAt, r.EndAt)
}

// Occurrence returns the k-th occurrence (k >= 0). Occurrence 0 is the
// start date at the fixed time; monthly steps clamp the anchor day to
// the target month's length, matching the anchored calculator.
func (s *IntervalSpec) Occurrence(k int) time.Time {
	anchor := s.StartAt.In(s.Location)
	year, month, day := anchor.Date()

	switch s.Unit {
	case core.UnitWeek:
		day += 7 * s.Every * k
	case core.UnitMonth:
		month += time.Month(s.Every * k)
		// Normalize the month before clamping the day against it.
		first := time.Date(year, month, 1, 0, 0, 0, 0, s.Location)
		year, month = first.Year(), first.Month()
		day = clampDay(year, month, anchor.Day())
	default:
		day += s.Every * k
	}

	return time.Date(year, month, day, s.Hour, s.Minute, 0, 0, s.Location).UTC()
}

// Next computes the next occurrence strictly after the reference
// instant. The boolean is false once the schedule window is exhausted.
func (s *IntervalSpec) Next(after time.Time) (time.Time, bool) {
	k := s.skipEstimate(after)
	for i := 0; i < maxIterations; i++ {
		occ := s.Occurrence(k + i)
		if !occ.After(after) {
			continue
		}
		if s.EndAt != nil && occ.After(*s.EndAt) {
			return time.Time{}, false
		}
		return occ, true
	}
	return time.Time{}, false
}

// skipEstimate returns a conservative lower bound on the index of the
// first occurrence after the reference, so Next never needs to walk an
// arbitrarily long backlog one step at a time.
func (s *IntervalSpec) skipEstimate(after time.Time) int {
	if !after.After(s.StartAt) {
		return 0
	}
	elapsed := after.Sub(s.StartAt)

	var approxStep time.Duration
	switch s.Unit {
	case core.UnitWeek:
		approxStep = time.Duration(s.Every) * 7 * 24 * time.Hour
	case core.UnitMonth:
		// 31 days over-estimates every month, keeping k a lower bound.
		approxStep = time.Duration(s.Every) * 31 * 24 * time.Hour
	default:
		approxStep = time.Duration(s.Every) * 24 * time.Hour
	}

	k := int(elapsed/approxStep) - 2
	if k < 0 {
		return 0
	}
	return k
}

// OccurrenceDate returns the calendar day of an occurrence in the
// spec's timezone.
func (s *IntervalSpec) OccurrenceDate(occurrence time.Time) string {
	return occurrence.In(s.Location).Format("2006-01-02")
}
