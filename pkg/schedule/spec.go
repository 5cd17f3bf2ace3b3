package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finflow/recurring/pkg/core"
	"github.com/finflow/recurring/pkg/security"
)

// Spec is a validated anchored recurrence. Build one with ForRule or
// NewSpec; a Spec obtained any other way may violate the calculator's
// preconditions.
type Spec struct {
	Frequency  core.Frequency
	DayOfMonth int // 1..31, monthly only
	Weekday    int // 0=Sunday..6=Saturday, weekly only
	Hour       int
	Minute     int
	Location   *time.Location
	StartAt    time.Time
	EndAt      *time.Time
}

// ParseTimeOfDay parses a "HH:MM" wall-clock string.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, core.ErrInvalidTimeOfDay
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, core.ErrInvalidTimeOfDay
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, core.ErrInvalidTimeOfDay
	}
	return hour, minute, nil
}

// NewSpec validates the recurrence fields and constructs a Spec.
func NewSpec(freq core.Frequency, dayOfMonth, weekday *int, timeOfDay, timezone string, startAt time.Time, endAt *time.Time) (*Spec, error) {
	s := &Spec{Frequency: freq, StartAt: startAt, EndAt: endAt}

	switch freq {
	case core.FreqDaily, core.FreqYearly:
	case core.FreqWeekly:
		if weekday == nil || *weekday < 0 || *weekday > 6 {
			return nil, core.ErrInvalidWeekday
		}
		s.Weekday = *weekday
	case core.FreqMonthly:
		if dayOfMonth == nil || *dayOfMonth < 1 || *dayOfMonth > 31 {
			return nil, core.ErrInvalidDayOfMonth
		}
		s.DayOfMonth = *dayOfMonth
	default:
		return nil, core.ErrInvalidFrequency
	}

	hour, minute, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return nil, err
	}
	s.Hour, s.Minute = hour, minute

	loc, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidTimezone, timezone)
	}
	s.Location = loc

	if endAt != nil && endAt.Before(startAt) {
		return nil, core.ErrEndBeforeStart
	}
	return s, nil
}

// ForRule builds the Spec for a stored rule.
func ForRule(r *core.Rule) (*Spec, error) {
	return NewSpec(r.Frequency, r.DayOfMonth, r.Weekday, r.TimeOfDay, r.Timezone, r.StartAt, r.EndAt)
}

// ValidateRecurrence rejects malformed parser output before a rule is
// built from it. It checks the payload as well as the schedule.
func ValidateRecurrence(in core.RecurrenceInput) error {
	if !in.Kind.IsTransaction() && in.Kind != core.KindBudget {
		return core.ErrInvalidKind
	}
	if err := validatePayload(in.Amount, in.Currency); err != nil {
		return err
	}
	_, err := NewSpec(in.Frequency, in.DayOfMonth, in.Weekday, in.TimeOfDay, in.Timezone, in.StartAt, in.EndAt)
	return err
}

// ValidateInterval rejects malformed interval recurrence input.
func ValidateInterval(in core.IntervalInput) error {
	if !in.Kind.IsTransaction() {
		return core.ErrInvalidKind
	}
	if err := validatePayload(in.Amount, in.Currency); err != nil {
		return err
	}
	if in.Every < 1 {
		return core.ErrInvalidInterval
	}
	switch in.Unit {
	case core.UnitDay, core.UnitWeek, core.UnitMonth:
	default:
		return core.ErrInvalidUnit
	}
	_, err := NewIntervalSpec(in.Every, in.Unit, in.TimeOfDay, in.Timezone, in.StartAt, in.EndAt)
	return err
}

func validatePayload(amount decimal.Decimal, currency string) error {
	if amount.Sign() <= 0 {
		return core.ErrInvalidAmount
	}
	return security.ValidateCurrency(currency)
}
