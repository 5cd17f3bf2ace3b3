package core

import "errors"

// Configuration errors, surfaced synchronously from rule creation.
var (
	ErrInvalidFrequency  = errors.New("recurring: invalid frequency")
	ErrInvalidDayOfMonth = errors.New("recurring: day of month must be between 1 and 31")
	ErrInvalidWeekday    = errors.New("recurring: weekday must be between 0 (Sunday) and 6 (Saturday)")
	ErrInvalidTimeOfDay  = errors.New("recurring: time of day must be formatted as HH:MM")
	ErrInvalidTimezone   = errors.New("recurring: unknown IANA timezone")
	ErrInvalidInterval   = errors.New("recurring: interval must be at least 1")
	ErrInvalidUnit       = errors.New("recurring: invalid interval unit")
	ErrInvalidAmount     = errors.New("recurring: amount must be positive")
	ErrInvalidCurrency   = errors.New("recurring: invalid currency code")
	ErrInvalidKind       = errors.New("recurring: invalid rule kind")
	ErrEndBeforeStart    = errors.New("recurring: end date precedes start date")
	ErrWindowClosed      = errors.New("recurring: no occurrence exists within the schedule window")
)

// Runtime errors.
var (
	ErrRuleNotFound = errors.New("recurring: rule not found")
)
