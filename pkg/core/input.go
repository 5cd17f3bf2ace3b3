package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecurrenceInput is the normalized output of the upstream natural-language
// parser for an anchored rule. It is validated before any Rule is built
// from it; see the schedule package.
type RecurrenceInput struct {
	Kind       RuleKind
	Frequency  Frequency
	DayOfMonth *int
	Weekday    *int
	TimeOfDay  string
	Timezone   string
	StartAt    time.Time
	EndAt      *time.Time

	Amount     decimal.Decimal
	Currency   string
	CategoryID *string
	Note       string
}

// IntervalInput is the parsed form of an interval recurrence ("every 3
// days", "every 2 weeks").
type IntervalInput struct {
	Kind      RuleKind
	Every     int
	Unit      IntervalUnit
	TimeOfDay string
	Timezone  string
	StartAt   time.Time
	EndAt     *time.Time

	Amount     decimal.Decimal
	Currency   string
	CategoryID *string
	Note       string
}
