package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the anchored recurrence period of a Rule.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// RuleKind distinguishes what artifact a firing rule produces.
type RuleKind string

const (
	KindExpense RuleKind = "expense"
	KindIncome  RuleKind = "income"
	KindBudget  RuleKind = "budget"
)

// IsTransaction reports whether the kind produces a ledger entry.
func (k RuleKind) IsTransaction() bool {
	return k == KindExpense || k == KindIncome
}

// Rule is a persisted recurrence definition with an anchored schedule:
// a fixed weekday for weekly rules, a fixed day-of-month for monthly
// rules, always at a fixed wall-clock time in the rule's timezone.
//
// NextRunAt is NULL exactly when the rule is permanently retired (end
// date passed or schedule exhausted); otherwise it is strictly later
// than LastRunAt whenever both are set.
type Rule struct {
	ID      string   `gorm:"primaryKey;size:36"`
	UserID  string   `gorm:"index;size:36;not null"`
	Enabled bool     `gorm:"index;default:true"`
	Kind    RuleKind `gorm:"size:16;not null"`

	Frequency  Frequency `gorm:"size:16;not null"`
	DayOfMonth *int      // 1..31, monthly rules only
	Weekday    *int      // 0=Sunday..6=Saturday, weekly rules only
	TimeOfDay  string    `gorm:"size:5;not null"` // "HH:MM" wall clock
	Timezone   string    `gorm:"size:64;not null"`
	StartAt    time.Time `gorm:"not null"`
	EndAt      *time.Time

	Amount     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Currency   string          `gorm:"size:8;not null"`
	CategoryID *string         `gorm:"index;size:36"`
	Note       string          `gorm:"type:text"`

	NextRunAt *time.Time `gorm:"index"`
	LastRunAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// IntervalUnit is the step unit of an interval rule.
type IntervalUnit string

const (
	UnitDay   IntervalUnit = "day"
	UnitWeek  IntervalUnit = "week"
	UnitMonth IntervalUnit = "month"
)

// IntervalRule is the catch-up variant: every N days/weeks/months from a
// start date, with missed occurrences replayed in bounded batches rather
// than one per tick. Deduplication relies on the ledger-entry uniqueness
// constraint, not a run log.
type IntervalRule struct {
	ID      string   `gorm:"primaryKey;size:36"`
	UserID  string   `gorm:"index;size:36;not null"`
	Enabled bool     `gorm:"index;default:true"`
	Kind    RuleKind `gorm:"size:16;not null"` // expense or income

	Every     int          `gorm:"not null;default:1"`
	Unit      IntervalUnit `gorm:"size:8;not null"`
	TimeOfDay string       `gorm:"size:5;not null"`
	Timezone  string       `gorm:"size:64;not null"`
	StartAt   time.Time    `gorm:"not null"`
	EndAt     *time.Time

	Amount     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Currency   string          `gorm:"size:8;not null"`
	CategoryID *string         `gorm:"index;size:36"`
	Note       string          `gorm:"type:text"`

	NextRunAt *time.Time `gorm:"index"`
	LastRunAt *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// RunStatus is the outcome recorded for one executed occurrence.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunLog records one executed occurrence of a Rule. The composite
// uniqueness of (RuleID, OccurrenceDate) is the sole mechanism that
// prevents double-creation of the same occurrence.
type RunLog struct {
	ID             string    `gorm:"primaryKey;size:36"`
	RuleID         string    `gorm:"uniqueIndex:idx_run_logs_rule_occurrence;size:36;not null"`
	OccurrenceDate string    `gorm:"uniqueIndex:idx_run_logs_rule_occurrence;size:10;not null"` // "YYYY-MM-DD" in the rule's zone
	Status         RunStatus `gorm:"size:16;not null"`
	Message        string    `gorm:"type:text"`

	EntryID      *string `gorm:"size:36"`
	AllocationID *string `gorm:"size:36"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// LedgerEntry is the downstream artifact of a fired transaction rule.
//
// Entries created by the interval variant carry IntervalRuleID and
// OccursAt; the composite unique index on (UserID, IntervalRuleID,
// OccursAt) is what makes catch-up replay idempotent. SQLite and
// Postgres both treat NULL IntervalRuleID rows as distinct, so entries
// from anchored rules never collide.
type LedgerEntry struct {
	ID     string   `gorm:"primaryKey;size:36"`
	UserID string   `gorm:"index;uniqueIndex:idx_entries_interval_occurrence;size:36;not null"`
	Kind   RuleKind `gorm:"size:16;not null"`

	Amount     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Currency   string          `gorm:"size:8;not null"`
	CategoryID *string         `gorm:"index;size:36"`
	Note       string          `gorm:"type:text"`
	OccursAt   time.Time       `gorm:"uniqueIndex:idx_entries_interval_occurrence;not null"`

	RuleID         *string `gorm:"index;size:36"`
	IntervalRuleID *string `gorm:"uniqueIndex:idx_entries_interval_occurrence;size:36"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// BudgetAllocation is the downstream artifact of a fired budget rule,
// upserted per (user, period, category).
type BudgetAllocation struct {
	ID         string  `gorm:"primaryKey;size:36"`
	UserID     string  `gorm:"uniqueIndex:idx_allocations_user_period_category;size:36;not null"`
	Period     string  `gorm:"uniqueIndex:idx_allocations_user_period_category;size:7;not null"` // "YYYY-MM"
	CategoryID *string `gorm:"uniqueIndex:idx_allocations_user_period_category;size:36"`

	Amount   decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Currency string          `gorm:"size:8;not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
