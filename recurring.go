// Package recurring schedules recurring money events: it turns parsed
// recurrence descriptions into durable, timezone-correct rules, decides
// whether a new request updates an existing rule or creates a new one,
// and executes due occurrences exactly once across restarts and
// overlapping ticks.
//
// This is the main package users should import. It re-exports the
// public types from the pkg/ packages for a clean API surface.
//
// Basic usage:
//
//	db, _ := gorm.Open(sqlite.Open("finance.db"), &gorm.Config{TranslateError: true})
//	store := recurring.NewGormStorage(db)
//	store.Migrate(context.Background())
//
//	svc := recurring.NewService(store)
//	result, _ := svc.CreateRule(ctx, userID, input, recurring.CreateOptions{})
//
//	eng := recurring.NewEngine(store)
//	eng.Start()
//	defer eng.Stop()
package recurring

import (
	"gorm.io/gorm"

	"github.com/finflow/recurring/pkg/core"
	"github.com/finflow/recurring/pkg/engine"
	"github.com/finflow/recurring/pkg/match"
	"github.com/finflow/recurring/pkg/schedule"
	"github.com/finflow/recurring/pkg/storage"
)

// Type aliases for the public surface.
type (
	// Rule is a persisted anchored recurrence definition.
	Rule = core.Rule

	// IntervalRule is the catch-up recurrence variant.
	IntervalRule = core.IntervalRule

	// RunLog records one executed occurrence of a rule.
	RunLog = core.RunLog

	// LedgerEntry is the artifact created by a fired transaction rule.
	LedgerEntry = core.LedgerEntry

	// BudgetAllocation is the artifact upserted by a fired budget rule.
	BudgetAllocation = core.BudgetAllocation

	// RecurrenceInput is the parser's normalized anchored recurrence.
	RecurrenceInput = core.RecurrenceInput

	// IntervalInput is the parser's normalized interval recurrence.
	IntervalInput = core.IntervalInput

	// Frequency is the anchored recurrence period.
	Frequency = core.Frequency

	// RuleKind distinguishes expense, income and budget rules.
	RuleKind = core.RuleKind

	// Storage is the persistence contract.
	Storage = core.Storage

	// GormStorage implements Storage using GORM.
	GormStorage = storage.GormStorage

	// Engine runs the tick loops.
	Engine = engine.Engine

	// EngineOption configures an Engine.
	EngineOption = engine.Option

	// Matcher correlates new requests with stored rules.
	Matcher = match.Matcher

	// Spec is a validated anchored recurrence schedule.
	Spec = schedule.Spec

	// IntervalSpec is a validated interval schedule.
	IntervalSpec = schedule.IntervalSpec
)

// Frequency constants.
const (
	FreqDaily   = core.FreqDaily
	FreqWeekly  = core.FreqWeekly
	FreqMonthly = core.FreqMonthly
	FreqYearly  = core.FreqYearly
)

// Rule kind constants.
const (
	KindExpense = core.KindExpense
	KindIncome  = core.KindIncome
	KindBudget  = core.KindBudget
)

// Interval unit constants.
const (
	UnitDay   = core.UnitDay
	UnitWeek  = core.UnitWeek
	UnitMonth = core.UnitMonth
)

// Run statuses.
const (
	RunSuccess = core.RunSuccess
	RunError   = core.RunError
)

// Configuration errors surfaced from rule creation.
var (
	ErrInvalidFrequency  = core.ErrInvalidFrequency
	ErrInvalidDayOfMonth = core.ErrInvalidDayOfMonth
	ErrInvalidWeekday    = core.ErrInvalidWeekday
	ErrInvalidTimeOfDay  = core.ErrInvalidTimeOfDay
	ErrInvalidTimezone   = core.ErrInvalidTimezone
	ErrInvalidInterval   = core.ErrInvalidInterval
	ErrInvalidUnit       = core.ErrInvalidUnit
	ErrInvalidAmount     = core.ErrInvalidAmount
	ErrInvalidCurrency   = core.ErrInvalidCurrency
	ErrInvalidKind       = core.ErrInvalidKind
	ErrEndBeforeStart    = core.ErrEndBeforeStart
	ErrWindowClosed      = core.ErrWindowClosed
	ErrRuleNotFound      = core.ErrRuleNotFound
)

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return storage.NewGormStorage(db)
}

// NewEngine creates an execution engine over the given storage.
func NewEngine(s Storage, opts ...EngineOption) *Engine {
	return engine.New(s, opts...)
}

// NewMatcher creates a rule matcher over the given storage.
func NewMatcher(s Storage) *Matcher {
	return match.New(s)
}

// Engine option re-exports.
var (
	WithTickSpec     = engine.WithTickSpec
	WithBatchLimit   = engine.WithBatchLimit
	WithCatchUpLimit = engine.WithCatchUpLimit
	WithEngineLogger = engine.WithLogger
	WithClock        = engine.WithClock
)
