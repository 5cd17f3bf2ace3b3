package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CandidateFilter narrows matcher candidate lookups to rules that share
// the new request's user, kind, currency and category.
type CandidateFilter struct {
	UserID     string
	Kind       RuleKind
	Currency   string
	CategoryID *string
}

// Storage defines the persistence layer for the scheduler.
//
// Implementations must back the (RuleID, OccurrenceDate) run-log
// uniqueness and the interval ledger-entry uniqueness with storage-level
// constraints; those constraints are the scheduler's only defense
// against concurrent executors.
type Storage interface {
	// Migrate creates the necessary database tables and indexes.
	Migrate(ctx context.Context) error

	// Transact runs fn inside a single database transaction. The
	// Storage passed to fn is scoped to that transaction; a non-nil
	// error from fn rolls everything back.
	Transact(ctx context.Context, fn func(tx Storage) error) error

	// Rule lifecycle
	CreateRule(ctx context.Context, rule *Rule) error
	SaveRule(ctx context.Context, rule *Rule) error
	GetRule(ctx context.Context, ruleID string) (*Rule, error)
	ListRules(ctx context.Context, userID string) ([]*Rule, error)
	DisableRule(ctx context.Context, userID, ruleID string) error

	// Matcher candidate lookups
	FindRuleByNote(ctx context.Context, f CandidateFilter, note string) (*Rule, error)
	FindRuleByAmount(ctx context.Context, f CandidateFilter, amount decimal.Decimal) (*Rule, error)
	RecentRules(ctx context.Context, f CandidateFilter, limit int) ([]*Rule, error)

	// Scheduling
	DueRules(ctx context.Context, kinds []RuleKind, now time.Time, limit int) ([]*Rule, error)
	DueIntervalRules(ctx context.Context, now time.Time, limit int) ([]*IntervalRule, error)

	// Interval rule lifecycle
	CreateIntervalRule(ctx context.Context, rule *IntervalRule) error
	SaveIntervalRule(ctx context.Context, rule *IntervalRule) error
	ListIntervalRules(ctx context.Context, userID string) ([]*IntervalRule, error)
	DisableIntervalRule(ctx context.Context, userID, ruleID string) error

	// Run log
	GetRunLog(ctx context.Context, ruleID, occurrenceDate string) (*RunLog, error)
	CreateRunLog(ctx context.Context, log *RunLog) error
	SaveRunLog(ctx context.Context, log *RunLog) error
	UpsertErrorRunLog(ctx context.Context, ruleID, occurrenceDate, message string) error
	ListRunLogs(ctx context.Context, ruleID string, limit int) ([]*RunLog, error)

	// Downstream artifacts
	CreateLedgerEntry(ctx context.Context, entry *LedgerEntry) error
	FindBudgetAllocation(ctx context.Context, userID, period string, categoryID *string) (*BudgetAllocation, error)
	CreateBudgetAllocation(ctx context.Context, alloc *BudgetAllocation) error
	SaveBudgetAllocation(ctx context.Context, alloc *BudgetAllocation) error
}
