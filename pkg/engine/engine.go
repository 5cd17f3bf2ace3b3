// Package engine runs the scheduler's tick loops: one per variant
// (transaction rules, budget rules, interval rules), each guarded
// against overlapping ticks and each processing due rules sequentially
// inside per-occurrence database transactions.
package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/finflow/recurring/pkg/core"
	"github.com/finflow/recurring/pkg/security"
)

// Defaults for Config.
const (
	DefaultTickSpec     = "@every 5m"
	DefaultBatchLimit   = 50
	DefaultCatchUpLimit = 24
	DefaultTickTimeout  = 4 * time.Minute
)

// Config holds engine configuration.
type Config struct {
	// TickSpec is the cron spec driving all three loops.
	TickSpec string

	// BatchLimit bounds how many due rules one tick processes.
	BatchLimit int

	// CatchUpLimit caps how many missed interval occurrences are
	// replayed per rule per tick.
	CatchUpLimit int

	// TickTimeout bounds one tick's wall-clock time.
	TickTimeout time.Duration

	Logger *slog.Logger

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// Option configures an Engine.
type Option func(*Config)

// WithTickSpec sets the cron spec for the tick loops.
func WithTickSpec(spec string) Option {
	return func(c *Config) { c.TickSpec = spec }
}

// WithBatchLimit sets the per-tick due-rule limit.
func WithBatchLimit(n int) Option {
	return func(c *Config) { c.BatchLimit = security.ClampBatchLimit(n) }
}

// WithCatchUpLimit sets the interval backlog cap.
func WithCatchUpLimit(n int) Option {
	return func(c *Config) { c.CatchUpLimit = security.ClampCatchUpLimit(n) }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}

// Engine executes due rules. Within one process at most one tick per
// variant runs at a time; across processes the run-log and ledger-entry
// uniqueness constraints keep execution idempotent.
type Engine struct {
	store  core.Storage
	config Config
	cron   *cron.Cron

	ruleTickBusy     atomic.Bool
	budgetTickBusy   atomic.Bool
	intervalTickBusy atomic.Bool
}

// New creates an Engine over the given storage.
func New(store core.Storage, opts ...Option) *Engine {
	config := Config{
		TickSpec:     DefaultTickSpec,
		BatchLimit:   DefaultBatchLimit,
		CatchUpLimit: DefaultCatchUpLimit,
		TickTimeout:  DefaultTickTimeout,
		Logger:       slog.Default(),
		Now:          time.Now,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Engine{
		store:  store,
		config: config,
		cron:   cron.New(),
	}
}

// Start registers the tick loops and starts the cron engine. It does
// not block.
func (e *Engine) Start() error {
	ticks := []struct {
		name string
		run  func(context.Context, int) error
	}{
		{"rules", e.RunRuleTickOnce},
		{"budget_rules", e.RunBudgetTickOnce},
		{"interval_rules", e.RunIntervalTickOnce},
	}
	for _, tick := range ticks {
		run := tick.run
		name := tick.name
		_, err := e.cron.AddFunc(e.config.TickSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), e.config.TickTimeout)
			defer cancel()
			if err := run(ctx, 0); err != nil {
				e.config.Logger.Error("tick failed", "loop", name, "error", err)
			}
		})
		if err != nil {
			return err
		}
	}
	e.cron.Start()
	return nil
}

// Stop stops the cron engine and waits for any in-flight tick to
// finish, so no rule is abandoned mid-transaction.
func (e *Engine) Stop() {
	ctx := e.cron.Stop()
	<-ctx.Done()
}

// RunRuleTickOnce processes due transaction rules. The tick is skipped
// entirely when the previous one has not finished. A non-positive
// batchLimit uses the configured default.
func (e *Engine) RunRuleTickOnce(ctx context.Context, batchLimit int) error {
	if !e.ruleTickBusy.CompareAndSwap(false, true) {
		e.config.Logger.Debug("rule tick still running, skipping")
		return nil
	}
	defer e.ruleTickBusy.Store(false)
	return e.processDueRules(ctx, []core.RuleKind{core.KindExpense, core.KindIncome}, e.batchLimit(batchLimit))
}

// RunBudgetTickOnce processes due budget rules.
func (e *Engine) RunBudgetTickOnce(ctx context.Context, batchLimit int) error {
	if !e.budgetTickBusy.CompareAndSwap(false, true) {
		e.config.Logger.Debug("budget tick still running, skipping")
		return nil
	}
	defer e.budgetTickBusy.Store(false)
	return e.processDueRules(ctx, []core.RuleKind{core.KindBudget}, e.batchLimit(batchLimit))
}

// RunIntervalTickOnce processes due interval rules, replaying missed
// occurrences up to the backlog cap.
func (e *Engine) RunIntervalTickOnce(ctx context.Context, batchLimit int) error {
	if !e.intervalTickBusy.CompareAndSwap(false, true) {
		e.config.Logger.Debug("interval tick still running, skipping")
		return nil
	}
	defer e.intervalTickBusy.Store(false)
	return e.processDueIntervalRules(ctx, e.batchLimit(batchLimit))
}

func (e *Engine) batchLimit(n int) int {
	if n > 0 {
		return security.ClampBatchLimit(n)
	}
	return e.config.BatchLimit
}

func (e *Engine) processDueRules(ctx context.Context, kinds []core.RuleKind, limit int) error {
	now := e.config.Now()
	due, err := e.store.DueRules(ctx, kinds, now, limit)
	if err != nil {
		return err
	}

	for _, rule := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.executeRule(ctx, rule)
	}
	return nil
}

func (e *Engine) processDueIntervalRules(ctx context.Context, limit int) error {
	now := e.config.Now()
	due, err := e.store.DueIntervalRules(ctx, now, limit)
	if err != nil {
		return err
	}

	for _, rule := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.catchUpIntervalRule(ctx, rule, now)
	}
	return nil
}
