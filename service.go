package recurring

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finflow/recurring/pkg/core"
	"github.com/finflow/recurring/pkg/engine"
	"github.com/finflow/recurring/pkg/match"
	"github.com/finflow/recurring/pkg/schedule"
)

// Action reports whether a create request resolved to a new rule or an
// update of an existing one.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// CreateOptions carries caller signals for rule creation. PreferUpdate
// is derived upstream from update-intent keywords in the user's message
// and gates the matcher's fuzzy tier.
type CreateOptions struct {
	PreferUpdate bool
}

// RuleResult is the outcome of CreateRule.
type RuleResult struct {
	Rule   *core.Rule
	Action Action
}

// Service is the synchronous API consumed by the chat-intent handler.
type Service struct {
	store   core.Storage
	matcher *match.Matcher
	engine  *engine.Engine
	logger  *slog.Logger
	now     func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithServiceClock overrides the service clock.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithServiceEngine attaches an engine so ProcessDueRules can run ticks
// on demand.
func WithServiceEngine(e *engine.Engine) ServiceOption {
	return func(s *Service) { s.engine = e }
}

// NewService creates the rule service. Without WithServiceEngine an
// engine with default configuration is attached.
func NewService(store core.Storage, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		matcher: match.New(store),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.engine == nil {
		s.engine = engine.New(store, engine.WithLogger(s.logger), engine.WithClock(s.now))
	}
	return s
}

// CreateRule validates the parsed recurrence, decides update-vs-insert
// via the matcher, computes the initial next-run instant and persists
// the result. Configuration errors are returned synchronously and
// nothing is persisted.
func (s *Service) CreateRule(ctx context.Context, userID string, in core.RecurrenceInput, opts CreateOptions) (*RuleResult, error) {
	if err := schedule.ValidateRecurrence(in); err != nil {
		return nil, err
	}
	spec, err := schedule.NewSpec(in.Frequency, in.DayOfMonth, in.Weekday, in.TimeOfDay, in.Timezone, in.StartAt, in.EndAt)
	if err != nil {
		return nil, err
	}
	nextRun, ok := spec.Next(s.now())
	if !ok {
		return nil, core.ErrWindowClosed
	}

	existing, err := s.matcher.Match(ctx, userID, in, opts.PreferUpdate)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		applyInput(existing, in)
		existing.Enabled = true
		existing.NextRunAt = &nextRun
		if err := s.store.SaveRule(ctx, existing); err != nil {
			return nil, err
		}
		s.logger.Info("rule updated", "rule_id", existing.ID, "user_id", userID, "next_run_at", nextRun)
		return &RuleResult{Rule: existing, Action: ActionUpdated}, nil
	}

	rule := &core.Rule{
		ID:      uuid.New().String(),
		UserID:  userID,
		Enabled: true,
	}
	applyInput(rule, in)
	rule.NextRunAt = &nextRun
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("rule created", "rule_id", rule.ID, "user_id", userID, "next_run_at", nextRun)
	return &RuleResult{Rule: rule, Action: ActionCreated}, nil
}

// applyInput overwrites a rule's schedule and payload from parser
// output. LastRunAt is deliberately preserved on update.
func applyInput(rule *core.Rule, in core.RecurrenceInput) {
	rule.Kind = in.Kind
	rule.Frequency = in.Frequency
	rule.DayOfMonth = in.DayOfMonth
	rule.Weekday = in.Weekday
	rule.TimeOfDay = in.TimeOfDay
	rule.Timezone = in.Timezone
	rule.StartAt = in.StartAt
	rule.EndAt = in.EndAt
	rule.Amount = in.Amount
	rule.Currency = in.Currency
	rule.CategoryID = in.CategoryID
	rule.Note = in.Note
}

// CreateIntervalRule validates and persists an interval recurrence. The
// initial next-run pointer is the first occurrence of the schedule, so
// a start date in the past is replayed by the catch-up loop.
func (s *Service) CreateIntervalRule(ctx context.Context, userID string, in core.IntervalInput) (*core.IntervalRule, error) {
	if err := schedule.ValidateInterval(in); err != nil {
		return nil, err
	}
	spec, err := schedule.NewIntervalSpec(in.Every, in.Unit, in.TimeOfDay, in.Timezone, in.StartAt, in.EndAt)
	if err != nil {
		return nil, err
	}
	first := spec.Occurrence(0)
	if in.EndAt != nil && first.After(*in.EndAt) {
		return nil, core.ErrWindowClosed
	}

	rule := &core.IntervalRule{
		ID:         uuid.New().String(),
		UserID:     userID,
		Enabled:    true,
		Kind:       in.Kind,
		Every:      in.Every,
		Unit:       in.Unit,
		TimeOfDay:  in.TimeOfDay,
		Timezone:   in.Timezone,
		StartAt:    in.StartAt,
		EndAt:      in.EndAt,
		Amount:     in.Amount,
		Currency:   in.Currency,
		CategoryID: in.CategoryID,
		Note:       in.Note,
		NextRunAt:  &first,
	}
	if err := s.store.CreateIntervalRule(ctx, rule); err != nil {
		return nil, err
	}
	s.logger.Info("interval rule created", "rule_id", rule.ID, "user_id", userID, "next_run_at", first)
	return rule, nil
}

// ProcessDueRules runs one tick of every scheduler variant. It is
// idempotent and safe to call repeatedly or concurrently from multiple
// processes; correctness is preserved by the storage constraints.
func (s *Service) ProcessDueRules(ctx context.Context, batchLimit int) error {
	return errors.Join(
		s.engine.RunRuleTickOnce(ctx, batchLimit),
		s.engine.RunBudgetTickOnce(ctx, batchLimit),
		s.engine.RunIntervalTickOnce(ctx, batchLimit),
	)
}

// ListRules returns all of a user's anchored rules, newest first.
func (s *Service) ListRules(ctx context.Context, userID string) ([]*core.Rule, error) {
	return s.store.ListRules(ctx, userID)
}

// DisableRule turns a rule off. The rule and its run history are kept.
func (s *Service) DisableRule(ctx context.Context, userID, ruleID string) error {
	return s.store.DisableRule(ctx, userID, ruleID)
}

// ListIntervalRules returns all of a user's interval rules.
func (s *Service) ListIntervalRules(ctx context.Context, userID string) ([]*core.IntervalRule, error) {
	return s.store.ListIntervalRules(ctx, userID)
}

// DisableIntervalRule turns an interval rule off.
func (s *Service) DisableIntervalRule(ctx context.Context, userID, ruleID string) error {
	return s.store.DisableIntervalRule(ctx, userID, ruleID)
}

// ListRunLogs returns the most recent run logs for a rule, for
// operational monitoring.
func (s *Service) ListRunLogs(ctx context.Context, ruleID string, limit int) ([]*core.RunLog, error) {
	return s.store.ListRunLogs(ctx, ruleID, limit)
}
