package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finflow/recurring/pkg/core"
	"github.com/finflow/recurring/pkg/schedule"
)

// catchUpIntervalRule replays every missed occurrence of an interval
// rule up to now, bounded by the backlog cap; occurrences beyond the
// cap stay pending with NextRunAt pointing at the first un-replayed
// one, so the backlog drains over subsequent ticks.
//
// There is no run log here: the ledger entry's (user, rule, occurs at)
// uniqueness constraint is the dedup, and a duplicate-key insert means
// "already created", not an error.
func (e *Engine) catchUpIntervalRule(ctx context.Context, rule *core.IntervalRule, now time.Time) {
	spec, err := schedule.ForIntervalRule(rule)
	if err != nil {
		e.config.Logger.Error("interval rule has unusable schedule", "rule_id", rule.ID, "error", err)
		return
	}
	if rule.NextRunAt == nil {
		return
	}

	occurrence := *rule.NextRunAt
	created := 0
	for !occurrence.After(now) && created < e.config.CatchUpLimit {
		if rule.EndAt != nil && occurrence.After(*rule.EndAt) {
			rule.Enabled = false
			rule.NextRunAt = nil
			break
		}

		err := e.store.CreateLedgerEntry(ctx, &core.LedgerEntry{
			ID:             uuid.New().String(),
			UserID:         rule.UserID,
			Kind:           rule.Kind,
			Amount:         rule.Amount,
			Currency:       rule.Currency,
			CategoryID:     rule.CategoryID,
			Note:           rule.Note,
			OccursAt:       occurrence,
			IntervalRuleID: &rule.ID,
		})
		if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			// Pointer stays on the failed occurrence; the next tick
			// retries it.
			e.config.Logger.Error("interval occurrence failed", "rule_id", rule.ID, "occurs_at", occurrence, "error", err)
			break
		}

		fired := occurrence
		rule.LastRunAt = &fired
		created++

		next, hasNext := spec.Next(occurrence)
		if !hasNext {
			rule.Enabled = false
			rule.NextRunAt = nil
			break
		}
		rule.NextRunAt = &next
		occurrence = next
	}

	if err := e.store.SaveIntervalRule(ctx, rule); err != nil {
		e.config.Logger.Error("failed to advance interval rule", "rule_id", rule.ID, "error", err)
	}
}
