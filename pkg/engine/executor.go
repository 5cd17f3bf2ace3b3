package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finflow/recurring/pkg/core"
	"github.com/finflow/recurring/pkg/schedule"
)

// advanceReference is added to the fired occurrence before asking the
// calculator for the next one, guaranteeing strict progress.
const advanceReference = time.Minute

// executeRule runs one due occurrence of an anchored rule. Failures are
// recorded as an ERROR run log and the rule's pointers are left alone,
// so the identical occurrence is retried on the next tick.
func (e *Engine) executeRule(ctx context.Context, rule *core.Rule) {
	spec, err := schedule.ForRule(rule)
	if err != nil {
		e.config.Logger.Error("rule has unusable schedule", "rule_id", rule.ID, "error", err)
		return
	}
	if rule.NextRunAt == nil {
		return
	}
	dueAt := *rule.NextRunAt
	occurrenceDate := spec.OccurrenceDate(dueAt)

	// An occurrence past the end boundary retires the rule without
	// producing an artifact.
	if rule.EndAt != nil && dueAt.After(*rule.EndAt) {
		rule.Enabled = false
		rule.NextRunAt = nil
		if err := e.store.SaveRule(ctx, rule); err != nil {
			e.config.Logger.Error("failed to retire rule", "rule_id", rule.ID, "error", err)
		}
		return
	}

	next, hasNext := spec.Next(dueAt.Add(advanceReference))

	err = e.store.Transact(ctx, func(tx core.Storage) error {
		existing, err := tx.GetRunLog(ctx, rule.ID, occurrenceDate)
		if err != nil {
			return fmt.Errorf("run log lookup: %w", err)
		}

		// A prior tick (or another process) already handled this
		// occurrence: advance the pointers and create nothing.
		if existing == nil || existing.Status != core.RunSuccess {
			runLog := &core.RunLog{
				ID:             uuid.New().String(),
				RuleID:         rule.ID,
				OccurrenceDate: occurrenceDate,
				Status:         core.RunSuccess,
			}
			if rule.Kind.IsTransaction() {
				entry, err := e.createEntry(ctx, tx, rule, dueAt)
				if err != nil {
					return err
				}
				runLog.EntryID = &entry.ID
			} else {
				alloc, err := e.upsertAllocation(ctx, tx, rule, spec.Period(dueAt))
				if err != nil {
					return err
				}
				runLog.AllocationID = &alloc.ID
			}
			if existing != nil {
				// An ERROR row from a failed attempt; the unique index
				// forbids a second row, so flip it in place.
				runLog.ID = existing.ID
				if err := tx.SaveRunLog(ctx, runLog); err != nil {
					return fmt.Errorf("write run log: %w", err)
				}
			} else if err := tx.CreateRunLog(ctx, runLog); err != nil {
				return fmt.Errorf("write run log: %w", err)
			}
		}

		rule.LastRunAt = &dueAt
		if hasNext {
			rule.NextRunAt = &next
		} else {
			rule.NextRunAt = nil
			rule.Enabled = false
		}
		if err := tx.SaveRule(ctx, rule); err != nil {
			return fmt.Errorf("advance rule: %w", err)
		}
		return nil
	})
	if err != nil {
		e.config.Logger.Error("occurrence failed", "rule_id", rule.ID, "occurrence", occurrenceDate, "error", err)
		if logErr := e.store.UpsertErrorRunLog(ctx, rule.ID, occurrenceDate, err.Error()); logErr != nil {
			e.config.Logger.Error("failed to record occurrence error", "rule_id", rule.ID, "error", logErr)
		}
	}
}

// createEntry materializes the ledger entry for a fired transaction
// rule.
func (e *Engine) createEntry(ctx context.Context, tx core.Storage, rule *core.Rule, occursAt time.Time) (*core.LedgerEntry, error) {
	entry := &core.LedgerEntry{
		ID:         uuid.New().String(),
		UserID:     rule.UserID,
		Kind:       rule.Kind,
		Amount:     rule.Amount,
		Currency:   rule.Currency,
		CategoryID: rule.CategoryID,
		Note:       rule.Note,
		OccursAt:   occursAt,
		RuleID:     &rule.ID,
	}
	if err := tx.CreateLedgerEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("create ledger entry: %w", err)
	}
	return entry, nil
}

// upsertAllocation creates the period's budget allocation, or refreshes
// its amount and currency when one already exists for the user, period
// and category.
func (e *Engine) upsertAllocation(ctx context.Context, tx core.Storage, rule *core.Rule, period string) (*core.BudgetAllocation, error) {
	alloc, err := tx.FindBudgetAllocation(ctx, rule.UserID, period, rule.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("find allocation: %w", err)
	}
	if alloc != nil {
		alloc.Amount = rule.Amount
		alloc.Currency = rule.Currency
		if err := tx.SaveBudgetAllocation(ctx, alloc); err != nil {
			return nil, fmt.Errorf("update allocation: %w", err)
		}
		return alloc, nil
	}

	alloc = &core.BudgetAllocation{
		ID:         uuid.New().String(),
		UserID:     rule.UserID,
		Period:     period,
		CategoryID: rule.CategoryID,
		Amount:     rule.Amount,
		Currency:   rule.Currency,
	}
	if err := tx.CreateBudgetAllocation(ctx, alloc); err != nil {
		return nil, fmt.Errorf("create allocation: %w", err)
	}
	return alloc, nil
}
