// Package storage provides the GORM-backed persistence layer for the
// scheduler.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/finflow/recurring/pkg/core"
	"github.com/finflow/recurring/pkg/security"
)

// GormStorage implements core.Storage using GORM. Open the *gorm.DB
// with TranslateError enabled so unique-constraint violations surface
// as gorm.ErrDuplicatedKey across dialects.
type GormStorage struct {
	db *gorm.DB
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db}
}

// Migrate creates the necessary tables and indexes.
func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&core.Rule{},
		&core.IntervalRule{},
		&core.RunLog{},
		&core.LedgerEntry{},
		&core.BudgetAllocation{},
	)
}

// Transact runs fn inside a single database transaction.
func (s *GormStorage) Transact(ctx context.Context, fn func(tx core.Storage) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStorage{db: tx})
	})
}

// CreateRule inserts a new rule, filling a fresh ID if empty.
func (s *GormStorage) CreateRule(ctx context.Context, rule *core.Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.Currency = strings.ToUpper(rule.Currency)
	rule.Note = security.TruncateNote(rule.Note)
	return s.db.WithContext(ctx).Create(rule).Error
}

// SaveRule persists every field of an existing rule, including NULLs
// for cleared scheduling pointers.
func (s *GormStorage) SaveRule(ctx context.Context, rule *core.Rule) error {
	rule.Currency = strings.ToUpper(rule.Currency)
	rule.Note = security.TruncateNote(rule.Note)
	return s.db.WithContext(ctx).Select("*").Omit("created_at").Save(rule).Error
}

// GetRule retrieves a rule by ID, or nil when absent.
func (s *GormStorage) GetRule(ctx context.Context, ruleID string) (*core.Rule, error) {
	var rule core.Rule
	err := s.db.WithContext(ctx).First(&rule, "id = ?", ruleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// ListRules returns all rules for a user, newest first.
func (s *GormStorage) ListRules(ctx context.Context, userID string) ([]*core.Rule, error) {
	var rules []*core.Rule
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rules).Error
	return rules, err
}

// DisableRule turns a rule off without deleting it, so run history
// stays joinable.
func (s *GormStorage) DisableRule(ctx context.Context, userID, ruleID string) error {
	result := s.db.WithContext(ctx).
		Model(&core.Rule{}).
		Where("id = ? AND user_id = ?", ruleID, userID).
		Update("enabled", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrRuleNotFound
	}
	return nil
}

// candidateScope applies a matcher filter to a rule query.
func candidateScope(db *gorm.DB, f core.CandidateFilter) *gorm.DB {
	db = db.
		Where("user_id = ?", f.UserID).
		Where("kind = ?", f.Kind).
		Where("currency = ?", strings.ToUpper(f.Currency))
	if f.CategoryID != nil {
		return db.Where("category_id = ?", *f.CategoryID)
	}
	return db.Where("category_id IS NULL")
}

// FindRuleByNote finds a candidate whose note matches case-insensitively.
func (s *GormStorage) FindRuleByNote(ctx context.Context, f core.CandidateFilter, note string) (*core.Rule, error) {
	var rule core.Rule
	err := candidateScope(s.db.WithContext(ctx), f).
		Where("LOWER(note) = LOWER(?)", note).
		Order("updated_at DESC").
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindRuleByAmount finds a candidate with an identical monetary amount.
func (s *GormStorage) FindRuleByAmount(ctx context.Context, f core.CandidateFilter, amount decimal.Decimal) (*core.Rule, error) {
	var rule core.Rule
	err := candidateScope(s.db.WithContext(ctx), f).
		Where("amount = ?", amount).
		Order("updated_at DESC").
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// RecentRules returns the most recently updated candidates for the
// fuzzy tier.
func (s *GormStorage) RecentRules(ctx context.Context, f core.CandidateFilter, limit int) ([]*core.Rule, error) {
	var rules []*core.Rule
	err := candidateScope(s.db.WithContext(ctx), f).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rules).Error
	return rules, err
}

// DueRules returns enabled rules of the given kinds whose next run is
// at or before now, in ascending next-run order.
func (s *GormStorage) DueRules(ctx context.Context, kinds []core.RuleKind, now time.Time, limit int) ([]*core.Rule, error) {
	var rules []*core.Rule
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where("kind IN ?", kinds).
		Where("next_run_at IS NOT NULL AND next_run_at <= ?", now).
		Order("next_run_at ASC").
		Limit(security.ClampBatchLimit(limit)).
		Find(&rules).Error
	return rules, err
}

// DueIntervalRules is the interval-variant counterpart of DueRules.
func (s *GormStorage) DueIntervalRules(ctx context.Context, now time.Time, limit int) ([]*core.IntervalRule, error) {
	var rules []*core.IntervalRule
	err := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where("next_run_at IS NOT NULL AND next_run_at <= ?", now).
		Order("next_run_at ASC").
		Limit(security.ClampBatchLimit(limit)).
		Find(&rules).Error
	return rules, err
}

// CreateIntervalRule inserts a new interval rule.
func (s *GormStorage) CreateIntervalRule(ctx context.Context, rule *core.IntervalRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.Currency = strings.ToUpper(rule.Currency)
	rule.Note = security.TruncateNote(rule.Note)
	return s.db.WithContext(ctx).Create(rule).Error
}

// SaveIntervalRule persists every field of an existing interval rule.
func (s *GormStorage) SaveIntervalRule(ctx context.Context, rule *core.IntervalRule) error {
	rule.Currency = strings.ToUpper(rule.Currency)
	rule.Note = security.TruncateNote(rule.Note)
	return s.db.WithContext(ctx).Select("*").Omit("created_at").Save(rule).Error
}

// ListIntervalRules returns all interval rules for a user, newest first.
func (s *GormStorage) ListIntervalRules(ctx context.Context, userID string) ([]*core.IntervalRule, error) {
	var rules []*core.IntervalRule
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rules).Error
	return rules, err
}

// DisableIntervalRule turns an interval rule off without deleting it.
func (s *GormStorage) DisableIntervalRule(ctx context.Context, userID, ruleID string) error {
	result := s.db.WithContext(ctx).
		Model(&core.IntervalRule{}).
		Where("id = ? AND user_id = ?", ruleID, userID).
		Update("enabled", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return core.ErrRuleNotFound
	}
	return nil
}

// GetRunLog retrieves the run log for one occurrence, or nil.
func (s *GormStorage) GetRunLog(ctx context.Context, ruleID, occurrenceDate string) (*core.RunLog, error) {
	var log core.RunLog
	err := s.db.WithContext(ctx).
		Where("rule_id = ? AND occurrence_date = ?", ruleID, occurrenceDate).
		First(&log).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// CreateRunLog inserts a run log row. The (rule, occurrence date)
// unique index rejects a second row for the same occurrence.
func (s *GormStorage) CreateRunLog(ctx context.Context, log *core.RunLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	log.Message = security.SanitizeMessage(log.Message)
	return s.db.WithContext(ctx).Create(log).Error
}

// SaveRunLog persists an updated run log row (typically flipping a
// previous ERROR row to SUCCESS on retry).
func (s *GormStorage) SaveRunLog(ctx context.Context, log *core.RunLog) error {
	log.Message = security.SanitizeMessage(log.Message)
	return s.db.WithContext(ctx).Select("*").Omit("created_at").Save(log).Error
}

// UpsertErrorRunLog records a failed occurrence, refreshing the message
// on retry instead of accumulating rows.
func (s *GormStorage) UpsertErrorRunLog(ctx context.Context, ruleID, occurrenceDate, message string) error {
	log := &core.RunLog{
		ID:             uuid.New().String(),
		RuleID:         ruleID,
		OccurrenceDate: occurrenceDate,
		Status:         core.RunError,
		Message:        security.SanitizeMessage(message),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "rule_id"}, {Name: "occurrence_date"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":     core.RunError,
				"message":    log.Message,
				"updated_at": time.Now(),
			}),
		}).
		Create(log).Error
}

// ListRunLogs returns the most recent run logs for a rule.
func (s *GormStorage) ListRunLogs(ctx context.Context, ruleID string, limit int) ([]*core.RunLog, error) {
	var logs []*core.RunLog
	err := s.db.WithContext(ctx).
		Where("rule_id = ?", ruleID).
		Order("occurrence_date DESC").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// CreateLedgerEntry inserts a downstream ledger entry. For interval
// entries the (user, interval rule, occurs at) unique index makes a
// replayed insert fail with gorm.ErrDuplicatedKey.
func (s *GormStorage) CreateLedgerEntry(ctx context.Context, entry *core.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.Currency = strings.ToUpper(entry.Currency)
	entry.Note = security.TruncateNote(entry.Note)
	return s.db.WithContext(ctx).Create(entry).Error
}

// FindBudgetAllocation retrieves the allocation for one user, period
// and category, or nil.
func (s *GormStorage) FindBudgetAllocation(ctx context.Context, userID, period string, categoryID *string) (*core.BudgetAllocation, error) {
	db := s.db.WithContext(ctx).
		Where("user_id = ? AND period = ?", userID, period)
	if categoryID != nil {
		db = db.Where("category_id = ?", *categoryID)
	} else {
		db = db.Where("category_id IS NULL")
	}

	var alloc core.BudgetAllocation
	err := db.First(&alloc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alloc, nil
}

// CreateBudgetAllocation inserts a new allocation.
func (s *GormStorage) CreateBudgetAllocation(ctx context.Context, alloc *core.BudgetAllocation) error {
	if alloc.ID == "" {
		alloc.ID = uuid.New().String()
	}
	alloc.Currency = strings.ToUpper(alloc.Currency)
	return s.db.WithContext(ctx).Create(alloc).Error
}

// SaveBudgetAllocation persists an updated allocation.
func (s *GormStorage) SaveBudgetAllocation(ctx context.Context, alloc *core.BudgetAllocation) error {
	alloc.Currency = strings.ToUpper(alloc.Currency)
	return s.db.WithContext(ctx).Save(alloc).Error
}
