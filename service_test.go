package recurring

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/finflow/recurring/pkg/core"
	"github.com/finflow/recurring/pkg/engine"
	"github.com/finflow/recurring/pkg/storage"
)

func newTestService(t *testing.T, now time.Time) (*Service, *storage.GormStorage, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "open in-memory sqlite")

	store := storage.NewGormStorage(db)
	require.NoError(t, store.Migrate(context.Background()), "migrate schema")

	clock := func() time.Time { return now }
	svc := NewService(store,
		WithServiceClock(clock),
		WithServiceEngine(engine.New(store, engine.WithClock(clock))),
	)
	return svc, store, db
}

func intPtr(n int) *int { return &n }

// rentInput is the canonical parsed recurrence: 500000 VND rent on the
// 1st of every month at 07:00 Ho Chi Minh time.
func rentInput() core.RecurrenceInput {
	return core.RecurrenceInput{
		Kind:       core.KindExpense,
		Frequency:  core.FreqMonthly,
		DayOfMonth: intPtr(1),
		TimeOfDay:  "07:00",
		Timezone:   "Asia/Ho_Chi_Minh",
		StartAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Amount:     decimal.NewFromInt(500000),
		Currency:   "VND",
		Note:       "tiền nhà",
	}
}

func countRules(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&core.Rule{}).Count(&n).Error)
	return n
}

// ──────────────────────────────────────────────────────────────────────────────
// CreateRule
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateRule_NewRule(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)

	result, err := svc.CreateRule(context.Background(), "user-1", rentInput(), CreateOptions{})
	require.NoError(t, err)

	assert.Equal(t, ActionCreated, result.Action)
	assert.NotEmpty(t, result.Rule.ID)
	assert.True(t, result.Rule.Enabled)
	require.NotNil(t, result.Rule.NextRunAt)
	// 1st of February at 07:00 Ho Chi Minh time is midnight UTC.
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), result.Rule.NextRunAt.UTC())
	assert.Nil(t, result.Rule.LastRunAt)
}

func TestCreateRule_ExactNoteUpdatesExisting(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	svc, _, db := newTestService(t, now)
	ctx := context.Background()

	first, err := svc.CreateRule(ctx, "user-1", rentInput(), CreateOptions{})
	require.NoError(t, err)

	// Same note, new amount: the later message amends the rule rather
	// than stacking a second one.
	in := rentInput()
	in.Amount = decimal.NewFromInt(550000)
	second, err := svc.CreateRule(ctx, "user-1", in, CreateOptions{})
	require.NoError(t, err)

	assert.Equal(t, ActionUpdated, second.Action)
	assert.Equal(t, first.Rule.ID, second.Rule.ID)
	assert.True(t, second.Rule.Amount.Equal(decimal.NewFromInt(550000)))
	assert.EqualValues(t, 1, countRules(t, db))
}

func TestCreateRule_FuzzyUpdateRequiresPreferUpdate(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	in := rentInput()
	in.Note = "tiền nhà hàng tháng"
	in.Amount = decimal.NewFromInt(600000)

	t.Run("without the update signal a second rule is created", func(t *testing.T) {
		svc, _, db := newTestService(t, now)
		_, err := svc.CreateRule(ctx, "user-1", rentInput(), CreateOptions{})
		require.NoError(t, err)

		result, err := svc.CreateRule(ctx, "user-1", in, CreateOptions{})
		require.NoError(t, err)
		assert.Equal(t, ActionCreated, result.Action)
		assert.EqualValues(t, 2, countRules(t, db))
	})

	t.Run("with the update signal the existing rule is amended", func(t *testing.T) {
		svc, _, db := newTestService(t, now)
		first, err := svc.CreateRule(ctx, "user-1", rentInput(), CreateOptions{})
		require.NoError(t, err)

		result, err := svc.CreateRule(ctx, "user-1", in, CreateOptions{PreferUpdate: true})
		require.NoError(t, err)
		assert.Equal(t, ActionUpdated, result.Action)
		assert.Equal(t, first.Rule.ID, result.Rule.ID)
		assert.EqualValues(t, 1, countRules(t, db))
	})
}

func TestCreateRule_UpdateReenablesDisabledRule(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	first, err := svc.CreateRule(ctx, "user-1", rentInput(), CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.DisableRule(ctx, "user-1", first.Rule.ID))

	second, err := svc.CreateRule(ctx, "user-1", rentInput(), CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, second.Action)
	assert.True(t, second.Rule.Enabled)
	require.NotNil(t, second.Rule.NextRunAt)
}

func TestCreateRule_ConfigurationErrorsPersistNothing(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	svc, _, db := newTestService(t, now)
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(*core.RecurrenceInput)
		wantErr error
	}{
		{"unknown timezone", func(in *core.RecurrenceInput) { in.Timezone = "Mars/Olympus" }, core.ErrInvalidTimezone},
		{"bad time of day", func(in *core.RecurrenceInput) { in.TimeOfDay = "25:00" }, core.ErrInvalidTimeOfDay},
		{"day of month out of range", func(in *core.RecurrenceInput) { in.DayOfMonth = intPtr(32) }, core.ErrInvalidDayOfMonth},
		{"zero amount", func(in *core.RecurrenceInput) { in.Amount = decimal.Zero }, core.ErrInvalidAmount},
		{"end before start", func(in *core.RecurrenceInput) {
			end := in.StartAt.AddDate(0, 0, -1)
			in.EndAt = &end
		}, core.ErrEndBeforeStart},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := rentInput()
			tc.mutate(&in)
			_, err := svc.CreateRule(ctx, "user-1", in, CreateOptions{})
			require.ErrorIs(t, err, tc.wantErr)
		})
	}

	assert.EqualValues(t, 0, countRules(t, db), "rejected inputs leave no rows behind")
}

func TestCreateRule_ClosedWindowRejected(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	svc, _, db := newTestService(t, now)

	in := rentInput()
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	in.EndAt = &end

	_, err := svc.CreateRule(context.Background(), "user-1", in, CreateOptions{})
	require.ErrorIs(t, err, core.ErrWindowClosed, "no occurrence left between now and the end date")
	assert.EqualValues(t, 0, countRules(t, db))
}

// ──────────────────────────────────────────────────────────────────────────────
// CreateIntervalRule
// ──────────────────────────────────────────────────────────────────────────────

func TestCreateIntervalRule_PastStartPointsAtFirstOccurrence(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)

	in := core.IntervalInput{
		Kind:      core.KindExpense,
		Every:     3,
		Unit:      core.UnitDay,
		TimeOfDay: "00:00",
		Timezone:  "UTC",
		StartAt:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Amount:    decimal.NewFromInt(20000),
		Currency:  "VND",
		Note:      "cà phê",
	}
	rule, err := svc.CreateIntervalRule(context.Background(), "user-1", in)
	require.NoError(t, err)

	require.NotNil(t, rule.NextRunAt)
	assert.Equal(t, in.StartAt, rule.NextRunAt.UTC(), "past start is replayed, not skipped")
}

func TestCreateIntervalRule_ValidationAndClosedWindow(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)
	ctx := context.Background()

	base := core.IntervalInput{
		Kind:      core.KindExpense,
		Every:     2,
		Unit:      core.UnitWeek,
		TimeOfDay: "08:00",
		Timezone:  "Asia/Ho_Chi_Minh",
		StartAt:   time.Date(2024, 3, 1, 1, 0, 0, 0, time.UTC),
		Amount:    decimal.NewFromInt(100000),
		Currency:  "VND",
	}

	bad := base
	bad.Every = 0
	_, err := svc.CreateIntervalRule(ctx, "user-1", bad)
	require.ErrorIs(t, err, core.ErrInvalidInterval)

	closed := base
	end := base.StartAt.AddDate(0, 0, -2)
	closed.StartAt = base.StartAt
	closed.EndAt = &end
	_, err = svc.CreateIntervalRule(ctx, "user-1", closed)
	require.ErrorIs(t, err, core.ErrEndBeforeStart)
}

// ──────────────────────────────────────────────────────────────────────────────
// End to end
// ──────────────────────────────────────────────────────────────────────────────

func TestService_CreateThenProcessDue(t *testing.T) {
	// Create the rent rule mid-January, then run the scheduler as if it
	// were the morning of February 1st.
	createdAt := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	svc, store, db := newTestService(t, createdAt)
	ctx := context.Background()

	result, err := svc.CreateRule(ctx, "user-1", rentInput(), CreateOptions{})
	require.NoError(t, err)
	ruleID := result.Rule.ID

	tickAt := time.Date(2024, 2, 1, 0, 10, 0, 0, time.UTC)
	tickClock := func() time.Time { return tickAt }
	ticker := NewService(store,
		WithServiceClock(tickClock),
		WithServiceEngine(engine.New(store, engine.WithClock(tickClock))),
	)
	require.NoError(t, ticker.ProcessDueRules(ctx, 0))

	var entries []*core.LedgerEntry
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "user-1", entries[0].UserID)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(500000)))
	assert.Equal(t, "VND", entries[0].Currency)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), entries[0].OccursAt.UTC())

	rules, err := ticker.ListRules(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.NotNil(t, rules[0].NextRunAt)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), rules[0].NextRunAt.UTC())

	logs, err := ticker.ListRunLogs(ctx, ruleID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, core.RunSuccess, logs[0].Status)

	// Running the tick again at the same instant is a no-op.
	require.NoError(t, ticker.ProcessDueRules(ctx, 0))
	require.NoError(t, db.Find(&entries).Error)
	assert.Len(t, entries, 1)
}

func TestService_DisableStopsExecution(t *testing.T) {
	createdAt := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	svc, store, db := newTestService(t, createdAt)
	ctx := context.Background()

	result, err := svc.CreateRule(ctx, "user-1", rentInput(), CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, svc.DisableRule(ctx, "user-1", result.Rule.ID))

	tickAt := time.Date(2024, 2, 1, 0, 10, 0, 0, time.UTC)
	tickClock := func() time.Time { return tickAt }
	ticker := NewService(store,
		WithServiceClock(tickClock),
		WithServiceEngine(engine.New(store, engine.WithClock(tickClock))),
	)
	require.NoError(t, ticker.ProcessDueRules(ctx, 0))

	var n int64
	require.NoError(t, db.Model(&core.LedgerEntry{}).Count(&n).Error)
	assert.EqualValues(t, 0, n, "disabled rules never fire")
}

func TestService_DisableUnknownRule(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	svc, _, _ := newTestService(t, now)

	err := svc.DisableRule(context.Background(), "user-1", "no-such-rule")
	require.ErrorIs(t, err, core.ErrRuleNotFound)
}
