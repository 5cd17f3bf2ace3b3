package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finflow/recurring/pkg/core"
)

func intervalSpec(t *testing.T, every int, unit core.IntervalUnit, start time.Time) *IntervalSpec {
	t.Helper()
	s, err := NewIntervalSpec(every, unit, "07:00", "Asia/Ho_Chi_Minh", start, nil)
	require.NoError(t, err)
	return s
}

func TestIntervalOccurrence_DaySteps(t *testing.T) {
	loc := mustLoc(t, "Asia/Ho_Chi_Minh")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	s := intervalSpec(t, 3, core.UnitDay, start)

	assert.Equal(t, time.Date(2024, 1, 1, 7, 0, 0, 0, loc).UTC(), s.Occurrence(0))
	assert.Equal(t, time.Date(2024, 1, 4, 7, 0, 0, 0, loc).UTC(), s.Occurrence(1))
	assert.Equal(t, time.Date(2024, 1, 31, 7, 0, 0, 0, loc).UTC(), s.Occurrence(10))
}

func TestIntervalOccurrence_WeekSteps(t *testing.T) {
	loc := mustLoc(t, "Asia/Ho_Chi_Minh")
	start := time.Date(2024, 1, 5, 0, 0, 0, 0, loc)
	s := intervalSpec(t, 2, core.UnitWeek, start)

	occ := s.Occurrence(1)
	assert.Equal(t, time.Date(2024, 1, 19, 7, 0, 0, 0, loc).UTC(), occ)
	assert.Equal(t, start.Weekday(), occ.In(loc).Weekday(), "week steps preserve the weekday")
}

func TestIntervalOccurrence_MonthStepsClamp(t *testing.T) {
	loc := mustLoc(t, "Asia/Ho_Chi_Minh")
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, loc)
	s := intervalSpec(t, 1, core.UnitMonth, start)

	assert.Equal(t, time.Date(2024, 2, 29, 7, 0, 0, 0, loc).UTC(), s.Occurrence(1), "February clamps the anchor day")
	assert.Equal(t, time.Date(2024, 3, 31, 7, 0, 0, 0, loc).UTC(), s.Occurrence(2), "March restores the anchor day")
}

func TestIntervalNext_StrictlyAfterReference(t *testing.T) {
	loc := mustLoc(t, "Asia/Ho_Chi_Minh")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	s := intervalSpec(t, 3, core.UnitDay, start)

	first := s.Occurrence(0)
	next, ok := s.Next(first)
	require.True(t, ok)
	assert.Equal(t, s.Occurrence(1), next)

	// A reference before the start yields the first occurrence.
	next, ok = s.Next(start.AddDate(0, 0, -30))
	require.True(t, ok)
	assert.Equal(t, first, next)
}

func TestIntervalNext_LongBacklogStaysBounded(t *testing.T) {
	// A rule started years ago must still resolve quickly; the skip
	// estimate jumps over the backlog instead of walking it.
	loc := mustLoc(t, "Asia/Ho_Chi_Minh")
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, loc)

	for _, unit := range []core.IntervalUnit{core.UnitDay, core.UnitWeek, core.UnitMonth} {
		s := intervalSpec(t, 1, unit, start)
		after := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
		next, ok := s.Next(after)
		require.True(t, ok, "unit %s", unit)
		assert.True(t, next.After(after), "unit %s: %v not after %v", unit, next, after)

		// And it is the earliest such occurrence.
		prev, ok := s.Next(next.Add(-time.Minute))
		require.True(t, ok)
		assert.Equal(t, next, prev)
	}
}

func TestIntervalNext_EndDateExhausts(t *testing.T) {
	loc := mustLoc(t, "Asia/Ho_Chi_Minh")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, loc)
	end := time.Date(2024, 1, 10, 0, 0, 0, 0, loc)
	s, err := NewIntervalSpec(7, core.UnitDay, "07:00", "Asia/Ho_Chi_Minh", start, &end)
	require.NoError(t, err)

	first, ok := s.Next(start.AddDate(0, 0, -1))
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 7, 0, 0, 0, loc).UTC(), first)

	second, ok := s.Next(first)
	require.True(t, ok, "Jan 8 still fits inside the window")
	assert.Equal(t, time.Date(2024, 1, 8, 7, 0, 0, 0, loc).UTC(), second)

	_, ok = s.Next(second)
	assert.False(t, ok, "Jan 15 exceeds the end date")
}
