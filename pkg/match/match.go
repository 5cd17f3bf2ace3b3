// Package match correlates a newly parsed recurrence request with
// already-stored rules, deciding update-in-place versus insert.
//
// Three tiers are tried in order, first hit wins: exact note match,
// exact amount match, then (only when the caller prefers an update) a
// fuzzy token-similarity match over the most recently updated
// candidates. Failure to match is not an error; it simply routes the
// request to rule creation.
package match

import (
	"context"
	"fmt"

	"github.com/finflow/recurring/pkg/core"
)

// Fuzzy-tier tuning. The blend weights and threshold were calibrated
// against real chat requests; changing them shifts the update/insert
// boundary for every rephrased reminder.
const (
	// CandidateLimit bounds how many recently updated rules the fuzzy
	// tier considers.
	CandidateLimit = 10

	// MinCommonTokens is the minimum token overlap before a candidate
	// is scored at all.
	MinCommonTokens = 2

	// ScoreThreshold is the minimum adjusted score to accept the best
	// fuzzy candidate.
	ScoreThreshold = 0.55

	newCoverageWeight       = 0.6
	candidateCoverageWeight = 0.2
	jaccardWeight           = 0.2

	frequencyBonus = 0.10
	anchorBonus    = 0.10
	timeOfDayBonus = 0.05
)

// Matcher finds the stored rule a new request refers to, if any.
type Matcher struct {
	store core.Storage
}

// New creates a Matcher over the given storage.
func New(store core.Storage) *Matcher {
	return &Matcher{store: store}
}

// Match returns the existing rule the request correlates with, or nil
// when the request is novel. preferUpdate gates the fuzzy tier; it is
// derived upstream from update-intent keywords in the user's message.
func (m *Matcher) Match(ctx context.Context, userID string, in core.RecurrenceInput, preferUpdate bool) (*core.Rule, error) {
	filter := core.CandidateFilter{
		UserID:     userID,
		Kind:       in.Kind,
		Currency:   in.Currency,
		CategoryID: in.CategoryID,
	}

	if in.Note != "" {
		rule, err := m.store.FindRuleByNote(ctx, filter, in.Note)
		if err != nil {
			return nil, fmt.Errorf("match by note: %w", err)
		}
		if rule != nil {
			return rule, nil
		}
	}

	rule, err := m.store.FindRuleByAmount(ctx, filter, in.Amount)
	if err != nil {
		return nil, fmt.Errorf("match by amount: %w", err)
	}
	if rule != nil {
		return rule, nil
	}

	if !preferUpdate {
		return nil, nil
	}

	candidates, err := m.store.RecentRules(ctx, filter, CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("fuzzy candidates: %w", err)
	}
	return BestFuzzy(in, candidates), nil
}

// BestFuzzy scores every candidate against the request and returns the
// highest scorer at or above ScoreThreshold, or nil.
func BestFuzzy(in core.RecurrenceInput, candidates []*core.Rule) *core.Rule {
	newTokens := Tokenize(in.Note)
	if len(newTokens) == 0 {
		return nil
	}

	var best *core.Rule
	bestScore := 0.0
	for _, cand := range candidates {
		score, ok := Score(in, newTokens, cand)
		if ok && score > bestScore {
			best, bestScore = cand, score
		}
	}
	if bestScore >= ScoreThreshold {
		return best
	}
	return nil
}

// Score computes the similarity between the request and one candidate.
// The boolean is false when the candidate is ineligible (fewer than
// MinCommonTokens tokens in common).
func Score(in core.RecurrenceInput, newTokens map[string]struct{}, cand *core.Rule) (float64, bool) {
	candTokens := Tokenize(cand.Note)
	common := commonCount(newTokens, candTokens)
	if common < MinCommonTokens {
		return 0, false
	}

	union := len(newTokens) + len(candTokens) - common
	score := newCoverageWeight*float64(common)/float64(len(newTokens)) +
		candidateCoverageWeight*float64(common)/float64(len(candTokens)) +
		jaccardWeight*float64(common)/float64(union)

	if in.Frequency == cand.Frequency {
		score += frequencyBonus
	}
	if anchorMatches(in, cand) {
		score += anchorBonus
	}
	if in.TimeOfDay != "" && in.TimeOfDay == cand.TimeOfDay {
		score += timeOfDayBonus
	}
	return score, true
}

// anchorMatches reports whether the schedule anchor agrees: the monthly
// day-of-month or the weekly weekday, whichever applies to the request.
func anchorMatches(in core.RecurrenceInput, cand *core.Rule) bool {
	switch in.Frequency {
	case core.FreqMonthly:
		return in.DayOfMonth != nil && cand.DayOfMonth != nil && *in.DayOfMonth == *cand.DayOfMonth
	case core.FreqWeekly:
		return in.Weekday != nil && cand.Weekday != nil && *in.Weekday == *cand.Weekday
	}
	return false
}
