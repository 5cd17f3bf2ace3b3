// Package schedule computes when recurring rules fire.
//
// The calculator is a pure function over a validated Spec: given a
// reference instant it returns the next occurrence strictly after it,
// respecting the rule's timezone, anchored weekday or day-of-month, and
// optional start/end window. Monthly anchors past the end of a month are
// clamped (day 31 in February resolves to the 28th or 29th).
//
// IntervalSpec covers the simpler catch-up variant: occurrences every N
// days, weeks or months from a start date.
package schedule
