// Package core provides the domain models and interfaces for the recurring
// scheduler.
//
// This package contains:
//   - Rule, IntervalRule, RunLog and downstream artifact models with GORM
//     annotations
//   - The Storage interface defining the persistence contract
//   - Error values shared across the module
//
// Most users should import the root package github.com/finflow/recurring
// instead of this package directly.
package core
