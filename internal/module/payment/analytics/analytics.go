// Package analytics keeps advisory payment outcome counters.
// The counters are telemetry, never a ledger.
package analytics

import (
	"math"
	"sort"
	"strings"
)

// Outcome is an analytics event label.
type Outcome string

const (
	OutcomeAttempt   Outcome = "attempt"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomePending   Outcome = "pending"
	OutcomeAbandoned Outcome = "abandoned"
	// OutcomeCancelled is counted as abandoned.
	OutcomeCancelled Outcome = "cancelled"
	OutcomeError     Outcome = "error"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAttempt, OutcomeCompleted, OutcomeFailed, OutcomePending,
		OutcomeAbandoned, OutcomeCancelled, OutcomeError:
		return true
	default:
		return false
	}
}

// Normalize folds synonyms onto their canonical label.
func (o Outcome) Normalize() Outcome {
	o = Outcome(strings.ToLower(string(o)))
	if o == OutcomeCancelled {
		return OutcomeAbandoned
	}
	return o
}

// ProviderStats holds one provider's counters.
type ProviderStats struct {
	Attempts       int `json:"attempts"`
	Completed      int `json:"completed"`
	CompletionRate int `json:"completion_rate"`
}

// Analytics is the persisted counter record.
type Analytics struct {
	Completed int                      `json:"completed"`
	Failed    int                      `json:"failed"`
	Pending   int                      `json:"pending"`
	Abandoned int                      `json:"abandoned"`
	Errors    int                      `json:"errors"`
	Attempts  int                      `json:"attempts"`
	Providers map[string]ProviderStats `json:"providers"`
}

// Apply returns a copy of a with outcome counted. When provider is set its
// attempts or completed counter moves too and its completion rate is
// recomputed. Unknown outcomes leave the counters unchanged.
func Apply(a Analytics, outcome Outcome, provider string) Analytics {
	next := a
	next.Providers = make(map[string]ProviderStats, len(a.Providers)+1)
	for name, stats := range a.Providers {
		next.Providers[name] = stats
	}

	outcome = outcome.Normalize()
	switch outcome {
	case OutcomeAttempt:
		next.Attempts++
	case OutcomeCompleted:
		next.Completed++
	case OutcomeFailed:
		next.Failed++
	case OutcomePending:
		next.Pending++
	case OutcomeAbandoned:
		next.Abandoned++
	case OutcomeError:
		next.Errors++
	default:
		return next
	}

	if provider == "" {
		return next
	}

	stats := next.Providers[provider]
	switch outcome {
	case OutcomeAttempt:
		stats.Attempts++
	case OutcomeCompleted:
		stats.Completed++
	}
	stats.CompletionRate = CompletionRate(stats.Completed, stats.Attempts)
	next.Providers[provider] = stats
	return next
}

// CompletionRate returns round(completed/attempts*100), or 0 without attempts.
func CompletionRate(completed, attempts int) int {
	if attempts <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(attempts) * 100))
}

// ProviderSummary is one provider's row in a Summary.
type ProviderSummary struct {
	Provider       string `json:"provider"`
	Attempts       int    `json:"attempts"`
	Completed      int    `json:"completed"`
	CompletionRate int    `json:"completion_rate"`
}

// SummaryView is a read-only projection of Analytics.
type SummaryView struct {
	TotalAttempts  int               `json:"total_attempts"`
	Completed      int               `json:"completed"`
	Failed         int               `json:"failed"`
	Pending        int               `json:"pending"`
	Abandoned      int               `json:"abandoned"`
	Errors         int               `json:"errors"`
	CompletionRate int               `json:"completion_rate"`
	Providers      []ProviderSummary `json:"providers"`
}

// Summary projects a into a SummaryView with providers sorted by name.
func Summary(a Analytics) SummaryView {
	view := SummaryView{
		TotalAttempts:  a.Attempts,
		Completed:      a.Completed,
		Failed:         a.Failed,
		Pending:        a.Pending,
		Abandoned:      a.Abandoned,
		Errors:         a.Errors,
		CompletionRate: CompletionRate(a.Completed, a.Attempts),
		Providers:      make([]ProviderSummary, 0, len(a.Providers)),
	}
	for name, stats := range a.Providers {
		view.Providers = append(view.Providers, ProviderSummary{
			Provider:       name,
			Attempts:       stats.Attempts,
			Completed:      stats.Completed,
			CompletionRate: stats.CompletionRate,
		})
	}
	sort.Slice(view.Providers, func(i, j int) bool {
		return view.Providers[i].Provider < view.Providers[j].Provider
	})
	return view
}
