// Package contextmgr implements context-budget accounting and the
// summarization policy that keeps the conversation within the token ceiling.
package contextmgr

import (
	"codepilot/pkg/config"
	"codepilot/pkg/proto"
)

// Manager accounts estimated tokens over conversation turns and decides
// when summarization must occur.
type Manager struct {
	counter *TokenCounter
	cfg     config.BudgetCfg
}

// NewManager creates a budget manager. The tiktoken codec is optional; when
// it cannot load, the characters heuristic carries the ceiling checks.
func NewManager(cfg config.BudgetCfg) *Manager {
	counter, err := NewTokenCounter(cfg.CharsPerToken)
	if err != nil {
		counter = NewEstimatingCounter(cfg.CharsPerToken)
	}
	return &Manager{counter: counter, cfg: cfg}
}

// BudgetOpts controls which turns CalculateBudget counts.
type BudgetOpts struct {
	// ExcludeHidden skips turns marked hidden.
	ExcludeHidden bool
	// ExcludeFromEnd skips the last N turns, keeping the most recent
	// exchange out of threshold checks.
	ExcludeFromEnd int
}

// EstimateTurn returns the token cost of one turn: the provider-reported
// usage when known, otherwise characters/N plus a fixed surcharge per
// structured action name and the serialized argument bytes.
func (m *Manager) EstimateTurn(t *proto.Turn) int {
	if t.ActualTokens > 0 {
		return t.ActualTokens
	}
	tokens := m.counter.Estimate(t.Content)
	for i := range t.Actions {
		tokens += m.cfg.ActionSurcharge
		tokens += t.Actions[i].ArgumentBytes() / m.cfg.CharsPerToken
	}
	return tokens
}

// CalculateBudget sums estimated tokens over the given turns subject to
// opts.
func (m *Manager) CalculateBudget(turns []proto.Turn, opts BudgetOpts) int {
	end := len(turns)
	if opts.ExcludeFromEnd > 0 {
		end -= opts.ExcludeFromEnd
		if end < 0 {
			end = 0
		}
	}

	total := 0
	for i := 0; i < end; i++ {
		if opts.ExcludeHidden && turns[i].Hidden {
			continue
		}
		total += m.EstimateTurn(&turns[i])
	}
	return total
}

// OverBudget reports whether the visible conversation exceeds the ceiling.
// The most recent exchange is always left out of the check so a single
// large turn cannot trigger summarization of itself.
func (m *Manager) OverBudget(turns []proto.Turn) bool {
	used := m.CalculateBudget(turns, BudgetOpts{
		ExcludeHidden:  true,
		ExcludeFromEnd: m.cfg.KeepRecentTurns,
	})
	return used > m.cfg.MaxContextTokens
}

// Ceiling returns the configured token ceiling.
func (m *Manager) Ceiling() int {
	return m.cfg.MaxContextTokens
}

// CountExact returns the precise token count for text when the codec is
// available, falling back to the estimate.
func (m *Manager) CountExact(text string) int {
	return m.counter.Count(text)
}
