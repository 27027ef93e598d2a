// Package diagnosis implements the repeated-failure heuristic: it groups
// action results by the assistant turn that proposed them and flags sustained
// high error rates so the orchestrator can route to a diagnosis phase
// instead of burning turns on a failing approach.
package diagnosis

import (
	"codepilot/pkg/proto"
)

// ActionName is the registry name of the diagnostic report action. Result
// turns it produces are excluded from error-rate accounting, and its
// presence in recent groups activates the cooldown.
const ActionName = "diagnose"

// Group is one assistant turn plus the result turns it produced.
type Group struct {
	Assistant proto.Turn
	Results   []proto.Turn
}

// hasDiagnosis reports whether the group proposed or recorded a diagnosis
// action.
func (g *Group) hasDiagnosis() bool {
	for i := range g.Assistant.Actions {
		if g.Assistant.Actions[i].Name == ActionName {
			return true
		}
	}
	for i := range g.Results {
		if g.Results[i].ActionName == ActionName {
			return true
		}
	}
	return false
}

// countedResults returns the number of result turns that participate in
// error-rate accounting: diagnostic-tool results are excluded from both
// numerator and denominator.
func (g *Group) countedResults() (errors, total int) {
	for i := range g.Results {
		r := &g.Results[i]
		if r.Diagnostic || r.ActionName == ActionName {
			continue
		}
		total++
		if r.Status == proto.StatusError {
			errors++
		}
	}
	return errors, total
}

// ErrorRate returns the group's error rate over counted results. The second
// return is false when the group has no counted results at all; such groups
// are excluded from the diagnosis window entirely rather than scored as 0%.
func (g *Group) ErrorRate() (float64, bool) {
	errors, total := g.countedResults()
	if total == 0 {
		return 0, false
	}
	return float64(errors) / float64(total), true
}

// GroupTurns walks the turn stream and groups result turns under the
// assistant turn that introduced them. Hidden turns are skipped.
func GroupTurns(turns []proto.Turn) []Group {
	var groups []Group
	for i := range turns {
		t := turns[i]
		if t.Hidden {
			continue
		}
		switch t.Role {
		case proto.RoleAssistant:
			groups = append(groups, Group{Assistant: t})
		case proto.RoleResult:
			if len(groups) == 0 {
				continue // result with no proposing turn; ignore
			}
			last := &groups[len(groups)-1]
			last.Results = append(last.Results, t)
		}
	}
	return groups
}

// Heuristic holds the diagnosis thresholds.
type Heuristic struct {
	// Window is how many recent scoreable groups are inspected.
	Window int
	// Threshold is the minimum error rate every windowed group must reach.
	Threshold float64
}

// ShouldDiagnose reports whether the recent turn stream shows a sustained
// failure pattern: the last Window scoreable groups all at or above the
// threshold, with no diagnosis newer than the oldest windowed group
// (cooldown, so one diagnosis gets a full window of fresh evidence before
// the next).
func (h Heuristic) ShouldDiagnose(turns []proto.Turn) bool {
	groups := GroupTurns(turns)

	// Keep only groups with counted results; pure no-op assistant turns
	// and pure-diagnostic groups do not occupy window slots. Original
	// positions are kept for the cooldown check below.
	type scored struct {
		idx  int
		rate float64
	}
	scoreable := make([]scored, 0, len(groups))
	for i := range groups {
		if rate, ok := groups[i].ErrorRate(); ok {
			scoreable = append(scoreable, scored{idx: i, rate: rate})
		}
	}

	if len(scoreable) < h.Window {
		return false
	}
	window := scoreable[len(scoreable)-h.Window:]

	// Cooldown: any diagnosis newer than the oldest windowed group means
	// we have not yet gathered a full window of post-diagnosis evidence.
	// A diagnosis that has aged into the oldest slot no longer blocks:
	// the groups after it are all fresh.
	for i := window[0].idx + 1; i < len(groups); i++ {
		if groups[i].hasDiagnosis() {
			return false
		}
	}

	for _, s := range window {
		if s.rate < h.Threshold {
			return false
		}
	}
	return true
}
