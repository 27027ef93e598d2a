// Package orch drives the turn-routing state machine: it asks the proposer
// for the next step, gates actions through the safety filter, executes them
// in the sandbox, updates the plan, and consults the budget and diagnosis
// heuristics to pick the next phase.
package orch

import "fmt"

// State identifies one engine phase.
type State string

const (
	StatePlanning         State = "PLANNING"
	StateGatheringContext State = "GATHERING_CONTEXT"
	StateActing           State = "ACTING"
	StateVerifying        State = "VERIFYING"
	StateDiagnosing       State = "DIAGNOSING"
	StateSummarizing      State = "SUMMARIZING"
	StateReviewing        State = "REVIEWING"
	StateConcluding       State = "CONCLUDING"
	StateAborted          State = "ABORTED"
	StateSuspended        State = "SUSPENDED"
)

// Transitions is the canonical state transition map. This is the single
// source of truth; any code or diagram must match it exactly.
//
//nolint:gochecknoglobals // canonical transition table
var Transitions = map[State][]State{
	// PLANNING produces an initial plan, defers to GATHERING_CONTEXT when
	// the proposer signals it lacks information, or pauses for approval.
	StatePlanning: {StateActing, StateGatheringContext, StateSuspended, StateAborted},

	// GATHERING_CONTEXT is contractually read-only; it loops back to
	// PLANNING once enough context is collected.
	StateGatheringContext: {StatePlanning, StateSummarizing, StateAborted},

	// ACTING executes plan items until the proposer stops proposing
	// actions, the budget trips, or sustained failure triggers diagnosis.
	StateActing: {StateVerifying, StateSummarizing, StateDiagnosing, StateAborted},

	// VERIFYING judges the current item; more items loop back to ACTING,
	// an exhausted plan routes to REVIEWING.
	StateVerifying: {StateActing, StateReviewing, StateAborted},

	// DIAGNOSING analyzes the repeated failures, then resumes execution.
	StateDiagnosing: {StateActing, StateAborted},

	// SUMMARIZING compresses history, then resumes where it left off.
	StateSummarizing: {StateActing, StateGatheringContext, StateAborted},

	// REVIEWING holistically checks the plan; it may inject new items and
	// loop back, or conclude.
	StateReviewing: {StateActing, StateConcluding, StateAborted},

	// SUSPENDED resumes into PLANNING with injected user input.
	StateSuspended: {StatePlanning, StateAborted},

	// Terminal states.
	StateConcluding: {},
	StateAborted:    {},
}

// IsTerminal reports whether no further transitions exist from s.
func IsTerminal(s State) bool {
	return len(Transitions[s]) == 0
}

// ValidateTransition returns an error when from cannot move to to.
func ValidateTransition(from, to State) error {
	for _, next := range Transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("invalid transition %s -> %s", from, to)
}
