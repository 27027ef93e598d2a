// Package proto defines the conversation-turn model shared by the
// orchestration engine: turn roles, action requests and results, and the
// append-only turn log with its derived visible view.
package proto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the kind of a conversation turn.
type Role string

const (
	// RoleUser is direct user input.
	RoleUser Role = "user"
	// RoleAssistant is a proposer turn, optionally carrying action requests.
	RoleAssistant Role = "assistant"
	// RoleResult is the recorded outcome of one executed action.
	RoleResult Role = "result"
	// RoleSummary is a summary marker replacing a compacted stretch of turns.
	RoleSummary Role = "summary"
)

// ActionStatus is the lifecycle status of an action execution.
type ActionStatus string

const (
	StatusPending ActionStatus = "pending"
	StatusSuccess ActionStatus = "success"
	StatusError   ActionStatus = "error"
	StatusSkipped ActionStatus = "skipped"
)

// ActionRequest is a single structured action proposed by the assistant.
type ActionRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// NewActionRequest creates an action request with a fresh ID.
func NewActionRequest(name string, args map[string]any) ActionRequest {
	return ActionRequest{
		ID:        uuid.New().String(),
		Name:      name,
		Arguments: args,
	}
}

// ArgumentBytes returns the serialized size of the action arguments.
// Used by budget accounting; a request with no arguments costs zero.
func (a *ActionRequest) ArgumentBytes() int {
	if len(a.Arguments) == 0 {
		return 0
	}
	data, err := json.Marshal(a.Arguments)
	if err != nil {
		return 0
	}
	return len(data)
}

// Turn is one entry in the conversation/action log.
//
//nolint:govet // fieldalignment: logical grouping preferred
type Turn struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Actions holds proposed actions on assistant turns.
	Actions []ActionRequest `json:"actions,omitempty"`

	// ActionID, ActionName and Status tie a result turn to the action
	// that produced it.
	ActionID   string       `json:"action_id,omitempty"`
	ActionName string       `json:"action_name,omitempty"`
	Status     ActionStatus `json:"status,omitempty"`

	// Hidden turns are excluded from budget and diagnosis accounting but
	// retained for audit.
	Hidden bool `json:"hidden,omitempty"`

	// Diagnostic marks result turns produced by diagnostic tooling; they
	// never count toward error-rate accounting.
	Diagnostic bool `json:"diagnostic,omitempty"`

	// ActualTokens is the provider-reported token usage for this turn,
	// when known. Zero means "estimate instead".
	ActualTokens int `json:"actual_tokens,omitempty"`
}

// NewUserTurn creates a user turn.
func NewUserTurn(content string) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewAssistantTurn creates an assistant turn carrying the proposed actions.
func NewAssistantTurn(content string, actions []ActionRequest) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Content:   content,
		Actions:   actions,
		Timestamp: time.Now().UTC(),
	}
}

// NewResultTurn creates a result turn for one executed action.
func NewResultTurn(req ActionRequest, status ActionStatus, output string) Turn {
	return Turn{
		ID:         uuid.New().String(),
		Role:       RoleResult,
		Content:    output,
		ActionID:   req.ID,
		ActionName: req.Name,
		Status:     status,
		Timestamp:  time.Now().UTC(),
	}
}

// NewSummaryTurn creates a summary marker turn.
func NewSummaryTurn(content string) Turn {
	return Turn{
		ID:        uuid.New().String(),
		Role:      RoleSummary,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// IsResult reports whether the turn records an action outcome.
func (t *Turn) IsResult() bool {
	return t.Role == RoleResult
}

// IsError reports whether the turn records a failed action.
func (t *Turn) IsError() bool {
	return t.Role == RoleResult && t.Status == StatusError
}

// ToJSON serializes the turn for the event log.
func (t *Turn) ToJSON() ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn: %w", err)
	}
	return data, nil
}

// TurnFromJSON deserializes a turn from its event-log form.
func TurnFromJSON(data []byte) (*Turn, error) {
	var t Turn
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
	}
	return &t, nil
}
