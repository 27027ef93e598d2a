// Package proposer abstracts the model layer that proposes the next turn:
// ordered conversation turns plus a rendered plan prompt in, zero or more
// structured action requests (or a plain response) out.
package proposer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"codepilot/pkg/proto"
)

// ErrEmptyResponse indicates the model returned no usable content; callers
// treat it as transient.
var ErrEmptyResponse = errors.New("empty model response")

// Usage is the provider-reported token accounting for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ToolSpec describes one action the model may request.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
	Required    []string
}

// Request is one proposal round trip.
//
//nolint:govet // fieldalignment: logical grouping preferred
type Request struct {
	System      string
	PlanContext string
	Turns       []proto.Turn
	Tools       []ToolSpec
	MaxTokens   int
	Temperature float64
}

// Proposal is the model's answer: free text, proposed actions, or both.
type Proposal struct {
	Text    string
	Actions []proto.ActionRequest
	Usage   Usage
}

// Proposer is the model boundary. Complete serves single-prompt uses
// (summarization, safety classification) without transcript plumbing.
type Proposer interface {
	Propose(ctx context.Context, req Request) (Proposal, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

// Message is a provider-neutral chat message.
type Message struct {
	Role    string
	Content string
}

const (
	roleUser      = "user"
	roleAssistant = "assistant"
)

// FlattenTurns converts the transcript to strictly alternating
// user/assistant messages: result and summary turns render as user content,
// and consecutive user-side turns merge into one message. Hidden turns are
// skipped.
func FlattenTurns(turns []proto.Turn) []Message {
	var messages []Message
	var pending []string

	flush := func() {
		if len(pending) > 0 {
			messages = append(messages, Message{Role: roleUser, Content: strings.Join(pending, "\n\n")})
			pending = nil
		}
	}

	for i := range turns {
		t := &turns[i]
		if t.Hidden {
			continue
		}
		switch t.Role {
		case proto.RoleAssistant:
			flush()
			messages = append(messages, Message{Role: roleAssistant, Content: renderAssistant(t)})
		case proto.RoleResult:
			pending = append(pending, fmt.Sprintf("[%s %s]\n%s", t.ActionName, t.Status, t.Content))
		case proto.RoleSummary:
			pending = append(pending, "[conversation summary]\n"+t.Content)
		default:
			pending = append(pending, t.Content)
		}
	}
	flush()
	return messages
}

func renderAssistant(t *proto.Turn) string {
	if len(t.Actions) == 0 {
		return t.Content
	}
	var b strings.Builder
	b.WriteString(t.Content)
	for _, a := range t.Actions {
		fmt.Fprintf(&b, "\n[requested %s]", a.Name)
	}
	return b.String()
}
