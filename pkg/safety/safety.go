// Package safety screens proposed actions before they reach the sandbox.
// Classification is advisory in review-gated modes; in direct execution it
// is the only gate, so every failure path defaults to unsafe.
package safety

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"codepilot/pkg/logx"
	"codepilot/pkg/proto"
)

// RiskLevel grades a classified action.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Verdict is the classifier's judgment on a single described action.
type Verdict struct {
	IsSafe    bool      `json:"is_safe"`
	RiskLevel RiskLevel `json:"risk_level"`
	Reasoning string    `json:"reasoning"`
}

// Classifier renders a safety verdict for one action description.
type Classifier interface {
	Classify(ctx context.Context, description string) (Verdict, error)
}

// Filter drops unsafe side-effecting actions from a proposed batch.
// Pure reads pass through unclassified.
type Filter struct {
	classifier    Classifier
	sideEffecting map[string]bool
	timeout       time.Duration
	logger        *logx.Logger
}

func NewFilter(classifier Classifier, sideEffecting map[string]bool, timeout time.Duration) *Filter {
	return &Filter{
		classifier:    classifier,
		sideEffecting: sideEffecting,
		timeout:       timeout,
		logger:        logx.NewLogger("safety"),
	}
}

// Describe renders the canonical string submitted to the classifier.
func Describe(req proto.ActionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "action: %s", req.Name)
	if len(req.Arguments) > 0 {
		keys := make([]string, 0, len(req.Arguments))
		for k := range req.Arguments {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %v", k, req.Arguments[k])
		}
	}
	return b.String()
}

// Check classifies each side-effecting action in the batch and returns the
// surviving actions in their original order, plus whether anything was
// dropped. A classifier error or timeout drops the action.
func (f *Filter) Check(ctx context.Context, actions []proto.ActionRequest) ([]proto.ActionRequest, bool) {
	safe := make([]proto.ActionRequest, 0, len(actions))
	filtered := false
	for _, req := range actions {
		if !f.sideEffecting[req.Name] {
			safe = append(safe, req)
			continue
		}
		verdict, err := f.classify(ctx, Describe(req))
		if err != nil {
			f.logger.Warn("classifier failed for %s, dropping (fail closed): %v", req.Name, err)
			filtered = true
			continue
		}
		if !verdict.IsSafe {
			f.logger.Warn("dropped unsafe action %s (risk=%s): %s", req.Name, verdict.RiskLevel, verdict.Reasoning)
			filtered = true
			continue
		}
		safe = append(safe, req)
	}
	return safe, filtered
}

func (f *Filter) classify(ctx context.Context, description string) (Verdict, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	return f.classifier.Classify(ctx, description)
}

// Apply filters the assistant turn at idx in the log. When any action is
// dropped, the turn is superseded by a copy carrying only the surviving
// actions so the audit trail matches what actually ran. Returns the actions
// cleared for execution.
func (f *Filter) Apply(ctx context.Context, log *proto.TurnLog, idx int) ([]proto.ActionRequest, bool) {
	turn, ok := log.At(idx)
	if !ok {
		return nil, false
	}
	safe, filtered := f.Check(ctx, turn.Actions)
	if !filtered {
		return safe, false
	}
	rewritten := turn
	rewritten.ID = uuid.New().String()
	rewritten.Actions = safe
	if log.Supersede(idx, rewritten) < 0 {
		f.logger.Error("failed to supersede turn %d after filtering", idx)
	}
	return safe, true
}
