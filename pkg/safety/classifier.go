package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Completer is the minimal model surface the classifier needs: one prompt
// in, one text completion out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelClassifier asks a model for a JSON verdict on a described action.
// Anything that is not a well-formed verdict is treated as unsafe.
type ModelClassifier struct {
	completer Completer
}

func NewModelClassifier(completer Completer) *ModelClassifier {
	return &ModelClassifier{completer: completer}
}

const classifyPrompt = `You are a command safety reviewer for an automated coding sandbox.
Judge whether the following action is safe to execute inside an isolated
development container. Unsafe actions include destructive operations outside
the workspace, credential exfiltration, and anything targeting the host.

%s

Respond with ONLY a JSON object:
{"is_safe": true|false, "risk_level": "low"|"medium"|"high", "reasoning": "<one sentence>"}`

func (c *ModelClassifier) Classify(ctx context.Context, description string) (Verdict, error) {
	raw, err := c.completer.Complete(ctx, fmt.Sprintf(classifyPrompt, description))
	if err != nil {
		return Verdict{}, err
	}
	verdict, err := parseVerdict(raw)
	if err != nil {
		return Verdict{}, err
	}
	return verdict, nil
}

// parseVerdict tolerates prose around the JSON object but nothing less than
// a complete object with an explicit is_safe field.
func parseVerdict(raw string) (Verdict, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Verdict{}, fmt.Errorf("no JSON object in classifier response")
	}
	var payload struct {
		IsSafe    *bool     `json:"is_safe"`
		RiskLevel RiskLevel `json:"risk_level"`
		Reasoning string    `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return Verdict{}, fmt.Errorf("malformed classifier response: %w", err)
	}
	if payload.IsSafe == nil {
		return Verdict{}, fmt.Errorf("classifier response missing is_safe")
	}
	return Verdict{IsSafe: *payload.IsSafe, RiskLevel: payload.RiskLevel, Reasoning: payload.Reasoning}, nil
}
