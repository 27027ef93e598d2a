package plan

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Markers delimiting the machine-parseable plan block inside opaque
// surrounding content (an issue body, a tracking document).
const (
	BeginMarker = "<!-- codepilot:plan:begin -->"
	EndMarker   = "<!-- codepilot:plan:end -->"
)

// Render serializes a plan to its embedded block form. The output is
// round-trippable: Parse(Render(p)) yields a plan equal to p.
func Render(p TaskPlan) (string, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render plan: %w", err)
	}
	return BeginMarker + "\n" + string(data) + "\n" + EndMarker, nil
}

// Parse deserializes a plan from the block form produced by Render. The
// input may be a bare block or a whole document containing one.
func Parse(s string) (TaskPlan, error) {
	body := s
	if strings.Contains(s, BeginMarker) {
		extracted, ok := blockBody(s)
		if !ok {
			return TaskPlan{}, fmt.Errorf("plan block is malformed: missing end marker")
		}
		body = extracted
	}

	var p TaskPlan
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &p); err != nil {
		return TaskPlan{}, fmt.Errorf("failed to parse plan: %w", err)
	}
	return p, nil
}

// blockBody returns the text between the begin and end markers.
func blockBody(doc string) (string, bool) {
	start := strings.Index(doc, BeginMarker)
	if start == -1 {
		return "", false
	}
	rest := doc[start+len(BeginMarker):]
	end := strings.Index(rest, EndMarker)
	if end == -1 {
		return "", false
	}
	return rest[:end], true
}

// Embed rewrites the plan block inside a surrounding document, preserving
// all unrelated content verbatim. When the document has no block yet, the
// block is appended after the existing content.
func Embed(doc string, p TaskPlan) (string, error) {
	block, err := Render(p)
	if err != nil {
		return "", err
	}

	start := strings.Index(doc, BeginMarker)
	if start == -1 {
		if doc == "" {
			return block, nil
		}
		return strings.TrimRight(doc, "\n") + "\n\n" + block + "\n", nil
	}

	rest := doc[start:]
	end := strings.Index(rest, EndMarker)
	if end == -1 {
		return "", fmt.Errorf("document has begin marker but no end marker")
	}

	return doc[:start] + block + rest[end+len(EndMarker):], nil
}

// Extract parses the plan block out of a surrounding document. The second
// return is false when the document holds no plan block.
func Extract(doc string) (TaskPlan, bool, error) {
	if !strings.Contains(doc, BeginMarker) {
		return TaskPlan{}, false, nil
	}
	p, err := Parse(doc)
	if err != nil {
		return TaskPlan{}, false, err
	}
	return p, true, nil
}
