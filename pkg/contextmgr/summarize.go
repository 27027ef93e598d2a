package contextmgr

import (
	"context"
	"fmt"
	"strings"

	"codepilot/pkg/logx"
	"codepilot/pkg/proto"
)

// Compressor turns a stretch of conversation into a compact structured
// extraction. The orchestrator backs this with the action proposer.
type Compressor interface {
	Compress(ctx context.Context, prompt string) (string, error)
}

// Summarizer extracts old turns into a summary marker when the budget
// manager says the conversation is over its ceiling.
type Summarizer struct {
	mgr        *Manager
	compressor Compressor
	logger     *logx.Logger
}

// NewSummarizer creates a summarizer.
func NewSummarizer(mgr *Manager, compressor Compressor) *Summarizer {
	return &Summarizer{
		mgr:        mgr,
		compressor: compressor,
		logger:     logx.NewLogger("contextmgr"),
	}
}

// Summarize compresses every turn after the latest summary marker except
// the most recent KeepRecentTurns, replacing them with one summary-marker
// pair. planText gives the compressor the active plan for orientation, so
// the summary can reference plan items without restating them.
//
// Summarization is idempotent with respect to already-summarized turns: a
// second call without new turns finds nothing to extract and leaves the
// log untouched.
func (s *Summarizer) Summarize(ctx context.Context, log *proto.TurnLog, planText string) (int, error) {
	// The window is computed over live entries only: collapsed turns,
	// earlier markers and superseded originals never count, so a second
	// pass without new turns extracts nothing.
	live := log.LiveIndices()
	keep := s.mgr.cfg.KeepRecentTurns
	if len(live) <= keep {
		return 0, nil
	}
	window := live[:len(live)-keep]

	extract := make([]proto.Turn, 0, len(window))
	for _, i := range window {
		t, ok := log.At(i)
		if !ok {
			continue
		}
		extract = append(extract, t)
	}
	if len(extract) == 0 {
		return 0, nil
	}

	prompt := buildExtractionPrompt(extract, planText)
	compressed, err := s.compressor.Compress(ctx, prompt)
	if err != nil {
		return 0, fmt.Errorf("summarization failed: %w", err)
	}

	marker := proto.NewSummaryTurn(compressed)
	start := log.SummaryBoundary()
	if window[0] < start {
		start = window[0]
	}
	log.Collapse(start, window[len(window)-1]+1, marker)

	s.logger.Info("🗜️  Summarized %d turns into one marker (boundary now %d)", len(extract), log.SummaryBoundary())
	return len(extract), nil
}

// buildExtractionPrompt renders extracted turns into the compression
// request. Full file contents are explicitly excluded to bound the
// summary's own size.
func buildExtractionPrompt(turns []proto.Turn, planText string) string {
	var b strings.Builder
	b.WriteString("Compress the conversation below into a structured extraction with three sections:\n")
	b.WriteString("FILES: every file path touched or discussed.\n")
	b.WriteString("INSIGHTS: decisions made and facts learned about the codebase.\n")
	b.WriteString("OPEN ITEMS: anything started but unfinished.\n")
	b.WriteString("Do NOT include full file contents; reference paths only.\n\n")

	if planText != "" {
		b.WriteString("Active plan for orientation:\n")
		b.WriteString(planText)
		b.WriteString("\n\n")
	}

	b.WriteString("Conversation:\n")
	for i := range turns {
		t := &turns[i]
		switch t.Role {
		case proto.RoleResult:
			fmt.Fprintf(&b, "[result %s %s] %s\n", t.ActionName, t.Status, t.Content)
		case proto.RoleAssistant:
			fmt.Fprintf(&b, "[assistant] %s", t.Content)
			for j := range t.Actions {
				fmt.Fprintf(&b, " <%s>", t.Actions[j].Name)
			}
			b.WriteString("\n")
		default:
			fmt.Fprintf(&b, "[%s] %s\n", t.Role, t.Content)
		}
	}
	return b.String()
}
