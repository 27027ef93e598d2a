package orch

import (
	"fmt"
	"strings"

	"codepilot/pkg/actions"
	"codepilot/pkg/plan"
	"codepilot/pkg/proposer"
	"codepilot/pkg/proto"
	"codepilot/pkg/sandbox"
)

func systemPrompt(state State, session *sandbox.Session) string {
	var b strings.Builder
	b.WriteString("You are an autonomous coding agent working inside an isolated sandbox on a git repository.\n")
	if session != nil {
		fmt.Fprintf(&b, "Working directory: %s, branch: %s.\n", session.WorkDir, session.Branch)
		if session.TreeSnapshot != "" {
			b.WriteString("Repository files:\n" + session.TreeSnapshot + "\n")
		}
	}
	switch state {
	case StatePlanning:
		b.WriteString("Break the request into a short ordered plan and submit it with the update_plan action. If you lack information, gather it with read-only actions first.")
	case StateGatheringContext:
		b.WriteString("Gather context with read-only actions only. Do not modify any files.")
	case StateActing:
		b.WriteString("Work on the next unfinished plan item. Propose actions to execute; mark the item with complete_item when it is done, or respond without actions to request verification.")
	case StateReviewing:
		b.WriteString("Review whether the whole plan satisfied the original request. Add missing plan items with update_plan, or respond without actions if everything is done.")
	default:
	}
	return b.String()
}

func planContext(state State, planText string, p plan.TaskPlan) string {
	if len(p.Tasks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Current plan:\n" + planText)
	if state == StateActing {
		if item, ok, err := plan.NextItem(p); err == nil && ok {
			fmt.Fprintf(&b, "\nCurrent item %d: %s", item.Index, item.Text)
		}
	}
	return b.String()
}

func planningTools() []proposer.ToolSpec {
	return append(readOnlyTools(), proposer.ToolSpec{
		Name:        actions.ActionUpdatePlan,
		Description: "Submit the ordered plan for the task.",
		Parameters: map[string]any{
			"title": map[string]any{"type": "string", "description": "Short task title."},
			"items": map[string]any{"type": "array", "description": "Ordered plan items, one atomic step each."},
		},
		Required: []string{"items"},
	})
}

func actingTools() []proposer.ToolSpec {
	return []proposer.ToolSpec{
		shellTool(),
		readFileTool(),
		{
			Name:        actions.ActionEditFile,
			Description: "Write a file, creating parent directories as needed.",
			Parameters: map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			Required: []string{"path", "content"},
		},
		searchTool(),
		{
			Name:        actions.ActionFetchURL,
			Description: "Fetch a URL and return its body.",
			Parameters:  map[string]any{"url": map[string]any{"type": "string"}},
			Required:    []string{"url"},
		},
		{
			Name:        actions.ActionInstallDeps,
			Description: "Install the repository's dependencies.",
			Parameters:  map[string]any{"command": map[string]any{"type": "string", "description": "Override the auto-detected installer."}},
		},
		{
			Name:        actions.ActionUpdatePlan,
			Description: "Replace the not-yet-completed plan items.",
			Parameters:  map[string]any{"items": map[string]any{"type": "array"}},
			Required:    []string{"items"},
		},
		{
			Name:        actions.ActionCompleteItem,
			Description: "Mark the current plan item complete with a one-line summary of what was done.",
			Parameters:  map[string]any{"summary": map[string]any{"type": "string"}},
			Required:    []string{"summary"},
		},
		{
			Name:        actions.ActionDone,
			Description: "Signal that the current plan item is finished.",
			Parameters:  map[string]any{},
		},
	}
}

func reviewingTools() []proposer.ToolSpec {
	return []proposer.ToolSpec{
		readFileTool(),
		searchTool(),
		{
			Name:        actions.ActionUpdatePlan,
			Description: "Add new plan items needed to fully satisfy the request.",
			Parameters:  map[string]any{"items": map[string]any{"type": "array"}},
			Required:    []string{"items"},
		},
	}
}

func readOnlyTools() []proposer.ToolSpec {
	return []proposer.ToolSpec{readFileTool(), searchTool(), shellTool()}
}

func shellTool() proposer.ToolSpec {
	return proposer.ToolSpec{
		Name:        actions.ActionShell,
		Description: "Run a shell command in the sandbox working directory.",
		Parameters:  map[string]any{"command": map[string]any{"type": "string"}},
		Required:    []string{"command"},
	}
}

func readFileTool() proposer.ToolSpec {
	return proposer.ToolSpec{
		Name:        actions.ActionReadFile,
		Description: "Read a file from the repository.",
		Parameters:  map[string]any{"path": map[string]any{"type": "string"}},
		Required:    []string{"path"},
	}
}

func searchTool() proposer.ToolSpec {
	return proposer.ToolSpec{
		Name:        actions.ActionSearch,
		Description: "Search file contents for a pattern.",
		Parameters: map[string]any{
			"pattern": map[string]any{"type": "string"},
			"path":    map[string]any{"type": "string"},
		},
		Required: []string{"pattern"},
	}
}

func verifyPrompt(item plan.PlanItem, turns []proto.Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Judge whether this plan item has been completed:\n\n  %s\n\nRecent activity:\n", item.Text)
	start := len(turns) - 8
	if start < 0 {
		start = 0
	}
	for i := start; i < len(turns); i++ {
		t := &turns[i]
		if t.IsResult() {
			fmt.Fprintf(&b, "- [%s %s] %s\n", t.ActionName, t.Status, firstLine(t.Content))
		}
	}
	b.WriteString("\nAnswer \"yes: <one-line summary>\" if the item is complete, otherwise \"no: <what is missing>\".")
	return b.String()
}

func diagnosePrompt(turns []proto.Turn) string {
	var b strings.Builder
	b.WriteString("The last several actions failed repeatedly. Analyze the errors below and state the most likely root cause and how to proceed differently.\n\n")
	for i := range turns {
		t := &turns[i]
		if t.IsError() {
			fmt.Fprintf(&b, "[%s] %s\n", t.ActionName, firstLine(t.Content))
		}
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
