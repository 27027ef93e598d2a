// Package actions maps proposed action names to executable handlers.
package actions

// Action name constants - use these instead of magic strings to prevent
// typos and enable compile-time checking.
const (
	// Executable actions.
	ActionShell       = "shell"
	ActionReadFile    = "read_file"
	ActionEditFile    = "edit_file"
	ActionSearch      = "search"
	ActionFetchURL    = "fetch_url"
	ActionInstallDeps = "install_dependencies"

	// Control actions - routed by the engine, never executed in the
	// sandbox.
	ActionUpdatePlan   = "update_plan"
	ActionCompleteItem = "complete_item"
	ActionDiagnose     = "diagnose"
	ActionDone         = "done"
)

// SideEffecting names the actions whose execution mutates state outside a
// pure read; these pass through the safety filter before running.
//
//nolint:gochecknoglobals // shared name sets
var SideEffecting = map[string]bool{
	ActionShell:       true,
	ActionEditFile:    true,
	ActionFetchURL:    true,
	ActionSearch:      true,
	ActionInstallDeps: true,
}

// ReadOnly names actions that never mutate the working tree.
//
//nolint:gochecknoglobals // shared name sets
var ReadOnly = map[string]bool{
	ActionReadFile: true,
}

// IsControl reports whether the name is an engine-routed control action.
func IsControl(name string) bool {
	switch name {
	case ActionUpdatePlan, ActionCompleteItem, ActionDiagnose, ActionDone:
		return true
	}
	return false
}
