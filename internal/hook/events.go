package hook

import (
	"io"

	"github.com/charmbracelet/log"
)

// Event names fired by the session core. Plugins register against
// these to observe or transform what the user sees.
const (
	// EventAttach fires when a buffer attaches to a running server.
	EventAttach = "attach"

	// EventVariables filters the variable list before it reaches the
	// caller. Display values may be transformed; raw values are
	// stamped before the hook runs and survive it.
	EventVariables = "variables"

	// EventVariablePeek filters a single variable before hover-style
	// display.
	EventVariablePeek = "variable_peek"

	// EventActiveFileChanged fires after every set-active-file
	// attempt, successful or not.
	EventActiveFileChanged = "active_file_changed"

	// EventPickerEntry filters one entry before it is shown in a
	// picker listing.
	EventPickerEntry = "picker_entry"

	// EventWorkspaceChanged fires after the workspace root changes on
	// the server.
	EventWorkspaceChanged = "workspace_changed"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}
