package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/envlens/envlens/internal/hook"
	"github.com/envlens/envlens/internal/lsp"
)

// FilesOptions selects which environment files a list-files request
// covers.
type FilesOptions struct {
	// All requests every env file the server knows about, instead of
	// only the files relevant to the given buffer.
	All bool

	// ActiveOnly restricts the listing to the currently active files.
	ActiveOnly bool
}

// ListFiles requests known environment files. The server answers with
// either a keyed object ({"files": [...]}) or a bare array; both are
// normalized to one []string here.
func (s *Service) ListFiles(ctx context.Context, filePath string, opts FilesOptions, cb func([]string, error)) {
	if cb == nil {
		cb = func([]string, error) {}
	}

	arg := map[string]any{}
	if filePath != "" {
		arg["file"] = filePath
	}
	if opts.All {
		arg["all"] = true
	}
	if opts.ActiveOnly {
		arg["active"] = true
	}
	var args []any
	if len(arg) > 0 {
		args = append(args, arg)
	}

	s.gw.Execute(ctx, lsp.CmdListFiles, args, func(result json.RawMessage, err error) {
		if err != nil {
			cb([]string{}, err)
			return
		}
		files, perr := decodeFileList(result)
		if perr != nil {
			cb([]string{}, perr)
			return
		}
		cb(s.filterPickerEntries(files), nil)
	})
}

// filterPickerEntries runs each file entry through the picker-entry
// filter. An entry filtered to the empty string is dropped from the
// listing.
func (s *Service) filterPickerEntries(files []string) []string {
	if s.hooks.HandlerCount(hook.EventPickerEntry) == 0 {
		return files
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		entry, ok := s.hooks.Filter(hook.EventPickerEntry, f).(string)
		if !ok {
			entry = f
		}
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// ActiveFile is a convenience for the set-active-file two-step
// protocol; see SetActiveFile.
type ActiveFileChange struct {
	// Patterns are the file patterns the caller requested.
	Patterns []string

	// Raw is the untouched server result, nil on transport failure.
	Raw json.RawMessage

	// Success reports whether activation was confirmed.
	Success bool
}

// SetActiveFile requests activation of one or more file patterns. On
// confirmed success the active file list is replaced wholesale and a
// compensating list-variables query refreshes the cached count, since
// activation and count are not atomic server-side. The
// active-file-changed hook fires on success and on failure, with
// enough context for observers to react either way.
func (s *Service) SetActiveFile(ctx context.Context, patterns []string, cb func(ok bool, err error)) {
	if cb == nil {
		cb = func(bool, error) {}
	}

	args := []any{map[string]any{"patterns": patterns}}
	s.gw.Execute(ctx, lsp.CmdSetActiveFile, args, func(result json.RawMessage, err error) {
		change := ActiveFileChange{Patterns: patterns, Raw: result, Success: err == nil}
		s.fireActiveFileChanged(change)

		if err != nil {
			cb(false, err)
			return
		}

		// Prefer the resolved file list the server echoes back;
		// otherwise the requested patterns stand in.
		files := patterns
		if resolved, perr := decodeFileList(result); perr == nil && len(resolved) > 0 {
			files = resolved
		}
		s.st.SetActiveFiles(files)

		s.ListVariables(ctx, "", nil, func([]Variable, error) {
			cb(true, nil)
		})
	})
}

// fireActiveFileChanged notifies observers of an activation attempt.
func (s *Service) fireActiveFileChanged(change ActiveFileChange) {
	s.hooks.Fire(hook.EventActiveFileChanged, change)
}

// decodeFileList normalizes the two accepted file-list response
// shapes into one slice. An empty result decodes to an empty list.
func decodeFileList(result json.RawMessage) ([]string, error) {
	if len(result) == 0 || string(result) == "null" {
		return []string{}, nil
	}

	var bare []string
	if err := json.Unmarshal(result, &bare); err == nil {
		return bare, nil
	}

	var keyed struct {
		Files []string `json:"files"`
	}
	if err := json.Unmarshal(result, &keyed); err != nil {
		return nil, fmt.Errorf("%w: %v", lsp.ErrMalformedResponse, err)
	}
	if keyed.Files == nil {
		keyed.Files = []string{}
	}
	return keyed.Files, nil
}
