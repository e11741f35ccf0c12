package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/envlens/envlens/internal/lsp"
	"github.com/envlens/envlens/internal/state"
)

// SourceStatus is one named source and its enabled flag as reported
// by the server.
type SourceStatus struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// ListSources requests the authoritative source precedence state. On
// success the session's enabled-source flags are replaced from the
// response; unknown source names in the response are logged and
// skipped, never added.
func (s *Service) ListSources(ctx context.Context, cb func([]SourceStatus, error)) {
	if cb == nil {
		cb = func([]SourceStatus, error) {}
	}

	s.gw.Execute(ctx, lsp.CmdListSources, nil, func(result json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}

		statuses, perr := decodeSourceList(result)
		if perr != nil {
			cb(nil, perr)
			return
		}

		s.st.SetSources(sourcesFromStatuses(statuses, s))
		cb(statuses, nil)
	})
}

// SetSources sets the server-side source precedence to exactly the
// named sources. After confirmed success it re-queries list-sources
// for the authoritative post-change state rather than trusting the
// echoed input, diffs against the caller-supplied previous snapshot to
// produce a human-readable change notification (no snapshot, no
// notification), and then either forces the cached variable count to
// zero when every source ended up disabled, or refreshes the count
// with a compensating list-variables query.
//
// The zero-sources forcing exists because the server has been observed
// returning a stale non-empty variable list with all sources disabled;
// the local correction is silent, not an error.
func (s *Service) SetSources(ctx context.Context, enabled []string, prev *state.Sources, cb func(state.Sources, error)) {
	if cb == nil {
		cb = func(state.Sources, error) {}
	}

	args := []any{map[string]any{"enabled": enabled}}
	s.gw.Execute(ctx, lsp.CmdSetSourcePrecedence, args, func(_ json.RawMessage, err error) {
		if err != nil {
			cb(state.Sources{}, err)
			return
		}

		// Authoritative read-after-write, chained in the callback so
		// arrival order cannot betray us.
		s.ListSources(ctx, func(statuses []SourceStatus, lerr error) {
			if lerr != nil {
				cb(state.Sources{}, lerr)
				return
			}

			current := sourcesFromStatuses(statuses, s)
			if prev != nil {
				if msg := describeSourceChanges(*prev, current); msg != "" {
					s.notify(msg)
				}
			}

			if current.None() {
				s.st.SetVarCount(0)
				cb(current, nil)
				return
			}

			s.ListVariables(ctx, "", nil, func([]Variable, error) {
				cb(current, nil)
			})
		})
	})
}

// sourcesFromStatuses folds the server's status list into the fixed
// three-key record. Unknown names are dropped.
func sourcesFromStatuses(statuses []SourceStatus, s *Service) state.Sources {
	var src state.Sources
	for _, st := range statuses {
		switch st.Name {
		case state.SourceShell:
			src.Shell = st.Enabled
		case state.SourceFile:
			src.File = st.Enabled
		case state.SourceRemote:
			src.Remote = st.Enabled
		default:
			if s != nil {
				s.logger.Warn("server reported unknown source", "name", st.Name)
			}
		}
	}
	return src
}

// describeSourceChanges renders which sources flipped state, e.g.
// "Shell disabled, Remote enabled". Empty when nothing changed.
func describeSourceChanges(prev, current state.Sources) string {
	var parts []string
	add := func(label string, before, after bool) {
		if before == after {
			return
		}
		if after {
			parts = append(parts, label+" enabled")
		} else {
			parts = append(parts, label+" disabled")
		}
	}
	add("Shell", prev.Shell, current.Shell)
	add("File", prev.File, current.File)
	add("Remote", prev.Remote, current.Remote)
	return strings.Join(parts, ", ")
}

// decodeSourceList accepts both a bare status array and a keyed
// object ({"sources": [...]}).
func decodeSourceList(result json.RawMessage) ([]SourceStatus, error) {
	if len(result) == 0 || string(result) == "null" {
		return nil, fmt.Errorf("%w: empty source list response", lsp.ErrMalformedResponse)
	}

	var bare []SourceStatus
	if err := json.Unmarshal(result, &bare); err == nil {
		return bare, nil
	}

	var keyed struct {
		Sources []SourceStatus `json:"sources"`
	}
	if err := json.Unmarshal(result, &keyed); err != nil || keyed.Sources == nil {
		return nil, fmt.Errorf("%w: unrecognized source list shape", lsp.ErrMalformedResponse)
	}
	return keyed.Sources, nil
}
