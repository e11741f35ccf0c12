package command

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/envlens/envlens/internal/hook"
	"github.com/envlens/envlens/internal/lsp"
)

// LessFunc orders two variables for display.
type LessFunc func(a, b Variable) bool

// ListVariables requests the resolvable variable set, optionally
// scoped to one file. On any failure the callback receives an empty
// list and the error, and the cached variable count is left untouched:
// a failed refresh must never destroy the last known good count. On
// success RawValue is stamped from Value before any hook runs, the
// variables-list hook chain transforms the list, the optional less
// function sorts the transformed list, and the cached count is set to
// the pre-hook, pre-sort raw count.
func (s *Service) ListVariables(ctx context.Context, filePath string, less LessFunc, cb func([]Variable, error)) {
	if cb == nil {
		cb = func([]Variable, error) {}
	}

	var args []any
	if filePath != "" {
		args = append(args, map[string]any{"file": filePath})
	}

	s.gw.Execute(ctx, lsp.CmdListVariables, args, func(result json.RawMessage, err error) {
		if err != nil {
			s.logger.Debug("list variables failed", "err", err)
			cb([]Variable{}, err)
			return
		}

		var vars []Variable
		if len(result) > 0 {
			if uerr := json.Unmarshal(result, &vars); uerr != nil {
				cb([]Variable{}, fmt.Errorf("%w: %v", lsp.ErrMalformedResponse, uerr))
				return
			}
		}

		// Stamp the untransformed originals before hooks can touch
		// anything.
		for i := range vars {
			vars[i].RawValue = vars[i].Value
		}
		rawCount := len(vars)

		transformed := s.filterVariables(hook.EventVariables, vars)
		if less != nil {
			sort.SliceStable(transformed, func(i, j int) bool {
				return less(transformed[i], transformed[j])
			})
		}

		s.st.SetVarCount(rawCount)
		cb(transformed, nil)
	})
}

// GetVariable resolves a single variable by name from the full list.
// The callback receives nil without error when the name is unknown.
// The peek hook transforms the variable before it is returned.
func (s *Service) GetVariable(ctx context.Context, name string, cb func(*Variable, error)) {
	if cb == nil {
		cb = func(*Variable, error) {}
	}
	s.ListVariables(ctx, "", nil, func(vars []Variable, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		for i := range vars {
			if vars[i].Name == name {
				v := s.filterVariable(vars[i])
				cb(&v, nil)
				return
			}
		}
		cb(nil, nil)
	})
}

// filterVariables runs a list-shaped filter event, tolerating hooks
// that return the wrong type by keeping the previous value.
func (s *Service) filterVariables(event string, vars []Variable) []Variable {
	out := s.hooks.Filter(event, vars)
	if typed, ok := out.([]Variable); ok {
		return typed
	}
	return vars
}

// filterVariable runs the single-variable peek filter.
func (s *Service) filterVariable(v Variable) Variable {
	out := s.hooks.Filter(hook.EventVariablePeek, v)
	if typed, ok := out.(Variable); ok {
		return typed
	}
	return v
}
