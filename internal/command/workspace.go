package command

import (
	"context"
	"encoding/json"

	"github.com/envlens/envlens/internal/hook"
	"github.com/envlens/envlens/internal/lsp"
)

// ListWorkspaces requests the workspace roots the server knows about.
func (s *Service) ListWorkspaces(ctx context.Context, cb func([]string, error)) {
	if cb == nil {
		cb = func([]string, error) {}
	}
	s.gw.Execute(ctx, lsp.CmdListWorkspaces, nil, func(result json.RawMessage, err error) {
		if err != nil {
			cb([]string{}, err)
			return
		}
		roots, perr := decodeFileList(result)
		if perr != nil {
			cb([]string{}, perr)
			return
		}
		cb(roots, nil)
	})
}

// SetWorkspaceRoot points the server at a workspace root. On
// confirmed success the workspace-changed event fires for observers
// (statusline, pickers).
func (s *Service) SetWorkspaceRoot(ctx context.Context, root string, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}

	args := []any{map[string]any{"root": root}}
	s.gw.Execute(ctx, lsp.CmdSetWorkspaceRoot, args, func(_ json.RawMessage, err error) {
		if err == nil {
			s.hooks.Fire(hook.EventWorkspaceChanged, root)
		}
		cb(err)
	})
}
