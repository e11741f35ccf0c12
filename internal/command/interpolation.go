package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/envlens/envlens/internal/lsp"
)

// interpolationResult is the wire shape of both interpolation
// commands. Enabled is a pointer so a missing boolean is detected as
// a malformed response instead of being coerced to false.
type interpolationResult struct {
	Enabled *bool `json:"enabled"`
}

// GetInterpolation queries the server-side interpolation flag and
// mirrors it into session state. A missing or malformed result is a
// hard failure: state stays untouched and the error names the shape
// problem, so a server bug stays visible instead of being guessed
// into a default.
func (s *Service) GetInterpolation(ctx context.Context, cb func(enabled bool, err error)) {
	if cb == nil {
		cb = func(bool, error) {}
	}
	s.gw.Execute(ctx, lsp.CmdGetInterpolation, nil, func(result json.RawMessage, err error) {
		s.finishInterpolation(result, err, cb)
	})
}

// SetInterpolation toggles the server-side interpolation flag. The
// session mirror is updated only from the confirmed echoed state,
// with the same hard-failure policy as GetInterpolation.
func (s *Service) SetInterpolation(ctx context.Context, enabled bool, cb func(enabled bool, err error)) {
	if cb == nil {
		cb = func(bool, error) {}
	}
	args := []any{map[string]any{"enabled": enabled}}
	s.gw.Execute(ctx, lsp.CmdSetInterpolation, args, func(result json.RawMessage, err error) {
		s.finishInterpolation(result, err, cb)
	})
}

// finishInterpolation applies the shared decode-validate-mirror tail
// of both interpolation operations.
func (s *Service) finishInterpolation(result json.RawMessage, err error, cb func(bool, error)) {
	if err != nil {
		cb(false, err)
		return
	}

	var res interpolationResult
	if len(result) == 0 || json.Unmarshal(result, &res) != nil || res.Enabled == nil {
		cb(false, fmt.Errorf("%w: missing enabled flag in interpolation response", lsp.ErrMalformedResponse))
		return
	}

	s.st.SetInterpolation(*res.Enabled)
	cb(*res.Enabled, nil)
}
