package command

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/envlens/envlens/internal/lsp"
)

// GenerateExample asks the server to render a template env file from
// the currently known variables. Zero represented variables is a
// valid, non-error outcome (the content is then just the header).
func (s *Service) GenerateExample(ctx context.Context, cb func(content string, count int, err error)) {
	if cb == nil {
		cb = func(string, int, error) {}
	}

	s.gw.Execute(ctx, lsp.CmdGenerateExample, nil, func(result json.RawMessage, err error) {
		if err != nil {
			cb("", 0, err)
			return
		}

		var res struct {
			Content *string `json:"content"`
			Count   int     `json:"count"`
		}
		if len(result) == 0 || json.Unmarshal(result, &res) != nil || res.Content == nil {
			cb("", 0, fmt.Errorf("%w: missing content in example response", lsp.ErrMalformedResponse))
			return
		}
		cb(*res.Content, res.Count, nil)
	})
}
