package command

import (
	"context"
	"regexp"
	"strings"

	"github.com/envlens/envlens/internal/lsp"
)

// VariableAtCursor resolves the variable under the cursor by issuing
// a hover request and parsing the markdown payload. The callback
// receives nil without error when the payload carries no variable
// name at all. The peek hook transforms the variable before return.
func (s *Service) VariableAtCursor(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position, cb func(*Variable, error)) {
	if cb == nil {
		cb = func(*Variable, error) {}
	}

	s.gw.Hover(ctx, uri, pos, func(markdown string, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		v := ParseHover(markdown)
		if v == nil {
			cb(nil, nil)
			return
		}
		out := s.filterVariable(*v)
		cb(&out, nil)
	})
}

var (
	hoverNameRe = regexp.MustCompile(`\*\*([A-Za-z_][A-Za-z0-9_]*)\*\*`)
	// Labeled fields come in two equivalent renderings:
	//   **Value:** `x`     (bold label)
	//   Value: x           (plain label)
	hoverFieldRe = regexp.MustCompile(`^(?:\*\*)?(Value|Source|Type):(?:\*\*)?\s*(.*)$`)
)

// ParseHover extracts a variable from the server's hover markdown.
// The grammar is deliberately small: an optional bolded name token on
// its own line, then optional Value:/Source:/Type: labeled fields in
// either the bold-label or plain-label rendering. Unparseable input
// never panics; missing name means nil.
func ParseHover(markdown string) *Variable {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}

	var v Variable
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if line == "" {
			continue
		}

		if m := hoverFieldRe.FindStringSubmatch(line); m != nil {
			value := strings.TrimSpace(strings.Trim(strings.TrimSpace(m[2]), "`"))
			switch m[1] {
			case "Value":
				v.Value = value
				v.RawValue = value
			case "Source":
				v.Source = value
			case "Type":
				v.Type = value
			}
			continue
		}

		if v.Name == "" {
			if m := hoverNameRe.FindStringSubmatch(line); m != nil {
				v.Name = m[1]
			}
		}
	}

	if v.Name == "" {
		return nil
	}
	return &v
}
