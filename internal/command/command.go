package command

import (
	"context"
	"encoding/json"
	"io"

	"github.com/charmbracelet/log"

	"github.com/envlens/envlens/internal/hook"
	"github.com/envlens/envlens/internal/lsp"
	"github.com/envlens/envlens/internal/state"
)

// Gateway is the slice of the command gateway this package consumes.
// *lsp.Gateway satisfies it; tests substitute scripted fakes.
type Gateway interface {
	Execute(ctx context.Context, command string, args []any, cb lsp.Callback)
	ExecuteSync(ctx context.Context, command string, args []any) json.RawMessage
	Hover(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position, cb func(markdown string, err error))
}

// NotifyFunc delivers a human-readable message to the host's
// notification surface.
type NotifyFunc func(message string)

// Variable is one resolved environment variable as reported by the
// server. Value may be transformed by hooks (masking); RawValue always
// preserves the server-reported original.
type Variable struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	RawValue string `json:"-"`
	Source   string `json:"source"`
	Type     string `json:"type,omitempty"`
}

// Service is the library of higher-level operations over the command
// gateway. Every operation follows the same shape: build arguments,
// call the gateway, interpret the outcome, update session state only
// on confirmed success, run hooks, then invoke the caller's callback.
type Service struct {
	gw     Gateway
	st     *state.Session
	hooks  *hook.Registry
	logger *log.Logger
	notify NotifyFunc
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotify sets the host notification sink.
func WithNotify(fn NotifyFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.notify = fn
		}
	}
}

// NewService creates the command library over the given gateway,
// session state, and hook registry.
func NewService(gw Gateway, st *state.Session, hooks *hook.Registry, opts ...Option) *Service {
	s := &Service{
		gw:     gw,
		st:     st,
		hooks:  hooks,
		logger: log.New(io.Discard),
		notify: func(string) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State exposes the session store for hosts that render from it.
func (s *Service) State() *state.Session { return s.st }

// Hooks exposes the hook registry for observer registration.
func (s *Service) Hooks() *hook.Registry { return s.hooks }
