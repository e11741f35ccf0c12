package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/envlens/envlens/internal/lsp"
)

// ErrAuthAborted indicates a remote auth step was attempted after an
// earlier step in the same session failed. Once a step fails, the
// remaining steps are refused without touching the wire.
var ErrAuthAborted = errors.New("remote auth flow aborted")

// ErrAuthSequence indicates a step was attempted out of order.
var ErrAuthSequence = errors.New("remote auth step out of order")

// Provider describes one remote secret provider the server supports.
type Provider struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// AuthField is one credential the provider requires. A field naming an
// environment variable may be satisfied from the process environment
// or a credentials file instead of an interactive prompt.
type AuthField struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt,omitempty"`
	Env    string `json:"env,omitempty"`
	Secret bool   `json:"secret,omitempty"`
}

// ScopeLevel is one hierarchical step of provider scope selection,
// with the options valid given all prior selections.
type ScopeLevel struct {
	Name    string   `json:"level"`
	Options []string `json:"options"`
}

// AuthState enumerates the linear per-session authentication states.
type AuthState int

const (
	AuthStateUnauthenticated AuthState = iota
	AuthStateFieldsCollected
	AuthStateAuthenticated
	AuthStateScopeSelection
	AuthStateCommitted
	AuthStateFailed
)

// String returns a human-readable state name.
func (s AuthState) String() string {
	switch s {
	case AuthStateUnauthenticated:
		return "unauthenticated"
	case AuthStateFieldsCollected:
		return "fields collected"
	case AuthStateAuthenticated:
		return "authenticated"
	case AuthStateScopeSelection:
		return "selecting scope"
	case AuthStateCommitted:
		return "committed"
	case AuthStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PromptFunc collects one credential interactively.
type PromptFunc func(field AuthField) (string, error)

// AuthSession drives one remote-provider authentication flow as an
// explicit state machine: Unauthenticated -> FieldsCollected ->
// Authenticated -> scope levels -> Committed. Every transition is a
// server round-trip; any failure moves the session to Failed and the
// server's message is surfaced verbatim.
type AuthSession struct {
	svc      *Service
	id       string
	provider string

	mu         sync.Mutex
	state      AuthState
	fields     map[string]string
	selections map[string]string
	lastErr    error
}

// RemoteProviders lists the available remote secret providers.
func (s *Service) RemoteProviders(ctx context.Context, cb func([]Provider, error)) {
	if cb == nil {
		cb = func([]Provider, error) {}
	}
	s.gw.Execute(ctx, lsp.CmdRemoteList, nil, func(result json.RawMessage, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		var providers []Provider
		if len(result) > 0 {
			if uerr := json.Unmarshal(result, &providers); uerr != nil {
				cb(nil, fmt.Errorf("%w: %v", lsp.ErrMalformedResponse, uerr))
				return
			}
		}
		cb(providers, nil)
	})
}

// BeginAuth opens a new authentication session against a provider.
func (s *Service) BeginAuth(provider string) *AuthSession {
	return &AuthSession{
		svc:        s,
		id:         uuid.NewString(),
		provider:   provider,
		state:      AuthStateUnauthenticated,
		fields:     make(map[string]string),
		selections: make(map[string]string),
	}
}

// ID returns the session identifier sent with every step.
func (a *AuthSession) ID() string { return a.id }

// Provider returns the provider this session targets.
func (a *AuthSession) Provider() string { return a.provider }

// State returns the current machine state.
func (a *AuthSession) State() AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the error that failed the session, if any.
func (a *AuthSession) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// guard checks the session may run a step requiring the given state.
func (a *AuthSession) guard(want AuthState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == AuthStateFailed {
		return fmt.Errorf("%w: %v", ErrAuthAborted, a.lastErr)
	}
	if a.state != want {
		return fmt.Errorf("%w: in state %q", ErrAuthSequence, a.state)
	}
	return nil
}

// fail records a step failure and aborts the remaining steps.
func (a *AuthSession) fail(err error) {
	a.mu.Lock()
	a.state = AuthStateFailed
	a.lastErr = err
	a.mu.Unlock()
	a.svc.logger.Warn("remote auth failed", "provider", a.provider, "err", lsp.ServerMessage(err))
}

// transition moves the machine forward.
func (a *AuthSession) transition(next AuthState) {
	a.mu.Lock()
	a.state = next
	a.mu.Unlock()
}

// FetchFields asks the server which credential fields the provider
// requires. Valid only in the unauthenticated state.
func (a *AuthSession) FetchFields(ctx context.Context, cb func([]AuthField, error)) {
	if cb == nil {
		cb = func([]AuthField, error) {}
	}
	if err := a.guard(AuthStateUnauthenticated); err != nil {
		cb(nil, err)
		return
	}

	args := []any{map[string]any{"session": a.id, "provider": a.provider}}
	a.svc.gw.Execute(ctx, lsp.CmdRemoteAuthFields, args, func(result json.RawMessage, err error) {
		if err != nil {
			a.fail(err)
			cb(nil, err)
			return
		}
		var fields []AuthField
		if len(result) > 0 {
			if uerr := json.Unmarshal(result, &fields); uerr != nil {
				perr := fmt.Errorf("%w: %v", lsp.ErrMalformedResponse, uerr)
				a.fail(perr)
				cb(nil, perr)
				return
			}
		}
		cb(fields, nil)
	})
}

// ResolveFields fills in credential values: an environment variable
// when the field names one (checked in the process environment, then
// in the optional credentials file), otherwise the prompt function.
// Completing all fields moves the session to FieldsCollected.
func (a *AuthSession) ResolveFields(fields []AuthField, prompt PromptFunc, credFile string) error {
	if err := a.guard(AuthStateUnauthenticated); err != nil {
		return err
	}

	var fileVars map[string]string
	if credFile != "" {
		vars, err := godotenv.Read(credFile)
		if err != nil {
			a.svc.logger.Debug("credentials file unreadable", "path", credFile, "err", err)
		} else {
			fileVars = vars
		}
	}

	for _, field := range fields {
		value, ok := resolveFieldValue(field, fileVars)
		if !ok {
			if prompt == nil {
				err := fmt.Errorf("no value for required field %q", field.Name)
				a.fail(err)
				return err
			}
			v, err := prompt(field)
			if err != nil {
				a.fail(err)
				return err
			}
			value = v
		}
		a.mu.Lock()
		a.fields[field.Name] = value
		a.mu.Unlock()
	}

	a.transition(AuthStateFieldsCollected)
	return nil
}

// resolveFieldValue checks the process environment, then the
// credentials file.
func resolveFieldValue(field AuthField, fileVars map[string]string) (string, bool) {
	if field.Env == "" {
		return "", false
	}
	if v, ok := os.LookupEnv(field.Env); ok {
		return v, true
	}
	if v, ok := fileVars[field.Env]; ok {
		return v, true
	}
	return "", false
}

// Authenticate submits the collected credentials. On success the
// session advances to Authenticated (or straight to scope selection
// when the server reports required levels).
func (a *AuthSession) Authenticate(ctx context.Context, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}
	if err := a.guard(AuthStateFieldsCollected); err != nil {
		cb(err)
		return
	}

	a.mu.Lock()
	creds := make(map[string]string, len(a.fields))
	for k, v := range a.fields {
		creds[k] = v
	}
	a.mu.Unlock()

	args := []any{map[string]any{"session": a.id, "provider": a.provider, "fields": creds}}
	a.svc.gw.Execute(ctx, lsp.CmdRemoteAuthenticate, args, func(_ json.RawMessage, err error) {
		if err != nil {
			a.fail(err)
			cb(err)
			return
		}
		a.transition(AuthStateAuthenticated)
		cb(nil)
	})
}

// NavigateScope asks the server for the next required scope level and
// its valid options given all prior selections. A nil level without
// error means every level has been selected and the session is
// committed; secrets can then be fetched with CommitAndRefresh.
func (a *AuthSession) NavigateScope(ctx context.Context, cb func(*ScopeLevel, error)) {
	if cb == nil {
		cb = func(*ScopeLevel, error) {}
	}
	st := a.State()
	if st != AuthStateAuthenticated && st != AuthStateScopeSelection {
		if err := a.guard(AuthStateAuthenticated); err != nil {
			cb(nil, err)
			return
		}
	}

	args := []any{map[string]any{"session": a.id, "provider": a.provider}}
	a.svc.gw.Execute(ctx, lsp.CmdRemoteNavigateScope, args, func(result json.RawMessage, err error) {
		if err != nil {
			a.fail(err)
			cb(nil, err)
			return
		}

		var res struct {
			Complete bool     `json:"complete"`
			Level    string   `json:"level"`
			Options  []string `json:"options"`
		}
		if len(result) == 0 || json.Unmarshal(result, &res) != nil {
			perr := fmt.Errorf("%w: unrecognized scope navigation response", lsp.ErrMalformedResponse)
			a.fail(perr)
			cb(nil, perr)
			return
		}

		if res.Complete {
			a.transition(AuthStateCommitted)
			cb(nil, nil)
			return
		}

		a.transition(AuthStateScopeSelection)
		cb(&ScopeLevel{Name: res.Level, Options: res.Options}, nil)
	})
}

// SelectScope commits one scope level selection.
func (a *AuthSession) SelectScope(ctx context.Context, level, value string, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}
	if err := a.guard(AuthStateScopeSelection); err != nil {
		cb(err)
		return
	}

	args := []any{map[string]any{"session": a.id, "provider": a.provider, "level": level, "value": value}}
	a.svc.gw.Execute(ctx, lsp.CmdRemoteSelectScope, args, func(_ json.RawMessage, err error) {
		if err != nil {
			a.fail(err)
			cb(err)
			return
		}
		a.mu.Lock()
		a.selections[level] = value
		a.mu.Unlock()
		cb(nil)
	})
}

// CommitAndRefresh fetches secrets for the fully scoped session and
// refreshes the cached variable count with a compensating
// list-variables query. Valid only once every scope level is selected.
func (a *AuthSession) CommitAndRefresh(ctx context.Context, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}
	if err := a.guard(AuthStateCommitted); err != nil {
		cb(err)
		return
	}

	args := []any{map[string]any{"session": a.id, "provider": a.provider}}
	a.svc.gw.Execute(ctx, lsp.CmdRemoteRefresh, args, func(_ json.RawMessage, err error) {
		if err != nil {
			a.fail(err)
			cb(err)
			return
		}
		a.svc.ListVariables(ctx, "", nil, func([]Variable, error) {
			cb(nil)
		})
	})
}

// RemoteShutdown asks the server to drop all provider connections and
// forget fetched secrets.
func (s *Service) RemoteShutdown(ctx context.Context, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}
	s.gw.Execute(ctx, lsp.CmdRemoteShutdown, nil, func(_ json.RawMessage, err error) {
		cb(err)
	})
}
