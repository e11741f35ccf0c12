package backend

import (
	"context"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/envlens/envlens/internal/command"
	"github.com/envlens/envlens/internal/hook"
	"github.com/envlens/envlens/internal/lsp"
	"github.com/envlens/envlens/internal/state"
)

// Buffer is the host's view of one editor buffer. Type is empty for
// ordinary file buffers; special buffers (terminals, pickers, help)
// carry their kind there.
type Buffer struct {
	ID   int
	Path string
	Type string
}

// Interpolation tri-state carried from configuration into the
// lifecycle priming sequence.
const (
	// InterpolationServer leaves the flag to the server and pulls the
	// current value during priming.
	InterpolationServer = "server"
	InterpolationOn     = "on"
	InterpolationOff    = "off"
)

// AttachEvent is the payload of the attach hook.
type AttachEvent struct {
	Buffer Buffer
	ConnID string
}

// Lifecycle holds the two callbacks every backend driver must invoke
// identically, plus the attach predicate. Factoring them here keeps
// the one-time guards (root sent, double init) in explicit fields
// shared across strategies instead of per-driver copies.
type Lifecycle struct {
	st     *state.Session
	cmds   *command.Service
	hooks  *hook.Registry
	logger *log.Logger

	// Priming configuration.
	defaultSources []string
	interpolation  string
	root           string

	mu       sync.Mutex
	rootSent bool
}

// LifecycleConfig seeds the lifecycle priming behavior.
type LifecycleConfig struct {
	// DefaultSources is the configured source precedence applied
	// silently on first sync.
	DefaultSources []string

	// Interpolation is InterpolationOn, InterpolationOff, or
	// InterpolationServer.
	Interpolation string

	// Root is the workspace root sent once per connection.
	Root string
}

// NewLifecycle wires the shared lifecycle over the command library.
func NewLifecycle(st *state.Session, cmds *command.Service, hooks *hook.Registry, cfg LifecycleConfig, logger *log.Logger) *Lifecycle {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if cfg.Interpolation == "" {
		cfg.Interpolation = InterpolationServer
	}
	return &Lifecycle{
		st:             st,
		cmds:           cmds,
		hooks:          hooks,
		logger:         logger,
		defaultSources: cfg.DefaultSources,
		interpolation:  cfg.Interpolation,
		root:           cfg.Root,
	}
}

// OnInit fires once when the server process becomes reachable, before
// any buffer context exists. It caches the connection identifier and
// schedules the three state-priming queries: active files, the
// configured default source precedence (applied without a change
// notification on first sync), and the interpolation flag, pushed
// from configuration or pulled from the server when unspecified.
func (l *Lifecycle) OnInit(ctx context.Context, conn lsp.Conn) {
	l.st.SetSessionID(conn.ID())
	l.logger.Debug("connection initialized", "id", conn.ID(), "name", conn.Name())

	l.cmds.ListFiles(ctx, "", command.FilesOptions{ActiveOnly: true}, func(files []string, err error) {
		if err == nil {
			l.st.SetActiveFiles(files)
		}
	})

	if len(l.defaultSources) > 0 {
		// nil snapshot: the first sync never produces a notification.
		l.cmds.SetSources(ctx, l.defaultSources, nil, nil)
	} else {
		l.cmds.ListSources(ctx, nil)
	}

	switch l.interpolation {
	case InterpolationOn:
		l.cmds.SetInterpolation(ctx, true, nil)
	case InterpolationOff:
		l.cmds.SetInterpolation(ctx, false, nil)
	default:
		l.cmds.GetInterpolation(ctx, nil)
	}
}

// OnAttach fires once per buffer attachment. It notifies attach
// observers, sends the workspace root exactly once per connection
// lifetime, and schedules a buffer-scoped variable count refresh.
func (l *Lifecycle) OnAttach(ctx context.Context, conn lsp.Conn, buf Buffer) {
	l.hooks.Fire(hook.EventAttach, AttachEvent{Buffer: buf, ConnID: conn.ID()})

	l.mu.Lock()
	sendRoot := !l.rootSent && l.root != ""
	if sendRoot {
		l.rootSent = true
	}
	l.mu.Unlock()

	if sendRoot {
		l.cmds.SetWorkspaceRoot(ctx, l.root, func(err error) {
			if err != nil {
				l.logger.Warn("workspace root rejected", "root", l.root, "err", lsp.ServerMessage(err))
			}
		})
	}

	l.cmds.ListVariables(ctx, buf.Path, nil, nil)
}

// ResetRootGuard clears the once-per-connection root guard. Called on
// teardown so a reconnect sends the root again.
func (l *Lifecycle) ResetRootGuard() {
	l.mu.Lock()
	l.rootSent = false
	l.mu.Unlock()
}

// ShouldAttach reports whether a buffer may receive an attach attempt.
// Special buffers and unnamed buffers never attach, identically across
// every driver's attach-triggering mechanism.
func (l *Lifecycle) ShouldAttach(buf Buffer) bool {
	return buf.Path != "" && buf.Type == ""
}
