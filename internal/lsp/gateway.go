package lsp

import (
	"context"
	"encoding/json"
	"io"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/envlens/envlens/internal/state"
)

// SyncTimeout bounds the synchronous execute path. On expiry the
// caller receives nil, indistinguishable from an empty success; see
// the package documentation for why that limitation is preserved.
const SyncTimeout = 5 * time.Second

// Callback receives the outcome of an asynchronous command. Exactly
// one of result/err is meaningful; err is nil on success. Callbacks
// run on the goroutine the transport completes on.
type Callback func(result json.RawMessage, err error)

// Gateway wraps the generic execute-remote-command primitive. It
// resolves the live connection through the cached session id, falling
// back to discovery by accepted client names, and produces a uniform
// (result, error) outcome for both synchronous and asynchronous
// callers. It never panics and never raises across its boundary.
type Gateway struct {
	registry *Registry
	session  *state.Session
	logger   *log.Logger

	shuttingDown atomic.Bool
}

// NewGateway creates a gateway over the given connection registry and
// session state.
func NewGateway(registry *Registry, session *state.Session, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Gateway{registry: registry, session: session, logger: logger}
}

// BeginShutdown puts the gateway into teardown mode: every subsequent
// call short-circuits to the "no result" outcome without touching the
// wire, so host shutdown cannot hang on requests that will never
// complete.
func (g *Gateway) BeginShutdown() {
	g.shuttingDown.Store(true)
}

// Resolve returns the current live connection or nil. Resolution order:
// cached session id first; if stale or missing, discovery by accepted
// names. A discovery hit re-caches the id.
func (g *Gateway) Resolve() Conn {
	if conn := g.registry.ByID(g.session.SessionID()); conn != nil {
		return conn
	}
	conn := g.registry.ByName(AcceptedNames)
	if conn != nil {
		g.session.SetSessionID(conn.ID())
	}
	return conn
}

// Execute runs a named command asynchronously. The callback is invoked
// exactly once. With no live connection (or during shutdown) it
// receives (nil, ErrNotRunning) without any request being issued.
// No retries happen at this layer.
func (g *Gateway) Execute(ctx context.Context, command string, args []any, cb Callback) {
	if cb == nil {
		cb = func(json.RawMessage, error) {}
	}
	if g.shuttingDown.Load() {
		cb(nil, ErrNotRunning)
		return
	}
	conn := g.Resolve()
	if conn == nil {
		cb(nil, ErrNotRunning)
		return
	}

	go func() {
		result, err := conn.Execute(ctx, command, args)
		if err != nil {
			g.logger.Debug("command failed", "command", command, "err", err)
		}
		cb(result, err)
	}()
}

// ExecuteSync runs a named command with a fixed timeout and returns
// the raw result, or nil on any failure. Timeout, transport error, and
// genuinely empty success all collapse to nil here; callers must treat
// nil as "unknown", not "empty". Must not be called from a transport
// callback, which would self-deadlock the completion goroutine.
func (g *Gateway) ExecuteSync(ctx context.Context, command string, args []any) json.RawMessage {
	if g.shuttingDown.Load() {
		return nil
	}
	conn := g.Resolve()
	if conn == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, SyncTimeout)
	defer cancel()

	result, err := conn.Execute(ctx, command, args)
	if err != nil {
		g.logger.Debug("sync command failed", "command", command, "err", err)
		return nil
	}
	return result
}

// Hover issues a hover request asynchronously and delivers the
// markdown payload.
func (g *Gateway) Hover(ctx context.Context, uri DocumentURI, pos Position, cb func(markdown string, err error)) {
	if cb == nil {
		cb = func(string, error) {}
	}
	if g.shuttingDown.Load() {
		cb("", ErrNotRunning)
		return
	}
	conn := g.Resolve()
	if conn == nil {
		cb("", ErrNotRunning)
		return
	}

	go func() {
		md, err := conn.Hover(ctx, uri, pos)
		cb(md, err)
	}()
}
