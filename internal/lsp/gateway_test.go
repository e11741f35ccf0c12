package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/envlens/envlens/internal/state"
)

// fakeConn is a scriptable in-process connection.
type fakeConn struct {
	mu    sync.Mutex
	id    string
	name  string
	alive bool

	executed []string
	result   json.RawMessage
	err      error
	hoverMD  string
	hoverErr error
}

func (f *fakeConn) ID() string   { return f.id }
func (f *fakeConn) Name() string { return f.name }
func (f *fakeConn) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeConn) Execute(_ context.Context, command string, _ []any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, command)
	return f.result, f.err
}

func (f *fakeConn) Hover(context.Context, DocumentURI, Position) (string, error) {
	return f.hoverMD, f.hoverErr
}

func waitCallback(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestGateway_ExecuteNoConnection(t *testing.T) {
	g := NewGateway(NewRegistry(), state.New(), nil)

	done := make(chan struct{})
	g.Execute(context.Background(), CmdListVariables, nil, func(result json.RawMessage, err error) {
		if result != nil {
			t.Errorf("result = %s, want nil", result)
		}
		if !errors.Is(err, ErrNotRunning) {
			t.Errorf("err = %v, want ErrNotRunning", err)
		}
		if err.Error() != "not running" {
			t.Errorf("err text = %q, want %q", err.Error(), "not running")
		}
		close(done)
	})
	waitCallback(t, done)
}

func TestGateway_ExecuteResolvesByCachedID(t *testing.T) {
	reg := NewRegistry()
	st := state.New()
	conn := &fakeConn{id: "c1", name: "envlens-ls", alive: true, result: json.RawMessage(`[]`)}
	reg.Add(conn)
	st.SetSessionID("c1")

	g := NewGateway(reg, st, nil)
	done := make(chan struct{})
	g.Execute(context.Background(), CmdListFiles, nil, func(result json.RawMessage, err error) {
		if err != nil {
			t.Errorf("err = %v", err)
		}
		close(done)
	})
	waitCallback(t, done)

	if len(conn.executed) != 1 || conn.executed[0] != CmdListFiles {
		t.Errorf("executed = %v, want [%s]", conn.executed, CmdListFiles)
	}
}

func TestGateway_StaleIDFallsBackToNameDiscovery(t *testing.T) {
	reg := NewRegistry()
	st := state.New()
	st.SetSessionID("gone")
	conn := &fakeConn{id: "c2", name: "envlens_ls", alive: true, result: json.RawMessage(`{}`)}
	reg.Add(conn)

	g := NewGateway(reg, st, nil)
	done := make(chan struct{})
	g.Execute(context.Background(), CmdListSources, nil, func(_ json.RawMessage, err error) {
		if err != nil {
			t.Errorf("err = %v", err)
		}
		close(done)
	})
	waitCallback(t, done)

	// Discovery re-caches the id.
	if got := st.SessionID(); got != "c2" {
		t.Errorf("SessionID() = %q after discovery, want c2", got)
	}
}

func TestGateway_DeadConnectionIgnored(t *testing.T) {
	reg := NewRegistry()
	st := state.New()
	conn := &fakeConn{id: "c3", name: "envlens-ls", alive: false}
	reg.Add(conn)
	st.SetSessionID("c3")

	g := NewGateway(reg, st, nil)
	done := make(chan struct{})
	g.Execute(context.Background(), CmdListVariables, nil, func(_ json.RawMessage, err error) {
		if !errors.Is(err, ErrNotRunning) {
			t.Errorf("err = %v, want ErrNotRunning", err)
		}
		close(done)
	})
	waitCallback(t, done)
}

func TestGateway_ShutdownShortCircuits(t *testing.T) {
	reg := NewRegistry()
	st := state.New()
	conn := &fakeConn{id: "c4", name: "envlens-ls", alive: true, result: json.RawMessage(`[]`)}
	reg.Add(conn)
	st.SetSessionID("c4")

	g := NewGateway(reg, st, nil)
	g.BeginShutdown()

	done := make(chan struct{})
	g.Execute(context.Background(), CmdListVariables, nil, func(_ json.RawMessage, err error) {
		if !errors.Is(err, ErrNotRunning) {
			t.Errorf("err = %v, want ErrNotRunning", err)
		}
		close(done)
	})
	waitCallback(t, done)

	if len(conn.executed) != 0 {
		t.Errorf("executed = %v during shutdown, want no requests", conn.executed)
	}
	if got := g.ExecuteSync(context.Background(), CmdListFiles, nil); got != nil {
		t.Errorf("ExecuteSync() = %s during shutdown, want nil", got)
	}
}

func TestGateway_ExecuteSyncErrorCollapsesToNil(t *testing.T) {
	reg := NewRegistry()
	st := state.New()
	conn := &fakeConn{id: "c5", name: "envlens-ls", alive: true, err: &RPCError{Code: CodeInternalError, Message: "boom"}}
	reg.Add(conn)
	st.SetSessionID("c5")

	g := NewGateway(reg, st, nil)
	if got := g.ExecuteSync(context.Background(), CmdListVariables, nil); got != nil {
		t.Errorf("ExecuteSync() = %s on server error, want nil", got)
	}
}

func TestRegistry_ByNamePreferenceOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Add(&fakeConn{id: "a", name: "envlens", alive: true})
	reg.Add(&fakeConn{id: "b", name: "envlens-ls", alive: true})

	conn := reg.ByName(AcceptedNames)
	if conn == nil || conn.Name() != "envlens-ls" {
		t.Errorf("ByName() = %v, want the envlens-ls connection", conn)
	}
}
