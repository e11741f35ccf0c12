package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/envlens/envlens/internal/command"
	"github.com/envlens/envlens/internal/hook"
	"github.com/envlens/envlens/internal/lsp"
	"github.com/envlens/envlens/internal/state"
)

// fakeHost scripts the three startup mechanisms and replays buffer
// events.
type fakeHost struct {
	nativeConn   lsp.Conn
	nativeErr    error
	registryConn lsp.Conn
	registryErr  error

	current   *Buffer
	onOpen    func(Buffer)
	nativeHit bool
	regHit    bool
}

func (h *fakeHost) StartNative(context.Context, lsp.ServerConfig) (lsp.Conn, error) {
	h.nativeHit = true
	return h.nativeConn, h.nativeErr
}

func (h *fakeHost) RegisterServer(context.Context, lsp.ServerConfig) (lsp.Conn, error) {
	h.regHit = true
	return h.registryConn, h.registryErr
}

func (h *fakeHost) OnBufferOpen(fn func(Buffer)) { h.onOpen = fn }

func (h *fakeHost) CurrentBuffer() *Buffer { return h.current }

func (h *fakeHost) openBuffer(buf Buffer) {
	if h.onOpen != nil {
		h.onOpen(buf)
	}
}

func newSetupFixture(t *testing.T) (*stubGateway, *lsp.Registry, *state.Session, *Lifecycle) {
	t.Helper()
	gw := newStubGateway()
	st := state.New()
	hooks := hook.NewRegistry(nil)
	cmds := command.NewService(gw, st, hooks)
	registry := lsp.NewRegistry()
	lc := NewLifecycle(st, cmds, hooks, LifecycleConfig{Root: "/work"}, nil)
	return gw, registry, st, lc
}

func TestSetup_NativeDriver(t *testing.T) {
	gw, registry, st, lc := newSetupFixture(t)
	conn := &stubConn{id: "n1", name: "envlens-ls"}
	host := &fakeHost{nativeConn: conn, current: &Buffer{ID: 1, Path: "/work/main.go"}}

	cfg := SetupConfig{
		Preference:   PreferAuto,
		Capabilities: Capabilities{NativeClient: true, RegistryLib: true},
	}
	driver, err := Setup(context.Background(), cfg, host, registry, st, lc, nil)
	if err != nil {
		t.Fatalf("Setup error = %v", err)
	}
	if driver.Name() != "native" {
		t.Errorf("driver = %s, want native (most capable)", driver.Name())
	}
	if !host.nativeHit || host.regHit {
		t.Error("wrong startup mechanism used")
	}
	if st.SessionID() != "n1" {
		t.Errorf("SessionID() = %q, want n1", st.SessionID())
	}
	// The buffer active at setup time attaches immediately.
	if gw.count(lsp.CmdSetWorkspaceRoot) != 1 {
		t.Error("current buffer was not attached at setup")
	}

	// Later buffer opens attach through the same lifecycle.
	host.openBuffer(Buffer{ID: 2, Path: "/work/api.go"})
	if gw.count(lsp.CmdListVariables) < 2 {
		t.Error("opened buffer did not trigger a count refresh")
	}

	// Special buffers never attach.
	before := gw.count(lsp.CmdListVariables)
	host.openBuffer(Buffer{ID: 3, Path: "", Type: "terminal"})
	if gw.count(lsp.CmdListVariables) != before {
		t.Error("special buffer received an attach attempt")
	}
}

func TestSetup_ForcedStrategyDoesNotFallBack(t *testing.T) {
	_, registry, st, lc := newSetupFixture(t)
	host := &fakeHost{}

	cfg := SetupConfig{
		Preference:   PreferNative,
		Capabilities: Capabilities{RegistryLib: true}, // native missing
	}
	_, err := Setup(context.Background(), cfg, host, registry, st, lc, nil)
	if !errors.Is(err, ErrMissingCapability) {
		t.Fatalf("Setup error = %v, want ErrMissingCapability", err)
	}
	if host.nativeHit || host.regHit {
		t.Error("a startup mechanism ran despite the forced strategy failing")
	}
}

func TestSetup_DoubleInitRefused(t *testing.T) {
	_, registry, st, lc := newSetupFixture(t)
	host := &fakeHost{nativeConn: &stubConn{id: "x", name: "envlens-ls"}}

	cfg := SetupConfig{Preference: PreferAuto, Capabilities: Capabilities{NativeClient: true}}
	if _, err := Setup(context.Background(), cfg, host, registry, st, lc, nil); err != nil {
		t.Fatalf("first Setup error = %v", err)
	}
	if _, err := Setup(context.Background(), cfg, host, registry, st, lc, nil); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("second Setup error = %v, want ErrAlreadyInitialized", err)
	}
}

func TestExternalDriver_LazyDiscovery(t *testing.T) {
	gw, registry, st, lc := newSetupFixture(t)
	host := &fakeHost{}

	cfg := SetupConfig{Preference: PreferExternal}
	if _, err := Setup(context.Background(), cfg, host, registry, st, lc, nil); err != nil {
		t.Fatalf("Setup error = %v", err)
	}

	// No connection yet: buffer opens do nothing.
	host.openBuffer(Buffer{ID: 1, Path: "/work/a.go"})
	if st.IsReady() {
		t.Error("session marked ready without a connection")
	}

	// An externally managed client appears; the next buffer open
	// discovers it and initializes exactly once.
	registry.Add(&stubConn{id: "ext1", name: "envlens"})
	host.openBuffer(Buffer{ID: 2, Path: "/work/b.go"})
	host.openBuffer(Buffer{ID: 3, Path: "/work/c.go"})

	if st.SessionID() != "ext1" {
		t.Errorf("SessionID() = %q, want discovered ext1", st.SessionID())
	}
	if gw.count(lsp.CmdListFiles) != 1 {
		t.Errorf("init priming ran %d times, want once", gw.count(lsp.CmdListFiles))
	}
}
