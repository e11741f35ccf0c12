package command

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/envlens/envlens/internal/hook"
	"github.com/envlens/envlens/internal/lsp"
	"github.com/envlens/envlens/internal/state"
)

// reply is one scripted gateway outcome.
type reply struct {
	result json.RawMessage
	err    error
}

// fakeGateway replays scripted replies per command, in order. A
// command with no scripted reply answers ErrNotRunning, matching the
// real gateway's no-connection outcome. Callbacks run synchronously,
// which keeps the chained read-after-write protocols deterministic
// under test.
type fakeGateway struct {
	mu      sync.Mutex
	replies map[string][]reply
	calls   []string
	args    map[string][][]any

	hoverMD  string
	hoverErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		replies: make(map[string][]reply),
		args:    make(map[string][][]any),
	}
}

func (f *fakeGateway) script(command string, result string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var raw json.RawMessage
	if result != "" {
		raw = json.RawMessage(result)
	}
	f.replies[command] = append(f.replies[command], reply{result: raw, err: err})
}

func (f *fakeGateway) pop(command string, args []any) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, command)
	f.args[command] = append(f.args[command], args)
	queue := f.replies[command]
	if len(queue) == 0 {
		return nil, lsp.ErrNotRunning
	}
	r := queue[0]
	f.replies[command] = queue[1:]
	return r.result, r.err
}

func (f *fakeGateway) callCount(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == command {
			n++
		}
	}
	return n
}

func (f *fakeGateway) Execute(_ context.Context, command string, args []any, cb lsp.Callback) {
	result, err := f.pop(command, args)
	cb(result, err)
}

func (f *fakeGateway) ExecuteSync(_ context.Context, command string, args []any) json.RawMessage {
	result, err := f.pop(command, args)
	if err != nil {
		return nil
	}
	return result
}

func (f *fakeGateway) Hover(_ context.Context, _ lsp.DocumentURI, _ lsp.Position, cb func(string, error)) {
	cb(f.hoverMD, f.hoverErr)
}

// newTestService wires a service over a fresh fake gateway.
func newTestService(t *testing.T, opts ...Option) (*Service, *fakeGateway, *state.Session, *hook.Registry) {
	t.Helper()
	gw := newFakeGateway()
	st := state.New()
	hooks := hook.NewRegistry(nil)
	svc := NewService(gw, st, hooks, opts...)
	return svc, gw, st, hooks
}
