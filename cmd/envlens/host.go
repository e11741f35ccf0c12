package main

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/envlens/envlens/internal/backend"
	"github.com/envlens/envlens/internal/lsp"
)

// headlessHost adapts the CLI to the backend host surface. Both
// startup mechanisms spawn the server process directly; there is no
// registration library outside an editor. Buffer events are synthetic:
// the file named on the command line becomes the one open buffer.
type headlessHost struct {
	logger *log.Logger

	mu      sync.Mutex
	current *backend.Buffer
	onOpen  func(backend.Buffer)
	servers []*lsp.Server
}

func newHeadlessHost(logger *log.Logger) *headlessHost {
	return &headlessHost{logger: logger}
}

func (h *headlessHost) StartNative(ctx context.Context, cfg lsp.ServerConfig) (lsp.Conn, error) {
	srv := lsp.NewServer(cfg, h.logger)
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.servers = append(h.servers, srv)
	h.mu.Unlock()
	return srv, nil
}

func (h *headlessHost) RegisterServer(ctx context.Context, cfg lsp.ServerConfig) (lsp.Conn, error) {
	return h.StartNative(ctx, cfg)
}

func (h *headlessHost) OnBufferOpen(fn func(backend.Buffer)) {
	h.mu.Lock()
	h.onOpen = fn
	h.mu.Unlock()
}

func (h *headlessHost) CurrentBuffer() *backend.Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// openFile makes path the current buffer and replays it through the
// attach callback.
func (h *headlessHost) openFile(path string) {
	h.mu.Lock()
	buf := backend.Buffer{ID: 1, Path: path}
	h.current = &buf
	fn := h.onOpen
	h.mu.Unlock()

	if fn != nil {
		fn(buf)
	}
}

// shutdown stops every server this host started.
func (h *headlessHost) shutdown(ctx context.Context) {
	h.mu.Lock()
	servers := h.servers
	h.servers = nil
	h.mu.Unlock()

	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			h.logger.Warn("server shutdown", "error", err)
		}
	}
}
