package backend

import (
	"context"
	"fmt"

	"github.com/envlens/envlens/internal/lsp"
)

// Host is the editor surface a driver talks to. The three startup
// mechanisms differ, but all of them deliver connections and buffer
// events through this interface.
type Host interface {
	// StartNative starts the server through the host's built-in
	// client API and returns the live connection.
	StartNative(ctx context.Context, cfg lsp.ServerConfig) (lsp.Conn, error)

	// RegisterServer starts the server through the external
	// registration library.
	RegisterServer(ctx context.Context, cfg lsp.ServerConfig) (lsp.Conn, error)

	// OnBufferOpen registers a callback fired for every buffer the
	// host opens from now on.
	OnBufferOpen(fn func(Buffer))

	// CurrentBuffer returns the buffer active at setup time, or nil.
	CurrentBuffer() *Buffer
}

// Driver is one interchangeable startup strategy. Setup starts (or
// discovers) the server connection and wires the shared lifecycle to
// buffer events; the lifecycle behavior itself is identical across
// drivers.
type Driver interface {
	Name() string
	Available(caps Capabilities) bool
	Setup(ctx context.Context, cfg lsp.ServerConfig) error
}

// driverFor maps a resolved strategy to its driver.
func driverFor(strategy Strategy, deps driverDeps) Driver {
	switch strategy {
	case StrategyNative:
		return &nativeDriver{deps}
	case StrategyRegistry:
		return &registryDriver{deps}
	default:
		return &externalDriver{deps}
	}
}

// driverDeps are the collaborators every driver shares.
type driverDeps struct {
	host     Host
	registry *lsp.Registry
	lc       *Lifecycle
}

// wireAttach connects the lifecycle to the host's buffer events and
// immediately checks the buffer already active at setup time. Every
// driver calls this with its freshly established connection so attach
// behavior cannot drift between strategies.
func (d driverDeps) wireAttach(ctx context.Context, conn lsp.Conn) {
	d.host.OnBufferOpen(func(buf Buffer) {
		if d.lc.ShouldAttach(buf) {
			d.lc.OnAttach(ctx, conn, buf)
		}
	})
	if buf := d.host.CurrentBuffer(); buf != nil && d.lc.ShouldAttach(*buf) {
		d.lc.OnAttach(ctx, conn, *buf)
	}
}

// nativeDriver starts the server through the host's built-in client.
type nativeDriver struct {
	driverDeps
}

func (d *nativeDriver) Name() string { return "native" }

func (d *nativeDriver) Available(caps Capabilities) bool { return caps.NativeClient }

func (d *nativeDriver) Setup(ctx context.Context, cfg lsp.ServerConfig) error {
	conn, err := d.host.StartNative(ctx, cfg)
	if err != nil {
		return fmt.Errorf("native startup: %w", err)
	}
	d.registry.Add(conn)
	d.lc.OnInit(ctx, conn)
	d.wireAttach(ctx, conn)
	return nil
}

// registryDriver starts the server through the external registration
// library.
type registryDriver struct {
	driverDeps
}

func (d *registryDriver) Name() string { return "registry" }

func (d *registryDriver) Available(caps Capabilities) bool { return caps.RegistryLib }

func (d *registryDriver) Setup(ctx context.Context, cfg lsp.ServerConfig) error {
	conn, err := d.host.RegisterServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("registry startup: %w", err)
	}
	d.registry.Add(conn)
	d.lc.OnInit(ctx, conn)
	d.wireAttach(ctx, conn)
	return nil
}

// externalDriver never starts anything: some other plugin manages the
// server process. It discovers the connection by accepted client name
// (honoring a configured override) and attaches lazily as buffers
// open, initializing once on first discovery.
type externalDriver struct {
	driverDeps
}

func (d *externalDriver) Name() string { return "external" }

func (d *externalDriver) Available(Capabilities) bool { return true }

func (d *externalDriver) Setup(ctx context.Context, cfg lsp.ServerConfig) error {
	names := lsp.AcceptedNames
	if cfg.ClientName != "" {
		names = append([]string{cfg.ClientName}, names...)
	}

	var initialized bool
	discover := func() lsp.Conn {
		conn := d.registry.ByName(names)
		if conn != nil && !initialized {
			initialized = true
			d.lc.OnInit(ctx, conn)
		}
		return conn
	}

	d.host.OnBufferOpen(func(buf Buffer) {
		conn := discover()
		if conn != nil && d.lc.ShouldAttach(buf) {
			d.lc.OnAttach(ctx, conn, buf)
		}
	})

	if conn := discover(); conn != nil {
		if buf := d.host.CurrentBuffer(); buf != nil && d.lc.ShouldAttach(*buf) {
			d.lc.OnAttach(ctx, conn, *buf)
		}
	}
	return nil
}
