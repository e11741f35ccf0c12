package backend

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/envlens/envlens/internal/lsp"
	"github.com/envlens/envlens/internal/state"
)

// ErrAlreadyInitialized indicates Setup was invoked a second time on
// the same session.
var ErrAlreadyInitialized = errors.New("backend already initialized")

// SetupConfig gathers everything needed to bring a backend up.
type SetupConfig struct {
	Preference   Preference
	Capabilities Capabilities
	Server       lsp.ServerConfig
	Lifecycle    LifecycleConfig
}

// Setup resolves the startup strategy and runs the chosen driver. A
// forced strategy whose prerequisite is absent aborts with the
// resolver's configuration error and performs no further action; no
// silent fallback happens when the user forced a strategy. The
// resolver's warning, when present, is surfaced through the logger.
func Setup(ctx context.Context, cfg SetupConfig, host Host, registry *lsp.Registry, st *state.Session, lc *Lifecycle, logger *log.Logger) (Driver, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	if !st.MarkInitialized() {
		return nil, ErrAlreadyInitialized
	}

	res, err := Resolve(cfg.Preference, cfg.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("backend %s: %w", res.Strategy, err)
	}
	if res.Warning != "" {
		logger.Warn(res.Warning)
	}

	driver := driverFor(res.Strategy, driverDeps{host: host, registry: registry, lc: lc})
	if err := driver.Setup(ctx, cfg.Server); err != nil {
		return nil, err
	}
	logger.Info("backend ready", "strategy", res.Strategy)
	return driver, nil
}
