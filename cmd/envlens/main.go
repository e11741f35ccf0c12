// Package main is the envlens headless host: it brings up an
// envlens-ls session without an editor and exposes the session
// operations as one-shot commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/envlens/envlens/internal/backend"
	"github.com/envlens/envlens/internal/command"
	"github.com/envlens/envlens/internal/config"
	"github.com/envlens/envlens/internal/hook"
	"github.com/envlens/envlens/internal/lsp"
	luaplugin "github.com/envlens/envlens/internal/plugin/lua"
	"github.com/envlens/envlens/internal/state"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

type cliOptions struct {
	configPath string
	file       string
	timeout    time.Duration
	overrides  func(*config.Options)
}

func run() int {
	opts, args := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	opts.overrides(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           parseLogLevel(cfg.LogLevel),
		ReportTimestamp: true,
		Prefix:          "envlens",
	})

	app, err := buildApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer app.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()

	if err := app.start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if opts.file != "" {
		app.host.openFile(opts.file)
	}

	cmd := "vars"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	if err := app.dispatch(ctx, cmd, args, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func parseFlags() (cliOptions, []string) {
	var opts cliOptions
	var (
		root        string
		backendPref string
		logLevel    string
		pluginDir   string
		server      string
		showVersion bool
	)

	flag.StringVar(&opts.configPath, "config", defaultConfigPath(), "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", defaultConfigPath(), "Path to configuration file (shorthand)")
	flag.StringVar(&opts.file, "file", "", "File to open as the active buffer")
	flag.StringVar(&opts.file, "f", "", "File to open as the active buffer (shorthand)")
	flag.DurationVar(&opts.timeout, "timeout", 15*time.Second, "Per-command timeout")
	flag.StringVar(&root, "root", "", "Workspace root (overrides config)")
	flag.StringVar(&backendPref, "backend", "", "Backend preference: auto, native, registry, external")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&pluginDir, "plugins", "", "Directory of Lua plugin scripts")
	flag.StringVar(&server, "server", "", "envlens-ls executable (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "envlens - environment variable session host\n\n")
		fmt.Fprintf(os.Stderr, "Usage: envlens [options] [command]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  vars                      List variables (default)\n")
		fmt.Fprintf(os.Stderr, "  get NAME                  Show one variable\n")
		fmt.Fprintf(os.Stderr, "  files [-all]              List env files\n")
		fmt.Fprintf(os.Stderr, "  sources [NAME...]         Show or set enabled sources\n")
		fmt.Fprintf(os.Stderr, "  example                   Generate an example env file\n")
		fmt.Fprintf(os.Stderr, "  interpolation [on|off]    Show or set interpolation\n")
		fmt.Fprintf(os.Stderr, "  peek FILE LINE COL        Variable under a cursor position\n")
		fmt.Fprintf(os.Stderr, "  refresh                   Re-sync session state\n")
		fmt.Fprintf(os.Stderr, "  watch                     Stay attached, reload config on change\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("envlens %s (%s)\n", version, commit)
		os.Exit(0)
	}

	opts.overrides = func(cfg *config.Options) {
		if root != "" {
			cfg.Root = root
		}
		if backendPref != "" {
			cfg.Backend = backendPref
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if pluginDir != "" {
			cfg.PluginDir = pluginDir
		}
		if server != "" {
			cfg.Server.Command = server
		}
	}
	return opts, flag.Args()
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/envlens/envlens.toml"
	}
	return ""
}

func parseLogLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// app owns the assembled session stack.
type app struct {
	cfg      config.Options
	logger   *log.Logger
	st       *state.Session
	hooks    *hook.Registry
	registry *lsp.Registry
	gateway  *lsp.Gateway
	cmds     *command.Service
	lc       *backend.Lifecycle
	host     *headlessHost
	plugins  *luaplugin.Engine
}

func buildApp(cfg config.Options, logger *log.Logger) (*app, error) {
	st := state.New()
	hooks := hook.NewRegistry(logger)
	registry := lsp.NewRegistry()
	gateway := lsp.NewGateway(registry, st, logger)
	cmds := command.NewService(gateway, st, hooks,
		command.WithLogger(logger),
		command.WithNotify(func(msg string) {
			fmt.Fprintln(os.Stderr, msg)
		}),
	)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		st:       st,
		hooks:    hooks,
		registry: registry,
		gateway:  gateway,
		cmds:     cmds,
		host:     newHeadlessHost(logger),
	}

	if cfg.PluginDir != "" {
		a.plugins = luaplugin.NewEngine(hooks, luaplugin.WithLogger(logger))
		if err := a.plugins.LoadDir(cfg.PluginDir); err != nil {
			return nil, err
		}
	}

	a.lc = backend.NewLifecycle(st, cmds, hooks, backend.LifecycleConfig{
		DefaultSources: cfg.Sources.Names(),
		Interpolation:  cfg.Interpolation,
		Root:           cfg.Root,
	}, logger)
	return a, nil
}

func (a *app) start(ctx context.Context) error {
	pref, err := backend.ParsePreference(a.cfg.Backend)
	if err != nil {
		return err
	}

	_, err = backend.Setup(ctx, backend.SetupConfig{
		Preference: pref,
		// A headless host always has its own client; no external
		// registration library exists outside an editor.
		Capabilities: backend.Capabilities{NativeClient: true},
		Server: lsp.ServerConfig{
			Command:    a.cfg.Server.Command,
			Args:       a.cfg.Server.Args,
			Env:        a.cfg.Server.Env,
			RootDir:    a.cfg.Root,
			ClientName: a.cfg.ExternalClientName,
		},
	}, a.host, a.registry, a.st, a.lc, a.logger)
	return err
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.gateway.BeginShutdown()
	a.host.shutdown(ctx)
	if a.plugins != nil {
		a.plugins.Close()
	}
}
