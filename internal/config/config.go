// Package config loads envlens settings from a TOML file, applies
// ENVLENS_* environment overrides on top, and optionally watches the
// file for live reload.
//
// Precedence, lowest to highest: built-in defaults, TOML file,
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Interpolation modes. "server" leaves the setting alone and mirrors
// whatever the language server reports.
const (
	InterpolationOn     = "on"
	InterpolationOff    = "off"
	InterpolationServer = "server"
)

// Options is the full envlens configuration surface.
type Options struct {
	// Backend selects the startup strategy: auto, native, registry,
	// or external.
	Backend string `toml:"backend"`

	// Server configures how the language server process is launched.
	Server ServerOptions `toml:"server"`

	// Root pins the workspace root sent to the server. Empty means
	// the host decides.
	Root string `toml:"root"`

	// Sources are the variable sources enabled at session start.
	Sources SourceOptions `toml:"sources"`

	// Interpolation is on, off, or server.
	Interpolation string `toml:"interpolation"`

	// ExternalClientName overrides the client name matched when the
	// external strategy discovers a connection someone else started.
	ExternalClientName string `toml:"external_client_name"`

	// CredentialsFile is a dotenv file consulted when remote auth
	// fields cannot be resolved from the environment.
	CredentialsFile string `toml:"credentials_file"`

	// PluginDir holds Lua scripts loaded at startup.
	PluginDir string `toml:"plugin_dir"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `toml:"log_level"`
}

// ServerOptions configures the envlens-ls process.
type ServerOptions struct {
	// Command is the executable name or path. Defaults to envlens-ls
	// found on PATH.
	Command string `toml:"command"`

	// Args are extra arguments appended after the command.
	Args []string `toml:"args"`

	// Env are extra KEY=VALUE pairs for the server process.
	Env []string `toml:"env"`
}

// SourceOptions mirrors the server's three variable sources.
type SourceOptions struct {
	Shell  bool `toml:"shell"`
	File   bool `toml:"file"`
	Remote bool `toml:"remote"`
}

// Names returns the enabled source names in canonical order.
func (s SourceOptions) Names() []string {
	var names []string
	if s.Shell {
		names = append(names, "shell")
	}
	if s.File {
		names = append(names, "file")
	}
	if s.Remote {
		names = append(names, "remote")
	}
	return names
}

// Default returns the built-in configuration.
func Default() Options {
	return Options{
		Backend:       "auto",
		Server:        ServerOptions{Command: "envlens-ls"},
		Sources:       SourceOptions{Shell: true, File: true, Remote: false},
		Interpolation: InterpolationServer,
		LogLevel:      "info",
	}
}

// ParseError wraps a TOML syntax failure with the offending path.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads the TOML file at path over the defaults and applies
// environment overrides. A missing file is not an error; the defaults
// plus environment carry.
func Load(path string) (Options, error) {
	opts := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &opts); err != nil {
				return opts, &ParseError{Path: path, Err: err}
			}
		case os.IsNotExist(err):
			// Defaults carry.
		default:
			return opts, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	applyEnv(&opts, os.LookupEnv)
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

// Validate rejects values no component would accept.
func (o Options) Validate() error {
	switch o.Backend {
	case "auto", "native", "registry", "external":
	default:
		return fmt.Errorf("config: unknown backend %q", o.Backend)
	}
	switch o.Interpolation {
	case InterpolationOn, InterpolationOff, InterpolationServer:
	default:
		return fmt.Errorf("config: interpolation must be on, off, or server, got %q", o.Interpolation)
	}
	switch o.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", o.LogLevel)
	}
	if o.Server.Command == "" {
		return errors.New("config: server command must not be empty")
	}
	return nil
}

// lookupFunc matches os.LookupEnv so tests can inject environments.
type lookupFunc func(string) (string, bool)

// applyEnv layers ENVLENS_* variables over opts. Unset variables leave
// the current value; empty strings count as set.
func applyEnv(opts *Options, lookup lookupFunc) {
	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setString("ENVLENS_BACKEND", &opts.Backend)
	setString("ENVLENS_SERVER_COMMAND", &opts.Server.Command)
	setString("ENVLENS_ROOT", &opts.Root)
	setString("ENVLENS_INTERPOLATION", &opts.Interpolation)
	setString("ENVLENS_CLIENT_NAME", &opts.ExternalClientName)
	setString("ENVLENS_CREDENTIALS_FILE", &opts.CredentialsFile)
	setString("ENVLENS_PLUGIN_DIR", &opts.PluginDir)
	setString("ENVLENS_LOG_LEVEL", &opts.LogLevel)

	setBool("ENVLENS_SOURCE_SHELL", &opts.Sources.Shell)
	setBool("ENVLENS_SOURCE_FILE", &opts.Sources.File)
	setBool("ENVLENS_SOURCE_REMOTE", &opts.Sources.Remote)

	if v, ok := lookup("ENVLENS_SERVER_ARGS"); ok {
		opts.Server.Args = splitArgs(v)
	}
}

// splitArgs splits a whitespace-separated argument string.
func splitArgs(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
