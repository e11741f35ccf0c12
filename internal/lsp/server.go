package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// ServerStatus indicates the current state of the server process.
type ServerStatus int

const (
	ServerStatusStopped ServerStatus = iota
	ServerStatusStarting
	ServerStatusInitializing
	ServerStatusReady
	ServerStatusShuttingDown
	ServerStatusError
)

// String returns a human-readable status name.
func (s ServerStatus) String() string {
	switch s {
	case ServerStatusStopped:
		return "stopped"
	case ServerStatusStarting:
		return "starting"
	case ServerStatusInitializing:
		return "initializing"
	case ServerStatusReady:
		return "ready"
	case ServerStatusShuttingDown:
		return "shutting down"
	case ServerStatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Conn is one live connection to an envlens-ls process. The gateway
// and backend lifecycle speak to the server exclusively through it.
type Conn interface {
	// ID is the opaque connection identifier cached in session state.
	ID() string

	// Name is the client name the connection is registered under.
	Name() string

	// Alive reports whether the connection can take requests.
	Alive() bool

	// Execute runs a named server command via workspace/executeCommand
	// and returns the raw result payload.
	Execute(ctx context.Context, command string, args []any) (json.RawMessage, error)

	// Hover issues a textDocument/hover request and returns the
	// markdown payload.
	Hover(ctx context.Context, uri DocumentURI, pos Position) (string, error)
}

// ServerConfig describes how to start envlens-ls.
type ServerConfig struct {
	// Command is the server executable (default "envlens-ls").
	Command string

	// Args are extra command-line arguments.
	Args []string

	// Env are additional environment variables as KEY=VALUE pairs.
	Env []string

	// RootDir is the workspace root; also the process working
	// directory when set.
	RootDir string

	// ClientName overrides the name the connection registers under.
	ClientName string

	// InitializationOptions are forwarded in the initialize request.
	InitializationOptions any

	// InitTimeout bounds the initialize handshake (default 30s).
	InitTimeout time.Duration
}

// Server owns one envlens-ls process: spawn, handshake, requests,
// shutdown. It implements Conn.
type Server struct {
	mu     sync.Mutex
	config ServerConfig
	logger *log.Logger

	id   string
	name string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	transport *Transport

	status     atomic.Int32
	serverInfo *ServerInfo

	ctx    context.Context
	cancel context.CancelFunc
	exitCh chan error
}

// NewServer creates an unstarted server handle.
func NewServer(config ServerConfig, logger *log.Logger) *Server {
	if config.Command == "" {
		config.Command = "envlens-ls"
	}
	if config.InitTimeout == 0 {
		config.InitTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	name := config.ClientName
	if name == "" {
		name = AcceptedNames[0]
	}
	s := &Server{
		config: config,
		logger: logger,
		id:     uuid.NewString(),
		name:   name,
		exitCh: make(chan error, 1),
	}
	s.status.Store(int32(ServerStatusStopped))
	return s
}

// ID implements Conn.
func (s *Server) ID() string { return s.id }

// Name implements Conn.
func (s *Server) Name() string { return s.name }

// Status returns the current lifecycle status.
func (s *Server) Status() ServerStatus {
	return ServerStatus(s.status.Load())
}

// Alive implements Conn.
func (s *Server) Alive() bool {
	return s.Status() == ServerStatusReady
}

// Info returns the serverInfo reported during initialize, or nil.
func (s *Server) Info() *ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// Start spawns the process and runs the initialize handshake.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() != ServerStatusStopped {
		return ErrAlreadyStarted
	}
	s.status.Store(int32(ServerStatusStarting))

	s.ctx, s.cancel = context.WithCancel(ctx)

	if err := s.startProcess(); err != nil {
		s.status.Store(int32(ServerStatusError))
		return err
	}

	s.transport = NewTransport(s.stdout, s.stdin, nil, s.logger)
	s.transport.Start(s.ctx)
	go s.drainStderr()
	go s.monitorProcess()

	s.status.Store(int32(ServerStatusInitializing))
	if err := s.initialize(s.ctx); err != nil {
		s.status.Store(int32(ServerStatusError))
		s.stopProcess()
		return fmt.Errorf("initialize: %w", err)
	}

	s.status.Store(int32(ServerStatusReady))
	s.logger.Info("envlens-ls ready", "id", s.id, "command", s.config.Command)
	return nil
}

// Execute implements Conn.
func (s *Server) Execute(ctx context.Context, command string, args []any) (json.RawMessage, error) {
	if !s.Alive() {
		return nil, ErrNotRunning
	}
	params := ExecuteCommandParams{Command: command, Arguments: args}
	return s.transport.CallRaw(ctx, "workspace/executeCommand", params)
}

// Hover implements Conn.
func (s *Server) Hover(ctx context.Context, uri DocumentURI, pos Position) (string, error) {
	if !s.Alive() {
		return "", ErrNotRunning
	}
	params := HoverParams{
		TextDocument: TextDocumentIdentifier{URI: uri},
		Position:     pos,
	}
	var hover Hover
	if err := s.transport.Call(ctx, "textDocument/hover", params, &hover); err != nil {
		return "", err
	}
	return hover.Contents.Text, nil
}

// OnNotification forwards a notification handler registration to the
// transport.
func (s *Server) OnNotification(method string, handler NotificationHandler) {
	if s.transport != nil {
		s.transport.OnNotification(method, handler)
	}
}

// Shutdown performs the shutdown/exit sequence and stops the process.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Status() {
	case ServerStatusStopped, ServerStatusShuttingDown:
		return nil
	}
	s.status.Store(int32(ServerStatusShuttingDown))

	if s.transport != nil && !s.transport.IsClosed() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := s.transport.Call(shutdownCtx, "shutdown", nil, nil); err != nil {
			s.logger.Debug("shutdown request failed", "err", err)
		}
		_ = s.transport.Notify(shutdownCtx, "exit", nil)
		cancel()
	}

	s.stopProcess()
	s.status.Store(int32(ServerStatusStopped))
	return nil
}

// startProcess starts the executable and wires pipes. Caller holds mu.
func (s *Server) startProcess() error {
	cmd := exec.CommandContext(s.ctx, s.config.Command, s.config.Args...)
	cmd.Env = append(os.Environ(), s.config.Env...)
	if s.config.RootDir != "" {
		cmd.Dir = s.config.RootDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("start %s: %w", s.config.Command, err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdout
	s.stderr = stderr
	return nil
}

// initialize performs the LSP handshake. Caller holds mu.
func (s *Server) initialize(ctx context.Context) error {
	var rootURI DocumentURI
	if s.config.RootDir != "" {
		rootURI = FilePathToURI(s.config.RootDir)
	}

	params := InitializeParams{
		ProcessID:             os.Getpid(),
		RootURI:               rootURI,
		Capabilities:          map[string]any{},
		InitializationOptions: s.config.InitializationOptions,
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.InitTimeout)
	defer cancel()

	var result InitializeResult
	if err := s.transport.Call(ctx, "initialize", params, &result); err != nil {
		return err
	}
	s.serverInfo = result.ServerInfo

	return s.transport.Notify(ctx, "initialized", InitializedParams{})
}

// monitorProcess reports process exit exactly once.
func (s *Server) monitorProcess() {
	if s.cmd == nil {
		return
	}
	err := s.cmd.Wait()
	if s.Status() != ServerStatusShuttingDown && s.Status() != ServerStatusStopped {
		s.logger.Warn("envlens-ls exited unexpectedly", "id", s.id, "err", err)
		s.status.Store(int32(ServerStatusError))
	}
	select {
	case s.exitCh <- err:
	default:
	}
}

// drainStderr logs server stderr lines at debug level.
func (s *Server) drainStderr() {
	if s.stderr == nil {
		return
	}
	buf := make([]byte, 4096)
	for {
		n, err := s.stderr.Read(buf)
		if n > 0 {
			s.logger.Debug("envlens-ls stderr", "output", string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// stopProcess closes transport and pipes and kills the process.
func (s *Server) stopProcess() {
	if s.transport != nil {
		s.transport.Close()
	}
	if s.stdin != nil {
		s.stdin.Close()
	}
	if s.stdout != nil {
		s.stdout.Close()
	}
	if s.stderr != nil {
		s.stderr.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.cancel != nil {
		s.cancel()
	}
}
