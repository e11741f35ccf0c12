package state

import (
	"fmt"
	"sync"
)

// Source names accepted by the server's precedence commands.
const (
	SourceShell  = "shell"
	SourceFile   = "file"
	SourceRemote = "remote"
)

// Sources holds the enabled flag for each variable source kind.
// All three fields are always meaningful; there is no partial record.
type Sources struct {
	Shell  bool
	File   bool
	Remote bool
}

// DefaultSources returns the enabled-source flags used before any
// configuration is applied.
func DefaultSources() Sources {
	return Sources{Shell: true, File: true, Remote: false}
}

// Enabled reports whether the named source is enabled.
func (s Sources) Enabled(name string) (bool, error) {
	switch name {
	case SourceShell:
		return s.Shell, nil
	case SourceFile:
		return s.File, nil
	case SourceRemote:
		return s.Remote, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
}

// Names returns the source names in precedence display order.
func (s Sources) Names() []string {
	return []string{SourceShell, SourceFile, SourceRemote}
}

// EnabledNames returns the names of all enabled sources.
func (s Sources) EnabledNames() []string {
	var names []string
	if s.Shell {
		names = append(names, SourceShell)
	}
	if s.File {
		names = append(names, SourceFile)
	}
	if s.Remote {
		names = append(names, SourceRemote)
	}
	return names
}

// None reports whether every source is disabled.
func (s Sources) None() bool {
	return !s.Shell && !s.File && !s.Remote
}

// Session is the single source of truth for server-reported state.
// It is an explicit dependency, not a package-level singleton, so tests
// can instantiate isolated instances. Every setter replaces one whole
// logical field; readers never observe a partially written value.
type Session struct {
	mu sync.RWMutex

	activeFiles   []string
	varCount      int
	sessionID     string
	initialized   bool
	sources       Sources
	seeded        bool
	interpolation bool
}

// New returns a session with documented defaults.
func New() *Session {
	return &Session{sources: DefaultSources()}
}

// ActiveFiles returns a copy of the active file list in precedence
// display order.
func (s *Session) ActiveFiles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.activeFiles))
	copy(out, s.activeFiles)
	return out
}

// SetActiveFiles replaces the active file list wholesale.
func (s *Session) SetActiveFiles(files []string) {
	cp := make([]string, len(files))
	copy(cp, files)
	s.mu.Lock()
	s.activeFiles = cp
	s.mu.Unlock()
}

// VarCount returns the last confirmed variable count.
func (s *Session) VarCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.varCount
}

// SetVarCount records a variable count. Callers must only invoke this
// on a confirmed successful server response; the count survives failed
// refreshes by virtue of never being written on the error path.
func (s *Session) SetVarCount(n int) {
	if n < 0 {
		n = 0
	}
	s.mu.Lock()
	s.varCount = n
	s.mu.Unlock()
}

// SessionID returns the cached server connection identifier, or ""
// when no connection is established.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// SetSessionID caches the live connection identifier.
func (s *Session) SetSessionID(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

// IsReady reports whether a live connection identifier is cached.
func (s *Session) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID != ""
}

// Initialized reports whether one-time setup has completed.
func (s *Session) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// MarkInitialized flips the one-time setup guard. Returns false if
// setup had already completed, so callers can refuse double init.
func (s *Session) MarkInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return false
	}
	s.initialized = true
	return true
}

// Sources returns the current enabled-source flags.
func (s *Session) Sources() Sources {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sources
}

// SetSources replaces all enabled-source flags at once.
func (s *Session) SetSources(src Sources) {
	s.mu.Lock()
	s.sources = src
	s.mu.Unlock()
}

// SetSourceEnabled flips a single named source. Unknown names are
// rejected, never silently added.
func (s *Session) SetSourceEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch name {
	case SourceShell:
		s.sources.Shell = enabled
	case SourceFile:
		s.sources.File = enabled
	case SourceRemote:
		s.sources.Remote = enabled
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSource, name)
	}
	return nil
}

// SeedSources seeds the enabled-source flags from configuration
// defaults. It is a one-shot operation applied at setup time; later
// calls are ignored so a config reload cannot clobber server-confirmed
// state.
func (s *Session) SeedSources(defaults Sources) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded {
		return
	}
	s.sources = defaults
	s.seeded = true
}

// Interpolation returns the mirrored server-side interpolation flag.
func (s *Session) Interpolation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interpolation
}

// SetInterpolation mirrors the server-side interpolation flag.
func (s *Session) SetInterpolation(enabled bool) {
	s.mu.Lock()
	s.interpolation = enabled
	s.mu.Unlock()
}

// ClearSession drops the connection identifier and the active file
// list together. Both describe the same server session, so they reset
// as a unit on teardown.
func (s *Session) ClearSession() {
	s.mu.Lock()
	s.sessionID = ""
	s.activeFiles = nil
	s.mu.Unlock()
}

// Reset restores every field to its documented default, independent of
// prior mutation history. The seed guard is cleared too, so a fresh
// configuration pass may seed again.
func (s *Session) Reset() {
	s.mu.Lock()
	s.activeFiles = nil
	s.varCount = 0
	s.sessionID = ""
	s.initialized = false
	s.sources = DefaultSources()
	s.seeded = false
	s.interpolation = false
	s.mu.Unlock()
}
