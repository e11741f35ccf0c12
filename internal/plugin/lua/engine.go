package lua

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/envlens/envlens/internal/command"
	"github.com/envlens/envlens/internal/hook"
)

// Engine runs user Lua scripts and bridges their handlers into the
// hook registry. One shared LState serves all scripts; gopher-lua
// states are not goroutine safe, so every state access holds the
// engine mutex. Hook handlers are short and synchronous, which keeps
// the mutex cheap.
type Engine struct {
	mu     sync.Mutex
	L      *lua.LState
	hooks  *hook.Registry
	logger *log.Logger
	regIDs []string
	closed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger for script errors.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine wired to hooks.
func NewEngine(hooks *hook.Registry, opts ...Option) *Engine {
	e := &Engine{
		L:      lua.NewState(),
		hooks:  hooks,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.restrict()
	e.installAPI()
	return e
}

// restrict removes script access to code loading and process control.
// Scripts transform display data; they have no business executing
// files or spawning processes.
func (e *Engine) restrict() {
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring"} {
		e.L.SetGlobal(name, lua.LNil)
	}
	if osTable, ok := e.L.GetGlobal("os").(*lua.LTable); ok {
		for _, name := range []string{"execute", "exit", "remove", "rename", "setenv", "tmpname"} {
			osTable.RawSetString(name, lua.LNil)
		}
	}
	e.L.SetGlobal("io", lua.LNil)
}

// installAPI preloads the envlens module:
//
//	local envlens = require("envlens")
//	envlens.on("variables", handler)                  -- filter
//	envlens.on("attach", handler, {kind = "observer"})
//	envlens.log("message")
func (e *Engine) installAPI() {
	e.L.PreloadModule("envlens", func(L *lua.LState) int {
		mod := L.NewTable()
		L.SetFuncs(mod, map[string]lua.LGFunction{
			"on":  e.luaOn,
			"log": e.luaLog,
		})
		L.Push(mod)
		return 1
	})
}

// luaOn registers a script function as a hook handler and returns the
// registration id.
func (e *Engine) luaOn(L *lua.LState) int {
	event := L.CheckString(1)
	fn := L.CheckFunction(2)

	priority := 0
	kind := hook.KindFilter
	if L.GetTop() >= 3 {
		opts := L.CheckTable(3)
		if n, ok := opts.RawGetString("priority").(lua.LNumber); ok {
			priority = int(n)
		}
		if s, ok := opts.RawGetString("kind").(lua.LString); ok && string(s) == "observer" {
			kind = hook.KindObserver
		}
	}

	id := e.hooks.Register(event, priority, kind, e.handler(fn, kind))
	e.regIDs = append(e.regIDs, id)
	L.Push(lua.LString(id))
	return 1
}

func (e *Engine) luaLog(L *lua.LState) int {
	e.logger.Info("lua: " + L.CheckString(1))
	return 0
}

// handler wraps a Lua function as a hook handler. Script errors are
// logged and the payload passes through untouched.
func (e *Engine) handler(fn *lua.LFunction, kind hook.Kind) hook.Handler {
	return func(payload any) any {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			return nil
		}

		err := e.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, toLua(e.L, payload))
		if err != nil {
			e.logger.Warn("lua handler failed", "error", err)
			return nil
		}
		ret := e.L.Get(-1)
		e.L.Pop(1)

		if kind == hook.KindObserver || ret == lua.LNil {
			return nil
		}
		return e.rebuild(ret, payload)
	}
}

// rebuild converts a script return value back into the payload's Go
// type. A shape mismatch keeps the original payload.
func (e *Engine) rebuild(ret lua.LValue, payload any) any {
	t, ok := ret.(*lua.LTable)
	if !ok {
		if s, isStr := ret.(lua.LString); isStr {
			if _, wasStr := payload.(string); wasStr {
				return string(s)
			}
		}
		return nil
	}

	switch prev := payload.(type) {
	case []command.Variable:
		return variablesFromLua(t, prev)
	case command.Variable:
		return variableFromLua(t, prev)
	default:
		return fromLua(t)
	}
}

// LoadDir executes every *.lua script in dir in lexical order. A
// missing directory is not an error. A script that fails to load stops
// the walk and reports which script broke.
func (e *Engine) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading plugin dir %s: %w", dir, err)
	}

	var scripts []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".lua" {
			scripts = append(scripts, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(scripts)

	for _, script := range scripts {
		if err := e.LoadFile(script); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile executes a single script.
func (e *Engine) LoadFile(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("loading %s: engine closed", path)
	}
	if err := e.L.DoFile(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	e.logger.Debug("loaded plugin script", "path", path)
	return nil
}

// Close unregisters every script handler and shuts the Lua state.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for _, id := range e.regIDs {
		e.hooks.Unregister(id)
	}
	e.regIDs = nil
	e.L.Close()
}
