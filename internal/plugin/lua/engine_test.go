package lua

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/envlens/envlens/internal/command"
	"github.com/envlens/envlens/internal/hook"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEngine_MaskingFilterKeepsRawValue(t *testing.T) {
	hooks := hook.NewRegistry(nil)
	e := NewEngine(hooks)
	defer e.Close()

	script := writeScript(t, t.TempDir(), "mask.lua", `
local envlens = require("envlens")
envlens.on("variables", function(vars)
  for _, v in ipairs(vars) do
    if v.type == "secret" then
      v.value = "***"
    end
  end
  return vars
end)
`)
	if err := e.LoadFile(script); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	in := []command.Variable{
		{Name: "API_KEY", Value: "s3cret", RawValue: "s3cret", Source: "file", Type: "secret"},
		{Name: "PORT", Value: "8080", RawValue: "8080", Source: "shell", Type: "plain"},
	}
	out, ok := hooks.Filter(hook.EventVariables, in).([]command.Variable)
	if !ok {
		t.Fatalf("filter returned %T, want []command.Variable", hooks.Filter(hook.EventVariables, in))
	}

	if out[0].Value != "***" {
		t.Errorf("masked value = %q, want ***", out[0].Value)
	}
	if out[0].RawValue != "s3cret" {
		t.Errorf("RawValue = %q, script must not reach the stored value", out[0].RawValue)
	}
	if out[1].Value != "8080" {
		t.Errorf("untouched value = %q, want 8080", out[1].Value)
	}
}

func TestEngine_FilterCanDropEntries(t *testing.T) {
	hooks := hook.NewRegistry(nil)
	e := NewEngine(hooks)
	defer e.Close()

	script := writeScript(t, t.TempDir(), "drop.lua", `
local envlens = require("envlens")
envlens.on("variables", function(vars)
  local kept = {}
  for _, v in ipairs(vars) do
    if v.source ~= "remote" then
      kept[#kept + 1] = v
    end
  end
  return kept
end)
`)
	if err := e.LoadFile(script); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	in := []command.Variable{
		{Name: "A", Source: "shell"},
		{Name: "B", Source: "remote"},
		{Name: "C", Source: "file"},
	}
	out := hooks.Filter(hook.EventVariables, in).([]command.Variable)
	if len(out) != 2 || out[0].Name != "A" || out[1].Name != "C" {
		t.Errorf("filtered = %+v, want A and C", out)
	}
}

func TestEngine_ObserverSeesButCannotTransform(t *testing.T) {
	hooks := hook.NewRegistry(nil)
	e := NewEngine(hooks)
	defer e.Close()

	script := writeScript(t, t.TempDir(), "observe.lua", `
local envlens = require("envlens")
seen = 0
envlens.on("variable_peek", function(v)
  seen = seen + 1
  v.value = "hijacked"
  return v
end, { kind = "observer" })
`)
	if err := e.LoadFile(script); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	in := command.Variable{Name: "HOME", Value: "/root"}
	out := hooks.Filter(hook.EventVariablePeek, in).(command.Variable)
	if out.Value != "/root" {
		t.Errorf("observer transformed the payload: %q", out.Value)
	}
}

func TestEngine_ScriptErrorKeepsPayload(t *testing.T) {
	hooks := hook.NewRegistry(nil)
	e := NewEngine(hooks)
	defer e.Close()

	script := writeScript(t, t.TempDir(), "boom.lua", `
local envlens = require("envlens")
envlens.on("variables", function(vars)
  error("script bug")
end)
`)
	if err := e.LoadFile(script); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	in := []command.Variable{{Name: "A", Value: "1"}}
	out := hooks.Filter(hook.EventVariables, in).([]command.Variable)
	if len(out) != 1 || out[0].Value != "1" {
		t.Errorf("payload mutated by failing script: %+v", out)
	}
}

func TestEngine_LoadDir(t *testing.T) {
	hooks := hook.NewRegistry(nil)
	e := NewEngine(hooks)
	defer e.Close()

	dir := t.TempDir()
	writeScript(t, dir, "b.lua", `order = (order or "") .. "b"`)
	writeScript(t, dir, "a.lua", `order = (order or "") .. "a"`)
	writeScript(t, dir, "notes.txt", `ignored`)

	if err := e.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	got := e.L.GetGlobal("order").String()
	if got != "ab" {
		t.Errorf("load order = %q, want ab (lexical)", got)
	}
}

func TestEngine_LoadDirMissingIsNotAnError(t *testing.T) {
	e := NewEngine(hook.NewRegistry(nil))
	defer e.Close()
	if err := e.LoadDir(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Errorf("LoadDir(missing) = %v, want nil", err)
	}
}

func TestEngine_BrokenScriptReported(t *testing.T) {
	e := NewEngine(hook.NewRegistry(nil))
	defer e.Close()

	dir := t.TempDir()
	writeScript(t, dir, "bad.lua", `this is not lua`)

	if err := e.LoadDir(dir); err == nil {
		t.Error("LoadDir() = nil, want parse error naming the script")
	}
}

func TestEngine_RestrictedGlobals(t *testing.T) {
	e := NewEngine(hook.NewRegistry(nil))
	defer e.Close()

	script := writeScript(t, t.TempDir(), "probe.lua", `
probe = {
  dofile = dofile == nil,
  loadstring = loadstring == nil,
  io = io == nil,
  os_execute = os.execute == nil,
  os_time = os.time ~= nil,
}
`)
	if err := e.LoadFile(script); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	m, ok := fromLua(e.L.GetGlobal("probe")).(map[string]any)
	if !ok {
		t.Fatalf("probe did not convert to a map")
	}
	for key, want := range map[string]bool{
		"dofile":     true,
		"loadstring": true,
		"io":         true,
		"os_execute": true,
		"os_time":    true,
	} {
		if got, _ := m[key].(bool); got != want {
			t.Errorf("probe[%s] = %v, want %v", key, m[key], want)
		}
	}
}

func TestEngine_CloseUnregistersHandlers(t *testing.T) {
	hooks := hook.NewRegistry(nil)
	e := NewEngine(hooks)

	script := writeScript(t, t.TempDir(), "h.lua", `
local envlens = require("envlens")
envlens.on("variables", function(vars) return vars end)
`)
	if err := e.LoadFile(script); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if hooks.HandlerCount(hook.EventVariables) != 1 {
		t.Fatal("handler not registered")
	}

	e.Close()

	if hooks.HandlerCount(hook.EventVariables) != 0 {
		t.Error("Close() left handlers registered")
	}
	// Idempotent.
	e.Close()
}
