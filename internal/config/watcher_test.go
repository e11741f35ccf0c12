package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, backend string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("backend = \""+backend+"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "envlens.toml")
	writeConfig(t, path, "auto")

	reloaded := make(chan Options, 4)
	w, err := Watch(path, func(o Options) { reloaded <- o }, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	writeConfig(t, path, "external")

	select {
	case opts := <-reloaded:
		if opts.Backend != "external" {
			t.Errorf("reloaded backend = %q, want external", opts.Backend)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after write")
	}
}

func TestWatcher_SkipsBrokenConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "envlens.toml")
	writeConfig(t, path, "auto")

	reloaded := make(chan Options, 4)
	w, err := Watch(path, func(o Options) { reloaded <- o }, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("backend = [broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case opts := <-reloaded:
		t.Errorf("broken config produced a reload: %+v", opts)
	case <-time.After(300 * time.Millisecond):
		// Reload was skipped, previous options stay in effect.
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "envlens.toml")
	writeConfig(t, path, "auto")

	reloaded := make(chan Options, 4)
	w, err := Watch(path, func(o Options) { reloaded <- o }, WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
		t.Error("sibling file write triggered a reload")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_CloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "envlens.toml")
	writeConfig(t, path, "auto")

	w, err := Watch(path, func(Options) {})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
