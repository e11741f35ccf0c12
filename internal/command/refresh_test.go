package command

import (
	"context"
	"testing"

	"github.com/envlens/envlens/internal/lsp"
)

// Scenario: server reports zero files and zero variables; the refresh
// settles with an empty active set, a zero count, and exactly one
// completion.
func TestRefreshState_ZeroEverything(t *testing.T) {
	svc, gw, st, _ := newTestService(t)
	st.SetActiveFiles([]string{".env"})
	st.SetVarCount(12)

	gw.script(lsp.CmdListFiles, `[]`, nil)
	gw.script(lsp.CmdListVariables, `[]`, nil)
	gw.script(lsp.CmdListSources, `[
		{"name":"shell","enabled":true},
		{"name":"file","enabled":true},
		{"name":"remote","enabled":false}
	]`, nil)

	completions := 0
	svc.RefreshState(context.Background(), "", func() {
		completions++
	})

	if completions != 1 {
		t.Fatalf("completions = %d, want exactly 1", completions)
	}
	if files := st.ActiveFiles(); len(files) != 0 {
		t.Errorf("ActiveFiles() = %v, want empty", files)
	}
	if st.VarCount() != 0 {
		t.Errorf("VarCount() = %d, want 0", st.VarCount())
	}
}

// Best-effort aggregate: individual leg failures neither block the
// join nor clobber known-good state.
func TestRefreshState_PartialFailure(t *testing.T) {
	svc, gw, st, _ := newTestService(t)
	st.SetActiveFiles([]string{".env"})
	st.SetVarCount(8)

	gw.script(lsp.CmdListFiles, "", lsp.ErrNotRunning)
	gw.script(lsp.CmdListVariables, "", lsp.ErrNotRunning)
	gw.script(lsp.CmdListSources, `[
		{"name":"shell","enabled":false},
		{"name":"file","enabled":true},
		{"name":"remote","enabled":false}
	]`, nil)

	completions := 0
	svc.RefreshState(context.Background(), "", func() {
		completions++
	})

	if completions != 1 {
		t.Fatalf("completions = %d, want 1 despite leg failures", completions)
	}
	if files := st.ActiveFiles(); len(files) != 1 {
		t.Errorf("ActiveFiles() = %v, failed leg clobbered state", files)
	}
	if st.VarCount() != 8 {
		t.Errorf("VarCount() = %d, failed leg clobbered count", st.VarCount())
	}
	if got := st.Sources(); got.Shell || !got.File {
		t.Errorf("sources = %+v, successful leg did not apply", got)
	}
}
