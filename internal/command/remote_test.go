package command

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/envlens/envlens/internal/lsp"
)

func TestAuthSession_HappyPath(t *testing.T) {
	svc, gw, st, _ := newTestService(t)

	gw.script(lsp.CmdRemoteAuthFields, `[
		{"name":"token","prompt":"API token","env":"VAULTISH_TOKEN","secret":true}
	]`, nil)
	gw.script(lsp.CmdRemoteAuthenticate, `{}`, nil)
	gw.script(lsp.CmdRemoteNavigateScope, `{"level":"organization","options":["acme","globex"]}`, nil)
	gw.script(lsp.CmdRemoteSelectScope, `{}`, nil)
	gw.script(lsp.CmdRemoteNavigateScope, `{"level":"project","options":["api"]}`, nil)
	gw.script(lsp.CmdRemoteSelectScope, `{}`, nil)
	gw.script(lsp.CmdRemoteNavigateScope, `{"complete":true}`, nil)
	gw.script(lsp.CmdRemoteRefresh, `{}`, nil)
	gw.script(lsp.CmdListVariables, `[{"name":"REMOTE_SECRET","value":"s","source":"vaultish"}]`, nil)

	t.Setenv("VAULTISH_TOKEN", "tok-123")

	sess := svc.BeginAuth("vaultish")
	if sess.State() != AuthStateUnauthenticated {
		t.Fatalf("initial state = %v", sess.State())
	}

	ctx := context.Background()
	sess.FetchFields(ctx, func(fields []AuthField, err error) {
		if err != nil {
			t.Fatalf("FetchFields error = %v", err)
		}
		// Prompt must not fire: the field resolves from the env.
		perr := sess.ResolveFields(fields, func(f AuthField) (string, error) {
			t.Errorf("prompt fired for %q despite env value", f.Name)
			return "", nil
		}, "")
		if perr != nil {
			t.Fatalf("ResolveFields error = %v", perr)
		}
	})
	if sess.State() != AuthStateFieldsCollected {
		t.Fatalf("state = %v, want fields collected", sess.State())
	}

	sess.Authenticate(ctx, func(err error) {
		if err != nil {
			t.Fatalf("Authenticate error = %v", err)
		}
	})
	if sess.State() != AuthStateAuthenticated {
		t.Fatalf("state = %v, want authenticated", sess.State())
	}

	// Walk both scope levels, then the completion round.
	for {
		var level *ScopeLevel
		sess.NavigateScope(ctx, func(l *ScopeLevel, err error) {
			if err != nil {
				t.Fatalf("NavigateScope error = %v", err)
			}
			level = l
		})
		if level == nil {
			break
		}
		sess.SelectScope(ctx, level.Name, level.Options[0], func(err error) {
			if err != nil {
				t.Fatalf("SelectScope(%s) error = %v", level.Name, err)
			}
		})
	}

	if sess.State() != AuthStateCommitted {
		t.Fatalf("state = %v, want committed", sess.State())
	}

	sess.CommitAndRefresh(ctx, func(err error) {
		if err != nil {
			t.Fatalf("CommitAndRefresh error = %v", err)
		}
	})
	if st.VarCount() != 1 {
		t.Errorf("VarCount() = %d after secret fetch, want 1", st.VarCount())
	}
}

// Any step failure aborts the remaining steps with the server's
// message preserved verbatim.
func TestAuthSession_FailureAbortsRemainingSteps(t *testing.T) {
	svc, gw, _, _ := newTestService(t)

	gw.script(lsp.CmdRemoteAuthFields, `[]`, nil)
	gw.script(lsp.CmdRemoteAuthenticate, "", &lsp.RPCError{Code: lsp.CodeRequestFailed, Message: "invalid credentials for vaultish"})
	gw.script(lsp.CmdRemoteNavigateScope, `{"level":"organization","options":["acme"]}`, nil)

	sess := svc.BeginAuth("vaultish")
	ctx := context.Background()

	sess.FetchFields(ctx, func(fields []AuthField, err error) {
		if err != nil {
			t.Fatalf("FetchFields error = %v", err)
		}
		if rerr := sess.ResolveFields(fields, nil, ""); rerr != nil {
			t.Fatalf("ResolveFields error = %v", rerr)
		}
	})

	sess.Authenticate(ctx, func(err error) {
		if lsp.ServerMessage(err) != "invalid credentials for vaultish" {
			t.Errorf("server message = %q, want verbatim text", lsp.ServerMessage(err))
		}
	})
	if sess.State() != AuthStateFailed {
		t.Fatalf("state = %v, want failed", sess.State())
	}

	// The scripted navigate reply must never be consumed.
	sess.NavigateScope(ctx, func(l *ScopeLevel, err error) {
		if !errors.Is(err, ErrAuthAborted) {
			t.Errorf("NavigateScope err = %v, want ErrAuthAborted", err)
		}
		if l != nil {
			t.Errorf("level = %+v after failure, want nil", l)
		}
	})
	if gw.callCount(lsp.CmdRemoteNavigateScope) != 0 {
		t.Error("navigate scope hit the wire after the flow failed")
	}
}

func TestAuthSession_StepsOutOfOrder(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	sess := svc.BeginAuth("vaultish")

	sess.Authenticate(context.Background(), func(err error) {
		if !errors.Is(err, ErrAuthSequence) {
			t.Errorf("Authenticate before fields err = %v, want ErrAuthSequence", err)
		}
	})
	sess.SelectScope(context.Background(), "organization", "acme", func(err error) {
		if !errors.Is(err, ErrAuthSequence) {
			t.Errorf("SelectScope before auth err = %v, want ErrAuthSequence", err)
		}
	})
}

func TestResolveFields_CredentialsFile(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	dir := t.TempDir()
	credFile := filepath.Join(dir, "credentials.env")
	if err := os.WriteFile(credFile, []byte("VAULTISH_TOKEN=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	sess := svc.BeginAuth("vaultish")
	fields := []AuthField{{Name: "token", Env: "VAULTISH_TOKEN", Secret: true}}

	if err := sess.ResolveFields(fields, nil, credFile); err != nil {
		t.Fatalf("ResolveFields error = %v", err)
	}
	if sess.State() != AuthStateFieldsCollected {
		t.Errorf("state = %v, want fields collected", sess.State())
	}
	sess.mu.Lock()
	got := sess.fields["token"]
	sess.mu.Unlock()
	if got != "from-file" {
		t.Errorf("token = %q, want value from credentials file", got)
	}
}

func TestResolveFields_PromptFallback(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	sess := svc.BeginAuth("vaultish")

	fields := []AuthField{{Name: "region", Prompt: "Region"}}
	err := sess.ResolveFields(fields, func(f AuthField) (string, error) {
		return "eu-west-1", nil
	}, "")
	if err != nil {
		t.Fatalf("ResolveFields error = %v", err)
	}

	sess.mu.Lock()
	got := sess.fields["region"]
	sess.mu.Unlock()
	if got != "eu-west-1" {
		t.Errorf("region = %q, want prompted value", got)
	}
}

func TestRemoteProviders(t *testing.T) {
	svc, gw, _, _ := newTestService(t)
	gw.script(lsp.CmdRemoteList, `[{"name":"vaultish","description":"Vaultish secrets"}]`, nil)

	svc.RemoteProviders(context.Background(), func(providers []Provider, err error) {
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if len(providers) != 1 || providers[0].Name != "vaultish" {
			t.Errorf("providers = %+v", providers)
		}
	})
}
