package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/envlens/envlens/internal/command"
	"github.com/envlens/envlens/internal/config"
	"github.com/envlens/envlens/internal/lsp"
	"github.com/envlens/envlens/internal/state"
)

// dispatch runs one subcommand against the live session.
func (a *app) dispatch(ctx context.Context, cmd string, args []string, opts cliOptions) error {
	cmdCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	switch cmd {
	case "vars":
		return a.cmdVars(cmdCtx, opts.file)
	case "get":
		if len(args) != 1 {
			return fmt.Errorf("usage: envlens get NAME")
		}
		return a.cmdGet(cmdCtx, args[0])
	case "files":
		all := len(args) > 0 && args[0] == "-all"
		return a.cmdFiles(cmdCtx, opts.file, all)
	case "sources":
		return a.cmdSources(cmdCtx, args)
	case "example":
		return a.cmdExample(cmdCtx)
	case "interpolation":
		return a.cmdInterpolation(cmdCtx, args)
	case "peek":
		if len(args) != 3 {
			return fmt.Errorf("usage: envlens peek FILE LINE COL")
		}
		return a.cmdPeek(cmdCtx, args[0], args[1], args[2])
	case "refresh":
		return a.cmdRefresh(cmdCtx, opts.file)
	case "watch":
		return a.cmdWatch(ctx, opts)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// await blocks until done closes or the context expires. Callbacks
// complete on transport goroutines; one-shot commands need the join.
func await(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *app) cmdVars(ctx context.Context, file string) error {
	done := make(chan struct{})
	var outErr error

	byName := func(x, y command.Variable) bool { return x.Name < y.Name }
	a.cmds.ListVariables(ctx, file, byName, func(vars []command.Variable, err error) {
		defer close(done)
		if err != nil {
			outErr = err
			return
		}
		for _, v := range vars {
			fmt.Printf("%-30s %-8s %s\n", v.Name, v.Source, v.Value)
		}
	})
	if err := await(ctx, done); err != nil {
		return err
	}
	return outErr
}

func (a *app) cmdGet(ctx context.Context, name string) error {
	done := make(chan struct{})
	var outErr error

	a.cmds.GetVariable(ctx, name, func(v *command.Variable, err error) {
		defer close(done)
		if err != nil {
			outErr = err
			return
		}
		if v == nil {
			outErr = fmt.Errorf("no variable named %q", name)
			return
		}
		fmt.Printf("%s=%s\n", v.Name, v.Value)
		fmt.Printf("  source: %s\n", v.Source)
		if v.Type != "" {
			fmt.Printf("  type:   %s\n", v.Type)
		}
	})
	if err := await(ctx, done); err != nil {
		return err
	}
	return outErr
}

func (a *app) cmdFiles(ctx context.Context, file string, all bool) error {
	done := make(chan struct{})
	var outErr error

	a.cmds.ListFiles(ctx, file, command.FilesOptions{All: all}, func(files []string, err error) {
		defer close(done)
		if err != nil {
			outErr = err
			return
		}
		for _, f := range files {
			fmt.Println(f)
		}
	})
	if err := await(ctx, done); err != nil {
		return err
	}
	return outErr
}

func (a *app) cmdSources(ctx context.Context, args []string) error {
	if len(args) > 0 {
		return a.setSources(ctx, args)
	}

	done := make(chan struct{})
	var outErr error
	a.cmds.ListSources(ctx, func(statuses []command.SourceStatus, err error) {
		defer close(done)
		if err != nil {
			outErr = err
			return
		}
		for _, s := range statuses {
			mark := " "
			if s.Enabled {
				mark = "x"
			}
			fmt.Printf("[%s] %s\n", mark, s.Name)
		}
	})
	if err := await(ctx, done); err != nil {
		return err
	}
	return outErr
}

func (a *app) setSources(ctx context.Context, names []string) error {
	prev := a.st.Sources()
	done := make(chan struct{})
	var outErr error

	a.cmds.SetSources(ctx, names, &prev, func(applied state.Sources, err error) {
		defer close(done)
		if err != nil {
			outErr = err
			return
		}
		fmt.Printf("sources: %s\n", strings.Join(applied.EnabledNames(), ", "))
	})
	if err := await(ctx, done); err != nil {
		return err
	}
	return outErr
}

func (a *app) cmdExample(ctx context.Context) error {
	done := make(chan struct{})
	var outErr error

	a.cmds.GenerateExample(ctx, func(content string, count int, err error) {
		defer close(done)
		if err != nil {
			outErr = err
			return
		}
		fmt.Print(content)
		if content != "" && !strings.HasSuffix(content, "\n") {
			fmt.Println()
		}
		fmt.Fprintf(os.Stderr, "%d variables\n", count)
	})
	if err := await(ctx, done); err != nil {
		return err
	}
	return outErr
}

func (a *app) cmdInterpolation(ctx context.Context, args []string) error {
	done := make(chan struct{})
	var outErr error
	report := func(enabled bool, err error) {
		defer close(done)
		if err != nil {
			outErr = err
			return
		}
		if enabled {
			fmt.Println("interpolation: on")
		} else {
			fmt.Println("interpolation: off")
		}
	}

	switch {
	case len(args) == 0:
		a.cmds.GetInterpolation(ctx, report)
	case args[0] == "on":
		a.cmds.SetInterpolation(ctx, true, report)
	case args[0] == "off":
		a.cmds.SetInterpolation(ctx, false, report)
	default:
		close(done)
		return fmt.Errorf("usage: envlens interpolation [on|off]")
	}

	if err := await(ctx, done); err != nil {
		return err
	}
	return outErr
}

func (a *app) cmdPeek(ctx context.Context, file, line, col string) error {
	ln, err := strconv.Atoi(line)
	if err != nil {
		return fmt.Errorf("line must be a number: %q", line)
	}
	cl, err := strconv.Atoi(col)
	if err != nil {
		return fmt.Errorf("col must be a number: %q", col)
	}

	done := make(chan struct{})
	var outErr error
	uri := lsp.FilePathToURI(file)
	pos := lsp.Position{Line: ln, Character: cl}

	a.cmds.VariableAtCursor(ctx, uri, pos, func(v *command.Variable, err error) {
		defer close(done)
		if err != nil {
			outErr = err
			return
		}
		if v == nil {
			outErr = fmt.Errorf("no variable at %s:%s:%s", file, line, col)
			return
		}
		fmt.Printf("%s=%s (%s)\n", v.Name, v.Value, v.Source)
	})
	if err := await(ctx, done); err != nil {
		return err
	}
	return outErr
}

func (a *app) cmdRefresh(ctx context.Context, file string) error {
	done := make(chan struct{})
	a.cmds.RefreshState(ctx, file, func() { close(done) })
	if err := await(ctx, done); err != nil {
		return err
	}

	fmt.Printf("session %s: %d variables, active files %s\n",
		a.st.SessionID(), a.st.VarCount(), formatFiles(a.st.ActiveFiles()))
	return nil
}

func formatFiles(files []string) string {
	if len(files) == 0 {
		return "(none)"
	}
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}

// cmdWatch keeps the session attached until interrupted, re-applying
// source and interpolation settings whenever the config file changes.
func (a *app) cmdWatch(ctx context.Context, opts cliOptions) error {
	if opts.configPath == "" {
		return fmt.Errorf("watch requires a config file path")
	}

	w, err := config.Watch(opts.configPath, func(cfg config.Options) {
		opts.overrides(&cfg)
		a.applyConfig(ctx, cfg)
	}, config.WithWatchLogger(a.logger))
	if err != nil {
		return err
	}
	defer w.Close()

	a.logger.Info("watching", "config", opts.configPath)
	<-ctx.Done()
	return nil
}

// applyConfig pushes reloadable settings to the running session.
// Backend preference and server command need a restart and are left
// alone.
func (a *app) applyConfig(ctx context.Context, cfg config.Options) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	prev := a.st.Sources()
	done := make(chan struct{}, 2)

	a.cmds.SetSources(ctx, cfg.Sources.Names(), &prev, func(state.Sources, error) {
		done <- struct{}{}
	})

	switch cfg.Interpolation {
	case config.InterpolationOn:
		a.cmds.SetInterpolation(ctx, true, func(bool, error) { done <- struct{}{} })
	case config.InterpolationOff:
		a.cmds.SetInterpolation(ctx, false, func(bool, error) { done <- struct{}{} })
	default:
		done <- struct{}{}
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-ctx.Done():
			a.logger.Warn("config reapply timed out")
			return
		}
	}
	a.logger.Info("config reapplied")
}
