package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dshills/lspsync/internal/app"
	"github.com/dshills/lspsync/internal/config"
	"github.com/dshills/lspsync/internal/dispatcher"
	"github.com/dshills/lspsync/internal/engine/buffer"
	"github.com/dshills/lspsync/internal/lsp"
)

type runOptions struct {
	root       string
	configPath string
	script     string
	linger     time.Duration
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	loader := config.NewLoader()

	cmd := &cobra.Command{
		Use:   "run --script FILE",
		Short: "Run an edit script against a language server",
		Long: `Run opens a workspace, dispatches the events of a script in order and
prints server answers as they arrive. A script is a YAML or JSON list:

  - name: doc.open
    file: src/main.rs
  - name: doc.select
    file: src/main.rs
    start: 12
  - name: edit.insert
    file: src/main.rs
    text: "x"
    wait: 500ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loader.BindFlags(cmd.Flags()); err != nil {
				return err
			}
			return runScript(cmd.Context(), cmd.OutOrStdout(), loader, opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.root, "root", "r", ".", "workspace root directory")
	fs.StringVarP(&opts.configPath, "config", "c", "", "configuration file (TOML or YAML)")
	fs.StringVarP(&opts.script, "script", "s", "", "event script to run")
	fs.DurationVar(&opts.linger, "linger", 2*time.Second, "time to wait for server answers after the last event")
	_ = cmd.MarkFlagRequired("script")
	config.RegisterFlags(fs)
	return cmd
}

func runScript(parent context.Context, out io.Writer, loader *config.Loader, opts runOptions) error {
	cfg, err := loader.Load(opts.configPath)
	if err != nil {
		return err
	}
	steps, err := loadScript(opts.script)
	if err != nil {
		return err
	}

	logging, err := app.NewLogging(app.LoggerConfigFrom(cfg.Log))
	if err != nil {
		return err
	}
	defer logging.Close()
	logger := logging.Logger

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	editor := app.NewEditor(cfg, app.ProcessSpawner(logger), logger)

	if opts.configPath != "" {
		watcher, err := config.Watch(loader, opts.configPath, func(c *config.Config, err error) {
			if err != nil {
				logger.Warn("config reload rejected", zap.Error(err))
				return
			}
			logging.SetLevel(c.Log.ZapLevel())
			editor.SetConfig(c)
		}, logger)
		if err != nil {
			return err
		}
		defer watcher.Close()
	}

	ws, err := editor.Workspace(opts.root)
	if err != nil {
		return err
	}
	p := &printer{w: out}
	ws.OnDiagnostics(p.diagnostics)
	ws.OnCompletion(p.completion)
	ws.OnHover(p.hover)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- editor.Run(runCtx) }()

	scriptErr := play(ctx, ws, steps, p)
	if scriptErr == nil {
		sleep(ctx, opts.linger)
	}

	cancel()
	if err := <-done; err != nil {
		logger.Warn("reactor stopped", zap.Error(err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+time.Second)
	defer cancelShutdown()
	if err := editor.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		if scriptErr == nil {
			scriptErr = err
		}
	}
	return scriptErr
}

// play dispatches every step. A step whose event fails is reported and the
// script continues; only a step that cannot be built stops it.
func play(ctx context.Context, ws *app.Workspace, steps []step, p *printer) error {
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Wait > 0 && !sleep(ctx, s.Wait) {
			return ctx.Err()
		}
		ev, err := s.event(ws.Root())
		if err != nil {
			return errors.Wrapf(err, "step %d", i+1)
		}
		p.result(i+1, ev, ws.Dispatch(ctx, ev))
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// printer writes results and server answers. Answers arrive from the
// reactor goroutine.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) result(n int, ev dispatcher.Event, res dispatcher.Result) {
	switch {
	case res.IsError():
		p.printf("%3d %-16s %s: %v\n", n, ev.Name, res.Status, res.Error)
	case len(res.Data) > 0:
		p.printf("%3d %-16s %s %v\n", n, ev.Name, res.Status, res.Data)
	case res.Message != "":
		p.printf("%3d %-16s %s (%s)\n", n, ev.Name, res.Status, res.Message)
	default:
		p.printf("%3d %-16s %s\n", n, ev.Name, res.Status)
	}
}

func (p *printer) diagnostics(uri string, diags []lsp.Diagnostic) {
	p.printf("diagnostics %s: %d\n", uri, len(diags))
	for _, d := range diags {
		p.printf("  [%d:%d) %s %s\n", d.Start, d.End(), d.Severity, d.Message)
	}
}

func (p *printer) completion(uri, prefix string, items []lsp.CompletionItem) {
	p.printf("completion %s %q: %d items\n", uri, prefix, len(items))
	for _, it := range items {
		p.printf("  %s\n", it.Label)
	}
}

func (p *printer) hover(uri string, offset buffer.ByteOffset, text string) {
	p.printf("hover %s@%d:\n%s\n", uri, offset, text)
}
