package app

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/lspsync/internal/config"
	"github.com/dshills/lspsync/internal/lsp"
)

// Editor keeps one Workspace per root directory.
type Editor struct {
	spawn  lsp.SpawnFunc
	logger *zap.Logger

	mu         sync.Mutex
	cfg        *config.Config
	workspaces map[string]*Workspace
	closed     bool

	// set while Run is active; workspaces created meanwhile join it
	group  *errgroup.Group
	runCtx context.Context
}

// NewEditor creates an editor. Workspaces it creates launch servers with
// spawn.
func NewEditor(cfg *config.Config, spawn lsp.SpawnFunc, logger *zap.Logger) *Editor {
	if cfg == nil {
		d := config.Defaults()
		cfg = &d
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Editor{
		cfg:        cfg,
		spawn:      spawn,
		logger:     logger,
		workspaces: make(map[string]*Workspace),
	}
}

// SetConfig replaces the configuration used for workspaces created from
// now on. Existing workspaces keep theirs.
func (e *Editor) SetConfig(cfg *config.Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

// Workspace returns the workspace for root, creating it if needed.
func (e *Editor) Workspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", root)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrWorkspaceClosed
	}
	if w, ok := e.workspaces[abs]; ok {
		return w, nil
	}
	w, err := NewWorkspace(abs, e.cfg, e.spawn, e.logger)
	if err != nil {
		return nil, err
	}
	e.workspaces[abs] = w
	e.logger.Info("workspace created", zap.String("root", abs))
	if e.group != nil {
		e.startLocked(w)
	}
	return w, nil
}

// WorkspaceFor returns the workspace whose root most closely contains path.
func (e *Editor) WorkspaceFor(path string) (*Workspace, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	var best *Workspace
	for root, w := range e.workspaces {
		if abs != root && !strings.HasPrefix(abs, root+string(filepath.Separator)) {
			continue
		}
		if best == nil || len(root) > len(best.root) {
			best = w
		}
	}
	return best, best != nil
}

// Workspaces returns every workspace, ordered by root.
func (e *Editor) Workspaces() []*Workspace {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Workspace, 0, len(e.workspaces))
	for _, w := range e.workspaces {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].root < out[j].root })
	return out
}

// Run runs the reactor loop of every workspace until ctx is done.
// Workspaces created while Run is active are started as they appear.
func (e *Editor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	e.mu.Lock()
	if e.group != nil {
		e.mu.Unlock()
		return ErrEditorRunning
	}
	e.group, e.runCtx = g, gctx
	for _, w := range e.workspaces {
		e.startLocked(w)
	}
	e.mu.Unlock()

	// Keeps the group open while no workspace exists and stops new
	// workspaces from joining once ctx is done.
	g.Go(func() error {
		<-gctx.Done()
		e.mu.Lock()
		e.group, e.runCtx = nil, nil
		e.mu.Unlock()
		return gctx.Err()
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Editor) startLocked(w *Workspace) {
	ctx := e.runCtx
	e.group.Go(func() error { return w.Run(ctx) })
}

// Shutdown shuts every workspace down concurrently.
func (e *Editor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	var g errgroup.Group
	for _, w := range e.Workspaces() {
		w := w
		g.Go(func() error {
			if err := w.Shutdown(ctx); err != nil {
				return errors.Wrapf(err, "workspace %s", w.root)
			}
			return nil
		})
	}
	return g.Wait()
}
