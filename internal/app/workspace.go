package app

import (
	"context"
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/dshills/lspsync/internal/config"
	"github.com/dshills/lspsync/internal/dispatcher"
	"github.com/dshills/lspsync/internal/engine/buffer"
	"github.com/dshills/lspsync/internal/engine/cursor"
	"github.com/dshills/lspsync/internal/engine/history"
	"github.com/dshills/lspsync/internal/lsp"
)

// DiagnosticsFunc receives the diagnostics accepted for a document.
type DiagnosticsFunc func(uri string, diags []lsp.Diagnostic)

// CompletionFunc receives ranked completion items for the word prefix typed
// in a document.
type CompletionFunc func(uri, prefix string, items []lsp.CompletionItem)

// HoverFunc receives hover text for an offset of a document.
type HoverFunc func(uri string, offset buffer.ByteOffset, text string)

type requestKind int

const (
	requestCompletion requestKind = iota
	requestHover
)

type pendingRequest struct {
	kind   requestKind
	uri    string
	offset buffer.ByteOffset
	prefix string
}

// Workspace owns one language server session and the documents open under
// one root. All document and session state is reached through it; nothing
// is process-global.
//
// Operations may be called from several goroutines but are serialized.
// Callbacks run after the workspace lock is released, so they may call back
// into the workspace.
type Workspace struct {
	root    string
	rootURI string
	cfg     *config.Config
	logger  *zap.Logger

	session *lsp.Session
	sync    *lsp.SyncEngine
	diags   *lsp.DiagnosticsCache
	router  *dispatcher.Router

	mu           sync.Mutex
	docs         map[string]*Document
	pending      map[int64]pendingRequest
	completionID int64
	startErr     error
	closed       bool
	wake         chan struct{}

	cbMu          sync.RWMutex
	onDiagnostics DiagnosticsFunc
	onCompletion  CompletionFunc
	onHover       HoverFunc

	dispatchMu  sync.Mutex
	dispatchCtx context.Context
}

// NewWorkspace creates a workspace rooted at root. The server is started
// when the first document is opened.
func NewWorkspace(root string, cfg *config.Config, spawn lsp.SpawnFunc, logger *zap.Logger) (*Workspace, error) {
	if cfg == nil {
		d := config.Defaults()
		cfg = &d
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rootURI, err := FileURI(root)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("component", "workspace"), zap.String("root", root))

	diags := lsp.NewDiagnosticsCache()
	session := lsp.NewSession(SessionConfig(root, rootURI, cfg), spawn, logger)
	w := &Workspace{
		root:         root,
		rootURI:      rootURI,
		cfg:          cfg,
		logger:       logger,
		session:      session,
		sync:         lsp.NewSyncEngine(session, diags, logger),
		diags:        diags,
		docs:         make(map[string]*Document),
		pending:      make(map[int64]pendingRequest),
		completionID: -1,
		wake:         make(chan struct{}, 1),
	}

	// Hooks run inside Poll, with w.mu held by Pump.
	session.OnRestart(w.sync.Resync)
	session.OnRestart(func(context.Context) error {
		w.forgetRequests()
		return nil
	})

	w.router = dispatcher.NewRouterWithOptions(dispatcher.Options{
		RecoverFromPanic: true,
		EnableMetrics:    true,
	})
	w.registerHandlers()
	return w, nil
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// RootURI returns the workspace directory as a URI.
func (w *Workspace) RootURI() string { return w.rootURI }

// Session returns the language server session.
func (w *Workspace) Session() *lsp.Session { return w.session }

// Router returns the event router driving the workspace.
func (w *Workspace) Router() *dispatcher.Router { return w.router }

// StartError returns the error of the failed server start, if any. After a
// failed start the workspace keeps editing locally and does not retry.
func (w *Workspace) StartError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startErr
}

// OnDiagnostics sets the callback for accepted diagnostics.
func (w *Workspace) OnDiagnostics(fn DiagnosticsFunc) {
	w.cbMu.Lock()
	w.onDiagnostics = fn
	w.cbMu.Unlock()
}

// OnCompletion sets the callback for completion results.
func (w *Workspace) OnCompletion(fn CompletionFunc) {
	w.cbMu.Lock()
	w.onCompletion = fn
	w.cbMu.Unlock()
}

// OnHover sets the callback for hover results.
func (w *Workspace) OnHover(fn HoverFunc) {
	w.cbMu.Lock()
	w.onHover = fn
	w.cbMu.Unlock()
}

// Document returns an open document.
func (w *Workspace) Document(uri string) (*Document, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.docs[uri]
	return d, ok
}

// URIs returns the open documents, sorted.
func (w *Workspace) URIs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	uris := make([]string, 0, len(w.docs))
	for uri := range w.docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

func (w *Workspace) document(op, uri string) (*Document, error) {
	if w.closed {
		return nil, NewOperationError(op, uri, ErrWorkspaceClosed)
	}
	d, ok := w.docs[uri]
	if !ok {
		return nil, NewOperationError(op, uri, ErrDocumentNotFound)
	}
	return d, nil
}

// Open opens a document with the given text. The server is started first
// if needed; if it cannot be, the document is still opened for local
// editing.
func (w *Workspace) Open(ctx context.Context, uri, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return NewOperationError("open", uri, ErrWorkspaceClosed)
	}

	w.ensureSession(ctx)

	doc, err := w.sync.Open(uri, w.cfg.Server.LanguageID, text)
	if err != nil {
		return NewOperationError("open", uri, err)
	}
	w.docs[uri] = newDocument(doc, w.sync, w.cfg.Editor.UndoLimit)
	w.logger.Debug("document opened", zap.String("uri", uri), zap.Int("bytes", len(text)))
	return nil
}

func (w *Workspace) ensureSession(ctx context.Context) {
	switch w.session.State() {
	case lsp.StateNotStarted, lsp.StateStopped:
	default:
		return
	}
	if w.startErr != nil || w.session.IsDead() {
		return
	}
	if err := w.session.Start(ctx); err != nil {
		w.startErr = err
		w.logger.Error("language server unavailable, editing locally", zap.Error(err))
		return
	}
	w.signal()
}

func (w *Workspace) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Close closes a document. Closing the last document stops the server.
func (w *Workspace) Close(ctx context.Context, uri string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.document("close", uri); err != nil {
		return err
	}
	delete(w.docs, uri)
	for id, p := range w.pending {
		if p.uri == uri {
			delete(w.pending, id)
		}
	}
	if err := w.sync.Close(uri); err != nil {
		return NewOperationError("close", uri, err)
	}
	w.logger.Debug("document closed", zap.String("uri", uri))

	if len(w.docs) == 0 {
		return w.stopSession(ctx)
	}
	return nil
}

func (w *Workspace) stopSession(ctx context.Context) error {
	switch w.session.State() {
	case lsp.StateNotStarted, lsp.StateStopped:
		return nil
	}
	w.forgetRequests()
	if err := w.session.Stop(ctx); err != nil {
		return errors.Wrap(err, "stopping language server")
	}
	return nil
}

// forgetRequests drops every pending request. Ids restart with each server
// process. Callers hold w.mu.
func (w *Workspace) forgetRequests() {
	w.pending = make(map[int64]pendingRequest)
	w.completionID = -1
}

// Change replaces [start, end) of a document with text as one undoable
// step.
func (w *Workspace) Change(uri string, start, end buffer.ByteOffset, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("change", uri)
	if err != nil {
		return err
	}
	if start < 0 || end < start || end > d.Len() {
		return NewOperationError("change", uri,
			errors.Wrapf(ErrInvalidOperation, "range [%d:%d) outside document of %d bytes", start, end, d.Len()))
	}
	d.SetSelection(cursor.NewSelection(start, end))
	return w.execute("change", d, history.NewInsertCommand(d, text))
}

// SetSelection moves the caret, or selects [anchor, head).
func (w *Workspace) SetSelection(uri string, anchor, head buffer.ByteOffset) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("select", uri)
	if err != nil {
		return err
	}
	d.SetSelection(cursor.NewSelection(anchor, head))
	return nil
}

// Selection returns the caret and selection of a document.
func (w *Workspace) Selection(uri string) (cursor.Selection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("selection", uri)
	if err != nil {
		return cursor.Selection{}, err
	}
	return d.Selection(), nil
}

// Insert types text at the caret, replacing the selection. Typing a single
// character may request completion for the word before the caret.
func (w *Workspace) Insert(uri, text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("insert", uri)
	if err != nil {
		return err
	}
	if err := w.execute("insert", d, history.NewInsertCommand(d, text)); err != nil {
		return err
	}
	if utf8.RuneCountInString(text) == 1 {
		_, _ = w.requestCompletion(d, d.Selection().Head)
	}
	return nil
}

// Newline breaks the line at the caret and indents the new line by the
// brace depth. The break and the indent undo as one step. It returns the
// indent inserted.
func (w *Workspace) Newline(uri string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("newline", uri)
	if err != nil {
		return "", err
	}
	indent := d.indent(d.Selection().Head)
	err = d.history.Transaction("Newline", func() error {
		if err := d.history.Execute(history.NewInsertCommand(d, "\n"), d); err != nil {
			return err
		}
		if indent == "" {
			return nil
		}
		return d.history.Execute(history.NewInsertCommand(d, indent), d)
	})
	if err != nil {
		return "", NewOperationError("newline", uri, err)
	}
	return indent, nil
}

// Backspace deletes the character before the caret.
func (w *Workspace) Backspace(uri string) error {
	return w.delete("backspace", uri, history.Backward)
}

// Delete deletes the character after the caret.
func (w *Workspace) Delete(uri string) error {
	return w.delete("delete", uri, history.Forward)
}

func (w *Workspace) delete(op, uri string, dir history.Direction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document(op, uri)
	if err != nil {
		return err
	}
	return w.execute(op, d, history.NewDeleteCommand(d, dir))
}

// RemoveSelection deletes the selected text.
func (w *Workspace) RemoveSelection(uri string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("remove", uri)
	if err != nil {
		return err
	}
	return w.execute("remove", d, history.NewRemoveCommand(d))
}

func (w *Workspace) execute(op string, d *Document, cmd history.Command) error {
	if err := d.history.Execute(cmd, d); err != nil {
		return NewOperationError(op, d.uri, err)
	}
	return nil
}

// Undo reverts the last edit step of a document. The reverting edit is
// sent to the server like any other.
func (w *Workspace) Undo(uri string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("undo", uri)
	if err != nil {
		return err
	}
	if err := d.history.Undo(d); err != nil {
		return NewOperationError("undo", uri, err)
	}
	return nil
}

// Redo re-applies the last undone step of a document.
func (w *Workspace) Redo(uri string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("redo", uri)
	if err != nil {
		return err
	}
	if err := d.history.Redo(d); err != nil {
		return NewOperationError("redo", uri, err)
	}
	return nil
}

// BeginGroup starts collecting the edits of a document into one undo step.
func (w *Workspace) BeginGroup(uri, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("begin-group", uri)
	if err != nil {
		return err
	}
	d.history.BeginGroup(name)
	return nil
}

// EndGroup closes the undo group of a document.
func (w *Workspace) EndGroup(uri string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("end-group", uri)
	if err != nil {
		return err
	}
	d.history.EndGroup()
	return nil
}

// RequestCompletion asks the server for completions at offset when the word
// before offset is long enough. It reports whether a request was sent;
// results arrive through the OnCompletion callback.
func (w *Workspace) RequestCompletion(uri string, offset buffer.ByteOffset) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("complete", uri)
	if err != nil {
		return false, err
	}
	return w.requestCompletion(d, offset)
}

func (w *Workspace) requestCompletion(d *Document, offset buffer.ByteOffset) (bool, error) {
	prefix := lsp.WordPrefix(d.linePrefix(offset))
	if lsp.PrefixLength(prefix) < w.cfg.Editor.CompletionMinPrefix {
		return false, nil
	}
	id, err := w.session.Request(lsp.MethodCompletion, w.positionParams(d, offset))
	if err != nil {
		w.logger.Debug("completion not requested", zap.String("uri", d.uri), zap.Error(err))
		return false, NewOperationError("complete", d.uri, err)
	}
	w.pending[id] = pendingRequest{kind: requestCompletion, uri: d.uri, offset: offset, prefix: prefix}
	w.completionID = id
	return true, nil
}

// Tip answers a tooltip query at offset. A diagnostic covering offset is
// returned directly. Otherwise hover is requested and its text arrives
// through the OnHover callback.
func (w *Workspace) Tip(uri string, offset buffer.ByteOffset) (string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("tip", uri)
	if err != nil {
		return "", false, err
	}
	if msg, ok := w.diags.Lookup(uri, offset); ok {
		return msg, true, nil
	}
	id, err := w.session.Request(lsp.MethodHover, w.positionParams(d, offset))
	if err != nil {
		return "", false, NewOperationError("hover", uri, err)
	}
	w.pending[id] = pendingRequest{kind: requestHover, uri: uri, offset: offset}
	return "", false, nil
}

func (w *Workspace) positionParams(d *Document, offset buffer.ByteOffset) lsp.TextDocumentPositionParams {
	return lsp.TextDocumentPositionParams{
		TextDocument: lsp.TextDocumentIdentifier{URI: d.uri},
		Position:     lsp.OffsetToPosition(d.doc.Buffer, offset),
	}
}

// DiagnosticsFor returns the cached diagnostics of a document.
func (w *Workspace) DiagnosticsFor(uri string) []lsp.Diagnostic {
	return w.diags.For(uri)
}

// MatchBracket returns the bracket just before the caret of a document and
// its partner.
func (w *Workspace) MatchBracket(uri string) (bracket, partner buffer.ByteOffset, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, err := w.document("match-bracket", uri)
	if err != nil {
		return 0, 0, false
	}
	return d.MatchBracket()
}

// Pump handles whatever the server has sent without blocking: diagnostics
// are cached, responses are matched to their requests, and a crash is
// recovered from. It returns lsp.ErrServerUnavailable once the session is
// dead.
func (w *Workspace) Pump(ctx context.Context) error {
	w.mu.Lock()
	msgs, err := w.session.Poll(ctx)
	var fire []func()
	for _, m := range msgs {
		if f := w.handle(m); f != nil {
			fire = append(fire, f)
		}
	}
	w.mu.Unlock()

	for _, f := range fire {
		f()
	}
	return err
}

func (w *Workspace) handle(m *lsp.Message) func() {
	switch {
	case m.Method == lsp.MethodPublishDiagnostics:
		uri, diags, ok := w.sync.HandleDiagnostics(m.Params)
		if !ok {
			return nil
		}
		w.cbMu.RLock()
		fn := w.onDiagnostics
		w.cbMu.RUnlock()
		if fn == nil {
			return nil
		}
		return func() { fn(uri, diags) }

	case m.Method == "window/logMessage" || m.Method == "window/showMessage":
		w.logger.Info("server message",
			zap.String("method", m.Method),
			zap.String("message", gjson.GetBytes(m.Params, "message").String()))
		return nil

	case m.IsResponse():
		return w.handleResponse(m)

	default:
		w.logger.Debug("unhandled server message", zap.String("method", m.Method))
		return nil
	}
}

func (w *Workspace) handleResponse(m *lsp.Message) func() {
	id, ok := m.ID.Int()
	if !ok {
		return nil
	}
	p, ok := w.pending[id]
	if !ok {
		return nil
	}
	delete(w.pending, id)

	if m.Error != nil {
		w.logger.Warn("request failed", zap.Int64("id", id), zap.String("uri", p.uri), zap.Error(m.Error))
		return nil
	}

	w.cbMu.RLock()
	onCompletion, onHover := w.onCompletion, w.onHover
	w.cbMu.RUnlock()

	switch p.kind {
	case requestCompletion:
		if id != w.completionID {
			// superseded by a later request
			return nil
		}
		w.completionID = -1
		items := lsp.RankCompletion(p.prefix, lsp.ParseCompletion(m.Result))
		if onCompletion == nil {
			return nil
		}
		return func() { onCompletion(p.uri, p.prefix, items) }
	case requestHover:
		text := lsp.ParseHover(m.Result)
		if text == "" || onHover == nil {
			return nil
		}
		return func() { onHover(p.uri, p.offset, text) }
	}
	return nil
}

// Run pumps server output as it arrives until ctx is done or the
// workspace is shut down.
func (w *Workspace) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.session.Readable():
		case <-w.session.Exited():
		case <-w.wake:
		}

		w.mu.Lock()
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return nil
		}

		if err := w.Pump(ctx); err != nil {
			if errors.Is(err, lsp.ErrServerUnavailable) {
				w.logger.Warn("language server gone, diagnostics and completion stop", zap.Error(err))
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("pump failed", zap.Error(err))
		}
	}
}

// Shutdown closes every document and stops the server.
func (w *Workspace) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	defer w.signal()

	var errs error
	for uri := range w.docs {
		if err := w.sync.Close(uri); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	w.docs = make(map[string]*Document)
	if err := w.stopSession(ctx); err != nil {
		errs = errors.CombineErrors(errs, err)
	}
	w.logger.Info("workspace shut down")
	return errs
}
