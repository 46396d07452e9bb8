package lsp

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/dshills/lspsync/internal/engine/buffer"
)

// Document is a text buffer open in a Session.
type Document struct {
	URI        string
	LanguageID string
	Buffer     *buffer.Buffer

	// version is the last version sent to the server.
	version int32
	// announced is set once didOpen reached the server.
	announced bool
	// stale is set after a change failed to reach the server; the next
	// change is sent as the full text.
	stale bool
}

// Version returns the last version sent to the server.
func (d *Document) Version() int32 { return d.version }

// Stale reports whether the server may have missed a change.
func (d *Document) Stale() bool { return d.stale }

// SyncEngine keeps the server's copy of every open document equal to the
// local buffer. Every local mutation goes through Apply, which sends exactly
// one didChange per mutation, in mutation order.
type SyncEngine struct {
	session *Session
	diags   *DiagnosticsCache
	logger  *zap.Logger

	mu    sync.Mutex
	docs  map[string]*Document
	order []string
}

// NewSyncEngine creates an engine that sends through session and clears
// diags on every edit.
func NewSyncEngine(session *Session, diags *DiagnosticsCache, logger *zap.Logger) *SyncEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if diags == nil {
		diags = NewDiagnosticsCache()
	}
	return &SyncEngine{
		session: session,
		diags:   diags,
		logger:  logger.With(zap.String("component", "sync")),
		docs:    make(map[string]*Document),
	}
}

// Diagnostics returns the cache the engine maintains.
func (e *SyncEngine) Diagnostics() *DiagnosticsCache { return e.diags }

// Document returns an open document.
func (e *SyncEngine) Document(uri string) (*Document, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.docs[uri]
	return d, ok
}

// URIs returns the open documents in the order they were opened.
func (e *SyncEngine) URIs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.order...)
}

// Len returns the number of open documents.
func (e *SyncEngine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.docs)
}

// Open creates a document at version 0 and announces it with didOpen.
// The document is usable locally even when the server is not.
func (e *SyncEngine) Open(uri, languageID, text string) (*Document, error) {
	e.mu.Lock()
	if _, ok := e.docs[uri]; ok {
		e.mu.Unlock()
		return nil, errors.Wrap(ErrDocumentAlreadyOpen, uri)
	}
	doc := &Document{
		URI:        uri,
		LanguageID: languageID,
		Buffer:     buffer.NewBufferFromString(text),
	}
	e.docs[uri] = doc
	e.order = append(e.order, uri)
	e.mu.Unlock()

	e.announce(doc)
	return doc, nil
}

// announce sends didOpen with the document's current version and text.
func (e *SyncEngine) announce(doc *Document) bool {
	err := e.session.Notify(MethodDidOpen, DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        doc.URI,
			LanguageID: doc.LanguageID,
			Version:    doc.version,
			Text:       doc.Buffer.Text(),
		},
	})
	if err != nil {
		e.logger.Debug("didOpen not sent", zap.String("uri", doc.URI), zap.Error(err))
		return false
	}
	doc.announced = true
	doc.stale = false
	return true
}

// Close sends didClose and forgets the document.
func (e *SyncEngine) Close(uri string) error {
	e.mu.Lock()
	doc, ok := e.docs[uri]
	if !ok {
		e.mu.Unlock()
		return errors.Wrap(ErrDocumentNotOpen, uri)
	}
	delete(e.docs, uri)
	for i, u := range e.order {
		if u == uri {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	e.diags.Clear(uri)
	if doc.announced {
		err := e.session.Notify(MethodDidClose, DidCloseTextDocumentParams{
			TextDocument: TextDocumentIdentifier{URI: uri},
		})
		if err != nil {
			e.logger.Debug("didClose not sent", zap.String("uri", uri), zap.Error(err))
		}
	}
	return nil
}

// Apply replaces [start, end) of the document with text and notifies the
// server. The protocol range is computed against the text as it was before
// the replacement. Cached diagnostics of the document are cleared whatever
// the edit.
//
// Errors are returned only for an unknown document or an invalid range.
// Server problems never fail a local edit.
func (e *SyncEngine) Apply(uri string, start, end buffer.ByteOffset, text string) error {
	doc, ok := e.Document(uri)
	if !ok {
		return errors.Wrap(ErrDocumentNotOpen, uri)
	}

	r := OffsetRangeToRange(doc.Buffer, start, end)
	if _, err := doc.Buffer.Replace(start, end, text); err != nil {
		return errors.Wrapf(err, "apply %s [%d:%d)", uri, start, end)
	}
	e.diags.Clear(uri)

	switch {
	case !doc.announced:
		e.announce(doc)
	case doc.stale:
		e.sendChange(doc, TextDocumentContentChangeEvent{Text: doc.Buffer.Text()})
	default:
		e.sendChange(doc, TextDocumentContentChangeEvent{Range: &r, Text: text})
	}
	return nil
}

// sendChange sends one didChange at the next version. The version only
// advances when the notification was written.
func (e *SyncEngine) sendChange(doc *Document, change TextDocumentContentChangeEvent) bool {
	version := doc.version + 1
	err := e.session.Notify(MethodDidChange, DidChangeTextDocumentParams{
		TextDocument:   VersionedTextDocumentIdentifier{URI: doc.URI, Version: version},
		ContentChanges: []TextDocumentContentChangeEvent{change},
	})
	if err != nil {
		if errors.Is(err, ErrWriteFailed) {
			e.logger.Warn("didChange lost, will resync", zap.String("uri", doc.URI), zap.Error(err))
			doc.stale = true
		} else {
			e.logger.Debug("didChange not sent", zap.String("uri", doc.URI), zap.Error(err))
			doc.announced = false
		}
		return false
	}
	doc.version = version
	doc.stale = false
	return true
}

// Resync re-establishes every open document on a freshly started server:
// didOpen with the current version and text, then a full-text didChange at
// the next version. It is registered as a Session restart hook.
func (e *SyncEngine) Resync(ctx context.Context) error {
	var errs error
	for _, uri := range e.URIs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, ok := e.Document(uri)
		if !ok {
			continue
		}
		e.diags.Clear(uri)
		if !e.announce(doc) {
			errs = errors.CombineErrors(errs, errors.Newf("resync %s: didOpen failed", uri))
			continue
		}
		if !e.sendChange(doc, TextDocumentContentChangeEvent{Text: doc.Buffer.Text()}) {
			errs = errors.CombineErrors(errs, errors.Newf("resync %s: didChange failed", uri))
			continue
		}
		e.logger.Debug("document resynchronized", zap.String("uri", uri), zap.Int32("version", doc.version))
	}
	return errs
}

// HandleDiagnostics applies a publishDiagnostics payload to the cache and
// returns the converted diagnostics. Pushes for unknown documents, or for a
// version other than the current one, are ignored.
func (e *SyncEngine) HandleDiagnostics(params []byte) (string, []Diagnostic, bool) {
	pub, ok := ParsePublishDiagnostics(params)
	if !ok {
		e.logger.Warn("malformed publishDiagnostics")
		return "", nil, false
	}
	doc, ok := e.Document(pub.URI)
	if !ok {
		return pub.URI, nil, false
	}
	if pub.HasVersion && pub.Version != doc.version {
		e.logger.Debug("stale diagnostics ignored",
			zap.String("uri", pub.URI),
			zap.Int32("pushed", pub.Version),
			zap.Int32("current", doc.version))
		return pub.URI, nil, false
	}
	diags := ConvertDiagnostics(doc.Buffer, pub.Items)
	e.diags.Apply(pub.URI, diags)
	return pub.URI, diags, true
}
