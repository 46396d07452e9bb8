package app

import (
	"strings"

	"github.com/dshills/lspsync/internal/engine/brackets"
	"github.com/dshills/lspsync/internal/engine/buffer"
	"github.com/dshills/lspsync/internal/engine/cursor"
	"github.com/dshills/lspsync/internal/engine/history"
	"github.com/dshills/lspsync/internal/lsp"
)

// indentUnit is one level of indentation.
const indentUnit = "    "

// Document is an open document of a Workspace. It is the history.Target
// every edit command runs against, so each buffer mutation, undo and redo
// included, passes through the sync engine exactly once.
type Document struct {
	uri      string
	doc      *lsp.Document
	sync     *lsp.SyncEngine
	history  *history.History
	brackets *brackets.Index
	sel      cursor.Selection
}

func newDocument(doc *lsp.Document, sync *lsp.SyncEngine, undoLimit int) *Document {
	return &Document{
		uri:      doc.URI,
		doc:      doc,
		sync:     sync,
		history:  history.New(undoLimit),
		brackets: brackets.New(doc.Buffer.Text()),
	}
}

// URI returns the document URI.
func (d *Document) URI() string { return d.uri }

// Text returns the current text.
func (d *Document) Text() string { return d.doc.Buffer.Text() }

// Version returns the last version sent to the server.
func (d *Document) Version() int32 { return d.doc.Version() }

// History returns the undo history.
func (d *Document) History() *history.History { return d.history }

// Replace implements history.Target.
func (d *Document) Replace(start, end buffer.ByteOffset, text string) error {
	buf := d.doc.Buffer
	first := buf.OffsetToPoint(start).Line
	last := buf.OffsetToPoint(end).Line

	if err := d.sync.Apply(d.uri, start, end, text); err != nil {
		return err
	}

	newLast := buf.OffsetToPoint(start + buffer.ByteOffset(len(text))).Line
	lines := make([]string, 0, newLast-first+1)
	for l := first; l <= newLast; l++ {
		lines = append(lines, buf.LineText(l))
	}
	d.brackets.Splice(first, last, lines)

	d.sel = d.sel.AfterEdit(buffer.NewRange(start, end), buffer.ByteOffset(len(text)))
	return nil
}

// TextRange implements history.Target.
func (d *Document) TextRange(start, end buffer.ByteOffset) string {
	return d.doc.Buffer.TextRange(start, end)
}

// Len implements history.Target.
func (d *Document) Len() buffer.ByteOffset { return d.doc.Buffer.Len() }

// Selection implements history.Target.
func (d *Document) Selection() cursor.Selection { return d.sel }

// SetSelection implements history.Target.
func (d *Document) SetSelection(sel cursor.Selection) {
	d.sel = sel.Clamp(d.Len())
}

// MatchBracket returns the offsets of the bracket just before the caret and
// of its partner.
func (d *Document) MatchBracket() (bracket, partner buffer.ByteOffset, ok bool) {
	buf := d.doc.Buffer
	p, b, ok := d.brackets.Match(buf.OffsetToPoint(d.sel.Head))
	if !ok {
		return 0, 0, false
	}
	bracket = buf.LineStartOffset(b.Line) + buffer.ByteOffset(b.Column)
	partner = buf.LineStartOffset(p.Line) + buffer.ByteOffset(p.Column)
	return bracket, partner, true
}

// linePrefix returns the text of offset's line up to offset.
func (d *Document) linePrefix(offset buffer.ByteOffset) string {
	buf := d.doc.Buffer
	line := buf.OffsetToPoint(offset).Line
	return buf.TextRange(buf.LineStartOffset(line), offset)
}

// indent returns the indentation of a line opened below offset's line: one
// unit per '{' still open at the end of that line.
func (d *Document) indent(offset buffer.ByteOffset) string {
	line := d.doc.Buffer.OffsetToPoint(offset).Line
	return strings.Repeat(indentUnit, d.brackets.Depth(line))
}
