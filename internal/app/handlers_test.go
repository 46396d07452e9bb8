package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lspsync/internal/dispatcher"
)

func TestWorkspace_Dispatch(t *testing.T) {
	sp := &fakeSpawner{t: t}
	w := newTestWorkspace(t, sp)
	ctx := context.Background()
	dispatch := func(ev dispatcher.Event) dispatcher.Result {
		t.Helper()
		return w.Dispatch(ctx, ev)
	}

	res := dispatch(dispatcher.Event{Name: "doc.open", URI: mainURI, Text: "ab"})
	require.True(t, res.IsOK(), "open: %v", res.Error)
	res = dispatch(dispatcher.Event{Name: "doc.select", URI: mainURI, Start: 2})
	require.True(t, res.IsOK())
	sel, err := w.Selection(mainURI)
	require.NoError(t, err)
	assert.True(t, sel.IsEmpty())
	assert.Equal(t, int64(2), sel.Head)

	res = dispatch(dispatcher.Event{Name: "edit.insert", URI: mainURI, Text: "c"})
	require.True(t, res.IsOK())
	res = dispatch(dispatcher.Event{Name: "history.undo", URI: mainURI})
	require.True(t, res.IsOK())
	res = dispatch(dispatcher.Event{Name: "history.undo", URI: mainURI})
	assert.Equal(t, dispatcher.StatusNoOp, res.Status)
	res = dispatch(dispatcher.Event{Name: "history.redo", URI: mainURI})
	require.True(t, res.IsOK())

	res = dispatch(dispatcher.Event{Name: "doc.text", URI: mainURI})
	require.True(t, res.IsOK())
	assert.Equal(t, "abc", res.GetDataString("text"))
	version, ok := res.GetData("version")
	require.True(t, ok)
	assert.Equal(t, int32(3), version)

	res = dispatch(dispatcher.Event{Name: "doc.select", URI: mainURI, Start: 3})
	require.True(t, res.IsOK())
	res = dispatch(dispatcher.Event{Name: "edit.newline", URI: mainURI})
	require.True(t, res.IsOK())
	assert.Empty(t, res.Message)
	res = dispatch(dispatcher.Event{Name: "edit.insert", URI: mainURI, Text: "{"})
	require.True(t, res.IsOK())
	res = dispatch(dispatcher.Event{Name: "edit.newline", URI: mainURI})
	require.True(t, res.IsOK())
	assert.Equal(t, "indented 1", res.Message)
	assert.Equal(t, "abc\n{\n    ", documentText(t, w, mainURI))

	res = dispatch(dispatcher.Event{Name: "lsp.status"})
	require.True(t, res.IsOK())
	assert.Equal(t, "ready", res.GetDataString("state"))
	restarts, _ := res.GetData("restarts")
	assert.Equal(t, 0, restarts)
	unmatched, _ := res.GetData("unmatched")
	assert.Equal(t, 0, unmatched)

	res = dispatch(dispatcher.Event{Name: "search.find", URI: mainURI})
	assert.True(t, res.IsError())
	assert.ErrorIs(t, res.Error, dispatcher.ErrNoHandler)

	res = dispatch(dispatcher.Event{Name: "edit.insert", Text: "x"})
	assert.Equal(t, dispatcher.StatusCancelled, res.Status)

	res = dispatch(dispatcher.Event{Name: "edit.insert", URI: "file:///missing.rs", Text: "x"})
	assert.True(t, res.IsError())
	assert.ErrorIs(t, res.Error, ErrDocumentNotFound)

	stats := w.Router().Metrics().EventStats("edit.insert")
	require.NotNil(t, stats)
	assert.Equal(t, uint64(3), stats.DispatchCount)
	assert.Equal(t, uint64(1), stats.ErrorCount)
}

func documentText(t *testing.T, w *Workspace, uri string) string {
	t.Helper()
	d, ok := w.Document(uri)
	require.True(t, ok)
	return d.Text()
}

func TestWorkspace_DispatchQueries(t *testing.T) {
	sp := &fakeSpawner{t: t, prepare: func(f *fakeServer) {
		f.onOpen = diagnosticsOnOpen(mainURI, 0)
		f.setResult("textDocument/completion", []any{map[string]any{"label": "main"}})
	}}
	w := newTestWorkspace(t, sp)
	ctx := context.Background()

	res := w.Dispatch(ctx, dispatcher.Event{Name: "doc.open", URI: mainURI, Text: "fn main() {}\n"})
	require.True(t, res.IsOK())
	res = w.Dispatch(ctx, dispatcher.Event{Name: "lsp.pump"})
	require.True(t, res.IsOK())

	res = w.Dispatch(ctx, dispatcher.Event{Name: "lsp.tip", URI: mainURI, Start: 4})
	require.True(t, res.IsOK())
	assert.Equal(t, "unused function", res.GetDataString("text"))

	res = w.Dispatch(ctx, dispatcher.Event{Name: "lsp.tip", URI: mainURI, Start: 0})
	assert.Equal(t, dispatcher.StatusAsync, res.Status)

	res = w.Dispatch(ctx, dispatcher.Event{Name: "lsp.diagnostics", URI: mainURI})
	require.True(t, res.IsOK())
	diags, ok := res.GetData("diagnostics")
	require.True(t, ok)
	assert.NotEmpty(t, diags)

	res = w.Dispatch(ctx, dispatcher.Event{Name: "lsp.complete", URI: mainURI, Start: 1})
	assert.Equal(t, dispatcher.StatusNoOp, res.Status)
	res = w.Dispatch(ctx, dispatcher.Event{Name: "lsp.complete", URI: mainURI, Start: 7})
	assert.Equal(t, dispatcher.StatusAsync, res.Status)

	res = w.Dispatch(ctx, dispatcher.Event{Name: "doc.select", URI: mainURI, Start: 12})
	require.True(t, res.IsOK())
	res = w.Dispatch(ctx, dispatcher.Event{Name: "lsp.bracket", URI: mainURI})
	require.True(t, res.IsOK())
	bracket, _ := res.GetData("bracket")
	partner, _ := res.GetData("partner")
	assert.Equal(t, int64(11), bracket)
	assert.Equal(t, int64(10), partner)

	res = w.Dispatch(ctx, dispatcher.Event{Name: "doc.select", URI: mainURI, Start: 2})
	require.True(t, res.IsOK())
	res = w.Dispatch(ctx, dispatcher.Event{Name: "lsp.bracket", URI: mainURI})
	assert.Equal(t, dispatcher.StatusNoOp, res.Status)

	res = w.Dispatch(ctx, dispatcher.Event{Name: "doc.close", URI: mainURI})
	require.True(t, res.IsOK())
	assert.Empty(t, w.URIs())
}
