package app

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/dshills/lspsync/internal/dispatcher"
	"github.com/dshills/lspsync/internal/engine/history"
)

// Dispatch routes an input event to the workspace. ctx bounds any blocking
// work the event causes, such as starting the server on doc.open.
func (w *Workspace) Dispatch(ctx context.Context, ev dispatcher.Event) dispatcher.Result {
	w.dispatchMu.Lock()
	defer w.dispatchMu.Unlock()
	w.dispatchCtx = ctx
	defer func() { w.dispatchCtx = nil }()
	return w.router.Dispatch(ev)
}

func (w *Workspace) eventContext() context.Context {
	if w.dispatchCtx != nil {
		return w.dispatchCtx
	}
	return context.Background()
}

// registerHandlers registers the doc, edit, history and lsp namespaces.
func (w *Workspace) registerHandlers() {
	w.router.RegisterPreHook(&dispatcher.ValidationHook{ValidateFunc: func(ev *dispatcher.Event) bool {
		return ev.URI != "" || ev.Name == "lsp.pump" || ev.Name == "lsp.status"
	}})
	logging := dispatcher.NewLoggingHook(w.logger.Named("dispatch"))
	w.router.RegisterPreHook(logging)
	w.router.RegisterPostHook(logging)

	w.router.RegisterNamespace("doc", w.docHandler())
	w.router.RegisterNamespace("edit", w.editHandler())
	w.router.RegisterNamespace("history", w.historyHandler())
	w.router.RegisterNamespace("lsp", w.lspHandler())
}

func result(err error) dispatcher.Result {
	if err != nil {
		return dispatcher.Error(err)
	}
	return dispatcher.Success()
}

func (w *Workspace) docHandler() *dispatcher.BaseNamespaceHandler {
	h := dispatcher.NewBaseNamespaceHandler("doc")
	h.Register("doc.open", func(ev dispatcher.Event) dispatcher.Result {
		return result(w.Open(w.eventContext(), ev.URI, ev.Text))
	})
	h.Register("doc.close", func(ev dispatcher.Event) dispatcher.Result {
		return result(w.Close(w.eventContext(), ev.URI))
	})
	h.Register("doc.change", func(ev dispatcher.Event) dispatcher.Result {
		return result(w.Change(ev.URI, ev.Start, ev.End, ev.Text))
	})
	// An End of zero places the caret at Start.
	h.Register("doc.select", func(ev dispatcher.Event) dispatcher.Result {
		end := ev.End
		if end == 0 {
			end = ev.Start
		}
		return result(w.SetSelection(ev.URI, ev.Start, end))
	})
	h.Register("doc.text", func(ev dispatcher.Event) dispatcher.Result {
		d, ok := w.Document(ev.URI)
		if !ok {
			return dispatcher.Error(NewOperationError("text", ev.URI, ErrDocumentNotFound))
		}
		return dispatcher.SuccessWithData("text", d.Text()).WithData("version", d.Version())
	})
	return h
}

func (w *Workspace) editHandler() *dispatcher.BaseNamespaceHandler {
	h := dispatcher.NewBaseNamespaceHandler("edit")
	h.Register("edit.insert", func(ev dispatcher.Event) dispatcher.Result {
		return result(w.Insert(ev.URI, ev.Text))
	})
	h.Register("edit.newline", func(ev dispatcher.Event) dispatcher.Result {
		indent, err := w.Newline(ev.URI)
		if err != nil {
			return dispatcher.Error(err)
		}
		if indent == "" {
			return dispatcher.Success()
		}
		return dispatcher.SuccessWithMessage(fmt.Sprintf("indented %d", len(indent)/len(indentUnit)))
	})
	h.Register("edit.backspace", func(ev dispatcher.Event) dispatcher.Result {
		return result(w.Backspace(ev.URI))
	})
	h.Register("edit.delete", func(ev dispatcher.Event) dispatcher.Result {
		return result(w.Delete(ev.URI))
	})
	h.Register("edit.remove", func(ev dispatcher.Event) dispatcher.Result {
		return result(w.RemoveSelection(ev.URI))
	})
	return h
}

func (w *Workspace) historyHandler() *dispatcher.BaseNamespaceHandler {
	h := dispatcher.NewBaseNamespaceHandler("history")
	step := func(err error) dispatcher.Result {
		if errors.Is(err, history.ErrNothingToUndo) || errors.Is(err, history.ErrNothingToRedo) {
			return dispatcher.NoOpWithMessage(errors.UnwrapAll(err).Error())
		}
		return result(err)
	}
	h.Register("history.undo", func(ev dispatcher.Event) dispatcher.Result {
		return step(w.Undo(ev.URI))
	})
	h.Register("history.redo", func(ev dispatcher.Event) dispatcher.Result {
		return step(w.Redo(ev.URI))
	})
	h.Register("history.begin", func(ev dispatcher.Event) dispatcher.Result {
		return result(w.BeginGroup(ev.URI, ev.Text))
	})
	h.Register("history.end", func(ev dispatcher.Event) dispatcher.Result {
		return result(w.EndGroup(ev.URI))
	})
	return h
}

func (w *Workspace) lspHandler() *dispatcher.BaseNamespaceHandler {
	h := dispatcher.NewBaseNamespaceHandler("lsp")
	h.Register("lsp.complete", func(ev dispatcher.Event) dispatcher.Result {
		sent, err := w.RequestCompletion(ev.URI, ev.Start)
		if err != nil {
			return dispatcher.Error(err)
		}
		if !sent {
			return dispatcher.NoOpWithMessage("prefix too short")
		}
		return dispatcher.Async()
	})
	h.Register("lsp.tip", func(ev dispatcher.Event) dispatcher.Result {
		text, ok, err := w.Tip(ev.URI, ev.Start)
		if err != nil {
			return dispatcher.Error(err)
		}
		if ok {
			return dispatcher.SuccessWithData("text", text)
		}
		return dispatcher.Async()
	})
	h.Register("lsp.diagnostics", func(ev dispatcher.Event) dispatcher.Result {
		return dispatcher.SuccessWithData("diagnostics", w.DiagnosticsFor(ev.URI))
	})
	h.Register("lsp.bracket", func(ev dispatcher.Event) dispatcher.Result {
		bracket, partner, ok := w.MatchBracket(ev.URI)
		if !ok {
			return dispatcher.NoOp()
		}
		return dispatcher.SuccessWithData("bracket", bracket).WithData("partner", partner)
	})
	h.Register("lsp.status", func(ev dispatcher.Event) dispatcher.Result {
		s := w.session
		return dispatcher.SuccessWithData("state", s.State().String()).
			WithData("restarts", s.Restarts()).
			WithData("unmatched", s.UnmatchedResponses())
	})
	h.Register("lsp.pump", func(ev dispatcher.Event) dispatcher.Result {
		return result(w.Pump(w.eventContext()))
	})
	return h
}
