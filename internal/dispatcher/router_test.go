package dispatcher_test

import (
	"errors"
	"testing"

	"github.com/dshills/lspsync/internal/dispatcher"
)

func editNamespace(calls *[]string) *dispatcher.BaseNamespaceHandler {
	h := dispatcher.NewBaseNamespaceHandler("edit")
	h.Register("edit.insert", func(ev dispatcher.Event) dispatcher.Result {
		*calls = append(*calls, "insert:"+ev.Text)
		return dispatcher.Success()
	})
	h.Register("edit.boom", func(ev dispatcher.Event) dispatcher.Result {
		panic("kaboom")
	})
	return h
}

func TestRouter_RegisterNamespace(t *testing.T) {
	router := dispatcher.NewRouter()
	var calls []string
	router.RegisterNamespace("edit", editNamespace(&calls))

	if !router.HasNamespace("edit") {
		t.Error("expected HasNamespace('edit') to return true")
	}

	router.UnregisterNamespace("edit")
	if router.HasNamespace("edit") {
		t.Error("expected HasNamespace('edit') to return false after unregister")
	}
}

func TestRouter_DispatchNamespace(t *testing.T) {
	router := dispatcher.NewRouter()
	var calls []string
	router.RegisterNamespace("edit", editNamespace(&calls))

	result := router.Dispatch(dispatcher.Event{Name: "edit.insert", Text: "x"})
	if !result.IsOK() {
		t.Fatalf("expected ok, got %s (%v)", result.Status, result.Error)
	}
	if len(calls) != 1 || calls[0] != "insert:x" {
		t.Errorf("unexpected calls %v", calls)
	}
}

func TestRouter_DispatchUnknown(t *testing.T) {
	router := dispatcher.NewRouter()
	var calls []string
	router.RegisterNamespace("edit", editNamespace(&calls))

	for _, name := range []string{"edit.unknown", "nothing.here", "plain"} {
		result := router.Dispatch(dispatcher.Event{Name: name})
		if !result.IsError() || !errors.Is(result.Error, dispatcher.ErrNoHandler) {
			t.Errorf("%s: expected ErrNoHandler, got %s (%v)", name, result.Status, result.Error)
		}
	}

	result := router.Dispatch(dispatcher.Event{})
	if !errors.Is(result.Error, dispatcher.ErrInvalidEvent) {
		t.Errorf("expected ErrInvalidEvent for empty name, got %v", result.Error)
	}
}

func TestRouter_ExactAndFallback(t *testing.T) {
	router := dispatcher.NewRouter()
	router.RegisterFunc("lsp.tip", func(ev dispatcher.Event) dispatcher.Result {
		return dispatcher.SuccessWithData("uri", ev.URI)
	})
	router.SetFallback(dispatcher.HandlerFunc(func(ev dispatcher.Event) dispatcher.Result {
		return dispatcher.NoOpWithMessage("fallback")
	}))

	result := router.Dispatch(dispatcher.Event{Name: "lsp.tip", URI: "file:///a"})
	if got := result.GetDataString("uri"); got != "file:///a" {
		t.Errorf("expected uri data, got %q", got)
	}

	result = router.Dispatch(dispatcher.Event{Name: "other.thing"})
	if result.Status != dispatcher.StatusNoOp || result.Message != "fallback" {
		t.Errorf("expected fallback no-op, got %s %q", result.Status, result.Message)
	}

	router.Unregister("lsp.tip")
	result = router.Dispatch(dispatcher.Event{Name: "lsp.tip"})
	if result.Message != "fallback" {
		t.Errorf("expected fallback after unregister, got %q", result.Message)
	}
}

func TestRouter_NamespacePreferredOverExact(t *testing.T) {
	router := dispatcher.NewRouter()
	var calls []string
	router.RegisterNamespace("edit", editNamespace(&calls))
	router.RegisterFunc("edit.insert", func(ev dispatcher.Event) dispatcher.Result {
		return dispatcher.Errorf("exact handler should not run")
	})

	if result := router.Dispatch(dispatcher.Event{Name: "edit.insert"}); !result.IsOK() {
		t.Errorf("expected namespace handler to win, got %v", result.Error)
	}
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	router := dispatcher.NewRouterWithOptions(dispatcher.Options{RecoverFromPanic: true, EnableMetrics: true})
	var calls []string
	router.RegisterNamespace("edit", editNamespace(&calls))

	result := router.Dispatch(dispatcher.Event{Name: "edit.boom"})
	if !result.IsError() || !errors.Is(result.Error, dispatcher.ErrPanic) {
		t.Fatalf("expected ErrPanic, got %s (%v)", result.Status, result.Error)
	}
	if got := router.Metrics().Snapshot().TotalPanics; got != 1 {
		t.Errorf("expected 1 panic recorded, got %d", got)
	}
}

func TestRouter_Hooks(t *testing.T) {
	router := dispatcher.NewRouter()
	var calls []string
	router.RegisterNamespace("edit", editNamespace(&calls))

	router.RegisterPreHook(&dispatcher.ValidationHook{ValidateFunc: func(ev *dispatcher.Event) bool {
		return ev.URI != ""
	}})
	router.RegisterPreHook(dispatcher.PreDispatchFunc(func(ev *dispatcher.Event) bool {
		ev.Text = "[" + ev.Text + "]"
		return true
	}))

	var seen []dispatcher.ResultStatus
	router.RegisterPostHook(dispatcher.PostDispatchFunc(func(ev *dispatcher.Event, result *dispatcher.Result) {
		seen = append(seen, result.Status)
	}))
	router.RegisterPostHook(dispatcher.NewLoggingHook(nil))

	result := router.Dispatch(dispatcher.Event{Name: "edit.insert", Text: "a"})
	if result.Status != dispatcher.StatusCancelled || !errors.Is(result.Error, dispatcher.ErrEventCancelled) {
		t.Errorf("expected cancelled, got %s", result.Status)
	}

	router.Dispatch(dispatcher.Event{Name: "edit.insert", URI: "file:///a", Text: "a"})
	if len(calls) != 1 || calls[0] != "insert:[a]" {
		t.Errorf("pre hook did not rewrite the event: %v", calls)
	}
	if len(seen) != 1 || seen[0] != dispatcher.StatusOK {
		t.Errorf("post hook saw %v", seen)
	}
}

func TestRouter_Namespaces(t *testing.T) {
	router := dispatcher.NewRouter()
	for _, ns := range []string{"lsp", "edit", "history"} {
		router.RegisterNamespace(ns, dispatcher.NewBaseNamespaceHandler(ns))
	}

	got := router.Namespaces()
	want := []string{"edit", "history", "lsp"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}

	if router.CanRoute("edit.insert") {
		t.Error("empty namespace handler should not accept edit.insert")
	}
}

func TestEvent_Helpers(t *testing.T) {
	ev := dispatcher.Event{
		Name: "history.undo",
		Args: map[string]any{"count": float64(3), "label": "x"},
	}

	if ev.Namespace() != "history" || ev.Action() != "undo" {
		t.Errorf("unexpected split %q %q", ev.Namespace(), ev.Action())
	}
	if ev.ArgInt("count") != 3 {
		t.Errorf("expected count 3, got %d", ev.ArgInt("count"))
	}
	if ev.ArgString("label") != "x" || ev.ArgString("missing") != "" {
		t.Error("unexpected string args")
	}
	if got := dispatcher.BuildActionName("edit", "insert"); got != "edit.insert" {
		t.Errorf("BuildActionName = %q", got)
	}
	if got := dispatcher.ExtractActionName("plain"); got != "plain" {
		t.Errorf("ExtractActionName = %q", got)
	}
}
