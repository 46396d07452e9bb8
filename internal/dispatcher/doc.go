// Package dispatcher routes editor events to the components that act on them.
//
// Input never reaches a component through inheritance or by intercepting a
// widget callback. Instead every input is an Event: a named, abstract message
// such as "edit.insert" or "history.undo". The Router looks at the namespace
// prefix of the name and hands the event to whichever handler registered that
// namespace.
//
// # Routing
//
// Routing happens in two tiers:
//
//  1. Namespace handlers own every event under a prefix ("edit" owns
//     "edit.insert" and "edit.backspace").
//  2. Exact handlers are registered for one full event name and are tried
//     when no namespace handler accepts the event.
//
// A fallback handler, when set, receives everything else.
//
// # Dispatch
//
// When an event is dispatched:
//
//  1. Pre-dispatch hooks run and may cancel the event.
//  2. The router finds the handler.
//  3. The handler runs, with panic recovery when enabled.
//  4. Post-dispatch hooks observe the result.
//  5. Metrics are recorded when enabled.
//
// # Usage
//
//	router := dispatcher.NewRouter()
//
//	edit := dispatcher.NewBaseNamespaceHandler("edit")
//	edit.Register("edit.insert", func(ev dispatcher.Event) dispatcher.Result {
//	    return dispatcher.Success()
//	})
//	router.RegisterNamespace("edit", edit)
//
//	result := router.Dispatch(dispatcher.Event{Name: "edit.insert", URI: uri, Text: "x"})
package dispatcher
