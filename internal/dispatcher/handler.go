package dispatcher

import "sync"

// Handler processes a specific event or set of events.
type Handler interface {
	// Handle executes the event and returns a result.
	Handle(ev Event) Result

	// CanHandle returns true if this handler can process the event.
	CanHandle(name string) bool
}

// HandlerFunc is a function adapter for the Handler interface. It accepts
// every event; the caller must route correctly.
type HandlerFunc func(ev Event) Result

// Handle implements Handler.
func (f HandlerFunc) Handle(ev Event) Result {
	if f == nil {
		return Errorf("handler function is nil")
	}
	return f(ev)
}

// CanHandle implements Handler.
func (f HandlerFunc) CanHandle(string) bool { return true }

// NamespaceHandler handles all events within a namespace.
// A namespace is the prefix before the first dot (e.g., "edit" in "edit.insert").
type NamespaceHandler interface {
	// HandleEvent handles an event within this namespace.
	HandleEvent(ev Event) Result

	// CanHandle returns true if this handler can process the event.
	CanHandle(name string) bool

	// Namespace returns the namespace prefix.
	Namespace() string
}

// namespaceAdapter adapts NamespaceHandler to Handler.
type namespaceAdapter struct {
	h NamespaceHandler
}

// NewNamespaceAdapter creates a Handler from a NamespaceHandler.
func NewNamespaceAdapter(h NamespaceHandler) Handler {
	return &namespaceAdapter{h: h}
}

func (a *namespaceAdapter) Handle(ev Event) Result    { return a.h.HandleEvent(ev) }
func (a *namespaceAdapter) CanHandle(name string) bool { return a.h.CanHandle(name) }

// BaseNamespaceHandler is a NamespaceHandler backed by a table of functions.
type BaseNamespaceHandler struct {
	namespace string

	mu      sync.RWMutex
	actions map[string]func(ev Event) Result
}

// NewBaseNamespaceHandler creates a new BaseNamespaceHandler.
func NewBaseNamespaceHandler(namespace string) *BaseNamespaceHandler {
	return &BaseNamespaceHandler{
		namespace: namespace,
		actions:   make(map[string]func(ev Event) Result),
	}
}

// Register registers a handler function for a full event name.
func (h *BaseNamespaceHandler) Register(name string, fn func(ev Event) Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.actions[name] = fn
}

// Namespace implements NamespaceHandler.
func (h *BaseNamespaceHandler) Namespace() string {
	return h.namespace
}

// CanHandle implements NamespaceHandler.
func (h *BaseNamespaceHandler) CanHandle(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.actions[name]
	return ok
}

// HandleEvent implements NamespaceHandler.
func (h *BaseNamespaceHandler) HandleEvent(ev Event) Result {
	h.mu.RLock()
	fn, ok := h.actions[ev.Name]
	h.mu.RUnlock()
	if !ok {
		return Errorf("unknown event in namespace %s: %s", h.namespace, ev.Name)
	}
	return fn(ev)
}
