package dispatcher

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Options configures a Router.
type Options struct {
	// RecoverFromPanic turns a panicking handler into an error result.
	RecoverFromPanic bool

	// EnableMetrics enables dispatch timing and statistics collection.
	EnableMetrics bool
}

// DefaultOptions returns the options used by NewRouter.
func DefaultOptions() Options {
	return Options{RecoverFromPanic: true}
}

// Router routes events to handlers using namespace prefixes.
// Namespaced lookup is O(1).
type Router struct {
	mu sync.RWMutex

	// Namespace handlers ("edit" handles "edit.*").
	namespaces map[string]NamespaceHandler

	// Exact-name handlers.
	exact map[string]Handler

	// Fallback handler for unmatched events.
	fallback Handler

	preHooks  []PreDispatchHook
	postHooks []PostDispatchHook

	opts    Options
	metrics *Metrics
}

// NewRouter creates a router with the default options.
func NewRouter() *Router {
	return NewRouterWithOptions(DefaultOptions())
}

// NewRouterWithOptions creates a router.
func NewRouterWithOptions(opts Options) *Router {
	r := &Router{
		namespaces: make(map[string]NamespaceHandler),
		exact:      make(map[string]Handler),
		opts:       opts,
	}
	if opts.EnableMetrics {
		r.metrics = NewMetrics()
	}
	return r
}

// RegisterNamespace registers a handler for all events in a namespace.
func (r *Router) RegisterNamespace(namespace string, h NamespaceHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.namespaces[namespace] = h
}

// UnregisterNamespace removes a namespace handler.
func (r *Router) UnregisterNamespace(namespace string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.namespaces, namespace)
}

// Register registers a handler for one full event name.
func (r *Router) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact[name] = h
}

// RegisterFunc registers a function for one full event name.
func (r *Router) RegisterFunc(name string, fn func(ev Event) Result) {
	r.Register(name, HandlerFunc(fn))
}

// Unregister removes an exact-name handler.
func (r *Router) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.exact, name)
}

// SetFallback sets the fallback handler for unmatched events.
func (r *Router) SetFallback(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

// RegisterPreHook registers a pre-dispatch hook.
func (r *Router) RegisterPreHook(h PreDispatchHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preHooks = append(r.preHooks, h)
}

// RegisterPostHook registers a post-dispatch hook.
func (r *Router) RegisterPostHook(h PostDispatchHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postHooks = append(r.postHooks, h)
}

// Route finds the handler for an event name.
// Returns nil if no handler is found.
func (r *Router) Route(name string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ns := extractNamespace(name); ns != "" {
		if h, ok := r.namespaces[ns]; ok && h.CanHandle(name) {
			return NewNamespaceAdapter(h)
		}
	}
	if h, ok := r.exact[name]; ok {
		return h
	}
	return r.fallback
}

// CanRoute returns true if the router can handle the event.
func (r *Router) CanRoute(name string) bool {
	return r.Route(name) != nil
}

// HasNamespace returns true if a handler is registered for the namespace.
func (r *Router) HasNamespace(namespace string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.namespaces[namespace]
	return ok
}

// Namespaces returns all registered namespace names, sorted.
func (r *Router) Namespaces() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.namespaces))
	for name := range r.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Metrics returns the metrics collector, or nil when disabled.
func (r *Router) Metrics() *Metrics {
	return r.metrics
}

// Dispatch runs an event through the hooks and its handler.
func (r *Router) Dispatch(ev Event) Result {
	start := time.Now()

	if ev.Name == "" {
		return Error(errors.WithStack(ErrInvalidEvent))
	}
	if !r.runPreHooks(&ev) {
		return CancelledWithMessage("cancelled by hook")
	}

	h := r.Route(ev.Name)
	if h == nil {
		return Error(errors.Wrapf(ErrNoHandler, "%s", ev.Name))
	}

	var result Result
	if r.opts.RecoverFromPanic {
		result = r.executeWithRecovery(h, ev)
	} else {
		result = h.Handle(ev)
	}

	r.runPostHooks(&ev, &result)

	if r.metrics != nil {
		r.metrics.RecordDispatch(ev.Name, time.Since(start), result.Status)
	}
	return result
}

// executeWithRecovery executes a handler with panic recovery.
func (r *Router) executeWithRecovery(h Handler, ev Event) (result Result) {
	defer func() {
		if p := recover(); p != nil {
			stack := make([]byte, 4096)
			n := runtime.Stack(stack, false)

			result = Error(errors.WithDetailf(
				errors.Wrapf(ErrPanic, "%s: %v", ev.Name, p),
				"%s", stack[:n]))

			if r.metrics != nil {
				r.metrics.RecordPanic(ev.Name)
			}
		}
	}()
	return h.Handle(ev)
}

func (r *Router) runPreHooks(ev *Event) bool {
	r.mu.RLock()
	hooks := make([]PreDispatchHook, len(r.preHooks))
	copy(hooks, r.preHooks)
	r.mu.RUnlock()

	for _, h := range hooks {
		if !h.PreDispatch(ev) {
			return false
		}
	}
	return true
}

func (r *Router) runPostHooks(ev *Event, result *Result) {
	r.mu.RLock()
	hooks := make([]PostDispatchHook, len(r.postHooks))
	copy(hooks, r.postHooks)
	r.mu.RUnlock()

	for _, h := range hooks {
		h.PostDispatch(ev, result)
	}
}
