package dispatcher

import "go.uber.org/zap"

// PreDispatchHook is called before an event is dispatched.
// Returning false cancels the dispatch.
type PreDispatchHook interface {
	// PreDispatch may modify the event. Returns false to cancel.
	PreDispatch(ev *Event) bool
}

// PostDispatchHook is called after an event is dispatched.
type PostDispatchHook interface {
	// PostDispatch may inspect or modify the result.
	PostDispatch(ev *Event, result *Result)
}

// PreDispatchFunc is a function adapter for PreDispatchHook.
type PreDispatchFunc func(ev *Event) bool

// PreDispatch implements PreDispatchHook.
func (f PreDispatchFunc) PreDispatch(ev *Event) bool {
	return f(ev)
}

// PostDispatchFunc is a function adapter for PostDispatchHook.
type PostDispatchFunc func(ev *Event, result *Result)

// PostDispatch implements PostDispatchHook.
func (f PostDispatchFunc) PostDispatch(ev *Event, result *Result) {
	f(ev, result)
}

// LoggingHook logs every dispatch at debug level, and failures at warn.
type LoggingHook struct {
	logger *zap.Logger
}

// NewLoggingHook creates a logging hook.
func NewLoggingHook(logger *zap.Logger) *LoggingHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingHook{logger: logger}
}

// PreDispatch logs the event being dispatched.
func (h *LoggingHook) PreDispatch(ev *Event) bool {
	h.logger.Debug("dispatching", zap.String("event", ev.Name), zap.String("uri", ev.URI))
	return true
}

// PostDispatch logs the dispatch result.
func (h *LoggingHook) PostDispatch(ev *Event, result *Result) {
	if result.IsError() {
		h.logger.Warn("dispatch failed", zap.String("event", ev.Name), zap.Error(result.Error))
		return
	}
	h.logger.Debug("dispatched", zap.String("event", ev.Name), zap.Stringer("status", result.Status))
}

// ValidationHook rejects events that fail a predicate.
type ValidationHook struct {
	// ValidateFunc returns true if the event is valid.
	ValidateFunc func(ev *Event) bool
}

// PreDispatch validates the event.
func (h *ValidationHook) PreDispatch(ev *Event) bool {
	if h.ValidateFunc != nil {
		return h.ValidateFunc(ev)
	}
	return true
}
