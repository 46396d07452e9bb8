package dispatcher

import "github.com/cockroachdb/errors"

// Dispatcher errors.
var (
	// ErrNoHandler indicates no handler was found for an event.
	ErrNoHandler = errors.New("dispatcher: no handler for event")

	// ErrEventCancelled indicates the event was cancelled by a hook.
	ErrEventCancelled = errors.New("dispatcher: event cancelled by hook")

	// ErrPanic indicates the handler panicked.
	ErrPanic = errors.New("dispatcher: handler panic")

	// ErrInvalidEvent indicates the event is invalid.
	ErrInvalidEvent = errors.New("dispatcher: invalid event")
)
