package app

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Workspace errors.
var (
	// ErrWorkspaceClosed indicates the workspace was shut down.
	ErrWorkspaceClosed = errors.New("workspace closed")

	// ErrDocumentNotFound indicates a document is not open in the workspace.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrEditorRunning indicates Editor.Run was called while already running.
	ErrEditorRunning = errors.New("editor already running")

	// ErrInvalidOperation indicates an operation that cannot be performed.
	ErrInvalidOperation = errors.New("invalid operation")
)

// OperationError represents an error that occurred during a specific
// operation on a document.
type OperationError struct {
	Op  string // operation name, e.g. "insert", "undo"
	URI string // document the operation targeted
	Err error
}

// NewOperationError creates a new OperationError.
func NewOperationError(op, uri string, err error) *OperationError {
	return &OperationError{Op: op, URI: uri, Err: err}
}

func (e *OperationError) Error() string {
	if e.URI == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URI, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
