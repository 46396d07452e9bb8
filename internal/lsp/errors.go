package lsp

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Standard errors returned by the LSP client.
var (
	// ErrIncomplete indicates the buffered bytes do not yet hold a whole
	// frame. The bytes must be kept for the next read.
	ErrIncomplete = errors.New("incomplete frame")

	// ErrMalformed indicates a frame that cannot be parsed. Byte alignment
	// with the server is lost, so the session is unusable.
	ErrMalformed = errors.New("malformed frame")

	// ErrWriteFailed indicates a message could not be written to the server.
	ErrWriteFailed = errors.New("write to server failed")

	// ErrSpawnFailed indicates the server process could not be launched.
	ErrSpawnFailed = errors.New("failed to spawn server")

	// ErrInitRejected indicates the server did not accept initialize.
	ErrInitRejected = errors.New("server rejected initialize")

	// ErrServerCrashed indicates the server process exited unexpectedly.
	ErrServerCrashed = errors.New("server crashed")

	// ErrServerUnavailable indicates the session is dead: the server crashed
	// and will not be restarted.
	ErrServerUnavailable = errors.New("server unavailable")

	// ErrNotReady indicates the session has not completed its handshake.
	ErrNotReady = errors.New("server not ready")

	// ErrDocumentNotOpen indicates the document is not open.
	ErrDocumentNotOpen = errors.New("document not open")

	// ErrDocumentAlreadyOpen indicates the document is already open.
	ErrDocumentAlreadyOpen = errors.New("document already open")
)

// FramingKind classifies a FramingError.
type FramingKind int

const (
	// Incomplete means more bytes are needed. Recoverable.
	Incomplete FramingKind = iota
	// Malformed means the stream cannot be decoded. Fatal for the session.
	Malformed
)

func (k FramingKind) String() string {
	if k == Malformed {
		return "malformed"
	}
	return "incomplete"
}

// FramingError reports a Frame Codec failure.
type FramingError struct {
	Kind   FramingKind
	Reason string
}

// Error implements the error interface.
func (e *FramingError) Error() string {
	return fmt.Sprintf("framing %s: %s", e.Kind, e.Reason)
}

// Unwrap returns ErrIncomplete or ErrMalformed.
func (e *FramingError) Unwrap() error {
	if e.Kind == Malformed {
		return ErrMalformed
	}
	return ErrIncomplete
}

func malformed(format string, args ...any) error {
	return &FramingError{Kind: Malformed, Reason: fmt.Sprintf(format, args...)}
}

// TransportOp names the transport operation that failed.
type TransportOp string

// WriteFailed is the only transport failure; reads cannot fail because the
// process output is drained into memory.
const WriteFailed TransportOp = "write"

// TransportError reports a message that could not be delivered. It is fatal
// for that message only.
type TransportError struct {
	Op     TransportOp
	Method string
	ID     *ID
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("transport %s %s (id %s): %v", e.Op, e.Method, e.ID, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Method, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error { return e.Err }

// Is matches ErrWriteFailed.
func (e *TransportError) Is(target error) bool { return target == ErrWriteFailed }

// LifecycleKind classifies a LifecycleError.
type LifecycleKind int

const (
	// SpawnFailed means the process could not be launched.
	SpawnFailed LifecycleKind = iota
	// InitRejected means the handshake did not complete.
	InitRejected
)

func (k LifecycleKind) String() string {
	if k == InitRejected {
		return "init rejected"
	}
	return "spawn failed"
}

// LifecycleError is a fatal handshake failure. No server features are
// available for the workspace afterwards.
type LifecycleError struct {
	Kind LifecycleKind
	Err  error
}

// Error implements the error interface.
func (e *LifecycleError) Error() string {
	return fmt.Sprintf("lifecycle %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LifecycleError) Unwrap() error { return e.Err }

// Is matches ErrSpawnFailed or ErrInitRejected according to Kind.
func (e *LifecycleError) Is(target error) bool {
	if e.Kind == InitRejected {
		return target == ErrInitRejected
	}
	return target == ErrSpawnFailed
}

// RPCError represents a JSON-RPC error from the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeServerNotInitialized = -32002
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
)
