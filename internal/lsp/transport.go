package lsp

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Process is the byte-stream view of a running language server.
type Process interface {
	io.Writer

	// ReadAvailable returns whatever output has arrived since the last call
	// without blocking.
	ReadAvailable() []byte

	// Ready fires when new output may be available.
	Ready() <-chan struct{}

	// Done is closed once the process has exited and its output is drained.
	Done() <-chan struct{}

	// Pid returns the operating system process id.
	Pid() int

	// Kill terminates the process.
	Kill() error
}

// Transport frames messages to and from one server process and correlates
// responses with the requests that caused them.
type Transport struct {
	proc   Process
	dec    *Decoder
	logger *zap.Logger

	mu        sync.Mutex
	nextID    int64
	pending   map[int64]string // id -> method
	unmatched int
}

// NewTransport creates a transport over proc.
func NewTransport(proc Process, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transport{
		proc:    proc,
		dec:     NewDecoder(),
		logger:  logger.With(zap.String("component", "transport")),
		pending: make(map[int64]string),
	}
}

// Request sends a request and returns its id, assigned sequentially from 0.
// The id is consumed even when the write fails; such a request is never
// entered in the pending table.
func (t *Transport) Request(method string, params any) (int64, error) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.mu.Unlock()

	m, err := NewRequest(id, method, params)
	if err != nil {
		return id, err
	}
	if err := t.write(m); err != nil {
		return id, err
	}

	t.mu.Lock()
	t.pending[id] = method
	t.mu.Unlock()

	t.logger.Debug("request sent", zap.Int64("id", id), zap.String("method", method))
	return id, nil
}

// Notify sends a notification.
func (t *Transport) Notify(method string, params any) error {
	m, err := NewNotification(method, params)
	if err != nil {
		return err
	}
	if err := t.write(m); err != nil {
		return err
	}
	t.logger.Debug("notification sent", zap.String("method", method))
	return nil
}

// Reply answers a server-initiated request.
func (t *Transport) Reply(id ID, result any) error {
	m, err := NewResponse(id, result)
	if err != nil {
		return err
	}
	return t.write(m)
}

func (t *Transport) write(m *Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	if _, err := t.proc.Write(data); err != nil {
		t.logger.Warn("write failed", zap.String("method", m.Method), zap.Error(err))
		return &TransportError{Op: WriteFailed, Method: m.Method, ID: m.ID, Err: err}
	}
	return nil
}

// Poll drains whatever the process has written and returns every complete
// message in arrival order. It never blocks.
//
// A response removes its id from the pending table. A response whose id was
// never issued, or was already answered, is logged and dropped. An
// ErrMalformed error is fatal for the session; messages decoded before the
// bad frame are still returned.
func (t *Transport) Poll() ([]*Message, error) {
	chunk := t.proc.ReadAvailable()
	if len(chunk) == 0 && len(t.dec.Residue()) == 0 {
		return nil, nil
	}

	msgs, err := t.dec.Feed(chunk)
	out := msgs[:0]
	for _, m := range msgs {
		if m.IsResponse() && !t.settle(m) {
			continue
		}
		out = append(out, m)
	}
	if err != nil {
		t.logger.Error("decode failed", zap.Error(err))
	}
	return out, err
}

// settle removes a response's id from the pending table and reports whether
// it was there. Responses that match nothing are counted.
func (t *Transport) settle(m *Message) bool {
	id, isInt := m.ID.Int()
	t.mu.Lock()
	_, ok := t.pending[id]
	if ok && isInt {
		delete(t.pending, id)
	} else {
		t.unmatched++
	}
	t.mu.Unlock()

	if !ok || !isInt {
		t.logger.Warn("response for unknown request", zap.Stringer("id", m.ID))
		return false
	}
	return true
}

// Wait blocks until at least one message is available, the process exits,
// or ctx is done. Output that arrived before an exit is returned first; a
// later call then reports ErrServerCrashed.
func (t *Transport) Wait(ctx context.Context) ([]*Message, error) {
	for {
		msgs, err := t.Poll()
		if err != nil || len(msgs) > 0 {
			return msgs, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.proc.Ready():
		case <-t.proc.Done():
			msgs, err := t.Poll()
			if err != nil || len(msgs) > 0 {
				return msgs, err
			}
			return nil, errors.WithStack(ErrServerCrashed)
		}
	}
}

// IsPending reports whether a request is still awaiting its response.
func (t *Transport) IsPending(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[id]
	return ok
}

// PendingCount returns the number of unanswered requests.
func (t *Transport) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Unmatched returns how many responses arrived for an id that was not
// pending. Each one is a protocol error on the server's side.
func (t *Transport) Unmatched() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unmatched
}

// Abandon forgets all pending requests; they will never be answered.
// It returns how many were dropped.
func (t *Transport) Abandon() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.pending)
	t.pending = make(map[int64]string)
	return n
}
