package lsp

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Session.
type State int

const (
	// StateNotStarted means no server process is attached.
	StateNotStarted State = iota
	// StateInitializing means initialize was sent and its response is awaited.
	StateInitializing
	// StateAwaitingCapabilities means initialized was sent and capability
	// registration is awaited.
	StateAwaitingCapabilities
	// StateReady means the handshake is complete.
	StateReady
	// StateTerminating means shutdown and exit were sent.
	StateTerminating
	// StateStopped means the server exited after a requested shutdown.
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateInitializing:
		return "initializing"
	case StateAwaitingCapabilities:
		return "awaiting-capabilities"
	case StateReady:
		return "ready"
	case StateTerminating:
		return "terminating"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// ServerConfig describes how to launch a language server.
type ServerConfig struct {
	Command    string
	Args       []string
	Env        map[string]string
	Dir        string
	LanguageID string
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Server  ServerConfig
	RootURI string

	// KeepAlive restarts the server after an unexpected exit.
	KeepAlive bool

	// MaxRestarts bounds crash recovery over the session's lifetime.
	MaxRestarts int

	// WaitForRegistration holds Start until client/registerCapability
	// arrives. Servers that never register capabilities need it off.
	WaitForRegistration bool

	// ShutdownTimeout is how long Stop waits for the process to exit after
	// exit is sent before killing it.
	ShutdownTimeout time.Duration
}

// DefaultSessionConfig returns a configuration with the default settings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Server:              ServerConfig{Command: "rust-analyzer", LanguageID: "rust"},
		KeepAlive:           true,
		MaxRestarts:         5,
		WaitForRegistration: true,
		ShutdownTimeout:     5 * time.Second,
	}
}

// SpawnFunc launches a server process.
type SpawnFunc func(ctx context.Context, cfg ServerConfig) (Process, error)

// RestartHook runs after the server has been restarted and is Ready.
type RestartHook func(ctx context.Context) error

// Session is one server process bound to one workspace root. It drives the
// handshake, shutdown, and restart-on-crash state machine.
type Session struct {
	id     string
	cfg    SessionConfig
	spawn  SpawnFunc
	logger *zap.Logger

	mu        sync.Mutex
	state     State
	proc      Process
	transport *Transport
	restarts  int
	unmatched int // from transports already detached
	dead      bool
	backlog   []*Message
	hooks     []RestartHook
}

// NewSession creates a session. The server is not launched until Start.
func NewSession(cfg SessionConfig, spawn SpawnFunc, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		id:     id,
		cfg:    cfg,
		spawn:  spawn,
		logger: logger.With(zap.String("component", "session"), zap.String("session", id)),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Config returns the session configuration.
func (s *Session) Config() SessionConfig { return s.cfg }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsReady reports whether the handshake has completed.
func (s *Session) IsReady() bool { return s.State() == StateReady }

// IsDead reports whether the session gave up on its server.
func (s *Session) IsDead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dead
}

// Restarts returns how many times the server has been restarted.
func (s *Session) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// UnmatchedResponses returns how many responses, across every server this
// session has run, carried an id no request was waiting for.
func (s *Session) UnmatchedResponses() int {
	s.mu.Lock()
	n, t := s.unmatched, s.transport
	s.mu.Unlock()
	if t != nil {
		n += t.Unmatched()
	}
	return n
}

// OnRestart registers a hook run after every successful restart.
func (s *Session) OnRestart(hook RestartHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	old := s.state
	s.state = st
	s.mu.Unlock()
	if old != st {
		s.logger.Debug("state change", zap.Stringer("from", old), zap.Stringer("to", st))
	}
}

// Readable fires when the server may have written output. It is nil, and so
// never fires in a select, while no process is attached.
func (s *Session) Readable() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return nil
	}
	return s.proc.Ready()
}

// Exited is closed when the attached process exits. It is nil while no
// process is attached.
func (s *Session) Exited() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return nil
	}
	return s.proc.Done()
}

// Start launches the server and performs the handshake: initialize, wait for
// its response, initialized, and wait for capability registration. Messages
// unrelated to the handshake are kept and returned by the next Poll.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return errors.WithStack(ErrServerUnavailable)
	}
	if s.state != StateNotStarted && s.state != StateStopped {
		st := s.state
		s.mu.Unlock()
		return errors.Newf("start: session is %s", st)
	}
	s.mu.Unlock()

	s.setState(StateInitializing)
	proc, err := s.spawn(ctx, s.cfg.Server)
	if err != nil {
		s.setState(StateNotStarted)
		return &LifecycleError{Kind: SpawnFailed, Err: err}
	}
	transport := NewTransport(proc, s.logger)

	s.mu.Lock()
	s.proc = proc
	s.transport = transport
	s.mu.Unlock()

	s.logger.Info("server started",
		zap.String("command", s.cfg.Server.Command),
		zap.Int("pid", proc.Pid()),
		zap.String("root", s.cfg.RootURI))

	if err := s.handshake(ctx, transport); err != nil {
		s.detach()
		_ = proc.Kill()
		s.setState(StateNotStarted)
		return err
	}
	s.setState(StateReady)
	return nil
}

func (s *Session) handshake(ctx context.Context, t *Transport) error {
	initID, err := t.Request(MethodInitialize, InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   s.cfg.RootURI,
	})
	if err != nil {
		return &LifecycleError{Kind: InitRejected, Err: err}
	}

	for initialized := false; !initialized; {
		msgs, err := t.Wait(ctx)
		if err != nil {
			return &LifecycleError{Kind: InitRejected, Err: err}
		}
		for _, m := range msgs {
			if m.IsResponse() && m.ID.Equals(initID) {
				if !m.HasResult() {
					cause := error(errors.New("initialize response has no result"))
					if m.Error != nil {
						cause = m.Error
					}
					return &LifecycleError{Kind: InitRejected, Err: cause}
				}
				initialized = true
				continue
			}
			s.keep(t, m)
		}
	}

	s.setState(StateAwaitingCapabilities)
	if err := t.Notify(MethodInitialized, nil); err != nil {
		return &LifecycleError{Kind: InitRejected, Err: err}
	}
	if !s.cfg.WaitForRegistration {
		return nil
	}

	for {
		msgs, err := t.Wait(ctx)
		if err != nil {
			return &LifecycleError{Kind: InitRejected, Err: err}
		}
		registered := false
		for _, m := range msgs {
			if m.Method == MethodRegisterCapability {
				registered = true
				if m.IsRequest() {
					s.answer(t, m)
				}
				continue
			}
			s.keep(t, m)
		}
		if registered {
			return nil
		}
	}
}

// keep answers server requests and queues everything else for Poll.
func (s *Session) keep(t *Transport, m *Message) {
	if m.IsRequest() {
		s.answer(t, m)
		return
	}
	s.mu.Lock()
	s.backlog = append(s.backlog, m)
	s.mu.Unlock()
}

// answer replies null to a server-initiated request.
func (s *Session) answer(t *Transport, m *Message) {
	if err := t.Reply(*m.ID, nil); err != nil {
		s.logger.Warn("reply failed", zap.String("method", m.Method), zap.Error(err))
	}
}

func (s *Session) detach() {
	s.mu.Lock()
	t := s.transport
	s.transport = nil
	s.proc = nil
	s.mu.Unlock()
	if t != nil {
		if n := t.Abandon(); n > 0 {
			s.logger.Debug("abandoned pending requests", zap.Int("count", n))
		}
		s.mu.Lock()
		s.unmatched += t.Unmatched()
		s.mu.Unlock()
	}
}

func (s *Session) current() (*Transport, Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport, s.proc
}

// Request sends a request when the session is Ready.
func (s *Session) Request(method string, params any) (int64, error) {
	t, err := s.readyTransport()
	if err != nil {
		return -1, err
	}
	return t.Request(method, params)
}

// Notify sends a notification when the session is Ready.
func (s *Session) Notify(method string, params any) error {
	t, err := s.readyTransport()
	if err != nil {
		return err
	}
	return t.Notify(method, params)
}

// IsPending reports whether a request is still awaiting its response.
func (s *Session) IsPending(id int64) bool {
	t, _ := s.current()
	return t != nil && t.IsPending(id)
}

func (s *Session) readyTransport() (*Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return nil, errors.WithStack(ErrServerUnavailable)
	}
	if s.state != StateReady || s.transport == nil {
		return nil, errors.WithStack(ErrNotReady)
	}
	return s.transport, nil
}

// Poll returns the messages received since the last call without blocking.
// Server requests are answered with null and not returned. If the process
// has exited, or sent a frame that cannot be decoded, Poll runs HandleExit
// and returns its error.
func (s *Session) Poll(ctx context.Context) ([]*Message, error) {
	s.mu.Lock()
	out := s.backlog
	s.backlog = nil
	s.mu.Unlock()

	t, proc := s.current()
	if t == nil {
		return out, nil
	}

	msgs, err := t.Poll()
	for _, m := range msgs {
		if m.IsRequest() {
			s.answer(t, m)
			continue
		}
		out = append(out, m)
	}

	if errors.Is(err, ErrMalformed) {
		s.logger.Error("unrecoverable stream, killing server", zap.Error(err))
		_ = proc.Kill()
		if !s.awaitExit(ctx, proc) {
			s.logger.Warn("killed server did not exit", zap.Duration("timeout", s.shutdownTimeout()))
		}
		return s.dropStale(out), s.HandleExit(ctx)
	}

	select {
	case <-proc.Done():
		// Output written just before the exit was drained above.
		rest, _ := t.Poll()
		for _, m := range rest {
			if !m.IsRequest() {
				out = append(out, m)
			}
		}
		return s.dropStale(out), s.HandleExit(ctx)
	default:
	}
	return out, nil
}

// dropStale removes diagnostics pushed by a server that has crashed; the
// restarted server publishes its own after the resync. After Stop the exit
// is expected and nothing is dropped.
func (s *Session) dropStale(msgs []*Message) []*Message {
	if st := s.State(); st == StateTerminating || st == StateStopped {
		return msgs
	}
	kept := msgs[:0]
	dropped := 0
	for _, m := range msgs {
		if m.Method == MethodPublishDiagnostics {
			dropped++
			continue
		}
		kept = append(kept, m)
	}
	if dropped > 0 {
		s.logger.Debug("dropped diagnostics from exited server", zap.Int("count", dropped))
	}
	return kept
}

// awaitExit waits for proc to finish, giving up after the shutdown timeout
// or when ctx is done. A killed process whose output pipes were inherited
// by a child may never report done.
func (s *Session) awaitExit(ctx context.Context, proc Process) bool {
	timeout := s.shutdownTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-proc.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Session) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout <= 0 {
		return 5 * time.Second
	}
	return s.cfg.ShutdownTimeout
}

// HandleExit processes the exit of the attached server. After Stop the exit
// is expected and the session becomes Stopped. Otherwise it is a crash: the
// transport is detached and, with keep-alive and restarts left, the server is
// started again and the restart hooks run. Without a restart the session is
// dead and ErrServerUnavailable is returned.
func (s *Session) HandleExit(ctx context.Context) error {
	st := s.State()
	if st == StateTerminating || st == StateStopped {
		s.detach()
		s.setState(StateStopped)
		return nil
	}

	_, proc := s.current()
	if proc == nil {
		return nil
	}
	s.logger.Warn("server exited unexpectedly", zap.Stringer("state", st))
	s.detach()
	s.setState(StateNotStarted)

	if !s.cfg.KeepAlive {
		return s.die("keep-alive disabled")
	}

	for {
		s.mu.Lock()
		if s.restarts >= s.cfg.MaxRestarts {
			s.mu.Unlock()
			return s.die("restart limit reached")
		}
		s.restarts++
		attempt := s.restarts
		hooks := append([]RestartHook(nil), s.hooks...)
		s.mu.Unlock()

		s.logger.Info("restarting server", zap.Int("attempt", attempt))
		err := s.Start(ctx)
		if err != nil {
			s.logger.Warn("restart failed", zap.Int("attempt", attempt), zap.Error(err))
			if ctx.Err() != nil {
				return err
			}
			continue
		}

		for _, hook := range hooks {
			if err := hook(ctx); err != nil {
				s.logger.Warn("restart hook failed", zap.Error(err))
			}
		}
		return nil
	}
}

func (s *Session) die(reason string) error {
	s.mu.Lock()
	s.dead = true
	s.mu.Unlock()
	s.logger.Error("server unavailable", zap.String("reason", reason))
	return errors.Wrap(ErrServerUnavailable, reason)
}

// Stop sends shutdown and exit, waits up to ShutdownTimeout for the process
// to exit, and kills it otherwise. Pending requests are abandoned.
func (s *Session) Stop(ctx context.Context) error {
	t, proc := s.current()
	if t == nil {
		s.setState(StateStopped)
		return nil
	}

	if s.State() == StateReady {
		if _, err := t.Request(MethodShutdown, nil); err != nil {
			s.logger.Warn("shutdown request failed", zap.Error(err))
		}
		if err := t.Notify(MethodExit, nil); err != nil {
			s.logger.Warn("exit notification failed", zap.Error(err))
		}
	}
	s.setState(StateTerminating)

	timeout := s.shutdownTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-proc.Done():
	case <-timer.C:
		s.logger.Warn("server did not exit, killing", zap.Duration("timeout", timeout))
		_ = proc.Kill()
	case <-ctx.Done():
		_ = proc.Kill()
	}

	err := s.HandleExit(ctx)
	s.logger.Info("server stopped")
	return err
}
