package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Sentinel errors for the process package.
var (
	// ErrProcessNotStarted is returned when operations require a running process.
	ErrProcessNotStarted = errors.New("process not started")

	// ErrEmptyCommand is returned when Config.Command is empty.
	ErrEmptyCommand = errors.New("empty command")
)

// State represents the state of a process.
type State int

const (
	// StateRunning indicates the process is running.
	StateRunning State = iota
	// StateExited indicates the process has exited on its own.
	StateExited
	// StateKilled indicates the process was killed by a signal.
	StateKilled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Config describes the command to launch.
type Config struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string
}

// Process is a running child process. It is safe for concurrent use.
type Process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started time.Time
	logger  *zap.Logger

	mu  sync.Mutex
	buf []byte

	ready chan struct{}
	done  chan struct{}

	state    atomic.Int32
	exitCode atomic.Int32
	exitErr  error
	errMu    sync.RWMutex
}

// Start launches the command described by cfg. ctx only bounds the launch;
// the process outlives it and is stopped with Kill or Close.
func Start(ctx context.Context, cfg Config, logger *zap.Logger) (*Process, error) {
	if cfg.Command == "" {
		return nil, ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), envList(cfg.Env)...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "start %s", cfg.Command)
	}

	p := &Process{
		cmd:     cmd,
		stdin:   stdin,
		started: time.Now(),
		logger:  logger.With(zap.String("command", cfg.Command), zap.Int("pid", cmd.Process.Pid)),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	p.state.Store(int32(StateRunning))
	p.exitCode.Store(-1)

	var streams sync.WaitGroup
	streams.Add(2)
	go func() {
		defer streams.Done()
		p.readLoop(stdout)
	}()
	go func() {
		defer streams.Done()
		p.logStderr(stderr)
	}()
	go p.waitLoop(&streams)

	p.logger.Debug("process started")
	return p, nil
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// readLoop moves stdout into the buffer until EOF.
func (p *Process) readLoop(r io.Reader) {
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			p.mu.Lock()
			p.buf = append(p.buf, chunk[:n]...)
			p.mu.Unlock()
			select {
			case p.ready <- struct{}{}:
			default:
			}
		}
		if err != nil {
			return
		}
	}
}

func (p *Process) logStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		p.logger.Debug("server stderr", zap.String("line", sc.Text()))
	}
}

// waitLoop reaps the process once its output streams are drained.
func (p *Process) waitLoop(streams *sync.WaitGroup) {
	streams.Wait()
	err := p.cmd.Wait()

	p.errMu.Lock()
	p.exitErr = err
	p.errMu.Unlock()

	exitCode := 0
	state := StateExited
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				state = StateKilled
			}
		} else {
			exitCode = -1
		}
	}

	p.exitCode.Store(int32(exitCode))
	p.state.Store(int32(state))
	p.logger.Debug("process exited",
		zap.Int("code", exitCode),
		zap.Stringer("state", state),
		zap.Duration("runtime", time.Since(p.started)))
	close(p.done)
}

// Write sends b to the process's stdin.
func (p *Process) Write(b []byte) (int, error) {
	if p.HasExited() {
		return 0, errors.Wrap(ErrProcessNotStarted, "write")
	}
	return p.stdin.Write(b)
}

// ReadAvailable returns and clears everything read from stdout so far. It
// never blocks.
func (p *Process) ReadAvailable() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.buf
	p.buf = nil
	return out
}

// Ready fires after new output arrives. A single signal may cover several
// reads.
func (p *Process) Ready() <-chan struct{} { return p.ready }

// Done is closed when the process has exited and its output is drained.
func (p *Process) Done() <-chan struct{} { return p.done }

// Pid returns the operating system process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// State returns the current process state.
func (p *Process) State() State { return State(p.state.Load()) }

// HasExited reports whether the process has exited.
func (p *Process) HasExited() bool { return p.State() != StateRunning }

// ExitCode returns the exit code, or -1 while running.
func (p *Process) ExitCode() int { return int(p.exitCode.Load()) }

// ExitError returns the error from waiting on the process, if any.
func (p *Process) ExitError() error {
	p.errMu.RLock()
	defer p.errMu.RUnlock()
	return p.exitErr
}

// Kill terminates the process immediately.
func (p *Process) Kill() error {
	if p.HasExited() {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrap(err, "kill")
	}
	return nil
}

// Close closes stdin, which most servers treat as a request to exit.
func (p *Process) Close() error {
	if err := p.stdin.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return errors.Wrap(err, "close stdin")
	}
	return nil
}
