package process

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func requireUnixTool(t *testing.T, name string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("unix tools required")
	}
	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

// readUntil drains p until want bytes have arrived or the timeout fires.
func readUntil(t *testing.T, p *Process, want int) []byte {
	t.Helper()
	var got []byte
	deadline := time.After(5 * time.Second)
	for len(got) < want {
		select {
		case <-p.Ready():
			got = append(got, p.ReadAvailable()...)
		case <-p.Done():
			got = append(got, p.ReadAvailable()...)
			return got
		case <-deadline:
			t.Fatalf("timed out after %d bytes", len(got))
		}
	}
	return got
}

func TestProcess_Echo(t *testing.T) {
	requireUnixTool(t, "cat")

	p, err := Start(context.Background(), Config{Command: "cat"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer p.Kill()

	assert.Equal(t, StateRunning, p.State())
	assert.Positive(t, p.Pid())
	assert.Equal(t, -1, p.ExitCode())

	_, err = p.Write([]byte("hello"))
	require.NoError(t, err)
	_, err = p.Write([]byte(" world"))
	require.NoError(t, err)

	assert.Equal(t, "hello world", string(readUntil(t, p, 11)))
}

func TestProcess_CloseStdinExits(t *testing.T) {
	requireUnixTool(t, "cat")

	p, err := Start(context.Background(), Config{Command: "cat"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, p.Close())

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cat did not exit after stdin closed")
	}
	assert.Equal(t, StateExited, p.State())
	assert.Equal(t, 0, p.ExitCode())

	_, err = p.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrProcessNotStarted)
}

func TestProcess_OutputBeforeExitIsKept(t *testing.T) {
	requireUnixTool(t, "sh")

	p, err := Start(context.Background(), Config{
		Command: "sh",
		Args:    []string{"-c", "printf abc; exit 3"},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	<-p.Done()
	assert.Equal(t, "abc", string(p.ReadAvailable()))
	assert.Equal(t, 3, p.ExitCode())
	assert.Error(t, p.ExitError())
}

func TestProcess_Kill(t *testing.T) {
	requireUnixTool(t, "sleep")

	p, err := Start(context.Background(), Config{Command: "sleep", Args: []string{"30"}}, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, p.Kill())
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process not killed")
	}
	assert.Equal(t, StateKilled, p.State())
	assert.NoError(t, p.Kill(), "kill after exit is a no-op")
}

func TestProcess_Env(t *testing.T) {
	requireUnixTool(t, "sh")

	p, err := Start(context.Background(), Config{
		Command: "sh",
		Args:    []string{"-c", `printf "$LSPSYNC_TEST"`},
		Env:     map[string]string{"LSPSYNC_TEST": "yes"},
	}, nil)
	require.NoError(t, err)

	<-p.Done()
	assert.Equal(t, "yes", string(p.ReadAvailable()))
}

func TestStart_Errors(t *testing.T) {
	_, err := Start(context.Background(), Config{}, nil)
	assert.ErrorIs(t, err, ErrEmptyCommand)

	_, err = Start(context.Background(), Config{Command: "lspsync-no-such-binary"}, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Start(ctx, Config{Command: "cat"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "killed", StateKilled.String())
	assert.Equal(t, "unknown(9)", State(9).String())
}
