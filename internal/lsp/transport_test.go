package lsp

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestTransport_RequestIDsStartAtZero(t *testing.T) {
	srv := newFakeServer(t, 1, nil)
	tr := NewTransport(srv, zaptest.NewLogger(t))

	for want := int64(0); want < 3; want++ {
		id, err := tr.Request(MethodHover, nil)
		require.NoError(t, err)
		assert.Equal(t, want, id)
		assert.True(t, tr.IsPending(id))
	}
	assert.Equal(t, 3, tr.PendingCount())

	require.NoError(t, tr.Notify(MethodInitialized, nil))
	msgs := srv.messages()
	require.Len(t, msgs, 4)
	assert.Nil(t, msgs[3].ID)
	assert.True(t, msgs[3].IsNotification())
}

func TestTransport_PollSettlesPending(t *testing.T) {
	srv := newFakeServer(t, 1, nil)
	tr := NewTransport(srv, zaptest.NewLogger(t))

	id, err := tr.Request(MethodCompletion, nil)
	require.NoError(t, err)

	respID := IntID(id)
	srv.respond(&respID, []map[string]string{{"label": "foo"}})
	srv.notify(MethodPublishDiagnostics, map[string]any{"uri": "file:///a.rs", "diagnostics": []any{}})

	msgs, err := tr.Poll()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].IsResponse())
	assert.True(t, msgs[0].ID.Equals(id))
	assert.Equal(t, MethodPublishDiagnostics, msgs[1].Method)
	assert.False(t, tr.IsPending(id))
}

func TestTransport_DropsUnknownResponses(t *testing.T) {
	srv := newFakeServer(t, 1, nil)
	tr := NewTransport(srv, zaptest.NewLogger(t))

	id, err := tr.Request(MethodHover, nil)
	require.NoError(t, err)

	unknown := IntID(99)
	str := StringID("0")
	known := IntID(id)
	srv.respond(&unknown, nil)
	srv.respond(&str, nil)
	srv.respond(&known, "ok")
	srv.respond(&known, "duplicate")

	msgs, err := tr.Poll()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `"ok"`, string(msgs[0].Result))
	assert.Equal(t, 3, tr.Unmatched())
	assert.Zero(t, tr.PendingCount())
}

func TestTransport_WriteFailure(t *testing.T) {
	srv := newFakeServer(t, 1, nil)
	tr := NewTransport(srv, zaptest.NewLogger(t))

	srv.setFailWrites(true)
	id, err := tr.Request(MethodHover, nil)
	require.Error(t, err)
	assert.Equal(t, int64(0), id)
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.False(t, tr.IsPending(id))

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, MethodHover, te.Method)
	assert.True(t, te.ID.Equals(0))

	err = tr.Notify(MethodDidChange, nil)
	assert.ErrorIs(t, err, ErrWriteFailed)

	srv.setFailWrites(false)
	id, err = tr.Request(MethodHover, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id, "a failed request still consumes its id")
}

func TestTransport_ReplyKeepsStringID(t *testing.T) {
	srv := newFakeServer(t, 1, nil)
	tr := NewTransport(srv, zaptest.NewLogger(t))

	require.NoError(t, tr.Reply(StringID("register-1"), nil))
	msgs := srv.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, `"register-1"`, msgs[0].ID.String())
	assert.JSONEq(t, `null`, string(msgs[0].Result))
}

func TestTransport_WaitReturnsOutputBeforeCrash(t *testing.T) {
	srv := newFakeServer(t, 1, nil)
	tr := NewTransport(srv, zaptest.NewLogger(t))

	srv.notify("window/logMessage", map[string]string{"message": "bye"})
	srv.exit()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msgs, err := tr.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	_, err = tr.Wait(ctx)
	assert.ErrorIs(t, err, ErrServerCrashed)
}

func TestTransport_WaitHonoursContext(t *testing.T) {
	srv := newFakeServer(t, 1, nil)
	tr := NewTransport(srv, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransport_Abandon(t *testing.T) {
	srv := newFakeServer(t, 1, nil)
	tr := NewTransport(srv, zaptest.NewLogger(t))

	for i := 0; i < 2; i++ {
		_, err := tr.Request(MethodHover, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, tr.Abandon())
	assert.Equal(t, 0, tr.PendingCount())
}
