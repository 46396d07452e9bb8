package lsp

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(t testing.TB, m *Message) []byte {
	t.Helper()
	data, err := Encode(m)
	require.NoError(t, err)
	return data
}

func initializeFrame(t testing.TB) []byte {
	m, err := NewRequest(0, MethodInitialize, json.RawMessage(`{"processId":123}`))
	require.NoError(t, err)
	return mustEncode(t, m)
}

func TestEncode_Initialize(t *testing.T) {
	data := initializeFrame(t)

	want := `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"processId":123}}`
	require.Len(t, want, 73)
	assert.Equal(t, "Content-Length: 73\r\n\r\n"+want, string(data))
}

func TestEncode_NotificationHasNoID(t *testing.T) {
	m, err := NewNotification(MethodInitialized, nil)
	require.NoError(t, err)

	data := mustEncode(t, m)
	assert.True(t, bytes.HasSuffix(data, []byte(`{"jsonrpc":"2.0","method":"initialized","params":{}}`)))
	assert.NotContains(t, string(data), `"id"`)
}

func TestEncode_NullResult(t *testing.T) {
	m, err := NewResponse(StringID("abc"), nil)
	require.NoError(t, err)

	data := mustEncode(t, m)
	assert.True(t, bytes.HasSuffix(data, []byte(`{"jsonrpc":"2.0","id":"abc","result":null}`)), string(data))
}

func TestDecoder_TwoFramesInOnePass(t *testing.T) {
	first := initializeFrame(t)
	second, err := NewNotification("window/logMessage", map[string]any{"message": "hi"})
	require.NoError(t, err)

	dec := NewDecoder()
	msgs, err := dec.Feed(append(first, mustEncode(t, second)...))
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, MethodInitialize, msgs[0].Method)
	assert.True(t, msgs[0].ID.Equals(0))
	assert.JSONEq(t, `{"processId":123}`, string(msgs[0].Params))
	assert.Equal(t, "window/logMessage", msgs[1].Method)
	assert.Nil(t, msgs[1].ID)
	assert.Empty(t, dec.Residue())
}

func TestDecoder_IncompleteKeepsBytes(t *testing.T) {
	frame := initializeFrame(t)

	tests := []struct {
		name     string
		cut      int
		declared int
	}{
		{"partial token", 8, -1},
		{"no terminator", 19, -1},
		{"terminator only", 22, 73},
		{"partial payload", 60, 73},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewDecoder()
			msgs, err := dec.Feed(frame[:tt.cut])
			require.NoError(t, err)
			assert.Empty(t, msgs)
			assert.Equal(t, frame[:tt.cut], dec.Residue())
			assert.Equal(t, tt.declared, dec.Declared())

			msgs, err = dec.Feed(frame[tt.cut:])
			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, -1, dec.Declared())
			assert.Empty(t, dec.Residue())
		})
	}
}

func TestDecoder_FrameErrors(t *testing.T) {
	_, _, err := DecodeFrame([]byte("Content-Length: 5\r\n"))
	assert.ErrorIs(t, err, ErrIncomplete)

	var fe *FramingError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, Incomplete, fe.Kind)

	_, _, err = DecodeFrame([]byte("Content-Length: x\r\n\r\n{}"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, _, err = DecodeFrame([]byte("Content-Length: 3\r\n\r\n{x}"))
	assert.ErrorIs(t, err, ErrMalformed)

	_, _, err = DecodeFrame([]byte("Content-Length: 2\r\n\r\n[]"))
	assert.ErrorIs(t, err, ErrMalformed, "payload must be an object")
}

func TestDecoder_ToleratesExtraHeaders(t *testing.T) {
	body := `{"jsonrpc":"2.0","method":"x"}`
	raw := "Content-Length: 30\r\nContent-Type: application/vscode-jsonrpc; charset=utf-8\r\n\r\n" + body
	require.Len(t, body, 30)

	msgs, err := NewDecoder().Feed([]byte(raw))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "x", msgs[0].Method)
}

func TestDecoder_SkipsJunkBeforeHeader(t *testing.T) {
	dec := NewDecoder()
	msgs, err := dec.Feed([]byte("warning: something on stdout\n"))
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Less(t, len(dec.Residue()), len("Content-Length:"))

	msgs, err = dec.Feed(initializeFrame(t))
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestDecoder_MalformedDropsResidue(t *testing.T) {
	good := initializeFrame(t)
	bad := []byte("Content-Length: 4\r\n\r\n{{{{")

	dec := NewDecoder()
	msgs, err := dec.Feed(append(good, bad...))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Len(t, msgs, 1, "frames before the bad one are delivered")
	assert.Empty(t, dec.Residue())
}

func TestDecoder_StringAndIntIDs(t *testing.T) {
	raw := `{"jsonrpc":"2.0","id":"reg-7","method":"client/registerCapability","params":{}}`
	msgs, err := NewDecoder().Feed([]byte("Content-Length: " + strconv.Itoa(len(raw)) + "\r\n\r\n" + raw))
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.True(t, msgs[0].IsRequest())
	_, isInt := msgs[0].ID.Int()
	assert.False(t, isInt)
	assert.Equal(t, `"reg-7"`, msgs[0].ID.String())
}

func sampleStream(t testing.TB) ([]byte, []string) {
	var stream []byte
	var methods []string
	for i, text := range []string{"", "a", "héllo 😀", strings.Repeat("x", 300), "Content-Length: 9\r\n\r\n"} {
		m, err := NewNotification("test/"+strconv.Itoa(i), map[string]string{"text": text})
		require.NoError(t, err)
		stream = append(stream, mustEncode(t, m)...)
		methods = append(methods, m.Method)
	}
	return stream, methods
}

func decodeChunks(t testing.TB, chunks [][]byte) []string {
	dec := NewDecoder()
	var got []string
	for _, c := range chunks {
		msgs, err := dec.Feed(c)
		require.NoError(t, err)
		for _, m := range msgs {
			got = append(got, m.Method)
		}
	}
	require.Empty(t, dec.Residue())
	return got
}

func TestDecoder_EverySplitPoint(t *testing.T) {
	stream, want := sampleStream(t)
	for cut := 0; cut <= len(stream); cut++ {
		got := decodeChunks(t, [][]byte{stream[:cut], stream[cut:]})
		require.Equal(t, want, got, "split at %d", cut)
	}
}

func TestDecoder_RandomChunks(t *testing.T) {
	stream, want := sampleStream(t)
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		var chunks [][]byte
		for rest := stream; len(rest) > 0; {
			n := 1 + rng.Intn(40)
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		require.Equal(t, want, decodeChunks(t, chunks), "round %d", round)
	}
}

func FuzzDecoder_Split(f *testing.F) {
	f.Add(uint16(1), uint16(7))
	f.Add(uint16(20), uint16(3))
	f.Add(uint16(300), uint16(1))

	stream, want := sampleStream(f)
	f.Fuzz(func(t *testing.T, seed, size uint16) {
		rng := rand.New(rand.NewSource(int64(seed)))
		limit := int(size%64) + 1

		var chunks [][]byte
		for rest := stream; len(rest) > 0; {
			n := 1 + rng.Intn(limit)
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		if got := decodeChunks(t, chunks); !equalStrings(got, want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
