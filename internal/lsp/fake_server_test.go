package lsp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lspsync/internal/engine/buffer"
)

// fakeServer is an in-memory Process. Whatever the client writes is decoded
// synchronously and handed to script, which may queue output.
type fakeServer struct {
	t      *testing.T
	pid    int
	dec    *Decoder
	script func(f *fakeServer, m *Message)

	mu         sync.Mutex
	received   []*Message
	out        []byte
	failWrites bool
	exited     bool
	hang       bool // Kill stops the server but Done never closes

	ready chan struct{}
	done  chan struct{}
}

func newFakeServer(t *testing.T, pid int, script func(f *fakeServer, m *Message)) *fakeServer {
	return &fakeServer{
		t:      t,
		pid:    pid,
		dec:    NewDecoder(),
		script: script,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (f *fakeServer) Write(b []byte) (int, error) {
	f.mu.Lock()
	if f.exited {
		f.mu.Unlock()
		return 0, errors.New("broken pipe")
	}
	if f.failWrites {
		f.mu.Unlock()
		return 0, errors.New("write blocked")
	}
	msgs, err := f.dec.Feed(b)
	require.NoError(f.t, err, "client wrote an undecodable frame")
	f.received = append(f.received, msgs...)
	f.mu.Unlock()

	if f.script != nil {
		for _, m := range msgs {
			f.script(f, m)
		}
	}
	return len(b), nil
}

func (f *fakeServer) ReadAvailable() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.out
	f.out = nil
	return out
}

func (f *fakeServer) Ready() <-chan struct{} { return f.ready }
func (f *fakeServer) Done() <-chan struct{}  { return f.done }
func (f *fakeServer) Pid() int               { return f.pid }

func (f *fakeServer) Kill() error {
	f.mu.Lock()
	hang := f.hang
	if hang {
		f.exited = true
	}
	f.mu.Unlock()
	if !hang {
		f.exit()
	}
	return nil
}

func (f *fakeServer) exit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exited {
		f.exited = true
		close(f.done)
	}
}

func (f *fakeServer) setHang(v bool) {
	f.mu.Lock()
	f.hang = v
	f.mu.Unlock()
}

func (f *fakeServer) setFailWrites(v bool) {
	f.mu.Lock()
	f.failWrites = v
	f.mu.Unlock()
}

func (f *fakeServer) sendRaw(b []byte) {
	f.mu.Lock()
	f.out = append(f.out, b...)
	f.mu.Unlock()
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *fakeServer) send(m *Message) {
	data, err := Encode(m)
	require.NoError(f.t, err)
	f.sendRaw(data)
}

func (f *fakeServer) respond(id *ID, result any) {
	m, err := NewResponse(*id, result)
	require.NoError(f.t, err)
	f.send(m)
}

func (f *fakeServer) notify(method string, params any) {
	m, err := NewNotification(method, params)
	require.NoError(f.t, err)
	f.send(m)
}

func (f *fakeServer) messages() []*Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Message(nil), f.received...)
}

// methods returns the methods the client sent, responses shown as "<reply>".
func (f *fakeServer) methods() []string {
	var out []string
	for _, m := range f.messages() {
		if m.Method == "" {
			out = append(out, "<reply>")
			continue
		}
		out = append(out, m.Method)
	}
	return out
}

func (f *fakeServer) last(method string) *Message {
	msgs := f.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Method == method {
			return msgs[i]
		}
	}
	return nil
}

// standardScript behaves like a well-mannered language server.
func standardScript(f *fakeServer, m *Message) {
	switch m.Method {
	case MethodInitialize:
		f.respond(m.ID, map[string]any{"capabilities": map[string]any{}})
	case MethodInitialized:
		id := StringID("register-1")
		f.send(&Message{
			JSONRPC: JSONRPCVersion,
			ID:      &id,
			Method:  MethodRegisterCapability,
			Params:  json.RawMessage(`{"registrations":[]}`),
		})
	case MethodShutdown:
		f.respond(m.ID, nil)
	case MethodExit:
		f.exit()
	}
}

// fakeSpawner hands out a new fakeServer per spawn.
type fakeSpawner struct {
	t       *testing.T
	script  func(f *fakeServer, m *Message)
	fail    error
	servers []*fakeServer
}

func (s *fakeSpawner) spawn(_ context.Context, _ ServerConfig) (Process, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	f := newFakeServer(s.t, 1000+len(s.servers), s.script)
	s.servers = append(s.servers, f)
	return f, nil
}

func (s *fakeSpawner) current() *fakeServer {
	require.NotEmpty(s.t, s.servers)
	return s.servers[len(s.servers)-1]
}

func testSessionConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.RootURI = "file:///work"
	return cfg
}

// replay rebuilds the text and version a server would hold for uri after
// processing msgs in order. It fails the test if versions skip.
func replay(t *testing.T, msgs []*Message, uri string) (string, int32) {
	t.Helper()
	var text string
	var version int32
	opened := false

	for _, m := range msgs {
		switch m.Method {
		case MethodDidOpen:
			var p DidOpenTextDocumentParams
			require.NoError(t, json.Unmarshal(m.Params, &p))
			if p.TextDocument.URI != uri {
				continue
			}
			text, version, opened = p.TextDocument.Text, p.TextDocument.Version, true
		case MethodDidChange:
			var p DidChangeTextDocumentParams
			require.NoError(t, json.Unmarshal(m.Params, &p))
			if p.TextDocument.URI != uri {
				continue
			}
			require.True(t, opened, "didChange before didOpen")
			require.Equal(t, version+1, p.TextDocument.Version, "version gap")
			version = p.TextDocument.Version
			for _, c := range p.ContentChanges {
				if c.Range == nil {
					text = c.Text
					continue
				}
				buf := buffer.NewBufferFromString(text)
				start, ok := PositionToOffset(buf, c.Range.Start)
				require.True(t, ok, "start %v outside text", c.Range.Start)
				end, ok := PositionToOffset(buf, c.Range.End)
				require.True(t, ok, "end %v outside text", c.Range.End)
				_, err := buf.Replace(start, end, c.Text)
				require.NoError(t, err)
				text = buf.Text()
			}
		case MethodDidClose:
			var p DidCloseTextDocumentParams
			require.NoError(t, json.Unmarshal(m.Params, &p))
			if p.TextDocument.URI == uri {
				opened = false
			}
		}
	}
	return text, version
}
