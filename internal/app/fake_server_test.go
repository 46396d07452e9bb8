package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lspsync/internal/config"
	"github.com/dshills/lspsync/internal/engine/buffer"
	"github.com/dshills/lspsync/internal/lsp"
)

// fakeServer is an in-memory lsp.Process answering like a language server.
// Client writes are decoded synchronously and passed to the script.
type fakeServer struct {
	t   *testing.T
	pid int
	dec *lsp.Decoder

	mu       sync.Mutex
	received []*lsp.Message
	out      []byte
	exited   bool
	onOpen   func(f *fakeServer, m *lsp.Message)
	results  map[string]any

	ready chan struct{}
	done  chan struct{}
}

func newFakeServer(t *testing.T, pid int) *fakeServer {
	return &fakeServer{
		t:       t,
		pid:     pid,
		dec:     lsp.NewDecoder(),
		results: make(map[string]any),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (f *fakeServer) Write(b []byte) (int, error) {
	f.mu.Lock()
	if f.exited {
		f.mu.Unlock()
		return 0, errors.New("broken pipe")
	}
	msgs, err := f.dec.Feed(b)
	require.NoError(f.t, err)
	f.received = append(f.received, msgs...)
	f.mu.Unlock()

	for _, m := range msgs {
		f.script(m)
	}
	return len(b), nil
}

func (f *fakeServer) script(m *lsp.Message) {
	switch m.Method {
	case lsp.MethodInitialize:
		f.respond(m.ID, map[string]any{"capabilities": map[string]any{}})
	case lsp.MethodInitialized:
		id := lsp.IntID(7)
		f.send(&lsp.Message{
			JSONRPC: lsp.JSONRPCVersion,
			ID:      &id,
			Method:  lsp.MethodRegisterCapability,
			Params:  json.RawMessage(`{"registrations":[]}`),
		})
	case lsp.MethodShutdown:
		f.respond(m.ID, nil)
	case lsp.MethodExit:
		f.exit()
	case lsp.MethodDidOpen:
		f.mu.Lock()
		hook := f.onOpen
		f.mu.Unlock()
		if hook != nil {
			hook(f, m)
		}
	case lsp.MethodCompletion, lsp.MethodHover:
		f.mu.Lock()
		result := f.results[m.Method]
		f.mu.Unlock()
		f.respond(m.ID, result)
	}
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
	f.exit()
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

func (f *fakeServer) send(m *lsp.Message) {
	data, err := lsp.Encode(m)
	require.NoError(f.t, err)
	f.mu.Lock()
	f.out = append(f.out, data...)
	f.mu.Unlock()
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *fakeServer) respond(id *lsp.ID, result any) {
	m, err := lsp.NewResponse(*id, result)
	require.NoError(f.t, err)
	f.send(m)
}

func (f *fakeServer) notify(method string, params any) {
	m, err := lsp.NewNotification(method, params)
	require.NoError(f.t, err)
	f.send(m)
}

func (f *fakeServer) setResult(method string, result any) {
	f.mu.Lock()
	f.results[method] = result
	f.mu.Unlock()
}

func (f *fakeServer) messages() []*lsp.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*lsp.Message(nil), f.received...)
}

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

func (f *fakeServer) count(method string) int {
	n := 0
	for _, m := range f.messages() {
		if m.Method == method {
			n++
		}
	}
	return n
}

func (f *fakeServer) last(method string) *lsp.Message {
	msgs := f.messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Method == method {
			return msgs[i]
		}
	}
	return nil
}

// fakeSpawner hands out a new fakeServer per spawn. prepare, if set, runs
// on every server before it is returned.
type fakeSpawner struct {
	t       *testing.T
	fail    error
	prepare func(f *fakeServer)

	mu       sync.Mutex
	attempts int
	servers  []*fakeServer
}

func (s *fakeSpawner) spawn(_ context.Context, _ lsp.ServerConfig) (lsp.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.fail != nil {
		return nil, s.fail
	}
	f := newFakeServer(s.t, 2000+len(s.servers))
	if s.prepare != nil {
		s.prepare(f)
	}
	s.servers = append(s.servers, f)
	return f, nil
}

func (s *fakeSpawner) current() *fakeServer {
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(s.t, s.servers)
	return s.servers[len(s.servers)-1]
}

func (s *fakeSpawner) spawned() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.servers)
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	return &cfg
}

// replay rebuilds the text a server holds for uri from the notifications in
// msgs and checks that versions never skip.
func replay(t *testing.T, msgs []*lsp.Message, uri string) (string, int32) {
	t.Helper()
	var text string
	var version int32
	for _, m := range msgs {
		switch m.Method {
		case lsp.MethodDidOpen:
			var p lsp.DidOpenTextDocumentParams
			require.NoError(t, json.Unmarshal(m.Params, &p))
			if p.TextDocument.URI == uri {
				text, version = p.TextDocument.Text, p.TextDocument.Version
			}
		case lsp.MethodDidChange:
			var p lsp.DidChangeTextDocumentParams
			require.NoError(t, json.Unmarshal(m.Params, &p))
			if p.TextDocument.URI != uri {
				continue
			}
			require.Equal(t, version+1, p.TextDocument.Version, "version gap")
			version = p.TextDocument.Version
			for _, c := range p.ContentChanges {
				if c.Range == nil {
					text = c.Text
					continue
				}
				buf := buffer.NewBufferFromString(text)
				start, ok := lsp.PositionToOffset(buf, c.Range.Start)
				require.True(t, ok)
				end, ok := lsp.PositionToOffset(buf, c.Range.End)
				require.True(t, ok)
				_, err := buf.Replace(start, end, c.Text)
				require.NoError(t, err)
				text = buf.Text()
			}
		}
	}
	return text, version
}
