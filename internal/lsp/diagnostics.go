package lsp

import (
	"sync"

	"github.com/tidwall/gjson"

	"github.com/dshills/lspsync/internal/engine/buffer"
)

// Severity is a diagnostic severity as sent by the server.
type Severity int

// Diagnostic severities.
const (
	SeverityError       Severity = 1
	SeverityWarning     Severity = 2
	SeverityInformation Severity = 3
	SeverityHint        Severity = 4
)

// IsError reports whether the diagnostic is rendered as an error. Every
// other severity is rendered as a warning.
func (s Severity) IsError() bool { return s == SeverityError }

// String returns "error" or "warning".
func (s Severity) String() string {
	if s.IsError() {
		return "error"
	}
	return "warning"
}

// Diagnostic is a server diagnostic in local byte offsets.
type Diagnostic struct {
	Start    buffer.ByteOffset
	Length   buffer.ByteOffset
	Severity Severity
	Message  string
}

// End returns the offset just past the diagnostic.
func (d Diagnostic) End() buffer.ByteOffset { return d.Start + d.Length }

// Contains reports whether offset lies in [Start, Start+Length).
func (d Diagnostic) Contains(offset buffer.ByteOffset) bool {
	return offset >= d.Start && offset < d.End()
}

// DiagnosticsCache holds the latest diagnostics of each document.
type DiagnosticsCache struct {
	mu    sync.RWMutex
	items map[string][]Diagnostic
}

// NewDiagnosticsCache creates an empty cache.
func NewDiagnosticsCache() *DiagnosticsCache {
	return &DiagnosticsCache{items: make(map[string][]Diagnostic)}
}

// Apply replaces the diagnostics of uri wholesale.
func (c *DiagnosticsCache) Apply(uri string, diags []Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(diags) == 0 {
		delete(c.items, uri)
		return
	}
	c.items[uri] = append([]Diagnostic(nil), diags...)
}

// Clear drops the diagnostics of uri.
func (c *DiagnosticsCache) Clear(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, uri)
}

// Lookup returns the message of the first diagnostic whose span contains
// offset.
func (c *DiagnosticsCache) Lookup(uri string, offset buffer.ByteOffset) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.items[uri] {
		if d.Contains(offset) {
			return d.Message, true
		}
	}
	return "", false
}

// For returns a copy of the diagnostics of uri.
func (c *DiagnosticsCache) For(uri string) []Diagnostic {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Diagnostic(nil), c.items[uri]...)
}

// Len returns the number of diagnostics cached for uri.
func (c *DiagnosticsCache) Len(uri string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items[uri])
}

// PublishedDiagnostics is a decoded publishDiagnostics push.
type PublishedDiagnostics struct {
	URI        string
	Version    int32
	HasVersion bool
	Items      []gjson.Result
}

// ParsePublishDiagnostics reads the uri, optional version and diagnostic
// entries of a publishDiagnostics payload.
func ParsePublishDiagnostics(params []byte) (PublishedDiagnostics, bool) {
	root := gjson.ParseBytes(params)
	uri := root.Get("uri")
	if uri.Type != gjson.String {
		return PublishedDiagnostics{}, false
	}
	p := PublishedDiagnostics{URI: uri.String()}
	if v := root.Get("version"); v.Type == gjson.Number {
		p.Version = int32(v.Int())
		p.HasVersion = true
	}
	p.Items = root.Get("diagnostics").Array()
	return p, true
}

// ConvertDiagnostics maps protocol diagnostics onto byte offsets in buf. An
// entry whose start or end lies past the end of its line is dropped.
func ConvertDiagnostics(buf *buffer.Buffer, items []gjson.Result) []Diagnostic {
	out := make([]Diagnostic, 0, len(items))
	for _, item := range items {
		r := item.Get("range")
		start, ok := PositionToOffset(buf, Position{
			Line:      uint32(r.Get("start.line").Uint()),
			Character: uint32(r.Get("start.character").Uint()),
		})
		if !ok {
			continue
		}
		end, ok := PositionToOffset(buf, Position{
			Line:      uint32(r.Get("end.line").Uint()),
			Character: uint32(r.Get("end.character").Uint()),
		})
		if !ok || end < start {
			continue
		}
		out = append(out, Diagnostic{
			Start:    start,
			Length:   end - start,
			Severity: Severity(item.Get("severity").Int()),
			Message:  item.Get("message").String(),
		})
	}
	return out
}
