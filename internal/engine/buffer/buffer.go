package buffer

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// Errors returned by buffer operations.
var (
	ErrOffsetOutOfRange = errors.New("offset out of range")
	ErrRangeInvalid     = errors.New("invalid range")
)

// Buffer holds document text plus an index of line starts.
// All methods are safe for concurrent use.
type Buffer struct {
	mu         sync.RWMutex
	text       []byte
	lineStarts []ByteOffset // lineStarts[i] is the offset of line i; lineStarts[0] == 0
	revisionID RevisionID
}

// NewBuffer creates a new empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		lineStarts: []ByteOffset{0},
		revisionID: NewRevisionID(),
	}
}

// NewBufferFromString creates a buffer with initial content.
func NewBufferFromString(s string) *Buffer {
	b := NewBuffer()
	b.text = []byte(s)
	b.lineStarts = append(b.lineStarts, scanLineStarts(s, 0)...)
	return b
}

// scanLineStarts returns the offsets of the lines that begin inside s, given
// that s starts at base.
func scanLineStarts(s string, base ByteOffset) []ByteOffset {
	var starts []ByteOffset
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			starts = append(starts, base+ByteOffset(i)+1)
		}
	}
	return starts
}

// Read Operations

// Text returns the full buffer content as a string.
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return string(b.text)
}

// TextRange returns text in the given byte range, clamped to the buffer.
func (b *Buffer) TextRange(start, end ByteOffset) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	start, end = b.clamp(start), b.clamp(end)
	if start >= end {
		return ""
	}
	return string(b.text[start:end])
}

// Len returns the total byte length of the buffer.
func (b *Buffer) Len() ByteOffset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return ByteOffset(len(b.text))
}

// IsEmpty returns true if the buffer is empty.
func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

// LineCount returns the number of lines. An empty buffer has one line.
func (b *Buffer) LineCount() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return uint32(len(b.lineStarts))
}

// LineText returns the text of a specific line (without newline).
func (b *Buffer) LineText(line uint32) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if int(line) >= len(b.lineStarts) {
		return ""
	}
	return string(b.text[b.lineStarts[line]:b.lineEndLocked(line)])
}

// LineStartOffset returns the byte offset of the start of a line.
func (b *Buffer) LineStartOffset(line uint32) ByteOffset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if int(line) >= len(b.lineStarts) {
		return ByteOffset(len(b.text))
	}
	return b.lineStarts[line]
}

// LineEndOffset returns the byte offset of the end of a line (before newline).
func (b *Buffer) LineEndOffset(line uint32) ByteOffset {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if int(line) >= len(b.lineStarts) {
		return ByteOffset(len(b.text))
	}
	return b.lineEndLocked(line)
}

func (b *Buffer) lineEndLocked(line uint32) ByteOffset {
	if int(line)+1 < len(b.lineStarts) {
		return b.lineStarts[line+1] - 1
	}
	return ByteOffset(len(b.text))
}

// lineOfLocked returns the line containing offset.
func (b *Buffer) lineOfLocked(offset ByteOffset) uint32 {
	i := sort.Search(len(b.lineStarts), func(i int) bool {
		return b.lineStarts[i] > offset
	})
	return uint32(i - 1)
}

func (b *Buffer) clamp(offset ByteOffset) ByteOffset {
	if offset < 0 {
		return 0
	}
	if offset > ByteOffset(len(b.text)) {
		return ByteOffset(len(b.text))
	}
	return offset
}

// Coordinate Conversion

// OffsetToPoint converts a byte offset to line/column.
func (b *Buffer) OffsetToPoint(offset ByteOffset) Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	offset = b.clamp(offset)
	line := b.lineOfLocked(offset)
	return Point{Line: line, Column: uint32(offset - b.lineStarts[line])}
}

// OffsetToPointUTF16 converts a byte offset to UTF-16 line/column.
func (b *Buffer) OffsetToPointUTF16(offset ByteOffset) PointUTF16 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	offset = b.clamp(offset)
	line := b.lineOfLocked(offset)
	prefix := string(b.text[b.lineStarts[line]:offset])
	return PointUTF16{Line: line, Column: utf16ColumnFromString(prefix)}
}

// PointUTF16ToOffset converts UTF-16 line/column to a byte offset.
// ok is false when the line does not exist or the column lies past the end
// of the line.
func (b *Buffer) PointUTF16ToOffset(p PointUTF16) (offset ByteOffset, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if int(p.Line) >= len(b.lineStarts) {
		return ByteOffset(len(b.text)), false
	}
	start := b.lineStarts[p.Line]
	line := string(b.text[start:b.lineEndLocked(p.Line)])
	col, ok := byteOffsetFromUTF16Column(line, p.Column)
	return start + ByteOffset(col), ok
}

// Write Operations

// Insert inserts text at the given offset.
// Returns the end position of the inserted text.
func (b *Buffer) Insert(offset ByteOffset, text string) (ByteOffset, error) {
	if offset < 0 || offset > b.Len() {
		return 0, ErrOffsetOutOfRange
	}
	return b.Replace(offset, offset, text)
}

// Delete removes text in the given range.
func (b *Buffer) Delete(start, end ByteOffset) error {
	_, err := b.Replace(start, end, "")
	return err
}

// Replace replaces text in the given range with new text.
// Returns the end position of the replacement text.
func (b *Buffer) Replace(start, end ByteOffset, text string) (ByteOffset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if start < 0 || start > end || end > ByteOffset(len(b.text)) {
		return 0, ErrRangeInvalid
	}

	startLine := b.lineOfLocked(start)
	endLine := b.lineOfLocked(end)
	delta := ByteOffset(len(text)) - (end - start)

	var sb strings.Builder
	sb.Grow(len(b.text) + int(delta))
	sb.Write(b.text[:start])
	sb.WriteString(text)
	sb.Write(b.text[end:])
	b.text = []byte(sb.String())

	starts := make([]ByteOffset, 0, len(b.lineStarts)+strings.Count(text, "\n"))
	starts = append(starts, b.lineStarts[:startLine+1]...)
	starts = append(starts, scanLineStarts(text, start)...)
	for _, s := range b.lineStarts[endLine+1:] {
		starts = append(starts, s+delta)
	}
	b.lineStarts = starts
	b.revisionID = NewRevisionID()

	return start + ByteOffset(len(text)), nil
}

// RevisionID returns the current revision ID.
func (b *Buffer) RevisionID() RevisionID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.revisionID
}
