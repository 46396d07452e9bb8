package cursor

import (
	"fmt"

	"github.com/dshills/lspsync/internal/engine/buffer"
)

// ByteOffset is an alias for buffer.ByteOffset for convenience.
type ByteOffset = buffer.ByteOffset

// Range is an alias for buffer.Range for convenience.
type Range = buffer.Range

// Selection represents a range of selected text.
// Anchor is where the selection started; Head is the current cursor position.
// Selection is an immutable value type.
type Selection struct {
	Anchor ByteOffset
	Head   ByteOffset
}

// NewSelection creates a selection from anchor to head.
func NewSelection(anchor, head ByteOffset) Selection {
	return Selection{Anchor: anchor, Head: head}
}

// NewCursorSelection creates a selection representing just a cursor.
func NewCursorSelection(offset ByteOffset) Selection {
	return Selection{Anchor: offset, Head: offset}
}

// String returns a human-readable representation of the selection.
func (s Selection) String() string {
	if s.IsEmpty() {
		return fmt.Sprintf("|%d", s.Head)
	}
	return fmt.Sprintf("%d..%d", s.Anchor, s.Head)
}

// IsEmpty returns true if the selection has no extent (just a cursor).
func (s Selection) IsEmpty() bool {
	return s.Anchor == s.Head
}

// Range returns the selection as a range (always Start <= End).
func (s Selection) Range() Range {
	if s.Anchor <= s.Head {
		return Range{Start: s.Anchor, End: s.Head}
	}
	return Range{Start: s.Head, End: s.Anchor}
}

// Start returns the lower bound of the selection.
func (s Selection) Start() ByteOffset {
	return s.Range().Start
}

// End returns the upper bound of the selection.
func (s Selection) End() ByteOffset {
	return s.Range().End
}

// Clamp limits both ends of the selection to [0, max].
func (s Selection) Clamp(max ByteOffset) Selection {
	return Selection{Anchor: clamp(s.Anchor, max), Head: clamp(s.Head, max)}
}

// AfterEdit maps the selection through an edit that replaced r with
// newLen bytes. Offsets before the edit are unchanged, offsets after it are
// shifted, and offsets inside the replaced range collapse to its end.
func (s Selection) AfterEdit(r Range, newLen ByteOffset) Selection {
	return Selection{
		Anchor: transform(s.Anchor, r, newLen),
		Head:   transform(s.Head, r, newLen),
	}
}

func transform(offset ByteOffset, r Range, newLen ByteOffset) ByteOffset {
	switch {
	case offset < r.Start:
		return offset
	case offset >= r.End && !(r.IsEmpty() && offset == r.Start):
		return offset + newLen - r.Len()
	case r.IsEmpty():
		// insertion exactly at the caret pushes it forward
		return offset + newLen
	default:
		return r.Start + newLen
	}
}

func clamp(offset, max ByteOffset) ByteOffset {
	if offset < 0 {
		return 0
	}
	if offset > max {
		return max
	}
	return offset
}
