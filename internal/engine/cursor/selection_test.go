package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelection_Range(t *testing.T) {
	backward := NewSelection(10, 4)

	assert.Equal(t, Range{Start: 4, End: 10}, backward.Range())
	assert.Equal(t, ByteOffset(4), backward.Start())
	assert.Equal(t, ByteOffset(10), backward.End())
	assert.False(t, backward.IsEmpty())
	assert.True(t, NewCursorSelection(3).IsEmpty())
}

func TestSelection_AfterEdit(t *testing.T) {
	tests := []struct {
		name   string
		sel    Selection
		r      Range
		newLen ByteOffset
		want   Selection
	}{
		{"edit after caret", NewCursorSelection(2), Range{Start: 5, End: 6}, 0, NewCursorSelection(2)},
		{"insert before caret", NewCursorSelection(5), Range{Start: 1, End: 1}, 3, NewCursorSelection(8)},
		{"insert at caret", NewCursorSelection(5), Range{Start: 5, End: 5}, 2, NewCursorSelection(7)},
		{"delete before caret", NewCursorSelection(9), Range{Start: 2, End: 5}, 0, NewCursorSelection(6)},
		{"caret inside deleted range", NewCursorSelection(4), Range{Start: 2, End: 6}, 1, NewCursorSelection(3)},
		{"selection spanning edit", NewSelection(1, 9), Range{Start: 3, End: 4}, 3, NewSelection(1, 11)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.AfterEdit(tt.r, tt.newLen))
		})
	}
}

func TestSelection_Clamp(t *testing.T) {
	assert.Equal(t, NewSelection(0, 5), NewSelection(-2, 9).Clamp(5))
}
