package lsp

import (
	"github.com/dshills/lspsync/internal/engine/buffer"
)

// OffsetToPosition converts a byte offset in buf to a protocol Position.
func OffsetToPosition(buf *buffer.Buffer, offset buffer.ByteOffset) Position {
	p := buf.OffsetToPointUTF16(offset)
	return Position{Line: p.Line, Character: p.Column}
}

// PositionToOffset converts a protocol Position to a byte offset in buf.
// ok is false when the line does not exist or the character lies past the
// end of the line.
func PositionToOffset(buf *buffer.Buffer, pos Position) (buffer.ByteOffset, bool) {
	return buf.PointUTF16ToOffset(buffer.PointUTF16{Line: pos.Line, Column: pos.Character})
}

// OffsetRangeToRange converts a byte range in buf to a protocol Range.
func OffsetRangeToRange(buf *buffer.Buffer, start, end buffer.ByteOffset) Range {
	return Range{
		Start: OffsetToPosition(buf, start),
		End:   OffsetToPosition(buf, end),
	}
}
