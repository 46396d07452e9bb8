// Package buffer provides the authoritative local text of an open document.
//
// A Buffer stores its content as a flat byte slice together with a
// line-start index, so every mutation keeps the (line, column) view in step
// with the byte view. Lines are the editor's "blocks": line N is block N and a
// column is an offset inside that block.
//
// Basic usage:
//
//	buf := buffer.NewBufferFromString("fn main() {}\n")
//
//	// Replace a range (insert, delete and replace are all Replace)
//	buf.Replace(3, 7, "start")
//
//	// Coordinate conversion for the language server
//	p := buf.OffsetToPointUTF16(5)
//
// Position Types:
//
//   - ByteOffset: raw byte position in the buffer
//   - Point: line and column, column in bytes
//   - PointUTF16: line and column, column in UTF-16 code units (LSP)
//
// Line endings are stored verbatim. The buffer never rewrites text it is
// given, which keeps the text replayed by a language server byte-identical
// to the text held here.
package buffer
