package brackets

import (
	"strings"

	"github.com/dshills/lspsync/internal/engine/buffer"
)

// Pair is an opening and closing bracket character.
type Pair struct {
	Open  byte
	Close byte
}

// DefaultPairs are the pairs indexed when none are given.
var DefaultPairs = []Pair{{'(', ')'}, {'[', ']'}, {'{', '}'}}

// Token is one bracket character on a line.
type Token struct {
	Column uint32 // byte column within the line
	Char   byte
}

// Index holds the bracket tokens of a document, one sorted slice per line.
type Index struct {
	pairs []Pair
	lines [][]Token
}

// New creates an index over text.
func New(text string, pairs ...Pair) *Index {
	if len(pairs) == 0 {
		pairs = DefaultPairs
	}
	ix := &Index{pairs: pairs}
	ix.Reset(text)
	return ix
}

// Reset rebuilds the whole index from text.
func (ix *Index) Reset(text string) {
	lines := strings.Split(text, "\n")
	ix.lines = make([][]Token, len(lines))
	for i, l := range lines {
		ix.lines[i] = ix.scan(l)
	}
}

// Splice replaces the tokens of lines [first, last] with the tokens of
// newLines. It is called after an edit with the line span the edit covered
// before it was applied and the text of the lines it produced.
func (ix *Index) Splice(first, last uint32, newLines []string) {
	if int(first) > len(ix.lines) {
		first = uint32(len(ix.lines))
	}
	end := int(last) + 1
	if end > len(ix.lines) {
		end = len(ix.lines)
	}
	if end < int(first) {
		end = int(first)
	}

	scanned := make([][]Token, len(newLines))
	for i, l := range newLines {
		scanned[i] = ix.scan(l)
	}

	out := make([][]Token, 0, len(ix.lines)-(end-int(first))+len(scanned))
	out = append(out, ix.lines[:first]...)
	out = append(out, scanned...)
	out = append(out, ix.lines[end:]...)
	ix.lines = out
}

// LineCount returns the number of indexed lines.
func (ix *Index) LineCount() int { return len(ix.lines) }

// Tokens returns the tokens of a line.
func (ix *Index) Tokens(line uint32) []Token {
	if int(line) >= len(ix.lines) {
		return nil
	}
	return ix.lines[line]
}

func (ix *Index) pairOf(c byte) (Pair, bool, bool) {
	for _, p := range ix.pairs {
		if c == p.Open {
			return p, true, true
		}
		if c == p.Close {
			return p, false, true
		}
	}
	return Pair{}, false, false
}

// scan collects bracket tokens of one line, skipping quoted strings and
// "//" comments.
func (ix *Index) scan(line string) []Token {
	var toks []Token
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			// Rust lifetimes ('a) are not quotes.
			if c == '\'' && !isCharLiteral(line, i) {
				continue
			}
			quote = c
			continue
		case '/':
			if i+1 < len(line) && line[i+1] == '/' {
				return toks
			}
			continue
		}
		if _, _, ok := ix.pairOf(c); ok {
			toks = append(toks, Token{Column: uint32(i), Char: c})
		}
	}
	return toks
}

// isCharLiteral reports whether the quote at i opens a literal such as 'x'
// or '\n'.
func isCharLiteral(line string, i int) bool {
	if i+2 < len(line) && line[i+1] == '\\' {
		return true
	}
	return i+2 < len(line) && line[i+2] == '\''
}

// Match finds the partner of the bracket just before the caret at p, the
// way an editor highlights the pair after a bracket is typed. ok is false
// when there is no bracket there or it is unbalanced.
func (ix *Index) Match(p buffer.Point) (partner buffer.Point, bracket buffer.Point, ok bool) {
	if p.Column == 0 || int(p.Line) >= len(ix.lines) {
		return buffer.Point{}, buffer.Point{}, false
	}
	toks := ix.lines[p.Line]
	for i, t := range toks {
		if t.Column != p.Column-1 {
			continue
		}
		bracket = buffer.Point{Line: p.Line, Column: t.Column}
		pair, open, _ := ix.pairOf(t.Char)
		if open {
			partner, ok = ix.forward(p.Line, i+1, pair)
		} else {
			partner, ok = ix.backward(p.Line, i-1, pair)
		}
		return partner, bracket, ok
	}
	return buffer.Point{}, buffer.Point{}, false
}

// forward scans for the closing bracket starting at token i of line.
func (ix *Index) forward(line uint32, i int, pair Pair) (buffer.Point, bool) {
	depth := 0
	for l := int(line); l < len(ix.lines); l++ {
		toks := ix.lines[l]
		for ; i < len(toks); i++ {
			switch toks[i].Char {
			case pair.Open:
				depth++
			case pair.Close:
				if depth == 0 {
					return buffer.Point{Line: uint32(l), Column: toks[i].Column}, true
				}
				depth--
			}
		}
		i = 0
	}
	return buffer.Point{}, false
}

// backward scans for the opening bracket starting at token i of line.
func (ix *Index) backward(line uint32, i int, pair Pair) (buffer.Point, bool) {
	depth := 0
	for l := int(line); l >= 0; l-- {
		toks := ix.lines[l]
		if l != int(line) {
			i = len(toks) - 1
		}
		for ; i >= 0; i-- {
			switch toks[i].Char {
			case pair.Close:
				depth++
			case pair.Open:
				if depth == 0 {
					return buffer.Point{Line: uint32(l), Column: toks[i].Column}, true
				}
				depth--
			}
		}
	}
	return buffer.Point{}, false
}

// Depth returns the number of '{' left open at the end of line, counting
// from the top of the document. Editors use it as the indent level of the
// following line.
func (ix *Index) Depth(line uint32) int {
	depth := 0
	for l := 0; l <= int(line) && l < len(ix.lines); l++ {
		for _, t := range ix.lines[l] {
			switch t.Char {
			case '{':
				depth++
			case '}':
				if depth > 0 {
					depth--
				}
			}
		}
	}
	return depth
}
