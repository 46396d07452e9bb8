package brackets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lspsync/internal/engine/buffer"
)

const sample = `fn main() {
    let v = vec![1, (2)];
    if x {
        println!("{}", v);
    }
}`

func pt(line, col uint32) buffer.Point { return buffer.Point{Line: line, Column: col} }

func TestIndex_MatchAcrossLines(t *testing.T) {
	ix := New(sample)

	// caret right after the "{" on line 0
	partner, bracket, ok := ix.Match(pt(0, 11))
	require.True(t, ok)
	assert.Equal(t, pt(0, 10), bracket)
	assert.Equal(t, pt(5, 0), partner)

	// caret right after the closing "}" on line 4
	partner, _, ok = ix.Match(pt(4, 5))
	require.True(t, ok)
	assert.Equal(t, pt(2, 9), partner)
}

func TestIndex_MatchSameLine(t *testing.T) {
	ix := New(sample)

	partner, _, ok := ix.Match(pt(1, 17))
	require.True(t, ok, "caret after '['")
	assert.Equal(t, pt(1, 23), partner)
}

func TestIndex_MatchSkipsStrings(t *testing.T) {
	ix := New(sample)

	for _, tok := range ix.Tokens(3) {
		assert.NotEqual(t, byte('{'), tok.Char, "brace inside string literal indexed at %d", tok.Column)
	}
}

func TestIndex_MatchSkipsComments(t *testing.T) {
	ix := New("a(b) // (\n)")
	_, _, ok := ix.Match(pt(0, 2))
	require.True(t, ok)

	assert.Len(t, ix.Tokens(0), 2)
}

func TestIndex_MatchLifetimeIsNotQuote(t *testing.T) {
	ix := New("fn f<'a>(x: &'a str) {}")
	partner, _, ok := ix.Match(pt(0, 9))
	require.True(t, ok)
	assert.Equal(t, pt(0, 19), partner)
}

func TestIndex_MatchUnbalanced(t *testing.T) {
	ix := New("((x)")
	_, _, ok := ix.Match(pt(0, 1))
	assert.False(t, ok)

	_, _, ok = ix.Match(pt(0, 0))
	assert.False(t, ok, "column zero has nothing before the caret")

	_, _, ok = ix.Match(pt(0, 3))
	assert.False(t, ok, "no bracket before the caret")
}

func TestIndex_Splice(t *testing.T) {
	ix := New("a {\nb\n}")
	require.Equal(t, 3, ix.LineCount())

	// "b" becomes "(\n)"
	ix.Splice(1, 1, []string{"(", ")"})
	require.Equal(t, 4, ix.LineCount())

	partner, _, ok := ix.Match(pt(1, 1))
	require.True(t, ok)
	assert.Equal(t, pt(2, 0), partner)

	partner, _, ok = ix.Match(pt(0, 3))
	require.True(t, ok)
	assert.Equal(t, pt(3, 0), partner)

	// Join the two bracket lines back into one.
	ix.Splice(1, 2, []string{"()"})
	assert.Equal(t, 3, ix.LineCount())
	assert.Equal(t, []Token{{Column: 0, Char: '('}, {Column: 1, Char: ')'}}, ix.Tokens(1))
}

func TestIndex_Depth(t *testing.T) {
	ix := New(sample)
	assert.Equal(t, 1, ix.Depth(0))
	assert.Equal(t, 2, ix.Depth(2))
	assert.Equal(t, 1, ix.Depth(4))
	assert.Equal(t, 0, ix.Depth(5))
}

func TestIndex_DeepNestingIsIterative(t *testing.T) {
	const n = 20000
	text := make([]byte, 0, 4*n)
	for i := 0; i < n; i++ {
		text = append(text, '{', '\n')
	}
	for i := 0; i < n; i++ {
		text = append(text, '}', '\n')
	}
	ix := New(string(text))

	partner, _, ok := ix.Match(pt(0, 1))
	require.True(t, ok)
	assert.Equal(t, pt(2*n-1, 0), partner)
}
