// Package brackets indexes the bracket characters of a document and finds
// matching pairs.
//
// Tokens are kept in one flat, column-sorted slice per line (an arena indexed
// by line number). Matching walks that arena iteratively with a depth
// counter, so cost and stack use do not depend on how many lines separate a
// pair. Quoted strings and line comments are skipped when a line is scanned.
package brackets
