package lsp

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
	"github.com/sahilm/fuzzy"
	"github.com/tidwall/gjson"
)

// CompletionItem is one completion candidate.
type CompletionItem struct {
	Label      string
	Detail     string
	InsertText string
	Kind       int
}

// Text returns the text to insert for the item.
func (c CompletionItem) Text() string {
	if c.InsertText != "" {
		return c.InsertText
	}
	return c.Label
}

// ParseCompletion reads a completion result, which is either a bare array
// of items or a CompletionList with an items field.
func ParseCompletion(result []byte) []CompletionItem {
	root := gjson.ParseBytes(result)
	list := root
	if !root.IsArray() {
		list = root.Get("items")
	}

	var items []CompletionItem
	list.ForEach(func(_, item gjson.Result) bool {
		label := item.Get("label").String()
		if label == "" {
			return true
		}
		items = append(items, CompletionItem{
			Label:      label,
			Detail:     item.Get("detail").String(),
			InsertText: item.Get("insertText").String(),
			Kind:       int(item.Get("kind").Int()),
		})
		return true
	})
	return items
}

type completionSource []CompletionItem

func (s completionSource) String(i int) string { return s[i].Label }
func (s completionSource) Len() int            { return len(s) }

// RankCompletion orders items by how well their labels fuzzy-match prefix,
// dropping those that do not match at all. An empty prefix keeps the
// server's order.
func RankCompletion(prefix string, items []CompletionItem) []CompletionItem {
	if prefix == "" {
		return items
	}
	matches := fuzzy.FindFrom(prefix, completionSource(items))
	out := make([]CompletionItem, len(matches))
	for i, m := range matches {
		out[i] = items[m.Index]
	}
	return out
}

// ParseHover extracts the text of a hover result. contents may be a plain
// string, a MarkupContent or MarkedString object, or an array of those.
func ParseHover(result []byte) string {
	contents := gjson.GetBytes(result, "contents")
	if contents.IsArray() {
		var parts []string
		contents.ForEach(func(_, c gjson.Result) bool {
			if s := hoverText(c); s != "" {
				parts = append(parts, s)
			}
			return true
		})
		return strings.Join(parts, "\n")
	}
	return hoverText(contents)
}

func hoverText(c gjson.Result) string {
	if c.IsObject() {
		return c.Get("value").String()
	}
	if c.Type == gjson.String {
		return c.String()
	}
	return ""
}

// WordPrefix returns the identifier immediately before the caret, given the
// text of the line up to the caret. Grapheme clusters are kept whole so a
// letter with combining marks counts as one character.
func WordPrefix(before string) string {
	var clusters []string
	state := -1
	for rest := before; len(rest) > 0; {
		var c string
		c, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		clusters = append(clusters, c)
	}

	i := len(clusters)
	for i > 0 && isWordCluster(clusters[i-1]) {
		i--
	}
	return strings.Join(clusters[i:], "")
}

func isWordCluster(c string) bool {
	r, _ := utf8.DecodeRuneInString(c)
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// PrefixLength returns the number of user-perceived characters in prefix.
func PrefixLength(prefix string) int {
	return uniseg.GraphemeClusterCount(prefix)
}
