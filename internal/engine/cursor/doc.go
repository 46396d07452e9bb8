// Package cursor provides the anchor/head selection carried by edit
// commands. A selection with Anchor == Head is a plain caret.
package cursor
