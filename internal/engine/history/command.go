package history

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dshills/lspsync/internal/engine/buffer"
	"github.com/dshills/lspsync/internal/engine/cursor"
)

// ByteOffset is re-exported for convenience.
type ByteOffset = buffer.ByteOffset

// Target is the document a command edits.
type Target interface {
	// Replace swaps [start, end) for text.
	Replace(start, end ByteOffset, text string) error

	// TextRange returns the text in [start, end).
	TextRange(start, end ByteOffset) string

	// Len returns the document length in bytes.
	Len() ByteOffset

	// Selection returns the current caret/selection.
	Selection() cursor.Selection

	// SetSelection moves the caret/selection.
	SetSelection(sel cursor.Selection)
}

// Command represents an edit that can be executed and undone.
type Command interface {
	// Execute performs the command.
	Execute(t Target) error

	// Undo reverses the command.
	Undo(t Target) error

	// Description returns a human-readable description of the command.
	Description() string
}

// Merger is implemented by commands that can absorb the command that
// follows them into a single undo step.
type Merger interface {
	// MergeWith folds next into the receiver and reports whether it did.
	// next has already been executed.
	MergeWith(next Command) bool
}

// noop is implemented by commands that turned out to change nothing.
type noop interface {
	IsNoop() bool
}

func endsWithLineBreak(s string) bool {
	return strings.HasSuffix(s, "\n") || strings.HasSuffix(s, "\r")
}

// InsertCommand inserts text at the caret, replacing the selection if there
// is one.
type InsertCommand struct {
	Text      string
	Displaced string
	Before    cursor.Selection

	start ByteOffset
}

// NewInsertCommand captures the caret and the selected text of t.
func NewInsertCommand(t Target, text string) *InsertCommand {
	sel := t.Selection()
	r := sel.Range()
	return &InsertCommand{
		Text:      text,
		Displaced: t.TextRange(r.Start, r.End),
		Before:    sel,
		start:     r.Start,
	}
}

// Start returns the offset the text is inserted at.
func (c *InsertCommand) Start() ByteOffset { return c.start }

// End returns the offset just past the inserted text.
func (c *InsertCommand) End() ByteOffset { return c.start + ByteOffset(len(c.Text)) }

// Execute replaces the captured selection with the text.
func (c *InsertCommand) Execute(t Target) error {
	end := c.start + ByteOffset(len(c.Displaced))
	if err := t.Replace(c.start, end, c.Text); err != nil {
		return fmt.Errorf("insert at offset %d: %w", c.start, err)
	}
	t.SetSelection(cursor.NewCursorSelection(c.End()))
	return nil
}

// Undo restores the displaced text and the original selection.
func (c *InsertCommand) Undo(t Target) error {
	if err := t.Replace(c.start, c.End(), c.Displaced); err != nil {
		return fmt.Errorf("undo insert at offset %d: %w", c.start, err)
	}
	t.SetSelection(c.Before)
	return nil
}

// Description returns a description of the insertion.
func (c *InsertCommand) Description() string {
	if c.Displaced != "" {
		return "Replace"
	}
	if utf8.RuneCountInString(c.Text) == 1 {
		return "Type"
	}
	return "Insert"
}

// IsNoop reports whether the command changes nothing.
func (c *InsertCommand) IsNoop() bool {
	return c.Text == "" && c.Displaced == ""
}

// MergeWith appends a following insertion typed at the end of this one.
func (c *InsertCommand) MergeWith(next Command) bool {
	n, ok := next.(*InsertCommand)
	if !ok {
		return false
	}
	if c.Displaced != "" || n.Displaced != "" {
		return false
	}
	if n.start != c.End() {
		return false
	}
	if endsWithLineBreak(c.Text) || endsWithLineBreak(n.Text) {
		return false
	}
	c.Text += n.Text
	return true
}

// Direction selects which side of the caret a DeleteCommand removes.
type Direction uint8

const (
	// Backward deletes the character before the caret (backspace).
	Backward Direction = iota
	// Forward deletes the character after the caret.
	Forward
)

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

// DeleteCommand removes one character next to the caret. Merged commands
// hold the whole run of removed text.
type DeleteCommand struct {
	Direction Direction
	Text      string
	Before    cursor.Selection

	start ByteOffset
}

// NewDeleteCommand captures the character adjacent to the caret of t. At a
// document boundary the command is a no-op.
func NewDeleteCommand(t Target, dir Direction) *DeleteCommand {
	sel := t.Selection()
	caret := sel.Head
	c := &DeleteCommand{Direction: dir, Before: sel, start: caret}

	switch dir {
	case Backward:
		lo := caret - utf8.UTFMax
		if lo < 0 {
			lo = 0
		}
		_, size := utf8.DecodeLastRuneInString(t.TextRange(lo, caret))
		c.start = caret - ByteOffset(size)
	case Forward:
		hi := caret + utf8.UTFMax
		if hi > t.Len() {
			hi = t.Len()
		}
		_, size := utf8.DecodeRuneInString(t.TextRange(caret, hi))
		hi = caret + ByteOffset(size)
		c.Text = t.TextRange(caret, hi)
		return c
	}
	c.Text = t.TextRange(c.start, caret)
	return c
}

// Start returns the offset of the first removed byte.
func (c *DeleteCommand) Start() ByteOffset { return c.start }

// Execute removes the captured text.
func (c *DeleteCommand) Execute(t Target) error {
	if c.Text == "" {
		return nil
	}
	if err := t.Replace(c.start, c.start+ByteOffset(len(c.Text)), ""); err != nil {
		return fmt.Errorf("delete at offset %d: %w", c.start, err)
	}
	t.SetSelection(cursor.NewCursorSelection(c.start))
	return nil
}

// Undo reinserts the removed text.
func (c *DeleteCommand) Undo(t Target) error {
	if c.Text == "" {
		return nil
	}
	if err := t.Replace(c.start, c.start, c.Text); err != nil {
		return fmt.Errorf("undo delete at offset %d: %w", c.start, err)
	}
	t.SetSelection(c.Before)
	return nil
}

// Description returns a description of the deletion.
func (c *DeleteCommand) Description() string {
	return "Delete " + c.Direction.String()
}

// IsNoop reports whether there was nothing to delete.
func (c *DeleteCommand) IsNoop() bool { return c.Text == "" }

// MergeWith absorbs a deletion continuing in the same direction.
func (c *DeleteCommand) MergeWith(next Command) bool {
	n, ok := next.(*DeleteCommand)
	if !ok || n.Direction != c.Direction || n.Text == "" || c.Text == "" {
		return false
	}
	switch c.Direction {
	case Backward:
		if n.start+ByteOffset(len(n.Text)) != c.start {
			return false
		}
		c.Text = n.Text + c.Text
		c.start = n.start
	case Forward:
		if n.start != c.start {
			return false
		}
		c.Text += n.Text
	}
	return true
}

// RemoveCommand deletes the selected range. It never merges.
type RemoveCommand struct {
	Text   string
	Before cursor.Selection

	start ByteOffset
}

// NewRemoveCommand captures the selection of t.
func NewRemoveCommand(t Target) *RemoveCommand {
	sel := t.Selection()
	r := sel.Range()
	return &RemoveCommand{
		Text:   t.TextRange(r.Start, r.End),
		Before: sel,
		start:  r.Start,
	}
}

// Execute removes the selection.
func (c *RemoveCommand) Execute(t Target) error {
	if c.Text == "" {
		return nil
	}
	if err := t.Replace(c.start, c.start+ByteOffset(len(c.Text)), ""); err != nil {
		return fmt.Errorf("remove at offset %d: %w", c.start, err)
	}
	t.SetSelection(cursor.NewCursorSelection(c.start))
	return nil
}

// Undo restores the removed text and reselects it.
func (c *RemoveCommand) Undo(t Target) error {
	if c.Text == "" {
		return nil
	}
	if err := t.Replace(c.start, c.start, c.Text); err != nil {
		return fmt.Errorf("undo remove at offset %d: %w", c.start, err)
	}
	t.SetSelection(c.Before)
	return nil
}

// Description returns "Remove selection".
func (c *RemoveCommand) Description() string { return "Remove selection" }

// IsNoop reports whether the selection was empty.
func (c *RemoveCommand) IsNoop() bool { return c.Text == "" }

// CompoundCommand groups multiple commands as one undo unit.
type CompoundCommand struct {
	Name     string
	Commands []Command
}

// NewCompoundCommand creates a new compound command.
func NewCompoundCommand(name string, commands ...Command) *CompoundCommand {
	return &CompoundCommand{Name: name, Commands: commands}
}

// Execute runs all commands in order.
func (c *CompoundCommand) Execute(t Target) error {
	for i, cmd := range c.Commands {
		if err := cmd.Execute(t); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = c.Commands[j].Undo(t)
			}
			return fmt.Errorf("compound command '%s' step %d: %w", c.Name, i, err)
		}
	}
	return nil
}

// Undo reverses all commands in reverse order.
func (c *CompoundCommand) Undo(t Target) error {
	for i := len(c.Commands) - 1; i >= 0; i-- {
		if err := c.Commands[i].Undo(t); err != nil {
			return fmt.Errorf("undo compound command '%s' step %d: %w", c.Name, i, err)
		}
	}
	return nil
}

// Description returns the compound command's name.
func (c *CompoundCommand) Description() string {
	if c.Name != "" {
		return c.Name
	}
	if len(c.Commands) == 1 {
		return c.Commands[0].Description()
	}
	return fmt.Sprintf("%d operations", len(c.Commands))
}

// IsNoop returns true if the compound command has no commands.
func (c *CompoundCommand) IsNoop() bool {
	return len(c.Commands) == 0
}
