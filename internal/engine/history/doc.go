// Package history provides undo/redo for a single document.
//
// Every user edit is a Command with Execute and Undo methods. Commands never
// touch a buffer directly: they go through a Target, whose Replace both
// mutates the local text and synchronizes the change with the language
// server. Undo and redo therefore produce the same notifications as the
// original edit.
//
// # Commands
//
//   - InsertCommand: typed or pasted text, replacing the selection if any
//   - DeleteCommand: single character backspace or forward delete
//   - RemoveCommand: removal of a selected range
//   - CompoundCommand: several commands undone as one unit
//
// # Coalescing
//
// Consecutive single-character edits are merged into one undo step. Two
// inserts merge when the second starts where the first ended, neither
// displaced a selection, and neither ends with a line break. Deletes merge
// when they continue in the same direction from the same spot. Once a step
// has been undone, the next edit always starts a new step.
//
//	h := history.New(1000)
//	h.Execute(history.NewInsertCommand(doc, "h"), doc)
//	h.Execute(history.NewInsertCommand(doc, "i"), doc) // merged with "h"
//	h.Undo(doc)                                        // removes "hi"
//
// # Grouping
//
//	h.BeginGroup("Format")
//	// ... several Execute calls ...
//	h.EndGroup()
package history
