package history

// BeginGroup starts collecting commands into one undo step. Nested calls
// are folded into the outermost group.
func (h *History) BeginGroup(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.grouping {
		return
	}
	h.grouping = true
	h.groupName = name
	h.groupCmds = nil
}

// EndGroup closes the current group and records it as a CompoundCommand.
func (h *History) EndGroup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.grouping {
		return
	}
	cmds := h.groupCmds
	name := h.groupName
	h.grouping = false
	h.groupName = ""
	h.groupCmds = nil

	switch len(cmds) {
	case 0:
		return
	case 1:
		h.pushLocked(cmds[0])
	default:
		h.pushLocked(NewCompoundCommand(name, cmds...))
	}
}

// CancelGroup discards the open group. Commands already executed still
// affect the document.
func (h *History) CancelGroup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.grouping = false
	h.groupName = ""
	h.groupCmds = nil
}

// IsGrouping reports whether a group is open.
func (h *History) IsGrouping() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.grouping
}

// Transaction runs fn inside a group. If fn fails the group is cancelled.
// Inside an open group fn simply joins it.
func (h *History) Transaction(name string, fn func() error) error {
	if h.IsGrouping() {
		return fn()
	}
	h.BeginGroup(name)
	if err := fn(); err != nil {
		h.CancelGroup()
		return err
	}
	h.EndGroup()
	return nil
}
