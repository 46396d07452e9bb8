package dispatcher

import "strings"

// Event is an abstract input message. Which fields are meaningful depends on
// the event name.
type Event struct {
	// Name is the full event name, "namespace.action".
	Name string

	// URI names the document the event applies to, if any.
	URI string

	// Start and End are byte offsets. For caret events only Start is used.
	Start int64
	End   int64

	// Text is the text carried by the event.
	Text string

	// Args holds event-specific extras.
	Args map[string]any
}

// Namespace returns the part of the name before the first dot.
func (e Event) Namespace() string {
	return extractNamespace(e.Name)
}

// Action returns the part of the name after the first dot.
func (e Event) Action() string {
	return ExtractActionName(e.Name)
}

// Arg returns an extra argument.
func (e Event) Arg(key string) (any, bool) {
	if e.Args == nil {
		return nil, false
	}
	v, ok := e.Args[key]
	return v, ok
}

// ArgString returns a string argument, or "".
func (e Event) ArgString(key string) string {
	if v, ok := e.Arg(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ArgInt returns an integer argument, or 0.
func (e Event) ArgInt(key string) int {
	if v, ok := e.Arg(key); ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 0
}

// extractNamespace extracts the namespace from "namespace.action" format.
// Returns empty string if no namespace separator is found.
func extractNamespace(name string) string {
	idx := strings.Index(name, ".")
	if idx < 0 {
		return ""
	}
	return name[:idx]
}

// ExtractActionName extracts the action name without namespace.
// For "edit.insert", returns "insert".
// For names without namespace, returns the full name.
func ExtractActionName(fullName string) string {
	idx := strings.Index(fullName, ".")
	if idx < 0 {
		return fullName
	}
	return fullName[idx+1:]
}

// BuildActionName builds a full event name from namespace and action.
// For "edit" and "insert", returns "edit.insert".
func BuildActionName(namespace, action string) string {
	if namespace == "" {
		return action
	}
	return namespace + "." + action
}
