package capability

import "context"

// Callback is a function supplied by extension code. Runtimes wrap script
// functions in a Callback that serializes access to their VM.
type Callback func(ctx context.Context, args ...any) (any, error)

// Command is a palette command.
type Command struct {
	ID          string
	Name        string
	Description string
	Shortcut    string
	Category    string
	Execute     Callback
}

// Hook is a lifecycle hook callback.
type Hook struct {
	Type     string
	Callback Callback
}

// Filter transforms a value passing through a host pipeline.
type Filter struct {
	Type  string
	Apply Callback
}

// Slot places an extension component into a named UI slot. Component is
// opaque to the runtime.
type Slot struct {
	ID        string
	Component any
	Priority  int
}

// ContextMenuItem is an entry of a context menu. When, if set, decides
// per invocation whether the item is shown.
type ContextMenuItem struct {
	ID       string
	Label    string
	Icon     string
	Shortcut string
	Execute  Callback
	When     Callback
	Priority int
	Divider  bool
}

// MenuItem is an entry of a menu-bar category.
type MenuItem struct {
	ID       string
	Label    string
	Shortcut string
	Execute  Callback
	Priority int
	Divider  bool
}

// MenuCategory is a top-level menu-bar entry.
type MenuCategory struct {
	ID       string
	Label    string
	Priority int
}
