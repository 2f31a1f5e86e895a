package extension

// EventHandler handles registry events.
// Handlers must be non-blocking and must not call back into the Registry.
// Panics in handlers are recovered.
type EventHandler func(event Event)

// Event reports a lifecycle change of one extension.
type Event struct {
	Type        EventType
	ExtensionID string
	Error       error
}

// EventType is the type of registry event.
type EventType int

const (
	// EventRegistered is emitted when a record is created from a manifest.
	EventRegistered EventType = iota
	// EventLoaded is emitted when an extension finished initializing.
	EventLoaded
	// EventUnloaded is emitted when an extension's code was torn down.
	EventUnloaded
	// EventEnabled is emitted when an extension is enabled.
	EventEnabled
	// EventDisabled is emitted when an extension is disabled.
	EventDisabled
	// EventRemoved is emitted when an extension is removed.
	EventRemoved
	// EventBlocked is emitted when the host policy blocked an extension.
	EventBlocked
	// EventError is emitted when an extension failed to load.
	EventError
)

// String returns a string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventRegistered:
		return "registered"
	case EventLoaded:
		return "loaded"
	case EventUnloaded:
		return "unloaded"
	case EventEnabled:
		return "enabled"
	case EventDisabled:
		return "disabled"
	case EventRemoved:
		return "removed"
	case EventBlocked:
		return "blocked"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}
