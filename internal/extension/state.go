package extension

// State is the lifecycle state of an extension.
type State int

// Extension states.
const (
	// StateUnregistered - no record exists.
	StateUnregistered State = iota

	// StateRegistered - a record built from the manifest with no code
	// running because the extension was unloaded.
	StateRegistered

	// StateDisabled - the settings store marks the extension disabled.
	// Code held from an earlier load is kept but unreachable.
	StateDisabled

	// StateLoading - source is being validated, evaluated or initialized.
	StateLoading

	// StateLoaded - evaluated and initialized, registrations live.
	StateLoaded

	// StateError - a load step failed; the record is kept with the error.
	StateError

	// StatePolicyBlocked - the host policy forbids running extension code.
	StatePolicyBlocked
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateDisabled:
		return "disabled"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	case StatePolicyBlocked:
		return "policy-blocked"
	default:
		return "unknown"
	}
}
