package capability

import (
	"encoding/json"
	"fmt"
)

// State is the host state visible to extensions. Each field must be
// JSON-encodable; extensions only ever receive copies.
type State struct {
	Notes  any `json:"notes"`
	Vault  any `json:"vault"`
	UI     any `json:"ui"`
	Search any `json:"search"`
}

// StateProvider supplies the current host state.
type StateProvider interface {
	State() State
}

// StateFunc adapts a function to StateProvider.
type StateFunc func() State

// State implements StateProvider.
func (f StateFunc) State() State {
	return f()
}

// Snapshot returns a deep copy of v made of maps, slices, strings,
// float64s, bools and nils.
func Snapshot(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return out, nil
}
