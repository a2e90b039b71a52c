package plugins

import "fmt"

// State is a plugin lifecycle state
type State int

const (
	// StateLoaded means the module is open and the descriptor parsed
	StateLoaded State = iota
	// StateInitialized means the entry point ran successfully
	StateInitialized
	// StateRunning means at least one hook call is in flight
	StateRunning
	// StateFailed means some lifecycle step failed; only Unload remains
	StateFailed
	// StateUnloaded is final; the module handle was released
	StateUnloaded
)

var stateNames = map[State]string{
	StateLoaded:      "loaded",
	StateInitialized: "initialized",
	StateRunning:     "running",
	StateFailed:      "failed",
	StateUnloaded:    "unloaded",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown plugin state %q", text)
}

// CanInvoke reports whether hooks may be called in this state
func (s State) CanInvoke() bool {
	return s == StateInitialized || s == StateRunning
}
