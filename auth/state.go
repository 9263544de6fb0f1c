package auth

import "fmt"

// State is the authentication FSM state. The ordinals are part of the
// telemetry contract.
type State uint32

const (
	Locked State = iota
	Armed
	Verifying
	Authenticated
	Faulted
)

// States lists every defined state in ordinal order.
var States = []State{Locked, Armed, Verifying, Authenticated, Faulted}

func (s State) String() string {
	switch s {
	case Locked:
		return "LOCKED"
	case Armed:
		return "ARMED"
	case Verifying:
		return "VERIFYING"
	case Authenticated:
		return "AUTHENTICATED"
	case Faulted:
		return "FAULTED"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return s <= Faulted
}

// active reports whether the stuck-sensor check applies in s.
func (s State) active() bool {
	return s == Armed || s == Verifying
}
