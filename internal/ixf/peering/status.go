package peering

// State is the lifecycle state of a peering session or prefix. The string
// values are what storage holds.
type State string

const (
	StatePending State = "pending"
	StateActive  State = "ok"
	StateDeleted State = "deleted"
)

// IsValid checks if a state is valid
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateActive, StateDeleted:
		return true
	default:
		return false
	}
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// validTransitions lists ordinary moves. Deleted to active is only reachable
// through Session.Resurrect.
var validTransitions = map[State]map[State]bool{
	StatePending: {
		StateActive:  true,
		StateDeleted: true,
	},
	StateActive: {
		StateActive:  true,
		StateDeleted: true,
	},
	StateDeleted: {},
}

// CanTransitionTo checks if a state can move to target through an ordinary transition
func (s State) CanTransitionTo(target State) bool {
	allowedTargets, exists := validTransitions[s]
	if !exists {
		return false
	}
	return allowedTargets[target]
}
