package optimization

// State is the lifecycle state of an evolution loop.
type State int

const (
	// StateSeeding is the state before the initial population exists.
	StateSeeding State = iota
	// StateRunning means generations are being produced.
	StateRunning
	// StateExhausted means the generation budget was consumed.
	StateExhausted
	// StateStagnant means the best distance did not change for the configured window.
	StateStagnant
	// StateCollapsed means every candidate in the population describes the same route.
	StateCollapsed
	// StateCancelled means the run was stopped at a generation boundary.
	StateCancelled
)

var stateNames = map[State]string{
	StateSeeding:   "seeding",
	StateRunning:   "running",
	StateExhausted: "exhausted",
	StateStagnant:  "stagnant",
	StateCollapsed: "collapsed",
	StateCancelled: "cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further generations will be produced.
func (s State) Terminal() bool {
	return s != StateSeeding && s != StateRunning
}
