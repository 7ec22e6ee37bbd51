package supervisor

// State represents the lifecycle state of the supervised process.
type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateReady      State = "ready"
	StateCrashed    State = "crashed"
	StateStopped    State = "stopped"
)

var allStates = []State{StateNotStarted, StateStarting, StateReady, StateCrashed, StateStopped}

// Snapshot is a read-only projection of the supervisor state.
type Snapshot struct {
	State State
	PID   int
	Err   string
}
