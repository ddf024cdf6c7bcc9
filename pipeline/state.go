package pipeline

// State identifies where an ingestion run currently is. Runs move
// strictly forward; the two terminal states never change again.
type State string

const (
	StateStarted       State = "started"
	StateFetching      State = "fetching"
	StateNormalizing   State = "normalizing"
	StatePersisting    State = "persisting"
	StateReportingOnly State = "reporting_only"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// transitions lists the legal moves. A dry run enters reporting_only
// where a real run enters persisting; failed is reachable from every
// non-terminal state.
var transitions = map[State][]State{
	StateStarted:       {StateFetching, StateFailed},
	StateFetching:      {StateNormalizing, StateCompleted, StateFailed},
	StateNormalizing:   {StatePersisting, StateReportingOnly, StateFetching, StateFailed},
	StatePersisting:    {StateFetching, StateCompleted, StateFailed},
	StateReportingOnly: {StateFetching, StateCompleted, StateFailed},
}

// CanTransition reports whether a run may move between two states.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
