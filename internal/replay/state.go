package replay

// State is a video's position in its lifecycle.
type State int

const (
	StatePending State = iota
	StateExtracting
	StateExtractionDone
	StateStreaming
	StateCompleted
	StateFailed
	// StateSkipped is reached straight from Pending when the video's result
	// is already complete.
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateExtracting:
		return "extracting"
	case StateExtractionDone:
		return "extraction_done"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	}
	return "unknown"
}

// Terminal reports whether the video needs nothing more from the client.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateSkipped
}

var transitions = map[State][]State{
	StatePending:        {StateExtracting, StateSkipped},
	StateExtracting:     {StateExtractionDone, StateFailed},
	StateExtractionDone: {StateStreaming, StateFailed},
	StateStreaming:      {StateCompleted, StateFailed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
