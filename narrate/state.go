package narrate

// State represents the lifecycle state of a narration session.
type State int

const (
	// StateIdle indicates the session has not started speaking yet.
	StateIdle State = iota
	// StateSpeaking indicates the session is actively speaking.
	StateSpeaking
	// StatePaused indicates the session is suspended mid-utterance.
	StatePaused
	// StateEnded indicates the session finished, errored, or was
	// stopped. Ended sessions are discarded, never reused.
	StateEnded
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state permits no further transitions.
func (s State) Terminal() bool {
	return s == StateEnded
}

// Valid transitions per state. Idle may move straight to Ended when a
// session is stopped before it ever acquires the lock.
var stateTransitions = map[State][]State{
	StateIdle:     {StateSpeaking, StateEnded},
	StateSpeaking: {StatePaused, StateEnded},
	StatePaused:   {StateSpeaking, StateEnded},
	StateEnded:    {},
}

// CanTransition reports whether moving from s to the given state is a
// legal lifecycle transition.
func (s State) CanTransition(to State) bool {
	for _, next := range stateTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
