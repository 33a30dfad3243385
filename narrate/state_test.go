package narrate

import "testing"

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateSpeaking, "speaking"},
		{StatePaused, "paused"},
		{StateEnded, "ended"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"idle to speaking", StateIdle, StateSpeaking, true},
		{"idle to ended", StateIdle, StateEnded, true},
		{"idle to paused", StateIdle, StatePaused, false},
		{"speaking to paused", StateSpeaking, StatePaused, true},
		{"speaking to ended", StateSpeaking, StateEnded, true},
		{"speaking to idle", StateSpeaking, StateIdle, false},
		{"paused to speaking", StatePaused, StateSpeaking, true},
		{"paused to ended", StatePaused, StateEnded, true},
		{"ended is terminal", StateEnded, StateSpeaking, false},
		{"ended to idle", StateEnded, StateIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%v -> %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStateTerminal(t *testing.T) {
	for _, s := range []State{StateIdle, StateSpeaking, StatePaused} {
		if s.Terminal() {
			t.Errorf("%v should not be terminal", s)
		}
	}
	if !StateEnded.Terminal() {
		t.Error("StateEnded should be terminal")
	}
}
