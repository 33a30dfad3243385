package narrate

import (
	"context"
	"errors"
)

// Common errors for the narration system.
var (
	// ErrInterrupted is reported by engines when an utterance is
	// cancelled mid-flight. It is a normal consequence of Stop or of a
	// newer session preempting the engine, never a failure.
	ErrInterrupted = errors.New("utterance interrupted")

	// ErrStopped marks a session terminated by an explicit Stop.
	ErrStopped = errors.New("narration stopped")

	// ErrEngineStalled is returned when the engine reports neither
	// completion nor failure for an utterance before its watchdog
	// deadline expires.
	ErrEngineStalled = errors.New("engine reported no completion before deadline")

	// ErrNoVoices is returned when an operation requires at least one
	// voice and the catalog resolved to an empty inventory.
	ErrNoVoices = errors.New("no voices available")

	// ErrQueueClosed is returned when enqueueing on a closed queue.
	ErrQueueClosed = errors.New("request queue is closed")
)

// IsBenign reports whether err is an expected consequence of stopping
// or preempting a session rather than a genuine engine failure. Benign
// terminations resolve sessions normally instead of surfacing to the
// caller's error callback.
func IsBenign(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, ErrInterrupted) ||
		errors.Is(err, ErrStopped) ||
		errors.Is(err, context.Canceled)
}
