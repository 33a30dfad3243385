package narrate

// Voice describes a single narration voice offered by an engine.
type Voice struct {
	Name  string // engine-assigned identifier
	Lang  string // BCP 47 locale tag, e.g. "en-US"
	Local bool   // synthesized on-host rather than by a remote service
}

// Utterance is one bounded chunk of text submitted to an engine. The
// coordinator never submits more than one utterance at a time.
type Utterance struct {
	ID     string  // unique per submission
	Text   string  // segment text, never empty
	Voice  Voice   // zero value means the engine default
	Rate   float64 // speech rate multiplier (1.0 = normal)
	Pitch  float64 // pitch multiplier (1.0 = normal)
	Volume float64 // volume level (0.0 to 1.0)
}

// Handler receives lifecycle callbacks for a single utterance. Nil
// callbacks are skipped. Engines must deliver callbacks for one
// utterance sequentially: OnStart first, then any number of OnBoundary,
// OnPause and OnResume calls, then exactly one of OnEnd or OnError.
// Boundary offsets are byte offsets into the utterance text.
type Handler struct {
	OnStart    func()
	OnBoundary func(charIndex int)
	OnPause    func()
	OnResume   func()
	OnEnd      func()
	OnError    func(err error)
}

// Engine is the narration backend: it enumerates voices and converts
// one utterance at a time into audible speech, reporting progress
// through the Handler supplied with each utterance.
type Engine interface {
	// Voices returns the voices currently known to the engine. The
	// result may be empty while the engine is still loading its
	// inventory; a change is announced via VoicesChanged.
	Voices() []Voice

	// VoicesChanged returns a channel that receives a signal whenever
	// the engine's voice inventory changes.
	VoicesChanged() <-chan struct{}

	// Speak begins synthesizing u and returns without waiting for
	// completion. Lifecycle is reported through h. Submitting a new
	// utterance while another is active interrupts the active one.
	Speak(u Utterance, h Handler) error

	// Cancel discards the active utterance, if any. The engine reports
	// the cancellation through the pending handler as ErrInterrupted.
	Cancel()

	// Pause suspends the active utterance in place.
	Pause() error

	// Resume continues a paused utterance.
	Resume() error
}
