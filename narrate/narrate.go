// Package narrate coordinates access to a single speech synthesis
// engine. A Coordinator serializes "speak this text" sessions through a
// FIFO lock so independently triggered narrations never talk over each
// other, resolves voices through a cached catalog, splits long text
// into engine-safe segments, and reports lifecycle and word-boundary
// progress to its callbacks.
//
// One Coordinator owns one engine. There is no package-level instance:
// the application's composition root constructs the Coordinator and
// passes it by reference to every consumer.
package narrate

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/odysseyos/narrator/narrate/segment"
)

// Coordinator serializes narration sessions over a single engine.
type Coordinator struct {
	engine  Engine
	catalog *Catalog
	lock    Mutex
	cfg     Config
	logger  *log.Logger

	mu      sync.Mutex
	cb      Callbacks
	current *Session

	tokens atomic.Uint64
}

// New creates a Coordinator for engine. A nil engine is legal and turns
// every operation into a safe no-op, mirroring an environment without
// narration capability. A nil logger selects the default logger.
func New(engine Engine, cfg Config, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{
		engine:  engine,
		catalog: NewCatalog(engine, cfg.VoiceLoadTimeout),
		cfg:     cfg,
		logger:  logger,
	}
}

// SetCallbacks registers the lifecycle callbacks applied to sessions
// started after the call.
func (c *Coordinator) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cb = cb
}

// Catalog exposes the coordinator's voice catalog.
func (c *Coordinator) Catalog() *Catalog { return c.catalog }

// State returns the lifecycle state of the active session, or StateIdle
// when none is active.
func (c *Coordinator) State() State {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return StateIdle
	}
	return s.State()
}

// Speak narrates req.Text, blocking until the narration ends, fails, or
// is superseded. A session already in flight is stopped first: calling
// Speak twice back to back cancels the first call, whose Speak then
// returns nil; supersession is not an error. Returns nil immediately
// for empty text or a nil engine.
func (c *Coordinator) Speak(ctx context.Context, req SpeakRequest) error {
	if c.engine == nil || strings.TrimSpace(req.Text) == "" {
		return nil
	}

	s := c.newSession(req)

	// Preempt the active session so the lock frees promptly, then
	// queue behind whatever is still ahead of us.
	c.mu.Lock()
	prev := c.current
	c.current = s
	c.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}

	err := c.lock.With(ctx, func() error {
		// A newer Speak may have superseded us while we waited.
		c.mu.Lock()
		stale := c.current != s
		c.mu.Unlock()
		if stale || s.stopRequested() {
			s.finish()
			return nil
		}

		voices, err := c.catalog.Voices(ctx)
		if err != nil {
			s.finish()
			return err
		}
		if voice, ok := Pick(voices, req.Voice); ok {
			s.voice = voice
		}

		s.segments = segment.Split(req.Text, c.cfg.MaxSegmentLength)
		c.logger.Debug("session start",
			"token", s.token,
			"voice", s.voice.Name,
			"segments", len(s.segments),
			"chars", len(req.Text))

		return s.run(ctx)
	})

	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()
	return err
}

// Pause suspends the active session. No-op when nothing is speaking.
func (c *Coordinator) Pause() error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Pause()
}

// Resume continues a paused session. No-op when nothing is paused.
func (c *Coordinator) Resume() error {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Resume()
}

// Stop cancels the active session and tells the engine to cancel
// outright, so no orphaned audio continues. Safe to call at any time,
// in any state, and never leaves the lock held.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s != nil {
		s.Stop()
	}
	if c.engine != nil {
		c.engine.Cancel()
	}
}

func (c *Coordinator) newSession(req SpeakRequest) *Session {
	rate := req.Rate
	if rate == 0 {
		rate = c.cfg.Rate
	}
	c.mu.Lock()
	cb := c.cb
	c.mu.Unlock()
	return &Session{
		token:        c.tokens.Add(1),
		text:         req.Text,
		rate:         rate,
		pitch:        c.cfg.Pitch,
		volume:       c.cfg.Volume,
		engine:       c.engine,
		cb:           cb,
		logger:       c.logger,
		stallBase:    c.cfg.StallBase,
		stallPerRune: c.cfg.StallPerRune,
		stop:         make(chan struct{}),
		pauseCh:      make(chan bool, 2),
	}
}
