// Package mock provides a deterministic in-process narration engine
// for tests and development. It speaks silently: boundary events fire
// word by word on a configurable interval, and voice loading can be
// delayed to exercise the catalog's change-notification path.
package mock

import (
	"sync"
	"time"

	"github.com/odysseyos/narrator/narrate"
)

// Config controls the mock engine's behavior.
type Config struct {
	// Voices is the inventory to expose. Nil selects a default set of
	// three English voices.
	Voices []narrate.Voice

	// LoadDelay keeps the inventory empty for the given duration, then
	// publishes it with a voices-changed signal. Zero publishes
	// immediately.
	LoadDelay time.Duration

	// WordInterval is the simulated speaking time per word before rate
	// scaling. Zero selects 2ms.
	WordInterval time.Duration

	// Err, when set, is reported through OnError after the last word
	// instead of OnEnd.
	Err error

	// Hang, when set, suppresses the terminal event entirely until the
	// utterance is cancelled. Exercises watchdog handling.
	Hang bool
}

// Engine implements narrate.Engine without producing audio.
type Engine struct {
	cfg Config

	mu      sync.Mutex
	voices  []narrate.Voice
	changed chan struct{}
	current *run
	spoken  []narrate.Utterance
	cancels int
}

type run struct {
	u          narrate.Utterance
	h          narrate.Handler
	cancel     chan struct{}
	cancelOnce sync.Once
	pause      chan bool
}

// New creates a mock engine.
func New(cfg Config) *Engine {
	if cfg.Voices == nil {
		cfg.Voices = []narrate.Voice{
			{Name: "Alloy", Lang: "en-US", Local: true},
			{Name: "Verse", Lang: "en-GB", Local: true},
			{Name: "Corra", Lang: "de-DE", Local: false},
		}
	}
	if cfg.WordInterval <= 0 {
		cfg.WordInterval = 2 * time.Millisecond
	}
	e := &Engine{
		cfg:     cfg,
		changed: make(chan struct{}, 1),
	}
	if cfg.LoadDelay <= 0 {
		e.voices = cfg.Voices
	} else {
		go func() {
			time.Sleep(cfg.LoadDelay)
			e.mu.Lock()
			e.voices = e.cfg.Voices
			e.mu.Unlock()
			select {
			case e.changed <- struct{}{}:
			default:
			}
		}()
	}
	return e
}

// Voices returns the currently published inventory.
func (e *Engine) Voices() []narrate.Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voices
}

// VoicesChanged returns the inventory change signal channel.
func (e *Engine) VoicesChanged() <-chan struct{} {
	return e.changed
}

// Speak starts speaking u, interrupting any active utterance.
func (e *Engine) Speak(u narrate.Utterance, h narrate.Handler) error {
	e.mu.Lock()
	if e.current != nil {
		e.current.doCancel()
	}
	r := &run{
		u:      u,
		h:      h,
		cancel: make(chan struct{}),
		pause:  make(chan bool, 4),
	}
	e.current = r
	e.spoken = append(e.spoken, u)
	e.mu.Unlock()

	go e.speakLoop(r)
	return nil
}

// Cancel interrupts the active utterance, if any.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancels++
	if e.current != nil {
		e.current.doCancel()
	}
}

// Pause suspends the active utterance.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		select {
		case e.current.pause <- true:
		default:
		}
	}
	return nil
}

// Resume continues a paused utterance.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		select {
		case e.current.pause <- false:
		default:
		}
	}
	return nil
}

// Spoken returns every utterance submitted so far, in order.
func (e *Engine) Spoken() []narrate.Utterance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]narrate.Utterance, len(e.spoken))
	copy(out, e.spoken)
	return out
}

// CancelCount returns how many times Cancel was called.
func (e *Engine) CancelCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancels
}

func (r *run) doCancel() {
	r.cancelOnce.Do(func() { close(r.cancel) })
}

func (e *Engine) speakLoop(r *run) {
	defer func() {
		e.mu.Lock()
		if e.current == r {
			e.current = nil
		}
		e.mu.Unlock()
	}()

	interval := e.cfg.WordInterval
	if r.u.Rate > 0 {
		interval = time.Duration(float64(interval) / r.u.Rate)
	}

	if r.h.OnStart != nil {
		r.h.OnStart()
	}

	for _, w := range narrate.WordSpans(r.u.Text) {
		if !r.wait(interval) {
			if r.h.OnError != nil {
				r.h.OnError(narrate.ErrInterrupted)
			}
			return
		}
		if r.h.OnBoundary != nil {
			r.h.OnBoundary(w.Start)
		}
	}

	if e.cfg.Hang {
		<-r.cancel
		if r.h.OnError != nil {
			r.h.OnError(narrate.ErrInterrupted)
		}
		return
	}
	if e.cfg.Err != nil {
		if r.h.OnError != nil {
			r.h.OnError(e.cfg.Err)
		}
		return
	}
	if r.h.OnEnd != nil {
		r.h.OnEnd()
	}
}

// wait sleeps for d, honoring pause toggles and cancellation. Returns
// false when the utterance was cancelled.
func (r *run) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	paused := false
	for {
		if paused {
			select {
			case <-r.cancel:
				return false
			case p := <-r.pause:
				if !p {
					paused = false
					if r.h.OnResume != nil {
						r.h.OnResume()
					}
					timer.Reset(d)
				}
			}
			continue
		}
		select {
		case <-timer.C:
			return true
		case <-r.cancel:
			return false
		case p := <-r.pause:
			if p {
				paused = true
				if !timer.Stop() {
					<-timer.C
				}
				if r.h.OnPause != nil {
					r.h.OnPause()
				}
			}
		}
	}
}
