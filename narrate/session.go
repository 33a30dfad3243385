package narrate

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/odysseyos/narrator/narrate/segment"
)

// SpeakRequest describes one "speak this text" operation.
type SpeakRequest struct {
	Text  string
	Voice string  // voice name; empty selects the default voice
	Rate  float64 // 0 means the coordinator's configured rate
}

// Session tracks one speak operation across its segments: lifecycle
// state, current segment index, and the engine handshake for the
// in-flight utterance. Sessions are created by the Coordinator and
// discarded once Ended.
type Session struct {
	token    uint64
	text     string
	voice    Voice
	rate     float64
	pitch    float64
	volume   float64
	segments []segment.Segment

	engine Engine
	cb     Callbacks
	logger *log.Logger

	stallBase    time.Duration
	stallPerRune time.Duration

	mu    sync.Mutex
	state State
	index int

	stop     chan struct{}
	stopOnce sync.Once
	pauseCh  chan bool // true = paused, false = resumed
}

// Token returns the session's monotonically increasing identity,
// used to detect staleness when sessions are superseded.
func (s *Session) Token() uint64 { return s.token }

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SegmentIndex returns the index of the segment currently speaking.
func (s *Session) SegmentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Stop cancels the session. Safe to call in any state, any number of
// times, including on sessions that never started. The engine is told
// to cancel so no orphaned audio continues; the session's Speak call
// resolves normally rather than failing.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Pause suspends the session. No-op unless currently speaking.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.state != StateSpeaking {
		s.mu.Unlock()
		return nil
	}
	s.state = StatePaused
	s.mu.Unlock()

	select {
	case s.pauseCh <- true:
	default:
	}
	return s.engine.Pause()
}

// Resume continues a paused session. No-op unless currently paused.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.state != StatePaused {
		s.mu.Unlock()
		return nil
	}
	s.state = StateSpeaking
	s.mu.Unlock()

	select {
	case s.pauseCh <- false:
	default:
	}
	return s.engine.Resume()
}

func (s *Session) stopRequested() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// transition moves the session to the target state if the lifecycle
// permits it, reporting whether the move happened.
func (s *Session) transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransition(to) {
		return false
	}
	s.state = to
	return true
}

// run speaks every segment in order. Called with the narration lock
// held. Returns nil on normal completion and on benign termination
// (stop, preemption); only genuine engine failures are returned, after
// being reported through OnError.
func (s *Session) run(ctx context.Context) error {
	if s.stopRequested() || !s.transition(StateSpeaking) {
		s.finish()
		return nil
	}
	if s.cb.OnStart != nil {
		s.cb.OnStart(s.token)
	}

	for {
		s.mu.Lock()
		idx := s.index
		s.mu.Unlock()
		if idx >= len(s.segments) {
			break
		}
		seg := s.segments[idx]

		err := s.awaitResume(ctx)
		if err == nil {
			err = s.speakSegment(ctx, seg)
		}
		if err != nil {
			if IsBenign(err) {
				s.logger.Debug("session interrupted",
					"token", s.token, "segment", seg.Index)
				s.finish()
				return nil
			}
			s.fail(err)
			return err
		}
		if s.stopRequested() {
			s.finish()
			return nil
		}

		s.mu.Lock()
		s.index++
		s.mu.Unlock()
	}

	s.finish()
	return nil
}

// speakSegment submits one segment to the engine and waits for its
// terminal event, the stop signal, or the watchdog deadline. Boundary
// offsets are remapped from segment-relative to whole-text offsets
// before being reported.
func (s *Session) speakSegment(ctx context.Context, seg segment.Segment) error {
	select {
	case <-s.stop:
		return ErrStopped
	default:
	}

	done := make(chan error, 1)
	h := Handler{
		OnBoundary: func(p int) {
			if s.cb.OnBoundary == nil {
				return
			}
			off := seg.Start + p
			s.cb.OnBoundary(off, WordIndexAt(s.text, off))
		},
		OnPause: func() {
			if s.cb.OnPause != nil {
				s.cb.OnPause()
			}
		},
		OnResume: func() {
			if s.cb.OnResume != nil {
				s.cb.OnResume()
			}
		},
		OnEnd:   func() { done <- nil },
		OnError: func(err error) { done <- err },
	}

	u := Utterance{
		ID:     uuid.NewString(),
		Text:   seg.Text,
		Voice:  s.voice,
		Rate:   s.rate,
		Pitch:  s.pitch,
		Volume: s.volume,
	}
	if err := s.engine.Speak(u, h); err != nil {
		return err
	}

	// Bounded wait: the engine's completion callback is not guaranteed
	// to fire, so a deadline scaled to the segment length backstops it.
	remaining := s.deadlineFor(seg.Text)
	watchdog := time.NewTimer(remaining)
	defer watchdog.Stop()
	lastStart := time.Now()

	for {
		select {
		case err := <-done:
			return err
		case <-s.stop:
			s.engine.Cancel()
			s.awaitCancel(done)
			return ErrStopped
		case <-ctx.Done():
			s.engine.Cancel()
			s.awaitCancel(done)
			return ctx.Err()
		case paused := <-s.pauseCh:
			if paused {
				if !watchdog.Stop() {
					<-watchdog.C
				}
				remaining -= time.Since(lastStart)
			} else {
				if remaining < time.Second {
					remaining = time.Second
				}
				lastStart = time.Now()
				watchdog.Reset(remaining)
			}
		case <-watchdog.C:
			s.engine.Cancel()
			s.awaitCancel(done)
			return fmt.Errorf("%w: segment %d", ErrEngineStalled, seg.Index)
		}
	}
}

// awaitResume holds the session between segments while it is paused. A
// pause landing after segment n completes finds no utterance for the
// engine to hold, so the session itself must keep segment n+1 from
// starting until Resume. Pause tokens left over from cycles that
// completed within a segment are drained first.
func (s *Session) awaitResume(ctx context.Context) error {
	for {
		select {
		case <-s.pauseCh:
			continue
		default:
		}
		s.mu.Lock()
		paused := s.state == StatePaused
		s.mu.Unlock()
		if !paused {
			return nil
		}
		select {
		case <-s.pauseCh:
		case <-s.stop:
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// awaitCancel gives the engine a moment to confirm a cancellation so
// its callbacks do not leak into the next session.
func (s *Session) awaitCancel(done <-chan error) {
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

func (s *Session) deadlineFor(text string) time.Duration {
	d := s.stallBase + time.Duration(utf8.RuneCountInString(text))*s.stallPerRune
	if s.rate > 0 && s.rate < 1 {
		d = time.Duration(float64(d) / s.rate)
	}
	return d
}

// finish moves the session to Ended and emits OnEnd. Termination by
// stop or preemption ends the session normally; cancellation is not an
// error.
func (s *Session) finish() {
	s.mu.Lock()
	already := s.state == StateEnded
	s.state = StateEnded
	s.mu.Unlock()
	if already {
		return
	}
	if s.cb.OnEnd != nil {
		s.cb.OnEnd(s.token)
	}
}

// fail moves the session to Ended and reports err through OnError.
func (s *Session) fail(err error) {
	s.mu.Lock()
	already := s.state == StateEnded
	s.state = StateEnded
	s.mu.Unlock()
	if already {
		return
	}
	s.logger.Error("session failed", "token", s.token, "error", err)
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}
