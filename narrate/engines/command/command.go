// Package command implements a narration engine that shells out to an
// external synthesis binary (piper by default). Utterance text is piped
// to the subprocess, the raw PCM it emits is played through oto, and
// word boundaries are estimated from playback position.
package command

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/odysseyos/narrator/narrate"
)

// Engine synthesizes speech through a subprocess and plays the result.
type Engine struct {
	cfg     narrate.CommandConfig
	logger  *log.Logger
	limiter *rate.Limiter
	player  *player
	changed chan struct{}
	voices  []narrate.Voice

	mu      sync.Mutex
	current *utteranceRun
}

type utteranceRun struct {
	cancel context.CancelFunc
	pause  chan bool
	h      narrate.Handler
}

// New creates a command engine. Fails when the binary is not on PATH or
// the audio device cannot be opened. A nil logger selects the default
// logger.
func New(cfg narrate.CommandConfig, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := checkBinary(cfg.Binary); err != nil {
		return nil, err
	}
	p, err := newPlayer(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.SpawnPerSecond), 1),
		player:  p,
		changed: make(chan struct{}),
		voices:  []narrate.Voice{voiceForModel(cfg.Model)},
	}, nil
}

// Voices returns the configured model as a single-entry inventory.
func (e *Engine) Voices() []narrate.Voice { return e.voices }

// VoicesChanged returns a channel that never fires; the inventory is
// fixed at construction.
func (e *Engine) VoicesChanged() <-chan struct{} { return e.changed }

// Speak synthesizes and plays u, interrupting any active utterance.
func (e *Engine) Speak(u narrate.Utterance, h narrate.Handler) error {
	ctx, cancel := context.WithCancel(context.Background())
	r := &utteranceRun{
		cancel: cancel,
		pause:  make(chan bool, 4),
		h:      h,
	}

	e.mu.Lock()
	if e.current != nil {
		e.current.cancel()
	}
	e.current = r
	e.mu.Unlock()

	go e.speak(ctx, r, u)
	return nil
}

// Cancel interrupts the active utterance, if any.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.current.cancel()
	}
}

// Pause suspends playback of the active utterance.
func (e *Engine) Pause() error {
	e.mu.Lock()
	r := e.current
	e.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case r.pause <- true:
	default:
	}
	if r.h.OnPause != nil {
		r.h.OnPause()
	}
	return nil
}

// Resume continues playback of a paused utterance.
func (e *Engine) Resume() error {
	e.mu.Lock()
	r := e.current
	e.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case r.pause <- false:
	default:
	}
	if r.h.OnResume != nil {
		r.h.OnResume()
	}
	return nil
}

func (e *Engine) speak(ctx context.Context, r *utteranceRun, u narrate.Utterance) {
	defer func() {
		r.cancel()
		e.mu.Lock()
		if e.current == r {
			e.current = nil
		}
		e.mu.Unlock()
	}()

	report := func(err error) {
		if errors.Is(err, context.Canceled) {
			err = narrate.ErrInterrupted
		}
		if r.h.OnError != nil {
			r.h.OnError(err)
		}
	}

	if r.h.OnStart != nil {
		r.h.OnStart()
	}

	if err := e.limiter.Wait(ctx); err != nil {
		report(err)
		return
	}

	pcm, err := synthesize(ctx, e.cfg, u.Text, e.buildArgs(u))
	if err != nil {
		report(err)
		return
	}
	e.logger.Debug("synthesized",
		"id", u.ID,
		"chars", len(u.Text),
		"audio", e.player.duration(pcm))

	// Playback position maps to text position by byte fraction: close
	// enough for word highlighting without forced-alignment data.
	spans := narrate.WordSpans(u.Text)
	next := 0
	progress := func(f float64) {
		for next < len(spans) && f >= float64(spans[next].Start)/float64(len(u.Text)) {
			if r.h.OnBoundary != nil {
				r.h.OnBoundary(spans[next].Start)
			}
			next++
		}
	}

	if err := e.player.play(ctx, pcm, u.Volume, r.pause, progress); err != nil {
		report(err)
		return
	}
	if r.h.OnEnd != nil {
		r.h.OnEnd()
	}
}

func (e *Engine) buildArgs(u narrate.Utterance) []string {
	args := append([]string{}, e.cfg.Args...)
	model := e.cfg.Model
	if u.Voice.Name != "" {
		model = u.Voice.Name
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, "--output_raw")
	if u.Rate > 0 && u.Rate != 1 {
		// piper expresses speed as a length scale, the inverse of rate.
		args = append(args, "--length_scale", strconv.FormatFloat(1/u.Rate, 'f', 2, 64))
	}
	return args
}

// voiceForModel derives a catalog entry from a piper model name such as
// "en_US-lessac-medium".
func voiceForModel(model string) narrate.Voice {
	lang := ""
	if i := strings.IndexByte(model, '-'); i > 0 {
		lang = strings.ReplaceAll(model[:i], "_", "-")
	}
	return narrate.Voice{Name: model, Lang: lang, Local: true}
}
