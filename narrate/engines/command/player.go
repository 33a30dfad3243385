package command

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
)

// player wraps a shared oto context. The context is created once per
// process; oto does not support re-initialization with different
// formats, so the sample rate and channel count are fixed at startup.
type player struct {
	ctx        *oto.Context
	ready      chan struct{}
	sampleRate int
	channels   int
}

func newPlayer(sampleRate, channels int) (*player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("audio context: %w", err)
	}
	return &player{
		ctx:        ctx,
		ready:      ready,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// duration returns the playback time of pcm at the player's format.
func (p *player) duration(pcm []byte) time.Duration {
	bytesPerSecond := p.sampleRate * p.channels * 2
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(float64(len(pcm)) / float64(bytesPerSecond) * float64(time.Second))
}

// play blocks until pcm finishes, the context is cancelled, or a value
// arrives on pause (true suspends, false resumes). progress, if non-nil,
// is called periodically with the fraction of audio played so far.
func (p *player) play(ctx context.Context, pcm []byte, volume float64, pause <-chan bool, progress func(float64)) error {
	select {
	case <-p.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	pl := p.ctx.NewPlayer(bytes.NewReader(pcm))
	defer pl.Close()
	if volume > 0 && volume <= 1 {
		pl.SetVolume(volume)
	}
	pl.Play()

	total := p.duration(pcm)
	if total <= 0 {
		return nil
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	var elapsed time.Duration
	paused := false
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			pl.Pause()
			return ctx.Err()
		case v := <-pause:
			if v && !paused {
				elapsed += time.Since(last)
				paused = true
				pl.Pause()
			} else if !v && paused {
				paused = false
				last = time.Now()
				pl.Play()
			}
		case <-ticker.C:
			if paused {
				continue
			}
			now := time.Now()
			elapsed += now.Sub(last)
			last = now
			if progress != nil {
				f := float64(elapsed) / float64(total)
				if f > 1 {
					f = 1
				}
				progress(f)
			}
			if elapsed >= total && !pl.IsPlaying() {
				return nil
			}
		}
	}
}
