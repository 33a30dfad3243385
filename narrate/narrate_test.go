package narrate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/odysseyos/narrator/narrate"
	"github.com/odysseyos/narrator/narrate/engines/mock"
)

func testConfig() narrate.Config {
	cfg := narrate.DefaultConfig()
	cfg.Engine = "mock"
	return cfg
}

// eventLog records callback invocations in order.
type eventLog struct {
	mu         sync.Mutex
	events     []string
	boundaries []int
	words      []int
	errs       []error
}

func (l *eventLog) callbacks() narrate.Callbacks {
	return narrate.Callbacks{
		OnStart: func(uint64) { l.add("start") },
		OnBoundary: func(char, word int) {
			l.mu.Lock()
			l.boundaries = append(l.boundaries, char)
			l.words = append(l.words, word)
			l.mu.Unlock()
		},
		OnPause:  func() { l.add("pause") },
		OnResume: func() { l.add("resume") },
		OnEnd:    func(uint64) { l.add("end") },
		OnError: func(err error) {
			l.mu.Lock()
			l.events = append(l.events, "error")
			l.errs = append(l.errs, err)
			l.mu.Unlock()
		},
	}
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) sequence() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	copy(out, l.events)
	return out
}

func (l *eventLog) count(e string) int {
	n := 0
	for _, got := range l.sequence() {
		if got == e {
			n++
		}
	}
	return n
}

func (l *eventLog) charOffsets() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, len(l.boundaries))
	copy(out, l.boundaries)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSpeakDeliversLifecycleAndBoundaries(t *testing.T) {
	engine := mock.New(mock.Config{})
	c := narrate.New(engine, testConfig(), nil)
	events := &eventLog{}
	c.SetCallbacks(events.callbacks())

	text := "Hello brave new world."
	if err := c.Speak(context.Background(), narrate.SpeakRequest{Text: text}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	seq := events.sequence()
	if events.count("start") != 1 || events.count("end") != 1 {
		t.Errorf("lifecycle events = %v, want one start and one end", seq)
	}
	if events.count("error") != 0 {
		t.Errorf("unexpected error events: %v", events.errs)
	}

	// Boundary offsets are byte offsets into the original text, one per
	// word, with matching derived word indexes.
	var wantChars []int
	for _, s := range narrate.WordSpans(text) {
		wantChars = append(wantChars, s.Start)
	}
	gotChars := events.charOffsets()
	if len(gotChars) != len(wantChars) {
		t.Fatalf("got %d boundaries, want %d", len(gotChars), len(wantChars))
	}
	for i := range wantChars {
		if gotChars[i] != wantChars[i] {
			t.Errorf("boundary %d at offset %d, want %d", i, gotChars[i], wantChars[i])
		}
		if events.words[i] != i {
			t.Errorf("boundary %d reported word index %d", i, events.words[i])
		}
	}

	if got := c.State(); got != narrate.StateIdle {
		t.Errorf("coordinator state after Speak = %v, want idle", got)
	}
}

func TestSpeakMapsBoundariesAcrossSegments(t *testing.T) {
	engine := mock.New(mock.Config{})
	cfg := testConfig()
	cfg.MaxSegmentLength = 15 // forces one segment per sentence
	c := narrate.New(engine, cfg, nil)
	events := &eventLog{}
	c.SetCallbacks(events.callbacks())

	text := "Hello world. Goodbye moon."
	if err := c.Speak(context.Background(), narrate.SpeakRequest{Text: text}); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	if spoken := engine.Spoken(); len(spoken) != 2 {
		t.Fatalf("engine received %d utterances, want 2 segments", len(spoken))
	}

	var want []int
	for _, s := range narrate.WordSpans(text) {
		want = append(want, s.Start)
	}
	got := events.charOffsets()
	if len(got) != len(want) {
		t.Fatalf("got %d boundaries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("boundary %d at offset %d, want %d (segment-relative offset leaked)", i, got[i], want[i])
		}
	}
}

func TestSpeakNoopCases(t *testing.T) {
	t.Run("nil engine", func(t *testing.T) {
		c := narrate.New(nil, testConfig(), nil)
		if err := c.Speak(context.Background(), narrate.SpeakRequest{Text: "hello"}); err != nil {
			t.Errorf("Speak with nil engine = %v, want nil", err)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		engine := mock.New(mock.Config{})
		c := narrate.New(engine, testConfig(), nil)
		if err := c.Speak(context.Background(), narrate.SpeakRequest{Text: "  \n "}); err != nil {
			t.Errorf("Speak with blank text = %v, want nil", err)
		}
		if len(engine.Spoken()) != 0 {
			t.Error("blank text reached the engine")
		}
	})
}

func TestSpeakSupersession(t *testing.T) {
	engine := mock.New(mock.Config{WordInterval: 20 * time.Millisecond})
	c := narrate.New(engine, testConfig(), nil)
	events := &eventLog{}
	c.SetCallbacks(events.callbacks())

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.Speak(context.Background(), narrate.SpeakRequest{
			Text: "a very long first narration that will be interrupted",
		})
	}()
	waitFor(t, "first session to start speaking", func() bool {
		return c.State() == narrate.StateSpeaking
	})

	if err := c.Speak(context.Background(), narrate.SpeakRequest{Text: "second wins"}); err != nil {
		t.Fatalf("second Speak failed: %v", err)
	}

	// Supersession is not an error: the interrupted call resolves nil.
	select {
	case err := <-firstDone:
		if err != nil {
			t.Errorf("superseded Speak = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded Speak never returned")
	}

	// Both sessions ended cleanly, in order, with no overlap: the first
	// session's end precedes the second session's start.
	seq := events.sequence()
	if events.count("start") != 2 || events.count("end") != 2 {
		t.Fatalf("lifecycle events = %v, want two starts and two ends", seq)
	}
	firstEnd, secondStart := -1, -1
	starts := 0
	for i, e := range seq {
		switch e {
		case "end":
			if firstEnd == -1 {
				firstEnd = i
			}
		case "start":
			starts++
			if starts == 2 {
				secondStart = i
			}
		}
	}
	if firstEnd > secondStart {
		t.Errorf("sessions overlapped: events %v", seq)
	}

	spoken := engine.Spoken()
	if len(spoken) == 0 || spoken[len(spoken)-1].Text != "second wins" {
		t.Errorf("last utterance = %v, want the superseding text", spoken)
	}
}

func TestStopResolvesWithoutError(t *testing.T) {
	engine := mock.New(mock.Config{Hang: true})
	c := narrate.New(engine, testConfig(), nil)
	events := &eventLog{}
	c.SetCallbacks(events.callbacks())

	done := make(chan error, 1)
	go func() {
		done <- c.Speak(context.Background(), narrate.SpeakRequest{Text: "stuck forever"})
	}()
	waitFor(t, "session to start speaking", func() bool {
		return c.State() == narrate.StateSpeaking
	})

	c.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("stopped Speak = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stopped Speak never returned")
	}
	if events.count("end") != 1 {
		t.Errorf("events = %v, want a single end", events.sequence())
	}
	if got := c.State(); got != narrate.StateIdle {
		t.Errorf("state after Stop = %v, want idle", got)
	}
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	engine := mock.New(mock.Config{})
	c := narrate.New(engine, testConfig(), nil)
	c.Stop()
	c.Stop()

	// The lock must still be usable.
	if err := c.Speak(context.Background(), narrate.SpeakRequest{Text: "still works"}); err != nil {
		t.Errorf("Speak after idle Stop = %v, want nil", err)
	}
}

func TestSpeakReportsEngineFailure(t *testing.T) {
	wantErr := errors.New("synthesis blew up")
	engine := mock.New(mock.Config{Err: wantErr})
	c := narrate.New(engine, testConfig(), nil)
	events := &eventLog{}
	c.SetCallbacks(events.callbacks())

	err := c.Speak(context.Background(), narrate.SpeakRequest{Text: "doomed"})
	if !errors.Is(err, wantErr) {
		t.Errorf("Speak = %v, want %v", err, wantErr)
	}
	if events.count("error") != 1 {
		t.Errorf("events = %v, want one error", events.sequence())
	}
	if events.count("end") != 0 {
		t.Error("failed session also emitted end")
	}
}

func TestWatchdogCancelsStalledEngine(t *testing.T) {
	engine := mock.New(mock.Config{Hang: true, WordInterval: time.Millisecond})
	cfg := testConfig()
	cfg.StallBase = 50 * time.Millisecond
	cfg.StallPerRune = time.Millisecond
	c := narrate.New(engine, cfg, nil)

	err := c.Speak(context.Background(), narrate.SpeakRequest{Text: "hello"})
	if !errors.Is(err, narrate.ErrEngineStalled) {
		t.Errorf("Speak = %v, want ErrEngineStalled", err)
	}
	if engine.CancelCount() == 0 {
		t.Error("stalled engine was never cancelled")
	}
}

func TestPauseResume(t *testing.T) {
	engine := mock.New(mock.Config{WordInterval: 30 * time.Millisecond})
	c := narrate.New(engine, testConfig(), nil)
	events := &eventLog{}
	c.SetCallbacks(events.callbacks())

	done := make(chan error, 1)
	go func() {
		done <- c.Speak(context.Background(), narrate.SpeakRequest{
			Text: "one two three four five six seven eight",
		})
	}()
	waitFor(t, "session to start speaking", func() bool {
		return c.State() == narrate.StateSpeaking
	})

	if err := c.Pause(); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if got := c.State(); got != narrate.StatePaused {
		t.Errorf("state after Pause = %v, want paused", got)
	}
	waitFor(t, "pause confirmation", func() bool {
		return events.count("pause") == 1
	})

	if err := c.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	waitFor(t, "resume confirmation", func() bool {
		return events.count("resume") == 1
	})

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Speak after pause/resume = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Speak never finished after resume")
	}
}

func TestQueueCloseUnblocksWhenNarrationCancelled(t *testing.T) {
	engine := mock.New(mock.Config{Hang: true})
	c := narrate.New(engine, testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := narrate.NewQueue(func(_ context.Context, r narrate.SpeakRequest) error {
		return c.Speak(ctx, r)
	}, 0, nil)

	err := q.Enqueue("file", narrate.SpeakRequest{Text: "a narration that would otherwise run on"}, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	waitFor(t, "queued narration to start", func() bool {
		return c.State() == narrate.StateSpeaking
	})

	// Tear down the way the CLI does on SIGINT: cancel the narration
	// first, then close the queue, which blocks until the in-flight
	// execution finishes.
	cancel()
	c.Stop()
	start := time.Now()
	q.Close()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Close blocked %v behind a cancelled narration", elapsed)
	}
}

func TestPauseWhenIdleIsNoop(t *testing.T) {
	engine := mock.New(mock.Config{})
	c := narrate.New(engine, testConfig(), nil)
	if err := c.Pause(); err != nil {
		t.Errorf("Pause when idle = %v, want nil", err)
	}
	if err := c.Resume(); err != nil {
		t.Errorf("Resume when idle = %v, want nil", err)
	}
}
