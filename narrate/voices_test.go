package narrate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubEngine is a minimal Engine for catalog tests: voices can be
// published later with a change signal, and inventory reads are counted.
type stubEngine struct {
	mu      sync.Mutex
	voices  []Voice
	changed chan struct{}
	reads   atomic.Int32
}

func newStubEngine(voices []Voice) *stubEngine {
	return &stubEngine{voices: voices, changed: make(chan struct{}, 1)}
}

func (e *stubEngine) Voices() []Voice {
	e.reads.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.voices
}

func (e *stubEngine) VoicesChanged() <-chan struct{} { return e.changed }

func (e *stubEngine) publish(voices []Voice) {
	e.mu.Lock()
	e.voices = voices
	e.mu.Unlock()
	select {
	case e.changed <- struct{}{}:
	default:
	}
}

func (e *stubEngine) Speak(Utterance, Handler) error { return nil }
func (e *stubEngine) Cancel()                        {}
func (e *stubEngine) Pause() error                   { return nil }
func (e *stubEngine) Resume() error                  { return nil }

var testVoices = []Voice{
	{Name: "Alloy", Lang: "en-US", Local: true},
	{Name: "Verse", Lang: "en-GB", Local: true},
	{Name: "Corra", Lang: "de-DE", Local: false},
}

func TestCatalogNilEngine(t *testing.T) {
	c := NewCatalog(nil, 0)
	v, err := c.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices failed: %v", err)
	}
	if len(v) != 0 {
		t.Errorf("nil engine returned voices: %v", v)
	}
}

func TestCatalogImmediateVoices(t *testing.T) {
	engine := newStubEngine(testVoices)
	c := NewCatalog(engine, time.Second)

	v, err := c.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices failed: %v", err)
	}
	if len(v) != 3 {
		t.Errorf("got %d voices, want 3", len(v))
	}
}

func TestCatalogWaitsForChangeSignal(t *testing.T) {
	engine := newStubEngine(nil)
	c := NewCatalog(engine, 5*time.Second)

	go func() {
		time.Sleep(50 * time.Millisecond)
		engine.publish(testVoices)
	}()

	start := time.Now()
	v, err := c.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices failed: %v", err)
	}
	if len(v) != 3 {
		t.Errorf("got %d voices, want 3", len(v))
	}
	if elapsed := time.Since(start); elapsed >= 5*time.Second {
		t.Errorf("load waited for the fallback timer (%v) instead of the signal", elapsed)
	}
}

func TestCatalogFallbackTimer(t *testing.T) {
	engine := newStubEngine(nil)
	c := NewCatalog(engine, 30*time.Millisecond)

	v, err := c.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices failed: %v", err)
	}
	if len(v) != 0 {
		t.Errorf("got %d voices, want empty inventory", len(v))
	}

	// The empty answer is cached; no further engine reads per call.
	before := engine.reads.Load()
	if _, err := c.Voices(context.Background()); err != nil {
		t.Fatalf("second Voices failed: %v", err)
	}
	if engine.reads.Load() != before {
		t.Error("cached catalog re-read the engine inventory")
	}
}

func TestCatalogSharesInflightLoad(t *testing.T) {
	engine := newStubEngine(nil)
	c := NewCatalog(engine, 5*time.Second)

	const n = 8
	var wg sync.WaitGroup
	results := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Voices(context.Background())
			if err != nil {
				t.Errorf("Voices failed: %v", err)
				return
			}
			results <- len(v)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	engine.publish(testVoices)
	wg.Wait()
	close(results)

	for n := range results {
		if n != 3 {
			t.Errorf("concurrent caller got %d voices, want 3", n)
		}
	}
}

func TestCatalogRefreshOnChange(t *testing.T) {
	engine := newStubEngine(testVoices[:1])
	c := NewCatalog(engine, time.Second)

	if v, _ := c.Voices(context.Background()); len(v) != 1 {
		t.Fatalf("got %d voices, want 1", len(v))
	}

	engine.publish(testVoices)
	v, err := c.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices failed: %v", err)
	}
	if len(v) != 3 {
		t.Errorf("got %d voices after change, want 3", len(v))
	}
}

func TestCatalogReset(t *testing.T) {
	engine := newStubEngine(testVoices)
	c := NewCatalog(engine, time.Second)

	if _, err := c.Voices(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := engine.reads.Load()

	c.Reset()
	if _, err := c.Voices(context.Background()); err != nil {
		t.Fatal(err)
	}
	if engine.reads.Load() == before {
		t.Error("Reset did not force a reload")
	}
}

func TestCatalogLoadCancelled(t *testing.T) {
	engine := newStubEngine(nil)
	c := NewCatalog(engine, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	if _, err := c.Voices(ctx); err != context.Canceled {
		t.Errorf("Voices = %v, want context.Canceled", err)
	}
}

func TestPick(t *testing.T) {
	tests := []struct {
		name   string
		voices []Voice
		query  string
		want   string
		ok     bool
	}{
		{"exact match", testVoices, "Verse", "Verse", true},
		{"case insensitive", testVoices, "verse", "Verse", true},
		{"fuzzy match", testVoices, "Allo", "Alloy", true},
		{"empty query prefers local english", testVoices, "", "Alloy", true},
		{"no match falls back to default", testVoices, "zzzz", "Alloy", true},
		{"no local english falls back to first",
			[]Voice{{Name: "Corra", Lang: "de-DE", Local: false}}, "", "Corra", true},
		{"empty inventory", nil, "Verse", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Pick(tt.voices, tt.query)
			if ok != tt.ok {
				t.Fatalf("Pick ok = %v, want %v", ok, tt.ok)
			}
			if ok && got.Name != tt.want {
				t.Errorf("Pick = %q, want %q", got.Name, tt.want)
			}
		})
	}
}
