package narrate

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
)

// DefaultVoiceLoadTimeout bounds how long the catalog waits for an
// engine that has not yet announced its voice inventory.
const DefaultVoiceLoadTimeout = time.Second

// Catalog resolves and caches an engine's voice inventory. Engines load
// their voices asynchronously; the catalog hides that delay behind one
// shared in-flight load and refreshes only when the engine announces a
// change.
type Catalog struct {
	engine  Engine
	timeout time.Duration
	group   singleflight.Group

	mu     sync.Mutex
	loaded bool
	voices []Voice
}

// NewCatalog creates a catalog for engine. A loadTimeout of zero means
// DefaultVoiceLoadTimeout. A nil engine yields an empty catalog rather
// than an error, so an unsupported environment degrades to no-ops.
func NewCatalog(engine Engine, loadTimeout time.Duration) *Catalog {
	if loadTimeout <= 0 {
		loadTimeout = DefaultVoiceLoadTimeout
	}
	return &Catalog{engine: engine, timeout: loadTimeout}
}

// Voices returns the engine's voice inventory, waiting for the engine's
// own asynchronous load when necessary. Safe to call concurrently: all
// concurrent callers share a single in-flight load. Once resolved the
// inventory is cached for the life of the process and only re-read when
// the engine signals a change.
func (c *Catalog) Voices(ctx context.Context) ([]Voice, error) {
	if c.engine == nil {
		return nil, nil
	}

	c.mu.Lock()
	if c.loaded {
		// Pick up a pending inventory change without blocking.
		select {
		case <-c.engine.VoicesChanged():
			c.voices = c.engine.Voices()
		default:
		}
		v := c.voices
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("load", func() (interface{}, error) {
		return c.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Voice), nil
}

// load waits for the first of: a voices-changed signal that yields a
// non-empty inventory, or the fallback timer. Some engines never fire
// the change signal even though voices are ready, hence the timer.
func (c *Catalog) load(ctx context.Context) ([]Voice, error) {
	if v := c.engine.Voices(); len(v) > 0 {
		c.store(v)
		return v, nil
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	changed := c.engine.VoicesChanged()

	for {
		select {
		case <-changed:
			if v := c.engine.Voices(); len(v) > 0 {
				c.store(v)
				return v, nil
			}
		case <-timer.C:
			// Capability may simply be absent; an empty inventory is
			// the answer, not an error.
			v := c.engine.Voices()
			c.store(v)
			return v, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Catalog) store(v []Voice) {
	c.mu.Lock()
	c.voices = v
	c.loaded = true
	c.mu.Unlock()
}

// Reset clears the cached inventory so the next Voices call loads it
// again. Intended for tests.
func (c *Catalog) Reset() {
	c.mu.Lock()
	c.loaded = false
	c.voices = nil
	c.mu.Unlock()
}

// Pick resolves name against voices. An exact match wins, then the
// closest fuzzy match on voice names. When name is empty or matches
// nothing, Pick falls back to a default: a locally synthesized English
// voice when one exists, otherwise the first voice. The second return
// is false only when voices is empty.
func Pick(voices []Voice, name string) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}

	if name != "" {
		for _, v := range voices {
			if strings.EqualFold(v.Name, name) {
				return v, true
			}
		}
		names := make([]string, len(voices))
		for i, v := range voices {
			names[i] = v.Name
		}
		if matches := fuzzy.Find(name, names); len(matches) > 0 {
			return voices[matches[0].Index], true
		}
	}

	for _, v := range voices {
		if v.Local && isEnglish(v.Lang) {
			return v, true
		}
	}
	return voices[0], true
}

var englishBase, _ = language.English.Base()

func isEnglish(tag string) bool {
	t, err := language.Parse(tag)
	if err != nil {
		return false
	}
	b, _ := t.Base()
	return b == englishBase
}
