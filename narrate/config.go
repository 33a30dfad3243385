package narrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/odysseyos/narrator/narrate/segment"
)

// Config contains all narration configuration options.
type Config struct {
	// Engine selects the narration backend.
	Engine string `yaml:"engine" env:"NARRATOR_ENGINE" envDefault:"command"`

	// Voice is the preferred voice name; empty selects the default
	// voice (a local English voice when one exists).
	Voice string `yaml:"voice" env:"NARRATOR_VOICE"`

	// Speech parameters.
	Rate   float64 `yaml:"rate" env:"NARRATOR_RATE" envDefault:"1.0"`
	Pitch  float64 `yaml:"pitch" env:"NARRATOR_PITCH" envDefault:"1.0"`
	Volume float64 `yaml:"volume" env:"NARRATOR_VOLUME" envDefault:"1.0"`

	// MaxSegmentLength caps segment size in runes. Long inputs are cut
	// at sentence and clause boundaries to stay under this limit.
	MaxSegmentLength int `yaml:"max_segment_length" env:"NARRATOR_MAX_SEGMENT_LENGTH" envDefault:"280"`

	// VoiceLoadTimeout bounds the wait for an engine that has not yet
	// announced its voice inventory.
	VoiceLoadTimeout time.Duration `yaml:"voice_load_timeout" env:"NARRATOR_VOICE_LOAD_TIMEOUT" envDefault:"1s"`

	// QueueDelay is the quiet period a queued request waits before
	// executing; requests re-enqueued within the window coalesce.
	QueueDelay time.Duration `yaml:"queue_delay" env:"NARRATOR_QUEUE_DELAY" envDefault:"400ms"`

	// Watchdog deadline for a single utterance: StallBase plus
	// StallPerRune per rune of segment text. An engine that reports
	// neither completion nor failure within the deadline is cancelled.
	StallBase    time.Duration `yaml:"stall_base" env:"NARRATOR_STALL_BASE" envDefault:"10s"`
	StallPerRune time.Duration `yaml:"stall_per_rune" env:"NARRATOR_STALL_PER_RUNE" envDefault:"120ms"`

	// Command configures the subprocess synthesis engine.
	Command CommandConfig `yaml:"command"`
}

// CommandConfig contains settings for the subprocess synthesis engine,
// which pipes utterance text to an external binary and plays the PCM it
// produces.
type CommandConfig struct {
	Binary     string   `yaml:"binary" env:"NARRATOR_COMMAND_BINARY" envDefault:"piper"`
	Args       []string `yaml:"args" env:"NARRATOR_COMMAND_ARGS" envSeparator:" "`
	Model      string   `yaml:"model" env:"NARRATOR_COMMAND_MODEL" envDefault:"en_US-lessac-medium"`
	SampleRate int      `yaml:"sample_rate" env:"NARRATOR_COMMAND_SAMPLE_RATE" envDefault:"22050"`
	Channels   int      `yaml:"channels" env:"NARRATOR_COMMAND_CHANNELS" envDefault:"1"`

	// SpawnPerSecond rate-limits subprocess launches.
	SpawnPerSecond float64 `yaml:"spawn_per_second" env:"NARRATOR_COMMAND_SPAWN_PER_SECOND" envDefault:"4"`

	// Timeout bounds one synthesis run; GracePeriod is the gap between
	// SIGINT and SIGKILL when a run is cut short.
	Timeout     time.Duration `yaml:"timeout" env:"NARRATOR_COMMAND_TIMEOUT" envDefault:"30s"`
	GracePeriod time.Duration `yaml:"grace_period" env:"NARRATOR_COMMAND_GRACE_PERIOD" envDefault:"500ms"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Engine:           "command",
		Rate:             1.0,
		Pitch:            1.0,
		Volume:           1.0,
		MaxSegmentLength: segment.DefaultMaxRunes,
		VoiceLoadTimeout: DefaultVoiceLoadTimeout,
		QueueDelay:       400 * time.Millisecond,
		StallBase:        10 * time.Second,
		StallPerRune:     120 * time.Millisecond,
		Command:          DefaultCommandConfig(),
	}
}

// DefaultCommandConfig returns default subprocess engine settings.
func DefaultCommandConfig() CommandConfig {
	return CommandConfig{
		Binary:         "piper",
		Model:          "en_US-lessac-medium",
		SampleRate:     22050,
		Channels:       1,
		SpawnPerSecond: 4,
		Timeout:        30 * time.Second,
		GracePeriod:    500 * time.Millisecond,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validEngines := []string{"command", "mock", "none"}
	ok := false
	for _, e := range validEngines {
		if strings.EqualFold(c.Engine, e) {
			c.Engine = strings.ToLower(c.Engine)
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("invalid engine '%s': must be one of %v", c.Engine, validEngines)
	}

	if c.Rate < 0.1 || c.Rate > 4.0 {
		return fmt.Errorf("rate must be between 0.1 and 4.0, got %g", c.Rate)
	}
	if c.Pitch < 0.0 || c.Pitch > 2.0 {
		return fmt.Errorf("pitch must be between 0.0 and 2.0, got %g", c.Pitch)
	}
	if c.Volume < 0.0 || c.Volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %g", c.Volume)
	}
	if c.MaxSegmentLength < 1 {
		return fmt.Errorf("max_segment_length must be at least 1, got %d", c.MaxSegmentLength)
	}
	if c.VoiceLoadTimeout < 50*time.Millisecond {
		return fmt.Errorf("voice_load_timeout must be at least 50ms, got %v", c.VoiceLoadTimeout)
	}
	if c.QueueDelay < 0 {
		return fmt.Errorf("queue_delay must not be negative, got %v", c.QueueDelay)
	}
	if c.StallBase < time.Second {
		return fmt.Errorf("stall_base must be at least 1s, got %v", c.StallBase)
	}
	if c.StallPerRune <= 0 {
		return fmt.Errorf("stall_per_rune must be positive, got %v", c.StallPerRune)
	}

	if c.Engine == "command" {
		if err := c.Command.Validate(); err != nil {
			return fmt.Errorf("command config: %w", err)
		}
	}
	return nil
}

// Validate checks if the subprocess engine configuration is valid.
func (c *CommandConfig) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("binary path cannot be empty")
	}
	validSampleRates := []int{8000, 16000, 22050, 24000, 44100, 48000}
	ok := false
	for _, sr := range validSampleRates {
		if c.SampleRate == sr {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("invalid sample rate %d: must be one of %v", c.SampleRate, validSampleRates)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", c.Channels)
	}
	if c.SpawnPerSecond <= 0 {
		return fmt.Errorf("spawn_per_second must be positive, got %g", c.SpawnPerSecond)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Timeout)
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("grace_period must be positive, got %v", c.GracePeriod)
	}
	return nil
}
