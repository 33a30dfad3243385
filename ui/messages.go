package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/odysseyos/narrator/narrate"
)

// Narration message types for the Bubble Tea command pattern.

// NarrationStartedMsg is sent when a narration session begins speaking.
type NarrationStartedMsg struct {
	Token uint64
}

// NarrationBoundaryMsg is sent as the engine reaches each word.
type NarrationBoundaryMsg struct {
	Char int
	Word int
}

// NarrationPausedMsg is sent when the engine confirms a pause.
type NarrationPausedMsg struct{}

// NarrationResumedMsg is sent when the engine confirms a resume.
type NarrationResumedMsg struct{}

// NarrationEndedMsg is sent when a session ends, for any reason.
type NarrationEndedMsg struct {
	Token uint64
}

// NarrationErrMsg is sent when a session fails.
type NarrationErrMsg struct {
	Err error
}

// SpeakDoneMsg is sent when a Speak call returns.
type SpeakDoneMsg struct {
	Err error
}

// FileChangedMsg is sent in watch mode when the narrated file changes
// on disk.
type FileChangedMsg struct {
	Path string
}

// Events bridges coordinator callbacks onto the program's message loop.
// Callbacks fire on engine goroutines; the channel hands them to Bubble
// Tea without blocking the engine.
type Events struct {
	ch chan tea.Msg
}

// NewEvents creates an event bridge.
func NewEvents() *Events {
	return &Events{ch: make(chan tea.Msg, 64)}
}

// Callbacks returns coordinator callbacks that forward onto the bridge.
func (e *Events) Callbacks() narrate.Callbacks {
	return narrate.Callbacks{
		OnStart:    func(token uint64) { e.push(NarrationStartedMsg{Token: token}) },
		OnBoundary: func(char, word int) { e.push(NarrationBoundaryMsg{Char: char, Word: word}) },
		OnPause:    func() { e.push(NarrationPausedMsg{}) },
		OnResume:   func() { e.push(NarrationResumedMsg{}) },
		OnEnd:      func(token uint64) { e.push(NarrationEndedMsg{Token: token}) },
		OnError:    func(err error) { e.push(NarrationErrMsg{Err: err}) },
	}
}

// Push injects a message from outside the coordinator, such as a file
// watcher.
func (e *Events) Push(msg tea.Msg) { e.push(msg) }

// Listen returns a command that delivers the next bridged message.
func (e *Events) Listen() tea.Cmd {
	return func() tea.Msg { return <-e.ch }
}

func (e *Events) push(msg tea.Msg) {
	select {
	case e.ch <- msg:
	default:
		// A stalled UI must not block the engine; drop the event.
	}
}
