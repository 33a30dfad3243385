// Package ui renders a narration session in the terminal: the source
// text in a scrollable viewport, the word being spoken highlighted, and
// key bindings for pause, resume, stop, and restart.
package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/odysseyos/narrator/narrate"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(0, 1)

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Padding(0, 1)
)

// KeyMap defines the narration key bindings.
type KeyMap struct {
	PauseResume key.Binding
	Stop        key.Binding
	Restart     key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns the default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		PauseResume: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "pause/resume"),
		),
		Stop: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "stop"),
		),
		Restart: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "restart"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.PauseResume, k.Stop, k.Restart, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// Model is the narration TUI.
type Model struct {
	coordinator *narrate.Coordinator
	events      *Events
	req         narrate.SpeakRequest
	title       string

	// Reload, when set, re-reads the source text after a FileChangedMsg.
	Reload func() (string, error)

	keymap   KeyMap
	help     help.Model
	viewport viewport.Model
	ready    bool
	width    int

	wordIndex int
	paused    bool
	speaking  bool
	err       error
}

// NewModel creates the narration TUI for the given request.
func NewModel(c *narrate.Coordinator, events *Events, title string, req narrate.SpeakRequest) Model {
	return Model{
		coordinator: c,
		events:      events,
		req:         req,
		title:       title,
		keymap:      DefaultKeyMap(),
		help:        help.New(),
		wordIndex:   -1,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.events.Listen(), m.speakCmd())
}

func (m Model) speakCmd() tea.Cmd {
	c, req := m.coordinator, m.req
	return func() tea.Msg {
		return SpeakDoneMsg{Err: c.Speak(context.Background(), req)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		chrome := lipgloss.Height(m.headerView()) + lipgloss.Height(m.footerView())
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-chrome)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - chrome
		}
		m.viewport.SetContent(m.content())
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			m.coordinator.Stop()
			return m, tea.Quit
		case key.Matches(msg, m.keymap.PauseResume):
			if m.paused {
				return m, toErrCmd(m.coordinator.Resume)
			}
			return m, toErrCmd(m.coordinator.Pause)
		case key.Matches(msg, m.keymap.Stop):
			m.coordinator.Stop()
			return m, nil
		case key.Matches(msg, m.keymap.Restart):
			m.wordIndex = -1
			return m, m.speakCmd()
		}

	case NarrationStartedMsg:
		m.speaking = true
		m.paused = false
		m.err = nil
		return m, m.events.Listen()

	case NarrationBoundaryMsg:
		m.wordIndex = msg.Word
		if m.ready {
			m.viewport.SetContent(m.content())
		}
		return m, m.events.Listen()

	case NarrationPausedMsg:
		m.paused = true
		return m, m.events.Listen()

	case NarrationResumedMsg:
		m.paused = false
		return m, m.events.Listen()

	case NarrationEndedMsg:
		m.speaking = false
		m.paused = false
		m.wordIndex = -1
		if m.ready {
			m.viewport.SetContent(m.content())
		}
		return m, m.events.Listen()

	case NarrationErrMsg:
		m.err = msg.Err
		return m, m.events.Listen()

	case FileChangedMsg:
		if m.Reload == nil {
			return m, m.events.Listen()
		}
		text, err := m.Reload()
		if err != nil {
			m.err = err
			return m, m.events.Listen()
		}
		m.req.Text = text
		m.wordIndex = -1
		if m.ready {
			m.viewport.SetContent(m.content())
		}
		return m, tea.Batch(m.events.Listen(), m.speakCmd())

	case SpeakDoneMsg:
		if msg.Err != nil {
			m.err = msg.Err
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}
	return fmt.Sprintf("%s\n%s\n%s", m.headerView(), m.viewport.View(), m.footerView())
}

func (m Model) content() string {
	return Wrap(HighlightWord(m.req.Text, m.wordIndex), m.width)
}

func (m Model) headerView() string {
	return titleStyle.Render(m.title)
}

func (m Model) footerView() string {
	status := "idle"
	switch {
	case m.paused:
		status = "paused"
	case m.speaking:
		status = "speaking"
	}
	line := statusStyle.Render(status)
	if m.err != nil {
		line += errStyle.Render("error: " + m.err.Error())
	}
	return line + "\n" + m.help.View(m.keymap)
}

// toErrCmd wraps a control call whose error surfaces as a message.
func toErrCmd(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return NarrationErrMsg{Err: err}
		}
		return nil
	}
}
