package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/odysseyos/narrator/narrate"
)

var (
	highlightStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("226")).
			Foreground(lipgloss.Color("0")).
			Bold(true)

	spokenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// HighlightWord renders text with the word at wordIndex highlighted and
// the words already spoken dimmed. A negative index renders the text
// unstyled.
func HighlightWord(text string, wordIndex int) string {
	if wordIndex < 0 {
		return text
	}
	spans := narrate.WordSpans(text)
	if wordIndex >= len(spans) {
		return text
	}

	cur := spans[wordIndex]
	var b strings.Builder
	if cur.Start > 0 {
		b.WriteString(spokenStyle.Render(text[:cur.Start]))
	}
	b.WriteString(highlightStyle.Render(text[cur.Start:cur.End]))
	if cur.End < len(text) {
		b.WriteString(text[cur.End:])
	}
	return b.String()
}

// Wrap word-wraps rendered text to the given width.
func Wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return wordwrap.String(s, width)
}
