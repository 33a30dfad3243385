package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/odysseyos/narrator/narrate"
	"github.com/odysseyos/narrator/ui"
)

func runTUI(c *narrate.Coordinator, path string, req narrate.SpeakRequest) error {
	events := ui.NewEvents()
	c.SetCallbacks(events.Callbacks())

	title := "narrator"
	if path != "" {
		title = filepath.Base(path)
	}

	model := ui.NewModel(c, events, title, req)
	if path != "" {
		model.Reload = func() (string, error) {
			b, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
	}

	var stopWatch func()
	if watchMode && path != "" {
		var err error
		stopWatch, err = watchFile(path, func() {
			events.Push(ui.FileChangedMsg{Path: path})
		})
		if err != nil {
			return err
		}
	}

	_, err := tea.NewProgram(model, tea.WithAltScreen()).Run()
	if stopWatch != nil {
		stopWatch()
	}
	c.Stop()
	if err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}
