package main

import (
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// watchFile invokes fn whenever path is written or recreated. The
// parent directory is watched rather than the file itself, since many
// editors replace files on save. Returns a stop function.
func watchFile(path string, fn func()) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("unable to create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close() //nolint:errcheck
		return nil, fmt.Errorf("unable to watch %s: %w", dir, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				log.Debug("file changed", "path", path, "op", event.Op)
				fn()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Error("watch error", "error", err)
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
