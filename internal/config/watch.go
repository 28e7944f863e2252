package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the file at path after it changes and passes the freshly
// loaded and compiled configuration to onChange. A reload that fails is
// passed to onError and the previous configuration stays in effect.
//
// The parent directory is watched rather than the file, so editors that
// save by renaming a temporary file are seen. Bursts of events within
// debounce collapse into one reload. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(*Config, *Compiled), onError func(error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	timer := time.NewTimer(debounce)
	timer.Stop()

	reload := func() {
		cfg, err := Load(abs)
		if err != nil {
			onError(err)
			return
		}
		compiled, err := cfg.Compile()
		if err != nil {
			onError(err)
			return
		}
		onChange(cfg, compiled)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onError(fmt.Errorf("config watcher: %w", err))
		case <-timer.C:
			reload()
		}
	}
}
