package vault

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/abhisek/parasort/internal/features"
)

// DefaultExtensions are the file extensions treated as notes.
var DefaultExtensions = []string{".md", ".markdown"}

// Walk yields every note under root in lexical path order. Hidden
// directories such as .obsidian and .git are skipped. A note that cannot
// be read or parsed yields an error and the walk continues.
func Walk(ctx context.Context, root string, extensions []string) iter.Seq2[features.Note, error] {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return func(yield func(features.Note, error) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield(features.Note{}, fmt.Errorf("walk %s: %w", path, err)) {
					return fs.SkipAll
				}
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}
			if !isNote(path, extensions) {
				return nil
			}
			note, err := ReadNote(root, path)
			if !yield(note, err) {
				return fs.SkipAll
			}
			return nil
		})
		if err != nil {
			yield(features.Note{}, err)
		}
	}
}

func isNote(path string, extensions []string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	return slices.Contains(extensions, strings.ToLower(filepath.Ext(path)))
}

// WatchInbox calls onNote for each note created or rewritten in dir.
// Events are debounced so an editor's burst of writes produces one call
// per file. Read failures go to onError. WatchInbox blocks until ctx is done.
func WatchInbox(ctx context.Context, dir string, extensions []string, debounce time.Duration, onNote func(features.Note), onError func(error)) error {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create inbox watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounce)
	timer.Stop()

	flush := func() {
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		clear(pending)
		slices.Sort(paths)
		for _, p := range paths {
			note, err := ReadNote(dir, p)
			if err != nil {
				onError(err)
				continue
			}
			onNote(note)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isNote(event.Name, extensions) {
				continue
			}
			pending[event.Name] = struct{}{}
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onError(fmt.Errorf("inbox watcher: %w", err))
		case <-timer.C:
			flush()
		}
	}
}
