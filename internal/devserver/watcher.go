package devserver

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// fileWatcher reports changes to a set of files. Parent directories are
// watched because editors tend to replace files rather than write them.
type fileWatcher struct {
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer

	mu    sync.Mutex
	files map[string]struct{}
	dirs  map[string]int
}

func watchFiles(ctx context.Context, paths []string, window time.Duration, onChange func(paths []string)) (*fileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &fileWatcher{
		fsWatcher: watcher,
		debouncer: NewDebouncer(window, onChange),
		files:     make(map[string]struct{}),
		dirs:      make(map[string]int),
	}

	if err := w.Set(paths); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go w.processEvents(ctx)

	return w, nil
}

// Set replaces the watched files.
func (w *fileWatcher) Set(paths []string) error {
	files := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		files[abs] = struct{}{}
	}

	dirs := make(map[string]int)
	for file := range files {
		dirs[filepath.Dir(file)]++
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for dir := range dirs {
		if _, ok := w.dirs[dir]; ok {
			continue
		}
		if err := w.fsWatcher.Add(dir); err != nil {
			return err
		}
	}
	for dir := range w.dirs {
		if _, ok := dirs[dir]; !ok {
			_ = w.fsWatcher.Remove(dir)
		}
	}

	w.files = files
	w.dirs = dirs
	return nil
}

func (w *fileWatcher) watching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[filepath.Clean(path)]
	return ok
}

func (w *fileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.watching(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Watched file changed")
				w.debouncer.Add(event.Name)
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("File watcher error")
		}
	}
}

// Close stops watching and drops pending notifications.
func (w *fileWatcher) Close() error {
	w.debouncer.Stop()
	return w.fsWatcher.Close()
}
