package heartbeat

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ChecklistLoader caches a checklist file's content and keeps it current via
// an fsnotify watch, so the heartbeat runner's tick reads a cheap in-memory
// copy instead of hitting the filesystem every interval. Grounded on the
// teacher's internal/config hot-reload watcher shape.
type ChecklistLoader struct {
	path string

	mu      sync.RWMutex
	content string
	err     error

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

// NewChecklistLoader reads path once, starts watching its containing
// directory for changes, and returns the loader. A missing or unreadable
// file is not an error here — it surfaces as an empty Current() result,
// which the runner treats as Skipped.
func NewChecklistLoader(path string) *ChecklistLoader {
	l := &ChecklistLoader{path: path, stopCh: make(chan struct{})}
	l.reload()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return l
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return l
	}
	l.watcher = watcher
	go l.watch()
	return l
}

func (l *ChecklistLoader) watch() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(l.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				l.reload()
			}
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		case <-l.stopCh:
			return
		}
	}
}

func (l *ChecklistLoader) reload() {
	data, err := os.ReadFile(l.path)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.content = ""
		l.err = err
		return
	}
	l.content = string(data)
	l.err = nil
}

// Current returns the cached checklist content, or "" if the file is
// missing, empty, or unreadable.
func (l *ChecklistLoader) Current() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.content
}

// Close stops the underlying watch, if any.
func (l *ChecklistLoader) Close() error {
	close(l.stopCh)
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}
