package definitions

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/switchyard-dev/switchyard/internal/logging"
)

// DefaultDebounce is the delay applied to filesystem events before a reload
// fires, so editor save bursts collapse into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches a definitions directory and invokes a callback after
// changes settle. It only signals; reloading is the callback's business.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func()
	log      *logging.Logger

	fsw  *fsnotify.Watcher
	done chan struct{}

	pendingMu sync.Mutex
	pending   bool
}

// NewWatcher creates a watcher over dir. onChange runs on the watcher's
// goroutine after events have been quiet for the debounce window.
func NewWatcher(dir string, debounce time.Duration, onChange func(), log *logging.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		onChange: onChange,
		log:      log.WithComponent("watcher"),
	}
}

// Start begins watching. Watches are added recursively; directories created
// later are picked up from their create events.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	w.done = make(chan struct{})

	if err := w.addWatchesRecursive(w.dir); err != nil {
		fsw.Close()
		return err
	}

	go w.loop()

	w.log.Info("watching definitions", "dir", w.dir, "debounce", w.debounce)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Stop() error {
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) addWatchesRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if strings.HasPrefix(base, ".") && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.log.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", "error", err)

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			base := filepath.Base(event.Name)
			if !strings.HasPrefix(base, ".") {
				if err := w.fsw.Add(event.Name); err != nil {
					w.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
				}
			}
			return
		}
	}

	if !isDefinitionFile(event.Name) {
		return
	}

	w.pendingMu.Lock()
	w.pending = true
	w.pendingMu.Unlock()

	w.log.Debug("definition change detected", "path", event.Name, "op", event.Op.String())
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	fire := w.pending
	w.pending = false
	w.pendingMu.Unlock()

	if fire && w.onChange != nil {
		w.onChange()
	}
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
