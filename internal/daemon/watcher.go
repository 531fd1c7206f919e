package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// gamelistFile is the catalog file EmulationStation maintains per system.
const gamelistFile = "gamelist.xml"

// GamelistWatcher monitors the ROMs tree for catalog changes and coalesces
// bursts of them into a single rescan. Watching the parent directories rather
// than the files themselves survives the delete-and-rename way scrapers
// rewrite gamelist.xml.
type GamelistWatcher struct {
	romsDir  string
	watcher  *fsnotify.Watcher
	debounce *Debouncer

	mu       sync.Mutex
	stopChan chan struct{}
	stopped  bool
}

// NewGamelistWatcher creates a watcher over romsDir. onRescan fires once per
// settled burst of catalog changes, after the quiet period elapses with no
// further events. An error here means filesystem notification is unavailable
// on this platform; callers degrade to command-triggered rescans only.
func NewGamelistWatcher(romsDir string, quiet time.Duration, onRescan func()) (*GamelistWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	return &GamelistWatcher{
		romsDir:  romsDir,
		watcher:  watcher,
		debounce: NewDebouncer(quiet, onRescan),
		stopChan: make(chan struct{}),
	}, nil
}

// Start registers the ROMs root plus every system directory and begins
// consuming events.
func (w *GamelistWatcher) Start() error {
	if err := w.watcher.Add(w.romsDir); err != nil {
		return fmt.Errorf("watch roms dir %s: %w", w.romsDir, err)
	}

	entries, err := os.ReadDir(w.romsDir)
	if err != nil {
		return fmt.Errorf("list roms dir %s: %w", w.romsDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(w.romsDir, e.Name())
		if err := w.watcher.Add(dir); err != nil {
			slog.Warn("Failed to watch system directory", "dir", dir, "error", err)
		}
	}

	slog.Info("Gamelist watcher started", "roms_dir", w.romsDir)
	go w.watchLoop()
	return nil
}

// Stop cancels any pending rescan and closes the underlying watcher.
func (w *GamelistWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true

	close(w.stopChan)
	w.debounce.Stop()
	if err := w.watcher.Close(); err != nil {
		slog.Error("Error closing file watcher", "error", err)
	}
}

func (w *GamelistWatcher) watchLoop() {
	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.onEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Gamelist watcher error", "error", err)
		}
	}
}

func (w *GamelistWatcher) onEvent(event fsnotify.Event) {
	// A new system directory needs its own watch before its catalog shows up.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				slog.Warn("Failed to watch new directory", "dir", event.Name, "error", err)
			}
			return
		}
	}

	if filepath.Base(event.Name) != gamelistFile {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Rename) && !event.Op.Has(fsnotify.Remove) {
		return
	}

	slog.Debug("Gamelist change detected", "file", event.Name, "op", event.Op.String())
	w.debounce.Touch()
}
