package ingest

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/warden/pkg/models"
)

// TaskCreator receives parsed tasks. Satisfied by state.DB.
type TaskCreator interface {
	CreateTask(t *models.Task) error
}

// Watcher ingests task files dropped into a directory. Accepted files
// move to processed/, malformed ones to rejected/, so the drop directory
// itself only ever holds unconsumed work.
type Watcher struct {
	dir   string
	store TaskCreator

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  bool
}

// NewWatcher creates a watcher over dir, creating the directory layout if
// needed.
func NewWatcher(dir string, store TaskCreator) (*Watcher, error) {
	for _, d := range []string{dir, filepath.Join(dir, "processed"), filepath.Join(dir, "rejected")} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create ingest directory: %w", err)
		}
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:     dir,
		store:   store,
		watcher: fsWatcher,
		done:    make(chan struct{}),
	}, nil
}

// Start ingests any files already present, then watches for new ones
// until Close is called.
func (w *Watcher) Start() error {
	if err := w.DrainExisting(); err != nil {
		return err
	}
	go w.watch()
	return nil
}

// DrainExisting ingests every task file currently in the drop directory.
func (w *Watcher) DrainExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read drop directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.ingestFile(filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// watch consumes filesystem events until the watcher is closed.
func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.ingestFile(event.Name)
			}
		case <-w.watcher.Errors:
			// Keep watching; DrainExisting on the next run picks up
			// anything missed.
		}
	}
}

// ingestFile parses one dropped file and records its tasks. The mutex
// serializes ingestion so a Create followed by a Write for the same file
// cannot double-ingest it.
func (w *Watcher) ingestFile(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !isTaskFile(path) {
		return
	}
	// The file may already have been moved by an earlier event.
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		log.Printf("ingest: read %s: %v", path, err)
		return
	}

	tasks, err := ParseTasks(data)
	if err != nil {
		log.Printf("ingest: reject %s: %v", path, err)
		w.moveTo(path, "rejected")
		return
	}

	for _, task := range tasks {
		if err := w.store.CreateTask(task); err != nil {
			log.Printf("ingest: create task %s from %s: %v", task.ID, path, err)
			w.moveTo(path, "rejected")
			return
		}
	}

	w.moveTo(path, "processed")
}

// moveTo relocates a consumed file into a sibling subdirectory.
func (w *Watcher) moveTo(path, subdir string) {
	dest := filepath.Join(w.dir, subdir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		log.Printf("ingest: move %s to %s: %v", path, subdir, err)
	}
}

// isTaskFile reports whether the path looks like a task document.
func isTaskFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	return w.watcher.Close()
}
