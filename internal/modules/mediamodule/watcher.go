package mediamodule

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/mantonx/shoebox/internal/logger"
)

// InboxWatcher watches a drop directory and imports files placed there.
// A file that imports successfully (or turns out to be a duplicate) is
// removed from the inbox; anything that fails stays put for manual
// inspection.
type InboxWatcher struct {
	manager *Manager
	inbox   string

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     hclog.Logger

	pending  chan string
	debounce time.Duration
}

// NewInboxWatcher creates a watcher for the given inbox directory.
func NewInboxWatcher(manager *Manager, inbox string) (*InboxWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &InboxWatcher{
		manager:  manager,
		inbox:    inbox,
		watcher:  watcher,
		ctx:      ctx,
		cancel:   cancel,
		log:      logger.Named("inbox"),
		pending:  make(chan string, 256),
		debounce: 2 * time.Second,
	}, nil
}

// Start begins watching. Files already sitting in the inbox are queued
// on startup so a restart does not strand them.
func (w *InboxWatcher) Start() error {
	if err := os.MkdirAll(w.inbox, 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}
	if err := w.watcher.Add(w.inbox); err != nil {
		return fmt.Errorf("failed to watch inbox: %w", err)
	}

	w.wg.Add(2)
	go w.watchEvents()
	go w.processPending()

	if entries, err := os.ReadDir(w.inbox); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				w.enqueue(filepath.Join(w.inbox, entry.Name()))
			}
		}
	}

	w.log.Info("inbox watcher started", "path", w.inbox)
	return nil
}

// Stop shuts the watcher down and waits for in-flight imports.
func (w *InboxWatcher) Stop() {
	w.cancel()
	w.watcher.Close()
	w.wg.Wait()
	w.log.Info("inbox watcher stopped")
}

func (w *InboxWatcher) watchEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.enqueue(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("inbox watcher error", "error", err)
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *InboxWatcher) enqueue(path string) {
	select {
	case w.pending <- path:
	default:
		w.log.Warn("inbox queue full, dropping event", "path", path)
	}
}

// processPending debounces rapid write events per path, then imports.
func (w *InboxWatcher) processPending() {
	defer w.wg.Done()

	latest := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case path := <-w.pending:
			latest[path] = time.Now()

		case <-ticker.C:
			for path, seen := range latest {
				if time.Since(seen) < w.debounce {
					continue
				}
				delete(latest, path)
				w.importFile(path)
			}

		case <-w.ctx.Done():
			// Drain only entries the debounce already cleared. A file
			// still being written at shutdown stays in the inbox for
			// the startup sweep.
			for path, seen := range latest {
				if time.Since(seen) < w.debounce {
					continue
				}
				w.importFile(path)
			}
			return
		}
	}
}

func (w *InboxWatcher) importFile(path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		w.log.Warn("inbox file has unknown type, leaving in place", "path", path)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Error("failed to read inbox file", "path", path, "error", err)
		return
	}
	modTime := info.ModTime()

	result, err := w.manager.Import(Submission{
		Data:         data,
		ContentType:  contentType,
		OriginalName: filepath.Base(path),
		LastModified: &modTime,
	})
	if err != nil {
		w.log.Error("inbox import failed", "path", path, "error", err)
		return
	}

	// The library now holds the bytes (or already did); the inbox copy
	// is spent.
	if err := os.Remove(path); err != nil {
		w.log.Warn("failed to remove imported inbox file", "path", path, "error", err)
	}

	if result.Duplicate {
		w.log.Info("inbox file was a duplicate", "path", path, "item_id", result.Item.ID)
		return
	}
	if err := w.manager.PostProcess(result.Item.ID); err != nil {
		w.log.Error("post-processing failed", "item_id", result.Item.ID, "error", err)
	}
}
