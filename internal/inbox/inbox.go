// Package inbox imports export files dropped into a watched directory.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tangle/internal/apperr"
)

// settle is how long a file must go without writes before it is imported.
const settle = 200 * time.Millisecond

// rejectedSuffix is appended to files that are not valid exports.
const rejectedSuffix = ".rejected"

// ImportFunc merges an export document and returns the number of notes
// added.
type ImportFunc func(data []byte) (int, error)

// Watch imports every *.json file already in dir, then watches dir until
// ctx is cancelled. Imported files are removed. Files that are not valid
// exports are renamed with a .rejected suffix; other failures leave the file
// for the next event.
func Watch(ctx context.Context, dir string, logger *slog.Logger, fn ImportFunc) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("inbox: create dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: new watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("inbox: watch %s: %w", dir, err)
	}
	logger.Info("inbox: started", slog.String("dir", dir))

	existing, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("inbox: scan: %w", err)
	}
	for _, path := range existing {
		importFile(path, logger, fn)
	}

	// Writes arrive in bursts; each path gets its own timer that fires once
	// the file has been quiet for settle.
	timers := make(map[string]*time.Timer)
	ready := make(chan string, 16)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("inbox: stopped")
			return nil

		case path := <-ready:
			delete(timers, path)
			importFile(path, logger, fn)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isCandidate(ev.Name) || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if t, ok := timers[ev.Name]; ok {
				t.Reset(settle)
				continue
			}
			path := ev.Name
			timers[path] = time.AfterFunc(settle, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func isCandidate(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".json") && !strings.HasPrefix(base, ".")
}

func importFile(path string, logger *slog.Logger, fn ImportFunc) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		logger.Warn("inbox: read failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	added, err := fn(data)
	if errors.Is(err, apperr.ErrInvalidImport) {
		logger.Warn("inbox: rejected file", slog.String("path", path), slog.String("error", err.Error()))
		if renameErr := os.Rename(path, path+rejectedSuffix); renameErr != nil {
			logger.Warn("inbox: rename failed", slog.String("path", path), slog.String("error", renameErr.Error()))
		}
		return
	}
	if err != nil {
		logger.Warn("inbox: import failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	if err := os.Remove(path); err != nil {
		logger.Warn("inbox: remove failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	logger.Info("inbox: imported", slog.String("path", path), slog.Int("added", added))
}
