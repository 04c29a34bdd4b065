// Package signals lets another process pause, resume or cancel a running
// session by dropping files into .autopilot/signals.
package signals

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ShayCichocki/autopilot/pkg/models"
)

// Signal names a control file.
type Signal string

const (
	Pause  Signal = "pause"
	Resume Signal = "resume"
	Cancel Signal = "cancel"
)

// Valid reports whether s is a known signal.
func (s Signal) Valid() bool {
	return s == Pause || s == Resume || s == Cancel
}

// Target is the session being controlled.
type Target interface {
	Pause() error
	Resume() error
	Cancel() (*models.SessionResult, error)
}

// Dir returns the signals directory of a project.
func Dir(projectRoot string) string {
	return filepath.Join(projectRoot, ".autopilot", "signals")
}

// Send asks the session running in projectRoot to act on s.
func Send(projectRoot string, s Signal) error {
	if !s.Valid() {
		return fmt.Errorf("unknown signal %q", s)
	}
	dir := Dir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}
	path := filepath.Join(dir, string(s))
	return os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Watcher delivers signal files to a Target.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// NewWatcher watches the signals directory of projectRoot. Signal files left
// over from an earlier run are removed first.
func NewWatcher(projectRoot string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := Dir(projectRoot)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create signals directory: %w", err)
	}
	clearSignals(dir)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{dir: dir, watcher: fw, logger: logger}, nil
}

// Run forwards signals to t until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context, t Target) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			sig := Signal(filepath.Base(event.Name))
			if !sig.Valid() {
				continue
			}
			// Writing a file raises Create and Write; only the first
			// event to claim the file delivers it.
			if err := os.Remove(event.Name); err != nil {
				continue
			}
			w.deliver(sig, t)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("signal watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) deliver(sig Signal, t Target) {
	var err error
	switch sig {
	case Pause:
		err = t.Pause()
	case Resume:
		err = t.Resume()
	case Cancel:
		_, err = t.Cancel()
	}
	if err != nil {
		w.logger.Warn("signal ignored", zap.String("signal", string(sig)), zap.Error(err))
		return
	}
	w.logger.Info("signal applied", zap.String("signal", string(sig)))
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func clearSignals(dir string) {
	for _, s := range []Signal{Pause, Resume, Cancel} {
		os.Remove(filepath.Join(dir, string(s)))
	}
}
