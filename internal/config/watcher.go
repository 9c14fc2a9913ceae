package config

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches config.yaml for changes and emits a debounced reload
// signal, so an operator editing channel lists or worker counts doesn't
// need to restart the runner process.
type Watcher struct {
	homeDir string
	logger  *slog.Logger
	events  chan struct{}
}

// NewWatcher returns a Watcher for the config.yaml under homeDir.
func NewWatcher(homeDir string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		homeDir: homeDir,
		logger:  logger,
		events:  make(chan struct{}, 1),
	}
}

// Events delivers one signal per debounced burst of config file changes.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Start begins watching in a background goroutine. It returns once the
// underlying fsnotify watcher is registered; the goroutine runs until ctx is
// done.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(ConfigPath(w.homeDir)); err != nil {
		fsw.Close()
		return err
	}

	go func() {
		defer func() {
			_ = fsw.Close()
			close(w.events)
		}()

		var pending bool
		var timer *time.Timer
		var timerC <-chan time.Time
		flush := func() {
			if !pending {
				return
			}
			pending = false
			select {
			case w.events <- struct{}{}:
			default:
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = true
				if timer == nil {
					timer = time.NewTimer(150 * time.Millisecond)
					timerC = timer.C
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(150 * time.Millisecond)
					timerC = timer.C
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("config watcher error", "error", err)
			case <-timerC:
				flush()
				timerC = nil
			}
		}
	}()
	return nil
}
