package registry

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period the watcher waits for after the
// last filesystem event before triggering a rebuild.
const DefaultDebounce = 2 * time.Second

// Watcher observes the plugin root and schedules debounced rebuilds.
//
// It runs a simple state machine: idle until an event arrives, pending
// while the debounce window is open (any further event resets the
// window), rebuilding while the builder runs. Rebuilds never overlap;
// events arriving mid-rebuild queue up and open a fresh window once the
// rebuild returns. Readers of the registry store are never blocked.
type Watcher struct {
	builder  *Builder
	debounce time.Duration
	logger   *slog.Logger

	fw    *fsnotify.Watcher
	fatal chan error
	done  chan struct{}
}

// NewWatcher creates a watcher over the builder's plugin root. A
// non-positive debounce falls back to DefaultDebounce.
func NewWatcher(builder *Builder, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		builder:  builder,
		debounce: debounce,
		logger:   logger,
		fw:       fw,
		fatal:    make(chan error, 1),
		done:     make(chan struct{}),
	}

	if err := fw.Add(builder.Root()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch plugin dir: %w", err)
	}
	// Watch existing subdirectories; new ones are added as they appear.
	filepath.WalkDir(builder.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == builder.Root() {
			return nil
		}
		if strings.HasPrefix(d.Name(), "_") || strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		fw.Add(path)
		return nil
	})

	return w, nil
}

// Start launches the watch loop. It returns immediately; the loop stops
// when ctx is cancelled or the watched root disappears.
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("plugin watcher started",
		"path", w.builder.Root(), "debounce", w.debounce.String())
	go w.loop(ctx)
}

// Fatal reports unrecoverable watcher conditions, such as the plugin
// root being removed. At most one error is delivered.
func (w *Watcher) Fatal() <-chan error { return w.fatal }

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error { return w.fw.Close() }

// Done is closed when the watch loop has exited.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var timer *time.Timer
	var timerC <-chan time.Time
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}
	defer stopTimer()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if w.rootRemoved(ev) {
				stopTimer()
				w.failf("plugin root removed: %s", w.builder.Root())
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("plugin change observed", "path", ev.Name, "op", ev.Op.String())
			// Pending: every event restarts the quiet period.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			if _, err := w.builder.Rebuild(ctx, "watch"); err != nil {
				w.logger.Error("rebuild failed", "error", err)
			}
			if _, err := os.Stat(w.builder.Root()); os.IsNotExist(err) {
				w.failf("plugin root removed: %s", w.builder.Root())
				return
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// relevant reports whether an event should count towards a rebuild.
// Directory creation also registers a watch on the new directory so
// files dropped inside it are seen.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, "_") || strings.HasPrefix(base, ".") {
		return false
	}
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			w.fw.Add(ev.Name)
			return true
		}
	}
	if strings.EqualFold(filepath.Ext(base), ".js") {
		return true
	}
	// Removes and renames of directories still matter; their files went
	// away with them.
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && filepath.Ext(base) == "" {
		return true
	}
	return false
}

func (w *Watcher) rootRemoved(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(ev.Name) == filepath.Clean(w.builder.Root())
}

func (w *Watcher) failf(format string, args ...any) {
	err := fmt.Errorf(format, args...)
	w.logger.Error("plugin watcher stopping", "error", err)
	select {
	case w.fatal <- err:
	default:
	}
}
