// Package watch triggers reconciliation runs when source CSV files
// change.
//
// The watcher observes one directory and batches CSV create/write
// events: each relevant filesystem event re-arms a debounce timer, and
// only when the directory has been quiet for the debounce interval is
// one Event emitted with every path that changed. Bulk exports that
// rewrite all three source files therefore trigger a single run.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
	"github.com/fyrsmithlabs/fleetrecon/internal/logging"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultDebounce is used when the configured debounce is zero.
const DefaultDebounce = 2 * time.Second

// Event reports that the watched directory settled after CSV changes.
type Event struct {
	// Paths are the files that changed since the previous event, in
	// first-change order, without duplicates.
	Paths     []string
	Timestamp time.Time
}

// Watcher emits debounced change events for one source directory.
type Watcher struct {
	dir      string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	events   chan Event
	stop     chan struct{}
	logger   *logging.Logger
}

// New creates a Watcher for cfg.Dir. A nil logger falls back to a no-op
// logger.
func New(cfg config.WatchConfig, logger *logging.Logger) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch dir not set")
	}
	debounce := cfg.Debounce.Duration()
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.Nop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		dir:      cfg.Dir,
		debounce: debounce,
		watcher:  fsw,
		events:   make(chan Event, 10),
		stop:     make(chan struct{}),
		logger:   logger,
	}, nil
}

// Start begins watching. Events are delivered on Events() until Stop is
// called or ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info(ctx, "watching source directory",
		zap.String("dir", w.dir),
		zap.Duration("debounce", w.debounce),
	)
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and releases its resources. Safe to call more
// than once.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

// Events returns the channel of debounced change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run consumes events and invokes fn for each until ctx is cancelled or
// the watcher stops. Errors from fn are logged, not fatal: the next
// change still triggers a run.
func (w *Watcher) Run(ctx context.Context, fn func(context.Context, Event) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.events:
			if !ok {
				return
			}
			if err := fn(ctx, event); err != nil {
				w.logger.Error(ctx, "triggered run failed",
					zap.Error(err),
					zap.Strings("paths", event.Paths),
				)
			}
		}
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	var (
		pending []string
		seen    = make(map[string]struct{})
		timer   *time.Timer
		fire    <-chan time.Time
	)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			if _, dup := seen[event.Name]; !dup {
				seen[event.Name] = struct{}{}
				pending = append(pending, event.Name)
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
		case <-fire:
			out := Event{Paths: pending, Timestamp: time.Now().UTC()}
			select {
			case w.events <- out:
			default:
				w.logger.Warn(ctx, "event channel full, change batch dropped",
					zap.Strings("paths", out.Paths),
				)
			}
			pending = nil
			seen = make(map[string]struct{})
			timer = nil
			fire = nil
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, "watcher error", zap.Error(err))
		}
	}
}

// relevant keeps CSV create/write events and drops everything else,
// including editor temp files and removals.
func relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return false
	}
	return strings.EqualFold(filepath.Ext(event.Name), ".csv")
}
