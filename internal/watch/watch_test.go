package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fyrsmithlabs/fleetrecon/internal/config"
)

func newTestWatcher(t *testing.T, dir string, debounce time.Duration) *Watcher {
	t.Helper()
	w, err := New(config.WatchConfig{
		Dir:      dir,
		Debounce: config.Duration(debounce),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	return w
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("serial,model\n0118001,X100\n"), 0o644))
}

func waitForEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case event := <-w.Events():
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("no event before timeout")
		return Event{}
	}
}

func TestWatcher_BatchesRapidChanges(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, 100*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))

	writeFile(t, filepath.Join(dir, "installations.csv"))
	writeFile(t, filepath.Join(dir, "incidents.csv"))
	writeFile(t, filepath.Join(dir, "returns.csv"))

	event := waitForEvent(t, w)
	assert.Len(t, event.Paths, 3)
	assert.False(t, event.Timestamp.IsZero())

	// The directory is quiet now, so no second event arrives.
	select {
	case extra := <-w.Events():
		t.Fatalf("unexpected extra event: %v", extra.Paths)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_IgnoresNonCSV(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, 100*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))

	writeFile(t, filepath.Join(dir, "notes.txt"))
	writeFile(t, filepath.Join(dir, "export.json"))

	select {
	case event := <-w.Events():
		t.Fatalf("unexpected event for non-CSV files: %v", event.Paths)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_SeparateBatches(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, 100*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))

	writeFile(t, filepath.Join(dir, "installations.csv"))
	first := waitForEvent(t, w)
	require.Len(t, first.Paths, 1)

	writeFile(t, filepath.Join(dir, "incidents.csv"))
	second := waitForEvent(t, w)
	require.Len(t, second.Paths, 1)
	assert.NotEqual(t, first.Paths[0], second.Paths[0])
}

func TestWatcher_Run(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, 100*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, func(context.Context, Event) error {
			calls.Add(1)
			return nil
		})
	}()

	writeFile(t, filepath.Join(dir, "installations.csv"))
	require.Eventually(t, func() bool {
		return calls.Load() == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, dir, 50*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))

	w.Stop()
	w.Stop()
}

func TestWatcher_NoLeakedGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	w, err := New(config.WatchConfig{Dir: dir, Debounce: config.Duration(50 * time.Millisecond)}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	writeFile(t, filepath.Join(dir, "installations.csv"))
	waitForEvent(t, w)

	w.Stop()
	// Give the event loop a moment to observe the stop channel.
	time.Sleep(50 * time.Millisecond)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(config.WatchConfig{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch dir not set")
}

func TestNew_DefaultDebounce(t *testing.T) {
	w, err := New(config.WatchConfig{Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	defer w.Stop()
	assert.Equal(t, DefaultDebounce, w.debounce)
}

func TestRelevant(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"csv write", fsnotify.Event{Name: "a.csv", Op: fsnotify.Write}, true},
		{"csv create", fsnotify.Event{Name: "a.csv", Op: fsnotify.Create}, true},
		{"uppercase extension", fsnotify.Event{Name: "A.CSV", Op: fsnotify.Write}, true},
		{"csv remove", fsnotify.Event{Name: "a.csv", Op: fsnotify.Remove}, false},
		{"csv chmod", fsnotify.Event{Name: "a.csv", Op: fsnotify.Chmod}, false},
		{"txt write", fsnotify.Event{Name: "a.txt", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.event))
		})
	}
}
