package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type eventSink struct {
	mu     sync.Mutex
	events []FileEvent
}

func (s *eventSink) add(ev FileEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *eventSink) snapshot() []FileEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FileEvent(nil), s.events...)
}

func TestNewFileWatcher_Defaults(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(f, []byte("key: val"), 0o644))

	w, err := NewFileWatcher([]string{f})
	require.NoError(t, err)

	assert.Equal(t, []string{f}, w.Paths())
	assert.False(t, w.IsRunning())
	assert.Equal(t, 100*time.Millisecond, w.debounceDelay)
}

func TestNewFileWatcher_WithOptions(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test.yaml")
	w, err := NewFileWatcher([]string{f},
		WithDebounceDelay(500*time.Millisecond),
		WithWatcherLogger(zap.NewNop()),
	)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, w.debounceDelay)

	// non-positive delays are ignored
	w, err = NewFileWatcher([]string{f}, WithDebounceDelay(0))
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, w.debounceDelay)
}

func TestFileWatcher_StartFailsWithoutDirectory(t *testing.T) {
	w, err := NewFileWatcher([]string{"/nonexistent/dir/config.yaml"})
	require.NoError(t, err)

	err = w.Start(context.Background())
	assert.Error(t, err)
	assert.False(t, w.IsRunning())
}

func TestFileWatcher_Lifecycle(t *testing.T) {
	f := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(f, []byte("a: 1"), 0o644))

	w, err := NewFileWatcher([]string{f})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(context.Background()), "double start")

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop(), "stop is idempotent")
}

func TestFileWatcher_DetectsWrites(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(f, []byte("a: 1"), 0o644))

	w, err := NewFileWatcher([]string{f}, WithDebounceDelay(20*time.Millisecond))
	require.NoError(t, err)
	sink := &eventSink{}
	w.OnChange(sink.add)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	// other files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(f, []byte("a: 2"), 0o644))

	require.Eventually(t, func() bool { return len(sink.snapshot()) > 0 }, 3*time.Second, 10*time.Millisecond)
	for _, ev := range sink.snapshot() {
		assert.Equal(t, f, ev.Path)
	}
}

func TestFileWatcher_DebounceCoalesces(t *testing.T) {
	f := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(f, []byte("a: 0"), 0o644))

	w, err := NewFileWatcher([]string{f}, WithDebounceDelay(200*time.Millisecond))
	require.NoError(t, err)
	sink := &eventSink{}
	w.OnChange(sink.add)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(f, []byte("a: 1"), 0o644))
	}

	require.Eventually(t, func() bool { return len(sink.snapshot()) > 0 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Len(t, sink.snapshot(), 1, "a burst of writes to one file dispatches once")
}

func TestFileWatcher_ContextCancel(t *testing.T) {
	f := filepath.Join(t.TempDir(), "config.yaml")
	w, err := NewFileWatcher([]string{f})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()

	// Stop still returns once the loop has exited on its own
	done := make(chan struct{})
	go func() {
		_ = w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked after context cancellation")
	}
}

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "RENAME", FileOpRename.String())
	assert.Equal(t, "UNKNOWN", FileOp(99).String())
}
