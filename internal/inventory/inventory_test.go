package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenframe/frame/internal/clock"
	"github.com/lumenframe/frame/internal/photo"
)

func drainEvents(t *testing.T, events <-chan Event, n int, timeout time.Duration) []Event {
	t.Helper()
	got := make([]Event, 0, n)
	deadline := time.After(timeout)
	for len(got) < n {
		select {
		case ev := <-events:
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d: %+v", n, len(got), got)
		}
	}
	return got
}

func TestInventory_InitialScanEmitsAddedForExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0644))

	inv := New(dir, clock.System{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = inv.Run(ctx) }()

	events := drainEvents(t, inv.Events(), 2, 2*time.Second)

	keys := map[photo.Key]bool{}
	for _, ev := range events {
		assert.Equal(t, Added, ev.Kind)
		keys[ev.Key] = true
	}
	assert.True(t, keys[photo.NewKey(filepath.Join(dir, "a.jpg"))])
	assert.True(t, keys[photo.NewKey(filepath.Join(dir, "b.png"))])
}

func TestInventory_NewFileAfterStartupEmitsAdded(t *testing.T) {
	dir := t.TempDir()
	inv := New(dir, clock.System{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = inv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond) // let the initial (empty) scan settle

	path := filepath.Join(dir, "new.jpg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	events := drainEvents(t, inv.Events(), 1, 2*time.Second)
	assert.Equal(t, Added, events[0].Kind)
	assert.Equal(t, photo.NewKey(path), events[0].Key)
}

func TestInventory_RemovedFileEmitsRemoved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.jpg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	inv := New(dir, clock.System{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = inv.Run(ctx) }()

	drainEvents(t, inv.Events(), 1, 2*time.Second) // initial Added

	require.NoError(t, os.Remove(path))

	events := drainEvents(t, inv.Events(), 1, 2*time.Second)
	assert.Equal(t, Removed, events[0].Kind)
	assert.Equal(t, photo.NewKey(path), events[0].Key)
}

func TestInventory_InvalidateRetractsAKnownKeyImmediately(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.jpg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	inv := New(dir, clock.System{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = inv.Run(ctx) }()

	drainEvents(t, inv.Events(), 1, 2*time.Second) // initial Added

	inv.Invalidate(photo.NewKey(path))

	events := drainEvents(t, inv.Events(), 1, 2*time.Second)
	assert.Equal(t, Removed, events[0].Kind)
}

func TestInventory_IgnoresDisallowedExtensions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	inv := New(dir, clock.System{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = inv.Run(ctx) }()

	select {
	case ev := <-inv.Events():
		t.Fatalf("expected no events for a disallowed extension, got %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestInventory_RescanAndReconcile_EmitsRemovedForFileDeletedWhileWatchWasDown(t *testing.T) {
	dir := t.TempDir()
	stillHere := filepath.Join(dir, "stays.jpg")
	deletedOffDisk := filepath.Join(dir, "deleted.jpg")
	require.NoError(t, os.WriteFile(stillHere, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(deletedOffDisk, []byte("x"), 0644))

	inv := New(dir, clock.System{})

	known := map[photo.Key]photo.Record{
		photo.NewKey(stillHere):      {Key: photo.NewKey(stillHere), Ext: photo.ExtJPEG},
		photo.NewKey(deletedOffDisk): {Key: photo.NewKey(deletedOffDisk), Ext: photo.ExtJPEG},
	}

	// Simulate the file having been deleted while the watch channel was
	// down: the event never arrived, so known still thinks it exists.
	require.NoError(t, os.Remove(deletedOffDisk))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	inv.rescanAndReconcile(known, watcher) // out is buffered; safe to call inline

	events := drainEvents(t, inv.Events(), 1, 2*time.Second)
	assert.Equal(t, Removed, events[0].Kind)
	assert.Equal(t, photo.NewKey(deletedOffDisk), events[0].Key)

	_, stillKnown := known[photo.NewKey(stillHere)]
	assert.True(t, stillKnown)
	_, stillKnownDeleted := known[photo.NewKey(deletedOffDisk)]
	assert.False(t, stillKnownDeleted)
}

func TestInventory_MissingRootStartsEmptyWithoutError(t *testing.T) {
	inv := New(filepath.Join(t.TempDir(), "does-not-exist"), clock.System{})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := inv.Run(ctx)
	assert.NoError(t, err)
}
