package playlist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenframe/frame/internal/clock"
	"github.com/lumenframe/frame/internal/inventory"
	"github.com/lumenframe/frame/internal/photo"
)

type fakeInvalidator struct {
	keys []photo.Key
}

func (f *fakeInvalidator) Invalidate(key photo.Key) {
	f.keys = append(f.keys, key)
}

func newTestManager(t *testing.T, cfg Config, events chan inventory.Event) (*Manager, *clock.Frozen) {
	t.Helper()
	frozen := clock.NewFrozen(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	m := New(cfg, frozen, events, &fakeInvalidator{}, 8)
	return m, frozen
}

func add(t *testing.T, events chan inventory.Event, key string, createdAt time.Time) {
	t.Helper()
	events <- inventory.Event{Kind: inventory.Added, Key: photo.NewKey(key), CreatedAt: createdAt, Ext: photo.ExtJPEG}
}

func TestMultiplicity_NewPhotoGetsConfiguredMultiplicity(t *testing.T) {
	got := multiplicity(0, 3, 24*time.Hour)
	assert.Equal(t, uint32(3), got)
}

func TestMultiplicity_DecaysByHalfLifeAndFloorsAtOne(t *testing.T) {
	halfLife := 24 * time.Hour
	assert.Equal(t, uint32(3), multiplicity(0, 3, halfLife))
	assert.Equal(t, uint32(2), multiplicity(halfLife, 3, halfLife))
	assert.Equal(t, uint32(1), multiplicity(halfLife*3, 3, halfLife))
	assert.Equal(t, uint32(1), multiplicity(halfLife*50, 3, halfLife))
}

func TestMultiplicity_FloorsAtOneEvenForZeroOrNegativeConfig(t *testing.T) {
	assert.Equal(t, uint32(1), multiplicity(0, 0, 24*time.Hour))
	assert.Equal(t, uint32(1), multiplicity(0, -5, 24*time.Hour))
}

func TestManager_EveryLiveKeyAppearsAtLeastOnceInTheCycle(t *testing.T) {
	events := make(chan inventory.Event, 16)
	m, clk := newTestManager(t, Config{NewMultiplicity: 3, HalfLife: 24 * time.Hour, ShuffleSeed: 1234}, events)

	add(t, events, "/lib/a.jpg", clk.Now())
	add(t, events, "/lib/b.jpg", clk.Now().Add(-48*time.Hour))
	add(t, events, "/lib/c.jpg", clk.Now().Add(-240*time.Hour))

	m.handleInventoryEvent(<-events)
	m.handleInventoryEvent(<-events)
	m.handleInventoryEvent(<-events)

	m.buildCycle()

	seen := map[photo.Key]int{}
	for _, e := range m.cycle {
		seen[e.Key]++
	}
	require.Len(t, seen, 3)
	for k, count := range seen {
		assert.GreaterOrEqual(t, count, 1, "key %s should appear at least once", k)
	}
}

func TestManager_EachCopyIndexIsUniquePerKey(t *testing.T) {
	events := make(chan inventory.Event, 16)
	m, clk := newTestManager(t, Config{NewMultiplicity: 4, HalfLife: 24 * time.Hour, ShuffleSeed: 7}, events)
	add(t, events, "/lib/a.jpg", clk.Now())
	m.handleInventoryEvent(<-events)
	m.buildCycle()

	indices := map[uint32]bool{}
	for _, e := range m.cycle {
		assert.False(t, indices[e.CopyIndex], "duplicate copy index %d", e.CopyIndex)
		indices[e.CopyIndex] = true
	}
	assert.Len(t, indices, 4)
}

func TestManager_DeterministicAcrossIdenticalSeedsAndInputs(t *testing.T) {
	build := func() []photo.ScheduledEntry {
		events := make(chan inventory.Event, 16)
		m, clk := newTestManager(t, Config{NewMultiplicity: 3, HalfLife: 24 * time.Hour, ShuffleSeed: 1234}, events)
		add(t, events, "/lib/a.jpg", clk.Now().Add(-10*time.Hour))
		add(t, events, "/lib/b.jpg", clk.Now().Add(-80*time.Hour))
		add(t, events, "/lib/c.jpg", clk.Now().Add(-5*time.Hour))
		add(t, events, "/lib/d.jpg", clk.Now().Add(-200*time.Hour))
		for i := 0; i < 4; i++ {
			m.handleInventoryEvent(<-events)
		}
		m.buildCycle()
		return m.cycle
	}

	first := build()
	second := build()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
}

func TestManager_FreshArrivalsPromotedToCycleHead(t *testing.T) {
	events := make(chan inventory.Event, 16)
	m, clk := newTestManager(t, Config{NewMultiplicity: 2, HalfLife: 24 * time.Hour, ShuffleSeed: 42}, events)

	add(t, events, "/lib/old1.jpg", clk.Now().Add(-500*time.Hour))
	add(t, events, "/lib/old2.jpg", clk.Now().Add(-500*time.Hour))
	m.handleInventoryEvent(<-events)
	m.handleInventoryEvent(<-events)
	m.buildCycle()

	add(t, events, "/lib/fresh.jpg", clk.Now())
	m.handleInventoryEvent(<-events)
	m.buildCycle()

	require.NotEmpty(t, m.cycle)
	freshKey := photo.NewKey("/lib/fresh.jpg")
	for i := 0; i < 2; i++ {
		assert.Equal(t, freshKey, m.cycle[i].Key, "fresh key should occupy the head of the rebuilt cycle")
	}
}

func TestManager_RemovedKeyDroppedFromLiveSetAndLazilyFilteredFromDispatch(t *testing.T) {
	events := make(chan inventory.Event, 16)
	m, clk := newTestManager(t, Config{NewMultiplicity: 2, HalfLife: 24 * time.Hour, ShuffleSeed: 1}, events)

	add(t, events, "/lib/a.jpg", clk.Now())
	add(t, events, "/lib/b.jpg", clk.Now())
	m.handleInventoryEvent(<-events)
	m.handleInventoryEvent(<-events)
	m.buildCycle()

	removedKey := photo.NewKey("/lib/a.jpg")
	m.handleInventoryEvent(inventory.Event{Kind: inventory.Removed, Key: removedKey})
	assert.Equal(t, 1, m.LiveCount())

	for i := 0; i < 10; i++ {
		entry, ok := m.peekNext()
		if !ok {
			break
		}
		assert.NotEqual(t, removedKey, entry.Key)
		m.cyclePos++
	}
}

func TestManager_DecodeErrorInvalidatesAndRemovesFromLiveSet(t *testing.T) {
	events := make(chan inventory.Event, 16)
	frozen := clock.NewFrozen(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	inv := &fakeInvalidator{}
	m := New(Config{NewMultiplicity: 2, HalfLife: 24 * time.Hour, ShuffleSeed: 1}, frozen, events, inv, 8)

	add(t, events, "/lib/bad.jpg", frozen.Now())
	m.handleInventoryEvent(<-events)
	require.Equal(t, 1, m.LiveCount())

	key := photo.NewKey("/lib/bad.jpg")
	m.handleLoadResult(LoadResult{Entry: photo.ScheduledEntry{Key: key}, Err: assertError{}})

	assert.Equal(t, 0, m.LiveCount())
	require.Len(t, inv.keys, 1)
	assert.Equal(t, key, inv.keys[0])
}

type assertError struct{}

func (assertError) Error() string { return "decode failed" }

func TestManager_DispatchStallsWithEmptyLiveSetThenResumesOnAdd(t *testing.T) {
	events := make(chan inventory.Event, 16)
	m, clk := newTestManager(t, Config{NewMultiplicity: 1, HalfLife: 24 * time.Hour, ShuffleSeed: 1}, events)

	_, ready := m.peekNext()
	assert.False(t, ready)

	add(t, events, "/lib/a.jpg", clk.Now())
	m.handleInventoryEvent(<-events)

	entry, ready := m.peekNext()
	require.True(t, ready)
	assert.Equal(t, photo.NewKey("/lib/a.jpg"), entry.Key)
}

func TestManager_RunDispatchesScheduledEntries(t *testing.T) {
	events := make(chan inventory.Event, 16)
	frozen := clock.NewFrozen(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	m := New(Config{NewMultiplicity: 2, HalfLife: 24 * time.Hour, ShuffleSeed: 9}, frozen, events, &fakeInvalidator{}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	events <- inventory.Event{Kind: inventory.Added, Key: photo.NewKey("/lib/a.jpg"), CreatedAt: frozen.Now(), Ext: photo.ExtJPEG}

	select {
	case entry := <-m.Dispatch():
		assert.Equal(t, photo.NewKey("/lib/a.jpg"), entry.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dispatched entry")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
}
