// Package playlist implements the Manager: the component that owns the
// live set of photos, applies the age-weighted multiplicity law, and
// feeds a continuous stream of ScheduledEntry values to the Loader.
// See spec.md §4.2 and §8 for the full weighting law, cycle-construction
// algorithm, and the testable properties this package must satisfy.
package playlist

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lumenframe/frame/internal/clock"
	"github.com/lumenframe/frame/internal/inventory"
	"github.com/lumenframe/frame/internal/photo"
	"github.com/lumenframe/frame/util/log"
)

// Config holds the Manager's weighting-law knobs, per spec.md §4.2.
type Config struct {
	NewMultiplicity int
	HalfLife        time.Duration
	ShuffleSeed     int64 // XORed with the generation counter per cycle
}

// Invalidator is the narrow interface the Manager needs on Inventory: a
// way to retract a key proven unreadable. Depending on this interface
// instead of *inventory.Inventory keeps the two packages decoupled.
type Invalidator interface {
	Invalidate(key photo.Key)
}

// LoadResult is feedback from the Loader: either an informational success
// acknowledgement (Err == nil) or a decode failure that must invalidate
// the key (Err != nil), per spec.md §4.2's feedback handling.
type LoadResult struct {
	Entry photo.ScheduledEntry
	Err   error
}

// Manager owns the live set exclusively; only the goroutine running Run
// ever reads or writes it, per the Design Notes in spec.md §9 — no mutex
// guards it.
type Manager struct {
	clock clock.Clock
	cfg   Config
	runID uuid.UUID

	invEvents <-chan inventory.Event
	loadIn    chan LoadResult
	dispatch  chan photo.ScheduledEntry
	liveQuery chan liveQuery
	inv       Invalidator

	live map[photo.Key]photo.Record

	cycle      []photo.ScheduledEntry
	cyclePos   int
	cycleID    uint64
	sinceStart []photo.Key // keys Added since the current cycle began, in arrival order
}

// New constructs a Manager. dispatchCapacity should equal the Loader's
// concurrency bound N, per the manager→loader channel row in spec.md §5.
func New(cfg Config, c clock.Clock, events <-chan inventory.Event, inv Invalidator, dispatchCapacity int) *Manager {
	if cfg.NewMultiplicity < 1 {
		cfg.NewMultiplicity = 1
	}
	return &Manager{
		clock:     c,
		cfg:       cfg,
		runID:     uuid.New(),
		invEvents: events,
		loadIn:    make(chan LoadResult, 64),
		dispatch:  make(chan photo.ScheduledEntry, dispatchCapacity),
		liveQuery: make(chan liveQuery, 8),
		inv:       inv,
		live:      make(map[photo.Key]photo.Record),
	}
}

// Dispatch returns the channel the Loader reads scheduled entries from.
func (m *Manager) Dispatch() <-chan photo.ScheduledEntry {
	return m.dispatch
}

type liveQuery struct {
	key  photo.Key
	resp chan bool
}

// IsLive reports whether key is currently in the live set. Safe to call
// from any goroutine: it hands the question to the Manager's own
// goroutine via liveQuery rather than reading the map directly, since
// live is otherwise unsynchronized. Satisfies viewer.LiveChecker.
func (m *Manager) IsLive(key photo.Key) bool {
	resp := make(chan bool, 1)
	select {
	case m.liveQuery <- liveQuery{key: key, resp: resp}:
	case <-time.After(time.Second):
		return true // fail open rather than wrongly discard a live frame
	}
	select {
	case v := <-resp:
		return v
	case <-time.After(time.Second):
		return true
	}
}

// LoadResults returns the send side of the Loader-feedback channel.
func (m *Manager) LoadResults() chan<- LoadResult {
	return m.loadIn
}

// LiveCount returns the number of photos currently in the live set.
// Intended for tests and diagnostics only.
func (m *Manager) LiveCount() int {
	return len(m.live)
}

// Run is the Manager's single dedicated goroutine. It services Inventory
// events with priority over dispatch sends, per spec.md §4.2's
// back-pressure rule ("Manager must never block Inventory intake").
func (m *Manager) Run(ctx context.Context) error {
	defer close(m.dispatch)

	for {
		// Priority drain: service any already-pending Inventory event
		// before considering a dispatch send, so a full Loader channel
		// never stalls intake.
		select {
		case ev, ok := <-m.invEvents:
			if !ok {
				return nil
			}
			m.handleInventoryEvent(ev)
			continue
		default:
		}

		entry, ready := m.peekNext()
		if !ready {
			select {
			case ev, ok := <-m.invEvents:
				if !ok {
					return nil
				}
				m.handleInventoryEvent(ev)
			case lr := <-m.loadIn:
				m.handleLoadResult(lr)
			case q := <-m.liveQuery:
				m.answerLiveQuery(q)
			case <-ctx.Done():
				return nil
			}
			continue
		}

		select {
		case ev, ok := <-m.invEvents:
			if !ok {
				return nil
			}
			m.handleInventoryEvent(ev)
		case lr := <-m.loadIn:
			m.handleLoadResult(lr)
		case q := <-m.liveQuery:
			m.answerLiveQuery(q)
		case m.dispatch <- entry:
			log.Debugf("playlist[%s]: scheduled %s copy=%d cycle=%d", m.runID, entry.Key, entry.CopyIndex, entry.CycleID)
			m.cyclePos++
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Manager) answerLiveQuery(q liveQuery) {
	_, ok := m.live[q.key]
	q.resp <- ok
}

func (m *Manager) handleInventoryEvent(ev inventory.Event) {
	switch ev.Kind {
	case inventory.Added:
		if _, exists := m.live[ev.Key]; exists {
			return // spurious duplicate Added: no-op per the per-key state machine
		}
		m.live[ev.Key] = photo.Record{Key: ev.Key, CreatedAt: ev.CreatedAt, Ext: ev.Ext}
		m.sinceStart = append(m.sinceStart, ev.Key)
		log.Printf("playlist: discovered %s", ev.Key)
		m.forceRebuildNext()

	case inventory.Removed:
		if _, exists := m.live[ev.Key]; !exists {
			return
		}
		delete(m.live, ev.Key)
		log.Printf("playlist: removed %s", ev.Key)
		m.forceRebuildNext()
	}
}

func (m *Manager) handleLoadResult(lr LoadResult) {
	if lr.Err == nil {
		log.Debugf("playlist: loaded %s", lr.Entry.Key)
		return
	}
	log.Printf("playlist: decode error for %s: %v", lr.Entry.Key, lr.Err)
	if _, exists := m.live[lr.Entry.Key]; exists {
		delete(m.live, lr.Entry.Key)
		m.forceRebuildNext()
	}
	m.inv.Invalidate(lr.Entry.Key)
}

// forceRebuildNext marks the current cycle exhausted so the next call to
// peekNext rebuilds it from the latest live set, batching any further
// material changes that arrive before the next dispatch into the same
// rebuild.
func (m *Manager) forceRebuildNext() {
	m.cyclePos = len(m.cycle)
}

// peekNext returns the next entry to dispatch, lazily filtering stale
// entries (keys no longer live) out of the current cycle array without
// compacting it, and rebuilding the cycle on exhaustion, per spec.md §4.2.
func (m *Manager) peekNext() (photo.ScheduledEntry, bool) {
	if len(m.live) == 0 {
		return photo.ScheduledEntry{}, false
	}
	for {
		if m.cyclePos >= len(m.cycle) {
			m.buildCycle()
		}
		if len(m.cycle) == 0 {
			return photo.ScheduledEntry{}, false
		}
		e := m.cycle[m.cyclePos]
		if _, live := m.live[e.Key]; !live {
			m.cyclePos++
			continue
		}
		return e, true
	}
}

type slot struct {
	key   photo.Key
	index uint32
}

// buildCycle implements the six-step cycle-construction algorithm in
// spec.md §4.2: snapshot, weight, expand by multiplicity, promote fresh
// arrivals to the head, shuffle the remainder deterministically, and
// replace the cycle atomically under a fresh cycle_id.
func (m *Manager) buildCycle() {
	now := m.clock.Now()

	freshSeen := make(map[photo.Key]bool, len(m.sinceStart))
	fresh := make([]slot, 0, len(m.sinceStart))
	for _, key := range m.sinceStart {
		if freshSeen[key] {
			continue
		}
		freshSeen[key] = true
		rec, ok := m.live[key]
		if !ok {
			continue // removed before its promotion took effect
		}
		mult := multiplicity(rec.Age(now), m.cfg.NewMultiplicity, m.cfg.HalfLife)
		for c := uint32(0); c < mult; c++ {
			fresh = append(fresh, slot{key: key, index: c})
		}
	}

	// Deterministic base order for the remainder: live set keys sorted
	// lexicographically. Go map iteration order is randomized per
	// process, so shuffling map-iteration order directly would break
	// the byte-identical-dispatch determinism required by spec.md §8
	// property 7 even with a fixed seed.
	restKeys := make([]photo.Key, 0, len(m.live))
	for key := range m.live {
		if freshSeen[key] {
			continue
		}
		restKeys = append(restKeys, key)
	}
	sort.Slice(restKeys, func(i, j int) bool { return restKeys[i] < restKeys[j] })

	rest := make([]slot, 0, len(restKeys))
	for _, key := range restKeys {
		rec := m.live[key]
		mult := multiplicity(rec.Age(now), m.cfg.NewMultiplicity, m.cfg.HalfLife)
		for c := uint32(0); c < mult; c++ {
			rest = append(rest, slot{key: key, index: c})
		}
	}

	m.cycleID++
	r := rand.New(rand.NewSource(m.cfg.ShuffleSeed ^ int64(m.cycleID)))
	r.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })

	entries := make([]photo.ScheduledEntry, 0, len(fresh)+len(rest))
	for _, s := range fresh {
		entries = append(entries, photo.ScheduledEntry{Key: s.key, CopyIndex: s.index, CycleID: m.cycleID})
	}
	for _, s := range rest {
		entries = append(entries, photo.ScheduledEntry{Key: s.key, CopyIndex: s.index, CycleID: m.cycleID})
	}

	m.cycle = entries
	m.cyclePos = 0
	m.sinceStart = m.sinceStart[:0]

	log.Printf("playlist: built cycle %d with %d entries (%d fresh)", m.cycleID, len(entries), len(fresh))
}

// multiplicity implements the weighting law in spec.md §4.2:
// ceil(max(1, newMultiplicity) * 0.5^(age/halfLife)), floored at 1.
func multiplicity(age time.Duration, newMultiplicity int, halfLife time.Duration) uint32 {
	nm := newMultiplicity
	if nm < 1 {
		nm = 1
	}
	if halfLife <= 0 {
		halfLife = 24 * time.Hour
	}
	exp := float64(age) / float64(halfLife)
	val := float64(nm) * math.Pow(0.5, exp)
	m := math.Ceil(val)
	if m < 1 {
		m = 1
	}
	return uint32(m)
}
