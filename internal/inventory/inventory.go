// Package inventory watches a filesystem tree for images and turns file
// lifecycle into a stream of Added/Removed events for the Manager, per
// spec.md §4.1. The watch-loop-plus-coalescing-timer shape mirrors this
// corpus's fsnotify-based watchers (e.g. a video ingest watcher that pairs
// an fsnotify event reader with a periodic stability-check goroutine),
// generalized from a single debounce list to per-path add/remove state.
package inventory

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/lumenframe/frame/internal/clock"
	"github.com/lumenframe/frame/internal/photo"
	"github.com/lumenframe/frame/util/log"
)

// EventKind distinguishes the two event shapes Inventory emits.
type EventKind int

const (
	// Added reports a newly discovered or reappeared photo.
	Added EventKind = iota
	// Removed reports a photo leaving the tree (delete, rename-out, or
	// a proven-unreadable Invalidate).
	Removed
)

// Event is one entry in the ordered stream Inventory emits to the Manager.
type Event struct {
	Kind      EventKind
	Key       photo.Key
	CreatedAt time.Time // meaningful only for Added
	Ext       photo.ExtensionClass
}

// coalesceWindow is the debounce window named in spec.md §4.1: rapid
// add/add and remove/add churn is collapsed so the last observed state
// within the window wins.
const coalesceWindow = 100 * time.Millisecond

// scanRateLimit paces birth-time stat calls during the initial recursive
// scan of very large trees, so a slow disk cannot starve the coalescing
// timer's own goroutine scheduling.
const scanRateLimit = 2000 // stats/sec

// Inventory is the single-threaded (one goroutine) authoritative watcher
// of a root directory tree.
type Inventory struct {
	root  string
	clock clock.Clock
	out   chan Event

	invalidate chan photo.Key

	mu      sync.Mutex // guards pending, protecting only cross-goroutine handoff
	pending map[photo.Key]pendingState

	watcher *fsnotify.Watcher
}

type pendingState struct {
	removed   bool
	createdAt time.Time
	ext       photo.ExtensionClass
	deadline  time.Time
}

// New creates an Inventory rooted at root. The out channel capacity is
// effectively unbounded (a large buffer) per spec.md §5's channel table:
// inventory events must never be lost to back-pressure from the Manager.
func New(root string, c clock.Clock) *Inventory {
	return &Inventory{
		root:       root,
		clock:      c,
		out:        make(chan Event, 4096),
		invalidate: make(chan photo.Key, 256),
		pending:    make(map[photo.Key]pendingState),
	}
}

// Events returns the ordered event stream consumed by the Manager.
func (inv *Inventory) Events() <-chan Event {
	return inv.out
}

// Invalidate retracts a key that another stage proved unreadable. It is
// accepted at any time and is idempotent. Inventory emits Added for the
// key again only on a later create or write event for the file, or when a
// rescan after watch-channel loss still finds the file on disk; retracted
// keys are not otherwise remembered.
func (inv *Inventory) Invalidate(key photo.Key) {
	select {
	case inv.invalidate <- key:
	default:
		// Bounded invalidate channel: a full channel means a flood of
		// failures is already being processed. The dropped retract leaves
		// the key in Inventory's own view; the Manager has already removed
		// it from its live set.
		log.Printf("inventory: invalidate channel full, dropping retract for %s", key)
	}
}

// Run performs the initial scan, then watches for changes until ctx is
// cancelled. It is meant to run in its own goroutine for the lifetime of
// the process, per spec.md §5's one-dedicated-thread-per-component model.
func (inv *Inventory) Run(ctx context.Context) error {
	defer close(inv.out)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	inv.watcher = watcher
	defer watcher.Close()

	known := make(map[photo.Key]photo.Record)
	inv.scan(known, emitAdded(inv.out))
	inv.addTreeWatches(watcher)

	ticker := time.NewTicker(coalesceWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case key := <-inv.invalidate:
			inv.retractLocked(key, known)

		case ev, ok := <-watcher.Events:
			if !ok {
				inv.rescanAndReconcile(known, watcher)
				continue
			}
			inv.handleFSEvent(ev, watcher)

		case werr, ok := <-watcher.Errors:
			if !ok {
				continue
			}
			log.Printf("inventory: watch error: %v, triggering rescan", werr)
			inv.rescanAndReconcile(known, watcher)

		case <-ticker.C:
			inv.flushPending(known)
		}
	}
}

// emitAdded returns a callback scan() uses to emit Added events during the
// initial walk, keeping scan() reusable for both the startup pass and
// reconciliation rescans.
func emitAdded(out chan<- Event) func(photo.Record) {
	return func(r photo.Record) {
		out <- Event{Kind: Added, Key: r.Key, CreatedAt: r.CreatedAt, Ext: r.Ext}
	}
}

// scan performs the recursive walk named in spec.md §4.1 step 1, recording
// every matching file into known (skipping ones already present) and
// invoking emit for each newly discovered record. I/O errors on individual
// entries are logged and skipped, never aborting the walk.
func (inv *Inventory) scan(known map[photo.Key]photo.Record, emit func(photo.Record)) {
	limiter := rate.NewLimiter(rate.Limit(scanRateLimit), scanRateLimit/10)

	err := filepath.WalkDir(inv.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("inventory: scan error at %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		class, ok := photo.ClassifyExtension(filepath.Ext(path))
		if !ok {
			return nil
		}
		key := photo.NewKey(path)
		if _, exists := known[key]; exists {
			return nil
		}
		_ = limiter.Wait(context.Background())
		created := birthTime(path, d)
		rec := photo.Record{Key: key, CreatedAt: created, Ext: class}
		known[key] = rec
		emit(rec)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("inventory: root %s does not exist yet, starting with an empty set", inv.root)
			return
		}
		log.Printf("inventory: scan of %s failed: %v", inv.root, err)
	}
}

// addTreeWatches recursively registers every directory under root with
// the fsnotify watcher. fsnotify is not recursive by itself, so each
// directory must be added individually; new subdirectories are added as
// Create events for directories arrive (see handleFSEvent).
func (inv *Inventory) addTreeWatches(watcher *fsnotify.Watcher) {
	err := filepath.WalkDir(inv.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if werr := watcher.Add(path); werr != nil {
				log.Printf("inventory: failed to watch %s: %v", path, werr)
			}
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		log.Printf("inventory: failed to add tree watches under %s: %v", inv.root, err)
	}
}

// handleFSEvent translates one fsnotify event into pending add/remove
// state, coalesced by flushPending on the next tick.
func (inv *Inventory) handleFSEvent(ev fsnotify.Event, watcher *fsnotify.Watcher) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if werr := watcher.Add(ev.Name); werr != nil {
				log.Printf("inventory: failed to watch new dir %s: %v", ev.Name, werr)
			}
			inv.scanSubtreeAsPending(ev.Name)
			return
		}
	}

	if !photo.IsAllowedExt(ev.Name) {
		return
	}
	key := photo.NewKey(ev.Name)

	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		inv.markPending(key, pendingState{removed: true, deadline: inv.clock.Now().Add(coalesceWindow)})
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		created := birthTimeOrNow(ev.Name)
		class, _ := photo.ClassifyExtension(filepath.Ext(ev.Name))
		inv.markPending(key, pendingState{
			removed:   false,
			createdAt: created,
			ext:       class,
			deadline:  inv.clock.Now().Add(coalesceWindow),
		})
	}
}

// scanSubtreeAsPending marks every matching file under a newly created
// directory as pending-added, so a rename-in of a whole directory tree
// surfaces every photo inside it.
func (inv *Inventory) scanSubtreeAsPending(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		class, ok := photo.ClassifyExtension(filepath.Ext(path))
		if !ok {
			return nil
		}
		created := birthTimeOrNow(path)
		inv.markPending(photo.NewKey(path), pendingState{
			createdAt: created,
			ext:       class,
			deadline:  inv.clock.Now().Add(coalesceWindow),
		})
		return nil
	})
}

func (inv *Inventory) markPending(key photo.Key, st pendingState) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.pending[key] = st
}

// retractLocked processes an external Invalidate request: if the key is
// currently known, emit Removed and drop it from known; it will not
// reappear until the underlying file is rediscovered by scan/watch.
func (inv *Inventory) retractLocked(key photo.Key, known map[photo.Key]photo.Record) {
	inv.mu.Lock()
	delete(inv.pending, key)
	inv.mu.Unlock()

	if _, ok := known[key]; ok {
		delete(known, key)
		inv.out <- Event{Kind: Removed, Key: key}
	}
}

// flushPending resolves every pending state whose coalescing window has
// elapsed, emitting the final Added/Removed against known.
func (inv *Inventory) flushPending(known map[photo.Key]photo.Record) {
	now := inv.clock.Now()

	inv.mu.Lock()
	ready := make(map[photo.Key]pendingState)
	for key, st := range inv.pending {
		if !now.Before(st.deadline) {
			ready[key] = st
			delete(inv.pending, key)
		}
	}
	inv.mu.Unlock()

	for key, st := range ready {
		if st.removed {
			if _, ok := known[key]; ok {
				delete(known, key)
				inv.out <- Event{Kind: Removed, Key: key}
			}
			continue
		}
		rec := photo.Record{Key: key, CreatedAt: st.createdAt, Ext: st.ext}
		known[key] = rec
		inv.out <- Event{Kind: Added, Key: key, CreatedAt: rec.CreatedAt, Ext: rec.Ext}
	}
}

// rescanAndReconcile is invoked when the watch channel is lost (closed or
// persistently erroring). It re-walks the tree from scratch (disk truth,
// not seeded from known) and diffs the result against known, emitting
// Removed for anything missing and Added for anything new, per spec.md
// §4.1's watch-channel-loss failure semantics.
func (inv *Inventory) rescanAndReconcile(known map[photo.Key]photo.Record, watcher *fsnotify.Watcher) {
	fresh := make(map[photo.Key]photo.Record)
	inv.scan(fresh, func(photo.Record) {})

	for key := range known {
		if _, stillThere := fresh[key]; !stillThere {
			delete(known, key)
			inv.out <- Event{Kind: Removed, Key: key}
		}
	}
	for key, rec := range fresh {
		if _, already := known[key]; !already {
			known[key] = rec
			inv.out <- Event{Kind: Added, Key: rec.Key, CreatedAt: rec.CreatedAt, Ext: rec.Ext}
		}
	}

	inv.addTreeWatches(watcher)
}
