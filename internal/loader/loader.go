// Package loader decodes scheduled photos with bounded concurrency and
// forwards the decoded frame to the Viewer, reporting failures back to
// the Manager. It generalizes this corpus's desktop wallpaper pipeline
// worker pool (fixed worker count draining a job channel) to an
// admission-gated pool sized by a semaphore instead of a fixed
// goroutine-per-worker loop, since decode concurrency here is a tuning
// knob (LoaderMaxConcurrentDecs) rather than a fixed CPU-derived count.
package loader

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lumenframe/frame/internal/decode"
	"github.com/lumenframe/frame/internal/photo"
	"github.com/lumenframe/frame/internal/playlist"
	"github.com/lumenframe/frame/util"
	"github.com/lumenframe/frame/util/log"
)

// Decoder is the narrow capability the Loader depends on, satisfied by
// *decode.Default or a test fake.
type Decoder interface {
	Decode(ctx context.Context, path string, targetW, targetH int) (image.Image, error)
}

// Frame is a successfully decoded photo ready for the Viewer's preload
// channel.
type Frame struct {
	Entry photo.ScheduledEntry
	Image image.Image
}

// Loader owns a bounded pool of decode workers. Unlike the Manager and
// Inventory, Loader does not run on a single dedicated goroutine: each
// admitted decode runs concurrently in its own goroutine, gated by sem.
type Loader struct {
	dispatch <-chan photo.ScheduledEntry
	results  chan<- playlist.LoadResult
	preload  chan<- Frame

	decoder Decoder
	sem     *semaphore.Weighted
	inFlightCount *util.SafeCounter

	targetW, targetH int
	timeout          time.Duration
}

// New constructs a Loader. concurrency bounds how many decodes run at
// once (LoaderMaxConcurrentDecs); preload is the Viewer's preload
// channel, capacity ViewerPreloadCount.
func New(dispatch <-chan photo.ScheduledEntry, results chan<- playlist.LoadResult, preload chan<- Frame, decoder Decoder, concurrency int, targetW, targetH int, timeout time.Duration) *Loader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Loader{
		dispatch:      dispatch,
		results:       results,
		preload:       preload,
		decoder:       decoder,
		sem:           semaphore.NewWeighted(int64(concurrency)),
		inFlightCount: util.NewSafeInt(),
		targetW:       targetW,
		targetH:       targetH,
		timeout:       timeout,
	}
}

// InFlight returns the number of decodes currently running. Exposed for
// diagnostics and tests.
func (l *Loader) InFlight() int {
	return l.inFlightCount.Value()
}

// Run admits scheduled entries from dispatch up to the configured
// concurrency bound, decoding each in its own goroutine, until ctx is
// cancelled or dispatch is closed.
func (l *Loader) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil

		case entry, ok := <-l.dispatch:
			if !ok {
				return nil
			}
			if err := l.sem.Acquire(ctx, 1); err != nil {
				return nil // ctx cancelled while waiting for a slot
			}
			wg.Add(1)
			l.inFlightCount.Increment()
			go func(e photo.ScheduledEntry) {
				defer wg.Done()
				defer l.sem.Release(1)
				defer l.inFlightCount.Decrement()
				l.decodeAndForward(ctx, e)
			}(entry)
		}
	}
}

// decodeAndForward decodes one entry under its own timeout and routes
// the outcome: success goes to the Viewer's preload channel and an
// informational ack to the Manager; failure reports a DecodeError to the
// Manager only, per spec.md §4.2/§4.3's feedback contract.
func (l *Loader) decodeAndForward(ctx context.Context, entry photo.ScheduledEntry) {
	dctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	img, err := l.decoder.Decode(dctx, entry.Key.String(), l.targetW, l.targetH)
	if err != nil {
		var derr *decode.Error
		if errors.As(err, &derr) && derr.Kind == decode.KindCancelled {
			// Cancelled means the Loader's context was cancelled (shutdown),
			// not a genuine decode problem: silently drop per spec.md §6/§7,
			// rather than invalidating a key that may still be perfectly
			// readable.
			return
		}
		log.Printf("loader: decode failed for %s: %v", entry.Key, err)
		l.sendResult(ctx, playlist.LoadResult{Entry: entry, Err: err})
		return
	}

	select {
	case l.preload <- Frame{Entry: entry, Image: img}:
	case <-ctx.Done():
		return
	}

	l.sendResult(ctx, playlist.LoadResult{Entry: entry})
}

func (l *Loader) sendResult(ctx context.Context, lr playlist.LoadResult) {
	select {
	case l.results <- lr:
	case <-ctx.Done():
	}
}
