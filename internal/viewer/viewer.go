// Package viewer consumes decoded frames from the Loader's preload
// channel and drives the Presenter's cross-fade/dwell cycle. See
// spec.md §4.4 for the dwell-timing and stale-discard contract.
package viewer

import (
	"context"
	"image"
	"time"

	"github.com/lumenframe/frame/internal/decode"
	"github.com/lumenframe/frame/internal/loader"
	"github.com/lumenframe/frame/internal/photo"
	"github.com/lumenframe/frame/internal/playlist"
	"github.com/lumenframe/frame/internal/present"
	"github.com/lumenframe/frame/util/log"
)

// maxBackoff caps the exponential retry delay on a transient Present
// failure, per spec.md §4.4.
const maxBackoff = time.Second

// maxTransientAttempts bounds how many times a Transient Present failure is
// retried before it escalates to invalidation, per spec.md §4.4's "a small
// number of attempts" cap — an always-failing presentation surface must not
// stall the pipeline on one entry forever.
const maxTransientAttempts = 5

// Displayed is emitted each time a frame actually reaches the screen,
// for diagnostics and tests; the pipeline has no other consumer of it.
type Displayed struct {
	Entry photo.ScheduledEntry
	At    time.Time
}

// LiveChecker reports whether a key is still part of the live set, used
// to discard a preloaded frame that was invalidated while queued.
type LiveChecker interface {
	IsLive(key photo.Key) bool
}

// Viewer is the pipeline's final stage: one dedicated goroutine pulling
// from preload and driving the Presenter.
type Viewer struct {
	preload   <-chan loader.Frame
	presenter present.Presenter
	live      LiveChecker
	results   chan<- playlist.LoadResult
	clock     func() time.Time

	fadeDuration time.Duration
	dwell        time.Duration

	displayed chan Displayed
}

// New constructs a Viewer. live may be nil, in which case staleness
// discarding is disabled (every preloaded frame is shown). results may be
// nil, in which case an unrecoverable Present failure is only logged, never
// fed back into the Manager's invalidation loop; cmd/frame always wires
// mgr.LoadResults() here, the same channel the Loader reports decode
// failures on, so a persistently unpresentable entry is invalidated exactly
// the way a persistently undecodable one is.
func New(preload <-chan loader.Frame, presenter present.Presenter, live LiveChecker, results chan<- playlist.LoadResult, fadeDuration, dwell time.Duration) *Viewer {
	return &Viewer{
		preload:      preload,
		presenter:    presenter,
		live:         live,
		results:      results,
		clock:        time.Now,
		fadeDuration: fadeDuration,
		dwell:        dwell,
		displayed:    make(chan Displayed, 16),
	}
}

// Displayed returns the stream of frames that actually reached the
// screen.
func (v *Viewer) Displayed() <-chan Displayed {
	return v.displayed
}

// Run shows a black placeholder immediately, then alternates between
// waiting for the next preloaded frame and presenting it with its dwell
// period, until ctx is cancelled.
func (v *Viewer) Run(ctx context.Context) error {
	defer close(v.displayed)

	w, h := v.presenter.Geometry()
	if err := v.presentWithRetry(ctx, photo.ScheduledEntry{}, decode.Placeholder(w, h)); err != nil && ctx.Err() != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case frame, ok := <-v.preload:
			if !ok {
				return nil
			}
			if v.live != nil && !v.live.IsLive(frame.Entry.Key) {
				log.Debugf("viewer: discarding stale preload for %s", frame.Entry.Key)
				continue
			}
			if err := v.presentWithRetry(ctx, frame.Entry, frame.Image); err != nil {
				continue
			}
			v.emitDisplayed(frame.Entry)
			if !v.waitDwell(ctx) {
				return nil
			}
		}
	}
}

func (v *Viewer) emitDisplayed(entry photo.ScheduledEntry) {
	select {
	case v.displayed <- Displayed{Entry: entry, At: v.clock()}:
	default:
		// diagnostics-only channel; never let a slow consumer stall the show
	}
}

// waitDwell blocks for the configured dwell period, returning false only
// if ctx was cancelled first.
func (v *Viewer) waitDwell(ctx context.Context) bool {
	timer := time.NewTimer(v.dwell)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// presentWithRetry retries a Transient Present failure with exponential
// backoff capped at maxBackoff, up to maxTransientAttempts; a DeviceLost or
// Fatal failure, or a Transient failure that exhausts its attempts, escalates
// to invalidating entry (per spec.md §4.4/§6's "DeviceLost/Fatal escalate to
// Invalidate of the current entry and continue") and is skipped. entry is
// the zero value for the startup placeholder, which carries no key to
// invalidate. It returns a non-nil error only when ctx was cancelled, the
// failure was not retryable, or the Transient retries were exhausted,
// signaling the caller to move on to the next frame.
func (v *Viewer) presentWithRetry(ctx context.Context, entry photo.ScheduledEntry, img image.Image) error {
	backoff := 50 * time.Millisecond

	for attempt := 1; ; attempt++ {
		err := v.presenter.Present(ctx, img, v.fadeDuration)
		if err == nil {
			return nil
		}

		perr, ok := err.(*present.Error)
		if !ok || perr.Kind != present.KindTransient {
			log.Printf("viewer: present failed, invalidating %s: %v", entry.Key, err)
			v.reportFailure(ctx, entry, err)
			return err
		}

		if attempt >= maxTransientAttempts {
			log.Printf("viewer: transient present error exhausted %d attempts, invalidating %s: %v", attempt, entry.Key, err)
			v.reportFailure(ctx, entry, err)
			return err
		}

		log.Printf("viewer: transient present error, retrying in %s: %v", backoff, err)
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// reportFailure feeds an unrecoverable Present failure back into the
// Manager's invalidation loop, the same path the Loader reports decode
// failures on. The startup placeholder has no key (entry is the zero
// value) and is never reported.
func (v *Viewer) reportFailure(ctx context.Context, entry photo.ScheduledEntry, err error) {
	if v.results == nil || entry.Key == "" {
		return
	}
	select {
	case v.results <- playlist.LoadResult{Entry: entry, Err: err}:
	case <-ctx.Done():
	}
}
