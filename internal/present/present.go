// Package present displays decoded photos full-screen with a cross-fade
// transition. It generalizes this corpus's fyne-based splash/about
// windows — a canvas.Image inside a container, shown via the desktop
// driver's window APIs and animated without blocking the main thread
// (fyne.Do) — into a permanent kiosk window with two stacked images
// cross-faded by a fyne.Animation instead of a one-shot GIF playback
// loop timed with time.Sleep in a goroutine.
package present

import (
	"context"
	"fmt"
	"image"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"

	"github.com/lumenframe/frame/pkg/sysinfo"
)

// ErrorKind classifies a Present failure for the Viewer's retry policy.
type ErrorKind int

const (
	// KindTransient covers a recoverable, likely-temporary failure (a
	// single refresh glitch); the Viewer retries with backoff.
	KindTransient ErrorKind = iota
	// KindDeviceLost means the GPU/window surface itself was lost and
	// must be recreated before presenting again.
	KindDeviceLost
	// KindFatal means presentation cannot continue at all.
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindDeviceLost:
		return "device-lost"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the error type every Presenter implementation returns on
// failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("present: %s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Presenter is the capability the Viewer depends on.
type Presenter interface {
	// Present cross-fades from whatever is currently shown to img over
	// fadeDuration and blocks until the transition completes or ctx is
	// cancelled.
	Present(ctx context.Context, img image.Image, fadeDuration time.Duration) error
	// Geometry returns the presentation surface's pixel dimensions, used
	// by the decoder to fit images to the exact display size.
	Geometry() (width, height int)
	// Close tears down the window.
	Close()
}

// FyneWindow is the production Presenter: a borderless, full-screen
// fyne.Window holding two stacked canvas.Image layers.
type FyneWindow struct {
	app fyne.App
	win fyne.Window

	top    *canvas.Image
	bottom *canvas.Image
	stack  *fyne.Container

	width, height int
}

// NewFyneWindow creates and shows the kiosk window, sized to the
// display's native geometry via pkg/sysinfo.
func NewFyneWindow(title string) (*FyneWindow, error) {
	w, h, err := sysinfo.GetScreenDimensions()
	if err != nil {
		return nil, &Error{Kind: KindFatal, Err: err}
	}
	return newWindow(app.New(), title, w, h), nil
}

// newWindow builds a FyneWindow on top of an already-constructed
// fyne.App, so tests can pass fyne.io/fyne/v2/test's headless app
// instead of a real desktop driver.
func newWindow(a fyne.App, title string, w, h int) *FyneWindow {
	win := a.NewWindow(title)
	win.SetFullScreen(true)
	win.SetPadded(false)

	bottom := canvas.NewImageFromImage(blankImage(w, h))
	bottom.FillMode = canvas.ImageFillStretch
	bottom.ScaleMode = canvas.ImageScaleFastest

	top := canvas.NewImageFromImage(blankImage(w, h))
	top.FillMode = canvas.ImageFillStretch
	top.ScaleMode = canvas.ImageScaleFastest
	top.Translucency = 1 // fully transparent: nothing to fade from at startup

	stack := container.NewStack(bottom, top)
	win.SetContent(stack)
	win.Show()

	return &FyneWindow{app: a, win: win, top: top, bottom: bottom, stack: stack, width: w, height: h}
}

// Geometry returns the window's pixel dimensions.
func (f *FyneWindow) Geometry() (int, int) {
	return f.width, f.height
}

// Present cross-fades the bottom layer (currently visible) up to img by
// fading the top layer's image (img) in from fully transparent to fully
// opaque, then copying img into the bottom layer and making the top layer
// transparent again, so every call fades in on the top layer.
func (f *FyneWindow) Present(ctx context.Context, img image.Image, fadeDuration time.Duration) error {
	done := make(chan struct{})

	fyne.Do(func() {
		f.top.Image = img
		f.top.Translucency = 1
		f.top.Refresh()
	})

	anim := fyne.NewAnimation(fadeDuration, func(fraction float32) {
		f.top.Translucency = 1 - fraction
		f.top.Refresh()
	})
	anim.Curve = fyne.AnimationEaseInOut

	fyne.Do(func() {
		anim.Start()
	})

	go func() {
		time.Sleep(fadeDuration)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return &Error{Kind: KindTransient, Err: ctx.Err()}
	}

	fyne.Do(func() {
		f.bottom.Image = img
		f.bottom.Refresh()
		f.top.Translucency = 1
		f.top.Refresh()
	})
	return nil
}

// Close tears down the window and its app instance.
func (f *FyneWindow) Close() {
	fyne.Do(func() {
		f.win.Close()
	})
}

// RunMainLoop blocks on the fyne application's event loop. fyne requires
// this to run on the process's main goroutine, so cmd/frame calls it
// last, after every pipeline stage has been started in the background.
func (f *FyneWindow) RunMainLoop() {
	f.app.Run()
}

// Quit stops the fyne event loop, returning control to whatever called
// RunMainLoop.
func (f *FyneWindow) Quit() {
	f.app.Quit()
}

func blankImage(w, h int) image.Image {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}
