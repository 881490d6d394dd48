package present

import (
	"context"
	"image"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWindow(t *testing.T) *FyneWindow {
	t.Helper()
	return newWindow(test.NewApp(), "test", 80, 60)
}

func TestErrorKind_String(t *testing.T) {
	cases := map[ErrorKind]string{
		KindTransient:  "transient",
		KindDeviceLost: "device-lost",
		KindFatal:      "fatal",
		ErrorKind(99):  "unknown",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}

func TestFyneWindow_Geometry(t *testing.T) {
	w := newTestWindow(t)
	width, height := w.Geometry()
	assert.Equal(t, 80, width)
	assert.Equal(t, 60, height)
}

func TestFyneWindow_Present_SwapsBottomLayerAfterFade(t *testing.T) {
	w := newTestWindow(t)
	img := image.NewRGBA(image.Rect(0, 0, 80, 60))

	err := w.Present(context.Background(), img, 5*time.Millisecond)
	require.NoError(t, err)

	assert.Same(t, img, w.bottom.Image)
	assert.Equal(t, float32(1), w.top.Translucency)
}

func TestFyneWindow_Present_ReturnsTransientErrorOnCancelledContext(t *testing.T) {
	w := newTestWindow(t)
	img := image.NewRGBA(image.Rect(0, 0, 80, 60))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Present(ctx, img, time.Second)
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindTransient, perr.Kind)
}

func TestBlankImage_HasRequestedSize(t *testing.T) {
	img := blankImage(12, 9)
	assert.Equal(t, 12, img.Bounds().Dx())
	assert.Equal(t, 9, img.Bounds().Dy())
}
