package screen

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepcap/internal/model"
)

type fakeBackend struct {
	mu       sync.Mutex
	displays []image.Rectangle
	grabbed  []image.Rectangle
	grabErr  error
	delay    time.Duration
}

func (f *fakeBackend) Displays() ([]image.Rectangle, error) {
	return f.displays, nil
}

func (f *fakeBackend) Grab(bounds image.Rectangle) (image.Image, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.grabbed = append(f.grabbed, bounds)
	f.mu.Unlock()
	if f.grabErr != nil {
		return nil, f.grabErr
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	return img, nil
}

func (f *fakeBackend) Primary() (model.ScreenContext, error) {
	return primaryFromDisplays(f.displays)
}

func dualDisplays() []image.Rectangle {
	return []image.Rectangle{
		image.Rect(-1280, 0, 0, 1024),
		image.Rect(0, 0, 1920, 1080),
	}
}

func TestDisplayAt(t *testing.T) {
	displays := dualDisplays()
	tests := []struct {
		p     model.Point
		want  int
		found bool
	}{
		{model.Point{X: 100, Y: 100}, 1, true},
		{model.Point{X: -1, Y: 0}, 0, true},
		{model.Point{X: 0, Y: 0}, 1, true},
		{model.Point{X: 1920, Y: 10}, 0, false},
		{model.Point{X: 10, Y: 1080}, 0, false},
	}
	for _, tc := range tests {
		d, ok := DisplayAt(displays, tc.p)
		assert.Equal(t, tc.found, ok, tc.p.String())
		if tc.found {
			assert.Equal(t, displays[tc.want], d)
		}
	}
}

func TestCaptureJPEG(t *testing.T) {
	b := &fakeBackend{displays: dualDisplays()}
	c := NewCapturer(b, DefaultOptions())

	data, err := c.Capture(model.Point{X: -100, Y: 50})
	require.NoError(t, err)
	require.Equal(t, []image.Rectangle{dualDisplays()[0]}, b.grabbed)

	raw, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(raw))
	assert.NoError(t, err)
}

func TestCapturePNG(t *testing.T) {
	b := &fakeBackend{displays: dualDisplays()}
	c := NewCapturer(b, Options{Enabled: true, Format: FormatPNG})

	data, err := c.Capture(model.Point{X: 5, Y: 5})
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	assert.NoError(t, err)
}

func TestCaptureErrors(t *testing.T) {
	b := &fakeBackend{displays: dualDisplays()}

	_, err := NewCapturer(b, DefaultOptions()).Capture(model.Point{X: 5000, Y: 5})
	assert.ErrorIs(t, err, ErrNoDisplay)
	assert.Empty(t, b.grabbed)

	_, err = NewCapturer(b, Options{}).Capture(model.Point{})
	assert.ErrorIs(t, err, ErrDisabled)

	boom := errors.New("access denied")
	b.grabErr = boom
	_, err = NewCapturer(b, DefaultOptions()).Capture(model.Point{})
	assert.ErrorIs(t, err, boom)
}

func TestCaptureTimeout(t *testing.T) {
	b := &fakeBackend{displays: dualDisplays(), delay: 200 * time.Millisecond}
	opts := DefaultOptions()
	opts.Timeout = 10 * time.Millisecond

	_, err := NewCapturer(b, opts).Capture(model.Point{})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestScreenContext(t *testing.T) {
	c := NewCapturer(&fakeBackend{displays: dualDisplays()}, DefaultOptions())
	assert.Equal(t, model.ScreenContext{Width: 1920, Height: 1080}, c.ScreenContext())

	c = NewCapturer(&fakeBackend{}, DefaultOptions())
	assert.Equal(t, model.ScreenContext{}, c.ScreenContext())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JPG")
	require.NoError(t, err)
	assert.Equal(t, FormatJPEG, f)

	f, err = ParseFormat("png")
	require.NoError(t, err)
	assert.Equal(t, FormatPNG, f)

	_, err = ParseFormat("gif")
	assert.Error(t, err)
}
