package screen

import (
	"image"

	"github.com/kbinani/screenshot"

	"stepcap/internal/model"
)

// SystemBackend captures real displays.
type SystemBackend struct{}

func (SystemBackend) Displays() ([]image.Rectangle, error) {
	n := screenshot.NumActiveDisplays()
	out := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, screenshot.GetDisplayBounds(i))
	}
	return out, nil
}

func (SystemBackend) Grab(bounds image.Rectangle) (image.Image, error) {
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (b SystemBackend) Primary() (model.ScreenContext, error) {
	return primaryScreen(b)
}

// primaryFromDisplays picks the display at the virtual-desktop origin, or
// the first one if none sits there.
func primaryFromDisplays(displays []image.Rectangle) (model.ScreenContext, error) {
	if len(displays) == 0 {
		return model.ScreenContext{}, ErrNoDisplay
	}
	d, ok := DisplayAt(displays, model.Point{})
	if !ok {
		d = displays[0]
	}
	return model.ScreenContext{Width: d.Dx(), Height: d.Dy()}, nil
}
