// Package screen captures still images of the display under a point.
package screen

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"time"

	"stepcap/internal/model"
)

var (
	// ErrNoDisplay is returned when no active display contains the point.
	ErrNoDisplay = errors.New("screen: no display contains point")

	// ErrDisabled is returned when screenshots are turned off.
	ErrDisabled = errors.New("screen: capture disabled")

	// ErrTimeout is returned when a bounded capture misses its deadline.
	ErrTimeout = errors.New("screen: capture timed out")
)

// Format is the image encoding used for screenshots.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// ParseFormat accepts "jpeg", "jpg" and "png".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	}
	return "", fmt.Errorf("screen: unknown format %q", s)
}

// DefaultJPEGQuality matches what the guide renderer expects.
const DefaultJPEGQuality = 85

// Backend is the display capture capability.
type Backend interface {
	// Displays returns the bounds of every active display.
	Displays() ([]image.Rectangle, error)

	// Grab captures the pixels inside bounds.
	Grab(bounds image.Rectangle) (image.Image, error)

	// Primary returns the size of the primary display.
	Primary() (model.ScreenContext, error)
}

// Options configures a Capturer.
type Options struct {
	Enabled bool
	Format  Format
	Quality int

	// Timeout bounds a single capture. Zero means unbounded.
	Timeout time.Duration
}

// DefaultOptions returns JPEG at quality 85 with no timeout.
func DefaultOptions() Options {
	return Options{
		Enabled: true,
		Format:  FormatJPEG,
		Quality: DefaultJPEGQuality,
	}
}

// Capturer produces base64-encoded screenshots of whole displays.
type Capturer struct {
	backend Backend
	opts    Options
}

// NewCapturer wraps a backend. Zero-valued options fall back to defaults.
func NewCapturer(b Backend, opts Options) *Capturer {
	if opts.Format == "" {
		opts.Format = FormatJPEG
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultJPEGQuality
	}
	return &Capturer{backend: b, opts: opts}
}

// Capture encodes the display containing p.
func (c *Capturer) Capture(p model.Point) (string, error) {
	if !c.opts.Enabled {
		return "", ErrDisabled
	}
	if c.opts.Timeout <= 0 {
		return c.capture(p)
	}

	type result struct {
		data string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := c.capture(p)
		done <- result{data, err}
	}()

	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()
	select {
	case r := <-done:
		return r.data, r.err
	case <-timer.C:
		return "", fmt.Errorf("%w after %s", ErrTimeout, c.opts.Timeout)
	}
}

func (c *Capturer) capture(p model.Point) (string, error) {
	displays, err := c.backend.Displays()
	if err != nil {
		return "", fmt.Errorf("screen: enumerate displays: %w", err)
	}
	bounds, ok := DisplayAt(displays, p)
	if !ok {
		return "", fmt.Errorf("%w %s", ErrNoDisplay, p)
	}
	img, err := c.backend.Grab(bounds)
	if err != nil {
		return "", fmt.Errorf("screen: grab %v: %w", bounds, err)
	}
	return Encode(img, c.opts.Format, c.opts.Quality)
}

// ScreenContext returns the primary display size, zero if unknown.
func (c *Capturer) ScreenContext() model.ScreenContext {
	sc, err := c.backend.Primary()
	if err != nil {
		return model.ScreenContext{}
	}
	return sc
}

// DisplayAt returns the first display whose half-open bounds contain p.
func DisplayAt(displays []image.Rectangle, p model.Point) (image.Rectangle, bool) {
	pt := image.Pt(p.X, p.Y)
	for _, d := range displays {
		if pt.In(d) {
			return d, true
		}
	}
	return image.Rectangle{}, false
}

// Encode writes img in the given format and returns it base64 encoded.
func Encode(img image.Image, format Format, quality int) (string, error) {
	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		if err := png.Encode(&buf, img); err != nil {
			return "", fmt.Errorf("screen: encode png: %w", err)
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", fmt.Errorf("screen: encode jpeg: %w", err)
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
