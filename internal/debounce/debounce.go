// Package debounce suppresses duplicate click and keystroke signals.
//
// A Gate is owned by the sampling goroutine and is not safe for concurrent
// use.
package debounce

import "time"

const (
	DefaultClickInterval     = 50 * time.Millisecond
	DefaultKeystrokeInterval = 150 * time.Millisecond
)

// Gate tracks the last accepted click and keystroke plus the last observed
// state of every key it has been asked about.
type Gate struct {
	clickInterval time.Duration
	keyInterval   time.Duration

	lastClick time.Time
	lastKey   time.Time
	pressed   map[uint32]bool
}

// New creates a gate whose timers start at start, so nothing fires during
// the first interval after creation.
func New(start time.Time, clickInterval, keyInterval time.Duration) *Gate {
	if clickInterval <= 0 {
		clickInterval = DefaultClickInterval
	}
	if keyInterval <= 0 {
		keyInterval = DefaultKeystrokeInterval
	}
	return &Gate{
		clickInterval: clickInterval,
		keyInterval:   keyInterval,
		lastClick:     start,
		lastKey:       start,
		pressed:       make(map[uint32]bool),
	}
}

// ClickReady reports whether more than the click interval has passed since
// the last accepted click.
func (g *Gate) ClickReady(now time.Time) bool {
	return now.Sub(g.lastClick) > g.clickInterval
}

// MarkClick records an accepted click.
func (g *Gate) MarkClick(at time.Time) {
	g.lastClick = at
}

// KeyReady reports whether more than the keystroke interval has passed
// since the last accepted keystroke. The timer is shared by every key and
// the manual capture hotkey.
func (g *Gate) KeyReady(now time.Time) bool {
	return now.Sub(g.lastKey) > g.keyInterval
}

// MarkKey records an accepted keystroke.
func (g *Gate) MarkKey(at time.Time) {
	g.lastKey = at
}

// KeyEdge records the current state of key and reports whether this sample
// is a rising edge that the shared keystroke timer allows. The state is
// recorded whether or not the edge fires, so a key held through the
// debounce window never fires late.
func (g *Gate) KeyEdge(key uint32, down bool, now time.Time) bool {
	was := g.pressed[key]
	g.pressed[key] = down
	return down && !was && g.KeyReady(now)
}

// Pressed returns the last recorded state of key.
func (g *Gate) Pressed(key uint32) bool {
	return g.pressed[key]
}

// LastClick and LastKey expose the timers for diagnostics.
func (g *Gate) LastClick() time.Time { return g.lastClick }
func (g *Gate) LastKey() time.Time   { return g.lastKey }
