package debounce

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestClickInterval(t *testing.T) {
	g := New(t0, 0, 0)

	assert.False(t, g.ClickReady(at(50)), "exactly the interval is still debounced")
	assert.True(t, g.ClickReady(at(51)))

	g.MarkClick(at(100))
	assert.False(t, g.ClickReady(at(110)))
	assert.False(t, g.ClickReady(at(150)))
	assert.True(t, g.ClickReady(at(151)))
}

func TestKeyEdgeRisingOnly(t *testing.T) {
	g := New(t0, 0, 0)
	const tab = 0x09

	assert.True(t, g.KeyEdge(tab, true, at(200)))
	g.MarkKey(at(200))

	// Held for 500ms of ticks: never fires again.
	for ms := 210; ms <= 700; ms += 10 {
		assert.False(t, g.KeyEdge(tab, true, at(ms)), "held at %dms", ms)
	}

	assert.False(t, g.KeyEdge(tab, false, at(710)))
	assert.True(t, g.KeyEdge(tab, true, at(720)))
}

func TestKeyEdgeSharedTimer(t *testing.T) {
	g := New(t0, 0, 0)
	const tab, enter = 0x09, 0x0D

	assert.True(t, g.KeyEdge(tab, true, at(1000)))
	g.MarkKey(at(1000))

	assert.False(t, g.KeyEdge(enter, true, at(1100)), "second key within window")
	assert.True(t, g.Pressed(enter), "state is recorded even when suppressed")

	// Enter is still held so no late fire once the window passes.
	assert.False(t, g.KeyEdge(enter, true, at(1200)))

	assert.False(t, g.KeyEdge(enter, false, at(1210)))
	assert.True(t, g.KeyEdge(enter, true, at(1220)))
}

func TestKeyEdgeAtStartup(t *testing.T) {
	g := New(t0, 0, 0)
	assert.False(t, g.KeyEdge(0x20, true, at(100)), "keystroke timer starts at creation")
	assert.False(t, g.KeyReady(at(150)))
	assert.True(t, g.KeyReady(at(151)))
}

func TestCustomIntervals(t *testing.T) {
	g := New(t0, 10*time.Millisecond, 20*time.Millisecond)
	assert.True(t, g.ClickReady(at(11)))
	assert.False(t, g.KeyReady(at(20)))
	assert.True(t, g.KeyReady(at(21)))
	assert.Equal(t, t0, g.LastClick())
	assert.Equal(t, t0, g.LastKey())
}
