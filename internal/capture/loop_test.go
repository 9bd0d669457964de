package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepcap/internal/emitter"
	"stepcap/internal/input"
	"stepcap/internal/logging"
	"stepcap/internal/metrics"
	"stepcap/internal/model"
	"stepcap/internal/tracking"
	"stepcap/internal/uia"
)

type loopFixture struct {
	tree    *uia.FakeTree
	keys    *input.Script
	bus     *emitter.Bus
	machine *tracking.Machine
	m       *metrics.Capture
	loop    *Loop
}

func newLoopFixture(t *testing.T, out Emitter) *loopFixture {
	t.Helper()
	f := &loopFixture{
		tree: uia.NewFakeTree(),
		keys: input.NewScript(),
		bus:  emitter.New(quiet),
		m:    metrics.NewCapture(nil),
	}
	f.machine = tracking.NewMachine(f.bus)
	if out == nil {
		out = f.bus
	}
	opts := DefaultOptions()
	opts.Settle = 0
	deps := Deps{
		Input:   f.keys,
		Emitter: out,
		Machine: f.machine,
		Metrics: f.m,
		Logger:  quiet,
	}
	open := func() (uia.Gateway, error) { return f.tree, nil }
	f.loop = NewLoop(open, time.Millisecond, opts, deps, logging.NewCrashHandler(quiet, "", "test"))
	return f
}

func (f *loopFixture) run(t *testing.T) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()
	require.Eventually(t, func() bool { return f.loop.Tracker() != nil }, time.Second, time.Millisecond)
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not stop")
		}
	}
}

func TestLoopOpenFailure(t *testing.T) {
	open := func() (uia.Gateway, error) { return nil, uia.ErrNotAvailable }
	l := NewLoop(open, 0, DefaultOptions(), Deps{Logger: quiet}, nil)

	err := l.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, uia.ErrNotAvailable)
	assert.False(t, l.Running())
	assert.Nil(t, l.Tracker())
}

func TestLoopEmitsAndShutsDown(t *testing.T) {
	f := newLoopFixture(t, nil)
	events, unsub := f.bus.Subscribe(64)
	defer unsub()

	stop := f.run(t)
	assert.True(t, f.loop.Running())

	err := f.loop.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	ok := uia.NewFakeNode(uia.ControlButton, "OK")
	uia.NewFakeNode(uia.ControlWindow, "Dialog").Add(ok)
	f.tree.PlaceDefault(ok)

	// Nothing is sampled until tracking starts.
	f.keys.Press(input.VKLButton)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, f.m.Ticks.Value())
	f.keys.Release(input.VKLButton)

	_, err = f.machine.Start()
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	f.keys.Press(input.VKLButton)

	var rec *model.InteractionRecord
	deadline := time.After(2 * time.Second)
	for rec == nil {
		select {
		case ev := <-events:
			if ev.Name == emitter.EventInteraction {
				rec = ev.Record
			}
		case <-deadline:
			t.Fatal("no interaction emitted")
		}
	}
	f.keys.Release(input.VKLButton)
	assert.Equal(t, "OK", rec.Name)
	assert.Equal(t, model.ActionClick, rec.ActionType)
	assert.Equal(t, f.machine.SessionID(), rec.SessionID)

	stop()
	assert.False(t, f.loop.Running())
	assert.Nil(t, f.loop.Tracker())
	assert.True(t, f.tree.Closed())
}

type panickingEmitter struct{}

func (panickingEmitter) EmitInteraction(model.InteractionRecord) error {
	panic(errors.New("listener exploded"))
}

func TestLoopSurvivesPanics(t *testing.T) {
	f := newLoopFixture(t, panickingEmitter{})
	f.tree.PlaceDefault(uia.NewFakeNode(uia.ControlButton, "Boom"))
	_, err := f.machine.Start()
	require.NoError(t, err)

	stop := f.run(t)
	defer stop()
	time.Sleep(60 * time.Millisecond)
	f.keys.Press(input.VKLButton)

	assert.Eventually(t, func() bool { return f.m.Panics.Value() >= 2 }, 2*time.Second, time.Millisecond)
	assert.True(t, f.loop.Running())
}

func TestLoopSelfIdentifiers(t *testing.T) {
	f := newLoopFixture(t, nil)
	f.loop.SetSelfIdentifiers([]string{"Recorder"})

	stop := f.run(t)
	defer stop()
	assert.Equal(t, []string{"recorder"}, f.loop.Tracker().SelfIdentifiers())

	f.loop.SetSelfIdentifiers([]string{"Recorder", "Studio"})
	assert.Equal(t, []string{"recorder", "studio"}, f.loop.Tracker().SelfIdentifiers())
}

func TestLoopDefaultSelfIdentifiers(t *testing.T) {
	f := newLoopFixture(t, nil)
	stop := f.run(t)
	defer stop()
	assert.Equal(t, []string{"matapass"}, f.loop.Tracker().SelfIdentifiers())
}
