// Package capture runs the sampling loop that turns raw pointer and
// keyboard state into interaction records.
//
// One Tracker is owned by one goroutine. Each Tick reads the cursor once,
// then runs the click, manual capture and keystroke pipelines in that
// order. No pipeline failure leaves the tick.
package capture

import (
	"errors"
	"log/slog"
	"time"

	"stepcap/internal/debounce"
	"stepcap/internal/element"
	"stepcap/internal/input"
	"stepcap/internal/metrics"
	"stepcap/internal/model"
	"stepcap/internal/screen"
	"stepcap/internal/tracking"
	"stepcap/internal/uia"
	"stepcap/internal/window"
)

// Screenshotter captures the display containing a point.
type Screenshotter interface {
	Capture(p model.Point) (string, error)
	ScreenContext() model.ScreenContext
}

// Emitter publishes finished records.
type Emitter interface {
	EmitInteraction(rec model.InteractionRecord) error
}

// Options are the tracker timings and key bindings.
type Options struct {
	ClickInterval     time.Duration
	KeystrokeInterval time.Duration
	Settle            time.Duration
	Hotkey            input.Hotkey
	Keys              []input.VirtualKey
	SelfIdentifiers   []string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		ClickInterval:     debounce.DefaultClickInterval,
		KeystrokeInterval: debounce.DefaultKeystrokeInterval,
		Settle:            50 * time.Millisecond,
		Hotkey:            input.DefaultHotkey,
		Keys:              input.DefaultMonitoredKeys(),
		SelfIdentifiers:   window.DefaultSelfIdentifiers,
	}
}

// Deps are the collaborators shared by the tracker and the rest of the
// daemon. Screen, Metrics, Logger and Clock may be nil.
type Deps struct {
	Input   input.Source
	Screen  Screenshotter
	Emitter Emitter
	Machine *tracking.Machine
	Metrics *metrics.Capture
	Logger  *slog.Logger
	Clock   Clock

	// ProcessStart anchors record timestamps. Zero uses the clock's
	// reading when the tracker is created.
	ProcessStart time.Time
}

// Tracker holds the per-tick pipelines and their debounce state.
type Tracker struct {
	src      input.Source
	shots    Screenshotter
	out      Emitter
	machine  *tracking.Machine
	m        *metrics.Capture
	log      *slog.Logger
	clock    Clock
	windows  *window.Classifier
	resolver *element.Resolver
	gate     *debounce.Gate

	hotkey input.Hotkey
	keys   []input.VirtualKey
	settle time.Duration
	start  time.Time
	cursor model.Point
}

// NewTracker wires a tracker to an open accessibility gateway.
func NewTracker(gw uia.Gateway, opts Options, deps Deps) *Tracker {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCapture(nil)
	}
	if deps.Machine == nil {
		deps.Machine = tracking.NewMachine(nil)
	}
	if len(opts.Keys) == 0 {
		opts.Keys = input.DefaultMonitoredKeys()
	}
	if opts.Hotkey.Key == 0 {
		opts.Hotkey = input.DefaultHotkey
	}

	now := deps.Clock.Now()
	start := deps.ProcessStart
	if start.IsZero() {
		start = now
	}

	var screenCtx element.ScreenContextFunc
	if deps.Screen != nil {
		screenCtx = deps.Screen.ScreenContext
	}
	windows := window.NewClassifier(gw, opts.SelfIdentifiers)

	return &Tracker{
		src:      deps.Input,
		shots:    deps.Screen,
		out:      deps.Emitter,
		machine:  deps.Machine,
		m:        deps.Metrics,
		log:      deps.Logger,
		clock:    deps.Clock,
		windows:  windows,
		resolver: element.NewResolver(gw, windows, screenCtx),
		gate:     debounce.New(now, opts.ClickInterval, opts.KeystrokeInterval),
		hotkey:   opts.Hotkey,
		keys:     append([]input.VirtualKey(nil), opts.Keys...),
		settle:   opts.Settle,
		start:    start,
	}
}

// SetSelfIdentifiers replaces the self-exclusion list. Safe to call from
// any goroutine.
func (t *Tracker) SetSelfIdentifiers(ids []string) {
	t.windows.SetSelfIdentifiers(ids)
}

// SelfIdentifiers returns the normalized self-exclusion list.
func (t *Tracker) SelfIdentifiers() []string {
	return t.windows.SelfIdentifiers()
}

// Tick samples input once. It does nothing unless tracking is running.
func (t *Tracker) Tick() {
	if !t.machine.IsRunning() {
		return
	}
	began := time.Now()
	defer t.m.TickDuration.Since(began)
	t.m.Ticks.Inc()

	p, err := t.src.CursorPos()
	cursorOK := err == nil
	if cursorOK {
		t.cursor = p
	} else {
		t.log.Debug("cursor position unavailable", "error", err)
	}

	if cursorOK {
		if t.src.KeyDown(input.VKLButton) {
			t.click(p, false)
		}
		if t.src.KeyDown(input.VKRButton) {
			t.click(p, true)
		}
	}
	if t.hotkey.Held(t.src) {
		t.manual()
	}
	for _, vk := range t.keys {
		t.keystroke(vk)
	}
}

func (t *Tracker) click(p model.Point, right bool) {
	now := t.clock.Now()
	if !t.gate.ClickReady(now) {
		t.m.ClicksDebounced.Inc()
		return
	}
	t.m.ClicksAccepted.Inc()

	// The image must show the screen as it was when the button went down.
	shot := t.screenshot(p)

	rec, err := t.resolver.Resolve(p)
	if err != nil {
		t.m.ResolveFailures.Inc()
		t.log.Debug("click not resolved", "point", p, "error", err)
		t.gate.MarkClick(now)
		return
	}
	if t.windows.IsSelf(rec.WindowTitle) {
		t.m.SelfExcluded.Inc()
		t.log.Debug("click on own window skipped", "window", rec.WindowTitle)
		return
	}

	rec.ActionCategory = model.CategoryClick
	rec.ActionType = model.ActionClick
	if right {
		rec.ActionType = model.ActionRightClick
	}
	rec.SetScreenshot(shot)
	rec.Stamp(now, t.start)

	if t.settle > 0 {
		t.clock.Sleep(t.settle)
	}
	t.emit(rec)
	t.gate.MarkClick(now)
}

func (t *Tracker) keystroke(vk input.VirtualKey) {
	now := t.clock.Now()
	down := t.src.KeyDown(vk)
	rising := down && !t.gate.Pressed(uint32(vk))
	if !t.gate.KeyEdge(uint32(vk), down, now) {
		if rising {
			t.m.KeystrokesDebounced.Inc()
		}
		return
	}
	action, ok := input.ActionName(vk)
	if !ok {
		return
	}
	t.m.KeystrokesAccepted.Inc()

	p, ok := t.resolver.FocusedPoint()
	if !ok {
		p = t.cursor
	}
	shot := t.screenshot(p)

	rec, err := t.resolver.Resolve(p)
	if err != nil {
		t.m.ResolveFailures.Inc()
		t.log.Debug("keystroke not resolved", "key", action, "point", p, "error", err)
		t.gate.MarkKey(now)
		return
	}
	if t.windows.IsSelf(rec.WindowTitle) {
		t.m.SelfExcluded.Inc()
		t.log.Debug("keystroke in own window skipped", "key", action, "window", rec.WindowTitle)
		return
	}

	rec.ActionCategory = model.CategoryKeystroke
	rec.ActionType = action
	rec.SetScreenshot(shot)
	rec.Stamp(now, t.start)

	t.emit(rec)
	t.gate.MarkKey(now)
}

// manual shares the keystroke timer so it cannot outpace key presses.
func (t *Tracker) manual() {
	now := t.clock.Now()
	if !t.gate.KeyReady(now) {
		return
	}
	t.m.ManualCaptures.Inc()

	rec := model.InteractionRecord{
		Name:           model.ManualName,
		ControlType:    model.ManualControlType,
		WindowTitle:    model.ManualWindowTitle,
		ActionType:     model.ActionCapture,
		ActionCategory: model.CategoryManual,
	}
	if t.shots != nil {
		rec.ScreenContext = t.shots.ScreenContext()
	}
	rec.SetScreenshot(t.screenshot(model.Point{}))
	rec.Stamp(now, t.start)

	t.emit(rec)
	t.gate.MarkKey(now)
}

func (t *Tracker) screenshot(p model.Point) string {
	if t.shots == nil {
		return ""
	}
	began := time.Now()
	data, err := t.shots.Capture(p)
	t.m.ScreenshotDuration.Since(began)
	if err != nil {
		if !errors.Is(err, screen.ErrDisabled) {
			t.m.CaptureFailures.Inc()
			t.log.Warn("screenshot failed", "point", p, "error", err)
		}
		return ""
	}
	return data
}

func (t *Tracker) emit(rec model.InteractionRecord) {
	rec.SessionID = t.machine.SessionID()
	if t.out == nil {
		return
	}
	if err := t.out.EmitInteraction(rec); err != nil {
		t.m.EmitFailures.Inc()
		t.log.Warn("emit failed", "action", rec.ActionType, "error", err)
		return
	}
	t.m.Emitted.Inc()
	t.machine.RecordEmitted()
	t.log.Debug("interaction emitted",
		"category", rec.ActionCategory,
		"action", rec.ActionType,
		"control", rec.ControlType,
		"window", rec.WindowTitle,
	)
}
