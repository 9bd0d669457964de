package metrics

import "time"

// Capture holds the sampling loop metrics.
type Capture struct {
	registry *Registry
	started  time.Time

	Ticks               *Counter
	ClicksAccepted      *Counter
	ClicksDebounced     *Counter
	KeystrokesAccepted  *Counter
	KeystrokesDebounced *Counter
	ManualCaptures      *Counter
	SelfExcluded        *Counter
	ResolveFailures     *Counter
	CaptureFailures     *Counter
	Emitted             *Counter
	EmitFailures        *Counter
	Panics              *Counter

	Subscribers   *Gauge
	UptimeSeconds *Gauge

	TickDuration       *Histogram
	ScreenshotDuration *Histogram
}

// NewCapture registers the sampling loop metrics on registry. A nil
// registry gets a fresh "stepcap" registry.
func NewCapture(registry *Registry) *Capture {
	if registry == nil {
		registry = NewRegistry("stepcap")
	}
	return &Capture{
		registry: registry,
		started:  time.Now(),

		Ticks:               registry.Counter("ticks_total", "Sampling ticks executed while running"),
		ClicksAccepted:      registry.Counter("clicks_accepted_total", "Clicks that passed the debounce gate"),
		ClicksDebounced:     registry.Counter("clicks_debounced_total", "Click samples suppressed by the debounce gate"),
		KeystrokesAccepted:  registry.Counter("keystrokes_accepted_total", "Key presses that passed the debounce gate"),
		KeystrokesDebounced: registry.Counter("keystrokes_debounced_total", "Key presses suppressed by the debounce gate"),
		ManualCaptures:      registry.Counter("manual_captures_total", "Manual screenshot hotkey captures"),
		SelfExcluded:        registry.Counter("self_excluded_total", "Events suppressed because they targeted stepcap itself"),
		ResolveFailures:     registry.Counter("resolve_failures_total", "Element resolutions that found no element"),
		CaptureFailures:     registry.Counter("capture_failures_total", "Screenshots that could not be captured"),
		Emitted:             registry.Counter("emitted_total", "Interaction records published"),
		EmitFailures:        registry.Counter("emit_failures_total", "Interaction records that failed to publish"),
		Panics:              registry.Counter("panics_total", "Panics recovered inside a tick"),

		Subscribers:   registry.Gauge("ipc_subscribers", "Connected event subscribers"),
		UptimeSeconds: registry.Gauge("uptime_seconds", "Seconds since the metrics were created"),

		TickDuration:       registry.Histogram("tick_duration_ms", "Time spent inside one sampling tick", nil),
		ScreenshotDuration: registry.Histogram("screenshot_duration_ms", "Time spent capturing and encoding one screenshot", nil),
	}
}

// Registry returns the backing registry.
func (m *Capture) Registry() *Registry { return m.registry }

// Snapshot refreshes the uptime gauge and returns the registry snapshot.
func (m *Capture) Snapshot() map[string]float64 {
	m.UptimeSeconds.Set(int64(time.Since(m.started).Seconds()))
	return m.registry.Snapshot()
}
