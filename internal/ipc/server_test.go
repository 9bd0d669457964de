//go:build !windows

package ipc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepcap/internal/emitter"
	"stepcap/internal/health"
	"stepcap/internal/metrics"
	"stepcap/internal/model"
	"stepcap/internal/tracking"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type daemon struct {
	server  *Server
	machine *tracking.Machine
	bus     *emitter.Bus
	metrics *metrics.Capture
	path    string
}

// socketPath stays short; sun_path is about 100 bytes.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "scap")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "d.sock")
}

func startDaemon(t *testing.T, mutate func(*ServerConfig)) *daemon {
	t.Helper()
	d := &daemon{
		bus:     emitter.New(quiet),
		metrics: metrics.NewCapture(nil),
		path:    socketPath(t),
	}
	d.machine = tracking.NewMachine(d.bus)
	h := NewDaemonHandler(DaemonHandlerConfig{
		Version: "test",
		Machine: d.machine,
		Metrics: d.metrics,
		Logger:  quiet,
	})
	cfg := ServerConfig{
		SocketPath:       d.path,
		Version:          "test",
		Logger:           quiet,
		OnClientsChanged: func(n int) { d.metrics.Subscribers.Set(int64(n)) },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	d.server = NewServer(cfg, h)
	h.SetClientCounter(d.server.ClientCount)
	require.NoError(t, d.server.Start())
	d.bus.AddSink(d.server)
	t.Cleanup(func() { d.server.Stop() })
	return d
}

func connect(t *testing.T, d *daemon) *IPCClient {
	t.Helper()
	c := NewClient(ClientConfig{SocketPath: d.path, RequestTimeout: 2 * time.Second})
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func clickRecord() model.InteractionRecord {
	rec := model.InteractionRecord{
		Name:           "OK",
		ControlType:    "Button",
		WindowTitle:    "Dialog",
		ActionType:     model.ActionClick,
		ActionCategory: model.CategoryClick,
	}
	rec.SetPosition(model.Point{X: 100, Y: 200})
	return rec
}

func nextEvent(t *testing.T, ch <-chan emitter.Event) emitter.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}
	return emitter.Event{}
}

func TestHandshakeAndPing(t *testing.T) {
	d := startDaemon(t, nil)
	c := connect(t, d)

	assert.True(t, c.IsConnected())
	assert.NotEmpty(t, c.ClientID())
	assert.Equal(t, "test", c.ServerVersion())
	require.NoError(t, c.Ping())
	assert.Eventually(t, func() bool { return d.metrics.Subscribers.Value() == 1 }, time.Second, 5*time.Millisecond)

	info, err := os.Stat(d.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestTrackingCommands(t *testing.T) {
	d := startDaemon(t, nil)
	c := connect(t, d)

	resp, err := c.Start()
	require.NoError(t, err)
	assert.Equal(t, tracking.Running, resp.State)
	assert.Equal(t, d.machine.SessionID(), resp.SessionID)
	assert.NotEmpty(t, resp.SessionID)

	_, err = c.Start()
	var remote *ErrorResponse
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, CodeInvalidTransition, remote.Code)

	resp, err = c.TogglePause()
	require.NoError(t, err)
	assert.True(t, resp.Paused)
	assert.Equal(t, tracking.Paused, d.machine.State())

	resp, err = c.TogglePause()
	require.NoError(t, err)
	assert.False(t, resp.Paused)

	resp, err = c.Stop()
	require.NoError(t, err)
	assert.Equal(t, tracking.Stopped, resp.State)

	resp, err = c.TrackingStatus()
	require.NoError(t, err)
	assert.Equal(t, tracking.Stopped, resp.State)

	_, err = c.Stop()
	assert.True(t, errors.As(err, &remote))
}

func TestStatusAndMetrics(t *testing.T) {
	d := startDaemon(t, nil)
	c := connect(t, d)
	d.metrics.Ticks.Add(3)

	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, tracking.Stopped, st.Tracking.State)
	assert.Equal(t, 1, st.Clients)
	assert.Equal(t, float64(3), st.Counters["stepcap_ticks_total"])

	text, err := c.Metrics()
	require.NoError(t, err)
	assert.Contains(t, text, "stepcap_ticks_total 3")
}

func TestMetricsDisabled(t *testing.T) {
	path := socketPath(t)
	s := NewServer(ServerConfig{SocketPath: path, Logger: quiet}, NewDaemonHandler(DaemonHandlerConfig{Logger: quiet}))
	require.NoError(t, s.Start())
	defer s.Stop()

	c := NewClient(ClientConfig{SocketPath: path})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	_, err := c.Metrics()
	var remote *ErrorResponse
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, CodeUnsupported, remote.Code)

	_, err = c.Health()
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, CodeUnsupported, remote.Code)
}

func TestHealth(t *testing.T) {
	checker := health.NewChecker()
	checker.RegisterFunc("sampling", true, func(context.Context) health.CheckResult {
		return health.Healthy("loop running")
	})
	checker.RegisterFunc("config_watch", false, func(context.Context) health.CheckResult {
		return health.Unhealthy("not watching", errors.New("inotify limit"))
	})
	checker.SetReady(true)

	path := socketPath(t)
	h := NewDaemonHandler(DaemonHandlerConfig{Health: checker, Logger: quiet})
	s := NewServer(ServerConfig{SocketPath: path, Logger: quiet}, h)
	require.NoError(t, s.Start())
	defer s.Stop()

	c := NewClient(ClientConfig{SocketPath: path})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	report, err := c.Health()
	require.NoError(t, err)
	assert.Equal(t, health.StatusDegraded, report.Status)
	assert.True(t, report.Ready)
	assert.Equal(t, []string{"config_watch", "sampling"}, report.Names())
	assert.Equal(t, "inotify limit", report.Components["config_watch"].Error)
}

func TestEventStream(t *testing.T) {
	d := startDaemon(t, nil)
	c := connect(t, d)

	sub, err := c.Subscribe()
	require.NoError(t, err)
	assert.Equal(t, AllEvents, sub.Events)

	_, err = d.machine.Start()
	require.NoError(t, err)
	ev := nextEvent(t, c.Events())
	assert.Equal(t, emitter.EventRecordingMode, ev.Name)
	assert.True(t, ev.Value)

	require.NoError(t, d.bus.EmitInteraction(clickRecord()))
	ev = nextEvent(t, c.Events())
	assert.Equal(t, emitter.EventInteraction, ev.Name)
	require.NotNil(t, ev.Record)
	assert.Equal(t, "OK", ev.Record.Name)
	pos, ok := ev.Record.Position()
	require.True(t, ok)
	assert.Equal(t, model.Point{X: 100, Y: 200}, pos)
}

func TestFilteredSubscription(t *testing.T) {
	d := startDaemon(t, nil)
	c := connect(t, d)

	_, err := c.Subscribe(emitter.EventRecordingPaused)
	require.NoError(t, err)

	_, err = d.machine.Start()
	require.NoError(t, err)
	require.NoError(t, d.bus.EmitInteraction(clickRecord()))
	d.machine.TogglePause()

	ev := nextEvent(t, c.Events())
	assert.Equal(t, emitter.EventRecordingPaused, ev.Name)
	assert.True(t, ev.Value)

	_, err = c.Subscribe("scroll")
	var remote *ErrorResponse
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, CodeInvalidRequest, remote.Code)
}

func TestUnsubscribe(t *testing.T) {
	d := startDaemon(t, nil)
	c := connect(t, d)

	_, err := c.Subscribe()
	require.NoError(t, err)
	require.NoError(t, c.Unsubscribe())

	require.NoError(t, d.bus.EmitInteraction(clickRecord()))
	require.NoError(t, c.Ping())
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %s", ev.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishDropsOnFullQueue(t *testing.T) {
	s := NewServer(ServerConfig{SocketPath: "unused", Logger: quiet}, nil)
	s.running.Store(true)
	slow := &Client{ID: "slow", queue: make(chan *Message, 1), subscribed: true}
	idle := &Client{ID: "idle", queue: make(chan *Message, 1)}
	s.clients[slow.ID] = slow
	s.clients[idle.ID] = idle

	for i := range 3 {
		require.NoError(t, s.Publish(emitter.Event{Name: emitter.EventRecordingMode, Seq: uint64(i + 1)}))
	}
	assert.Len(t, slow.queue, 1)
	assert.Equal(t, uint64(2), slow.Dropped())
	assert.Empty(t, idle.queue, "unsubscribed clients get nothing")
	assert.Equal(t, uint64(2), s.Dropped())
}

func TestPublishBeforeStart(t *testing.T) {
	s := NewServer(ServerConfig{SocketPath: "unused", Logger: quiet}, nil)
	assert.NoError(t, s.Publish(emitter.Event{Name: emitter.EventInteraction}))
}

func TestClientLimit(t *testing.T) {
	d := startDaemon(t, func(cfg *ServerConfig) { cfg.MaxClients = 1 })
	connect(t, d)

	c := NewClient(ClientConfig{SocketPath: d.path, RequestTimeout: time.Second})
	assert.Error(t, c.Connect(context.Background()))
	assert.False(t, c.IsConnected())
}

func TestSecondServerRefused(t *testing.T) {
	d := startDaemon(t, nil)
	other := NewServer(ServerConfig{SocketPath: d.path, Logger: quiet}, nil)
	assert.ErrorIs(t, other.Start(), ErrAddressInUse)
}

func TestStopRemovesSocketAndDisconnects(t *testing.T) {
	d := startDaemon(t, nil)
	c := connect(t, d)
	_, err := c.Subscribe()
	require.NoError(t, err)

	require.NoError(t, d.server.Stop())
	_, err = os.Stat(d.path)
	assert.True(t, os.IsNotExist(err))

	select {
	case _, ok := <-c.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("event stream not closed")
	}
	assert.False(t, c.IsConnected())
	_, err = c.Status()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDaemonNotRunning(t *testing.T) {
	c := NewClient(ClientConfig{SocketPath: socketPath(t)})
	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrDaemonNotRunning)

	_, err = c.Status()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestStaleSocketFileReplaced(t *testing.T) {
	path := socketPath(t)
	s := NewServer(ServerConfig{SocketPath: path, Logger: quiet}, nil)
	require.NoError(t, s.Start())
	// Simulate a crash: the listener goes away, the file stays.
	s.listener.(*net.UnixListener).SetUnlinkOnClose(false)
	s.listener.Close()
	_, err := os.Stat(path)
	require.NoError(t, err)

	s2 := NewServer(ServerConfig{SocketPath: path, Logger: quiet}, nil)
	require.NoError(t, s2.Start())
	defer s2.Stop()
	s.running.Store(false)
}

func TestCleanupSocketLeavesRegularFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-socket")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	err := CleanupSocket(path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "not a socket"))
}
