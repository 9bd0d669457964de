package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"stepcap/internal/emitter"
	"stepcap/internal/health"
)

var (
	ErrNotConnected     = errors.New("ipc: not connected to daemon")
	ErrConnectionLost   = errors.New("ipc: connection to daemon lost")
	ErrTimeout          = errors.New("ipc: request timeout")
	ErrDaemonNotRunning = errors.New("ipc: daemon is not running")
)

// ClientConfig configures an IPCClient.
type ClientConfig struct {
	SocketPath     string
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	EventBuffer    int
}

// DefaultClientConfig returns defaults for the given socket path.
func DefaultClientConfig(socketPath string) ClientConfig {
	return ClientConfig{
		SocketPath:     socketPath,
		ClientName:     "stepcapctl",
		ClientVersion:  "dev",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 10 * time.Second,
		EventBuffer:    256,
	}
}

// IPCClient talks to the daemon over its socket or pipe.
type IPCClient struct {
	cfg ClientConfig

	writeMu   sync.Mutex
	conn      net.Conn
	connected atomic.Bool

	pendingMu sync.Mutex
	pending   map[uint32]chan *Message
	nextReqID atomic.Uint32

	events  chan emitter.Event
	dropped atomic.Uint64

	clientID      string
	serverVersion string

	wg sync.WaitGroup
}

// NewClient creates a client. Call Connect before any request.
func NewClient(cfg ClientConfig) *IPCClient {
	def := DefaultClientConfig(cfg.SocketPath)
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = def.EventBuffer
	}
	if cfg.ClientName == "" {
		cfg.ClientName = def.ClientName
	}
	return &IPCClient{
		cfg:     cfg,
		pending: make(map[uint32]chan *Message),
		events:  make(chan emitter.Event, cfg.EventBuffer),
	}
}

// Connect dials the daemon and performs the handshake.
func (c *IPCClient) Connect(ctx context.Context) error {
	if c.connected.Load() {
		return nil
	}
	dctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	conn, err := dial(dctx, c.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	c.conn = conn
	c.connected.Store(true)
	c.wg.Add(1)
	go c.readLoop(conn)

	var ack HandshakeResponse
	err = c.call(MsgHandshake, MsgHandshakeAck, &HandshakeRequest{
		ClientVersion:   c.cfg.ClientVersion,
		ClientName:      c.cfg.ClientName,
		ProtocolVersion: ProtocolVersion,
	}, &ack)
	if err != nil {
		c.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	c.clientID = ack.ClientID
	c.serverVersion = ack.ServerVersion
	return nil
}

// Close drops the connection. The Events channel is closed once the read
// loop exits.
func (c *IPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// IsConnected reports whether the connection is up.
func (c *IPCClient) IsConnected() bool { return c.connected.Load() }

// ClientID returns the id the daemon assigned in the handshake.
func (c *IPCClient) ClientID() string { return c.clientID }

// ServerVersion returns the daemon version reported in the handshake.
func (c *IPCClient) ServerVersion() string { return c.serverVersion }

// Events streams events after Subscribe. It is closed when the
// connection ends.
func (c *IPCClient) Events() <-chan emitter.Event { return c.events }

// Dropped counts events discarded because Events was not drained.
func (c *IPCClient) Dropped() uint64 { return c.dropped.Load() }

func (c *IPCClient) readLoop(conn net.Conn) {
	defer c.wg.Done()
	defer close(c.events)
	defer c.failPending()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			c.connected.Store(false)
			return
		}
		c.dispatch(msg)
	}
}

func (c *IPCClient) dispatch(msg *Message) {
	switch msg.Header.Type {
	case MsgPing:
		c.write(NewMessage(MsgPong, msg.Header.RequestID, nil))
	case MsgEvent:
		var ev emitter.Event
		if err := Decode(msg.Payload, &ev); err != nil {
			return
		}
		select {
		case c.events <- ev:
		default:
			c.dropped.Add(1)
		}
	default:
		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.Header.RequestID]; ok {
			ch <- msg
			delete(c.pending, msg.Header.RequestID)
		}
		c.pendingMu.Unlock()
	}
}

func (c *IPCClient) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *IPCClient) write(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.RequestTimeout))
	return msg.Write(c.conn)
}

// request sends a message and waits for the reply with the same id.
func (c *IPCClient) request(msgType MessageType, payload any) (*Message, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}
	var data []byte
	if payload != nil {
		var err error
		if data, err = Encode(payload); err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	id := c.nextReqID.Add(1)
	ch := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()
	if !c.connected.Load() {
		return nil, ErrConnectionLost
	}

	if err := c.write(NewMessage(msgType, id, data)); err != nil {
		return nil, fmt.Errorf("write %s: %w", msgType, err)
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrConnectionLost
		}
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", ErrTimeout, msgType)
	}
}

// call performs a request, turning MsgError replies into *ErrorResponse
// and decoding the expected reply into out.
func (c *IPCClient) call(msgType, want MessageType, payload, out any) error {
	resp, err := c.request(msgType, payload)
	if err != nil {
		return err
	}
	if resp.Header.Type == MsgError {
		var e ErrorResponse
		if err := Decode(resp.Payload, &e); err != nil {
			return fmt.Errorf("decode error reply: %w", err)
		}
		return &e
	}
	if resp.Header.Type != want {
		return fmt.Errorf("unexpected response type %s", resp.Header.Type)
	}
	if out == nil {
		return nil
	}
	return Decode(resp.Payload, out)
}

// Ping checks the daemon is answering.
func (c *IPCClient) Ping() error {
	return c.call(MsgPing, MsgPong, nil, nil)
}

// Status returns the daemon status.
func (c *IPCClient) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call(MsgStatusRequest, MsgStatusResponse, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Metrics returns the Prometheus text exposition.
func (c *IPCClient) Metrics() (string, error) {
	var resp MetricsResponse
	if err := c.call(MsgMetricsRequest, MsgMetricsResponse, nil, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Health runs the daemon's component checks.
func (c *IPCClient) Health() (*health.Report, error) {
	var resp health.Report
	if err := c.call(MsgHealthRequest, MsgHealthResponse, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *IPCClient) tracking(msgType, want MessageType) (*TrackingResponse, error) {
	var resp TrackingResponse
	if err := c.call(msgType, want, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start begins a recording session.
func (c *IPCClient) Start() (*TrackingResponse, error) {
	return c.tracking(MsgTrackingStart, MsgTrackingStartResp)
}

// Stop ends the recording session.
func (c *IPCClient) Stop() (*TrackingResponse, error) {
	return c.tracking(MsgTrackingStop, MsgTrackingStopResp)
}

// TogglePause pauses a running session or resumes a paused one.
func (c *IPCClient) TogglePause() (*TrackingResponse, error) {
	return c.tracking(MsgTrackingToggle, MsgTrackingToggleResp)
}

// TrackingStatus returns the tracking state without changing it.
func (c *IPCClient) TrackingStatus() (*TrackingResponse, error) {
	return c.tracking(MsgTrackingStatus, MsgTrackingStatusResp)
}

// Subscribe starts the event stream. No names means every event.
func (c *IPCClient) Subscribe(events ...string) (*SubscribeResponse, error) {
	var resp SubscribeResponse
	if err := c.call(MsgSubscribe, MsgSubscribeResp, &SubscribeRequest{Events: events}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Unsubscribe stops the event stream. Events stays open.
func (c *IPCClient) Unsubscribe() error {
	return c.call(MsgUnsubscribe, MsgUnsubscribeResp, nil, nil)
}
