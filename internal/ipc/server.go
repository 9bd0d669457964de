package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"stepcap/internal/emitter"
)

// ErrAddressInUse is returned by Start when another daemon already
// listens on the socket.
var ErrAddressInUse = errors.New("ipc: another daemon is listening")

// AllEvents are the event names a subscription without a filter receives.
var AllEvents = []string{
	emitter.EventInteraction,
	emitter.EventRecordingMode,
	emitter.EventRecordingPaused,
}

// Handler processes requests the server does not answer itself.
type Handler interface {
	HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, client *Client, msg *Message) (*Message, error)

func (f HandlerFunc) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	return f(ctx, client, msg)
}

// ServerConfig configures the IPC server.
type ServerConfig struct {
	SocketPath   string
	Version      string
	MaxClients   int
	EventQueue   int
	IdleTimeout  time.Duration // ping after this long without a request
	WriteTimeout time.Duration
	Logger       *slog.Logger

	// OnClientsChanged receives the client count after every connect and
	// disconnect.
	OnClientsChanged func(n int)
}

// DefaultServerConfig returns defaults for the given socket path.
func DefaultServerConfig(socketPath string) ServerConfig {
	return ServerConfig{
		SocketPath:   socketPath,
		Version:      "dev",
		MaxClients:   16,
		EventQueue:   256,
		IdleTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Server accepts presentation-layer clients, answers their requests and
// pushes events to subscribers. It implements emitter.Sink.
type Server struct {
	cfg     ServerConfig
	log     *slog.Logger
	handler Handler

	mu       sync.RWMutex
	listener net.Listener
	clients  map[string]*Client

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	startedAt   time.Time
	nextEventID atomic.Uint32
	dropped     atomic.Uint64
}

var _ emitter.Sink = (*Server)(nil)

// Client is one connection as the server sees it.
type Client struct {
	ID          string
	ConnectedAt time.Time

	conn    net.Conn
	writeMu sync.Mutex
	queue   chan *Message
	done    chan struct{}

	mu         sync.Mutex
	name       string
	version    string
	subscribed bool
	filter     map[string]bool // empty means every event

	dropped atomic.Uint64
}

// Name returns the name sent in the handshake.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Version returns the client version sent in the handshake.
func (c *Client) Version() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Dropped returns how many events this client missed on a full queue.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }

func (c *Client) wants(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscribed {
		return false
	}
	return len(c.filter) == 0 || c.filter[event]
}

// NewServer creates a server. handler may be nil, in which case only the
// built-in messages are answered.
func NewServer(cfg ServerConfig, handler Handler) *Server {
	def := DefaultServerConfig(cfg.SocketPath)
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	if cfg.EventQueue <= 0 {
		cfg.EventQueue = def.EventQueue
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Version == "" {
		cfg.Version = def.Version
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		log:     cfg.Logger,
		handler: handler,
		clients: make(map[string]*Client),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins listening.
func (s *Server) Start() error {
	if s.running.Load() {
		return nil
	}
	if IsSocketListening(s.cfg.SocketPath) {
		return fmt.Errorf("%w on %s", ErrAddressInUse, s.cfg.SocketPath)
	}
	ln, err := listen(s.cfg.SocketPath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.startedAt = time.Now()
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.log.Info("ipc server listening", "path", s.cfg.SocketPath, "max_clients", s.cfg.MaxClients)
	return nil
}

// Stop closes the listener and every client, then removes the socket.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn("ipc server stop timed out")
	}

	if err := cleanupSocket(s.cfg.SocketPath); err != nil {
		s.log.Warn("remove socket", "path", s.cfg.SocketPath, "error", err)
	}
	s.log.Info("ipc server stopped")
	return nil
}

// SocketPath returns the listening path.
func (s *Server) SocketPath() string { return s.cfg.SocketPath }

// StartedAt returns when Start succeeded.
func (s *Server) StartedAt() time.Time { return s.startedAt }

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Dropped returns the number of events lost to full client queues.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Publish queues ev for every subscribed client. It never blocks: a full
// queue drops the event for that client.
func (s *Server) Publish(ev emitter.Event) error {
	if !s.running.Load() {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msg *Message
	for _, c := range s.clients {
		if !c.wants(ev.Name) {
			continue
		}
		if msg == nil {
			payload, err := Encode(ev)
			if err != nil {
				return fmt.Errorf("ipc: encode event: %w", err)
			}
			msg = NewMessage(MsgEvent, s.nextEventID.Add(1), payload)
		}
		select {
		case c.queue <- msg:
		default:
			c.dropped.Add(1)
			s.dropped.Add(1)
			s.log.Warn("client event queue full, dropping event",
				"client", c.ID, "event", ev.Name, "seq", ev.Seq)
		}
	}
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "error", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if ok, err := verifyPeer(conn); !ok {
			s.log.Warn("rejected connection from another user", "error", err)
			conn.Close()
			continue
		}

		s.mu.Lock()
		if len(s.clients) >= s.cfg.MaxClients {
			s.mu.Unlock()
			s.log.Warn("client limit reached, rejecting connection", "max_clients", s.cfg.MaxClients)
			conn.Close()
			continue
		}
		c := &Client{
			ID:          uuid.NewString(),
			ConnectedAt: time.Now(),
			conn:        conn,
			queue:       make(chan *Message, s.cfg.EventQueue),
			done:        make(chan struct{}),
		}
		s.clients[c.ID] = c
		n := len(s.clients)
		s.mu.Unlock()
		s.clientsChanged(n)
		s.log.Debug("client connected", "client", c.ID)

		s.wg.Add(2)
		go s.writeLoop(c)
		go s.handleConnection(c)
	}
}

func (s *Server) clientsChanged(n int) {
	if s.cfg.OnClientsChanged != nil {
		s.cfg.OnClientsChanged(n)
	}
}

func (s *Server) handleConnection(c *Client) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.ID)
		n := len(s.clients)
		s.mu.Unlock()
		close(c.done)
		c.conn.Close()
		s.clientsChanged(n)
		s.log.Debug("client disconnected", "client", c.ID, "dropped", c.Dropped())
	}()

	for {
		c.conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		msg, err := ReadMessage(c.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || s.ctx.Err() != nil {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if err := s.send(c, NewMessage(MsgPing, s.nextEventID.Add(1), nil)); err != nil {
					return
				}
				continue
			}
			s.log.Warn("bad message, closing client", "client", c.ID, "error", err)
			return
		}

		resp, err := s.processMessage(c, msg)
		if err != nil {
			resp = NewErrorMessage(msg.Header.RequestID, CodeInternal, err.Error())
		}
		if resp != nil {
			if err := s.send(c, resp); err != nil {
				return
			}
		}
	}
}

// writeLoop drains queued events so a slow client never stalls Publish.
func (s *Server) writeLoop(c *Client) {
	defer s.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.queue:
			if err := s.send(c, msg); err != nil {
				s.log.Debug("event write failed", "client", c.ID, "error", err)
				c.conn.Close()
				return
			}
		}
	}
}

func (s *Server) processMessage(c *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgPing:
		return NewMessage(MsgPong, msg.Header.RequestID, nil), nil
	case MsgPong:
		return nil, nil
	case MsgHandshake:
		return s.handleHandshake(c, msg)
	case MsgSubscribe:
		return s.handleSubscribe(c, msg)
	case MsgUnsubscribe:
		c.mu.Lock()
		c.subscribed = false
		c.filter = nil
		c.mu.Unlock()
		return NewMessage(MsgUnsubscribeResp, msg.Header.RequestID, nil), nil
	}
	if s.handler == nil {
		return NewErrorMessage(msg.Header.RequestID, CodeUnsupported, "no handler for "+msg.Header.Type.String()), nil
	}
	return s.handler.HandleMessage(s.ctx, c, msg)
}

func (s *Server) handleHandshake(c *Client, msg *Message) (*Message, error) {
	var req HandshakeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "invalid handshake"), nil
	}
	c.mu.Lock()
	c.name = req.ClientName
	c.version = req.ClientVersion
	c.mu.Unlock()
	s.log.Debug("client handshake", "client", c.ID, "name", req.ClientName, "version", req.ClientVersion)

	return NewResponse(MsgHandshakeAck, msg.Header.RequestID, &HandshakeResponse{
		ServerVersion:   s.cfg.Version,
		ProtocolVersion: ProtocolVersion,
		ClientID:        c.ID,
	})
}

func (s *Server) handleSubscribe(c *Client, msg *Message) (*Message, error) {
	var req SubscribeRequest
	if err := Decode(msg.Payload, &req); err != nil {
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "invalid subscribe request"), nil
	}
	filter := make(map[string]bool, len(req.Events))
	for _, name := range req.Events {
		if !slices.Contains(AllEvents, name) {
			return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "unknown event "+name), nil
		}
		filter[name] = true
	}
	c.mu.Lock()
	c.subscribed = true
	c.filter = filter
	c.mu.Unlock()

	events := req.Events
	if len(events) == 0 {
		events = AllEvents
	}
	return NewResponse(MsgSubscribeResp, msg.Header.RequestID, &SubscribeResponse{
		Events: events,
		Queue:  s.cfg.EventQueue,
	})
}

func (s *Server) send(c *Client, msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return msg.Write(c.conn)
}
