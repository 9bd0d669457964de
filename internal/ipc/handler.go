package ipc

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"stepcap/internal/health"
	"stepcap/internal/metrics"
	"stepcap/internal/tracking"
)

// DaemonHandlerConfig wires the handler to the daemon's state.
type DaemonHandlerConfig struct {
	Version string
	Machine *tracking.Machine
	Metrics *metrics.Capture // nil disables metrics requests
	Health  *health.Checker  // nil disables health requests
	Logger  *slog.Logger
}

// DaemonHandler answers status, metrics and tracking requests.
type DaemonHandler struct {
	version   string
	machine   *tracking.Machine
	metrics   *metrics.Capture
	health    *health.Checker
	log       *slog.Logger
	startedAt time.Time
	clients   func() int
}

// NewDaemonHandler creates a handler.
func NewDaemonHandler(cfg DaemonHandlerConfig) *DaemonHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Machine == nil {
		cfg.Machine = tracking.NewMachine(nil)
	}
	return &DaemonHandler{
		version:   cfg.Version,
		machine:   cfg.Machine,
		metrics:   cfg.Metrics,
		health:    cfg.Health,
		log:       cfg.Logger,
		startedAt: time.Now(),
	}
}

// SetClientCounter supplies the connected client count for status replies.
func (h *DaemonHandler) SetClientCounter(fn func() int) {
	h.clients = fn
}

// HandleMessage implements Handler.
func (h *DaemonHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	id := msg.Header.RequestID
	switch msg.Header.Type {
	case MsgStatusRequest:
		return NewResponse(MsgStatusResponse, id, h.status())

	case MsgMetricsRequest:
		if h.metrics == nil {
			return NewErrorMessage(id, CodeUnsupported, "metrics disabled"), nil
		}
		var b strings.Builder
		if err := h.metrics.Registry().WritePrometheus(&b); err != nil {
			return nil, err
		}
		return NewResponse(MsgMetricsResponse, id, &MetricsResponse{Text: b.String()})

	case MsgHealthRequest:
		if h.health == nil {
			return NewErrorMessage(id, CodeUnsupported, "health checks disabled"), nil
		}
		return NewResponse(MsgHealthResponse, id, h.health.Report(ctx))

	case MsgTrackingStart:
		if _, err := h.machine.Start(); err != nil {
			return h.transitionError(id, client, "start", err)
		}
		h.log.Info("tracking started by client", "client", client.ID, "session", h.machine.SessionID())
		return NewResponse(MsgTrackingStartResp, id, h.tracking())

	case MsgTrackingStop:
		if err := h.machine.Stop(); err != nil {
			return h.transitionError(id, client, "stop", err)
		}
		h.log.Info("tracking stopped by client", "client", client.ID)
		return NewResponse(MsgTrackingStopResp, id, h.tracking())

	case MsgTrackingToggle:
		paused := h.machine.TogglePause()
		h.log.Info("tracking pause toggled by client", "client", client.ID, "paused", paused)
		return NewResponse(MsgTrackingToggleResp, id, h.tracking())

	case MsgTrackingStatus:
		return NewResponse(MsgTrackingStatusResp, id, h.tracking())
	}
	return NewErrorMessage(id, CodeUnsupported, "unsupported message "+msg.Header.Type.String()), nil
}

func (h *DaemonHandler) transitionError(id uint32, client *Client, op string, err error) (*Message, error) {
	if errors.Is(err, tracking.ErrInvalidTransition) {
		h.log.Debug("rejected tracking command", "client", client.ID, "op", op, "state", h.machine.State())
		return NewErrorMessage(id, CodeInvalidTransition, err.Error()), nil
	}
	return nil, err
}

func (h *DaemonHandler) tracking() *TrackingResponse {
	st := h.machine.Status()
	return &TrackingResponse{
		State:     st.State,
		SessionID: st.SessionID,
		Paused:    st.State == tracking.Paused,
		Status:    st,
	}
}

func (h *DaemonHandler) status() *StatusResponse {
	resp := &StatusResponse{
		Version:   h.version,
		StartedAt: h.startedAt,
		Uptime:    time.Since(h.startedAt),
		Tracking:  h.machine.Status(),
	}
	if h.clients != nil {
		resp.Clients = h.clients()
	}
	if h.metrics != nil {
		resp.Counters = h.metrics.Snapshot()
	}
	return resp
}
