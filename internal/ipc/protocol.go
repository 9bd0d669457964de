// Package ipc connects the capture daemon to its presentation layer.
//
// Every message is a 16-byte header followed by a JSON payload. Requests
// carry a request id that the matching response echoes; events pushed to
// subscribers use server-assigned ids.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"stepcap/internal/tracking"
)

const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x53434150 // "SCAP"
)

// HeaderSize is the encoded header length.
const HeaderSize = 16

// MaxPayload bounds a single message. A full-resolution PNG screenshot in
// an event fits comfortably.
const MaxPayload = 16 << 20

var (
	ErrBadMagic        = errors.New("ipc: invalid magic number")
	ErrVersion         = errors.New("ipc: unsupported protocol version")
	ErrPayloadTooLarge = errors.New("ipc: payload too large")
)

// MessageType identifies a message.
type MessageType uint16

const (
	// Control (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005

	// Status (0x01xx)
	MsgStatusRequest   MessageType = 0x0100
	MsgStatusResponse  MessageType = 0x0101
	MsgMetricsRequest  MessageType = 0x0102
	MsgMetricsResponse MessageType = 0x0103
	MsgHealthRequest   MessageType = 0x0104
	MsgHealthResponse  MessageType = 0x0105

	// Event streaming (0x05xx)
	MsgSubscribe       MessageType = 0x0500
	MsgSubscribeResp   MessageType = 0x0501
	MsgUnsubscribe     MessageType = 0x0502
	MsgUnsubscribeResp MessageType = 0x0503
	MsgEvent           MessageType = 0x0504

	// Tracking (0x06xx)
	MsgTrackingStart      MessageType = 0x0600
	MsgTrackingStartResp  MessageType = 0x0601
	MsgTrackingStop       MessageType = 0x0602
	MsgTrackingStopResp   MessageType = 0x0603
	MsgTrackingStatus     MessageType = 0x0604
	MsgTrackingStatusResp MessageType = 0x0605
	MsgTrackingToggle     MessageType = 0x0606
	MsgTrackingToggleResp MessageType = 0x0607
)

func (t MessageType) String() string {
	switch t {
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	case MsgHandshake:
		return "handshake"
	case MsgHandshakeAck:
		return "handshake_ack"
	case MsgError:
		return "error"
	case MsgStatusRequest:
		return "status"
	case MsgStatusResponse:
		return "status_resp"
	case MsgMetricsRequest:
		return "metrics"
	case MsgMetricsResponse:
		return "metrics_resp"
	case MsgHealthRequest:
		return "health"
	case MsgHealthResponse:
		return "health_resp"
	case MsgSubscribe:
		return "subscribe"
	case MsgSubscribeResp:
		return "subscribe_resp"
	case MsgUnsubscribe:
		return "unsubscribe"
	case MsgUnsubscribeResp:
		return "unsubscribe_resp"
	case MsgEvent:
		return "event"
	case MsgTrackingStart:
		return "tracking_start"
	case MsgTrackingStartResp:
		return "tracking_start_resp"
	case MsgTrackingStop:
		return "tracking_stop"
	case MsgTrackingStopResp:
		return "tracking_stop_resp"
	case MsgTrackingStatus:
		return "tracking_status"
	case MsgTrackingStatusResp:
		return "tracking_status_resp"
	case MsgTrackingToggle:
		return "tracking_toggle"
	case MsgTrackingToggleResp:
		return "tracking_toggle_resp"
	}
	return fmt.Sprintf("0x%04x", uint16(t))
}

// Header flags
const (
	FlagJSON uint8 = 0x04
)

// Header is the fixed-size message header.
type Header struct {
	Magic     uint32
	Version   uint8
	Flags     uint8
	Type      MessageType
	RequestID uint32
	Length    uint32
}

// Message is a header and its payload.
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage builds a JSON-flagged message.
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write encodes the header.
func (h *Header) Write(w io.Writer) error {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf[:])
	return err
}

// ReadHeader decodes and checks a header.
func ReadHeader(r io.Reader) (*Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}
	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("%w: %x", ErrBadMagic, h.Magic)
	}
	if h.Version == 0 || h.Version > ProtocolVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	return h, nil
}

// Write emits the whole frame in a single Write call.
func (m *Message) Write(w io.Writer) error {
	buf := make([]byte, 0, HeaderSize+len(m.Payload))
	buf = binary.BigEndian.AppendUint32(buf, m.Header.Magic)
	buf = append(buf, m.Header.Version, m.Header.Flags)
	buf = binary.BigEndian.AppendUint16(buf, uint16(m.Header.Type))
	buf = binary.BigEndian.AppendUint32(buf, m.Header.RequestID)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Payload)))
	buf = append(buf, m.Payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads one complete message.
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Request/Response payloads

// HandshakeRequest opens a session with the daemon.
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse carries the id the server assigned to the client.
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
	ClientID        string `json:"client_id"`
}

// ErrorResponse is the payload of MsgError. It doubles as the error
// returned by client calls.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("ipc: daemon error %d: %s", e.Code, e.Message)
}

// Error codes
const (
	CodeUnknown           = 1
	CodeInvalidRequest    = 2
	CodeInvalidTransition = 3
	CodeInternal          = 4
	CodeUnsupported       = 5
)

// StatusResponse describes the daemon.
type StatusResponse struct {
	Version   string             `json:"version"`
	StartedAt time.Time          `json:"started_at"`
	Uptime    time.Duration      `json:"uptime"`
	Tracking  tracking.Status    `json:"tracking"`
	Clients   int                `json:"clients"`
	Counters  map[string]float64 `json:"counters,omitempty"`
}

// MetricsResponse carries the Prometheus text exposition.
type MetricsResponse struct {
	Text string `json:"text"`
}

// SubscribeRequest selects event names. Empty means every event.
type SubscribeRequest struct {
	Events []string `json:"events,omitempty"`
}

// SubscribeResponse acknowledges a subscription.
type SubscribeResponse struct {
	Events []string `json:"events"`
	Queue  int      `json:"queue"`
}

// TrackingResponse answers every tracking command.
type TrackingResponse struct {
	State     tracking.State  `json:"state"`
	SessionID string          `json:"session_id,omitempty"`
	Paused    bool            `json:"paused"`
	Status    tracking.Status `json:"status"`
}

// Encode encodes a payload.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes a payload. An empty payload leaves v untouched.
func Decode(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// NewErrorMessage builds an error reply.
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse builds a reply carrying v.
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
