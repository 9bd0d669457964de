// Package tracking holds the Stopped/Running/Paused gate shared by the
// sampling loop and the control surfaces.
//
// Transitions:
//
//	Stopped -> Running          Start
//	Running -> Paused           Pause, TogglePause
//	Paused  -> Running          Resume, TogglePause
//	Running|Paused -> Stopped   Stop
//
// Reads are lock-free so the sampling loop never blocks on a control
// request. Writers are serialized so notifications leave in transition
// order.
package tracking

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition is returned for transitions outside the table above.
var ErrInvalidTransition = errors.New("tracking: invalid state transition")

// State is the tracking gate value.
type State int32

const (
	Stopped State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "stopped":
		*s = Stopped
	case "running":
		*s = Running
	case "paused":
		*s = Paused
	default:
		return fmt.Errorf("tracking: unknown state %q", b)
	}
	return nil
}

// Notifier receives the boolean recording signals. Implementations must
// not block.
type Notifier interface {
	RecordingMode(on bool)
	RecordingPaused(paused bool)
}

// Machine is the tracking state machine.
type Machine struct {
	state atomic.Int32

	// session mirrors sessionID for readers that must not take mu.
	session atomic.Pointer[string]

	mu       sync.Mutex
	notifier Notifier
	now      func() time.Time

	// Session fields, guarded by mu.
	sessionID string
	startedAt time.Time
	endedAt   time.Time
	pausedAt  time.Time
	pausedFor time.Duration

	records atomic.Uint64
}

// NewMachine creates a machine in Stopped. n may be nil.
func NewMachine(n Notifier) *Machine {
	return &Machine{notifier: n, now: time.Now}
}

// SetNotifier replaces the notifier.
func (m *Machine) SetNotifier(n Notifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

// SetClock overrides the wall clock used for session timing.
func (m *Machine) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// State returns the current state without locking.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// IsRunning reports whether samples should be taken.
func (m *Machine) IsRunning() bool {
	return m.State() == Running
}

// Start moves Stopped to Running and opens a new session.
func (m *Machine) Start() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.State(); cur != Stopped {
		return "", fmt.Errorf("%w: start from %s", ErrInvalidTransition, cur)
	}
	id := uuid.NewString()
	m.sessionID = id
	m.session.Store(&id)
	m.startedAt = m.now()
	m.endedAt = time.Time{}
	m.pausedAt = time.Time{}
	m.pausedFor = 0
	m.records.Store(0)

	m.state.Store(int32(Running))
	if m.notifier != nil {
		m.notifier.RecordingMode(true)
	}
	return m.sessionID, nil
}

// Stop ends the session from Running or Paused.
func (m *Machine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.State()
	if cur == Stopped {
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, cur)
	}
	m.endedAt = m.now()
	if cur == Paused {
		m.pausedFor += m.endedAt.Sub(m.pausedAt)
	}

	m.state.Store(int32(Stopped))
	if m.notifier != nil {
		m.notifier.RecordingMode(false)
	}
	return nil
}

// Pause moves Running to Paused.
func (m *Machine) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauseLocked()
}

// Resume moves Paused to Running.
func (m *Machine) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumeLocked()
}

// TogglePause flips between Running and Paused and reports whether the
// machine is now paused. In Stopped it does nothing and returns false.
func (m *Machine) TogglePause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.State() {
	case Running:
		_ = m.pauseLocked()
		return true
	case Paused:
		_ = m.resumeLocked()
	}
	return false
}

func (m *Machine) pauseLocked() error {
	if cur := m.State(); cur != Running {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, cur)
	}
	m.pausedAt = m.now()
	m.state.Store(int32(Paused))
	if m.notifier != nil {
		m.notifier.RecordingPaused(true)
	}
	return nil
}

func (m *Machine) resumeLocked() error {
	if cur := m.State(); cur != Paused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, cur)
	}
	m.pausedFor += m.now().Sub(m.pausedAt)
	m.state.Store(int32(Running))
	if m.notifier != nil {
		m.notifier.RecordingPaused(false)
	}
	return nil
}

// SessionID returns the id of the current or last session. It never blocks,
// so notifiers may call it.
func (m *Machine) SessionID() string {
	if id := m.session.Load(); id != nil {
		return *id
	}
	return ""
}

// RecordEmitted counts a record published during the current session.
func (m *Machine) RecordEmitted() {
	m.records.Add(1)
}

// Status summarizes the current or last session.
type Status struct {
	State     State         `json:"state"`
	SessionID string        `json:"session_id,omitempty"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	EndedAt   time.Time     `json:"ended_at,omitzero"`
	Duration  time.Duration `json:"duration"`
	Paused    time.Duration `json:"paused"`
	Records   uint64        `json:"records"`
}

// Status returns the current session status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		State:     m.State(),
		SessionID: m.sessionID,
		StartedAt: m.startedAt,
		EndedAt:   m.endedAt,
		Paused:    m.pausedFor,
		Records:   m.records.Load(),
	}
	if m.startedAt.IsZero() {
		return st
	}

	end := m.endedAt
	if st.State != Stopped {
		end = m.now()
	}
	if st.State == Paused {
		st.Paused += end.Sub(m.pausedAt)
	}
	st.Duration = end.Sub(m.startedAt)
	return st
}
