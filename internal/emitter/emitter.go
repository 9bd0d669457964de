// Package emitter publishes interaction records and recording signals to
// in-process subscribers and external sinks.
//
// Publishing never blocks: a subscriber whose buffer is full misses the
// event, and a failing sink is logged and skipped.
package emitter

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"stepcap/internal/model"
)

// Event names.
const (
	EventInteraction     = "element_interaction"
	EventRecordingMode   = "recording-mode"
	EventRecordingPaused = "recording-paused"
)

// DefaultBuffer is the subscriber channel size used when Subscribe is
// given a non-positive size.
const DefaultBuffer = 100

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("emitter: bus closed")

// Event is one published item. Record is set for element_interaction
// events, Value for the two recording signals.
type Event struct {
	Name   string                   `json:"name"`
	Seq    uint64                   `json:"seq"`
	Time   time.Time                `json:"time"`
	Record *model.InteractionRecord `json:"record,omitempty"`
	Value  bool                     `json:"value"`
}

// Sink receives every event after subscribers. Publish must not block.
type Sink interface {
	Publish(Event) error
}

// RecordValidator checks a record before it is published.
type RecordValidator func(*model.InteractionRecord) error

// Bus fans events out in publish order.
type Bus struct {
	logger *slog.Logger

	mu        sync.Mutex
	closed    bool
	seq       uint64
	nextID    int
	subs      map[int]chan Event
	sinks     []Sink
	validator RecordValidator

	published atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a bus. logger may be nil.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger, subs: make(map[int]chan Event)}
}

// Subscribe returns a channel receiving every subsequent event and a
// function that cancels the subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// AddSink registers an external sink.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// SetValidator installs a validator run on every interaction record. A
// record failing validation is not published.
func (b *Bus) SetValidator(v RecordValidator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validator = v
}

// EmitInteraction publishes one record. The bus keeps its own copy.
func (b *Bus) EmitInteraction(rec model.InteractionRecord) error {
	b.mu.Lock()
	v := b.validator
	b.mu.Unlock()
	if v != nil {
		if err := v(&rec); err != nil {
			return fmt.Errorf("emitter: invalid record: %w", err)
		}
	}
	return b.publish(Event{Name: EventInteraction, Record: &rec})
}

// RecordingMode publishes the recording-mode signal.
func (b *Bus) RecordingMode(on bool) {
	if err := b.publish(Event{Name: EventRecordingMode, Value: on}); err != nil {
		b.logger.Debug("recording-mode not published", "error", err)
	}
}

// RecordingPaused publishes the recording-paused signal.
func (b *Bus) RecordingPaused(paused bool) {
	if err := b.publish(Event{Name: EventRecordingPaused, Value: paused}); err != nil {
		b.logger.Debug("recording-paused not published", "error", err)
	}
}

func (b *Bus) publish(ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	b.seq++
	ev.Seq = b.seq
	ev.Time = time.Now()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
			b.logger.Debug("subscriber full, event dropped", "subscriber", id, "event", ev.Name, "seq", ev.Seq)
		}
	}
	for _, s := range b.sinks {
		if err := s.Publish(ev); err != nil {
			b.logger.Warn("sink publish failed", "event", ev.Name, "seq", ev.Seq, "error", err)
		}
	}
	b.published.Add(1)
	return nil
}

// Published returns the number of events published.
func (b *Bus) Published() uint64 { return b.published.Load() }

// Dropped returns the number of subscriber deliveries skipped because a
// buffer was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close closes every subscriber channel. Later publishes return
// ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
