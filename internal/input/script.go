package input

import (
	"sync"

	"stepcap/internal/model"
)

// Script is a scripted Source for tests and dry runs.
type Script struct {
	mu     sync.Mutex
	cursor model.Point
	down   map[VirtualKey]bool

	// CursorErr makes CursorPos fail.
	CursorErr error
}

// NewScript returns a Script with every key released and the cursor at the
// origin.
func NewScript() *Script {
	return &Script{down: make(map[VirtualKey]bool)}
}

// Press holds keys down.
func (s *Script) Press(keys ...VirtualKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.down[k] = true
	}
}

// Release lets keys go.
func (s *Script) Release(keys ...VirtualKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.down, k)
	}
}

// ReleaseAll lets every key go.
func (s *Script) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.down)
}

// MoveTo sets the cursor position.
func (s *Script) MoveTo(p model.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = p
}

func (s *Script) CursorPos() (model.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CursorErr != nil {
		return model.Point{}, s.CursorErr
	}
	return s.cursor, nil
}

func (s *Script) KeyDown(vk VirtualKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down[vk]
}
