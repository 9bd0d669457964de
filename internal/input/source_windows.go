//go:build windows

package input

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"stepcap/internal/model"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetAsyncKeyState = user32.NewProc("GetAsyncKeyState")
	procGetCursorPos     = user32.NewProc("GetCursorPos")
)

type point struct {
	X, Y int32
}

type systemSource struct{}

// NewSystemSource returns the Win32 source backed by GetAsyncKeyState and
// GetCursorPos.
func NewSystemSource() (Source, error) {
	if err := procGetAsyncKeyState.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	if err := procGetCursorPos.Find(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	return systemSource{}, nil
}

func (systemSource) CursorPos() (model.Point, error) {
	var pt point
	r, _, err := procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	if r == 0 {
		return model.Point{}, fmt.Errorf("input: GetCursorPos: %w", err)
	}
	return model.Point{X: int(pt.X), Y: int(pt.Y)}, nil
}

// KeyDown checks the most significant bit of GetAsyncKeyState.
func (systemSource) KeyDown(vk VirtualKey) bool {
	r, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
	return int16(r) < 0
}
