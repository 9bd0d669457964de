// Package input reads raw pointer and keyboard state.
//
// This package only answers "is this key down" and "where is the cursor"
// for the small set of keys the capture loop monitors; it never installs a
// global hook or reads typed text.
package input

import (
	"errors"
	"fmt"
	"strings"

	"stepcap/internal/model"
)

// ErrNotAvailable is returned when raw input state cannot be read on this
// platform.
var ErrNotAvailable = errors.New("input: raw input state not available on this platform")

// VirtualKey is a Win32 virtual-key code.
type VirtualKey uint8

const (
	VKLButton   VirtualKey = 0x01
	VKRButton   VirtualKey = 0x02
	VKTab       VirtualKey = 0x09
	VKReturn    VirtualKey = 0x0D
	VKShift     VirtualKey = 0x10
	VKControl   VirtualKey = 0x11
	VKMenu      VirtualKey = 0x12
	VKEscape    VirtualKey = 0x1B
	VKSpace     VirtualKey = 0x20
	VKLeft      VirtualKey = 0x25
	VKUp        VirtualKey = 0x26
	VKRight     VirtualKey = 0x27
	VKDown      VirtualKey = 0x28
	VKSemicolon VirtualKey = 0xBA
)

// Source is the raw input capability.
type Source interface {
	// CursorPos returns the pointer position in screen pixels.
	CursorPos() (model.Point, error)

	// KeyDown reports whether a key or mouse button is currently held.
	// Failures read as released.
	KeyDown(vk VirtualKey) bool
}

var keyNames = map[string]VirtualKey{
	"lbutton":     VKLButton,
	"rbutton":     VKRButton,
	"tab":         VKTab,
	"enter":       VKReturn,
	"return":      VKReturn,
	"shift":       VKShift,
	"ctrl":        VKControl,
	"control":     VKControl,
	"alt":         VKMenu,
	"menu":        VKMenu,
	"escape":      VKEscape,
	"esc":         VKEscape,
	"space":       VKSpace,
	"left":        VKLeft,
	"up":          VKUp,
	"right":       VKRight,
	"down":        VKDown,
	"semicolon":   VKSemicolon,
	";":           VKSemicolon,
	"arrow_left":  VKLeft,
	"arrow_up":    VKUp,
	"arrow_right": VKRight,
	"arrow_down":  VKDown,
}

// ParseKey maps a key name such as "tab" or "semicolon" to its code.
func ParseKey(name string) (VirtualKey, error) {
	vk, ok := keyNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("input: unknown key %q", name)
	}
	return vk, nil
}

// ParseKeys parses a list of key names, preserving order.
func ParseKeys(names []string) ([]VirtualKey, error) {
	keys := make([]VirtualKey, 0, len(names))
	for _, n := range names {
		vk, err := ParseKey(n)
		if err != nil {
			return nil, err
		}
		keys = append(keys, vk)
	}
	return keys, nil
}

// actionNames maps monitored keys to record action types.
var actionNames = map[VirtualKey]string{
	VKTab:    model.ActionTab,
	VKReturn: model.ActionEnter,
	VKSpace:  model.ActionSpace,
	VKEscape: model.ActionEscape,
	VKLeft:   model.ActionArrowLeft,
	VKUp:     model.ActionArrowUp,
	VKRight:  model.ActionArrowRight,
	VKDown:   model.ActionArrowDown,
}

// ActionName returns the action type string for a monitored key.
func ActionName(vk VirtualKey) (string, bool) {
	name, ok := actionNames[vk]
	return name, ok
}

// DefaultMonitoredKeys is the fixed order the capture loop checks keys in.
func DefaultMonitoredKeys() []VirtualKey {
	return []VirtualKey{VKTab, VKReturn, VKSpace, VKEscape, VKLeft, VKUp, VKRight, VKDown}
}

// Hotkey is a chord of modifiers plus one key.
type Hotkey struct {
	Modifiers []VirtualKey
	Key       VirtualKey
}

// DefaultHotkey is Alt+Semicolon.
var DefaultHotkey = Hotkey{Modifiers: []VirtualKey{VKMenu}, Key: VKSemicolon}

// ParseHotkey parses "alt+semicolon" style chords. The last component is
// the key, everything before it a modifier.
func ParseHotkey(s string) (Hotkey, error) {
	parts := strings.Split(s, "+")
	if len(parts) == 0 || strings.TrimSpace(s) == "" {
		return Hotkey{}, errors.New("input: empty hotkey")
	}
	var h Hotkey
	for i, p := range parts {
		vk, err := ParseKey(p)
		if err != nil {
			return Hotkey{}, fmt.Errorf("input: hotkey %q: %w", s, err)
		}
		if i == len(parts)-1 {
			h.Key = vk
		} else {
			h.Modifiers = append(h.Modifiers, vk)
		}
	}
	return h, nil
}

// Held reports whether every key of the chord is down.
func (h Hotkey) Held(src Source) bool {
	for _, m := range h.Modifiers {
		if !src.KeyDown(m) {
			return false
		}
	}
	return src.KeyDown(h.Key)
}
