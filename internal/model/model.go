// Package model defines the interaction records produced by the capture
// pipeline and the small geometry types shared between its stages.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Point is a screen coordinate in virtual-desktop pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// String returns "(x, y)".
func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// ScreenContext is the size of the primary display at record creation time.
type ScreenContext struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ActionCategory classifies what produced a record.
type ActionCategory string

const (
	CategoryClick     ActionCategory = "Click"
	CategoryKeystroke ActionCategory = "Keystroke"
	CategoryManual    ActionCategory = "Manual"
)

// Valid reports whether c is one of the known categories.
func (c ActionCategory) Valid() bool {
	switch c {
	case CategoryClick, CategoryKeystroke, CategoryManual:
		return true
	}
	return false
}

// Action type identifiers carried in InteractionRecord.ActionType.
const (
	ActionClick      = "click"
	ActionRightClick = "right_click"
	ActionTab        = "tab"
	ActionEnter      = "enter"
	ActionSpace      = "space"
	ActionEscape     = "escape"
	ActionArrowLeft  = "arrow_left"
	ActionArrowUp    = "arrow_up"
	ActionArrowRight = "arrow_right"
	ActionArrowDown  = "arrow_down"
	ActionCapture    = "capture"
)

// Element state flags, joined into InteractionRecord.State in this order.
const (
	StateDisabled      = "disabled"
	StateSelected      = "selected"
	StateChecked       = "checked"
	StateIndeterminate = "indeterminate"
)

// StateSeparator joins state flags.
const StateSeparator = ", "

// Labels used by manual capture records.
const (
	ManualName        = "Manual Screenshot"
	ManualControlType = "Screenshot"
	ManualWindowTitle = "Manual Capture"
)

// InteractionRecord is one enriched user interaction. Records are passed by
// value once emitted and must not be modified by consumers.
type InteractionRecord struct {
	X              *int           `json:"x"`
	Y              *int           `json:"y"`
	ScreenContext  ScreenContext  `json:"screen_context"`
	Name           string         `json:"name"`
	ControlType    string         `json:"control_type"`
	AutomationID   string         `json:"automation_id"`
	ClassName      string         `json:"class_name"`
	WindowTitle    string         `json:"window_title"`
	ParentName     string         `json:"parent_name"`
	ActionType     string         `json:"action_type"`
	ActionCategory ActionCategory `json:"action_category"`
	// Timestamp is milliseconds since process start.
	Timestamp int64 `json:"timestamp"`
	// CapturedAt is the UTC wall clock time in RFC 3339 with milliseconds.
	CapturedAt string  `json:"captured_at"`
	Screenshot *string `json:"screenshot"`
	Value      string  `json:"value"`
	State      string  `json:"state"`
	HelpText   string  `json:"help_text"`
	SessionID  string  `json:"session_id,omitempty"`
}

// SetPosition records the screen point the interaction happened at.
func (r *InteractionRecord) SetPosition(p Point) {
	x, y := p.X, p.Y
	r.X, r.Y = &x, &y
}

// Position returns the interaction point, if the record has one.
func (r InteractionRecord) Position() (Point, bool) {
	if r.X == nil || r.Y == nil {
		return Point{}, false
	}
	return Point{X: *r.X, Y: *r.Y}, true
}

// SetScreenshot attaches an encoded image. An empty string clears it.
func (r *InteractionRecord) SetScreenshot(encoded string) {
	if encoded == "" {
		r.Screenshot = nil
		return
	}
	r.Screenshot = &encoded
}

// HasScreenshot reports whether a screenshot is attached.
func (r InteractionRecord) HasScreenshot() bool {
	return r.Screenshot != nil && *r.Screenshot != ""
}

// Stamp sets both timestamps from a capture instant.
func (r *InteractionRecord) Stamp(at, processStart time.Time) {
	r.Timestamp = at.Sub(processStart).Milliseconds()
	r.CapturedAt = at.UTC().Format(TimestampLayout)
}

// TimestampLayout is the wall clock format used for CapturedAt.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// JoinState combines element state flags in precedence order.
func JoinState(flags ...string) string {
	out := flags[:0:0]
	for _, f := range flags {
		if f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, StateSeparator)
}

// String renders the record for logs without the image payload.
func (r InteractionRecord) String() string {
	pos := "none"
	if p, ok := r.Position(); ok {
		pos = p.String()
	}
	shot := "none"
	if r.Screenshot != nil {
		shot = fmt.Sprintf("[Screenshot Data: %d chars]", len(*r.Screenshot))
	}
	return fmt.Sprintf("InteractionRecord{action=%s/%s pos=%s control=%q name=%q window=%q state=%q screenshot=%s}",
		r.ActionCategory, r.ActionType, pos, r.ControlType, r.Name, r.WindowTitle, r.State, shot)
}
