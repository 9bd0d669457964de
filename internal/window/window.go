// Package window names the window an element belongs to and recognizes
// windows owned by the capturing application itself.
package window

import (
	"strings"
	"sync/atomic"

	"stepcap/internal/uia"
)

const (
	// TaskbarLabel is reported for the start button and whenever no title
	// can be found.
	TaskbarLabel = "Windows Taskbar"

	startButtonID = "StartButton"
	appIDPrefix   = "Appid:"
	titleSep      = " - "

	// maxAncestors bounds the parent walk.
	maxAncestors = 256
)

// DefaultSelfIdentifiers lists title fragments of the capturing
// application's own windows.
var DefaultSelfIdentifiers = []string{"MataPass"}

// Classifier resolves window titles. SetSelfIdentifiers may be called
// concurrently with the other methods.
type Classifier struct {
	gw   uia.Gateway
	self atomic.Pointer[[]string]
}

// NewClassifier creates a classifier using gw for foreground fallback.
func NewClassifier(gw uia.Gateway, selfIdentifiers []string) *Classifier {
	c := &Classifier{gw: gw}
	c.SetSelfIdentifiers(selfIdentifiers)
	return c
}

// SetSelfIdentifiers replaces the self-exclusion list. Empty entries are
// dropped since they would match every title.
func (c *Classifier) SetSelfIdentifiers(ids []string) {
	lowered := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id != "" {
			lowered = append(lowered, id)
		}
	}
	c.self.Store(&lowered)
}

// SelfIdentifiers returns the current list, lowercased.
func (c *Classifier) SelfIdentifiers() []string {
	ids := c.self.Load()
	if ids == nil {
		return nil
	}
	return append([]string(nil), (*ids)...)
}

// IsSelf reports whether title belongs to the capturing application.
func (c *Classifier) IsSelf(title string) bool {
	ids := c.self.Load()
	if ids == nil {
		return false
	}
	t := strings.ToLower(title)
	for _, id := range *ids {
		if strings.Contains(t, id) {
			return true
		}
	}
	return false
}

// Title returns the title of the window owning el, falling back to the
// foreground window and then TaskbarLabel. el stays owned by the caller.
func (c *Classifier) Title(el uia.Element) string {
	autoID := uia.StringProperty(el, uia.PropAutomationID)
	if autoID == startButtonID {
		return TaskbarLabel
	}
	if strings.HasPrefix(autoID, appIDPrefix) {
		if v, err := el.Property(uia.PropName); err == nil {
			name := ""
			if v.Type == uia.VariantString {
				name = v.Str
			}
			if before, _, found := strings.Cut(name, titleSep); found {
				return before
			}
			return name
		}
	}

	if title, ok := ancestorWindowTitle(el); ok {
		return title
	}

	if c.gw != nil {
		if title, err := c.gw.ForegroundWindowTitle(); err == nil && title != "" {
			return title
		}
	}
	return TaskbarLabel
}

// ancestorWindowTitle walks up from el's parent to the first Window
// control with a non-empty name.
func ancestorWindowTitle(el uia.Element) (string, bool) {
	current, err := el.Parent()
	for depth := 0; err == nil && depth < maxAncestors; depth++ {
		if ct, ok := uia.ControlTypeOf(current); ok && ct == uia.ControlWindow {
			if name := uia.StringProperty(current, uia.PropName); name != "" {
				current.Release()
				return name, true
			}
		}
		next, nerr := current.Parent()
		current.Release()
		current, err = next, nerr
	}
	if err == nil {
		current.Release()
	}
	return "", false
}
