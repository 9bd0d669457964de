// Package uia is the accessibility gateway: hit-testing screen points to UI
// Automation elements, reading their properties and walking the control
// view of the tree.
//
// Platform support:
// - Windows with cgo: UIAutomation COM client (CUIAutomation)
// - Everything else: Open returns ErrNotAvailable
//
// Resolution logic lives elsewhere and is written against the Gateway and
// Element interfaces so it can run against FakeTree in tests.
package uia

import (
	"errors"
	"fmt"

	"stepcap/internal/model"
)

var (
	// ErrNotAvailable is returned when UI Automation cannot be initialized.
	ErrNotAvailable = errors.New("uia: ui automation not available on this platform")

	// ErrNoElement is returned when a hit-test, focus query or tree walk
	// finds nothing.
	ErrNoElement = errors.New("uia: no element")

	// ErrReleased is returned when a released element is used.
	ErrReleased = errors.New("uia: element released")
)

// PropertyID is a UIA_*PropertyId value.
type PropertyID int32

const (
	PropBoundingRectangle       PropertyID = 30001
	PropControlType             PropertyID = 30003
	PropName                    PropertyID = 30005
	PropHasKeyboardFocus        PropertyID = 30008
	PropIsKeyboardFocusable     PropertyID = 30009
	PropIsEnabled               PropertyID = 30010
	PropAutomationID            PropertyID = 30011
	PropClassName               PropertyID = 30012
	PropHelpText                PropertyID = 30013
	PropValueValue              PropertyID = 30045
	PropSelectionItemIsSelected PropertyID = 30079
	PropToggleToggleState       PropertyID = 30086
)

// Toggle states reported by PropToggleToggleState.
const (
	ToggleOff           int32 = 0
	ToggleOn            int32 = 1
	ToggleIndeterminate int32 = 2
)

// VariantType tags the populated field of a Variant.
type VariantType uint8

const (
	VariantEmpty VariantType = iota
	VariantString
	VariantInt
	VariantBool
	VariantFloats
)

// Variant is the subset of COM VARIANT values the gateway converts.
// Anything else arrives as VariantEmpty.
type Variant struct {
	Type   VariantType
	Str    string
	Int    int32
	Bool   bool
	Floats []float64
}

// StringVariant, IntVariant, BoolVariant and FloatsVariant build variants.
func StringVariant(s string) Variant {
	return Variant{Type: VariantString, Str: s}
}

func IntVariant(i int32) Variant {
	return Variant{Type: VariantInt, Int: i}
}

func BoolVariant(b bool) Variant {
	return Variant{Type: VariantBool, Bool: b}
}

func FloatsVariant(f ...float64) Variant {
	return Variant{Type: VariantFloats, Floats: f}
}

// Element is a live accessibility element. Callers own every Element they
// receive and must Release it.
type Element interface {
	// Property reads the current value of a property.
	Property(id PropertyID) (Variant, error)

	// Parent, FirstChild and NextSibling walk the control view; they
	// return ErrNoElement at the edge of the tree.
	Parent() (Element, error)
	FirstChild() (Element, error)
	NextSibling() (Element, error)

	Release()
}

// Gateway is the process-wide accessibility capability.
type Gateway interface {
	// ElementFromPoint hit-tests a screen point.
	ElementFromPoint(p model.Point) (Element, error)

	// FocusedElement returns the element with keyboard focus.
	FocusedElement() (Element, error)

	// ForegroundWindowTitle returns the title text of the foreground
	// top-level window, empty if it has none.
	ForegroundWindowTitle() (string, error)

	Close() error
}

// Rect is an element bounding rectangle in screen pixels.
type Rect struct {
	Left, Top, Width, Height float64
}

// Center returns the midpoint. Each component is truncated to an integer
// before halving.
func (r Rect) Center() model.Point {
	return model.Point{
		X: int(r.Left) + int(r.Width)/2,
		Y: int(r.Top) + int(r.Height)/2,
	}
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// StringProperty reads a BSTR property. Failures and non-string values
// yield "".
func StringProperty(el Element, id PropertyID) string {
	v, err := el.Property(id)
	if err != nil || v.Type != VariantString {
		return ""
	}
	return v.Str
}

// IntProperty reads an I4 property.
func IntProperty(el Element, id PropertyID) (int32, bool) {
	v, err := el.Property(id)
	if err != nil || v.Type != VariantInt {
		return 0, false
	}
	return v.Int, true
}

// BoolProperty reads a VARIANT_BOOL property.
func BoolProperty(el Element, id PropertyID) (value, ok bool) {
	v, err := el.Property(id)
	if err != nil || v.Type != VariantBool {
		return false, false
	}
	return v.Bool, true
}

// BoundingRect reads PropBoundingRectangle.
func BoundingRect(el Element) (Rect, error) {
	v, err := el.Property(PropBoundingRectangle)
	if err != nil {
		return Rect{}, err
	}
	if v.Type != VariantFloats || len(v.Floats) != 4 {
		return Rect{}, fmt.Errorf("uia: bounding rectangle has %d values", len(v.Floats))
	}
	return Rect{Left: v.Floats[0], Top: v.Floats[1], Width: v.Floats[2], Height: v.Floats[3]}, nil
}

// ControlTypeOf reads the control type id of an element.
func ControlTypeOf(el Element) (ControlType, bool) {
	id, ok := IntProperty(el, PropControlType)
	return ControlType(id), ok
}
