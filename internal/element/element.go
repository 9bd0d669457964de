// Package element turns a screen coordinate into a described UI element.
package element

import (
	"fmt"

	"stepcap/internal/model"
	"stepcap/internal/uia"
	"stepcap/internal/window"
)

// ScreenContextFunc reports the primary display size at record creation.
type ScreenContextFunc func() model.ScreenContext

// Resolver hit-tests points and fills interaction records from the
// accessibility tree.
type Resolver struct {
	gw      uia.Gateway
	windows *window.Classifier
	screen  ScreenContextFunc
}

// NewResolver creates a resolver. screen may be nil.
func NewResolver(gw uia.Gateway, windows *window.Classifier, screen ScreenContextFunc) *Resolver {
	if screen == nil {
		screen = func() model.ScreenContext { return model.ScreenContext{} }
	}
	return &Resolver{gw: gw, windows: windows, screen: screen}
}

// Resolve describes the element at p. The returned record has position,
// screen context and element fields set; action fields, timestamps and the
// screenshot are left to the caller. A failed hit-test returns an error
// wrapping uia.ErrNoElement or the gateway error.
func (r *Resolver) Resolve(p model.Point) (model.InteractionRecord, error) {
	if r.gw == nil {
		return model.InteractionRecord{}, uia.ErrNotAvailable
	}
	hit, err := r.gw.ElementFromPoint(p)
	if err != nil {
		return model.InteractionRecord{}, fmt.Errorf("element: hit-test %s: %w", p, err)
	}
	el := preferInteractive(hit)
	defer el.Release()

	rec := r.describe(el)
	rec.SetPosition(p)
	return rec, nil
}

// FocusedPoint returns the centre of the focused element's bounding box.
func (r *Resolver) FocusedPoint() (model.Point, bool) {
	if r.gw == nil {
		return model.Point{}, false
	}
	el, err := r.gw.FocusedElement()
	if err != nil {
		return model.Point{}, false
	}
	defer el.Release()
	rect, err := uia.BoundingRect(el)
	if err != nil {
		return model.Point{}, false
	}
	return rect.Center(), true
}

// preferInteractive returns el itself when it is interactive, otherwise its
// first interactive immediate child in tree order, otherwise el. Only one
// level is searched. The caller owns the result; anything else is released.
func preferInteractive(el uia.Element) uia.Element {
	if isInteractive(el) {
		return el
	}
	child, err := el.FirstChild()
	for err == nil {
		if isInteractive(child) {
			el.Release()
			return child
		}
		next, nerr := child.NextSibling()
		child.Release()
		child, err = next, nerr
	}
	return el
}

func isInteractive(el uia.Element) bool {
	ct, ok := uia.ControlTypeOf(el)
	return ok && ct.Interactive()
}

// describe reads every property independently; a failed read leaves its
// field empty.
func (r *Resolver) describe(el uia.Element) model.InteractionRecord {
	rec := model.InteractionRecord{
		ScreenContext:  r.screen(),
		Name:           uia.StringProperty(el, uia.PropName),
		AutomationID:   uia.StringProperty(el, uia.PropAutomationID),
		ClassName:      uia.StringProperty(el, uia.PropClassName),
		Value:          uia.StringProperty(el, uia.PropValueValue),
		HelpText:       uia.StringProperty(el, uia.PropHelpText),
		State:          State(el),
		ActionType:     model.ActionClick,
		ActionCategory: model.CategoryClick,
	}
	if ct, ok := uia.ControlTypeOf(el); ok {
		rec.ControlType = ct.String()
	}
	if r.windows != nil {
		rec.WindowTitle = r.windows.Title(el)
	}
	if parent, err := el.Parent(); err == nil {
		rec.ParentName = uia.StringProperty(parent, uia.PropName)
		parent.Release()
	}
	return rec
}

// State combines the disabled, selected and toggle flags of el.
func State(el uia.Element) string {
	var disabled, selected, toggle string
	if enabled, ok := uia.BoolProperty(el, uia.PropIsEnabled); ok && !enabled {
		disabled = model.StateDisabled
	}
	if sel, ok := uia.BoolProperty(el, uia.PropSelectionItemIsSelected); ok && sel {
		selected = model.StateSelected
	}
	if ts, ok := uia.IntProperty(el, uia.PropToggleToggleState); ok {
		switch ts {
		case uia.ToggleOn:
			toggle = model.StateChecked
		case uia.ToggleIndeterminate:
			toggle = model.StateIndeterminate
		}
	}
	return model.JoinState(disabled, selected, toggle)
}
