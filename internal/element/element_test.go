package element

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepcap/internal/model"
	"stepcap/internal/uia"
	"stepcap/internal/window"
)

var screen1080 = func() model.ScreenContext { return model.ScreenContext{Width: 1920, Height: 1080} }

func newResolver(tree *uia.FakeTree) *Resolver {
	return NewResolver(tree, window.NewClassifier(tree, window.DefaultSelfIdentifiers), screen1080)
}

func TestResolveButton(t *testing.T) {
	tree := uia.NewFakeTree()
	ok := uia.NewFakeNode(uia.ControlButton, "OK").
		WithAutomationID("btnOK").
		Set(uia.PropClassName, uia.StringVariant("Button")).
		Set(uia.PropHelpText, uia.StringVariant("Confirm")).
		Set(uia.PropIsEnabled, uia.BoolVariant(true))
	uia.NewFakeNode(uia.ControlWindow, "Dialog").Add(
		uia.NewFakeNode(uia.ControlPane, "Footer").Add(ok),
	)
	tree.Place(model.Point{X: 100, Y: 200}, ok)

	rec, err := newResolver(tree).Resolve(model.Point{X: 100, Y: 200})
	require.NoError(t, err)

	p, has := rec.Position()
	require.True(t, has)
	assert.Equal(t, model.Point{X: 100, Y: 200}, p)
	assert.Equal(t, "OK", rec.Name)
	assert.Equal(t, "Button", rec.ControlType)
	assert.Equal(t, "btnOK", rec.AutomationID)
	assert.Equal(t, "Button", rec.ClassName)
	assert.Equal(t, "Footer", rec.ParentName)
	assert.Equal(t, "Dialog", rec.WindowTitle)
	assert.Equal(t, "Confirm", rec.HelpText)
	assert.Equal(t, "", rec.State)
	assert.Equal(t, model.ScreenContext{Width: 1920, Height: 1080}, rec.ScreenContext)
	assert.False(t, rec.HasScreenshot(), "resolver never captures")
	assert.Equal(t, 0, tree.Outstanding())
}

func TestResolvePrefersInteractiveChild(t *testing.T) {
	tree := uia.NewFakeTree()
	text := uia.NewFakeNode(uia.ControlText, "label")
	first := uia.NewFakeNode(uia.ControlListItem, "first")
	second := uia.NewFakeNode(uia.ControlButton, "second")
	pane := uia.NewFakeNode(uia.ControlPane, "container").Add(text, first, second)
	uia.NewFakeNode(uia.ControlWindow, "App").Add(pane)
	tree.PlaceDefault(pane)

	rec, err := newResolver(tree).Resolve(model.Point{})
	require.NoError(t, err)
	assert.Equal(t, "first", rec.Name)
	assert.Equal(t, "ListItem", rec.ControlType)
	assert.Equal(t, "container", rec.ParentName)
	assert.Equal(t, 0, tree.Outstanding())
}

func TestResolveShallowSearchOnly(t *testing.T) {
	tree := uia.NewFakeTree()
	deep := uia.NewFakeNode(uia.ControlButton, "deep")
	group := uia.NewFakeNode(uia.ControlGroup, "group").Add(deep)
	pane := uia.NewFakeNode(uia.ControlPane, "container").Add(group)
	tree.PlaceDefault(pane)

	rec, err := newResolver(tree).Resolve(model.Point{})
	require.NoError(t, err)
	assert.Equal(t, "container", rec.Name, "grandchildren are not searched")
	assert.Equal(t, "Pane", rec.ControlType)
	assert.Equal(t, 0, tree.Outstanding())
}

func TestResolveInteractiveHitKept(t *testing.T) {
	tree := uia.NewFakeTree()
	menu := uia.NewFakeNode(uia.ControlMenuItem, "File").Add(uia.NewFakeNode(uia.ControlButton, "child"))
	tree.PlaceDefault(menu)

	rec, err := newResolver(tree).Resolve(model.Point{})
	require.NoError(t, err)
	assert.Equal(t, "File", rec.Name)
}

func TestResolvePropertyFailuresAreIndependent(t *testing.T) {
	tree := uia.NewFakeTree()
	boom := errors.New("property read failed")
	n := uia.NewFakeNode(uia.ControlType(60001), "odd").
		Fail(uia.PropAutomationID, boom).
		Fail(uia.PropClassName, boom).
		Set(uia.PropValueValue, uia.StringVariant("42")).
		Set(uia.PropIsEnabled, uia.BoolVariant(false))
	tree.PlaceDefault(n)
	tree.SetForeground("Foreground App")

	rec, err := newResolver(tree).Resolve(model.Point{X: 1, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, "odd", rec.Name)
	assert.Equal(t, "Unknown (60001)", rec.ControlType)
	assert.Empty(t, rec.AutomationID)
	assert.Empty(t, rec.ClassName)
	assert.Equal(t, "42", rec.Value)
	assert.Equal(t, "disabled", rec.State)
	assert.Equal(t, "Foreground App", rec.WindowTitle)
	assert.Empty(t, rec.ParentName)
}

func TestResolveNoControlType(t *testing.T) {
	tree := uia.NewFakeTree()
	tree.PlaceDefault(uia.NewFakeNode(uia.ControlButton, "x").Unset(uia.PropControlType))

	rec, err := newResolver(tree).Resolve(model.Point{})
	require.NoError(t, err)
	assert.Empty(t, rec.ControlType)
}

func TestResolveHitFailure(t *testing.T) {
	tree := uia.NewFakeTree()
	_, err := newResolver(tree).Resolve(model.Point{X: 9, Y: 9})
	assert.ErrorIs(t, err, uia.ErrNoElement)

	_, err = NewResolver(nil, nil, nil).Resolve(model.Point{})
	assert.ErrorIs(t, err, uia.ErrNotAvailable)
}

func TestState(t *testing.T) {
	tests := []struct {
		name     string
		props    map[uia.PropertyID]uia.Variant
		expected string
	}{
		{"none", nil, ""},
		{"enabled", map[uia.PropertyID]uia.Variant{uia.PropIsEnabled: uia.BoolVariant(true)}, ""},
		{"checked", map[uia.PropertyID]uia.Variant{uia.PropToggleToggleState: uia.IntVariant(uia.ToggleOn)}, "checked"},
		{"toggle off", map[uia.PropertyID]uia.Variant{uia.PropToggleToggleState: uia.IntVariant(uia.ToggleOff)}, ""},
		{"all", map[uia.PropertyID]uia.Variant{
			uia.PropIsEnabled:               uia.BoolVariant(false),
			uia.PropSelectionItemIsSelected: uia.BoolVariant(true),
			uia.PropToggleToggleState:       uia.IntVariant(uia.ToggleIndeterminate),
		}, "disabled, selected, indeterminate"},
		{"selected wrong type", map[uia.PropertyID]uia.Variant{uia.PropSelectionItemIsSelected: uia.IntVariant(1)}, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tree := uia.NewFakeTree()
			n := uia.NewFakeNode(uia.ControlCheckBox, "c")
			for id, v := range tc.props {
				n.Set(id, v)
			}
			tree.PlaceDefault(n)
			el, err := tree.ElementFromPoint(model.Point{})
			require.NoError(t, err)
			defer el.Release()
			assert.Equal(t, tc.expected, State(el))
		})
	}
}

func TestFocusedPoint(t *testing.T) {
	tree := uia.NewFakeTree()
	r := newResolver(tree)

	_, ok := r.FocusedPoint()
	assert.False(t, ok)

	tree.Focus(uia.NewFakeNode(uia.ControlEdit, "field").WithBounds(100, 50, 201, 31))
	p, ok := r.FocusedPoint()
	require.True(t, ok)
	assert.Equal(t, model.Point{X: 200, Y: 65}, p)

	tree.Focus(uia.NewFakeNode(uia.ControlEdit, "no bounds"))
	_, ok = r.FocusedPoint()
	assert.False(t, ok)
	assert.Equal(t, 0, tree.Outstanding())
}
