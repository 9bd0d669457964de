package uia

import (
	"sync"

	"stepcap/internal/model"
)

// FakeNode is one element of a FakeTree.
type FakeNode struct {
	Props    map[PropertyID]Variant
	Errs     map[PropertyID]error
	Children []*FakeNode

	parent *FakeNode
}

// NewFakeNode creates a node with a control type and name.
func NewFakeNode(ct ControlType, name string) *FakeNode {
	return &FakeNode{
		Props: map[PropertyID]Variant{
			PropControlType: IntVariant(int32(ct)),
			PropName:        StringVariant(name),
		},
	}
}

// Set assigns a property value.
func (n *FakeNode) Set(id PropertyID, v Variant) *FakeNode {
	n.Props[id] = v
	return n
}

// Fail makes reads of a property return err.
func (n *FakeNode) Fail(id PropertyID, err error) *FakeNode {
	if n.Errs == nil {
		n.Errs = make(map[PropertyID]error)
	}
	n.Errs[id] = err
	return n
}

// Unset removes a property so reads return VariantEmpty.
func (n *FakeNode) Unset(id PropertyID) *FakeNode {
	delete(n.Props, id)
	return n
}

// WithAutomationID sets PropAutomationID.
func (n *FakeNode) WithAutomationID(id string) *FakeNode {
	return n.Set(PropAutomationID, StringVariant(id))
}

// WithBounds sets PropBoundingRectangle.
func (n *FakeNode) WithBounds(left, top, width, height float64) *FakeNode {
	return n.Set(PropBoundingRectangle, FloatsVariant(left, top, width, height))
}

// Add appends children in tree order.
func (n *FakeNode) Add(children ...*FakeNode) *FakeNode {
	for _, c := range children {
		c.parent = n
		n.Children = append(n.Children, c)
	}
	return n
}

// FakeTree is an in-memory Gateway for tests.
type FakeTree struct {
	mu         sync.Mutex
	hits       map[model.Point]*FakeNode
	fallback   *FakeNode
	focused    *FakeNode
	foreground string

	// HitErr, FocusErr and ForegroundErr force the matching calls to fail.
	HitErr        error
	FocusErr      error
	ForegroundErr error

	// OnHit runs before every hit-test.
	OnHit func(model.Point)

	hitCount    int
	outstanding int
	closed      bool
}

// NewFakeTree returns an empty tree. Hit-tests miss until Place or
// PlaceDefault is called.
func NewFakeTree() *FakeTree {
	return &FakeTree{hits: make(map[model.Point]*FakeNode)}
}

// Place makes hit-tests at p return n.
func (f *FakeTree) Place(p model.Point, n *FakeNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[p] = n
}

// PlaceDefault makes hit-tests at unplaced points return n.
func (f *FakeTree) PlaceDefault(n *FakeNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = n
}

// Focus sets the element returned by FocusedElement.
func (f *FakeTree) Focus(n *FakeNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.focused = n
}

// SetForeground sets the foreground window title.
func (f *FakeTree) SetForeground(title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.foreground = title
}

// HitCount returns the number of hit-tests performed.
func (f *FakeTree) HitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hitCount
}

// Outstanding returns the number of elements handed out and not released.
func (f *FakeTree) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outstanding
}

// Closed reports whether Close was called.
func (f *FakeTree) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *FakeTree) ElementFromPoint(p model.Point) (Element, error) {
	if f.OnHit != nil {
		f.OnHit(p)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hitCount++
	if f.HitErr != nil {
		return nil, f.HitErr
	}
	n, ok := f.hits[p]
	if !ok {
		n = f.fallback
	}
	return f.wrap(n)
}

func (f *FakeTree) FocusedElement() (Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FocusErr != nil {
		return nil, f.FocusErr
	}
	return f.wrap(f.focused)
}

func (f *FakeTree) ForegroundWindowTitle() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ForegroundErr != nil {
		return "", f.ForegroundErr
	}
	return f.foreground, nil
}

func (f *FakeTree) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// wrap must be called with f.mu held.
func (f *FakeTree) wrap(n *FakeNode) (Element, error) {
	if n == nil {
		return nil, ErrNoElement
	}
	f.outstanding++
	return &fakeElement{tree: f, node: n}, nil
}

func (f *FakeTree) element(n *FakeNode) (Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wrap(n)
}

type fakeElement struct {
	tree     *FakeTree
	node     *FakeNode
	released bool
}

func (e *fakeElement) Property(id PropertyID) (Variant, error) {
	if e.released {
		return Variant{}, ErrReleased
	}
	if err := e.node.Errs[id]; err != nil {
		return Variant{}, err
	}
	return e.node.Props[id], nil
}

func (e *fakeElement) Parent() (Element, error) {
	if e.released {
		return nil, ErrReleased
	}
	return e.tree.element(e.node.parent)
}

func (e *fakeElement) FirstChild() (Element, error) {
	if e.released {
		return nil, ErrReleased
	}
	if len(e.node.Children) == 0 {
		return nil, ErrNoElement
	}
	return e.tree.element(e.node.Children[0])
}

func (e *fakeElement) NextSibling() (Element, error) {
	if e.released {
		return nil, ErrReleased
	}
	p := e.node.parent
	if p == nil {
		return nil, ErrNoElement
	}
	for i, c := range p.Children {
		if c == e.node && i+1 < len(p.Children) {
			return e.tree.element(p.Children[i+1])
		}
	}
	return nil, ErrNoElement
}

func (e *fakeElement) Release() {
	if e.released {
		return
	}
	e.released = true
	e.tree.mu.Lock()
	e.tree.outstanding--
	e.tree.mu.Unlock()
}
