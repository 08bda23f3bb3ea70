package interact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/systemshift/cypherview/internal/viz/graphmodel"
	"github.com/systemshift/cypherview/internal/viz/layout"
	"github.com/systemshift/cypherview/internal/viz/palette"
)

type point struct{ x, y float64 }

// fakePinner records every call and keeps positions in a map.
type fakePinner struct {
	pos     map[graphmodel.NodeID]point
	pinned  map[graphmodel.NodeID]bool
	reheats int
	cools   int
}

func newFakePinner(pos map[graphmodel.NodeID]point) *fakePinner {
	return &fakePinner{pos: pos, pinned: map[graphmodel.NodeID]bool{}}
}

func (f *fakePinner) Pin(id graphmodel.NodeID, x, y float64) bool {
	if _, ok := f.pos[id]; !ok {
		return false
	}
	f.pos[id] = point{x, y}
	f.pinned[id] = true
	return true
}

func (f *fakePinner) Unpin(id graphmodel.NodeID) bool {
	if _, ok := f.pos[id]; !ok {
		return false
	}
	delete(f.pinned, id)
	return true
}

func (f *fakePinner) Position(id graphmodel.NodeID) (float64, float64, bool) {
	p, ok := f.pos[id]
	return p.x, p.y, ok
}

func (f *fakePinner) Reheat() { f.reheats++ }
func (f *fakePinner) Cool()   { f.cools++ }

var _ layout.Pinner = (*fakePinner)(nil)

func fixture(t *testing.T, opts Options) (*Controller, *fakePinner) {
	t.Helper()
	m := graphmodel.New(
		[]*graphmodel.Node{
			{ID: "a", Labels: []string{"Person"}, Properties: map[string]any{"name": "Ada"}},
			{ID: "b", Labels: []string{"Person"}},
			{ID: "c", Labels: []string{"City"}},
		},
		[]graphmodel.Edge{
			{Source: "a", Target: "b", Type: "KNOWS"},
			{Source: "b", Target: "c", Type: "LIVES_IN"},
		},
	)
	p := newFakePinner(map[graphmodel.NodeID]point{
		"a": {0, 0},
		"b": {200, 0},
		"c": {200, 200},
	})
	colors := palette.NewRegistry(palette.Options{Size: 16, Seed: 1}, zap.NewNop())
	return NewController(m, p, colors, opts), p
}

func TestDragPinsAndReleases(t *testing.T) {
	c, p := fixture(t, DefaultOptions())

	require.NoError(t, c.DragStart("a"))
	assert.True(t, p.pinned["a"])
	assert.Equal(t, 1, p.reheats)
	id, ok := c.Dragging()
	require.True(t, ok)
	assert.Equal(t, graphmodel.NodeID("a"), id)

	c.Pan(10, 20)
	c.ZoomAt(10, 20, 2)
	require.NoError(t, c.DragMove(110, 220))
	// screen (110, 220) with k=2 at (10, 20) maps to sim (50, 100).
	assert.Equal(t, point{50, 100}, p.pos["a"])

	require.NoError(t, c.DragEnd())
	assert.False(t, p.pinned["a"])
	assert.Equal(t, 1, p.cools)
	_, ok = c.Dragging()
	assert.False(t, ok)
}

func TestDragErrors(t *testing.T) {
	c, _ := fixture(t, DefaultOptions())

	assert.ErrorIs(t, c.DragStart("missing"), ErrUnknownNode)
	assert.ErrorIs(t, c.DragMove(1, 1), ErrNotDragging)
	assert.ErrorIs(t, c.DragEnd(), ErrNotDragging)
}

func TestSecondDragStartReleasesFirst(t *testing.T) {
	c, p := fixture(t, DefaultOptions())

	require.NoError(t, c.DragStart("a"))
	require.NoError(t, c.DragStart("b"))
	assert.False(t, p.pinned["a"])
	assert.True(t, p.pinned["b"])
}

func TestViewportNeverMovesNodes(t *testing.T) {
	c, p := fixture(t, DefaultOptions())

	c.Pan(300, -40)
	c.ZoomAt(500, 500, 3)
	assert.Equal(t, point{0, 0}, p.pos["a"])
	assert.Equal(t, point{200, 200}, p.pos["c"])
	assert.Empty(t, p.pinned)
}

func TestZoomClamped(t *testing.T) {
	c, _ := fixture(t, DefaultOptions())

	for i := 0; i < 20; i++ {
		c.ZoomAt(0, 0, 2)
	}
	assert.Equal(t, 4.0, c.Viewport().K)
	for i := 0; i < 40; i++ {
		c.ZoomAt(0, 0, 0.5)
	}
	assert.Equal(t, 0.1, c.Viewport().K)

	c.SetViewport(Viewport{K: 100})
	assert.Equal(t, 4.0, c.Viewport().K)
}

func TestSelectNodeRestyles(t *testing.T) {
	c, _ := fixture(t, DefaultOptions())
	person := c.Style(0).Fill
	assert.Equal(t, person, c.Style(1).Fill, "same label, same color")
	assert.NotEqual(t, person, c.Style(2).Fill)

	require.NoError(t, c.SelectNode("b"))
	assert.Equal(t, Style{Fill: palette.HighlightColor, Stroke: SelectedStroke}, c.Style(1))
	assert.Equal(t, Style{Fill: person, Stroke: DefaultStroke}, c.Style(0))

	require.NoError(t, c.SelectNode("a"))
	assert.Equal(t, Style{Fill: person, Stroke: DefaultStroke}, c.Style(1), "previous selection reset")
	assert.Equal(t, palette.HighlightColor, c.Style(0).Fill)

	assert.ErrorIs(t, c.SelectNode("zzz"), ErrUnknownNode)
}

func TestSelectionIsExclusive(t *testing.T) {
	c, _ := fixture(t, DefaultOptions())

	require.NoError(t, c.SelectNode("a"))
	require.NoError(t, c.SelectEdge(1))
	_, ok := c.SelectedNode()
	assert.False(t, ok)
	i, ok := c.SelectedEdge()
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, DefaultStroke, c.Style(0).Stroke)

	require.NoError(t, c.SelectNode("c"))
	_, ok = c.SelectedEdge()
	assert.False(t, ok)

	assert.ErrorIs(t, c.SelectEdge(5), ErrUnknownEdge)
}

func TestClickHitTesting(t *testing.T) {
	tests := []struct {
		name string
		x, y float64
		want Hit
	}{
		{"node center", 0, 0, Hit{Kind: HitNode, Node: "a", Edge: -1}},
		{"inside node radius", 20, 20, Hit{Kind: HitNode, Node: "a", Edge: -1}},
		{"on edge line", 100, 3, Hit{Kind: HitEdge, Edge: 0}},
		{"second edge", 202, 100, Hit{Kind: HitEdge, Edge: 1}},
		{"empty canvas", 50, 150, Hit{Kind: HitNone, Edge: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := fixture(t, DefaultOptions())
			assert.Equal(t, tt.want, c.Click(tt.x, tt.y))
		})
	}
}

func TestClickRespectsViewport(t *testing.T) {
	c, _ := fixture(t, DefaultOptions())
	c.Pan(100, 100)
	c.ZoomAt(100, 100, 2)

	// Node c at sim (200, 200) is at screen (500, 500).
	hit := c.Click(500, 500)
	assert.Equal(t, HitNode, hit.Kind)
	assert.Equal(t, graphmodel.NodeID("c"), hit.Node)
}

func TestCanvasClickSelection(t *testing.T) {
	c, _ := fixture(t, DefaultOptions())
	require.NoError(t, c.SelectNode("a"))
	c.Click(50, 150)
	_, ok := c.SelectedNode()
	assert.False(t, ok, "cleared by default")

	keep := DefaultOptions()
	keep.DeselectOnCanvasClick = false
	c, _ = fixture(t, keep)
	require.NoError(t, c.SelectNode("a"))
	c.ClickCanvas()
	id, ok := c.SelectedNode()
	assert.True(t, ok)
	assert.Equal(t, graphmodel.NodeID("a"), id)
}

func TestInspector(t *testing.T) {
	c, _ := fixture(t, DefaultOptions())
	assert.Equal(t, EmptyInspector, c.Inspector().String())

	require.NoError(t, c.SelectNode("a"))
	assert.Equal(t, "ID: a\nLabel: Person\nProperties: {\n  \"name\": \"Ada\"\n}", c.Inspector().String())

	require.NoError(t, c.SelectEdge(0))
	in := c.Inspector()
	assert.Equal(t, HitEdge, in.Kind)
	assert.Equal(t, "Type: KNOWS\nSource: a\nTarget: b", in.String())
}

func TestControllerOverRealSimulation(t *testing.T) {
	m := graphmodel.New(
		[]*graphmodel.Node{{ID: "x"}, {ID: "y"}},
		[]graphmodel.Edge{{Source: "x", Target: "y", Type: "R"}},
	)
	sim := layout.New(m, layout.DefaultOptions())
	c := NewController(m, sim, palette.NewRegistry(palette.DefaultOptions(), zap.NewNop()), DefaultOptions())

	require.NoError(t, c.DragStart("x"))
	require.NoError(t, c.DragMove(10, 10))
	for i := 0; i < 10; i++ {
		sim.Tick()
	}
	x, y, _ := sim.Position("x")
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 10.0, y)
	require.NoError(t, c.DragEnd())
	assert.False(t, sim.Body(0).Fixed)
}
