// Package interact turns pointer gestures into viewport changes, node pins
// and selections over a running layout.
package interact

import (
	"errors"
	"math"

	"github.com/systemshift/cypherview/internal/viz/graphmodel"
	"github.com/systemshift/cypherview/internal/viz/layout"
	"github.com/systemshift/cypherview/internal/viz/palette"
)

var (
	ErrUnknownNode = errors.New("unknown node")
	ErrUnknownEdge = errors.New("unknown edge")
	ErrNotDragging = errors.New("no drag in progress")
)

// Stroke colors for node outlines.
const (
	DefaultStroke  = "black"
	SelectedStroke = "lightblue"
)

// Options configures the controller.
type Options struct {
	MinScale float64
	MaxScale float64
	// NodeRadius is the hit radius of a node, in simulation units.
	NodeRadius float64
	// EdgeTolerance is how far from an edge line a click still selects it.
	EdgeTolerance float64
	// DeselectOnCanvasClick clears the selection when empty canvas is
	// clicked.
	DeselectOnCanvasClick bool
}

// DefaultOptions matches the stock canvas: zoom 0.1x-4x, 30 unit node
// circles and 5 unit edge strokes.
func DefaultOptions() Options {
	return Options{
		MinScale:              0.1,
		MaxScale:              4,
		NodeRadius:            30,
		EdgeTolerance:         4.5,
		DeselectOnCanvasClick: true,
	}
}

// Style is the paint of one node.
type Style struct {
	Fill   string `json:"fill"`
	Stroke string `json:"stroke"`
}

// HitKind says what a click landed on.
type HitKind string

const (
	HitNone HitKind = "none"
	HitNode HitKind = "node"
	HitEdge HitKind = "edge"
)

// Hit is the result of a click.
type Hit struct {
	Kind HitKind           `json:"kind"`
	Node graphmodel.NodeID `json:"node,omitempty"`
	Edge int               `json:"edge"`
}

// Controller owns the viewport, the current drag and the selection for one
// rendered graph. Node positions are changed only through the Pinner.
// A Controller is not safe for concurrent use.
type Controller struct {
	model  *graphmodel.Model
	pinner layout.Pinner
	colors *palette.Registry
	opts   Options

	viewport Viewport
	dragging *graphmodel.NodeID

	selectedNode *graphmodel.NodeID
	selectedEdge int

	styles []Style
}

// NewController binds a controller to a model and its simulation.
func NewController(model *graphmodel.Model, pinner layout.Pinner, colors *palette.Registry, opts Options) *Controller {
	if opts.MinScale <= 0 {
		opts.MinScale = 0.1
	}
	if opts.MaxScale < opts.MinScale {
		opts.MaxScale = math.Max(4, opts.MinScale)
	}
	if opts.NodeRadius <= 0 {
		opts.NodeRadius = 30
	}
	if opts.EdgeTolerance <= 0 {
		opts.EdgeTolerance = 4.5
	}
	c := &Controller{
		model:        model,
		pinner:       pinner,
		colors:       colors,
		opts:         opts,
		viewport:     Identity,
		selectedEdge: -1,
		styles:       make([]Style, model.Len()),
	}
	c.restyle()
	return c
}

// Viewport returns the current transform.
func (c *Controller) Viewport() Viewport {
	return c.viewport
}

// Pan moves the view by a screen-space delta.
func (c *Controller) Pan(dx, dy float64) {
	c.viewport = c.viewport.Pan(dx, dy)
}

// ZoomAt scales the view around a screen point.
func (c *Controller) ZoomAt(px, py, factor float64) {
	c.viewport = c.viewport.ZoomAt(px, py, factor, c.opts.MinScale, c.opts.MaxScale)
}

// SetViewport replaces the transform, clamping its scale.
func (c *Controller) SetViewport(v Viewport) {
	v.K = clamp(v.K, c.opts.MinScale, c.opts.MaxScale)
	c.viewport = v
}

// DragStart pins the node where it is and reheats the layout.
func (c *Controller) DragStart(id graphmodel.NodeID) error {
	x, y, ok := c.pinner.Position(id)
	if !ok {
		return ErrUnknownNode
	}
	if c.dragging != nil && *c.dragging != id {
		c.pinner.Unpin(*c.dragging)
	}
	c.pinner.Pin(id, x, y)
	c.pinner.Reheat()
	c.dragging = &id
	return nil
}

// DragMove pins the dragged node under the screen point.
func (c *Controller) DragMove(px, py float64) error {
	if c.dragging == nil {
		return ErrNotDragging
	}
	x, y := c.viewport.ToSim(px, py)
	c.pinner.Pin(*c.dragging, x, y)
	return nil
}

// DragEnd releases the dragged node and lets the layout cool.
func (c *Controller) DragEnd() error {
	if c.dragging == nil {
		return ErrNotDragging
	}
	c.pinner.Unpin(*c.dragging)
	c.pinner.Cool()
	c.dragging = nil
	return nil
}

// Dragging returns the node being dragged.
func (c *Controller) Dragging() (graphmodel.NodeID, bool) {
	if c.dragging == nil {
		return "", false
	}
	return *c.dragging, true
}

// SelectNode makes id the selection and restyles every node.
func (c *Controller) SelectNode(id graphmodel.NodeID) error {
	if _, ok := c.model.Lookup(id); !ok {
		return ErrUnknownNode
	}
	c.selectedNode = &id
	c.selectedEdge = -1
	c.restyle()
	return nil
}

// SelectEdge makes edge i the selection. Node styling is reset.
func (c *Controller) SelectEdge(i int) error {
	if i < 0 || i >= len(c.model.Edges) {
		return ErrUnknownEdge
	}
	c.selectedNode = nil
	c.selectedEdge = i
	c.restyle()
	return nil
}

// ClearSelection drops any selection.
func (c *Controller) ClearSelection() {
	c.selectedNode = nil
	c.selectedEdge = -1
	c.restyle()
}

// SelectedNode returns the selected node, if any.
func (c *Controller) SelectedNode() (graphmodel.NodeID, bool) {
	if c.selectedNode == nil {
		return "", false
	}
	return *c.selectedNode, true
}

// SelectedEdge returns the index of the selected edge, if any.
func (c *Controller) SelectedEdge() (int, bool) {
	return c.selectedEdge, c.selectedEdge >= 0
}

// Style returns the paint of node i.
func (c *Controller) Style(i int) Style {
	return c.styles[i]
}

// Click hit-tests a screen point and updates the selection: nodes first
// (topmost wins), then edges, then empty canvas.
func (c *Controller) Click(px, py float64) Hit {
	x, y := c.viewport.ToSim(px, py)

	if id, ok := c.nodeAt(x, y); ok {
		c.SelectNode(id)
		return Hit{Kind: HitNode, Node: id, Edge: -1}
	}
	if i, ok := c.edgeAt(x, y); ok {
		c.SelectEdge(i)
		return Hit{Kind: HitEdge, Edge: i}
	}
	c.ClickCanvas()
	return Hit{Kind: HitNone, Edge: -1}
}

// ClickCanvas handles a click on empty canvas.
func (c *Controller) ClickCanvas() {
	if c.opts.DeselectOnCanvasClick {
		c.ClearSelection()
	}
}

// NodeAt returns the topmost node under a screen point.
func (c *Controller) NodeAt(px, py float64) (graphmodel.NodeID, bool) {
	x, y := c.viewport.ToSim(px, py)
	return c.nodeAt(x, y)
}

func (c *Controller) nodeAt(x, y float64) (graphmodel.NodeID, bool) {
	r2 := c.opts.NodeRadius * c.opts.NodeRadius
	// Later nodes are drawn on top.
	for i := len(c.model.Nodes) - 1; i >= 0; i-- {
		id := c.model.Nodes[i].ID
		nx, ny, ok := c.pinner.Position(id)
		if !ok {
			continue
		}
		dx, dy := x-nx, y-ny
		if dx*dx+dy*dy <= r2 {
			return id, true
		}
	}
	return "", false
}

func (c *Controller) edgeAt(x, y float64) (int, bool) {
	best, bestD := -1, c.opts.EdgeTolerance
	for i, e := range c.model.Edges {
		x1, y1, ok1 := c.pinner.Position(e.Source)
		x2, y2, ok2 := c.pinner.Position(e.Target)
		if !ok1 || !ok2 {
			continue
		}
		if d := segmentDistance(x, y, x1, y1, x2, y2); d <= bestD {
			best, bestD = i, d
		}
	}
	return best, best >= 0
}

func (c *Controller) restyle() {
	for i, n := range c.model.Nodes {
		if c.selectedNode != nil && n.ID == *c.selectedNode {
			c.styles[i] = Style{Fill: palette.HighlightColor, Stroke: SelectedStroke}
			continue
		}
		c.styles[i] = Style{Fill: c.colors.ColorFor(n.Label()), Stroke: DefaultStroke}
	}
}

// segmentDistance is the distance from (px, py) to the segment a-b.
func segmentDistance(px, py, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(px-ax, py-ay)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / l2
	t = clamp(t, 0, 1)
	return math.Hypot(px-(ax+t*dx), py-(ay+t*dy))
}
