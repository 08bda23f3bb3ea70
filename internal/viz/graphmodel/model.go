// Package graphmodel turns raw Cypher query results into a deduplicated
// node/edge graph ready for layout.
package graphmodel

// NodeID is the canonical textual form of a database-assigned node id.
// Numeric ids (legacy Neo4j ids) and string ids (element ids) both map here;
// a numeric-looking string id keeps its quotes, so 1 and "1" stay distinct.
type NodeID string

// Node is a graph vertex as returned by the database.
type Node struct {
	ID         NodeID         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// Label returns the first label, which decides the node's color, or ""
// when the node carries no labels.
func (n *Node) Label() string {
	if len(n.Labels) == 0 {
		return ""
	}
	return n.Labels[0]
}

// Edge is a typed relationship between two nodes of the same model.
type Edge struct {
	Source NodeID `json:"source"`
	Target NodeID `json:"target"`
	Type   string `json:"type"`
}

// Model is the normalized graph of one query result. Nodes keep first-seen
// order. The shape is fixed once built; only layout positions change later,
// and those live outside the model.
type Model struct {
	Nodes []*Node `json:"nodes"`
	Edges []Edge  `json:"edges"`

	index map[NodeID]int
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		Nodes: make([]*Node, 0),
		Edges: make([]Edge, 0),
		index: make(map[NodeID]int),
	}
}

// New builds a model from already-decoded nodes and edges. Duplicate ids
// collapse to the first occurrence. Edges are kept as given; call Prune to
// drop the ones that do not resolve.
func New(nodes []*Node, edges []Edge) *Model {
	m := NewModel()
	for _, n := range nodes {
		m.addNode(n)
	}
	m.Edges = append(m.Edges, edges...)
	return m
}

// Len returns the number of nodes.
func (m *Model) Len() int {
	return len(m.Nodes)
}

// Empty reports whether the model has no nodes.
func (m *Model) Empty() bool {
	return len(m.Nodes) == 0
}

// Index returns the position of id in Nodes.
func (m *Model) Index(id NodeID) (int, bool) {
	i, ok := m.index[id]
	return i, ok
}

// Lookup returns the node with the given id.
func (m *Model) Lookup(id NodeID) (*Node, bool) {
	i, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return m.Nodes[i], true
}

// Prune removes edges whose source or target is not in the node set and
// returns them.
func (m *Model) Prune() []Edge {
	var dropped []Edge
	kept := m.Edges[:0]
	for _, e := range m.Edges {
		_, okSource := m.index[e.Source]
		_, okTarget := m.index[e.Target]
		if okSource && okTarget {
			kept = append(kept, e)
			continue
		}
		dropped = append(dropped, e)
	}
	m.Edges = kept
	return dropped
}

// addNode appends n unless a node with the same id is already present.
// It reports whether n was added.
func (m *Model) addNode(n *Node) bool {
	if _, ok := m.index[n.ID]; ok {
		return false
	}
	if n.Labels == nil {
		n.Labels = []string{}
	}
	if n.Properties == nil {
		n.Properties = map[string]any{}
	}
	m.index[n.ID] = len(m.Nodes)
	m.Nodes = append(m.Nodes, n)
	return true
}
