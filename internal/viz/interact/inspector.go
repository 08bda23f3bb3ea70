package interact

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/systemshift/cypherview/internal/viz/graphmodel"
)

// EmptyInspector is shown while nothing is selected.
const EmptyInspector = "Click on a node or edge to see details here."

// Field is one key/value line of the inspector.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Inspector is the detail payload for the current selection.
type Inspector struct {
	Kind   HitKind `json:"kind"`
	Fields []Field `json:"fields,omitempty"`
}

// String renders the payload as "Key: value" lines.
func (in Inspector) String() string {
	if len(in.Fields) == 0 {
		return EmptyInspector
	}
	var b strings.Builder
	for i, f := range in.Fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", f.Key, f.Value)
	}
	return b.String()
}

// Inspector describes the selected node or edge.
func (c *Controller) Inspector() Inspector {
	if c.selectedNode != nil {
		if n, ok := c.model.Lookup(*c.selectedNode); ok {
			return nodeInspector(n)
		}
	}
	if c.selectedEdge >= 0 && c.selectedEdge < len(c.model.Edges) {
		e := c.model.Edges[c.selectedEdge]
		return Inspector{Kind: HitEdge, Fields: []Field{
			{Key: "Type", Value: e.Type},
			{Key: "Source", Value: string(e.Source)},
			{Key: "Target", Value: string(e.Target)},
		}}
	}
	return Inspector{Kind: HitNone}
}

func nodeInspector(n *graphmodel.Node) Inspector {
	props, err := json.MarshalIndent(n.Properties, "", "  ")
	if err != nil {
		props = []byte(fmt.Sprint(n.Properties))
	}
	return Inspector{Kind: HitNode, Fields: []Field{
		{Key: "ID", Value: string(n.ID)},
		{Key: "Label", Value: strings.Join(n.Labels, ", ")},
		{Key: "Properties", Value: string(props)},
	}}
}
