package graph

import (
	"fmt"
	"math"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Record is one result row in wire form, keyed by return alias.
type Record map[string]any

// Wire shapes of graph values.
type (
	NodeJSON struct {
		ID         int64          `json:"id"`
		Labels     []string       `json:"labels"`
		Properties map[string]any `json:"properties"`
	}

	RelationshipJSON struct {
		ID          int64          `json:"id"`
		Type        string         `json:"type"`
		StartNodeID int64          `json:"start_node_id"`
		EndNodeID   int64          `json:"end_node_id"`
		Properties  map[string]any `json:"properties"`
	}

	PathJSON struct {
		Nodes         []NodeJSON         `json:"nodes"`
		Relationships []RelationshipJSON `json:"relationships"`
	}
)

// Serialize converts a driver value into something encoding/json can write.
// Graph entities become NodeJSON, RelationshipJSON and PathJSON; temporal
// values become ISO-8601 strings; anything unrecognised is stringified.
func Serialize(v any) any {
	switch v := v.(type) {
	case nil, bool, string, int64, int, int32:
		return v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Sprint(v)
		}
		return v
	case dbtype.Node:
		return serializeNode(v)
	case dbtype.Relationship:
		return serializeRelationship(v)
	case dbtype.Path:
		p := PathJSON{
			Nodes:         make([]NodeJSON, len(v.Nodes)),
			Relationships: make([]RelationshipJSON, len(v.Relationships)),
		}
		for i, n := range v.Nodes {
			p.Nodes[i] = serializeNode(n)
		}
		for i, r := range v.Relationships {
			p.Relationships[i] = serializeRelationship(r)
		}
		return p
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Serialize(item)
		}
		return out
	case map[string]any:
		return serializeProps(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case dbtype.Date:
		return time.Time(v).Format(time.DateOnly)
	case dbtype.LocalDateTime:
		return time.Time(v).Format("2006-01-02T15:04:05.999999999")
	case dbtype.LocalTime:
		return time.Time(v).Format("15:04:05.999999999")
	case dbtype.Time:
		return time.Time(v).Format("15:04:05.999999999Z07:00")
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// SerializeRecord converts every value of a driver record.
func SerializeRecord(keys []string, values []any) Record {
	rec := make(Record, len(keys))
	for i, k := range keys {
		if i < len(values) {
			rec[k] = Serialize(values[i])
		}
	}
	return rec
}

//nolint:staticcheck // legacy integer ids are what the visualizer keys on
func serializeNode(n dbtype.Node) NodeJSON {
	labels := n.Labels
	if labels == nil {
		labels = []string{}
	}
	return NodeJSON{ID: n.Id, Labels: labels, Properties: serializeProps(n.Props)}
}

//nolint:staticcheck
func serializeRelationship(r dbtype.Relationship) RelationshipJSON {
	return RelationshipJSON{
		ID:          r.Id,
		Type:        r.Type,
		StartNodeID: r.StartId,
		EndNodeID:   r.EndId,
		Properties:  serializeProps(r.Props),
	}
}

func serializeProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = Serialize(v)
	}
	return out
}
