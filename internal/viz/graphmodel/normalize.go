package graphmodel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Record keys used by the query API to tag each result row.
const (
	NodeKey = "n"
	PathKey = "p"
)

// Reasons reported by NormalizationError.
const (
	ReasonUnrecognizedRecord = "unrecognized record shape"
	ReasonUnrecognizedResult = "unrecognized result shape"
	ReasonMalformedNode      = "malformed node"
	ReasonMalformedPath      = "malformed path"
)

// NormalizationError reports a result whose shape does not match what the
// query API is expected to return. It is a contract mismatch, not a
// transport failure.
type NormalizationError struct {
	Reason string
	// Index is the offending record, or -1 when the payload as a whole is bad.
	Index int
	Err   error
}

func (e *NormalizationError) Error() string {
	msg := "normalize: " + e.Reason
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s (record %d)", msg, e.Index)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// Record is one result row, keyed by the Cypher return alias.
type Record map[string]json.RawMessage

type rawNode struct {
	ID         json.RawMessage `json:"id"`
	Labels     []string        `json:"labels"`
	Properties map[string]any  `json:"properties"`
}

type rawRelationship struct {
	Type string `json:"type"`
}

type rawPath struct {
	Nodes         []rawNode         `json:"nodes"`
	Relationships []rawRelationship `json:"relationships"`
}

// ParseResult splits a query API response body into records. An empty body,
// JSON null and the {"message": "..."} no-results sentinel all yield zero
// records without error.
func ParseResult(payload []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, &NormalizationError{Reason: ReasonUnrecognizedResult, Index: -1, Err: err}
		}
		records := make([]Record, 0, len(items))
		for i, item := range items {
			var rec Record
			if err := json.Unmarshal(item, &rec); err != nil || rec == nil {
				return nil, &NormalizationError{Reason: ReasonUnrecognizedRecord, Index: i, Err: err}
			}
			records = append(records, rec)
		}
		return records, nil
	case '{':
		var sentinel struct {
			Message *string `json:"message"`
		}
		if err := json.Unmarshal(trimmed, &sentinel); err != nil {
			return nil, &NormalizationError{Reason: ReasonUnrecognizedResult, Index: -1, Err: err}
		}
		if sentinel.Message == nil {
			return nil, &NormalizationError{Reason: ReasonUnrecognizedResult, Index: -1}
		}
		return nil, nil
	default:
		return nil, &NormalizationError{Reason: ReasonUnrecognizedResult, Index: -1}
	}
}

// NormalizePayload parses and normalizes a raw response body.
func NormalizePayload(payload []byte) (*Model, error) {
	records, err := ParseResult(payload)
	if err != nil {
		return nil, err
	}
	return Normalize(records)
}

// Normalize converts result records into a model. Each record is either a
// node record (key "n") or a path record (key "p"); when both are present
// the path wins. The first occurrence of a node id is kept.
func Normalize(records []Record) (*Model, error) {
	m := NewModel()
	for i, rec := range records {
		if raw, ok := present(rec, PathKey); ok {
			if err := m.addPath(raw); err != nil {
				return nil, &NormalizationError{Reason: ReasonMalformedPath, Index: i, Err: err}
			}
			continue
		}
		if raw, ok := present(rec, NodeKey); ok {
			var rn rawNode
			if err := decode(raw, &rn); err != nil {
				return nil, &NormalizationError{Reason: ReasonMalformedNode, Index: i, Err: err}
			}
			n, err := rn.node()
			if err != nil {
				return nil, &NormalizationError{Reason: ReasonMalformedNode, Index: i, Err: err}
			}
			m.addNode(n)
			continue
		}
		return nil, &NormalizationError{Reason: ReasonUnrecognizedRecord, Index: i}
	}
	return m, nil
}

// addPath adds every node of the path and one edge per consecutive pair,
// typed by the relationship at the same position.
func (m *Model) addPath(raw json.RawMessage) error {
	var rp rawPath
	if err := decode(raw, &rp); err != nil {
		return err
	}
	if len(rp.Nodes) == 0 {
		return fmt.Errorf("path has no nodes")
	}
	if segments := len(rp.Nodes) - 1; len(rp.Relationships) < segments {
		return fmt.Errorf("path has %d segments but %d relationships", segments, len(rp.Relationships))
	}

	ids := make([]NodeID, 0, len(rp.Nodes))
	for _, rn := range rp.Nodes {
		n, err := rn.node()
		if err != nil {
			return err
		}
		m.addNode(n)
		ids = append(ids, n.ID)
	}
	for i := 1; i < len(ids); i++ {
		m.Edges = append(m.Edges, Edge{
			Source: ids[i-1],
			Target: ids[i],
			Type:   rp.Relationships[i-1].Type,
		})
	}
	return nil
}

func (rn rawNode) node() (*Node, error) {
	id, err := parseID(rn.ID)
	if err != nil {
		return nil, err
	}
	return &Node{ID: id, Labels: rn.Labels, Properties: rn.Properties}, nil
}

// parseID accepts a JSON number or string. A string that spells a number
// is quoted so it never shares an id with that number.
func parseID(raw json.RawMessage) (NodeID, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("node has no id")
	}
	var v any
	if err := decode(raw, &v); err != nil {
		return "", fmt.Errorf("decoding id: %w", err)
	}
	switch id := v.(type) {
	case json.Number:
		return NodeID(id.String()), nil
	case string:
		if id == "" {
			return "", fmt.Errorf("node has an empty id")
		}
		if numeric(id) {
			// Keep "1" apart from the number 1.
			return NodeID(strconv.Quote(id)), nil
		}
		return NodeID(id), nil
	default:
		return "", fmt.Errorf("unsupported id type %T", v)
	}
}

func numeric(s string) bool {
	if s[0] != '-' && (s[0] < '0' || s[0] > '9') {
		return false
	}
	return json.Valid([]byte(s))
}

func present(rec Record, key string) (json.RawMessage, bool) {
	raw, ok := rec[key]
	if !ok || len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// decode unmarshals keeping numbers as json.Number so integer properties
// survive untouched.
func decode(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
