// Package encoder turns Emitables into serialized units.
//
// The record encoder produces a flat Record suitable for row and document
// stores. The frame encoder wraps records as length-prefixed msgpack frames
// for append-only files.
package encoder

import (
	"fmt"

	"github.com/pithecene-io/lattice/types"
)

// Encoder serializes Emitables into units of type T.
type Encoder[T any] interface {
	// Encode serializes one element.
	Encode(e types.Emitable) (T, error)
	// EncodeMetadata returns an optional header unit for a writer of the
	// given element type and label. ok is false when the encoder has none.
	EncodeMetadata(elementType types.ElementType, label string) (unit T, ok bool, err error)
	// Metadata describes the encoder.
	Metadata() map[string]string
	Close() error
}

// Record kinds.
const (
	KindElement = "element"
	KindHeader  = "header"
)

// Record is the flat serialized form of one element or writer header.
type Record struct {
	Kind        string            `json:"kind" msgpack:"kind"`
	ElementType types.ElementType `json:"element_type" msgpack:"element_type"`
	Label       string            `json:"label" msgpack:"label"`

	ID       int64  `json:"id,omitempty" msgpack:"id,omitempty"`
	IDOrigin string `json:"id_origin,omitempty" msgpack:"id_origin,omitempty"`

	From       int64  `json:"from,omitempty" msgpack:"from,omitempty"`
	FromOrigin string `json:"from_origin,omitempty" msgpack:"from_origin,omitempty"`
	FromLabel  string `json:"from_label,omitempty" msgpack:"from_label,omitempty"`
	To         int64  `json:"to,omitempty" msgpack:"to,omitempty"`
	ToOrigin   string `json:"to_origin,omitempty" msgpack:"to_origin,omitempty"`
	ToLabel    string `json:"to_label,omitempty" msgpack:"to_label,omitempty"`

	Message string `json:"message,omitempty" msgpack:"message,omitempty"`

	Properties map[string]any    `json:"properties,omitempty" msgpack:"properties,omitempty"`
	Meta       map[string]string `json:"meta,omitempty" msgpack:"meta,omitempty"`
}

// Emitable rebuilds the element carried by an element record.
func (r *Record) Emitable() (types.Emitable, error) {
	if r.Kind != KindElement {
		return types.Emitable{}, fmt.Errorf("record kind %q is not an element", r.Kind)
	}
	switch r.ElementType {
	case types.ElementVertex:
		return types.NewVertexEmitable(&types.Vertex{
			ID:         restoreID(r.IDOrigin, r.ID),
			Label:      r.Label,
			Properties: r.Properties,
		}), nil
	case types.ElementEdge:
		return types.NewEdgeEmitable(&types.Edge{
			Label:      r.Label,
			From:       restoreID(r.FromOrigin, r.From),
			To:         restoreID(r.ToOrigin, r.To),
			FromLabel:  r.FromLabel,
			ToLabel:    r.ToLabel,
			Properties: r.Properties,
		}), nil
	case types.ElementLog:
		return types.NewLogEmitable(&types.LogRecord{
			Level:   r.Label,
			Message: r.Message,
			Fields:  r.Properties,
		}), nil
	case types.ElementNoop:
		return types.NoopEmitable(), nil
	default:
		return types.Emitable{}, fmt.Errorf("unknown element type %q", r.ElementType)
	}
}

// restoreID maps an origin name back to an EmittedID. Missing origins are
// treated as source ids.
func restoreID(origin string, v int64) types.EmittedID {
	if origin == types.OriginGenerated.String() {
		return types.GeneratedID(types.NewOutputID(v))
	}
	return types.SourceID(v)
}
