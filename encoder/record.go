package encoder

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/lattice/types"
)

// RecordEncoder encodes elements as Records. Stateless and safe for
// concurrent use.
type RecordEncoder struct {
	meta map[string]string
}

// NewRecordEncoder creates a record encoder. meta is copied into every
// header record.
func NewRecordEncoder(meta map[string]string) *RecordEncoder {
	m := map[string]string{"encoder": "record", "version": types.Version}
	for k, v := range meta {
		m[k] = v
	}
	return &RecordEncoder{meta: m}
}

// Encode implements Encoder.
func (e *RecordEncoder) Encode(el types.Emitable) (Record, error) {
	rec := Record{Kind: KindElement, ElementType: el.Type}
	switch el.Type {
	case types.ElementVertex:
		if el.Vertex == nil {
			return Record{}, errors.New("vertex element without payload")
		}
		rec.Label = el.Vertex.Label
		rec.ID = el.Vertex.ID.Value()
		rec.IDOrigin = el.Vertex.ID.Origin().String()
		rec.Properties = el.Vertex.Properties
	case types.ElementEdge:
		if el.Edge == nil {
			return Record{}, errors.New("edge element without payload")
		}
		rec.Label = el.Edge.Label
		rec.From = el.Edge.From.Value()
		rec.FromOrigin = el.Edge.From.Origin().String()
		rec.FromLabel = el.Edge.FromLabel
		rec.To = el.Edge.To.Value()
		rec.ToOrigin = el.Edge.To.Origin().String()
		rec.ToLabel = el.Edge.ToLabel
		rec.Properties = el.Edge.Properties
	case types.ElementLog:
		if el.Log == nil {
			return Record{}, errors.New("log element without payload")
		}
		rec.Label = el.Log.Level
		rec.Message = el.Log.Message
		rec.Properties = el.Log.Fields
	case types.ElementNoop:
	default:
		return Record{}, fmt.Errorf("unknown element type %q", el.Type)
	}
	return rec, nil
}

// EncodeMetadata returns a header record naming the writer's element type
// and label.
func (e *RecordEncoder) EncodeMetadata(elementType types.ElementType, label string) (Record, bool, error) {
	return Record{
		Kind:        KindHeader,
		ElementType: elementType,
		Label:       label,
		Meta:        e.Metadata(),
	}, true, nil
}

// Metadata implements Encoder.
func (e *RecordEncoder) Metadata() map[string]string {
	out := make(map[string]string, len(e.meta))
	for k, v := range e.meta {
		out[k] = v
	}
	return out
}

// Close implements Encoder.
func (e *RecordEncoder) Close() error {
	return nil
}

var _ Encoder[Record] = (*RecordEncoder)(nil)
