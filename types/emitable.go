package types

import "context"

// ElementType discriminates the Emitable variants.
type ElementType string

// Emitable variants.
const (
	ElementVertex ElementType = "vertex"
	ElementEdge   ElementType = "edge"
	ElementLog    ElementType = "log"
	ElementNoop   ElementType = "noop"
)

// Droppable reports whether an output may discard elements of this type
// under backpressure. Graph elements are never droppable.
func (t ElementType) Droppable() bool {
	return t == ElementLog || t == ElementNoop
}

// Vertex is the vertex-like payload.
type Vertex struct {
	ID         EmittedID
	Label      string
	Properties map[string]any
}

// Edge is the edge-like payload. From is the out-vertex, To the in-vertex.
// FromLabel and ToLabel carry the endpoint vertex labels when known.
type Edge struct {
	Label      string
	From       EmittedID
	To         EmittedID
	FromLabel  string
	ToLabel    string
	Properties map[string]any
}

// LogRecord is the auxiliary log payload.
type LogRecord struct {
	Level   string
	Message string
	Fields  map[string]any
}

// Emitable is the unit flowing through a pipeline. Exactly one payload
// field is set, selected by Type. Emitables are transient: they are built
// lazily during traversal and dropped once written.
type Emitable struct {
	Type   ElementType
	Vertex *Vertex
	Edge   *Edge
	Log    *LogRecord

	downstream func() Stream
}

// ElementWriter writes single elements. Output writers satisfy it.
type ElementWriter interface {
	Write(ctx context.Context, e Emitable) error
}

// NewVertexEmitable wraps a vertex payload.
func NewVertexEmitable(v *Vertex) Emitable {
	return Emitable{Type: ElementVertex, Vertex: v}
}

// NewEdgeEmitable wraps an edge payload.
func NewEdgeEmitable(e *Edge) Emitable {
	return Emitable{Type: ElementEdge, Edge: e}
}

// NewLogEmitable wraps a log payload.
func NewLogEmitable(r *LogRecord) Emitable {
	return Emitable{Type: ElementLog, Log: r}
}

// NoopEmitable returns an element with no payload. Outputs count and skip it.
func NoopEmitable() Emitable {
	return Emitable{Type: ElementNoop}
}

// WithDownstream returns a copy of e whose Stream yields the elements
// produced by fn. fn is called at most once per Stream/Emit call, so
// expansion stays lazy until a consumer pulls.
func (e Emitable) WithDownstream(fn func() Stream) Emitable {
	e.downstream = fn
	return e
}

// HasDownstream reports whether e expands into further elements.
func (e Emitable) HasDownstream() bool {
	return e.downstream != nil
}

// Label returns the element label, or the log level for log records.
func (e Emitable) Label() string {
	switch e.Type {
	case ElementVertex:
		return e.Vertex.Label
	case ElementEdge:
		return e.Edge.Label
	case ElementLog:
		return e.Log.Level
	default:
		return ""
	}
}

// Properties returns the property map of a vertex or edge.
func (e Emitable) Properties() map[string]any {
	switch e.Type {
	case ElementVertex:
		return e.Vertex.Properties
	case ElementEdge:
		return e.Edge.Properties
	case ElementLog:
		return e.Log.Fields
	default:
		return nil
	}
}

// Stream yields the elements downstream of e without writing e.
func (e Emitable) Stream() Stream {
	if e.downstream == nil {
		return EmptyStream()
	}
	return e.downstream()
}

// Emit writes e through w, then returns its downstream elements so the
// caller can continue the traversal.
func (e Emitable) Emit(ctx context.Context, w ElementWriter) (Stream, error) {
	if err := w.Write(ctx, e); err != nil {
		return nil, err
	}
	return e.Stream(), nil
}
