package types

// WorkItem wraps one raw unit of work: a numeric root id or an arbitrary
// value pulled from an external sequence. It is read-only after creation.
type WorkItem struct {
	value any
}

// NewWorkItem wraps v.
func NewWorkItem(v any) WorkItem {
	return WorkItem{value: v}
}

// Value returns the wrapped value.
func (w WorkItem) Value() any {
	return w.value
}

// ID returns the wrapped value as an int64 when it is numeric, or the
// vertex id when it wraps a source vertex.
func (w WorkItem) ID() (int64, bool) {
	switch v := w.value.(type) {
	case *Vertex:
		if v == nil {
			return 0, false
		}
		return v.ID.Value(), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float64:
		return int64(v), v == float64(int64(v))
	default:
		return 0, false
	}
}

// WorkChunk is an ordered, bounded run of WorkItems handed to exactly one
// consumer. Consumed once, then discarded.
type WorkChunk struct {
	items []WorkItem
}

// NewWorkChunk builds a chunk over items. The chunk takes ownership of the slice.
func NewWorkChunk(items []WorkItem) WorkChunk {
	return WorkChunk{items: items}
}

// Len returns the number of items in the chunk.
func (c WorkChunk) Len() int {
	return len(c.items)
}

// Items returns the chunk contents in assignment order.
// Callers must not modify the returned slice.
func (c WorkChunk) Items() []WorkItem {
	return c.items
}
