// Package emitter turns work items into element streams.
//
// Each worker owns one Emitter. Emitters that mint identifiers hold a
// private lease on the shared id driver and hand unused ids back on Close.
package emitter

import (
	"context"
	"fmt"

	"github.com/pithecene-io/lattice/driver"
	"github.com/pithecene-io/lattice/generator"
	"github.com/pithecene-io/lattice/types"
)

// Emitter produces the elements for one work item. The returned stream is
// not flattened: callers write it with types.EmitAll, which expands each
// element's downstream depth-first. Not safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, item types.WorkItem) (types.Stream, error)
	Close() error
}

// Generate emits the whole subgraph rooted at each numeric work item.
// The root keeps the work item's id; children mint ids from the lease.
type Generate struct {
	gen   *generator.Generator
	lease *driver.Lease
}

// NewGenerate creates a generating emitter with its own lease on ids.
func NewGenerate(gen *generator.Generator, ids *driver.RangedIDDriver, batch int) *Generate {
	return &Generate{gen: gen, lease: ids.Lease(batch)}
}

// Emit implements Emitter. The stream holds the root alone; its subgraph
// is its downstream, expanded as the caller emits.
func (e *Generate) Emit(_ context.Context, item types.WorkItem) (types.Stream, error) {
	root, err := e.gen.Root(item, e.lease)
	if err != nil {
		return nil, err
	}
	return types.SliceStream(root), nil
}

// Close releases unused ids.
func (e *Generate) Close() error {
	e.lease.Release()
	return nil
}

// Vertices emits the vertices of the subgraph rooted at each numeric work
// item and no edges. Each root's children take one contiguous span of ids
// from the lease.
type Vertices struct {
	gen   *generator.Generator
	lease *driver.Lease
}

// NewVertices creates a vertex emitter with its own lease on ids.
func NewVertices(gen *generator.Generator, ids *driver.RangedIDDriver, batch int) *Vertices {
	return &Vertices{gen: gen, lease: ids.Lease(batch)}
}

// Emit implements Emitter.
func (e *Vertices) Emit(ctx context.Context, item types.WorkItem) (types.Stream, error) {
	root, err := e.gen.Vertices(ctx, item, e.lease)
	if err != nil {
		return nil, err
	}
	return types.SliceStream(root), nil
}

// Close releases unused ids.
func (e *Vertices) Close() error {
	e.lease.Release()
	return nil
}

// Edges emits the edges of each root's subgraph, after Vertices has
// emitted its vertices, followed by the root's stitch edges.
type Edges struct {
	gen *generator.Generator
}

// NewEdges creates an edge emitter.
func NewEdges(gen *generator.Generator) *Edges {
	return &Edges{gen: gen}
}

// Emit implements Emitter.
func (e *Edges) Emit(_ context.Context, item types.WorkItem) (types.Stream, error) {
	return e.gen.Edges(item)
}

// Close implements Emitter.
func (e *Edges) Close() error { return nil }

// Stitch emits stitch edges between previously written vertices.
type Stitch struct {
	gen *generator.Generator
}

// NewStitch creates a stitching emitter.
func NewStitch(gen *generator.Generator) *Stitch {
	return &Stitch{gen: gen}
}

// Emit implements Emitter.
func (e *Stitch) Emit(_ context.Context, item types.WorkItem) (types.Stream, error) {
	return e.gen.Stitch(item), nil
}

// Close implements Emitter.
func (e *Stitch) Close() error { return nil }

// Passthrough emits source vertices unchanged.
type Passthrough struct{}

// NewPassthrough creates a pass-through emitter.
func NewPassthrough() *Passthrough {
	return &Passthrough{}
}

// Emit implements Emitter. The work item must wrap a *types.Vertex or a
// types.Emitable.
func (Passthrough) Emit(_ context.Context, item types.WorkItem) (types.Stream, error) {
	switch v := item.Value().(type) {
	case *types.Vertex:
		return types.SliceStream(types.NewVertexEmitable(v)), nil
	case types.Emitable:
		return types.SliceStream(v), nil
	default:
		return nil, fmt.Errorf("passthrough: unsupported work item %T", v)
	}
}

// Close implements Emitter.
func (Passthrough) Close() error { return nil }

// Expand emits the schema out-edges of each source vertex, creating new
// vertices with ids minted above the input id space. The source vertex
// itself is not re-emitted.
type Expand struct {
	gen   *generator.Generator
	lease *driver.Lease
}

// NewExpand creates an expanding emitter with its own lease on ids.
func NewExpand(gen *generator.Generator, ids *driver.RangedIDDriver, batch int) *Expand {
	return &Expand{gen: gen, lease: ids.Lease(batch)}
}

// Emit implements Emitter.
func (e *Expand) Emit(_ context.Context, item types.WorkItem) (types.Stream, error) {
	v, ok := item.Value().(*types.Vertex)
	if !ok {
		return nil, fmt.Errorf("expand: unsupported work item %T", item.Value())
	}
	return e.gen.Expand(v, item, e.lease), nil
}

// Close releases unused ids.
func (e *Expand) Close() error {
	e.lease.Release()
	return nil
}

var (
	_ Emitter = (*Generate)(nil)
	_ Emitter = (*Vertices)(nil)
	_ Emitter = (*Edges)(nil)
	_ Emitter = (*Stitch)(nil)
	_ Emitter = Passthrough{}
	_ Emitter = (*Expand)(nil)
)
