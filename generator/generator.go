// Package generator synthesizes graph elements from a schema.
//
// Generation is lazy. A root vertex carries a downstream stream that, when
// pulled, yields each newly created child vertex (with its own subtree)
// followed by the edge that references it, so every vertex is written
// before any edge that points at it.
//
// A root can also be generated in two passes. Vertices walks the subgraph
// and yields only its vertices, minting child ids from one contiguous span
// per root. Edges replays the same walk later and yields only the edges,
// reusing the recorded span so every endpoint matches.
package generator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sync"

	"github.com/pithecene-io/lattice/driver"
	"github.com/pithecene-io/lattice/schema"
	"github.com/pithecene-io/lattice/types"
)

// ErrIDsExhausted is returned when a child vertex needs an id and the
// OutputIDDriver has none left.
var ErrIDsExhausted = errors.New("generator: output id driver exhausted")

// ErrUnknownRoot is returned by Edges for a work item whose vertices were
// never generated by this Generator.
var ErrUnknownRoot = errors.New("generator: no vertex span recorded for root")

// ErrSpanMismatch is returned when an edge walk creates more children than
// the vertex walk recorded for the root.
var ErrSpanMismatch = errors.New("generator: walk left its recorded span")

// Generator expands work items into subgraphs. It is immutable after New
// and safe for concurrent use; per-root state lives in the returned streams.
type Generator struct {
	schema   *schema.Schema
	vertices map[string]*vertexPlan
	edges    map[string]*edgePlan
	stitch   *edgePlan
	memory   *Memory
	seed     uint64

	// work item key -> rootSpan, from Vertices until Edges.
	spans sync.Map
}

// rootSpan records where one root's vertices landed.
type rootSpan struct {
	root types.EmittedID
	span driver.Range
}

type propertyPlan struct {
	name       string
	typ        string
	likelihood float64
	value      ValueFunc
}

type vertexPlan struct {
	name  string
	label string
	props []propertyPlan
	out   []outEdgePlan
}

type edgePlan struct {
	name  string
	label string
	from  *vertexPlan
	to    *vertexPlan
	props []propertyPlan
}

type outEdgePlan struct {
	edge       *edgePlan
	likelihood float64
	create     int
	join       int
}

// Option configures a Generator.
type Option func(*Generator)

// WithMemory enables joins and stitching against m.
func WithMemory(m *Memory) Option {
	return func(g *Generator) { g.memory = m }
}

// WithSeed fixes the base seed. Each root derives its own source from it.
func WithSeed(seed uint64) Option {
	return func(g *Generator) { g.seed = seed }
}

// New compiles s. Unknown value generators are reported here, before any
// work starts.
func New(s *schema.Schema, opts ...Option) (*Generator, error) {
	g := &Generator{
		schema:   s,
		vertices: make(map[string]*vertexPlan, len(s.VertexTypes)),
		edges:    make(map[string]*edgePlan, len(s.EdgeTypes)),
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, vt := range s.VertexTypes {
		props, err := compileProperties("vertex "+vt.Name, vt.Properties)
		if err != nil {
			return nil, err
		}
		g.vertices[vt.Name] = &vertexPlan{name: vt.Name, label: vt.LabelOrName(), props: props}
	}
	for _, et := range s.EdgeTypes {
		props, err := compileProperties("edge "+et.Name, et.Properties)
		if err != nil {
			return nil, err
		}
		from, ok := g.vertices[et.OutVertex]
		if !ok {
			return nil, &schema.ReferenceError{Owner: "edge " + et.Name, Field: "outVertex", Name: et.OutVertex}
		}
		to, ok := g.vertices[et.InVertex]
		if !ok {
			return nil, &schema.ReferenceError{Owner: "edge " + et.Name, Field: "inVertex", Name: et.InVertex}
		}
		g.edges[et.Name] = &edgePlan{name: et.Name, label: et.LabelOrName(), from: from, to: to, props: props}
	}
	for _, vt := range s.VertexTypes {
		plan := g.vertices[vt.Name]
		for _, oe := range vt.OutEdges {
			edge, ok := g.edges[oe.Name]
			if !ok {
				return nil, &schema.ReferenceError{Owner: "vertex " + vt.Name, Field: "outEdges", Name: oe.Name}
			}
			plan.out = append(plan.out, outEdgePlan{
				edge:       edge,
				likelihood: oe.Likelihood,
				create:     max(oe.ChancesToCreate, 0),
				join:       max(oe.ChancesToJoin, 0),
			})
		}
	}
	if _, ok := g.vertices[s.EntrypointVertexType]; !ok {
		return nil, &schema.ReferenceError{Owner: "schema", Field: "entrypointVertexType", Name: s.EntrypointVertexType}
	}
	if s.StitchType != "" {
		g.stitch = g.edges[s.StitchType]
	}
	return g, nil
}

func compileProperties(owner string, props []schema.Property) ([]propertyPlan, error) {
	plans := make([]propertyPlan, 0, len(props))
	for _, p := range props {
		fn, err := CompileValueGenerator(p.ValueGenerator)
		if err != nil {
			return nil, fmt.Errorf("%s property %s: %w", owner, p.Name, err)
		}
		plans = append(plans, propertyPlan{name: p.Name, typ: p.Type, likelihood: p.Likelihood, value: fn})
	}
	return plans, nil
}

// Schema returns the compiled schema.
func (g *Generator) Schema() *schema.Schema {
	return g.schema
}

// Memory returns the stitch memory, or nil.
func (g *Generator) Memory() *Memory {
	return g.memory
}

// Random sources drawn per root. Shape decisions have their own source so
// a pass that skips properties or joins still walks the same subgraph.
const (
	saltShape uint64 = iota
	saltVertexProps
	saltEdgeProps
	saltJoins
	saltStitch
)

// Rand returns the deterministic shape source for a work item.
func (g *Generator) Rand(item types.WorkItem) *rand.Rand {
	return g.source(item, saltShape)
}

func (g *Generator) source(item types.WorkItem, salt uint64) *rand.Rand {
	return rand.New(rand.NewPCG(g.seed, itemKey(item)^(salt*0x9e3779b97f4a7c15)))
}

// itemKey identifies a work item stably across passes and processes.
// Vertices hash their emitted id, so pointer identity never leaks in.
func itemKey(item types.WorkItem) uint64 {
	switch v := item.Value().(type) {
	case *types.Vertex:
		if v != nil {
			return hashIDs(v.ID)
		}
	case types.Emitable:
		switch {
		case v.Type == types.ElementVertex && v.Vertex != nil:
			return hashIDs(v.Vertex.ID)
		case v.Type == types.ElementEdge && v.Edge != nil:
			return hashIDs(v.Edge.From, v.Edge.To)
		}
	}
	if v, ok := item.ID(); ok {
		return uint64(v)
	}
	h := fnv.New64a()
	_, _ = fmt.Fprint(h, item.Value())
	return h.Sum64()
}

func hashIDs(ids ...types.EmittedID) uint64 {
	h := fnv.New64a()
	var buf [9]byte
	for _, id := range ids {
		buf[0] = byte(id.Origin())
		binary.BigEndian.PutUint64(buf[1:], uint64(id.Value()))
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}

// pass selects what a walk materializes.
type pass uint8

const (
	// passAll yields vertices and edges, minting child ids one by one.
	passAll pass = iota
	// passShape yields bare vertices to count the children of a root.
	passShape
	// passVertices yields vertices with ids from the root's span.
	passVertices
	// passEdges yields bare vertices and edges with ids from the root's
	// span. Callers filter the vertices out.
	passEdges
)

// walk is the per-root generation state. Not shared across roots.
type walk struct {
	g    *Generator
	pass pass

	shape  *rand.Rand
	vprops *rand.Rand
	eprops *rand.Rand
	joins  *rand.Rand

	ids     driver.OutputIDDriver
	span    driver.Range
	created int64
}

func (g *Generator) newWalk(item types.WorkItem, p pass) *walk {
	return &walk{
		g:      g,
		pass:   p,
		shape:  g.source(item, saltShape),
		vprops: g.source(item, saltVertexProps),
		eprops: g.source(item, saltEdgeProps),
		joins:  g.source(item, saltJoins),
	}
}

// rootID mints the entrypoint id. A passthrough driver hands the work id
// back, which keeps it as a source id.
func rootID(item types.WorkItem, ids driver.OutputIDDriver) (types.EmittedID, error) {
	out, ok := ids.NextWithHint(item)
	if !ok {
		return types.EmittedID{}, ErrIDsExhausted
	}
	if v, isNum := item.ID(); isNum && v == out.Value() {
		return types.SourceID(v), nil
	}
	return types.GeneratedID(out), nil
}

// Root builds the entrypoint vertex for item. The vertex id comes from
// ids.NextWithHint, so a passthrough driver keeps the work id as a source
// id. Pulling the vertex's Stream generates the rest of the subgraph.
func (g *Generator) Root(item types.WorkItem, ids driver.OutputIDDriver) (types.Emitable, error) {
	id, err := rootID(item, ids)
	if err != nil {
		return types.Emitable{}, err
	}
	w := g.newWalk(item, passAll)
	w.ids = ids
	return w.vertex(g.vertices[g.schema.EntrypointVertexType], id), nil
}

// Generate returns the whole subgraph for item as a depth-first stream.
func (g *Generator) Generate(item types.WorkItem, ids driver.OutputIDDriver) (types.Stream, error) {
	root, err := g.Root(item, ids)
	if err != nil {
		return nil, err
	}
	return types.Traverse(types.SliceStream(root)), nil
}

// Vertices builds the entrypoint vertex for item whose downstream yields
// the vertices of its subgraph and no edges. The subgraph is walked once
// up front to size a contiguous span of child ids, which is recorded so
// Edges can replay the walk.
func (g *Generator) Vertices(ctx context.Context, item types.WorkItem, ids driver.SpanDriver) (types.Emitable, error) {
	plan := g.vertices[g.schema.EntrypointVertexType]
	id, err := rootID(item, ids)
	if err != nil {
		return types.Emitable{}, err
	}

	n, err := g.count(ctx, item, plan, id)
	if err != nil {
		return types.Emitable{}, err
	}
	span, ok := ids.Span(n)
	if !ok {
		return types.Emitable{}, ErrIDsExhausted
	}
	g.spans.Store(itemKey(item), rootSpan{root: id, span: span})

	w := g.newWalk(item, passVertices)
	w.span = span
	return w.vertex(plan, id), nil
}

// count walks the shape of item's subgraph and returns how many child
// vertices it creates.
func (g *Generator) count(ctx context.Context, item types.WorkItem, plan *vertexPlan, root types.EmittedID) (int64, error) {
	w := g.newWalk(item, passShape)
	s := types.Traverse(types.SliceStream(w.vertex(plan, root)))
	for {
		_, ok, err := s.Next(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			return w.created, nil
		}
	}
}

// Edges yields the edges of the subgraph Vertices produced for item,
// followed by item's stitch edges. Each root's edges can be taken once.
func (g *Generator) Edges(item types.WorkItem) (types.Stream, error) {
	v, ok := g.spans.LoadAndDelete(itemKey(item))
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownRoot, item.Value())
	}
	rs := v.(rootSpan)

	w := g.newWalk(item, passEdges)
	w.span = rs.span
	root := w.vertex(g.vertices[g.schema.EntrypointVertexType], rs.root)
	walked := types.Filter(types.SliceStream(root), func(e types.Emitable) bool {
		return e.Type == types.ElementEdge
	})
	return types.Concat(walked, g.Stitch(item)), nil
}

// Expand yields the out-edges of an existing vertex, creating new vertices
// as the schema requires, without re-emitting v itself. Vertices whose label
// matches no vertex type expand to nothing.
func (g *Generator) Expand(v *types.Vertex, item types.WorkItem, ids driver.OutputIDDriver) types.Stream {
	vt, ok := g.schema.VertexTypeByLabel(v.Label)
	if !ok {
		return types.EmptyStream()
	}
	w := g.newWalk(item, passAll)
	w.ids = ids
	return w.expand(g.vertices[vt.Name], v.ID)
}

// Stitch yields the stitch edges for one work item: StitchWeight edges on
// average, between vertices picked from memory. It yields nothing when no
// stitch type or memory is configured. Endpoints are picked when the
// stream is first pulled.
func (g *Generator) Stitch(item types.WorkItem) types.Stream {
	if g.stitch == nil || g.memory == nil || g.schema.StitchWeight <= 0 {
		return types.EmptyStream()
	}
	var edges types.Stream
	return types.StreamFunc(func(ctx context.Context) (types.Emitable, bool, error) {
		if edges == nil {
			edges = types.SliceStream(g.stitchEdges(item)...)
		}
		return edges.Next(ctx)
	})
}

func (g *Generator) stitchEdges(item types.WorkItem) []types.Emitable {
	r := g.source(item, saltStitch)
	w := &walk{g: g, eprops: r}

	whole, frac := math.Modf(g.schema.StitchWeight)
	n := int(whole)
	if r.Float64() < frac {
		n++
	}

	edges := make([]types.Emitable, 0, n)
	for range n {
		from, ok := g.memory.Pick(g.stitch.from.label, r)
		if !ok {
			break
		}
		to, ok := g.memory.Pick(g.stitch.to.label, r)
		if !ok {
			break
		}
		if from == to {
			continue
		}
		edges = append(edges, w.edge(g.stitch, from, to))
	}
	return edges
}

func (w *walk) vertex(plan *vertexPlan, id types.EmittedID) types.Emitable {
	v := &types.Vertex{ID: id, Label: plan.label}
	if w.pass == passAll || w.pass == passVertices {
		v.Properties = properties(w.vprops, plan.props)
	}
	e := types.NewVertexEmitable(v)
	if len(plan.out) == 0 {
		return e
	}
	return e.WithDownstream(func() types.Stream { return w.expand(plan, id) })
}

func (w *walk) edge(plan *edgePlan, from, to types.EmittedID) types.Emitable {
	return types.NewEdgeEmitable(&types.Edge{
		Label:      plan.label,
		From:       from,
		To:         to,
		FromLabel:  plan.from.label,
		ToLabel:    plan.to.label,
		Properties: properties(w.eprops, plan.props),
	})
}

func (w *walk) edges() bool {
	return w.pass == passAll || w.pass == passEdges
}

// child returns the id of the next created vertex.
func (w *walk) child() (types.EmittedID, error) {
	n := w.created
	w.created++
	switch w.pass {
	case passAll:
		oid, ok := w.ids.Next()
		if !ok {
			return types.EmittedID{}, ErrIDsExhausted
		}
		return types.GeneratedID(oid), nil
	case passShape:
		return types.GeneratedID(types.NewOutputID(n)), nil
	default:
		if n >= w.span.Size() {
			return types.EmittedID{}, fmt.Errorf("%w: child %d of %s", ErrSpanMismatch, n, w.span)
		}
		return types.GeneratedID(types.NewOutputID(w.span.Bottom + n)), nil
	}
}

// expand lazily walks plan.out, one out-edge rule at a time.
func (w *walk) expand(plan *vertexPlan, id types.EmittedID) types.Stream {
	next := 0
	var pending []types.Emitable
	return types.StreamFunc(func(ctx context.Context) (types.Emitable, bool, error) {
		for len(pending) == 0 {
			if next >= len(plan.out) {
				return types.Emitable{}, false, nil
			}
			if err := ctx.Err(); err != nil {
				return types.Emitable{}, false, err
			}
			var err error
			pending, err = w.fire(plan.out[next], id)
			if err != nil {
				return types.Emitable{}, false, err
			}
			next++
		}
		e := pending[0]
		pending = pending[1:]
		return e, true, nil
	})
}

// fire decides whether rule applies to the vertex and, if so, returns the
// created children (each followed by its edge) and then the join edges.
// Children get their ids before any of their subtrees is walked.
func (w *walk) fire(rule outEdgePlan, from types.EmittedID) ([]types.Emitable, error) {
	if !flip(w.shape, rule.likelihood) {
		return nil, nil
	}

	out := make([]types.Emitable, 0, 2*rule.create+rule.join)
	for range rule.create {
		child, err := w.child()
		if err != nil {
			return nil, err
		}
		out = append(out, w.vertex(rule.edge.to, child))
		if w.edges() {
			out = append(out, w.edge(rule.edge, from, child))
		}
	}

	if w.edges() && w.g.memory != nil {
		for range rule.join {
			target, ok := w.g.memory.Pick(rule.edge.to.label, w.joins)
			if !ok {
				break
			}
			if target == from {
				continue
			}
			out = append(out, w.edge(rule.edge, from, target))
		}
	}
	return out, nil
}

func properties(r *rand.Rand, plans []propertyPlan) map[string]any {
	props := make(map[string]any, len(plans))
	for _, p := range plans {
		if flip(r, p.likelihood) {
			props[p.name] = coerce(p.typ, p.value(r))
		}
	}
	return props
}

// flip returns true with probability p. p >= 1 never consumes randomness.
func flip(r *rand.Rand, p float64) bool {
	switch {
	case p >= 1:
		return true
	case p <= 0:
		return false
	default:
		return r.Float64() < p
	}
}
