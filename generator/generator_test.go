package generator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/pithecene-io/lattice/driver"
	"github.com/pithecene-io/lattice/generator"
	"github.com/pithecene-io/lattice/schema"
	"github.com/pithecene-io/lattice/types"
)

const starSchema = `
entrypointVertexType: hub
vertexTypes:
  - name: hub
    properties:
      - {name: tag, type: string, likelihood: 1.0, valueGenerator: {impl: random_string, args: {length: 8}}}
    outEdges:
      - {name: spoke, likelihood: 1.0, chancesToCreate: 5, chancesToJoin: 0}
  - name: leaf
    properties:
      - {name: tag, type: string, likelihood: 1.0, valueGenerator: {impl: random_string, args: {length: 8}}}
edgeTypes:
  - name: spoke
    outVertex: hub
    inVertex: leaf
    properties:
      - {name: weight, type: double, likelihood: 1.0, valueGenerator: {impl: random_double}}
`

func mustSchema(t *testing.T, doc string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return s
}

func mustGenerator(t *testing.T, doc string, opts ...generator.Option) *generator.Generator {
	t.Helper()
	g, err := generator.New(mustSchema(t, doc), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return g
}

func idDriver(t *testing.T, bottom, top int64) *driver.RangedIDDriver {
	t.Helper()
	d, err := driver.NewRangedIDDriver(bottom, top, driver.WithHintPassthrough())
	if err != nil {
		t.Fatalf("NewRangedIDDriver failed: %v", err)
	}
	return d
}

func collect(t *testing.T, g *generator.Generator, item types.WorkItem, ids driver.OutputIDDriver) []types.Emitable {
	t.Helper()
	s, err := g.Generate(item, ids)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	out, err := types.Collect(t.Context(), s)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	return out
}

func TestGenerate_GuaranteedFanOut(t *testing.T) {
	g := mustGenerator(t, starSchema)
	out := collect(t, g, types.NewWorkItem(int64(0)), idDriver(t, 1, 1000))

	var vertices, edges int
	for _, e := range out {
		switch e.Type {
		case types.ElementVertex:
			vertices++
			if _, ok := e.Vertex.Properties["tag"]; !ok || len(e.Vertex.Properties) != 1 {
				t.Errorf("vertex %s: expected tag property, got %v", e.Vertex.ID, e.Vertex.Properties)
			}
		case types.ElementEdge:
			edges++
			if _, ok := e.Edge.Properties["weight"].(float64); !ok {
				t.Errorf("edge: expected float weight, got %v", e.Edge.Properties)
			}
		}
	}

	if vertices != 6 {
		t.Errorf("expected 6 vertices, got %d", vertices)
	}
	if edges != 5 {
		t.Errorf("expected 5 edges, got %d", edges)
	}
}

func TestGenerate_RootKeepsWorkID(t *testing.T) {
	g := mustGenerator(t, starSchema)
	out := collect(t, g, types.NewWorkItem(int64(42)), idDriver(t, 100, 1000))

	root := out[0]
	if root.Type != types.ElementVertex || root.Vertex.Label != "hub" {
		t.Fatalf("expected hub vertex first, got %s %s", root.Type, root.Label())
	}
	if root.Vertex.ID != types.SourceID(42) {
		t.Errorf("expected root id source:42, got %s", root.Vertex.ID)
	}
	for _, e := range out[1:] {
		if e.Type == types.ElementVertex && e.Vertex.ID.Origin() != types.OriginGenerated {
			t.Errorf("expected generated id for child, got %s", e.Vertex.ID)
		}
	}
}

func TestGenerate_VertexBeforeReferencingEdge(t *testing.T) {
	g := mustGenerator(t, starSchema)
	out := collect(t, g, types.NewWorkItem(int64(0)), idDriver(t, 1, 1000))

	seen := make(map[types.EmittedID]bool)
	for _, e := range out {
		switch e.Type {
		case types.ElementVertex:
			seen[e.Vertex.ID] = true
		case types.ElementEdge:
			if !seen[e.Edge.From] || !seen[e.Edge.To] {
				t.Fatalf("edge %s->%s emitted before its endpoints", e.Edge.From, e.Edge.To)
			}
			if e.Edge.FromLabel != "hub" || e.Edge.ToLabel != "leaf" {
				t.Errorf("expected endpoint labels hub->leaf, got %s->%s", e.Edge.FromLabel, e.Edge.ToLabel)
			}
		}
	}
}

func TestGenerate_DeterministicForSeed(t *testing.T) {
	a := collect(t, mustGenerator(t, starSchema, generator.WithSeed(7)), types.NewWorkItem(int64(3)), idDriver(t, 10, 100))
	b := collect(t, mustGenerator(t, starSchema, generator.WithSeed(7)), types.NewWorkItem(int64(3)), idDriver(t, 10, 100))

	if len(a) != len(b) {
		t.Fatalf("expected equal lengths, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Properties()["tag"] != b[i].Properties()["tag"] {
			t.Errorf("element %d: expected same tag, got %v and %v", i, a[i].Properties()["tag"], b[i].Properties()["tag"])
		}
	}
}

func TestGenerate_NestedFixture(t *testing.T) {
	s, err := schema.Load("../schema/testdata/social.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	g, err := generator.New(s)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	counts := make(map[string]int)
	var vertices, edges int
	for root := range int64(3) {
		for _, e := range collect(t, g, types.NewWorkItem(root), idDriver(t, 3, 10_000)) {
			counts[e.Label()]++
			if e.Type == types.ElementVertex {
				vertices++
			} else {
				edges++
			}
		}
	}

	if vertices != 24 || edges != 21 {
		t.Errorf("expected 24 vertices and 21 edges, got %d and %d", vertices, edges)
	}
	want := map[string]int{"user": 3, "device": 9, "app": 9, "city": 3, "owns": 9, "runs": 9, "lives_in": 3}
	for label, n := range want {
		if counts[label] != n {
			t.Errorf("label %s: expected %d, got %d", label, n, counts[label])
		}
	}
}

func TestGenerate_IDsExhausted(t *testing.T) {
	g := mustGenerator(t, starSchema)
	s, err := g.Generate(types.NewWorkItem(int64(0)), idDriver(t, 1, 3))
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if _, err := types.Collect(t.Context(), s); !errors.Is(err, generator.ErrIDsExhausted) {
		t.Errorf("expected ErrIDsExhausted, got %v", err)
	}
}

func TestGenerate_ZeroLikelihoodNeverFires(t *testing.T) {
	doc := `
entrypointVertexType: a
vertexTypes:
  - name: a
    properties:
      - {name: p, likelihood: 0, valueGenerator: {impl: constant, args: {value: x}}}
    outEdges:
      - {name: ab, likelihood: 0, chancesToCreate: 4, chancesToJoin: 0}
  - name: b
edgeTypes:
  - {name: ab, outVertex: a, inVertex: b}
`
	out := collect(t, mustGenerator(t, doc), types.NewWorkItem(int64(0)), idDriver(t, 1, 10))
	if len(out) != 1 {
		t.Fatalf("expected root only, got %d elements", len(out))
	}
	if len(out[0].Vertex.Properties) != 0 {
		t.Errorf("expected no properties, got %v", out[0].Vertex.Properties)
	}
}

func TestGenerate_CyclicTypeGraphTerminates(t *testing.T) {
	doc := `
entrypointVertexType: a
vertexTypes:
  - name: a
    outEdges:
      - {name: ab, likelihood: 1, chancesToCreate: 1, chancesToJoin: 0}
  - name: b
    outEdges:
      - {name: ba, likelihood: 0.5, chancesToCreate: 1, chancesToJoin: 0}
edgeTypes:
  - {name: ab, outVertex: a, inVertex: b}
  - {name: ba, outVertex: b, inVertex: a}
`
	g := mustGenerator(t, doc, generator.WithSeed(11))
	for root := range int64(20) {
		out := collect(t, g, types.NewWorkItem(root), idDriver(t, 100, 1_000_000))
		if len(out) < 3 {
			t.Errorf("root %d: expected at least a, b and the edge, got %d elements", root, len(out))
		}
	}
}

func TestGenerate_JoinsPickRememberedVertices(t *testing.T) {
	doc := `
entrypointVertexType: a
vertexTypes:
  - name: a
    outEdges:
      - {name: ab, likelihood: 1, chancesToCreate: 0, chancesToJoin: 3}
  - name: b
edgeTypes:
  - {name: ab, outVertex: a, inVertex: b}
`
	mem := generator.NewMemory(0)
	known := map[types.EmittedID]bool{}
	for i := range int64(4) {
		id := types.GeneratedID(types.NewOutputID(500 + i))
		mem.Record("b", id)
		known[id] = true
	}

	g := mustGenerator(t, doc, generator.WithMemory(mem))
	out := collect(t, g, types.NewWorkItem(int64(0)), idDriver(t, 1, 10))

	edges := 0
	for _, e := range out {
		if e.Type != types.ElementEdge {
			continue
		}
		edges++
		if !known[e.Edge.To] {
			t.Errorf("expected join target from memory, got %s", e.Edge.To)
		}
	}
	if edges != 3 {
		t.Errorf("expected 3 join edges, got %d", edges)
	}
}

func TestGenerate_JoinsWithoutMemoryAreSkipped(t *testing.T) {
	doc := `
entrypointVertexType: a
vertexTypes:
  - name: a
    outEdges:
      - {name: aa, likelihood: 1, chancesToCreate: 0, chancesToJoin: 3}
edgeTypes:
  - {name: aa, outVertex: a, inVertex: a}
`
	out := collect(t, mustGenerator(t, doc), types.NewWorkItem(int64(0)), idDriver(t, 1, 10))
	if len(out) != 1 {
		t.Errorf("expected only the root, got %d elements", len(out))
	}
}

func TestStitch_ExpectedCount(t *testing.T) {
	doc := `
entrypointVertexType: a
stitchType: aa
stitchWeight: 2
vertexTypes:
  - name: a
edgeTypes:
  - {name: aa, outVertex: a, inVertex: a}
`
	mem := generator.NewMemory(0)
	for i := range int64(50) {
		mem.Record("a", types.SourceID(i))
	}
	g := mustGenerator(t, doc, generator.WithMemory(mem))

	out, err := types.Collect(t.Context(), g.Stitch(types.NewWorkItem(int64(1))))
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	for _, e := range out {
		if e.Type != types.ElementEdge || e.Edge.Label != "aa" {
			t.Errorf("expected aa edge, got %s %s", e.Type, e.Label())
		}
		if e.Edge.From == e.Edge.To {
			t.Errorf("expected no self loops, got %s", e.Edge.From)
		}
	}
	if len(out) > 2 || len(out) == 0 {
		t.Errorf("expected 1-2 stitch edges, got %d", len(out))
	}
}

func TestStitch_NoStitchType(t *testing.T) {
	g := mustGenerator(t, starSchema, generator.WithMemory(generator.NewMemory(0)))
	out, _ := types.Collect(t.Context(), g.Stitch(types.NewWorkItem(int64(1))))
	if len(out) != 0 {
		t.Errorf("expected no stitch edges, got %d", len(out))
	}
}

func TestExpand_ExistingVertex(t *testing.T) {
	g := mustGenerator(t, starSchema)
	v := &types.Vertex{ID: types.SourceID(9), Label: "hub"}

	out, err := types.Collect(t.Context(), types.Traverse(g.Expand(v, types.NewWorkItem(int64(9)), idDriver(t, 100, 200))))
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	var vertices, edges int
	for _, e := range out {
		if e.Type == types.ElementVertex {
			vertices++
			if e.Vertex.ID == v.ID {
				t.Error("expected the existing vertex not to be re-emitted")
			}
		} else {
			edges++
			if e.Edge.From != v.ID {
				t.Errorf("expected edges from source:9, got %s", e.Edge.From)
			}
		}
	}
	if vertices != 5 || edges != 5 {
		t.Errorf("expected 5 vertices and 5 edges, got %d and %d", vertices, edges)
	}

	unknown := &types.Vertex{ID: types.SourceID(1), Label: "ghost"}
	if e, ok, _ := g.Expand(unknown, types.NewWorkItem(int64(1)), idDriver(t, 100, 200)).Next(context.Background()); ok {
		t.Errorf("expected no expansion for unknown label, got %s", e.Type)
	}
}

func TestNew_UnknownValueGenerator(t *testing.T) {
	doc := `
entrypointVertexType: a
vertexTypes:
  - name: a
    properties:
      - {name: p, likelihood: 1, valueGenerator: {impl: nope}}
`
	if _, err := generator.New(mustSchema(t, doc)); err == nil {
		t.Error("expected error for unknown value generator")
	}
}

func leaseDriver(t *testing.T, bottom, top int64, batch int) *driver.Lease {
	t.Helper()
	return idDriver(t, bottom, top).Lease(batch)
}

func drain(t *testing.T, s types.Stream) []types.Emitable {
	t.Helper()
	out, err := types.Collect(t.Context(), s)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	return out
}

func TestVertices_OnlyVerticesFromOneSpan(t *testing.T) {
	g := mustGenerator(t, starSchema)
	root, err := g.Vertices(t.Context(), types.NewWorkItem(int64(4)), leaseDriver(t, 100, 1000, 2))
	if err != nil {
		t.Fatalf("Vertices failed: %v", err)
	}
	out := drain(t, types.Traverse(types.SliceStream(root)))

	if len(out) != 6 {
		t.Fatalf("expected 6 vertices, got %d elements", len(out))
	}
	if out[0].Vertex.ID != types.SourceID(4) {
		t.Errorf("expected root id source:4, got %s", out[0].Vertex.ID)
	}
	for i, e := range out[1:] {
		if e.Type != types.ElementVertex {
			t.Fatalf("expected only vertices, got %s", e.Type)
		}
		if want := int64(100 + i); e.Vertex.ID.Value() != want {
			t.Errorf("child %d: expected id %d, got %s", i, want, e.Vertex.ID)
		}
		if _, ok := e.Vertex.Properties["tag"]; !ok {
			t.Errorf("vertex %s: expected tag property", e.Vertex.ID)
		}
	}
}

func TestEdges_ReplayTheVertexWalk(t *testing.T) {
	doc := `
entrypointVertexType: a
vertexTypes:
  - name: a
    outEdges:
      - {name: ab, likelihood: 0.7, chancesToCreate: 2, chancesToJoin: 0}
  - name: b
    outEdges:
      - {name: ba, likelihood: 0.4, chancesToCreate: 1, chancesToJoin: 0}
edgeTypes:
  - {name: ab, outVertex: a, inVertex: b}
  - {name: ba, outVertex: b, inVertex: a}
`
	g := mustGenerator(t, doc, generator.WithSeed(3))
	ids := leaseDriver(t, 1000, 1_000_000, 4)

	labels := make(map[types.EmittedID]string)
	const roots = 30
	for root := range int64(roots) {
		v, err := g.Vertices(t.Context(), types.NewWorkItem(root), ids)
		if err != nil {
			t.Fatalf("Vertices(%d) failed: %v", root, err)
		}
		for _, e := range drain(t, types.Traverse(types.SliceStream(v))) {
			if _, dup := labels[e.Vertex.ID]; dup {
				t.Fatalf("vertex id %s minted twice", e.Vertex.ID)
			}
			labels[e.Vertex.ID] = e.Vertex.Label
		}
	}

	edges := 0
	targets := make(map[types.EmittedID]bool)
	for root := int64(roots - 1); root >= 0; root-- {
		s, err := g.Edges(types.NewWorkItem(root))
		if err != nil {
			t.Fatalf("Edges(%d) failed: %v", root, err)
		}
		for _, e := range drain(t, s) {
			if e.Type != types.ElementEdge {
				t.Fatalf("expected only edges, got %s", e.Type)
			}
			edges++
			if labels[e.Edge.From] != e.Edge.FromLabel || labels[e.Edge.To] != e.Edge.ToLabel {
				t.Errorf("edge %s->%s does not match a %s->%s vertex pair", e.Edge.From, e.Edge.To, e.Edge.FromLabel, e.Edge.ToLabel)
			}
			if targets[e.Edge.To] {
				t.Errorf("vertex %s is the target of two created edges", e.Edge.To)
			}
			targets[e.Edge.To] = true
		}
	}
	// Every non-root vertex hangs off exactly one created edge.
	if want := len(labels) - roots; edges != want {
		t.Errorf("expected %d edges, got %d", want, edges)
	}
}

func TestEdges_UnknownOrSpentRoot(t *testing.T) {
	g := mustGenerator(t, starSchema)
	if _, err := g.Edges(types.NewWorkItem(int64(1))); !errors.Is(err, generator.ErrUnknownRoot) {
		t.Fatalf("expected ErrUnknownRoot, got %v", err)
	}

	item := types.NewWorkItem(int64(2))
	if _, err := g.Vertices(t.Context(), item, leaseDriver(t, 10, 100, 8)); err != nil {
		t.Fatalf("Vertices failed: %v", err)
	}
	s, err := g.Edges(item)
	if err != nil {
		t.Fatalf("Edges failed: %v", err)
	}
	if out := drain(t, s); len(out) != 5 {
		t.Errorf("expected 5 edges, got %d", len(out))
	}
	if _, err := g.Edges(item); !errors.Is(err, generator.ErrUnknownRoot) {
		t.Errorf("expected ErrUnknownRoot for a spent root, got %v", err)
	}
}

func TestVertices_IDsExhausted(t *testing.T) {
	g := mustGenerator(t, starSchema)
	_, err := g.Vertices(t.Context(), types.NewWorkItem(int64(0)), leaseDriver(t, 1, 4, 2))
	if !errors.Is(err, generator.ErrIDsExhausted) {
		t.Errorf("expected ErrIDsExhausted, got %v", err)
	}
}

func TestEdges_AppendStitchEdges(t *testing.T) {
	doc := `
entrypointVertexType: a
stitchType: aa
stitchWeight: 1
vertexTypes:
  - name: a
edgeTypes:
  - {name: aa, outVertex: a, inVertex: a}
`
	mem := generator.NewMemory(0)
	g := mustGenerator(t, doc, generator.WithMemory(mem))
	ids := leaseDriver(t, 100, 200, 8)

	w := mem.Writer(&sliceWriter{})
	for root := range int64(10) {
		v, err := g.Vertices(t.Context(), types.NewWorkItem(root), ids)
		if err != nil {
			t.Fatalf("Vertices failed: %v", err)
		}
		if _, err := types.EmitAll(t.Context(), types.SliceStream(v), w); err != nil {
			t.Fatalf("EmitAll failed: %v", err)
		}
	}

	s, err := g.Edges(types.NewWorkItem(int64(0)))
	if err != nil {
		t.Fatalf("Edges failed: %v", err)
	}
	out := drain(t, s)
	if len(out) > 1 {
		t.Fatalf("expected at most one stitch edge, got %d", len(out))
	}
	for _, e := range out {
		if e.Edge.Label != "aa" || e.Edge.From == e.Edge.To {
			t.Errorf("expected an aa edge between two vertices, got %s %s->%s", e.Edge.Label, e.Edge.From, e.Edge.To)
		}
	}
}

func TestRand_VertexItemsKeyOnEmittedID(t *testing.T) {
	g := mustGenerator(t, starSchema, generator.WithSeed(9))
	first := func(v any) float64 {
		return g.Rand(types.NewWorkItem(v)).Float64()
	}

	a := types.NewVertexEmitable(&types.Vertex{ID: types.SourceID(5), Label: "hub"})
	b := types.NewVertexEmitable(&types.Vertex{ID: types.SourceID(5), Label: "hub"})
	if first(a) != first(b) {
		t.Error("expected equal vertices behind different pointers to share a source")
	}
	if first(&types.Vertex{ID: types.SourceID(5)}) != first(a) {
		t.Error("expected a bare vertex and its emitable to share a source")
	}

	c := types.NewVertexEmitable(&types.Vertex{ID: types.GeneratedID(types.NewOutputID(5)), Label: "hub"})
	if first(a) == first(c) {
		t.Error("expected source and generated ids with the same value to differ")
	}
	if first("k") != first("k") {
		t.Error("expected string items to be stable")
	}
}
