package runtime_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pithecene-io/lattice/adapter"
	"github.com/pithecene-io/lattice/emitter"
	"github.com/pithecene-io/lattice/encoder"
	"github.com/pithecene-io/lattice/log"
	"github.com/pithecene-io/lattice/output"
	"github.com/pithecene-io/lattice/registry"
	"github.com/pithecene-io/lattice/runtime"
	"github.com/pithecene-io/lattice/schema"
	"github.com/pithecene-io/lattice/types"
)

const stitchSchema = `
entrypointVertexType: hub
stitchType: spoke
stitchWeight: 2
vertexTypes:
  - name: hub
    properties:
      - {name: tag, type: string, likelihood: 1.0, valueGenerator: {impl: random_string, args: {length: 8}}}
    outEdges:
      - {name: spoke, likelihood: 1.0, chancesToCreate: 5, chancesToJoin: 0}
  - name: leaf
edgeTypes:
  - name: spoke
    outVertex: hub
    inVertex: leaf
`

// meshSchema has no created edges: every edge is a stitch edge.
const meshSchema = `
entrypointVertexType: node
stitchType: link
stitchWeight: 1
vertexTypes:
  - name: node
edgeTypes:
  - {name: link, outVertex: node, inVertex: node}
`

var errBoom = errors.New("boom")

func loadSchema(t *testing.T, name string) *schema.Schema {
	t.Helper()
	s, err := schema.Load(filepath.Join("..", "schema", "testdata", name))
	if err != nil {
		t.Fatalf("Load(%s) failed: %v", name, err)
	}
	return s
}

func parseSchema(t *testing.T, doc string) *schema.Schema {
	t.Helper()
	s, err := schema.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return s
}

func runMeta(id string) *types.RunMeta {
	return &types.RunMeta{RunID: id, Seed: 42}
}

// captureRegistry adds a "capture" output writing records to sink. The
// sink outlives each phase's output.
func captureRegistry(sink *output.StubSink[encoder.Record]) *registry.Registry {
	reg := registry.Default()
	reg.RegisterOutput("capture", func(_ context.Context, _ *registry.Registry, env registry.Env) (output.Output, error) {
		meta := map[string]string{"phase": env.Phase.String()}
		return output.New[encoder.Record]("capture", encoder.NewRecordEncoder(meta), sink, output.DefaultConfig())
	})
	return reg
}

func newController(t *testing.T, cfg runtime.Config) *runtime.Controller {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	c, err := runtime.NewController(cfg)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	return c
}

// failingEmitter emits one vertex per item and fails on item bad.
type failingEmitter struct {
	bad int64
}

func (e failingEmitter) Emit(_ context.Context, item types.WorkItem) (types.Stream, error) {
	id, _ := item.ID()
	if id == e.bad {
		return nil, errBoom
	}
	v := &types.Vertex{ID: types.SourceID(id), Label: "node"}
	return types.SliceStream(types.NewVertexEmitable(v)), nil
}

func (failingEmitter) Close() error { return nil }

// gateEmitter blocks every item until gate is closed.
type gateEmitter struct {
	gate <-chan struct{}
}

func (e gateEmitter) Emit(ctx context.Context, _ types.WorkItem) (types.Stream, error) {
	select {
	case <-e.gate:
		return types.EmptyStream(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (gateEmitter) Close() error { return nil }

func registerEmitter(reg *registry.Registry, name string, em emitter.Emitter) {
	reg.RegisterEmitter(name, func(registry.Env) (emitter.Emitter, error) {
		return em, nil
	})
}

// recordingAdapter keeps every published event.
type recordingAdapter struct {
	mu     sync.Mutex
	events []adapter.PhaseCompletedEvent
	err    error
}

func (a *recordingAdapter) Publish(_ context.Context, event *adapter.PhaseCompletedEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, *event)
	return a.err
}

func (a *recordingAdapter) Close() error { return nil }

func (a *recordingAdapter) Events() []adapter.PhaseCompletedEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]adapter.PhaseCompletedEvent(nil), a.events...)
}
