package reader

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	lodelib "github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/lattice/framefile"
	"github.com/pithecene-io/lattice/lode"
	"github.com/pithecene-io/lattice/metrics"
	"github.com/pithecene-io/lattice/schema"
	"github.com/pithecene-io/lattice/types"
)

func TestSummarizeSchema(t *testing.T) {
	s, err := schema.Load("../../schema/testdata/star.yaml")
	if err != nil {
		t.Fatalf("schema.Load failed: %v", err)
	}
	sum := SummarizeSchema(s)

	if sum.Entrypoint != s.EntrypointVertexType {
		t.Errorf("expected entrypoint %q, got %q", s.EntrypointVertexType, sum.Entrypoint)
	}
	if len(sum.VertexTypes) != len(s.VertexTypes) {
		t.Fatalf("expected %d vertex types, got %d", len(s.VertexTypes), len(sum.VertexTypes))
	}
	if len(sum.EdgeTypes) != len(s.EdgeTypes) {
		t.Fatalf("expected %d edge types, got %d", len(s.EdgeTypes), len(sum.EdgeTypes))
	}
	for i, vt := range s.VertexTypes {
		row := sum.VertexTypes[i]
		if row.Name != vt.Name || row.Label != vt.LabelOrName() {
			t.Errorf("vertex type %d: expected %s/%s, got %s/%s", i, vt.Name, vt.LabelOrName(), row.Name, row.Label)
		}
		if len(row.OutEdges) != len(vt.OutEdges) {
			t.Errorf("vertex type %s: expected %d out edges, got %d", vt.Name, len(vt.OutEdges), len(row.OutEdges))
		}
	}
	for i, et := range s.EdgeTypes {
		row := sum.EdgeTypes[i]
		if row.OutVertex != et.OutVertex || row.InVertex != et.InVertex {
			t.Errorf("edge type %s: expected %s->%s, got %s->%s", et.Name, et.OutVertex, et.InVertex, row.OutVertex, row.InVertex)
		}
	}
}

func TestSummarizeFrames(t *testing.T) {
	in := &framefile.Summary{
		Root: "/out",
		Files: []framefile.FileSummary{
			{Path: "/out/vertex/user.frames", ElementType: types.ElementVertex, Label: "user", Elements: 20},
			{Path: "/out/vertex/city.frames", ElementType: types.ElementVertex, Label: "city", Elements: 40, Truncated: true},
			{Path: "/out/edge/owns.frames", ElementType: types.ElementEdge, Label: "owns", Elements: 60},
			{Path: "/out/log/log.frames", ElementType: types.ElementLog, Label: "log", Elements: 3},
		},
	}
	got := SummarizeFrames(in)

	want := &FramesSummary{
		Root:      "/out",
		Files:     4,
		Vertices:  60,
		Edges:     60,
		Logs:      3,
		Truncated: 1,
		Labels: []FrameLabelRow{
			{ElementType: "edge", Label: "owns", Elements: 60},
			{ElementType: "log", Label: "log", Elements: 3},
			{ElementType: "vertex", Label: "city", Elements: 40, Truncated: true},
			{ElementType: "vertex", Label: "user", Elements: 20},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SummarizeFrames mismatch (-want +got):\n%s", diff)
	}
}

func TestInspectFrames_MissingRoot(t *testing.T) {
	if _, err := InspectFrames(t.TempDir() + "/missing"); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestLatestMetrics(t *testing.T) {
	store := lodelib.NewMemory()
	ds, err := lode.NewDataset("lattice", func() (lodelib.Store, error) { return store, nil })
	if err != nil {
		t.Fatalf("NewDataset failed: %v", err)
	}
	ctx := t.Context()

	c := metrics.NewCollector("source", "lode", "record", "run-7")
	c.IncPhaseStarted("one")
	c.AddChunk("one", 5)
	c.IncPhaseCompleted("one", 2*time.Second)
	c.AbsorbOutputMetrics("one", map[string]int64{"written.vertex": 5})
	if err := lode.WriteMetrics(ctx, ds, c.Snapshot(), time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("WriteMetrics failed: %v", err)
	}

	snap, err := LatestMetrics(ctx, ds, "run-7")
	if err != nil {
		t.Fatalf("LatestMetrics failed: %v", err)
	}
	if snap.RunID != "run-7" || snap.Mode != "source" {
		t.Errorf("unexpected dimensions: %+v", snap)
	}
	if snap.CompletedAt != "2026-10-19T08:00:00Z" {
		t.Errorf("expected completed_at 2026-10-19T08:00:00Z, got %s", snap.CompletedAt)
	}
	if len(snap.Phases) != 1 {
		t.Fatalf("expected 1 phase, got %d", len(snap.Phases))
	}
	row := snap.Phases[0]
	if row.Chunks != 1 || row.Items != 5 || row.Vertices != 5 || row.DurationMs != 2000 {
		t.Errorf("unexpected phase row: %+v", row)
	}

	if _, err := LatestMetrics(ctx, ds, "run-8"); !errors.Is(err, lode.ErrNoMetricsFound) {
		t.Errorf("expected ErrNoMetricsFound, got %v", err)
	}
}
