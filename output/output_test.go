package output_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pithecene-io/lattice/encoder"
	"github.com/pithecene-io/lattice/output"
	"github.com/pithecene-io/lattice/types"
)

func vertex(id int64, label string) types.Emitable {
	return types.NewVertexEmitable(&types.Vertex{ID: types.SourceID(id), Label: label})
}

func logLine(msg string) types.Emitable {
	return types.NewLogEmitable(&types.LogRecord{Level: "info", Message: msg})
}

func newOutput(t *testing.T, sink output.Sink[encoder.Record], cfg output.Config) *output.EncodedOutput[encoder.Record] {
	t.Helper()
	o, err := output.New("test", encoder.NewRecordEncoder(nil), sink, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return o
}

var userShard = output.Shard{ElementType: types.ElementVertex, Label: "user"}

func TestStrict_WritesThrough(t *testing.T) {
	sink := output.NewStubSink[encoder.Record]()
	o := newOutput(t, sink, output.DefaultConfig())

	w, err := o.Writer(t.Context(), types.ElementVertex, "user")
	if err != nil {
		t.Fatalf("Writer failed: %v", err)
	}
	for i := range int64(3) {
		if err := w.Write(t.Context(), vertex(i, "user")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if len(sink.Batches()) != 3 {
		t.Errorf("expected 3 batches of 1, got %d", len(sink.Batches()))
	}
	stats := o.Stats()
	if stats.Written != 3 || stats.WrittenByType[types.ElementVertex] != 3 {
		t.Errorf("expected 3 vertices written, got %+v", stats)
	}
}

func TestWriter_SameShardSameWriter(t *testing.T) {
	o := newOutput(t, output.NewStubSink[encoder.Record](), output.DefaultConfig())
	a, _ := o.Writer(t.Context(), types.ElementVertex, "user")
	b, _ := o.Writer(t.Context(), types.ElementVertex, "user")
	c, _ := o.Writer(t.Context(), types.ElementEdge, "user")
	if a != b {
		t.Error("expected the same writer for the same shard")
	}
	if a == c {
		t.Error("expected distinct writers for distinct element types")
	}
	if o.Metrics()["writers"] != 2 {
		t.Errorf("expected 2 writers, got %d", o.Metrics()["writers"])
	}
}

func TestBuffered_FlushesAtThreshold(t *testing.T) {
	sink := output.NewStubSink[encoder.Record]()
	o := newOutput(t, sink, output.Config{Policy: output.PolicyBuffered, BufferRecords: 4})

	w, _ := o.Writer(t.Context(), types.ElementVertex, "user")
	for i := range int64(10) {
		if err := w.Write(t.Context(), vertex(i, "user")); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if got := len(sink.Batches()); got != 2 {
		t.Errorf("expected 2 full batches before close, got %d", got)
	}
	if o.Stats().BufferedRecords != 2 {
		t.Errorf("expected 2 buffered, got %d", o.Stats().BufferedRecords)
	}

	if err := o.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := len(sink.Units(userShard)); got != 10 {
		t.Errorf("expected 10 units after close, got %d", got)
	}
	if !sink.Closed() {
		t.Error("expected sink to be closed")
	}
}

func TestBuffered_ExplicitFlush(t *testing.T) {
	sink := output.NewStubSink[encoder.Record]()
	o := newOutput(t, sink, output.Config{Policy: output.PolicyBuffered, BufferBytes: 1 << 20})

	w, _ := o.Writer(t.Context(), types.ElementVertex, "user")
	_ = w.Write(t.Context(), vertex(1, "user"))
	if len(sink.Batches()) != 0 {
		t.Fatal("expected nothing written before flush")
	}
	if err := w.Flush(t.Context()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(sink.Units(userShard)) != 1 {
		t.Errorf("expected 1 unit after flush, got %d", len(sink.Units(userShard)))
	}
}

func TestBuffered_DropsLogsWhenFull(t *testing.T) {
	sink := output.NewStubSink[encoder.Record]()
	o := newOutput(t, sink, output.Config{Policy: output.PolicyBuffered, BufferRecords: 2})
	w, _ := o.Writer(t.Context(), types.ElementLog, "info")

	sink.SetError(errors.New("sink down"))
	_ = w.Write(t.Context(), logLine("a"))
	if err := w.Write(t.Context(), logLine("b")); err == nil {
		t.Fatal("expected flush failure at threshold")
	}
	if err := w.Write(t.Context(), logLine("c")); err != nil {
		t.Errorf("expected droppable element to be dropped silently, got %v", err)
	}

	stats := o.Stats()
	if stats.Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", stats.Dropped)
	}
	if stats.BufferedRecords != 2 {
		t.Errorf("expected failed batch kept in buffer, got %d", stats.BufferedRecords)
	}

	sink.SetError(nil)
	if err := w.Flush(t.Context()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if stats := o.Stats(); stats.Written != 2 {
		t.Errorf("expected retained batch written on retry, got %d", stats.Written)
	}
}

func TestBuffered_RejectsGraphElementsWhenFull(t *testing.T) {
	sink := output.NewStubSink[encoder.Record]()
	o := newOutput(t, sink, output.Config{Policy: output.PolicyBuffered, BufferRecords: 1})
	w, _ := o.Writer(t.Context(), types.ElementVertex, "user")

	sink.SetError(errors.New("sink down"))
	_ = w.Write(t.Context(), vertex(1, "user"))

	err := w.Write(t.Context(), vertex(2, "user"))
	if !errors.Is(err, output.ErrBufferFull) {
		t.Fatalf("expected ErrBufferFull, got %v", err)
	}
	var writeErr *types.WriteError
	if !errors.As(err, &writeErr) || writeErr.Label != "user" {
		t.Errorf("expected WriteError for user, got %v", err)
	}
	if o.Stats().Dropped != 0 {
		t.Error("expected vertices never to be dropped")
	}
}

func TestInit_WritesHeader(t *testing.T) {
	sink := output.NewStubSink[encoder.Record]()
	sink.Header = true
	o := newOutput(t, sink, output.DefaultConfig())

	w, _ := o.Writer(t.Context(), types.ElementVertex, "user")
	_ = w.Write(t.Context(), vertex(1, "user"))

	units := sink.Units(userShard)
	if len(units) != 2 {
		t.Fatalf("expected header and element, got %d units", len(units))
	}
	if units[0].Kind != encoder.KindHeader || units[1].Kind != encoder.KindElement {
		t.Errorf("expected header first, got %s then %s", units[0].Kind, units[1].Kind)
	}
}

type plainSink struct{}

func (plainSink) WriteBatch(context.Context, output.Shard, []encoder.Record) error { return nil }
func (plainSink) Close() error                                                     { return nil }

func TestDropStorage(t *testing.T) {
	sink := output.NewStubSink[encoder.Record]()
	o := newOutput(t, sink, output.DefaultConfig())
	if err := o.DropStorage(t.Context()); err != nil {
		t.Fatalf("DropStorage failed: %v", err)
	}
	if sink.Dropped() != 1 {
		t.Errorf("expected sink drop, got %d", sink.Dropped())
	}

	plain := newOutput(t, plainSink{}, output.DefaultConfig())
	if err := plain.DropStorage(t.Context()); !errors.Is(err, types.ErrUnimplemented) {
		t.Errorf("expected ErrUnimplemented, got %v", err)
	}
}

func TestNoopElementsAreSkipped(t *testing.T) {
	sink := output.NewStubSink[encoder.Record]()
	o := newOutput(t, sink, output.DefaultConfig())
	w, _ := o.Writer(t.Context(), types.ElementNoop, "")
	if err := w.Write(t.Context(), types.NoopEmitable()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if sink.Total() != 0 {
		t.Errorf("expected nothing written, got %d", sink.Total())
	}
	if o.Stats().Dropped != 1 {
		t.Errorf("expected noop counted as dropped, got %d", o.Stats().Dropped)
	}
}

func TestWriteAfterClose(t *testing.T) {
	o := newOutput(t, output.NewStubSink[encoder.Record](), output.DefaultConfig())
	w, _ := o.Writer(t.Context(), types.ElementVertex, "user")
	if err := o.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Write(t.Context(), vertex(1, "user")); !errors.Is(err, output.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := o.Writer(t.Context(), types.ElementVertex, "user"); !errors.Is(err, output.ErrClosed) {
		t.Errorf("expected ErrClosed from Writer, got %v", err)
	}
	if err := o.Close(); err != nil {
		t.Errorf("expected second Close to be a no-op, got %v", err)
	}
}

func TestRouter_ConcurrentShards(t *testing.T) {
	sink := output.NewStubSink[encoder.Record]()
	o := newOutput(t, sink, output.Config{Policy: output.PolicyBuffered, BufferRecords: 7, RateLimit: 1_000_000})
	r := output.NewRouter(o)

	labels := []string{"user", "device", "app"}
	var wg sync.WaitGroup
	for worker := range 6 {
		wg.Go(func() {
			label := labels[worker%len(labels)]
			for i := range int64(100) {
				if err := r.Write(context.Background(), vertex(int64(worker)*1000+i, label)); err != nil {
					t.Errorf("Write failed: %v", err)
					return
				}
			}
		})
	}
	wg.Wait()
	if err := o.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if sink.Total() != 600 {
		t.Errorf("expected 600 units, got %d", sink.Total())
	}
	for _, label := range labels {
		if n := len(sink.Units(output.Shard{ElementType: types.ElementVertex, Label: label})); n != 200 {
			t.Errorf("label %s: expected 200 units, got %d", label, n)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  output.Config
		ok   bool
	}{
		{"default", output.DefaultConfig(), true},
		{"empty policy", output.Config{}, true},
		{"buffered without limits", output.Config{Policy: output.PolicyBuffered}, false},
		{"buffered with bytes", output.Config{Policy: output.PolicyBuffered, BufferBytes: 10}, true},
		{"unknown policy", output.Config{Policy: "eventual"}, false},
		{"negative rate", output.Config{RateLimit: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNoopOutput(t *testing.T) {
	o := output.NewNoop()
	r := output.NewRouter(o)
	_ = r.Write(t.Context(), vertex(1, "user"))
	_ = r.Write(t.Context(), logLine("x"))

	m := o.Metrics()
	if m["written"] != 1 || m["dropped"] != 1 || m["written.vertex"] != 1 {
		t.Errorf("unexpected metrics %v", m)
	}
	if err := o.DropStorage(t.Context()); err != nil {
		t.Errorf("expected noop DropStorage to succeed, got %v", err)
	}
}
