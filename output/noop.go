package output

import (
	"context"
	"sync"

	"github.com/pithecene-io/lattice/types"
)

// NoopOutput accepts every element and persists nothing. Graph elements
// are counted as written; log and noop elements as dropped.
type NoopOutput struct {
	mu      sync.Mutex
	writers map[Shard]*noopWriter
	closed  bool
}

// NewNoop creates a no-op output.
func NewNoop() *NoopOutput {
	return &NoopOutput{writers: make(map[Shard]*noopWriter)}
}

// Writer implements Output.
func (o *NoopOutput) Writer(_ context.Context, elementType types.ElementType, label string) (Writer, error) {
	shard := Shard{ElementType: elementType, Label: label}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}
	w, ok := o.writers[shard]
	if !ok {
		w = &noopWriter{shard: shard, stats: newStatsRecorder()}
		o.writers[shard] = w
	}
	return w, nil
}

// Stats aggregates writer stats.
func (o *NoopOutput) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := Stats{WrittenByType: make(map[types.ElementType]int64)}
	for _, w := range o.writers {
		total.add(w.stats.snapshot())
	}
	return total
}

// Metrics implements Output.
func (o *NoopOutput) Metrics() map[string]int64 {
	return o.Stats().Map()
}

// DropStorage implements Output. There is nothing to drop.
func (o *NoopOutput) DropStorage(context.Context) error {
	return nil
}

// Close implements Output.
func (o *NoopOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

type noopWriter struct {
	shard Shard
	stats *statsRecorder
}

func (w *noopWriter) Init(context.Context) error { return nil }

func (w *noopWriter) Write(_ context.Context, e types.Emitable) error {
	w.stats.incReceived()
	if e.Type.Droppable() {
		w.stats.incDropped()
		return nil
	}
	w.stats.incWritten(e.Type, 1)
	return nil
}

func (w *noopWriter) Flush(context.Context) error { return nil }

func (w *noopWriter) Close() error { return nil }
