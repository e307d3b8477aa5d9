package output

import (
	"context"
	"sync"
)

// StubSink is an in-memory sink that records every batch. Used by tests
// and by the "stub" output.
type StubSink[T any] struct {
	mu sync.Mutex

	// Header makes the sink request encoder headers.
	Header bool
	// ErrorOnWrite, if non-nil, is returned by WriteBatch.
	ErrorOnWrite error

	batches []StubBatch[T]
	units   map[Shard][]T
	closed  bool
	dropped int
}

// StubBatch is one recorded WriteBatch call.
type StubBatch[T any] struct {
	Shard Shard
	Units []T
}

// NewStubSink creates an empty stub sink.
func NewStubSink[T any]() *StubSink[T] {
	return &StubSink[T]{units: make(map[Shard][]T)}
}

// WriteBatch records units.
func (s *StubSink[T]) WriteBatch(_ context.Context, shard Shard, units []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	batch := append([]T(nil), units...)
	s.batches = append(s.batches, StubBatch[T]{Shard: shard, Units: batch})
	s.units[shard] = append(s.units[shard], batch...)
	return nil
}

// WantsHeader implements HeaderSink.
func (s *StubSink[T]) WantsHeader() bool {
	return s.Header
}

// Drop implements Dropper.
func (s *StubSink[T]) Drop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = nil
	s.units = make(map[Shard][]T)
	s.dropped++
	return nil
}

// Close marks the sink closed.
func (s *StubSink[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SetError sets the error returned by later writes.
func (s *StubSink[T]) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorOnWrite = err
}

// Batches returns the recorded batches in call order.
func (s *StubSink[T]) Batches() []StubBatch[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StubBatch[T](nil), s.batches...)
}

// Units returns every unit written to shard.
func (s *StubSink[T]) Units(shard Shard) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]T(nil), s.units[shard]...)
}

// Shards returns the shards that received writes.
func (s *StubSink[T]) Shards() []Shard {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Shard, 0, len(s.units))
	for shard := range s.units {
		out = append(out, shard)
	}
	return out
}

// Total returns the number of units written across all shards.
func (s *StubSink[T]) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, units := range s.units {
		n += len(units)
	}
	return n
}

// Closed reports whether Close was called.
func (s *StubSink[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Dropped returns how many times Drop was called.
func (s *StubSink[T]) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
