// Package driver provides the concurrency-safe sources of partitioned work
// and of unique identifiers used by pipeline workers.
//
// Both driver families signal exhaustion with ok=false, never with an error.
// Once exhausted, a driver stays exhausted.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pithecene-io/lattice/types"
)

// WorkChunkDriver hands out chunks of work. No WorkItem is ever placed in
// more than one chunk. Safe for concurrent use by many workers.
type WorkChunkDriver interface {
	Next(ctx context.Context) (types.WorkChunk, bool, error)
}

// RangeChunkDriver partitions [bottom, top) into chunks of a fixed size.
// Claims advance a single shared cursor with compare-and-swap, so contended
// workers retry instead of sleeping on a lock.
type RangeChunkDriver struct {
	bottom int64
	top    int64
	size   int64
	cursor atomic.Int64
	claims atomic.Int64
}

// NewRangeChunkDriver builds a driver over [bottom, top).
func NewRangeChunkDriver(bottom, top, chunkSize int64) (*RangeChunkDriver, error) {
	if chunkSize <= 0 {
		return nil, types.NewConfigError("chunk_size", fmt.Sprintf("must be > 0, got %d", chunkSize))
	}
	if top < bottom {
		return nil, fmt.Errorf("range chunk driver: top %d below bottom %d", top, bottom)
	}
	d := &RangeChunkDriver{bottom: bottom, top: top, size: chunkSize}
	d.cursor.Store(bottom)
	return d, nil
}

// Next claims the next chunk [start, start+size) clipped to top.
func (d *RangeChunkDriver) Next(ctx context.Context) (types.WorkChunk, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return types.WorkChunk{}, false, err
		}
		start := d.cursor.Load()
		if start >= d.top {
			return types.WorkChunk{}, false, nil
		}
		end := min(start+d.size, d.top)
		if !d.cursor.CompareAndSwap(start, end) {
			continue
		}
		d.claims.Add(1)

		items := make([]types.WorkItem, 0, end-start)
		for id := start; id < end; id++ {
			items = append(items, types.NewWorkItem(id))
		}
		return types.NewWorkChunk(items), true, nil
	}
}

// Claims returns how many chunks have been handed out.
func (d *RangeChunkDriver) Claims() int64 {
	return d.claims.Load()
}

// Sequence is an externally supplied, possibly lazy, sequence of raw work
// values. Implementations need not be safe for concurrent use.
type Sequence interface {
	Next(ctx context.Context) (any, bool, error)
}

// SequenceChunkDriver batches a Sequence into chunks. Access to the
// sequence is serialized so each element lands in exactly one chunk and
// chunks are contiguous in source order.
type SequenceChunkDriver struct {
	size int

	mu        sync.Mutex
	seq       Sequence
	exhausted bool
	err       error
	claims    int64
}

// NewSequenceChunkDriver wraps seq with chunks of chunkSize elements.
func NewSequenceChunkDriver(seq Sequence, chunkSize int) (*SequenceChunkDriver, error) {
	if seq == nil {
		return nil, errors.New("sequence chunk driver: nil sequence")
	}
	if chunkSize <= 0 {
		return nil, types.NewConfigError("chunk_size", fmt.Sprintf("must be > 0, got %d", chunkSize))
	}
	return &SequenceChunkDriver{seq: seq, size: chunkSize}, nil
}

// Next pulls up to chunkSize elements. A sequence error is sticky: it is
// returned to this caller and every later caller.
func (d *SequenceChunkDriver) Next(ctx context.Context) (types.WorkChunk, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return types.WorkChunk{}, false, d.err
	}
	if d.exhausted {
		return types.WorkChunk{}, false, nil
	}

	items := make([]types.WorkItem, 0, d.size)
	for len(items) < d.size {
		v, ok, err := d.seq.Next(ctx)
		if err != nil {
			d.err = fmt.Errorf("sequence chunk driver: %w", err)
			return types.WorkChunk{}, false, d.err
		}
		if !ok {
			d.exhausted = true
			break
		}
		items = append(items, types.NewWorkItem(v))
	}

	if len(items) == 0 {
		return types.WorkChunk{}, false, nil
	}
	d.claims++
	return types.NewWorkChunk(items), true, nil
}

// Claims returns how many chunks have been handed out.
func (d *SequenceChunkDriver) Claims() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.claims
}

// RangeSequence yields int64 values in [bottom, top). Useful as a synthetic
// id source behind a SequenceChunkDriver.
func RangeSequence(bottom, top int64) Sequence {
	next := bottom
	return sequenceFunc(func(context.Context) (any, bool, error) {
		if next >= top {
			return nil, false, nil
		}
		v := next
		next++
		return v, true, nil
	})
}

// SliceSequence yields values in order.
func SliceSequence(values ...any) Sequence {
	i := 0
	return sequenceFunc(func(context.Context) (any, bool, error) {
		if i >= len(values) {
			return nil, false, nil
		}
		v := values[i]
		i++
		return v, true, nil
	})
}

type sequenceFunc func(ctx context.Context) (any, bool, error)

func (f sequenceFunc) Next(ctx context.Context) (any, bool, error) {
	return f(ctx)
}
