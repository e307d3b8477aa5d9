// Package output defines the Output and Writer contracts and a generic
// implementation that pairs an encoder with a batch sink under a write
// policy.
//
// Write policies:
//   - strict: each element is encoded and written through immediately
//   - buffered: elements are batched per writer and flushed at a record or
//     byte threshold, on Flush, and on Close
//
// Log and noop elements may be dropped under backpressure. Vertices and
// edges are never dropped; a writer that cannot accept one returns an error.
package output

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/lattice/types"
)

// Output hands out writers keyed by element type and label.
// Implementations are safe for concurrent use; writes to one shard are
// serialized by its writer.
type Output interface {
	// Writer returns the writer for a shard, creating and initializing it on
	// first use. Repeated calls return the same writer.
	Writer(ctx context.Context, elementType types.ElementType, label string) (Writer, error)
	// Metrics returns counters aggregated over all writers.
	Metrics() map[string]int64
	// DropStorage removes everything the output has persisted. Outputs that
	// cannot do this return an error matching types.ErrUnimplemented.
	DropStorage(ctx context.Context) error
	// Close flushes and closes every writer, then the underlying sink.
	Close() error
}

// Writer writes the elements of one shard.
type Writer interface {
	Init(ctx context.Context) error
	Write(ctx context.Context, e types.Emitable) error
	Flush(ctx context.Context) error
	Close() error
}

// Shard identifies one writer.
type Shard struct {
	ElementType types.ElementType
	Label       string
}

func (s Shard) String() string {
	return fmt.Sprintf("%s/%s", s.ElementType, s.Label)
}

// Sink persists batches of encoded units. WriteBatch must preserve order
// within a batch. A sink is shared by all writers of an output, so
// implementations must be safe for concurrent calls on different shards.
type Sink[T any] interface {
	WriteBatch(ctx context.Context, shard Shard, units []T) error
	Close() error
}

// HeaderSink is implemented by sinks that want the encoder's header unit
// written first in every shard.
type HeaderSink interface {
	WantsHeader() bool
}

// Dropper is implemented by sinks that can remove their persisted data.
type Dropper interface {
	Drop(ctx context.Context) error
}

// Errors.
var (
	// ErrBufferFull is returned when a buffered writer cannot accept a
	// non-droppable element because an earlier flush failed.
	ErrBufferFull = errors.New("buffer full: cannot accept non-droppable element")

	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("output closed")
)

// Router routes elements to the writer for their shard. It satisfies
// types.ElementWriter, so a whole traversal can be written through one
// Output.
type Router struct {
	output Output
}

// NewRouter wraps o.
func NewRouter(o Output) *Router {
	return &Router{output: o}
}

// Write implements types.ElementWriter.
func (r *Router) Write(ctx context.Context, e types.Emitable) error {
	w, err := r.output.Writer(ctx, e.Type, e.Label())
	if err != nil {
		return err
	}
	return w.Write(ctx, e)
}

var _ types.ElementWriter = (*Router)(nil)
