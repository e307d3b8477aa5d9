package output

import (
	"context"
	"io"
	"sync"

	"golang.org/x/time/rate"

	"github.com/pithecene-io/lattice/encoder"
	"github.com/pithecene-io/lattice/iox"
	"github.com/pithecene-io/lattice/log"
	"github.com/pithecene-io/lattice/types"
)

// EncodedOutput is an Output that encodes elements with an Encoder and
// persists them through a Sink under the configured write policy.
type EncodedOutput[T any] struct {
	name    string
	encoder encoder.Encoder[T]
	sink    Sink[T]
	config  Config
	limiter *rate.Limiter
	size    func(T) int64
	logger  *log.Logger

	mu      sync.Mutex
	writers map[Shard]*writer[T]
	closed  bool
}

// Option customizes an EncodedOutput.
type Option[T any] func(*EncodedOutput[T])

// WithSizer overrides the per-unit byte estimate used by the buffered policy.
func WithSizer[T any](fn func(T) int64) Option[T] {
	return func(o *EncodedOutput[T]) { o.size = fn }
}

// New builds an EncodedOutput. name identifies the output in logs and errors.
func New[T any](name string, enc encoder.Encoder[T], sink Sink[T], cfg Config, opts ...Option[T]) (*EncodedOutput[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyStrict
	}
	o := &EncodedOutput[T]{
		name:    name,
		encoder: enc,
		sink:    sink,
		config:  cfg,
		limiter: cfg.limiter(),
		size:    func(u T) int64 { return estimateSize(u) },
		logger:  cfg.Logger,
		writers: make(map[Shard]*writer[T]),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Writer implements Output.
func (o *EncodedOutput[T]) Writer(ctx context.Context, elementType types.ElementType, label string) (Writer, error) {
	shard := Shard{ElementType: elementType, Label: label}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}
	if w, ok := o.writers[shard]; ok {
		return w, nil
	}

	w := &writer[T]{out: o, shard: shard, stats: newStatsRecorder()}
	if err := w.Init(ctx); err != nil {
		return nil, err
	}
	o.writers[shard] = w
	return w, nil
}

// Stats aggregates the stats of every writer.
func (o *EncodedOutput[T]) Stats() Stats {
	o.mu.Lock()
	writers := make([]*writer[T], 0, len(o.writers))
	for _, w := range o.writers {
		writers = append(writers, w)
	}
	o.mu.Unlock()

	total := Stats{WrittenByType: make(map[types.ElementType]int64)}
	for _, w := range writers {
		total.add(w.stats.snapshot())
	}
	return total
}

// Metrics implements Output.
func (o *EncodedOutput[T]) Metrics() map[string]int64 {
	m := o.Stats().Map()
	o.mu.Lock()
	m["writers"] = int64(len(o.writers))
	o.mu.Unlock()
	return m
}

// DropStorage implements Output.
func (o *EncodedOutput[T]) DropStorage(ctx context.Context) error {
	d, ok := o.sink.(Dropper)
	if !ok {
		return types.Unimplemented(o.name, "DropStorage")
	}
	return d.Drop(ctx)
}

// EncoderMetadata returns the encoder description.
func (o *EncodedOutput[T]) EncoderMetadata() map[string]string {
	return o.encoder.Metadata()
}

// Close implements Output. Every writer is flushed even if one fails.
func (o *EncodedOutput[T]) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	closers := make([]io.Closer, 0, len(o.writers)+2)
	for _, w := range o.writers {
		closers = append(closers, w)
	}
	o.mu.Unlock()

	return iox.CloseAll(append(closers, o.encoder, o.sink)...)
}

// writeBatch applies the rate limit, then hands units to the sink.
func (o *EncodedOutput[T]) writeBatch(ctx context.Context, shard Shard, units []T) error {
	if o.limiter != nil {
		burst := o.limiter.Burst()
		for n := len(units); n > 0; n -= burst {
			if err := o.limiter.WaitN(ctx, min(n, burst)); err != nil {
				return err
			}
		}
	}
	return o.sink.WriteBatch(ctx, shard, units)
}

// estimateSize is a rough per-unit size used for buffer accounting.
func estimateSize(u any) int64 {
	switch v := u.(type) {
	case []byte:
		return int64(len(v))
	case encoder.Record:
		return 128 + int64(len(v.Properties))*48
	case *encoder.Record:
		return 128 + int64(len(v.Properties))*48
	default:
		return 256
	}
}

var _ Output = (*EncodedOutput[[]byte])(nil)
