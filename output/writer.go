package output

import (
	"context"
	"fmt"
	"sync"

	"github.com/pithecene-io/lattice/types"
)

// writer serializes all writes for one shard.
type writer[T any] struct {
	out   *EncodedOutput[T]
	shard Shard
	stats *statsRecorder

	mu       sync.Mutex
	buf      []T
	bufBytes int64
	inited   bool
	closed   bool
}

// Init writes the encoder header when the sink asks for one. Idempotent.
func (w *writer[T]) Init(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inited {
		return nil
	}
	if hs, ok := w.out.sink.(HeaderSink); ok && hs.WantsHeader() {
		header, ok, err := w.out.encoder.EncodeMetadata(w.shard.ElementType, w.shard.Label)
		if err != nil {
			return w.fail(err)
		}
		if ok {
			if err := w.out.sink.WriteBatch(ctx, w.shard, []T{header}); err != nil {
				return w.fail(err)
			}
		}
	}
	w.inited = true
	return nil
}

// Write encodes e and writes or buffers it according to the policy.
func (w *writer[T]) Write(ctx context.Context, e types.Emitable) error {
	w.stats.incReceived()
	if e.Type == types.ElementNoop {
		w.stats.incDropped()
		return nil
	}

	unit, err := w.out.encoder.Encode(e)
	if err != nil {
		return w.fail(err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return w.fail(ErrClosed)
	}

	if w.out.config.Policy != PolicyBuffered {
		w.stats.incFlush()
		if err := w.out.writeBatch(ctx, w.shard, []T{unit}); err != nil {
			return w.fail(err)
		}
		w.stats.incWritten(w.shard.ElementType, 1)
		return nil
	}

	size := w.out.size(unit)
	if !w.hasRoom(size) {
		if e.Type.Droppable() {
			w.stats.incDropped()
			w.logDrop("buffer_full")
			return nil
		}
		if err := w.flushLocked(ctx); err != nil {
			return w.fail(fmt.Errorf("%w: %v", ErrBufferFull, err))
		}
	}

	w.buf = append(w.buf, unit)
	w.bufBytes += size
	w.stats.setBuffered(int64(len(w.buf)), w.bufBytes)

	if w.atThreshold() {
		if err := w.flushLocked(ctx); err != nil {
			return w.fail(err)
		}
	}
	return nil
}

// Flush writes buffered units. On failure the buffer is kept so a later
// flush retries it.
func (w *writer[T]) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(ctx); err != nil {
		return w.fail(err)
	}
	return nil
}

// Close flushes remaining units. Further writes fail with ErrClosed.
func (w *writer[T]) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.flushLocked(context.Background()); err != nil {
		return w.fail(err)
	}
	return nil
}

// flushLocked writes the buffer as one batch. Caller must hold mu.
func (w *writer[T]) flushLocked(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	w.stats.incFlush()
	if err := w.out.writeBatch(ctx, w.shard, w.buf); err != nil {
		w.logFlushFailure(err)
		return err
	}
	w.stats.incWritten(w.shard.ElementType, int64(len(w.buf)))
	w.buf = nil
	w.bufBytes = 0
	w.stats.setBuffered(0, 0)
	return nil
}

func (w *writer[T]) hasRoom(size int64) bool {
	cfg := w.out.config
	if cfg.BufferRecords > 0 && len(w.buf) >= cfg.BufferRecords {
		return false
	}
	if cfg.BufferBytes > 0 && len(w.buf) > 0 && w.bufBytes+size > cfg.BufferBytes {
		return false
	}
	return true
}

func (w *writer[T]) atThreshold() bool {
	cfg := w.out.config
	if cfg.BufferRecords > 0 && len(w.buf) >= cfg.BufferRecords {
		return true
	}
	return cfg.BufferBytes > 0 && w.bufBytes >= cfg.BufferBytes
}

func (w *writer[T]) fail(err error) error {
	w.stats.incErrors()
	return &types.WriteError{Type: w.shard.ElementType, Label: w.shard.Label, Err: err}
}

func (w *writer[T]) logDrop(reason string) {
	if w.out.logger == nil {
		return
	}
	w.out.logger.Warn("element dropped", map[string]any{
		"element_type": string(w.shard.ElementType),
		"label":        w.shard.Label,
		"reason":       reason,
		"policy":       string(w.out.config.Policy),
	})
}

func (w *writer[T]) logFlushFailure(err error) {
	if w.out.logger == nil {
		return
	}
	w.out.logger.Error("flush failed", map[string]any{
		"output":  w.out.name,
		"shard":   w.shard.String(),
		"records": len(w.buf),
		"error":   err.Error(),
	})
}
