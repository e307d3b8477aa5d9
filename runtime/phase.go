package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/lattice/driver"
	"github.com/pithecene-io/lattice/emitter"
	"github.com/pithecene-io/lattice/log"
	"github.com/pithecene-io/lattice/metrics"
	"github.com/pithecene-io/lattice/output"
	"github.com/pithecene-io/lattice/types"
)

// RunningPhase is the handle of a started phase.
//
// Workers share the chunk driver and the output; each owns an emitter. A
// worker that fails aborts its current chunk and stops. Its siblings keep
// running until the driver is exhausted, and the phase is marked failed.
type RunningPhase struct {
	controller *Controller
	phase      types.Phase
	logger     *log.Logger

	chunks   driver.WorkChunkDriver
	ids      *driver.RangedIDDriver
	emitters []emitter.Emitter
	output   output.Output

	ctx     context.Context
	started time.Time
	claimed atomic.Int64
	items   atomic.Int64

	done chan struct{}
	err  error

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	closeErr  error
	snap      metrics.PhaseSnapshot
}

// Phase returns the phase this handle runs.
func (rp *RunningPhase) Phase() types.Phase {
	return rp.phase
}

func (rp *RunningPhase) start(ctx context.Context) {
	rp.ctx = ctx
	rp.started = time.Now()
	rp.controller.collector.IncPhaseStarted(rp.phase.String())
	rp.logger.Info("phase started", nil)

	var sink types.ElementWriter = output.NewRouter(rp.output)
	if mem := rp.controller.gen.Memory(); mem != nil {
		sink = mem.Writer(sink)
	}

	var g errgroup.Group
	for i, em := range rp.emitters {
		g.Go(func() error {
			return rp.work(ctx, i, em, sink)
		})
	}
	go func() {
		rp.err = g.Wait()
		close(rp.done)
	}()
}

// work claims chunks until the driver is exhausted. Items of a chunk are
// processed in order.
func (rp *RunningPhase) work(ctx context.Context, worker int, em emitter.Emitter, w types.ElementWriter) error {
	for {
		chunk, ok, err := rp.chunks.Next(ctx)
		if err != nil {
			return rp.fail(worker, fmt.Errorf("claim chunk: %w", err))
		}
		if !ok {
			return nil
		}
		rp.claimed.Add(1)

		for _, item := range chunk.Items() {
			stream, err := em.Emit(ctx, item)
			if err != nil {
				return rp.fail(worker, fmt.Errorf("emit: %w", err))
			}
			if _, err := types.EmitAll(ctx, stream, w); err != nil {
				return rp.fail(worker, err)
			}
		}
		rp.items.Add(int64(chunk.Len()))
		rp.controller.collector.AddChunk(rp.phase.String(), chunk.Len())
	}
}

func (rp *RunningPhase) fail(worker int, err error) error {
	var we *types.WriteError
	if errors.As(err, &we) && we.Phase == 0 {
		we.Phase = rp.phase
	}
	rp.logger.Error("worker failed", map[string]any{
		"worker": worker,
		"error":  err.Error(),
	})
	return fmt.Errorf("phase %s: worker %d: %w", rp.phase, worker, err)
}

// Done is closed once every worker has returned.
func (rp *RunningPhase) Done() <-chan struct{} {
	return rp.done
}

// Await blocks until every worker has returned. It returns the first
// worker error.
func (rp *RunningPhase) Await() error {
	<-rp.done
	return rp.err
}

// Close waits for the workers, then closes the emitters and the output.
// It records the phase outcome and lets the next phase start. Safe to
// call more than once.
func (rp *RunningPhase) Close() error {
	rp.closeOnce.Do(rp.close)
	rp.mu.Lock()
	defer rp.mu.Unlock()
	return rp.closeErr
}

func (rp *RunningPhase) close() {
	runErr := rp.Await()
	closeErr := errors.Join(closeEmitters(rp.emitters), rp.output.Close())

	c := rp.controller
	name := rp.phase.String()
	elapsed := time.Since(rp.started)
	outMetrics := rp.output.Metrics()

	snap := metrics.PhaseSnapshot{
		ChunksClaimed:  rp.claimed.Load(),
		ItemsProcessed: rp.items.Load(),
		Duration:       elapsed,
	}
	snap.AbsorbOutput(outMetrics)
	c.collector.AbsorbOutputMetrics(name, outMetrics)
	if rp.ids != nil {
		c.addIDsIssued(rp.ids.Issued())
	}

	ok := runErr == nil && closeErr == nil
	fields := map[string]any{
		"chunks":      snap.ChunksClaimed,
		"items":       snap.ItemsProcessed,
		"vertices":    snap.VerticesWritten,
		"edges":       snap.EdgesWritten,
		"duration_ms": elapsed.Milliseconds(),
	}
	if ok {
		snap.Outcome = metrics.OutcomeCompleted
		c.collector.IncPhaseCompleted(name, elapsed)
		rp.logger.Info("phase completed", fields)
	} else {
		snap.Outcome = metrics.OutcomeFailed
		c.collector.IncPhaseFailed(name, elapsed)
		fields["error"] = errors.Join(runErr, closeErr).Error()
		rp.logger.Error("phase failed", fields)
	}

	rp.mu.Lock()
	rp.closed = true
	rp.closeErr = closeErr
	rp.snap = snap
	rp.mu.Unlock()

	c.publish(rp.ctx, rp, snap, errors.Join(runErr, closeErr))
	c.release(rp.phase, ok)
}

// Metrics returns the phase counters. Before Close they are live and the
// outcome is running.
func (rp *RunningPhase) Metrics() metrics.PhaseSnapshot {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if rp.closed {
		return rp.snap
	}
	snap := metrics.PhaseSnapshot{
		ChunksClaimed:  rp.claimed.Load(),
		ItemsProcessed: rp.items.Load(),
		Duration:       time.Since(rp.started),
		Outcome:        metrics.OutcomeRunning,
	}
	snap.AbsorbOutput(rp.output.Metrics())
	return snap
}

// Output returns the phase output.
func (rp *RunningPhase) Output() output.Output {
	return rp.output
}
