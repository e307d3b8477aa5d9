// Package runtime runs the phases of a graph movement run.
//
// A Controller owns the per-run phase state. RunPhase wires a shared chunk
// driver, one emitter per worker and a shared output, then starts the
// workers. Phase two may only start once phase one has completed and its
// handle has been closed.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pithecene-io/lattice/adapter"
	"github.com/pithecene-io/lattice/driver"
	"github.com/pithecene-io/lattice/emitter"
	"github.com/pithecene-io/lattice/generator"
	"github.com/pithecene-io/lattice/log"
	"github.com/pithecene-io/lattice/metrics"
	"github.com/pithecene-io/lattice/registry"
	"github.com/pithecene-io/lattice/source"
	"github.com/pithecene-io/lattice/types"
)

// publishTimeout bounds each adapter publish.
const publishTimeout = 30 * time.Second

// Controller runs the phases of one run. Each phase runs at most once.
type Controller struct {
	config    Config
	logger    *log.Logger
	collector *metrics.Collector
	gen       *generator.Generator

	mu        sync.Mutex
	inFlight  bool
	started   map[types.Phase]bool
	completed map[types.Phase]bool
	idsIssued int64
}

// NewController validates cfg and compiles the schema. Configuration and
// schema errors are reported here, before any phase starts.
func NewController(cfg Config) (*Controller, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []generator.Option{generator.WithSeed(cfg.RunMeta.Seed)}
	capacity := cfg.MemoryCapacity
	if capacity == 0 {
		capacity = generator.DefaultMemoryCapacity
	}
	opts = append(opts, generator.WithMemory(generator.NewMemory(capacity)))
	gen, err := generator.New(cfg.Schema, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	if cfg.Mode == ModeGenerate {
		minted := driver.Range{Bottom: cfg.IDs.Bottom, Top: cfg.IDs.Top}
		if err := driver.CheckDisjoint(minted, driver.Range{Bottom: 0, Top: cfg.Scale}); err != nil {
			return nil, err
		}
	}

	return &Controller{
		config:    cfg,
		logger:    cfg.Logger,
		collector: cfg.Collector,
		gen:       gen,
		started:   make(map[types.Phase]bool),
		completed: make(map[types.Phase]bool),
	}, nil
}

// Generator returns the compiled generator shared by all phases.
func (c *Controller) Generator() *generator.Generator {
	return c.gen
}

// RunPhases runs phases strictly in order. Each phase is awaited and
// closed before the next starts. On failure the handles run so far are
// returned along with the error.
func (c *Controller) RunPhases(ctx context.Context, phases ...types.Phase) ([]*RunningPhase, error) {
	var done []*RunningPhase
	for _, p := range phases {
		rp, err := c.RunPhase(ctx, p)
		if err != nil {
			return done, err
		}
		done = append(done, rp)
		awaitErr := rp.Await()
		closeErr := rp.Close()
		if err := errors.Join(awaitErr, closeErr); err != nil {
			return done, err
		}
	}
	return done, nil
}

// Run runs every phase in order.
func (c *Controller) Run(ctx context.Context) ([]*RunningPhase, error) {
	return c.RunPhases(ctx, types.AllPhases()...)
}

// RunPhase wires and starts phase p. The returned handle must be closed.
func (c *Controller) RunPhase(ctx context.Context, p types.Phase) (*RunningPhase, error) {
	if err := c.acquire(p); err != nil {
		return nil, err
	}

	rp, err := c.setup(ctx, p)
	if err != nil {
		c.release(p, false)
		c.logger.Error("phase setup failed", map[string]any{"phase": p.String(), "error": err.Error()})
		return nil, err
	}
	rp.start(ctx)
	return rp, nil
}

// acquire applies the phase guards.
func (c *Controller) acquire(p types.Phase) error {
	if !p.Valid() {
		return types.NewConfigError("phase", fmt.Sprintf("unknown phase %s", p))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.inFlight:
		return types.ErrPhaseInFlight
	case c.started[p]:
		return fmt.Errorf("%w: %s", types.ErrPhaseAlreadyRun, p)
	case p == types.PhaseTwo && !c.completed[types.PhaseOne]:
		return types.ErrPhaseOrder
	}
	c.inFlight = true
	c.started[p] = true
	return nil
}

// release ends the in-flight window of phase p.
func (c *Controller) release(p types.Phase, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if ok {
		c.completed[p] = true
	}
}

func (c *Controller) addIDsIssued(n int64) {
	c.mu.Lock()
	c.idsIssued += n
	total := c.idsIssued
	c.mu.Unlock()
	c.collector.SetIDsIssued(total)
}

// setup resolves and builds the components of phase p.
func (c *Controller) setup(ctx context.Context, p types.Phase) (*RunningPhase, error) {
	cfg := c.config
	plan := cfg.plan(p)
	reg := cfg.Registry
	logger := c.logger.With(map[string]any{"phase": p.String()})

	chunkSpec := registry.ChunkSpec{Bottom: 0, Top: cfg.Scale, Size: cfg.ChunkSize}
	if cfg.Mode == ModeSource {
		seq, err := cfg.Source.Open(ctx)
		if err != nil {
			return nil, fmt.Errorf("open source %s: %w", cfg.Source.Name(), err)
		}
		chunkSpec.Sequence = seq
	}
	newChunks, err := reg.ChunkDriver(plan.ChunkDriver)
	if err != nil {
		return nil, err
	}
	chunks, err := newChunks(ctx, chunkSpec)
	if err != nil {
		return nil, fmt.Errorf("chunk driver %s: %w", plan.ChunkDriver, err)
	}

	ids, err := c.idDriver(ctx, p, plan)
	if err != nil {
		return nil, err
	}

	env := registry.Env{
		RunID:     cfg.RunMeta.RunID,
		Phase:     p,
		Logger:    logger,
		Generator: c.gen,
		IDs:       ids,
		IDBatch:   cfg.IDBatch,
		Output:    cfg.Output,
	}

	newOutput, err := reg.Output(cfg.Output.Name)
	if err != nil {
		return nil, err
	}
	out, err := newOutput(ctx, reg, env)
	if err != nil {
		return nil, fmt.Errorf("output %s: %w", cfg.Output.Name, err)
	}

	if p == types.PhaseOne && cfg.DropStorage {
		if err := out.DropStorage(ctx); err != nil {
			if !errors.Is(err, types.ErrUnimplemented) {
				_ = out.Close()
				return nil, fmt.Errorf("drop storage: %w", err)
			}
			logger.Warn("output cannot drop storage", map[string]any{"output": cfg.Output.Name})
		}
	}

	newEmitter, err := reg.Emitter(plan.Emitter)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	emitters := make([]emitter.Emitter, 0, cfg.Workers)
	for range cfg.Workers {
		em, err := newEmitter(env)
		if err != nil {
			_ = closeEmitters(emitters)
			_ = out.Close()
			return nil, fmt.Errorf("emitter %s: %w", plan.Emitter, err)
		}
		emitters = append(emitters, em)
	}

	logger.Info("phase wired", map[string]any{
		"chunk_driver": plan.ChunkDriver,
		"id_driver":    plan.IDDriver,
		"emitter":      plan.Emitter,
		"output":       cfg.Output.Name,
		"workers":      cfg.Workers,
	})

	return &RunningPhase{
		controller: c,
		phase:      p,
		logger:     logger,
		chunks:     chunks,
		ids:        ids,
		emitters:   emitters,
		output:     out,
		done:       make(chan struct{}),
	}, nil
}

// idDriver builds the minting driver of phase p and checks it against the
// pass-through id space.
func (c *Controller) idDriver(ctx context.Context, p types.Phase, plan PhasePlan) (*driver.RangedIDDriver, error) {
	if plan.IDDriver == "" {
		return nil, nil
	}
	cfg := c.config
	newIDs, err := cfg.Registry.IDDriver(plan.IDDriver)
	if err != nil {
		return nil, err
	}

	spec := registry.IDSpec{Bottom: cfg.IDs.Bottom, Top: cfg.IDs.Top, Passthrough: true}
	input := driver.Range{Bottom: 0, Top: cfg.Scale}
	if cfg.Mode == ModeSource {
		maxID, err := c.sourceMaxID(ctx)
		if err != nil {
			return nil, err
		}
		spec.InputMax = maxID
		input = driver.Range{Bottom: 0, Top: maxID + 1}
	}

	ids, err := newIDs(spec)
	if err != nil {
		return nil, fmt.Errorf("id driver %s: %w", plan.IDDriver, err)
	}
	if err := driver.CheckDisjoint(ids.Range(), input); err != nil {
		return nil, err
	}
	c.logger.Debug("id range", map[string]any{
		"phase":  p.String(),
		"minted": ids.Range().String(),
		"input":  input.String(),
	})
	return ids, nil
}

func (c *Controller) sourceMaxID(ctx context.Context) (int64, error) {
	if c.config.SourceMaxID != nil {
		return *c.config.SourceMaxID, nil
	}
	maxID, err := source.MaxID(ctx, c.config.Source)
	if err != nil {
		return 0, fmt.Errorf("scan source %s: %w", c.config.Source.Name(), err)
	}
	return maxID, nil
}

// publish announces a finished phase. Failures are logged only.
func (c *Controller) publish(ctx context.Context, rp *RunningPhase, snap metrics.PhaseSnapshot, runErr error) {
	if c.config.Adapter == nil {
		return
	}
	event := &adapter.PhaseCompletedEvent{
		EventType:  adapter.EventTypePhaseCompleted,
		RunID:      c.config.RunMeta.RunID,
		Phase:      rp.phase.String(),
		Mode:       string(c.config.Mode),
		Outcome:    snap.Outcome,
		Chunks:     snap.ChunksClaimed,
		Items:      snap.ItemsProcessed,
		Vertices:   snap.VerticesWritten,
		Edges:      snap.EdgesWritten,
		Logs:       snap.LogsWritten,
		DurationMs: snap.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := c.config.Adapter.Publish(pubCtx, event); err != nil {
		rp.logger.Warn("publish phase event failed", map[string]any{"error": err.Error()})
	}
}

func closeEmitters(ems []emitter.Emitter) error {
	var errs []error
	for _, em := range ems {
		errs = append(errs, em.Close())
	}
	return errors.Join(errs...)
}
