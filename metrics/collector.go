// Package metrics collects per-run counters for the phase controller.
//
// The Collector is a leaf package: phases are keyed by name and output
// counters are absorbed from an output's metrics map when a phase ends,
// so nothing is counted twice.
package metrics

import (
	"maps"
	"sync"
	"time"
)

// PhaseSnapshot holds the counters of one phase.
type PhaseSnapshot struct {
	ChunksClaimed   int64
	ItemsProcessed  int64
	VerticesWritten int64
	EdgesWritten    int64
	LogsWritten     int64
	Dropped         int64
	WriteErrors     int64
	Duration        time.Duration
	Outcome         string
}

// Snapshot is an immutable point-in-time view of the collector.
type Snapshot struct {
	// Phase lifecycle
	PhasesStarted   int64
	PhasesCompleted int64
	PhasesFailed    int64

	// Identifier minting
	IDsIssued int64

	// Per phase, keyed by phase name
	Phases map[string]PhaseSnapshot

	// Dimensions (informational, set at construction)
	Mode    string
	Output  string
	Encoder string
	RunID   string
}

// Totals sums the per-phase write counters.
func (s Snapshot) Totals() PhaseSnapshot {
	var t PhaseSnapshot
	for _, p := range s.Phases {
		t.ChunksClaimed += p.ChunksClaimed
		t.ItemsProcessed += p.ItemsProcessed
		t.VerticesWritten += p.VerticesWritten
		t.EdgesWritten += p.EdgesWritten
		t.LogsWritten += p.LogsWritten
		t.Dropped += p.Dropped
		t.WriteErrors += p.WriteErrors
		t.Duration += p.Duration
	}
	return t
}

// Phase outcomes.
const (
	OutcomeRunning   = "running"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Collector accumulates metrics during a single run.
// Safe for concurrent use. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	phasesStarted   int64
	phasesCompleted int64
	phasesFailed    int64
	idsIssued       int64

	phases map[string]*PhaseSnapshot

	mode    string
	output  string
	encoder string
	runID   string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(mode, output, encoder, runID string) *Collector {
	return &Collector{
		phases:  make(map[string]*PhaseSnapshot),
		mode:    mode,
		output:  output,
		encoder: encoder,
		runID:   runID,
	}
}

// phase returns the counters for name. Caller holds mu.
func (c *Collector) phase(name string) *PhaseSnapshot {
	p, ok := c.phases[name]
	if !ok {
		p = &PhaseSnapshot{}
		c.phases[name] = p
	}
	return p
}

// --- Phase lifecycle ---

// IncPhaseStarted records a phase start.
func (c *Collector) IncPhaseStarted(phase string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.phasesStarted++
	c.phase(phase).Outcome = OutcomeRunning
	c.mu.Unlock()
}

// IncPhaseCompleted records a phase that drained every driver without error.
func (c *Collector) IncPhaseCompleted(phase string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.phasesCompleted++
	p := c.phase(phase)
	p.Outcome = OutcomeCompleted
	p.Duration = elapsed
	c.mu.Unlock()
}

// IncPhaseFailed records a phase that ended with at least one worker error.
func (c *Collector) IncPhaseFailed(phase string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.phasesFailed++
	p := c.phase(phase)
	p.Outcome = OutcomeFailed
	p.Duration = elapsed
	c.mu.Unlock()
}

// --- Work ---

// AddChunk records one claimed chunk carrying items work items.
func (c *Collector) AddChunk(phase string, items int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	p := c.phase(phase)
	p.ChunksClaimed++
	p.ItemsProcessed += int64(items)
	c.mu.Unlock()
}

// SetIDsIssued records the number of identifiers minted so far.
// Drivers keep their own running count, so this is a set, not an add.
func (c *Collector) SetIDsIssued(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.idsIssued = n
	c.mu.Unlock()
}

// --- Output (absorbed at phase end) ---

// AbsorbOutputMetrics copies write counters from an output metrics map
// into the phase.
func (c *Collector) AbsorbOutputMetrics(phase string, m map[string]int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.phase(phase).AbsorbOutput(m)
	c.mu.Unlock()
}

// AbsorbOutput copies write counters from an output metrics map. Keys
// follow the output package: "written.vertex", "written.edge",
// "written.log", "dropped", "errors".
func (p *PhaseSnapshot) AbsorbOutput(m map[string]int64) {
	p.VerticesWritten = m["written.vertex"]
	p.EdgesWritten = m["written.edge"]
	p.LogsWritten = m["written.log"]
	p.Dropped = m["dropped"]
	p.WriteErrors = m["errors"]
}

// --- Snapshot ---

// Snapshot returns an immutable view of all metrics. The Collector can
// keep changing independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{Phases: map[string]PhaseSnapshot{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	phases := make(map[string]PhaseSnapshot, len(c.phases))
	for name, p := range c.phases {
		phases[name] = *p
	}

	return Snapshot{
		PhasesStarted:   c.phasesStarted,
		PhasesCompleted: c.phasesCompleted,
		PhasesFailed:    c.phasesFailed,
		IDsIssued:       c.idsIssued,
		Phases:          phases,
		Mode:            c.mode,
		Output:          c.output,
		Encoder:         c.encoder,
		RunID:           c.runID,
	}
}

// Map flattens the snapshot into counter names, for rendering and for
// storage as a metrics record.
func (s Snapshot) Map() map[string]int64 {
	m := map[string]int64{
		"phases_started":   s.PhasesStarted,
		"phases_completed": s.PhasesCompleted,
		"phases_failed":    s.PhasesFailed,
		"ids_issued":       s.IDsIssued,
	}
	for name, p := range s.Phases {
		maps.Copy(m, map[string]int64{
			name + ".chunks":      p.ChunksClaimed,
			name + ".items":       p.ItemsProcessed,
			name + ".vertices":    p.VerticesWritten,
			name + ".edges":       p.EdgesWritten,
			name + ".logs":        p.LogsWritten,
			name + ".dropped":     p.Dropped,
			name + ".errors":      p.WriteErrors,
			name + ".duration_ms": p.Duration.Milliseconds(),
		})
	}
	return m
}
