package runtime

import (
	"fmt"
	"math"
	goruntime "runtime"

	"github.com/pithecene-io/lattice/adapter"
	"github.com/pithecene-io/lattice/log"
	"github.com/pithecene-io/lattice/metrics"
	"github.com/pithecene-io/lattice/registry"
	"github.com/pithecene-io/lattice/schema"
	"github.com/pithecene-io/lattice/source"
	"github.com/pithecene-io/lattice/types"
)

// Mode selects how phases are wired.
type Mode string

// Modes.
const (
	// ModeGenerate synthesizes a graph from the schema: every vertex of
	// each root's subgraph in phase one, then its edges and the stitch
	// edges in phase two.
	ModeGenerate Mode = "generate"
	// ModeSource passes existing vertices through in phase one and expands
	// their out-edges in phase two.
	ModeSource Mode = "source"
)

// Defaults.
const (
	DefaultChunkSize = 100
	DefaultIDBatch   = 64
)

// IDRange bounds minted identifiers. Zero values mean unset.
type IDRange struct {
	Bottom int64
	Top    int64
}

// PhasePlan names the components of one phase. Empty fields fall back to
// the mode's defaults.
type PhasePlan struct {
	ChunkDriver string
	IDDriver    string
	Emitter     string
}

// Config configures a Controller.
type Config struct {
	RunMeta *types.RunMeta
	Mode    Mode

	// Schema drives generation and expansion.
	Schema *schema.Schema
	// Scale is the number of root entities in generate mode.
	Scale int64

	Workers   int
	ChunkSize int
	IDBatch   int
	IDs       IDRange

	// Source feeds source mode.
	Source source.Source
	// SourceMaxID, when set, skips the max-id scan of the source.
	SourceMaxID *int64

	// MemoryCapacity bounds stitch memory per label.
	MemoryCapacity int

	// Plans override the mode's components per phase.
	Plans map[types.Phase]PhasePlan

	Output registry.OutputSettings
	// DropStorage clears the output before phase one.
	DropStorage bool

	Registry  *registry.Registry
	Adapter   adapter.Adapter
	Logger    *log.Logger
	Collector *metrics.Collector
}

// withDefaults fills every optional setting.
func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeGenerate
	}
	if c.Workers <= 0 {
		c.Workers = goruntime.NumCPU()
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.IDBatch <= 0 {
		c.IDBatch = DefaultIDBatch
	}
	if c.IDs.Top <= 0 {
		c.IDs.Top = math.MaxInt64
	}
	if c.Mode == ModeGenerate && c.IDs.Bottom == 0 {
		c.IDs.Bottom = c.Scale
	}
	if c.Output.Name == "" {
		c.Output.Name = registry.OutputNoop
	}
	if c.Registry == nil {
		c.Registry = registry.Default()
	}
	if c.Logger == nil {
		c.Logger = log.NewLogger(c.RunMeta)
	}
	return c
}

// Validate reports the first missing or invalid setting as a ConfigError.
func (c Config) Validate() error {
	if err := c.RunMeta.Validate(); err != nil {
		return types.NewConfigError("run_id", err.Error())
	}
	switch c.Mode {
	case ModeGenerate:
		if c.Scale <= 0 {
			return types.NewConfigError("scale", "must be > 0 in generate mode")
		}
	case ModeSource:
		if c.Source == nil {
			return types.NewConfigError("source", "required in source mode")
		}
	default:
		return types.NewConfigError("mode", fmt.Sprintf("unknown mode %q", c.Mode))
	}
	if c.Schema == nil {
		return types.NewConfigError("schema", "required")
	}
	if c.Workers <= 0 {
		return types.NewConfigError("workers", "must be > 0")
	}
	if c.IDs.Bottom < 0 || c.IDs.Bottom >= c.IDs.Top {
		return types.NewConfigError("ids", fmt.Sprintf("invalid range [%d, %d)", c.IDs.Bottom, c.IDs.Top))
	}
	if c.MemoryCapacity < 0 {
		return types.NewConfigError("memory_capacity", "must be >= 0")
	}
	for p := range c.Plans {
		if !p.Valid() {
			return types.NewConfigError("plans", fmt.Sprintf("unknown phase %s", p))
		}
	}
	return nil
}

// plan returns the components of phase p under c's mode and overrides.
func (c Config) plan(p types.Phase) PhasePlan {
	var base PhasePlan
	switch {
	case c.Mode == ModeGenerate && p == types.PhaseOne:
		base = PhasePlan{ChunkDriver: registry.ChunkRange, IDDriver: registry.IDRanged, Emitter: registry.EmitterVertices}
	case c.Mode == ModeGenerate:
		base = PhasePlan{ChunkDriver: registry.ChunkRange, Emitter: registry.EmitterEdges}
	case p == types.PhaseOne:
		base = PhasePlan{ChunkDriver: registry.ChunkSequence, Emitter: registry.EmitterPassthrough}
	default:
		idDriver := registry.IDOffset
		if c.IDs.Bottom > 0 {
			idDriver = registry.IDRanged
		}
		base = PhasePlan{ChunkDriver: registry.ChunkSequence, IDDriver: idDriver, Emitter: registry.EmitterExpand}
	}
	if o, ok := c.Plans[p]; ok {
		if o.ChunkDriver != "" {
			base.ChunkDriver = o.ChunkDriver
		}
		if o.IDDriver != "" {
			base.IDDriver = o.IDDriver
		}
		if o.Emitter != "" {
			base.Emitter = o.Emitter
		}
	}
	return base
}
