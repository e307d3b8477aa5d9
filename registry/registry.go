// Package registry resolves configured component names to constructors.
//
// A Registry is built once at startup and handed to the phase controller.
// Every pluggable role has its own namespace: chunk drivers, id drivers,
// emitters, encoders and outputs. Unknown names are configuration errors.
package registry

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/pithecene-io/lattice/driver"
	"github.com/pithecene-io/lattice/emitter"
	"github.com/pithecene-io/lattice/encoder"
	"github.com/pithecene-io/lattice/generator"
	"github.com/pithecene-io/lattice/log"
	"github.com/pithecene-io/lattice/output"
	"github.com/pithecene-io/lattice/pgstore"
	"github.com/pithecene-io/lattice/types"
)

// Env carries what factories may draw on when building a component for
// one phase of one run.
type Env struct {
	RunID     string
	Phase     types.Phase
	Logger    *log.Logger
	Generator *generator.Generator
	// IDs is the phase's minting driver, nil when the phase mints nothing.
	IDs *driver.RangedIDDriver
	// IDBatch is the per-worker lease size.
	IDBatch int
	Output  OutputSettings
}

// OutputSettings configure the output and its encoder.
type OutputSettings struct {
	Name    string
	Encoder string

	// Path is the frames root, the lode fs root, or "bucket/prefix" for s3.
	Path         string
	Backend      string
	Region       string
	Endpoint     string
	UsePathStyle bool
	Dataset      string

	// DSN is the Postgres connection string. Pool, when set, is used instead.
	DSN  string
	Pool pgstore.DBPool

	Write output.Config
}

// ChunkSpec parameterizes a chunk driver.
type ChunkSpec struct {
	Bottom int64
	Top    int64
	Size   int
	// Sequence feeds sequence drivers.
	Sequence driver.Sequence
}

// IDSpec parameterizes an id driver.
type IDSpec struct {
	Bottom int64
	Top    int64
	// InputMax is the largest pass-through id, for offset drivers.
	InputMax    int64
	Passthrough bool
}

// Factories per role.
type (
	ChunkDriverFactory   func(ctx context.Context, spec ChunkSpec) (driver.WorkChunkDriver, error)
	IDDriverFactory      func(spec IDSpec) (*driver.RangedIDDriver, error)
	EmitterFactory       func(env Env) (emitter.Emitter, error)
	RecordEncoderFactory func(meta map[string]string) encoder.Encoder[encoder.Record]
	FrameEncoderFactory  func(meta map[string]string) encoder.Encoder[[]byte]
	OutputFactory        func(ctx context.Context, reg *Registry, env Env) (output.Output, error)
)

// Registry maps names to factories. Safe for concurrent use.
type Registry struct {
	mu             sync.RWMutex
	chunkDrivers   map[string]ChunkDriverFactory
	idDrivers      map[string]IDDriverFactory
	emitters       map[string]EmitterFactory
	recordEncoders map[string]RecordEncoderFactory
	frameEncoders  map[string]FrameEncoderFactory
	outputs        map[string]OutputFactory
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		chunkDrivers:   make(map[string]ChunkDriverFactory),
		idDrivers:      make(map[string]IDDriverFactory),
		emitters:       make(map[string]EmitterFactory),
		recordEncoders: make(map[string]RecordEncoderFactory),
		frameEncoders:  make(map[string]FrameEncoderFactory),
		outputs:        make(map[string]OutputFactory),
	}
}

// RegisterChunkDriver adds or replaces a chunk driver factory.
func (r *Registry) RegisterChunkDriver(name string, f ChunkDriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunkDrivers[name] = f
}

// RegisterIDDriver adds or replaces an id driver factory.
func (r *Registry) RegisterIDDriver(name string, f IDDriverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idDrivers[name] = f
}

// RegisterEmitter adds or replaces an emitter factory.
func (r *Registry) RegisterEmitter(name string, f EmitterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitters[name] = f
}

// RegisterRecordEncoder adds or replaces a record encoder factory.
func (r *Registry) RegisterRecordEncoder(name string, f RecordEncoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordEncoders[name] = f
}

// RegisterFrameEncoder adds or replaces a frame encoder factory.
func (r *Registry) RegisterFrameEncoder(name string, f FrameEncoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frameEncoders[name] = f
}

// RegisterOutput adds or replaces an output factory.
func (r *Registry) RegisterOutput(name string, f OutputFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[name] = f
}

func lookup[F any](r *Registry, m map[string]F, key, name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := m[name]
	if !ok {
		var zero F
		return zero, types.NewConfigError(key, fmt.Sprintf("unknown name %q (known: %v)", name, sortedKeys(m)))
	}
	return f, nil
}

// ChunkDriver resolves a chunk driver factory.
func (r *Registry) ChunkDriver(name string) (ChunkDriverFactory, error) {
	return lookup(r, r.chunkDrivers, "chunk_driver", name)
}

// IDDriver resolves an id driver factory.
func (r *Registry) IDDriver(name string) (IDDriverFactory, error) {
	return lookup(r, r.idDrivers, "id_driver", name)
}

// Emitter resolves an emitter factory.
func (r *Registry) Emitter(name string) (EmitterFactory, error) {
	return lookup(r, r.emitters, "emitter", name)
}

// RecordEncoder resolves a record encoder factory.
func (r *Registry) RecordEncoder(name string) (RecordEncoderFactory, error) {
	return lookup(r, r.recordEncoders, "output.encoder", name)
}

// FrameEncoder resolves a frame encoder factory.
func (r *Registry) FrameEncoder(name string) (FrameEncoderFactory, error) {
	return lookup(r, r.frameEncoders, "output.encoder", name)
}

// Output resolves an output factory.
func (r *Registry) Output(name string) (OutputFactory, error) {
	return lookup(r, r.outputs, "output.name", name)
}

// Names lists the registered names per role, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	encoders := append(sortedKeys(r.recordEncoders), sortedKeys(r.frameEncoders)...)
	slices.Sort(encoders)
	return map[string][]string{
		"chunk_driver": sortedKeys(r.chunkDrivers),
		"id_driver":    sortedKeys(r.idDrivers),
		"emitter":      sortedKeys(r.emitters),
		"encoder":      slices.Compact(encoders),
		"output":       sortedKeys(r.outputs),
	}
}

func sortedKeys[F any](m map[string]F) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
