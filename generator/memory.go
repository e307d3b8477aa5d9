package generator

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/pithecene-io/lattice/distribution"
	"github.com/pithecene-io/lattice/types"
)

// DefaultMemoryCapacity bounds how many vertices per label stitch memory keeps.
const DefaultMemoryCapacity = 1 << 20

// pickAttempts is how many degree classes Pick samples before it falls
// back to the least connected class.
const pickAttempts = 3

// Memory remembers written vertices per label together with their degree,
// so later edges can be stitched onto existing vertices. Safe for
// concurrent use; each label is guarded by its own lock.
type Memory struct {
	capacity int

	mu    sync.RWMutex
	pools map[string]*pool
}

// NewMemory creates a stitch memory holding at most capacity vertices per
// label. Vertices recorded past capacity are not remembered.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &Memory{capacity: capacity, pools: make(map[string]*pool)}
}

func (m *Memory) pool(label string, create bool) *pool {
	m.mu.RLock()
	p := m.pools[label]
	m.mu.RUnlock()
	if p != nil || !create {
		return p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p = m.pools[label]; p == nil {
		p = newPool()
		m.pools[label] = p
	}
	return p
}

// Record remembers a written vertex with degree zero.
func (m *Memory) Record(label string, id types.EmittedID) {
	m.pool(label, true).record(id, m.capacity)
}

// Touch bumps the degree of a remembered vertex. Unknown ids are ignored.
func (m *Memory) Touch(label string, id types.EmittedID) {
	if p := m.pool(label, false); p != nil {
		p.touch(id)
	}
}

// Pick selects an existing vertex of label as a stitch endpoint.
//
// A degree class is sampled from the current degree histogram, laid out
// in ascending degree order, and accepted with its
// LikelihoodToIncreaseCount: the share of vertices more connected than it.
// The most connected class is never accepted. After pickAttempts
// rejections the least connected class is used.
func (m *Memory) Pick(label string, r *rand.Rand) (types.EmittedID, bool) {
	p := m.pool(label, false)
	if p == nil {
		return types.EmittedID{}, false
	}
	return p.pick(r)
}

// Len returns how many vertices of label are remembered.
func (m *Memory) Len(label string) int {
	p := m.pool(label, false)
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ids)
}

// Histogram returns degree -> vertex count for label.
func (m *Memory) Histogram(label string) map[int]int64 {
	p := m.pool(label, false)
	if p == nil {
		return map[int]int64{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.histogramLocked()
}

// Writer wraps next so that successfully written vertices are recorded and
// written edges bump both endpoint degrees.
func (m *Memory) Writer(next types.ElementWriter) types.ElementWriter {
	return &recordingWriter{memory: m, next: next}
}

type recordingWriter struct {
	memory *Memory
	next   types.ElementWriter
}

func (w *recordingWriter) Write(ctx context.Context, e types.Emitable) error {
	if err := w.next.Write(ctx, e); err != nil {
		return err
	}
	switch e.Type {
	case types.ElementVertex:
		w.memory.Record(e.Vertex.Label, e.Vertex.ID)
	case types.ElementEdge:
		w.memory.Touch(e.Edge.FromLabel, e.Edge.From)
		w.memory.Touch(e.Edge.ToLabel, e.Edge.To)
	}
	return nil
}

// pool indexes one label's vertices by degree. buckets[d] holds indexes
// into ids; slot[i] is the position of ids[i] inside its bucket.
type pool struct {
	mu      sync.Mutex
	ids     []types.EmittedID
	degree  []int
	slot    []int
	pos     map[types.EmittedID]int
	buckets map[int][]int
}

func newPool() *pool {
	return &pool{
		pos:     make(map[types.EmittedID]int),
		buckets: make(map[int][]int),
	}
}

func (p *pool) record(id types.EmittedID, capacity int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pos[id]; ok || len(p.ids) >= capacity {
		return
	}
	i := len(p.ids)
	p.ids = append(p.ids, id)
	p.degree = append(p.degree, 0)
	p.slot = append(p.slot, len(p.buckets[0]))
	p.buckets[0] = append(p.buckets[0], i)
	p.pos[id] = i
}

func (p *pool) touch(id types.EmittedID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, ok := p.pos[id]
	if !ok {
		return
	}

	d := p.degree[i]
	bucket := p.buckets[d]
	last := bucket[len(bucket)-1]
	bucket[p.slot[i]] = last
	p.slot[last] = p.slot[i]
	bucket = bucket[:len(bucket)-1]
	if len(bucket) == 0 {
		delete(p.buckets, d)
	} else {
		p.buckets[d] = bucket
	}

	p.degree[i] = d + 1
	p.slot[i] = len(p.buckets[d+1])
	p.buckets[d+1] = append(p.buckets[d+1], i)
}

func (p *pool) pick(r *rand.Rand) (types.EmittedID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ids) == 0 {
		return types.EmittedID{}, false
	}

	hist, err := distribution.ByValue(p.histogramLocked())
	if err != nil {
		return types.EmittedID{}, false
	}
	for range pickAttempts {
		d := hist.Sample(r)
		if accept, _ := hist.LikelihoodToIncreaseCount(d); r.Float64() < accept {
			return p.fromBucket(d, r), true
		}
	}

	lowest := -1
	for d := range p.buckets {
		if lowest < 0 || d < lowest {
			lowest = d
		}
	}
	return p.fromBucket(lowest, r), true
}

func (p *pool) fromBucket(d int, r *rand.Rand) types.EmittedID {
	bucket := p.buckets[d]
	return p.ids[bucket[r.IntN(len(bucket))]]
}

func (p *pool) histogramLocked() map[int]int64 {
	hist := make(map[int]int64, len(p.buckets))
	for d, bucket := range p.buckets {
		hist[d] = int64(len(bucket))
	}
	return hist
}
