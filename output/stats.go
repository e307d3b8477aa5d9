package output

import (
	"sync"

	"github.com/pithecene-io/lattice/types"
)

// Stats are writer counters.
type Stats struct {
	// Received is the number of elements passed to Write.
	Received int64
	// Written is the number of elements persisted by the sink.
	Written int64
	// Dropped is the number of droppable elements discarded.
	Dropped int64
	// WrittenByType splits Written by element type.
	WrittenByType map[types.ElementType]int64
	// BufferedRecords is the current number of buffered elements.
	BufferedRecords int64
	// BufferedBytes is the estimated size of buffered elements.
	BufferedBytes int64
	// Flushes is the number of sink batch writes attempted.
	Flushes int64
	// Errors is the number of failed sink writes or rejected elements.
	Errors int64
}

func (s *Stats) add(o Stats) {
	s.Received += o.Received
	s.Written += o.Written
	s.Dropped += o.Dropped
	s.BufferedRecords += o.BufferedRecords
	s.BufferedBytes += o.BufferedBytes
	s.Flushes += o.Flushes
	s.Errors += o.Errors
	if s.WrittenByType == nil {
		s.WrittenByType = make(map[types.ElementType]int64)
	}
	for k, v := range o.WrittenByType {
		s.WrittenByType[k] += v
	}
}

// Map flattens stats into Output.Metrics form.
func (s Stats) Map() map[string]int64 {
	m := map[string]int64{
		"received":         s.Received,
		"written":          s.Written,
		"dropped":          s.Dropped,
		"buffered_records": s.BufferedRecords,
		"buffered_bytes":   s.BufferedBytes,
		"flushes":          s.Flushes,
		"errors":           s.Errors,
	}
	for t, n := range s.WrittenByType {
		m["written."+string(t)] = n
	}
	return m
}

// statsRecorder guards Stats. Writers call the Locked variants while
// holding their own mutex.
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{stats: Stats{WrittenByType: make(map[types.ElementType]int64)}}
}

func (r *statsRecorder) incReceived() {
	r.mu.Lock()
	r.stats.Received++
	r.mu.Unlock()
}

func (r *statsRecorder) incDropped() {
	r.mu.Lock()
	r.stats.Dropped++
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.Flushes++
	r.mu.Unlock()
}

func (r *statsRecorder) incWritten(t types.ElementType, n int64) {
	r.mu.Lock()
	r.stats.Written += n
	r.stats.WrittenByType[t] += n
	r.mu.Unlock()
}

func (r *statsRecorder) setBuffered(records, bytes int64) {
	r.mu.Lock()
	r.stats.BufferedRecords = records
	r.stats.BufferedBytes = bytes
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.stats
	s.WrittenByType = make(map[types.ElementType]int64, len(r.stats.WrittenByType))
	for k, v := range r.stats.WrittenByType {
		s.WrittenByType[k] = v
	}
	return s
}
