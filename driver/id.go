package driver

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/pithecene-io/lattice/types"
)

// OutputIDDriver issues unique identifiers.
//
// NextWithHint lets a driver reuse a pass-through identifier carried by the
// work item instead of consuming its own range, when the driver allows it.
type OutputIDDriver interface {
	Next() (types.OutputID, bool)
	NextWithHint(hint types.WorkItem) (types.OutputID, bool)
}

// Range is a half-open identifier interval [Bottom, Top).
type Range struct {
	Bottom int64
	Top    int64
}

// Contains reports whether v lies in r.
func (r Range) Contains(v int64) bool {
	return v >= r.Bottom && v < r.Top
}

// Overlaps reports whether r and o share any value.
func (r Range) Overlaps(o Range) bool {
	return r.Bottom < o.Top && o.Bottom < r.Top
}

// Size is the number of values in r.
func (r Range) Size() int64 {
	return max(r.Top-r.Bottom, 0)
}

func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Bottom, r.Top)
}

// CheckDisjoint rejects a minting range that overlaps the pass-through range.
func CheckDisjoint(minted, input Range) error {
	if minted.Size() == 0 || input.Size() == 0 {
		return nil
	}
	if minted.Overlaps(input) {
		return fmt.Errorf("%w: minted %s, input %s", types.ErrRangeOverlap, minted, input)
	}
	return nil
}

// IDOption configures a RangedIDDriver.
type IDOption func(*RangedIDDriver)

// WithHintPassthrough makes NextWithHint return numeric hints directly.
func WithHintPassthrough() IDOption {
	return func(d *RangedIDDriver) { d.passthrough = true }
}

// RangedIDDriver allocates identifiers from [bottom, top) with one shared
// atomic cursor. Under any amount of concurrent access the values it issues
// are exactly the range, with no duplicates, until exhaustion. Once Next
// has reported exhaustion it keeps doing so.
type RangedIDDriver struct {
	rng         Range
	passthrough bool

	cursor    atomic.Int64
	issued    atomic.Int64
	exhausted atomic.Bool

	// Leftovers returned by released leases, reissued before the cursor
	// advances. Closed to releases once the driver is exhausted.
	freeMu    sync.Mutex
	free      []int64
	freeCount atomic.Int64
}

// NewRangedIDDriver builds an allocator over [bottom, top).
func NewRangedIDDriver(bottom, top int64, opts ...IDOption) (*RangedIDDriver, error) {
	if top < bottom {
		return nil, fmt.Errorf("ranged id driver: top %d below bottom %d", top, bottom)
	}
	d := &RangedIDDriver{rng: Range{Bottom: bottom, Top: top}}
	for _, opt := range opts {
		opt(d)
	}
	d.cursor.Store(bottom)
	return d, nil
}

// NewOffsetIDDriver allocates from [inputMax+1, MaxInt64), entirely above an
// existing input id space, so minted ids never collide with pass-through ids.
func NewOffsetIDDriver(inputMax int64, opts ...IDOption) (*RangedIDDriver, error) {
	if inputMax == math.MaxInt64 {
		return nil, fmt.Errorf("offset id driver: input max %d leaves no room", inputMax)
	}
	return NewRangedIDDriver(inputMax+1, math.MaxInt64, opts...)
}

// Range returns the allocation interval.
func (d *RangedIDDriver) Range() Range {
	return d.rng
}

// Issued returns how many identifiers have been handed out.
func (d *RangedIDDriver) Issued() int64 {
	return d.issued.Load()
}

// Exhausted reports whether Next has signalled the end of the range.
func (d *RangedIDDriver) Exhausted() bool {
	return d.exhausted.Load()
}

// Remaining is the number of identifiers still available.
func (d *RangedIDDriver) Remaining() int64 {
	if d.exhausted.Load() {
		return 0
	}
	return max(d.rng.Top-d.cursor.Load(), 0) + d.freeCount.Load()
}

// Next issues the next unclaimed identifier.
func (d *RangedIDDriver) Next() (types.OutputID, bool) {
	if d.exhausted.Load() {
		return types.OutputID{}, false
	}
	if v, ok := d.popFree(); ok {
		d.issued.Add(1)
		return types.NewOutputID(v), true
	}
	start, _, ok := d.claim(1)
	if !ok {
		return d.exhaust()
	}
	d.issued.Add(1)
	return types.NewOutputID(start), true
}

// exhaust marks the driver exhausted unless a release refilled the free
// list since the caller last looked. In that case the leftover is issued.
func (d *RangedIDDriver) exhaust() (types.OutputID, bool) {
	d.freeMu.Lock()
	defer d.freeMu.Unlock()
	if n := len(d.free); n > 0 {
		v := d.free[n-1]
		d.free = d.free[:n-1]
		d.freeCount.Add(-1)
		d.issued.Add(1)
		return types.NewOutputID(v), true
	}
	d.exhausted.Store(true)
	return types.OutputID{}, false
}

// Span claims n consecutive identifiers straight from the cursor. It
// fails, without consuming anything, when fewer than n remain.
func (d *RangedIDDriver) Span(n int64) (Range, bool) {
	if n <= 0 {
		return Range{}, true
	}
	start, end, ok := d.claimExactly(n)
	if !ok {
		return Range{}, false
	}
	d.issued.Add(n)
	return Range{Bottom: start, Top: end}, true
}

// NextWithHint returns the hint when passthrough is enabled and the hint is
// numeric; otherwise it behaves like Next.
func (d *RangedIDDriver) NextWithHint(hint types.WorkItem) (types.OutputID, bool) {
	if d.passthrough {
		if v, ok := hint.ID(); ok {
			return types.NewOutputID(v), true
		}
	}
	return d.Next()
}

// claim reserves up to n consecutive values with a CAS loop.
func (d *RangedIDDriver) claim(n int64) (start, end int64, ok bool) {
	for {
		cur := d.cursor.Load()
		if cur >= d.rng.Top {
			return 0, 0, false
		}
		next := cur + min(n, d.rng.Top-cur)
		if d.cursor.CompareAndSwap(cur, next) {
			return cur, next, true
		}
	}
}

// claimExactly reserves exactly n consecutive values, or nothing.
func (d *RangedIDDriver) claimExactly(n int64) (start, end int64, ok bool) {
	if d.exhausted.Load() {
		return 0, 0, false
	}
	for {
		cur := d.cursor.Load()
		if d.rng.Top-cur < n {
			return 0, 0, false
		}
		if d.cursor.CompareAndSwap(cur, cur+n) {
			return cur, cur + n, true
		}
	}
}

func (d *RangedIDDriver) popFree() (int64, bool) {
	if d.freeCount.Load() == 0 {
		return 0, false
	}
	d.freeMu.Lock()
	defer d.freeMu.Unlock()
	if len(d.free) == 0 {
		return 0, false
	}
	v := d.free[len(d.free)-1]
	d.free = d.free[:len(d.free)-1]
	d.freeCount.Add(-1)
	return v, true
}

// pushFree reports false when the driver is exhausted and refuses values.
func (d *RangedIDDriver) pushFree(values []int64) bool {
	d.freeMu.Lock()
	defer d.freeMu.Unlock()
	if d.exhausted.Load() {
		return false
	}
	d.free = append(d.free, values...)
	d.freeCount.Add(int64(len(values)))
	return true
}

// Lease returns a per-caller view that claims batch identifiers at a time
// and serves them from a private cache. A Lease is not safe for concurrent
// use; give each worker its own.
func (d *RangedIDDriver) Lease(batch int) *Lease {
	return &Lease{driver: d, batch: int64(max(batch, 1))}
}

// Lease caches a batch of identifiers claimed from a RangedIDDriver.
type Lease struct {
	driver *RangedIDDriver
	batch  int64
	next   int64
	end    int64
}

// Next issues an identifier from the cached batch, claiming a new batch
// when the cache is empty.
func (l *Lease) Next() (types.OutputID, bool) {
	if l.next >= l.end {
		if l.driver.exhausted.Load() {
			return types.OutputID{}, false
		}
		if v, ok := l.driver.popFree(); ok {
			l.driver.issued.Add(1)
			return types.NewOutputID(v), true
		}
		start, end, ok := l.driver.claim(l.batch)
		if !ok {
			return l.driver.exhaust()
		}
		l.next, l.end = start, end
	}
	v := l.next
	l.next++
	l.driver.issued.Add(1)
	return types.NewOutputID(v), true
}

// Span serves n consecutive identifiers from the cached batch when it holds
// enough. Otherwise the remainder goes back to the driver and a new batch
// of at least n is claimed.
func (l *Lease) Span(n int64) (Range, bool) {
	if n <= 0 {
		return Range{}, true
	}
	if l.end-l.next < n {
		l.Release()
		if l.next < l.end {
			// Exhausted driver refused the remainder.
			return Range{}, false
		}
		start, end, ok := l.driver.claimExactly(max(n, l.batch))
		if !ok {
			return l.driver.Span(n)
		}
		l.next, l.end = start, end
	}
	r := Range{Bottom: l.next, Top: l.next + n}
	l.next += n
	l.driver.issued.Add(n)
	return r, true
}

// Remaining is the number of identifiers the lease can still issue.
func (l *Lease) Remaining() int64 {
	return l.end - l.next + l.driver.Remaining()
}

// NextWithHint mirrors RangedIDDriver.NextWithHint.
func (l *Lease) NextWithHint(hint types.WorkItem) (types.OutputID, bool) {
	if l.driver.passthrough {
		if v, ok := hint.ID(); ok {
			return types.NewOutputID(v), true
		}
	}
	return l.Next()
}

// Release hands unused cached identifiers back to the driver so they are
// reissued to other callers. After the driver is exhausted the lease keeps
// them instead, so an exhausted driver never issues again.
func (l *Lease) Release() {
	if l.next >= l.end {
		return
	}
	left := make([]int64, 0, l.end-l.next)
	for v := l.next; v < l.end; v++ {
		left = append(left, v)
	}
	if l.driver.pushFree(left) {
		l.next = l.end
	}
}

// SpanDriver issues contiguous identifier spans on top of OutputIDDriver.
type SpanDriver interface {
	OutputIDDriver
	Span(n int64) (Range, bool)
	Remaining() int64
}

var (
	_ SpanDriver = (*RangedIDDriver)(nil)
	_ SpanDriver = (*Lease)(nil)
)
