// Package distribution implements weighted random choice over a finite value
// set by laying proportional integer ranges end to end on a number line.
//
// A Distribution is immutable once built and safe for concurrent reads;
// callers supply their own random source to Sample.
package distribution

import (
	"cmp"
	"fmt"
	"math/rand/v2"
	"slices"
	"sort"

	"github.com/pithecene-io/lattice/types"
)

// Distribution partitions [1, LineLength] into contiguous, non-overlapping
// ranges, one per value, each as long as that value's count.
//
// Ranges are laid out in ascending count order (ties broken by value), so
// the most frequent value owns the tail of the line.
type Distribution[T cmp.Ordered] struct {
	values     []T
	starts     []int64
	ends       []int64
	index      map[T]int
	lineLength int64
}

type entry[T cmp.Ordered] struct {
	value T
	count int64
}

// From builds a Distribution from a value -> count mapping.
// Zero counts are kept out of the line. Negative counts are rejected, and so
// is a mapping with no positive count.
func From[T cmp.Ordered](counts map[T]int64) (*Distribution[T], error) {
	return layout(counts, func(a, b entry[T]) int {
		if c := cmp.Compare(a.count, b.count); c != 0 {
			return c
		}
		return cmp.Compare(a.value, b.value)
	})
}

// ByValue builds a Distribution whose ranges are laid out in ascending
// value order instead. LikelihoodToIncreaseCount(v) is then the share of
// mass held by values greater than v, so a degree histogram built with
// ByValue biases against high degrees.
func ByValue[T cmp.Ordered](counts map[T]int64) (*Distribution[T], error) {
	return layout(counts, func(a, b entry[T]) int {
		return cmp.Compare(a.value, b.value)
	})
}

func layout[T cmp.Ordered](counts map[T]int64, order func(a, b entry[T]) int) (*Distribution[T], error) {
	entries := make([]entry[T], 0, len(counts))
	for v, c := range counts {
		if c < 0 {
			return nil, fmt.Errorf("distribution: negative count %d for %v", c, v)
		}
		if c == 0 {
			continue
		}
		entries = append(entries, entry[T]{value: v, count: c})
	}
	if len(entries) == 0 {
		return nil, types.ErrDegenerateDistribution
	}

	slices.SortFunc(entries, order)

	d := &Distribution[T]{
		values: make([]T, len(entries)),
		starts: make([]int64, len(entries)),
		ends:   make([]int64, len(entries)),
		index:  make(map[T]int, len(entries)),
	}

	var cursor int64 = 1
	for i, e := range entries {
		d.values[i] = e.value
		d.starts[i] = cursor
		d.ends[i] = cursor + e.count - 1
		d.index[e.value] = i
		cursor += e.count
	}
	d.lineLength = cursor - 1

	return d, nil
}

// MustFrom is From for static tables; it panics on invalid input.
func MustFrom[T cmp.Ordered](counts map[T]int64) *Distribution[T] {
	d, err := From(counts)
	if err != nil {
		panic(err)
	}
	return d
}

// LineLength is the sum of all counts.
func (d *Distribution[T]) LineLength() int64 {
	return d.lineLength
}

// Len is the number of values with a positive count.
func (d *Distribution[T]) Len() int {
	return len(d.values)
}

// Values returns the values in layout order.
func (d *Distribution[T]) Values() []T {
	return slices.Clone(d.values)
}

// Range returns the inclusive [start, end] range owned by v.
func (d *Distribution[T]) Range(v T) (start, end int64, ok bool) {
	i, ok := d.index[v]
	if !ok {
		return 0, 0, false
	}
	return d.starts[i], d.ends[i], true
}

// Sample draws a value with probability proportional to its count.
func (d *Distribution[T]) Sample(r *rand.Rand) T {
	// Point on the line, 1-based.
	p := r.Int64N(d.lineLength) + 1
	return d.at(p)
}

// at returns the value whose range contains point p in [1, lineLength].
func (d *Distribution[T]) at(p int64) T {
	i := sort.Search(len(d.ends), func(i int) bool { return d.ends[i] >= p })
	return d.values[i]
}

// LikelihoodToIncreaseCount returns (lineLength - rangeEnd(v)) / lineLength:
// the share of total mass laid out after v. It is close to 1 for the rarest
// value and exactly 0 for the most frequent one.
func (d *Distribution[T]) LikelihoodToIncreaseCount(v T) (float64, bool) {
	_, end, ok := d.Range(v)
	if !ok {
		return 0, false
	}
	return float64(d.lineLength-end) / float64(d.lineLength), true
}
