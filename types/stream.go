package types

import "context"

// Stream is a finite, non-restartable sequence of Emitables.
// Next returns ok=false once the sequence is exhausted.
type Stream interface {
	Next(ctx context.Context) (Emitable, bool, error)
}

// StreamFunc adapts a function to Stream.
type StreamFunc func(ctx context.Context) (Emitable, bool, error)

// Next implements Stream.
func (f StreamFunc) Next(ctx context.Context) (Emitable, bool, error) {
	return f(ctx)
}

type emptyStream struct{}

func (emptyStream) Next(context.Context) (Emitable, bool, error) {
	return Emitable{}, false, nil
}

// EmptyStream returns an exhausted stream.
func EmptyStream() Stream {
	return emptyStream{}
}

// SliceStream yields items in order.
func SliceStream(items ...Emitable) Stream {
	i := 0
	return StreamFunc(func(context.Context) (Emitable, bool, error) {
		if i >= len(items) {
			return Emitable{}, false, nil
		}
		e := items[i]
		i++
		return e, true, nil
	})
}

// Traverse flattens root depth-first: every element is followed by its
// whole downstream before the next sibling. The expansion uses an explicit
// stack of streams so fan-out depth never grows the call stack.
func Traverse(root Stream) Stream {
	stack := []Stream{root}
	return StreamFunc(func(ctx context.Context) (Emitable, bool, error) {
		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				return Emitable{}, false, err
			}
			top := stack[len(stack)-1]
			e, ok, err := top.Next(ctx)
			if err != nil {
				return Emitable{}, false, err
			}
			if !ok {
				stack[len(stack)-1] = nil
				stack = stack[:len(stack)-1]
				continue
			}
			if e.HasDownstream() {
				stack = append(stack, e.Stream())
			}
			return e, true, nil
		}
		return Emitable{}, false, nil
	})
}

// Filter flattens root like Traverse but yields only the elements keep
// accepts, detached from their downstream. Rejected elements are still
// expanded, so their descendants are visited.
func Filter(root Stream, keep func(Emitable) bool) Stream {
	all := Traverse(root)
	return StreamFunc(func(ctx context.Context) (Emitable, bool, error) {
		for {
			e, ok, err := all.Next(ctx)
			if err != nil || !ok {
				return Emitable{}, false, err
			}
			if keep(e) {
				e.downstream = nil
				return e, true, nil
			}
		}
	})
}

// Concat yields the elements of each stream in turn.
func Concat(streams ...Stream) Stream {
	return StreamFunc(func(ctx context.Context) (Emitable, bool, error) {
		for len(streams) > 0 {
			e, ok, err := streams[0].Next(ctx)
			if err != nil {
				return Emitable{}, false, err
			}
			if ok {
				return e, true, nil
			}
			streams = streams[1:]
		}
		return Emitable{}, false, nil
	})
}

// EmitAll writes every element of root, depth-first, through w using
// Emitable.Emit. Returns the number of elements written.
func EmitAll(ctx context.Context, root Stream, w ElementWriter) (int64, error) {
	var written int64
	stack := []Stream{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		top := stack[len(stack)-1]
		e, ok, err := top.Next(ctx)
		if err != nil {
			return written, err
		}
		if !ok {
			stack[len(stack)-1] = nil
			stack = stack[:len(stack)-1]
			continue
		}
		next, err := e.Emit(ctx, w)
		if err != nil {
			return written, err
		}
		written++
		if e.HasDownstream() {
			stack = append(stack, next)
		}
	}
	return written, nil
}

// Collect drains s into a slice. Intended for tests and small streams.
func Collect(ctx context.Context, s Stream) ([]Emitable, error) {
	var out []Emitable
	for {
		e, ok, err := s.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, e)
	}
}
