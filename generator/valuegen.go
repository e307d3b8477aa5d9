package generator

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/pithecene-io/lattice/schema"
)

// ValueFunc produces one property value from the caller's random source.
// It must be safe for concurrent use with distinct sources.
type ValueFunc func(r *rand.Rand) any

// ValueGeneratorFactory compiles generator arguments into a ValueFunc.
type ValueGeneratorFactory func(args map[string]any) (ValueFunc, error)

var (
	valueGeneratorsMu sync.RWMutex
	valueGenerators   = map[string]ValueGeneratorFactory{
		"random_string": randomString,
		"random_int":    randomInt,
		"random_double": randomDouble,
		"random_bool":   randomBool,
		"choice":        choice,
		"constant":      constant,
		"uuid":          randomUUID,
		"sequence":      sequence,
	}
)

// RegisterValueGenerator adds or replaces a named value generator.
func RegisterValueGenerator(name string, f ValueGeneratorFactory) {
	valueGeneratorsMu.Lock()
	defer valueGeneratorsMu.Unlock()
	valueGenerators[name] = f
}

// ValueGenerators returns the registered generator names, sorted.
func ValueGenerators() []string {
	valueGeneratorsMu.RLock()
	defer valueGeneratorsMu.RUnlock()
	names := make([]string, 0, len(valueGenerators))
	for name := range valueGenerators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompileValueGenerator resolves spec.Impl and compiles its arguments.
func CompileValueGenerator(spec schema.ValueGenerator) (ValueFunc, error) {
	valueGeneratorsMu.RLock()
	f, ok := valueGenerators[spec.Impl]
	valueGeneratorsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown value generator %q", spec.Impl)
	}
	fn, err := f(spec.Args)
	if err != nil {
		return nil, fmt.Errorf("value generator %s: %w", spec.Impl, err)
	}
	return fn, nil
}

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(args map[string]any) (ValueFunc, error) {
	length, err := intArg(args, "length", 16)
	if err != nil {
		return nil, err
	}
	if length <= 0 {
		return nil, fmt.Errorf("length must be > 0, got %d", length)
	}
	return func(r *rand.Rand) any {
		b := make([]byte, length)
		for i := range b {
			b[i] = alphabet[r.IntN(len(alphabet))]
		}
		return string(b)
	}, nil
}

func randomInt(args map[string]any) (ValueFunc, error) {
	lo, err := intArg(args, "min", 0)
	if err != nil {
		return nil, err
	}
	hi, err := intArg(args, "max", 1<<31-1)
	if err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, fmt.Errorf("max %d below min %d", hi, lo)
	}
	span := hi - lo + 1
	return func(r *rand.Rand) any {
		return lo + r.Int64N(span)
	}, nil
}

func randomDouble(args map[string]any) (ValueFunc, error) {
	lo, err := floatArg(args, "min", 0)
	if err != nil {
		return nil, err
	}
	hi, err := floatArg(args, "max", 1)
	if err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, fmt.Errorf("max %g below min %g", hi, lo)
	}
	return func(r *rand.Rand) any {
		return lo + r.Float64()*(hi-lo)
	}, nil
}

func randomBool(map[string]any) (ValueFunc, error) {
	return func(r *rand.Rand) any {
		return r.IntN(2) == 1
	}, nil
}

func choice(args map[string]any) (ValueFunc, error) {
	raw, ok := args["values"].([]any)
	if !ok || len(raw) == 0 {
		return nil, errors.New("values must be a non-empty list")
	}
	values := append([]any(nil), raw...)
	return func(r *rand.Rand) any {
		return values[r.IntN(len(values))]
	}, nil
}

func constant(args map[string]any) (ValueFunc, error) {
	v, ok := args["value"]
	if !ok {
		return nil, errors.New("value is required")
	}
	return func(*rand.Rand) any { return v }, nil
}

// randomUUID draws version 4 UUIDs from the caller's source so output is
// reproducible for a fixed seed.
func randomUUID(map[string]any) (ValueFunc, error) {
	return func(r *rand.Rand) any {
		id, err := uuid.NewRandomFromReader(randReader{r})
		if err != nil {
			return uuid.NewString()
		}
		return id.String()
	}, nil
}

func sequence(args map[string]any) (ValueFunc, error) {
	prefix, _ := args["prefix"].(string)
	start, err := intArg(args, "start", 0)
	if err != nil {
		return nil, err
	}
	var next atomic.Int64
	next.Store(start)
	return func(*rand.Rand) any {
		return prefix + strconv.FormatInt(next.Add(1)-1, 10)
	}, nil
}

type randReader struct {
	r *rand.Rand
}

func (rr randReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(rr.r.Uint32())
	}
	return len(p), nil
}

func intArg(args map[string]any, key string, def int64) (int64, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%s must be an integer, got %g", key, n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

func floatArg(args map[string]any, key string, def float64) (float64, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}

// coerce converts a generated value to the declared property type.
// Unknown or empty types leave the value untouched.
func coerce(typ string, v any) any {
	switch typ {
	case "string":
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	case "int", "long", "integer":
		switch n := v.(type) {
		case int:
			return int64(n)
		case float64:
			return int64(n)
		case string:
			if parsed, err := strconv.ParseInt(n, 10, 64); err == nil {
				return parsed
			}
		}
	case "double", "float":
		switch n := v.(type) {
		case int:
			return float64(n)
		case int64:
			return float64(n)
		}
	case "bool", "boolean":
		if s, ok := v.(string); ok {
			if b, err := strconv.ParseBool(s); err == nil {
				return b
			}
		}
	}
	return v
}
