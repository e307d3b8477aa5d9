package types

import "fmt"

// Phase is one of the two ordered stages of a pipeline run.
// PhaseOne produces vertices; PhaseTwo produces edges that reference
// the identifier space populated by PhaseOne.
type Phase int

const (
	// PhaseOne is the vertex phase.
	PhaseOne Phase = 1
	// PhaseTwo is the edge (stitch) phase.
	PhaseTwo Phase = 2
)

// String returns the lowercase phase name used in logs and partition keys.
func (p Phase) String() string {
	switch p {
	case PhaseOne:
		return "one"
	case PhaseTwo:
		return "two"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p == PhaseOne || p == PhaseTwo
}

// ParsePhase parses "one"/"two" or "1"/"2".
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "one", "1", "ONE":
		return PhaseOne, nil
	case "two", "2", "TWO":
		return PhaseTwo, nil
	default:
		return 0, fmt.Errorf("unknown phase %q (must be one or two)", s)
	}
}

// AllPhases returns the phases in execution order.
func AllPhases() []Phase {
	return []Phase{PhaseOne, PhaseTwo}
}
