package reader

import (
	"errors"
	"sort"
	"strings"

	"github.com/pithecene-io/lattice/lode"
)

// ParseMetricsRecord converts a lode metrics record to a MetricsSnapshot.
// Per-phase counters are stored as "<phase>.<counter>" keys.
func ParseMetricsRecord(record map[string]any) (*MetricsSnapshot, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	counters := lode.Counters(record)
	snap := &MetricsSnapshot{
		RunID:       toString(record["run_id"]),
		Mode:        toString(record["mode"]),
		Output:      toString(record["output"]),
		Encoder:     toString(record["encoder"]),
		CompletedAt: toString(record["completed_at"]),

		PhasesStarted:   counters["phases_started"],
		PhasesCompleted: counters["phases_completed"],
		PhasesFailed:    counters["phases_failed"],
		IDsIssued:       counters["ids_issued"],
		Phases:          []PhaseRow{},
	}

	phases := make(map[string]*PhaseRow)
	for key, v := range counters {
		name, counter, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		row, ok := phases[name]
		if !ok {
			row = &PhaseRow{Phase: name}
			phases[name] = row
		}
		switch counter {
		case "chunks":
			row.Chunks = v
		case "items":
			row.Items = v
		case "vertices":
			row.Vertices = v
		case "edges":
			row.Edges = v
		case "logs":
			row.Logs = v
		case "dropped":
			row.Dropped = v
		case "errors":
			row.Errors = v
		case "duration_ms":
			row.DurationMs = v
		}
	}
	for _, row := range phases {
		snap.Phases = append(snap.Phases, *row)
	}
	sort.Slice(snap.Phases, func(i, j int) bool { return snap.Phases[i].Phase < snap.Phases[j].Phase })

	// The write path always populates these.
	if snap.RunID == "" {
		return nil, errors.New("metrics record missing required field: run_id")
	}
	if snap.CompletedAt == "" {
		return nil, errors.New("metrics record missing required field: completed_at")
	}
	return snap, nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
