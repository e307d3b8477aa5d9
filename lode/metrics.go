package lode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/lattice/metrics"
)

// ErrNoMetricsFound is returned when no metrics record matches a query.
var ErrNoMetricsFound = errors.New("no metrics records found")

// Partition values used for metrics records.
const (
	metricsPhase       = "run"
	metricsElementType = "metrics"
	metricsLabel       = "snapshot"
)

// WriteMetrics appends snap as a single metrics record.
func WriteMetrics(ctx context.Context, ds lode.Dataset, snap metrics.Snapshot, completedAt time.Time) error {
	record := toMetricsRecordMap(snap, completedAt)
	if _, err := ds.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, "metrics/"+snap.RunID)
	}
	return nil
}

func toMetricsRecordMap(snap metrics.Snapshot, completedAt time.Time) map[string]any {
	counters := make(map[string]any)
	for k, v := range snap.Map() {
		counters[k] = v
	}
	return map[string]any{
		"record_kind":  RecordKindMetrics,
		"run_id":       snap.RunID,
		"phase":        metricsPhase,
		"element_type": metricsElementType,
		"label":        metricsLabel,
		"mode":         snap.Mode,
		"output":       snap.Output,
		"encoder":      snap.Encoder,
		"completed_at": completedAt.UTC().Format(time.RFC3339),
		"counters":     counters,
	}
}

// QueryLatestMetrics returns the most recent metrics record, optionally
// restricted to runID. Returns ErrNoMetricsFound if none match.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, runID string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	// Snapshots are ordered by creation time; walk latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatches(snap, "record_kind", RecordKindMetrics) {
			continue
		}
		if !snapshotMatches(snap, "run_id", runID) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		// Path filtering is coarse; record fields decide.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindMetrics {
				continue
			}
			if runID != "" && toString(record["run_id"]) != runID {
				continue
			}
			return record, nil
		}
	}
	return nil, ErrNoMetricsFound
}

// Counters extracts the counter map of a metrics record.
func Counters(record map[string]any) map[string]int64 {
	out := make(map[string]int64)
	raw, _ := record["counters"].(map[string]any)
	for k, v := range raw {
		out[k] = toInt64(v)
	}
	return out
}
