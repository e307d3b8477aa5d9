package lode

import (
	"context"
	"fmt"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/lattice/encoder"
	"github.com/pithecene-io/lattice/types"
)

// Filter narrows a scan to partition values. Empty fields match all.
type Filter struct {
	RunID       string
	Phase       string
	ElementType types.ElementType
	Label       string
}

func (f Filter) matchesSnapshot(snap *lode.DatasetSnapshot) bool {
	return snapshotMatches(snap, "record_kind", RecordKindElement) &&
		snapshotMatches(snap, "run_id", f.RunID) &&
		snapshotMatches(snap, "phase", f.Phase) &&
		snapshotMatches(snap, "element_type", string(f.ElementType)) &&
		snapshotMatches(snap, "label", f.Label)
}

func (f Filter) matchesRecord(m map[string]any) bool {
	if m["record_kind"] != RecordKindElement || toString(m["kind"]) != encoder.KindElement {
		return false
	}
	return (f.RunID == "" || toString(m["run_id"]) == f.RunID) &&
		(f.Phase == "" || toString(m["phase"]) == f.Phase) &&
		(f.ElementType == "" || toString(m["element_type"]) == string(f.ElementType)) &&
		(f.Label == "" || toString(m["label"]) == f.Label)
}

// Scanner reads element records back from a dataset, one snapshot at a
// time, oldest first. It is not safe for concurrent use.
type Scanner struct {
	dataset lode.Dataset
	filter  Filter

	snapshots []*lode.DatasetSnapshot
	listed    bool
	buf       []any
}

// NewScanner scans ds for records matching filter.
func NewScanner(ds lode.Dataset, filter Filter) *Scanner {
	return &Scanner{dataset: ds, filter: filter}
}

// Next returns the next matching record, or ok=false when the dataset is
// exhausted.
func (s *Scanner) Next(ctx context.Context) (encoder.Record, bool, error) {
	if !s.listed {
		snaps, err := s.dataset.Snapshots(ctx)
		if err != nil {
			return encoder.Record{}, false, WrapReadError(err, "snapshots")
		}
		for _, snap := range snaps {
			if s.filter.matchesSnapshot(snap) {
				s.snapshots = append(s.snapshots, snap)
			}
		}
		s.listed = true
	}

	for {
		for len(s.buf) > 0 {
			item := s.buf[0]
			s.buf = s.buf[1:]
			m, ok := item.(map[string]any)
			if !ok || !s.filter.matchesRecord(m) {
				continue
			}
			return fromRecordMap(m), true, nil
		}
		if len(s.snapshots) == 0 {
			return encoder.Record{}, false, nil
		}
		snap := s.snapshots[0]
		s.snapshots = s.snapshots[1:]
		data, err := s.dataset.Read(ctx, snap.ID)
		if err != nil {
			return encoder.Record{}, false, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}
		s.buf = data
	}
}
