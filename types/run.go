// Package types defines the core domain types for the lattice runtime.
//
//nolint:revive // types is a common Go package naming convention
package types

import "errors"

// RunMeta identifies a single movement or generation run.
type RunMeta struct {
	// RunID is the canonical run identifier. Must be non-empty.
	RunID string
	// Seed drives every random decision made during the run.
	// Two runs with the same seed and schema produce the same shapes.
	Seed uint64
}

// Validate checks that the run identity is usable.
func (r *RunMeta) Validate() error {
	if r == nil {
		return errors.New("run meta is required")
	}
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	return nil
}
