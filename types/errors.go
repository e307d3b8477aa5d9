package types

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match with errors.Is.
var (
	// ErrConfiguration marks a required setting with no value and no default.
	ErrConfiguration = errors.New("configuration error")

	// ErrSchemaReference marks a schema that names an undeclared type.
	ErrSchemaReference = errors.New("schema reference error")

	// ErrUnimplemented marks an operation a component explicitly does not
	// provide. Callers can tell a missing feature from a runtime failure.
	ErrUnimplemented = errors.New("capability not implemented")

	// ErrDuplicateID marks an identifier issued twice. It can only come from
	// a defective driver and is never expected at runtime.
	ErrDuplicateID = errors.New("duplicate identifier issued")

	// ErrPhaseInFlight is returned when a phase is started while another is running.
	ErrPhaseInFlight = errors.New("a phase is already in flight")

	// ErrPhaseAlreadyRun is returned when a phase is started twice on one controller.
	ErrPhaseAlreadyRun = errors.New("phase already started on this controller")

	// ErrPhaseOrder is returned when PhaseTwo is started before PhaseOne completed.
	ErrPhaseOrder = errors.New("phase two requires a completed phase one")

	// ErrRangeOverlap is returned when a minting id range overlaps pass-through ids.
	ErrRangeOverlap = errors.New("generated id range overlaps input id range")

	// ErrDegenerateDistribution is returned for an empty or all-zero weight map.
	ErrDegenerateDistribution = errors.New("distribution requires at least one positive count")
)

// ConfigError reports a missing or invalid configuration key.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// Is matches ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigError builds a ConfigError.
func NewConfigError(key, reason string) *ConfigError {
	return &ConfigError{Key: key, Reason: reason}
}

// WriteError reports a failure encoding or writing one element.
// It aborts the owning worker's chunk and fails the phase.
type WriteError struct {
	Phase Phase
	Type  ElementType
	Label string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("phase %s: write %s %q: %v", e.Phase, e.Type, e.Label, e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// Unimplemented returns an error wrapping ErrUnimplemented for op.
func Unimplemented(component, op string) error {
	return fmt.Errorf("%s: %s: %w", component, op, ErrUnimplemented)
}
