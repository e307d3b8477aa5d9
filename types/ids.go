package types

import "strconv"

// OutputID is an allocated unique identifier. Created by an OutputIDDriver,
// never mutated, never reused.
type OutputID struct {
	value int64
}

// NewOutputID wraps an allocated value.
func NewOutputID(v int64) OutputID {
	return OutputID{value: v}
}

// Value returns the allocated value.
func (o OutputID) Value() int64 {
	return o.value
}

// IDOrigin records where an emitted identifier came from.
type IDOrigin uint8

const (
	// OriginSource marks an id passed through from input data.
	OriginSource IDOrigin = iota + 1
	// OriginGenerated marks an id minted by an OutputIDDriver.
	OriginGenerated
)

// String returns "source" or "generated".
func (o IDOrigin) String() string {
	switch o {
	case OriginSource:
		return "source"
	case OriginGenerated:
		return "generated"
	default:
		return "unknown"
	}
}

// EmittedID is the identifier carried by an emitted element. It remembers
// whether the value was passed through or generated so merged identifier
// spaces can be told apart.
type EmittedID struct {
	origin IDOrigin
	value  int64
}

// SourceID wraps a pass-through identifier.
func SourceID(v int64) EmittedID {
	return EmittedID{origin: OriginSource, value: v}
}

// GeneratedID wraps an allocated identifier.
func GeneratedID(id OutputID) EmittedID {
	return EmittedID{origin: OriginGenerated, value: id.Value()}
}

// Value returns the numeric identifier.
func (e EmittedID) Value() int64 {
	return e.value
}

// Origin returns where the identifier came from.
func (e EmittedID) Origin() IDOrigin {
	return e.origin
}

// IsZero reports whether e was never assigned.
func (e EmittedID) IsZero() bool {
	return e.origin == 0
}

// String renders the numeric value.
func (e EmittedID) String() string {
	return strconv.FormatInt(e.value, 10)
}
