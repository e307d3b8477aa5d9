package schema

import (
	"fmt"

	"github.com/pithecene-io/lattice/types"
)

// ReferenceError reports a schema entry that names an undeclared type, or
// declares a type name twice. It matches types.ErrSchemaReference.
type ReferenceError struct {
	Owner     string
	Field     string
	Name      string
	Duplicate bool
}

func (e *ReferenceError) Error() string {
	switch {
	case e.Duplicate:
		return fmt.Sprintf("schema: %s declares %s %q twice", e.Owner, e.Field, e.Name)
	case e.Name == "":
		return fmt.Sprintf("schema: %s: %s is required", e.Owner, e.Field)
	default:
		return fmt.Sprintf("schema: %s: %s references undeclared type %q", e.Owner, e.Field, e.Name)
	}
}

// Is matches types.ErrSchemaReference.
func (e *ReferenceError) Is(target error) bool {
	return target == types.ErrSchemaReference
}
