package stillsuit

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that an identifier-based lookup matched zero
	// entities.
	ErrNotFound = errors.New("entity not found")

	// ErrUnknownField signals a filter referencing a field that does not
	// exist on the entity type.
	ErrUnknownField = errors.New("unknown field")

	// ErrConflict signals an insert colliding with an existing identifier.
	ErrConflict = errors.New("entity already exists")

	// ErrUnsupportedOperation signals an operation the backend cannot
	// serve, such as predicate queries on a key-value store.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// OpError wraps a backend error with the entity name and the operation
// that failed. The underlying error is reachable through errors.Unwrap,
// so sentinel checks like errors.Is(err, ErrNotFound) keep working.
type OpError struct {
	Entity string
	Op     string
	Err    error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Entity, e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func opError(entity, op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Entity: entity, Op: op, Err: err}
}
