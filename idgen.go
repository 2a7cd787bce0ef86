package stillsuit

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator produces string identifiers for entities added with a
// blank id. Backends only invoke it when constructed with one and when
// the repository's ID type is string.
type IDGenerator func() string

var _uuidGenerator = func() string {
	return uuid.New().String()
}

// NewUUID returns a random UUIDv4 string.
func NewUUID() string {
	return _uuidGenerator()
}

// UseUUID swaps the UUID generator, e.g. for deterministic tests.
func UseUUID(fn func() string) {
	_uuidGenerator = fn
}

var _ulidGenerator = func() string {
	var (
		entropy = rand.New(rand.NewSource(time.Now().UnixNano()))
		ms      = ulid.Timestamp(time.Now())
		id, _   = ulid.New(ms, entropy)
	)
	return id.String()
}

// NewULID returns a lexicographically sortable ULID string.
func NewULID() string {
	return _ulidGenerator()
}

// UseULID swaps the ULID generator, e.g. for deterministic tests.
func UseULID(fn func() string) {
	_ulidGenerator = fn
}

// fillID populates item's id attribute from gen when it is blank and the
// ID type is string. Non-string ID types are left to the backend.
func fillID[T any, ID comparable](identity Identity[T, ID], item *T, gen IDGenerator) {
	if gen == nil || !identity.IsZero(item) {
		return
	}
	if id, ok := any(gen()).(ID); ok {
		identity.Set(item, id)
	}
}
