package stillsuit

// DefaultIDAttribute is the field name assumed to identify an entity
// when no other attribute is configured.
const DefaultIDAttribute = "id"

// Identity describes how a repository reads and writes the identifying
// attribute of T. The accessor pair is supplied by the caller so the
// contract works across differently-named primary keys without runtime
// reflection on the hot path.
type Identity[T any, ID comparable] struct {
	// Attribute names the id field as known to filters and storage.
	// Empty means DefaultIDAttribute.
	Attribute string

	Get func(*T) ID
	Set func(*T, ID)
}

// NewIdentity builds an Identity over the default "id" attribute.
func NewIdentity[T any, ID comparable](get func(*T) ID, set func(*T, ID)) Identity[T, ID] {
	return Identity[T, ID]{Get: get, Set: set}
}

// ID returns the value of the identifying attribute on item.
func (i Identity[T, ID]) ID(item *T) ID {
	return i.Get(item)
}

// SetID sets the identifying attribute on item and returns item.
func (i Identity[T, ID]) SetID(item *T, id ID) *T {
	i.Set(item, id)
	return item
}

// IsZero reports whether item's identifying attribute holds the zero
// value of ID, meaning the backend (or an IDGenerator) should populate it.
func (i Identity[T, ID]) IsZero(item *T) bool {
	var zero ID
	return i.Get(item) == zero
}

func (i Identity[T, ID]) attribute() string {
	if i.Attribute == "" {
		return DefaultIDAttribute
	}
	return i.Attribute
}

// CheckNotFound converts an absent result to ErrNotFound. It is the
// helper backends use after lookups that report absence as nil.
func CheckNotFound[T any](item *T) (*T, error) {
	if item == nil {
		return nil, ErrNotFound
	}
	return item, nil
}
