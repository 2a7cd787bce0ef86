package stillsuit

import "time"

// SoftDeletable is an opt-in marker interface. Entities implementing it
// are marked deleted instead of removed by the memory backend; reads
// skip them unless the connector was built with WithIncludeDeleted, and
// inserting under a tombstoned id revives the entity in place.
// SQL backends leave soft deletion to the schema.
type SoftDeletable interface {
	IsDeleted() bool
	SetDeleted(deleted bool)
	SetDeletedAt(at *time.Time)
}

// markSoftDeleted marks item deleted when it supports soft deletion and
// reports whether it did.
func markSoftDeleted[T any](item *T) bool {
	sd, ok := any(item).(SoftDeletable)
	if !ok {
		return false
	}
	now := time.Now()
	sd.SetDeleted(true)
	sd.SetDeletedAt(&now)
	return true
}

func isSoftDeleted[T any](item *T) bool {
	if sd, ok := any(item).(SoftDeletable); ok {
		return sd.IsDeleted()
	}
	return false
}
