// Package testutils holds the entity fixtures shared by the stillsuit
// test suite.
package testutils

import "time"

// Account is the standard test entity: string id, a couple of filterable
// fields and a timestamp for range filters.
type Account struct {
	ID        string    `db:"id"`
	Owner     string    `db:"owner"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
}

// Ledger exercises integer identifiers.
type Ledger struct {
	ID    int64 `db:"id"`
	Total int64 `db:"total"`
}

// Document exercises soft deletion.
type Document struct {
	ID        string     `db:"id"`
	Title     string     `db:"title"`
	Deleted   bool       `db:"deleted"`
	DeletedAt *time.Time `db:"deleted_at"`
}

func (d *Document) IsDeleted() bool            { return d.Deleted }
func (d *Document) SetDeleted(deleted bool)    { d.Deleted = deleted }
func (d *Document) SetDeletedAt(at *time.Time) { d.DeletedAt = at }
