package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store is the ledger store: wallets, bookings, ledger entries and the
// service price lookup. A Store obtained inside Atomic is bound to that
// transaction and must not escape it.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Atomic runs fn in a single database transaction. Any error returned by fn
// rolls back every write fn made.
func (s *Store) Atomic(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}
