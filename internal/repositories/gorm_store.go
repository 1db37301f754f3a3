package repositories

import (
	"context"

	"gorm.io/gorm"
)

type gormStore struct {
	db *gorm.DB
}

// NewStore returns the Postgres-backed Store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Alerts() AlertRepository     { return NewAlertRepository(s.db) }
func (s *gormStore) Disputes() DisputeRepository { return NewDisputeRepository(s.db) }
func (s *gormStore) Ledger() LedgerRepository    { return NewLedgerRepository(s.db) }
func (s *gormStore) Audit() AuditRepository      { return NewAuditRepository(s.db) }

func (s *gormStore) ExecuteInTransaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}
