package repositories

import (
	"context"

	"disputedesk/internal/models"

	"gorm.io/gorm"
)

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, entry *models.AuditEntry) error {
	return translate(r.db.WithContext(ctx).Create(entry).Error, "audit entry not found")
}

// LockTail takes a transaction-scoped advisory lock keyed by the resource.
// A row lock on the tail would not cover a resource's first entry.
func (r *auditRepository) LockTail(ctx context.Context, resourceType, resourceID string) (*models.AuditEntry, error) {
	err := r.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", resourceType+"/"+resourceID).Error
	if err != nil {
		return nil, err
	}

	var entries []*models.AuditEntry
	err = r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("sequence DESC").
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

func (r *auditRepository) List(ctx context.Context, resourceType, resourceID string) ([]*models.AuditEntry, error) {
	var entries []*models.AuditEntry
	err := r.db.WithContext(ctx).
		Where("resource_type = ? AND resource_id = ?", resourceType, resourceID).
		Order("sequence ASC").
		Find(&entries).Error
	return entries, err
}
