package repositories

import (
	"context"
	"errors"

	"disputedesk/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type disputeRepository struct {
	db *gorm.DB
}

func NewDisputeRepository(db *gorm.DB) DisputeRepository {
	return &disputeRepository{db: db}
}

func (r *disputeRepository) Create(ctx context.Context, dispute *models.DisputeCase) error {
	return translate(r.db.WithContext(ctx).Create(dispute).Error, "dispute not found")
}

func (r *disputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DisputeCase, error) {
	var dispute models.DisputeCase
	if err := r.db.WithContext(ctx).First(&dispute, "id = ?", id).Error; err != nil {
		return nil, translate(err, "dispute not found")
	}
	return &dispute, nil
}

func (r *disputeRepository) GetByRefundTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.DisputeCase, error) {
	var dispute models.DisputeCase
	if err := r.db.WithContext(ctx).First(&dispute, "refund_transaction_id = ?", transactionID).Error; err != nil {
		return nil, translate(err, "dispute not found")
	}
	return &dispute, nil
}

func (r *disputeRepository) FindOpenByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.DisputeCase, error) {
	var dispute models.DisputeCase
	err := r.db.WithContext(ctx).
		Where("transaction_id = ? AND status IN ?", transactionID, models.OpenDisputeStatuses).
		Order("created_at ASC").
		First(&dispute).Error
	if err != nil {
		return nil, translate(err, "no open dispute for transaction")
	}
	return &dispute, nil
}

func (r *disputeRepository) ExistsByExternalRef(ctx context.Context, ref string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.DisputeCase{}).Where("external_ref = ?", ref).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *disputeRepository) List(ctx context.Context, filter DisputeFilter) ([]*models.DisputeCase, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.DisputeCase{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.TransactionID != nil {
		q = q.Where("transaction_id = ?", *filter.TransactionID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := page(filter.Offset, filter.Limit)
	var disputes []*models.DisputeCase
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&disputes).Error; err != nil {
		return nil, 0, err
	}
	return disputes, total, nil
}

func (r *disputeRepository) Transition(ctx context.Context, t DisputeTransition) (bool, error) {
	updates := map[string]interface{}{}
	if t.To != "" {
		updates["status"] = t.To
	}
	if t.SetRefundState != nil {
		updates["refund_state"] = *t.SetRefundState
	}
	if t.RefundAmount != nil {
		updates["refund_amount"] = *t.RefundAmount
	}
	if t.RefundTransactionID != nil {
		updates["refund_transaction_id"] = *t.RefundTransactionID
	}
	if t.IncrementRefundAttempts {
		updates["refund_attempts"] = gorm.Expr("refund_attempts + 1")
	}
	if t.ResolvedBy != nil {
		updates["resolved_by"] = *t.ResolvedBy
	}
	if t.ResolvedAt != nil {
		updates["resolved_at"] = *t.ResolvedAt
	}
	if t.Notes != nil {
		updates["notes"] = *t.Notes
	}
	if len(updates) == 0 {
		return false, errors.New("dispute transition changes nothing")
	}

	q := r.db.WithContext(ctx).Model(&models.DisputeCase{}).Where("id = ?", t.ID)
	if len(t.From) > 0 {
		q = q.Where("status IN ?", t.From)
	}
	if len(t.RefundStates) > 0 {
		q = q.Where("refund_state IN ?", t.RefundStates)
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
