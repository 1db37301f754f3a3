package repositories

import (
	"context"
	"time"

	"disputedesk/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type alertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) CreateFraudAlert(ctx context.Context, alert *models.FraudAlert) error {
	return translate(r.db.WithContext(ctx).Create(alert).Error, "fraud alert not found")
}

func (r *alertRepository) GetFraudAlert(ctx context.Context, id uuid.UUID) (*models.FraudAlert, error) {
	var alert models.FraudAlert
	if err := r.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, translate(err, "fraud alert not found")
	}
	return &alert, nil
}

func (r *alertRepository) ListFraudAlerts(ctx context.Context, filter FraudAlertFilter) ([]*models.FraudAlert, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.FraudAlert{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.Acknowledged != nil {
		q = q.Where("acknowledged = ?", *filter.Acknowledged)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := page(filter.Offset, filter.Limit)
	var alerts []*models.FraudAlert
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&alerts).Error; err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

func (r *alertRepository) AcknowledgeFraudAlert(ctx context.Context, id uuid.UUID, resolution *models.FraudResolution, operatorID string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"acknowledged":    true,
		"acknowledged_at": at,
		"acknowledged_by": operatorID,
	}
	if resolution != nil {
		updates["resolution"] = *resolution
	}
	result := r.db.WithContext(ctx).Model(&models.FraudAlert{}).
		Where("id = ? AND acknowledged = ?", id, false).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *alertRepository) CreatePreDisputeAlert(ctx context.Context, alert *models.PreDisputeAlert) error {
	return translate(r.db.WithContext(ctx).Create(alert).Error, "pre-dispute alert not found")
}

func (r *alertRepository) GetPreDisputeAlert(ctx context.Context, id uuid.UUID) (*models.PreDisputeAlert, error) {
	var alert models.PreDisputeAlert
	if err := r.db.WithContext(ctx).First(&alert, "id = ?", id).Error; err != nil {
		return nil, translate(err, "pre-dispute alert not found")
	}
	return &alert, nil
}

func (r *alertRepository) ListPreDisputeAlerts(ctx context.Context, filter PreDisputeAlertFilter) ([]*models.PreDisputeAlert, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.PreDisputeAlert{})
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := page(filter.Offset, filter.Limit)
	var alerts []*models.PreDisputeAlert
	if err := q.Order("sent_at DESC").Offset(offset).Limit(limit).Find(&alerts).Error; err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

func (r *alertRepository) TransitionPreDisputeAlert(ctx context.Context, t PreDisputeTransition) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.PreDisputeAlert{}).
		Where("id = ? AND status IN ?", t.AlertID, t.From)
	switch t.Expiry {
	case ExpiryGuardUnexpired:
		q = q.Where("expires_at > ?", t.At)
	case ExpiryGuardExpired:
		q = q.Where("expires_at <= ?", t.At)
	}

	updates := map[string]interface{}{"status": t.To}
	if t.To == models.PreDisputeStatusViewed {
		updates["viewed_at"] = t.At
	}
	if t.To.IsTerminal() {
		updates["resolved_at"] = t.At
	}

	result := q.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *alertRepository) ListOverduePreDisputeAlerts(ctx context.Context, now time.Time, limit int) ([]*models.PreDisputeAlert, error) {
	var alerts []*models.PreDisputeAlert
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at <= ?", models.OpenPreDisputeStatuses, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

func (r *alertRepository) CreateInstantResolution(ctx context.Context, res *models.InstantResolution) error {
	return translate(r.db.WithContext(ctx).Create(res).Error, "instant resolution not found")
}

func (r *alertRepository) GetInstantResolutionByAlert(ctx context.Context, alertID uuid.UUID) (*models.InstantResolution, error) {
	var res models.InstantResolution
	if err := r.db.WithContext(ctx).First(&res, "alert_id = ?", alertID).Error; err != nil {
		return nil, translate(err, "instant resolution not found")
	}
	return &res, nil
}

func (r *alertRepository) UpdateInstantResolutionEffect(ctx context.Context, id uuid.UUID, status models.EffectStatus, effectErr string) error {
	result := r.db.WithContext(ctx).Model(&models.InstantResolution{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"effect_status":   status,
			"effect_error":    effectErr,
			"effect_attempts": gorm.Expr("effect_attempts + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "instant resolution not found")
	}
	return nil
}

func (r *alertRepository) ListInstantResolutionsByEffect(ctx context.Context, filter EffectFilter) ([]*models.InstantResolution, error) {
	q := r.db.WithContext(ctx).Where("effect_status = ?", filter.Status)
	if filter.CreatedBefore != nil {
		q = q.Where("created_at <= ?", *filter.CreatedBefore)
	}
	if filter.MaxAttempts > 0 {
		q = q.Where("effect_attempts < ?", filter.MaxAttempts)
	}
	_, limit := page(0, filter.Limit)

	var res []*models.InstantResolution
	err := q.Order("created_at ASC").Limit(limit).Find(&res).Error
	return res, err
}
