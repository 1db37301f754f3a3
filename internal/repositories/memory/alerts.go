package memory

import (
	"context"
	"sort"
	"time"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"

	"github.com/google/uuid"
)

type alertRepo struct {
	v *view
}

func stamp(t *time.Time) {
	if t.IsZero() {
		*t = time.Now().UTC()
	}
}

func window[T any](rows []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset >= len(rows) {
		return []T{}
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func hasStatus[S comparable](set []S, s S) bool {
	for _, c := range set {
		if c == s {
			return true
		}
	}
	return false
}

func (r *alertRepo) CreateFraudAlert(ctx context.Context, alert *models.FraudAlert) error {
	defer r.v.lock()()
	d := r.v.s.data
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if _, ok := d.fraudAlerts[alert.ID]; ok {
		return repositories.ErrDuplicateKey
	}
	stamp(&alert.CreatedAt)
	d.fraudAlerts[alert.ID] = *alert
	d.track(alert.ID)
	return nil
}

func (r *alertRepo) GetFraudAlert(ctx context.Context, id uuid.UUID) (*models.FraudAlert, error) {
	defer r.v.lock()()
	alert, ok := r.v.s.data.fraudAlerts[id]
	if !ok {
		return nil, apperrors.ErrNotFound.WithMessage("fraud alert not found")
	}
	return &alert, nil
}

func (r *alertRepo) ListFraudAlerts(ctx context.Context, filter repositories.FraudAlertFilter) ([]*models.FraudAlert, int64, error) {
	defer r.v.lock()()
	var rows []*models.FraudAlert
	for _, a := range r.v.s.data.fraudAlerts {
		if filter.UserID != nil && a.UserID != *filter.UserID {
			continue
		}
		if filter.Acknowledged != nil && a.Acknowledged != *filter.Acknowledged {
			continue
		}
		a := a
		rows = append(rows, &a)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return r.v.rank(rows[i].ID) > r.v.rank(rows[j].ID)
	})
	return window(rows, filter.Offset, filter.Limit), int64(len(rows)), nil
}

func (r *alertRepo) AcknowledgeFraudAlert(ctx context.Context, id uuid.UUID, resolution *models.FraudResolution, operatorID string, at time.Time) (bool, error) {
	defer r.v.lock()()
	if err := r.v.s.injected(OpAcknowledgeFraudAlert); err != nil {
		return false, err
	}
	d := r.v.s.data
	alert, ok := d.fraudAlerts[id]
	if !ok || alert.Acknowledged {
		return false, nil
	}
	alert.Acknowledged = true
	alert.AcknowledgedAt = &at
	alert.AcknowledgedBy = &operatorID
	if resolution != nil {
		r := *resolution
		alert.Resolution = &r
	}
	d.fraudAlerts[id] = alert
	return true, nil
}

func (r *alertRepo) CreatePreDisputeAlert(ctx context.Context, alert *models.PreDisputeAlert) error {
	defer r.v.lock()()
	d := r.v.s.data
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if _, ok := d.preDisputeAlerts[alert.ID]; ok {
		return repositories.ErrDuplicateKey
	}
	d.preDisputeAlerts[alert.ID] = *alert
	d.track(alert.ID)
	return nil
}

func (r *alertRepo) GetPreDisputeAlert(ctx context.Context, id uuid.UUID) (*models.PreDisputeAlert, error) {
	defer r.v.lock()()
	alert, ok := r.v.s.data.preDisputeAlerts[id]
	if !ok {
		return nil, apperrors.ErrNotFound.WithMessage("pre-dispute alert not found")
	}
	return &alert, nil
}

func (r *alertRepo) ListPreDisputeAlerts(ctx context.Context, filter repositories.PreDisputeAlertFilter) ([]*models.PreDisputeAlert, int64, error) {
	defer r.v.lock()()
	var rows []*models.PreDisputeAlert
	for _, a := range r.v.s.data.preDisputeAlerts {
		if filter.UserID != nil && a.UserID != *filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, a.Status) {
			continue
		}
		a := a
		rows = append(rows, &a)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].SentAt.Equal(rows[j].SentAt) {
			return rows[i].SentAt.After(rows[j].SentAt)
		}
		return r.v.rank(rows[i].ID) > r.v.rank(rows[j].ID)
	})
	return window(rows, filter.Offset, filter.Limit), int64(len(rows)), nil
}

func (r *alertRepo) TransitionPreDisputeAlert(ctx context.Context, t repositories.PreDisputeTransition) (bool, error) {
	defer r.v.lock()()
	if err := r.v.s.injected(OpTransitionPreDispute); err != nil {
		return false, err
	}
	d := r.v.s.data
	alert, ok := d.preDisputeAlerts[t.AlertID]
	if !ok || !hasStatus(t.From, alert.Status) {
		return false, nil
	}
	switch t.Expiry {
	case repositories.ExpiryGuardUnexpired:
		if !alert.ExpiresAt.After(t.At) {
			return false, nil
		}
	case repositories.ExpiryGuardExpired:
		if alert.ExpiresAt.After(t.At) {
			return false, nil
		}
	}

	at := t.At
	alert.Status = t.To
	if t.To == models.PreDisputeStatusViewed {
		alert.ViewedAt = &at
	}
	if t.To.IsTerminal() {
		alert.ResolvedAt = &at
	}
	d.preDisputeAlerts[t.AlertID] = alert
	return true, nil
}

func (r *alertRepo) ListOverduePreDisputeAlerts(ctx context.Context, now time.Time, limit int) ([]*models.PreDisputeAlert, error) {
	defer r.v.lock()()
	var rows []*models.PreDisputeAlert
	for _, a := range r.v.s.data.preDisputeAlerts {
		if hasStatus(models.OpenPreDisputeStatuses, a.Status) && !a.ExpiresAt.After(now) {
			a := a
			rows = append(rows, &a)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ExpiresAt.Before(rows[j].ExpiresAt) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *alertRepo) CreateInstantResolution(ctx context.Context, res *models.InstantResolution) error {
	defer r.v.lock()()
	if err := r.v.s.injected(OpCreateInstantResolution); err != nil {
		return err
	}
	d := r.v.s.data
	if _, ok := d.resolutionByAlert[res.AlertID]; ok {
		return repositories.ErrDuplicateKey
	}
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	stamp(&res.CreatedAt)
	res.UpdatedAt = res.CreatedAt
	d.resolutions[res.ID] = *res
	d.resolutionByAlert[res.AlertID] = res.ID
	d.track(res.ID)
	return nil
}

func (r *alertRepo) GetInstantResolutionByAlert(ctx context.Context, alertID uuid.UUID) (*models.InstantResolution, error) {
	defer r.v.lock()()
	d := r.v.s.data
	id, ok := d.resolutionByAlert[alertID]
	if !ok {
		return nil, apperrors.ErrNotFound.WithMessage("instant resolution not found")
	}
	res := d.resolutions[id]
	return &res, nil
}

func (r *alertRepo) UpdateInstantResolutionEffect(ctx context.Context, id uuid.UUID, status models.EffectStatus, effectErr string) error {
	defer r.v.lock()()
	if err := r.v.s.injected(OpUpdateResolutionEffect); err != nil {
		return err
	}
	d := r.v.s.data
	res, ok := d.resolutions[id]
	if !ok {
		return apperrors.ErrNotFound.WithMessage("instant resolution not found")
	}
	res.EffectStatus = status
	res.EffectError = effectErr
	res.EffectAttempts++
	res.UpdatedAt = time.Now().UTC()
	d.resolutions[id] = res
	return nil
}

func (r *alertRepo) ListInstantResolutionsByEffect(ctx context.Context, filter repositories.EffectFilter) ([]*models.InstantResolution, error) {
	defer r.v.lock()()
	var rows []*models.InstantResolution
	for _, res := range r.v.s.data.resolutions {
		switch {
		case res.EffectStatus != filter.Status:
		case filter.CreatedBefore != nil && res.CreatedAt.After(*filter.CreatedBefore):
		case filter.MaxAttempts > 0 && res.EffectAttempts >= filter.MaxAttempts:
		default:
			res := res
			rows = append(rows, &res)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return r.v.rank(rows[i].ID) < r.v.rank(rows[j].ID) })
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return rows, nil
}
