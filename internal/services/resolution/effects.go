package resolution

import (
	"context"
	"time"

	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/services/ledger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func effectAction(t models.ResolutionType) models.LedgerActionType {
	switch t {
	case models.ResolutionBlock:
		return models.LedgerActionBlocked
	case models.ResolutionRefund:
		return models.LedgerActionRefunded
	default:
		return models.LedgerActionApproved
	}
}

func preDisputeKey(alertID uuid.UUID) string {
	return "predispute:" + alertID.String()
}

// dispatchEffect applies the ledger side of a committed resolution and
// records the outcome on the resolution row. It never fails the caller.
func (e *Engine) dispatchEffect(ctx context.Context, alert *models.PreDisputeAlert, res *models.InstantResolution) models.EffectStatus {
	d := ledger.Directive{
		Key:           preDisputeKey(alert.ID),
		AlertID:       alert.ID,
		TransactionID: alert.TransactionID,
		UserID:        alert.UserID,
		Action:        effectAction(res.ResolutionType),
		Currency:      alert.Currency,
		ActorID:       res.OperatorID,
	}
	if res.Amount != nil {
		d.Amount = *res.Amount
	}

	status, message := models.EffectStatusApplied, ""
	if _, _, err := e.ledger.Apply(ctx, d); err != nil {
		status, message = models.EffectStatusFailed, err.Error()
		e.log.WithError(err).WithFields(logrus.Fields{
			"alert_id":      alert.ID,
			"resolution_id": res.ID,
		}).Warn("resolution effect failed, will retry")
	}

	if err := e.store.Alerts().UpdateInstantResolutionEffect(ctx, res.ID, status, message); err != nil {
		e.log.WithError(err).WithField("resolution_id", res.ID).Error("failed to record effect status")
		return models.EffectStatusPending
	}
	return status
}

// RetryEffects re-dispatches failed effects and pending ones older than
// cutoff. Resolutions that reached maxAttempts are left for an operator.
func (e *Engine) RetryEffects(ctx context.Context, cutoff time.Time, maxAttempts, limit int) (int, error) {
	var candidates []*models.InstantResolution
	for _, filter := range []repositories.EffectFilter{
		{Status: models.EffectStatusFailed, MaxAttempts: maxAttempts, Limit: limit},
		{Status: models.EffectStatusPending, CreatedBefore: &cutoff, MaxAttempts: maxAttempts, Limit: limit},
	} {
		rows, err := e.store.Alerts().ListInstantResolutionsByEffect(ctx, filter)
		if err != nil {
			return 0, dependency("list resolution effects", err)
		}
		candidates = append(candidates, rows...)
	}

	applied := 0
	for _, res := range candidates {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		alert, err := e.store.Alerts().GetPreDisputeAlert(ctx, res.AlertID)
		if err != nil {
			e.log.WithError(err).WithField("alert_id", res.AlertID).Warn("cannot load alert for effect retry")
			continue
		}
		if e.dispatchEffect(ctx, alert, res) == models.EffectStatusApplied {
			applied++
		}
	}
	return applied, nil
}
