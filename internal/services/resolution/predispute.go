package resolution

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/services/audit"
	"disputedesk/internal/services/notification"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultAlertTTL applies when an ingested alert carries no expiry.
const DefaultAlertTTL = 72 * time.Hour

type PreDisputeAlertInput struct {
	TransactionID     uuid.UUID
	UserID            uuid.UUID
	AlertType         string
	Message           string
	Amount            decimal.Decimal
	Currency          string
	ResolutionOptions models.ResolutionOptions
	ExpiresAt         *time.Time
}

func (e *Engine) IngestPreDisputeAlert(ctx context.Context, in PreDisputeAlertInput, actorID string) (*models.PreDisputeAlert, error) {
	if !in.Amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount.WithMessage("alert amount must be positive")
	}
	if len(in.ResolutionOptions) == 0 {
		return nil, apperrors.ErrValidation.WithMessage("at least one resolution option is required")
	}

	now := e.clock()
	expiresAt := now.Add(DefaultAlertTTL)
	if in.ExpiresAt != nil {
		expiresAt = in.ExpiresAt.UTC()
	}
	if !expiresAt.After(now) {
		return nil, apperrors.ErrValidation.WithMessage("expires_at must be in the future")
	}
	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}

	alert := &models.PreDisputeAlert{
		ID:                uuid.New(),
		TransactionID:     in.TransactionID,
		UserID:            in.UserID,
		AlertType:         in.AlertType,
		Message:           in.Message,
		Amount:            in.Amount,
		Currency:          currency,
		ResolutionOptions: in.ResolutionOptions,
		Status:            models.PreDisputeStatusSent,
		SentAt:            now,
		ExpiresAt:         expiresAt,
	}
	err := e.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if err := tx.Alerts().CreatePreDisputeAlert(ctx, alert); err != nil {
			return err
		}
		_, err := e.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      actorID,
			ResourceType: models.ResourcePreDisputeAlert,
			ResourceID:   alert.ID.String(),
			Action:       audit.ActionCreated,
			After:        alert,
		})
		return err
	})
	if err != nil {
		return nil, dependency("ingest pre-dispute alert", err)
	}

	e.publish(ctx, notification.EventAlertCreated, models.AlertCategoryPreDispute, alert.ID, string(alert.Status))
	return alert, nil
}

// GetPreDisputeAlert returns the alert, persisting a lapsed expiry first.
func (e *Engine) GetPreDisputeAlert(ctx context.Context, id uuid.UUID) (*models.PreDisputeAlert, error) {
	alert, err := e.store.Alerts().GetPreDisputeAlert(ctx, id)
	if err != nil {
		return nil, dependency("get pre-dispute alert", err)
	}
	if alert.EffectiveStatus(e.clock()) == models.PreDisputeStatusExpired && !alert.Status.IsTerminal() {
		if _, err := e.expire(ctx, alert, SystemActor); err != nil {
			e.log.WithError(err).WithField("alert_id", id).Warn("lazy expiry failed")
		}
		return e.store.Alerts().GetPreDisputeAlert(ctx, id)
	}
	return alert, nil
}

func (e *Engine) ListPreDisputeAlerts(ctx context.Context, filter repositories.PreDisputeAlertFilter) ([]*models.PreDisputeAlert, int64, error) {
	alerts, total, err := e.store.Alerts().ListPreDisputeAlerts(ctx, filter)
	if err != nil {
		return nil, 0, dependency("list pre-dispute alerts", err)
	}
	now := e.clock()
	for _, a := range alerts {
		a.Status = a.EffectiveStatus(now)
	}
	return alerts, total, nil
}

func (e *Engine) GetResolution(ctx context.Context, alertID uuid.UUID) (*models.InstantResolution, error) {
	res, err := e.store.Alerts().GetInstantResolutionByAlert(ctx, alertID)
	if err != nil {
		return nil, dependency("get instant resolution", err)
	}
	return res, nil
}

// ViewAlert moves a sent alert to viewed. Any other state is returned unchanged.
func (e *Engine) ViewAlert(ctx context.Context, id uuid.UUID, operatorID string) (*models.PreDisputeAlert, error) {
	alert, err := e.GetPreDisputeAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Status != models.PreDisputeStatusSent {
		return alert, nil
	}

	now := e.clock()
	var won bool
	err = e.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		won, err = tx.Alerts().TransitionPreDisputeAlert(ctx, repositories.PreDisputeTransition{
			AlertID: id,
			From:    []models.PreDisputeStatus{models.PreDisputeStatusSent},
			To:      models.PreDisputeStatusViewed,
			At:      now,
			Expiry:  repositories.ExpiryGuardUnexpired,
		})
		if err != nil || !won {
			return err
		}
		_, err = e.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      operatorID,
			ResourceType: models.ResourcePreDisputeAlert,
			ResourceID:   id.String(),
			Action:       audit.ActionViewed,
			Before:       map[string]interface{}{"status": alert.Status},
			After:        map[string]interface{}{"status": models.PreDisputeStatusViewed},
		})
		return err
	})
	if err != nil {
		return nil, dependency("view alert", err)
	}
	if won {
		e.publish(ctx, notification.EventAlertUpdated, models.AlertCategoryPreDispute, id, string(models.PreDisputeStatusViewed))
	}
	return e.store.Alerts().GetPreDisputeAlert(ctx, id)
}

// checkActionable applies the NotFound, then InvalidState ordering shared by
// resolve and escalate. An overdue alert is expired on the way out.
func (e *Engine) checkActionable(ctx context.Context, id uuid.UUID) (*models.PreDisputeAlert, time.Time, error) {
	alert, err := e.store.Alerts().GetPreDisputeAlert(ctx, id)
	if err != nil {
		return nil, time.Time{}, dependency("get pre-dispute alert", err)
	}
	now := e.clock()
	if alert.Status.IsTerminal() {
		return nil, now, errLostRace
	}
	if alert.IsExpiredAt(now) {
		if _, err := e.expire(ctx, alert, SystemActor); err != nil {
			e.log.WithError(err).WithField("alert_id", id).Warn("lazy expiry failed")
		}
		return nil, now, errExpired
	}
	return alert, now, nil
}

// SubmitResolution resolves a pre-dispute alert with one of the engine's
// resolution types. Only one call per alert can succeed.
func (e *Engine) SubmitResolution(ctx context.Context, req ResolutionRequest) (*ResolutionResult, error) {
	alert, now, err := e.checkActionable(ctx, req.AlertID)
	if err != nil {
		return nil, err
	}

	resolutionType, ok := models.ParseResolutionType(req.ResolutionType)
	if !ok {
		return nil, apperrors.ErrInvalidAction.WithMessage(fmt.Sprintf("unknown resolution type %q", req.ResolutionType))
	}
	if !alert.ResolutionOptions.Has(string(resolutionType)) {
		return nil, apperrors.ErrInvalidAction.WithMessage(fmt.Sprintf("resolution type %q is not offered for this alert", resolutionType))
	}

	processing := now.Sub(alert.SentAt).Milliseconds()
	if processing < 0 {
		processing = 0
	}
	res := &models.InstantResolution{
		ID:               uuid.New(),
		AlertID:          alert.ID,
		ResolutionType:   resolutionType,
		ProcessingTimeMs: processing,
		OperatorID:       req.OperatorID,
		Feedback:         req.Feedback,
		EffectStatus:     models.EffectStatusPending,
		CreatedAt:        now,
	}
	if resolutionType == models.ResolutionRefund {
		amount := alert.Amount
		res.Amount = &amount
	}

	var linked *uuid.UUID
	err = e.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		won, err := tx.Alerts().TransitionPreDisputeAlert(ctx, repositories.PreDisputeTransition{
			AlertID: alert.ID,
			From:    models.OpenPreDisputeStatuses,
			To:      models.PreDisputeStatusResolved,
			At:      now,
			Expiry:  repositories.ExpiryGuardUnexpired,
		})
		if err != nil {
			return err
		}
		if !won {
			return errLostRace
		}
		if err := tx.Alerts().CreateInstantResolution(ctx, res); err != nil {
			if errors.Is(err, repositories.ErrDuplicateKey) {
				return errLostRace
			}
			return err
		}
		if _, err := e.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      req.OperatorID,
			ResourceType: models.ResourcePreDisputeAlert,
			ResourceID:   alert.ID.String(),
			Action:       audit.ActionResolved,
			Before:       map[string]interface{}{"status": alert.Status},
			After: map[string]interface{}{
				"status":          models.PreDisputeStatusResolved,
				"resolution_type": resolutionType,
				"resolution_id":   res.ID.String(),
			},
		}); err != nil {
			return err
		}

		linked, err = e.closeLinkedDispute(ctx, tx, alert, req.OperatorID, now)
		return err
	})
	if err != nil {
		return nil, dependency("submit resolution", err)
	}

	e.log.WithFields(logrus.Fields{
		"alert_id":        alert.ID,
		"resolution_type": resolutionType,
		"operator_id":     req.OperatorID,
	}).Info("pre-dispute alert resolved")
	e.publish(ctx, notification.EventAlertUpdated, models.AlertCategoryPreDispute, alert.ID, string(models.PreDisputeStatusResolved))

	effect := e.dispatchEffect(ctx, alert, res)
	return &ResolutionResult{
		Status:       models.PreDisputeStatusResolved,
		ResolutionID: res.ID,
		EffectStatus: effect,
		DisputeID:    linked,
	}, nil
}

// closeLinkedDispute resolves an open dispute on the same transaction.
// A dispute with a refund in flight is left to the refund path.
func (e *Engine) closeLinkedDispute(ctx context.Context, tx repositories.Store, alert *models.PreDisputeAlert, operatorID string, now time.Time) (*uuid.UUID, error) {
	dispute, err := tx.Disputes().FindOpenByTransactionID(ctx, alert.TransactionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	notes := fmt.Sprintf("resolved through pre-dispute alert %s", alert.ID)
	won, err := tx.Disputes().Transition(ctx, repositories.DisputeTransition{
		ID:           dispute.ID,
		From:         models.OpenDisputeStatuses,
		RefundStates: []models.RefundState{models.RefundStateNone, models.RefundStateReversed},
		To:           models.DisputeStatusResolved,
		ResolvedBy:   &operatorID,
		ResolvedAt:   &now,
		Notes:        &notes,
	})
	if err != nil || !won {
		return nil, err
	}
	_, err = e.recorder.Record(ctx, tx, audit.Entry{
		ActorID:      operatorID,
		ResourceType: models.ResourceDisputeCase,
		ResourceID:   dispute.ID.String(),
		Action:       audit.ActionStatusChanged,
		Before:       map[string]interface{}{"status": dispute.Status},
		After:        map[string]interface{}{"status": models.DisputeStatusResolved, "source_alert_id": alert.ID.String()},
	})
	if err != nil {
		return nil, err
	}
	return &dispute.ID, nil
}

// EscalateAlert hands the alert over to the dispute workflow, filing a case
// unless the transaction already has an open one.
func (e *Engine) EscalateAlert(ctx context.Context, id uuid.UUID, operatorID, reason string) (*EscalationResult, error) {
	alert, now, err := e.checkActionable(ctx, id)
	if err != nil {
		return nil, err
	}
	if reason == "" {
		reason = alert.Message
	}

	var disputeID uuid.UUID
	err = e.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		won, err := tx.Alerts().TransitionPreDisputeAlert(ctx, repositories.PreDisputeTransition{
			AlertID: id,
			From:    models.OpenPreDisputeStatuses,
			To:      models.PreDisputeStatusEscalated,
			At:      now,
			Expiry:  repositories.ExpiryGuardUnexpired,
		})
		if err != nil {
			return err
		}
		if !won {
			return errLostRace
		}
		if _, err := e.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      operatorID,
			ResourceType: models.ResourcePreDisputeAlert,
			ResourceID:   id.String(),
			Action:       audit.ActionEscalated,
			Before:       map[string]interface{}{"status": alert.Status},
			After:        map[string]interface{}{"status": models.PreDisputeStatusEscalated},
		}); err != nil {
			return err
		}

		existing, err := tx.Disputes().FindOpenByTransactionID(ctx, alert.TransactionID)
		switch {
		case err == nil:
			disputeID = existing.ID
			return nil
		case !errors.Is(err, apperrors.ErrNotFound):
			return err
		}

		alertID := alert.ID
		dispute := &models.DisputeCase{
			ID:            uuid.New(),
			TransactionID: alert.TransactionID,
			UserID:        alert.UserID,
			Reason:        reason,
			Amount:        alert.Amount,
			Currency:      alert.Currency,
			Status:        models.DisputeStatusPending,
			SourceAlertID: &alertID,
		}
		if err := tx.Disputes().Create(ctx, dispute); err != nil {
			return err
		}
		disputeID = dispute.ID
		_, err = e.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      operatorID,
			ResourceType: models.ResourceDisputeCase,
			ResourceID:   dispute.ID.String(),
			Action:       audit.ActionCreated,
			After:        dispute,
		})
		return err
	})
	if err != nil {
		return nil, dependency("escalate alert", err)
	}

	e.publish(ctx, notification.EventAlertUpdated, models.AlertCategoryPreDispute, id, string(models.PreDisputeStatusEscalated))
	return &EscalationResult{Status: models.PreDisputeStatusEscalated, DisputeID: disputeID}, nil
}

// expire persists the expired transition if nobody else got there first.
func (e *Engine) expire(ctx context.Context, alert *models.PreDisputeAlert, actorID string) (bool, error) {
	now := e.clock()
	var won bool
	err := e.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		var err error
		won, err = tx.Alerts().TransitionPreDisputeAlert(ctx, repositories.PreDisputeTransition{
			AlertID: alert.ID,
			From:    models.OpenPreDisputeStatuses,
			To:      models.PreDisputeStatusExpired,
			At:      now,
			Expiry:  repositories.ExpiryGuardExpired,
		})
		if err != nil || !won {
			return err
		}
		_, err = e.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      actorID,
			ResourceType: models.ResourcePreDisputeAlert,
			ResourceID:   alert.ID.String(),
			Action:       audit.ActionExpired,
			Before:       map[string]interface{}{"status": alert.Status},
			After:        map[string]interface{}{"status": models.PreDisputeStatusExpired, "expires_at": alert.ExpiresAt},
		})
		return err
	})
	if err != nil {
		return false, err
	}
	if won {
		e.publish(ctx, notification.EventAlertUpdated, models.AlertCategoryPreDispute, alert.ID, string(models.PreDisputeStatusExpired))
	}
	return won, nil
}

// ExpireOverdue sweeps open alerts whose expires_at has passed.
func (e *Engine) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	alerts, err := e.store.Alerts().ListOverduePreDisputeAlerts(ctx, e.clock(), limit)
	if err != nil {
		return 0, dependency("list overdue alerts", err)
	}
	expired := 0
	for _, alert := range alerts {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		won, err := e.expire(ctx, alert, SystemActor)
		if err != nil {
			e.log.WithError(err).WithField("alert_id", alert.ID).Warn("failed to expire alert")
			continue
		}
		if won {
			expired++
		}
	}
	if expired > 0 {
		e.log.WithField("expired", expired).Info("expired overdue pre-dispute alerts")
	}
	return expired, nil
}
