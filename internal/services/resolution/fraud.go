package resolution

import (
	"context"
	"fmt"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/services/audit"
	"disputedesk/internal/services/ledger"
	"disputedesk/internal/services/notification"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type FraudAlertInput struct {
	TransactionID uuid.UUID
	UserID        uuid.UUID
	RiskScore     int
	Amount        decimal.Decimal
	Message       string
}

func (e *Engine) IngestFraudAlert(ctx context.Context, in FraudAlertInput, actorID string) (*models.FraudAlert, error) {
	if in.RiskScore < 0 || in.RiskScore > 100 {
		return nil, apperrors.ErrValidation.WithMessage("risk_score must be between 0 and 100")
	}
	if !in.Amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount.WithMessage("alert amount must be positive")
	}

	alert := &models.FraudAlert{
		ID:            uuid.New(),
		TransactionID: in.TransactionID,
		UserID:        in.UserID,
		RiskScore:     in.RiskScore,
		Amount:        in.Amount,
		Message:       in.Message,
		CreatedAt:     e.clock(),
	}
	err := e.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if err := tx.Alerts().CreateFraudAlert(ctx, alert); err != nil {
			return err
		}
		_, err := e.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      actorID,
			ResourceType: models.ResourceFraudAlert,
			ResourceID:   alert.ID.String(),
			Action:       audit.ActionCreated,
			After:        alert,
		})
		return err
	})
	if err != nil {
		return nil, dependency("ingest fraud alert", err)
	}

	e.publish(ctx, notification.EventAlertCreated, models.AlertCategoryFraud, alert.ID, "open")
	return alert, nil
}

func (e *Engine) GetFraudAlert(ctx context.Context, id uuid.UUID) (*models.FraudAlert, error) {
	alert, err := e.store.Alerts().GetFraudAlert(ctx, id)
	if err != nil {
		return nil, dependency("get fraud alert", err)
	}
	return alert, nil
}

func (e *Engine) ListFraudAlerts(ctx context.Context, filter repositories.FraudAlertFilter) ([]*models.FraudAlert, int64, error) {
	alerts, total, err := e.store.Alerts().ListFraudAlerts(ctx, filter)
	if err != nil {
		return nil, 0, dependency("list fraud alerts", err)
	}
	return alerts, total, nil
}

// AcknowledgeAlert marks the alert as seen. Acknowledging twice is a no-op.
func (e *Engine) AcknowledgeAlert(ctx context.Context, id uuid.UUID, operatorID string) (*AckResult, error) {
	return e.acknowledge(ctx, id, nil, operatorID)
}

// DeferAlert acknowledges the alert without any ledger effect.
func (e *Engine) DeferAlert(ctx context.Context, id uuid.UUID, operatorID string) (*AckResult, error) {
	deferred := models.FraudResolutionDeferred
	return e.acknowledge(ctx, id, &deferred, operatorID)
}

func (e *Engine) acknowledge(ctx context.Context, id uuid.UUID, resolution *models.FraudResolution, operatorID string) (*AckResult, error) {
	alert, err := e.store.Alerts().GetFraudAlert(ctx, id)
	if err != nil {
		return nil, dependency("get fraud alert", err)
	}
	if alert.Acknowledged {
		return &AckResult{Acknowledged: true, AlreadyAcknowledged: true, Resolution: alert.Resolution}, nil
	}

	now := e.clock()
	var won bool
	err = e.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		var err error
		won, err = tx.Alerts().AcknowledgeFraudAlert(ctx, id, resolution, operatorID, now)
		if err != nil || !won {
			return err
		}
		after := map[string]interface{}{"acknowledged": true}
		if resolution != nil {
			after["resolution"] = *resolution
		}
		_, err = e.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      operatorID,
			ResourceType: models.ResourceFraudAlert,
			ResourceID:   id.String(),
			Action:       audit.ActionAcknowledged,
			Before:       map[string]interface{}{"acknowledged": false},
			After:        after,
		})
		return err
	})
	if err != nil {
		return nil, dependency("acknowledge fraud alert", err)
	}

	if !won {
		// Another operator got there first; report what they stored.
		current, err := e.store.Alerts().GetFraudAlert(ctx, id)
		if err != nil {
			return nil, dependency("get fraud alert", err)
		}
		return &AckResult{Acknowledged: true, AlreadyAcknowledged: true, Resolution: current.Resolution}, nil
	}

	e.log.WithFields(logrus.Fields{
		"alert_id":    id,
		"operator_id": operatorID,
	}).Info("fraud alert acknowledged")
	e.publish(ctx, notification.EventAlertUpdated, models.AlertCategoryFraud, id, "acknowledged")
	return &AckResult{Acknowledged: true, Resolution: resolution}, nil
}

func fraudKey(id uuid.UUID) string {
	return "fraud:" + id.String()
}

// QuickAction approves or blocks the transaction behind a fraud alert and
// acknowledges the alert. The acknowledgement and the ledger action commit
// together, so the ledger is only touched by the caller whose acknowledgement
// won. A repeated call returns the first outcome instead of acting twice.
func (e *Engine) QuickAction(ctx context.Context, id uuid.UUID, action string, operatorID string) (*AckResult, error) {
	var ledgerAction models.LedgerActionType
	switch models.FraudResolution(action) {
	case models.FraudResolutionApproved:
		ledgerAction = models.LedgerActionApproved
	case models.FraudResolutionBlocked:
		ledgerAction = models.LedgerActionBlocked
	default:
		return nil, apperrors.ErrInvalidAction.WithMessage(fmt.Sprintf("unknown quick action %q", action))
	}

	alert, err := e.store.Alerts().GetFraudAlert(ctx, id)
	if err != nil {
		return nil, dependency("get fraud alert", err)
	}
	if alert.Acknowledged {
		return settledQuickAction(alert)
	}

	resolution := models.FraudResolution(ledgerAction)
	now := e.clock()
	var won bool
	err = e.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		var err error
		won, err = tx.Alerts().AcknowledgeFraudAlert(ctx, id, &resolution, operatorID, now)
		if err != nil || !won {
			return err
		}
		if _, _, err := e.ledger.ApplyIn(ctx, tx, ledger.Directive{
			Key:           fraudKey(id),
			AlertID:       id,
			TransactionID: alert.TransactionID,
			UserID:        alert.UserID,
			Action:        ledgerAction,
			Amount:        alert.Amount,
			ActorID:       operatorID,
		}); err != nil {
			return err
		}
		_, err = e.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      operatorID,
			ResourceType: models.ResourceFraudAlert,
			ResourceID:   id.String(),
			Action:       audit.ActionAcknowledged,
			Before:       map[string]interface{}{"acknowledged": false},
			After:        map[string]interface{}{"acknowledged": true, "resolution": resolution},
		})
		return err
	})
	if err != nil {
		return nil, dependency("quick action", err)
	}

	if !won {
		current, err := e.store.Alerts().GetFraudAlert(ctx, id)
		if err != nil {
			return nil, dependency("get fraud alert", err)
		}
		return settledQuickAction(current)
	}

	e.log.WithFields(logrus.Fields{
		"alert_id":    id,
		"operator_id": operatorID,
		"action":      ledgerAction,
	}).Info("fraud alert quick action applied")
	e.publish(ctx, notification.EventAlertUpdated, models.AlertCategoryFraud, id, "acknowledged")
	return &AckResult{Acknowledged: true, Resolution: &resolution}, nil
}

// settledQuickAction answers a quick action on an alert that is already
// acknowledged. Only an approve or block outcome counts as the same action.
func settledQuickAction(alert *models.FraudAlert) (*AckResult, error) {
	if alert.Resolution != nil {
		switch *alert.Resolution {
		case models.FraudResolutionApproved, models.FraudResolutionBlocked:
			return &AckResult{Acknowledged: true, AlreadyAcknowledged: true, Resolution: alert.Resolution}, nil
		}
	}
	return nil, apperrors.ErrInvalidState.WithMessage("alert was already acknowledged without an action")
}
