// Package resolution validates operator actions against alert state and
// applies them exactly once.
//
// Every state change is a conditional update guarded by the state the caller
// observed, so concurrent operators never both win. The InstantResolution row,
// the alert transition and the audit entry commit together; the ledger side
// effect is dispatched after commit and retried by the reconciler when it fails.
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
	"disputedesk/internal/services/ledger"
	"disputedesk/internal/services/notification"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SystemActor is recorded for transitions nobody asked for, such as expiry.
const SystemActor = "system"

var (
	errLostRace = apperrors.ErrInvalidState
	errExpired  = apperrors.ErrInvalidState.WithMessage("alert has expired")
)

type Engine struct {
	store    repositories.Store
	ledger   ledger.Service
	recorder *audit.Recorder
	notifier *notification.Service
	log      *logrus.Logger
	now      func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(
	store repositories.Store,
	ledgerSvc ledger.Service,
	recorder *audit.Recorder,
	notifier *notification.Service,
	log *logrus.Logger,
	opts ...Option,
) *Engine {
	if store == nil {
		panic("store is required")
	}
	if ledgerSvc == nil {
		panic("ledger service is required")
	}
	e := &Engine{
		store:    store,
		ledger:   ledgerSvc,
		recorder: recorder,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// ResolutionRequest is an operator's choice for a pre-dispute alert.
type ResolutionRequest struct {
	AlertID        uuid.UUID
	ResolutionType string
	OperatorID     string
	Feedback       string
}

type ResolutionResult struct {
	Status       models.PreDisputeStatus `json:"status"`
	ResolutionID uuid.UUID               `json:"resolution_id"`
	EffectStatus models.EffectStatus     `json:"effect_status"`
	DisputeID    *uuid.UUID              `json:"dispute_id,omitempty"`
}

type EscalationResult struct {
	Status    models.PreDisputeStatus `json:"status"`
	DisputeID uuid.UUID               `json:"dispute_id"`
}

type AckResult struct {
	Acknowledged        bool                    `json:"acknowledged"`
	AlreadyAcknowledged bool                    `json:"already_acknowledged"`
	Resolution          *models.FraudResolution `json:"resolution,omitempty"`
}

// dependency classifies infrastructure failures, leaving domain errors untouched.
func dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *apperrors.DomainError
	if errors.As(err, &de) {
		return err
	}
	return apperrors.ErrDependencyUnavailable.Wrap(fmt.Errorf("%s: %w", op, err))
}

func (e *Engine) publish(ctx context.Context, eventType string, category models.AlertCategory, id uuid.UUID, status string) {
	e.notifier.AlertChanged(ctx, eventType, category, id, status)
}
