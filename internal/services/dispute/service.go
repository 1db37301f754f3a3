// Package dispute manages dispute cases and their staged refunds.
package dispute

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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotTransactionOwner = apperrors.ErrValidation.WithMessage("user is not involved in this transaction")
	ErrDisputeOpen         = apperrors.ErrInvalidState.WithMessage("a dispute is already open for this transaction")
	ErrRefundInFlight      = apperrors.ErrAlreadyResolved.WithMessage("dispute already resolved or refund in progress")
)

// refundable are the refund states from which a new refund may be staged.
var refundable = []models.RefundState{models.RefundStateNone, models.RefundStateReversed}

type Service struct {
	store    repositories.Store
	ledger   ledger.Service
	recorder *audit.Recorder
	log      *logrus.Logger
	now      func() time.Time
}

func NewService(store repositories.Store, ledgerSvc ledger.Service, recorder *audit.Recorder, log *logrus.Logger) *Service {
	return &Service{store: store, ledger: ledgerSvc, recorder: recorder, log: log, now: time.Now}
}

// WithClock replaces time.Now, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type RefundResult struct {
	Status              models.DisputeStatus `json:"status"`
	RefundState         models.RefundState   `json:"refund_state"`
	RefundTransactionID uuid.UUID            `json:"refund_transaction_id"`
}

func (s *Service) FileDispute(ctx context.Context, transactionID, userID uuid.UUID, reason string) (*models.DisputeCase, error) {
	txn, err := s.store.Ledger().GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("transaction not found")
		}
		return nil, apperrors.Unavailable(err)
	}
	if txn.UserID != userID {
		return nil, ErrNotTransactionOwner
	}
	if txn.Type != models.TransactionTypePayment {
		return nil, apperrors.ErrValidation.WithMessage("only payments can be disputed")
	}

	dispute := &models.DisputeCase{
		ID:            uuid.New(),
		TransactionID: txn.ID,
		UserID:        userID,
		Reason:        reason,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		Status:        models.DisputeStatusPending,
	}
	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if _, err := tx.Disputes().FindOpenByTransactionID(ctx, transactionID); err == nil {
			return ErrDisputeOpen
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if err := tx.Disputes().Create(ctx, dispute); err != nil {
			return err
		}
		_, err := s.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      userID.String(),
			ResourceType: models.ResourceDisputeCase,
			ResourceID:   dispute.ID.String(),
			Action:       audit.ActionCreated,
			After:        dispute,
		})
		return err
	})
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}

	s.log.WithFields(logrus.Fields{
		"dispute_id":     dispute.ID,
		"transaction_id": transactionID,
	}).Info("dispute filed")
	return dispute, nil
}

func (s *Service) GetDispute(ctx context.Context, id uuid.UUID) (*models.DisputeCase, error) {
	dispute, err := s.store.Disputes().GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	return dispute, nil
}

func (s *Service) ListDisputes(ctx context.Context, filter repositories.DisputeFilter) ([]*models.DisputeCase, int64, error) {
	disputes, total, err := s.store.Disputes().List(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.Unavailable(err)
	}
	return disputes, total, nil
}

func (s *Service) StartReview(ctx context.Context, id uuid.UUID, operatorID string) (*models.DisputeCase, error) {
	return s.move(ctx, id, operatorID, []models.DisputeStatus{models.DisputeStatusPending}, models.DisputeStatusUnderReview, "")
}

func (s *Service) StartInvestigation(ctx context.Context, id uuid.UUID, operatorID string) (*models.DisputeCase, error) {
	return s.move(ctx, id, operatorID, []models.DisputeStatus{models.DisputeStatusUnderReview}, models.DisputeStatusInvestigating, "")
}

// Resolve closes the case in the customer's favour without moving money.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, operatorID, notes string) (*models.DisputeCase, error) {
	return s.move(ctx, id, operatorID, models.OpenDisputeStatuses, models.DisputeStatusResolved, notes)
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID, operatorID, notes string) (*models.DisputeCase, error) {
	return s.move(ctx, id, operatorID, models.OpenDisputeStatuses, models.DisputeStatusRejected, notes)
}

func (s *Service) move(ctx context.Context, id uuid.UUID, operatorID string, from []models.DisputeStatus, to models.DisputeStatus, notes string) (*models.DisputeCase, error) {
	dispute, err := s.store.Disputes().GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	if dispute.Status.IsTerminal() {
		return nil, apperrors.ErrAlreadyResolved
	}

	now := s.now().UTC()
	t := repositories.DisputeTransition{
		ID:           id,
		From:         from,
		RefundStates: refundable,
		To:           to,
	}
	if to.IsTerminal() {
		t.ResolvedBy = &operatorID
		t.ResolvedAt = &now
	}
	if notes != "" {
		t.Notes = &notes
	}

	action := audit.ActionStatusChanged
	if to == models.DisputeStatusRejected {
		action = audit.ActionRejected
	}
	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		won, err := tx.Disputes().Transition(ctx, t)
		if err != nil {
			return err
		}
		if !won {
			return apperrors.ErrInvalidState.WithMessage(fmt.Sprintf("dispute cannot move from %s to %s", dispute.Status, to))
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      operatorID,
			ResourceType: models.ResourceDisputeCase,
			ResourceID:   id.String(),
			Action:       action,
			Before:       map[string]interface{}{"status": dispute.Status},
			After:        map[string]interface{}{"status": to, "notes": notes},
		})
		return err
	})
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	return s.store.Disputes().GetByID(ctx, id)
}

func refundKey(id uuid.UUID, attempt int) string {
	return fmt.Sprintf("dispute:%s:refund:%d", id, attempt)
}

// ProcessRefund stages the refund and then commits it. When the commit fails
// the refund stays pending_reconciliation and ErrPartialFailure is returned
// with the result; the reconciler finishes the job.
func (s *Service) ProcessRefund(ctx context.Context, id uuid.UUID, amount decimal.Decimal, operatorID string) (*RefundResult, error) {
	if !amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount.WithMessage("refund amount must be positive")
	}
	dispute, err := s.store.Disputes().GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	if dispute.Status.IsTerminal() || !hasRefundState(refundable, dispute.RefundState) {
		return nil, ErrRefundInFlight
	}
	if amount.GreaterThan(dispute.Amount) {
		return nil, apperrors.ErrInvalidAmount.WithMessage("refund amount exceeds the disputed amount")
	}

	txn, err := s.stage(ctx, dispute, amount, operatorID)
	if err != nil {
		return nil, err
	}
	result := &RefundResult{
		Status:              dispute.Status,
		RefundState:         models.RefundStatePendingReconciliation,
		RefundTransactionID: txn.ID,
	}

	if err := s.commit(ctx, txn, operatorID); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"dispute_id":     id,
			"transaction_id": txn.ID,
		}).Warn("refund commit failed, left for reconciliation")
		return result, apperrors.ErrPartialFailure.Wrap(err)
	}

	result.Status = models.DisputeStatusRefunded
	result.RefundState = models.RefundStateCompleted
	s.log.WithFields(logrus.Fields{
		"dispute_id":     id,
		"transaction_id": txn.ID,
		"amount":         amount.StringFixed(2),
	}).Info("refund completed")
	return result, nil
}

func hasRefundState(set []models.RefundState, state models.RefundState) bool {
	for _, s := range set {
		if s == state {
			return true
		}
	}
	return false
}

// stage claims the case and books a pending refund transaction in one unit.
func (s *Service) stage(ctx context.Context, dispute *models.DisputeCase, amount decimal.Decimal, operatorID string) (*models.Transaction, error) {
	pending := models.RefundStatePendingReconciliation
	txnID := uuid.New()
	key := refundKey(dispute.ID, dispute.RefundAttempts+1)
	disputeID := dispute.ID
	txn := &models.Transaction{
		ID:             txnID,
		UserID:         dispute.UserID,
		Amount:         amount,
		Currency:       dispute.Currency,
		Type:           models.TransactionTypeRefund,
		Status:         models.TransactionStatusPendingReconciliation,
		IdempotencyKey: &key,
		ReferenceID:    &dispute.TransactionID,
		Description:    "dispute refund",
		Metadata:       models.JSON{"dispute_id": disputeID.String()},
	}

	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		won, err := tx.Disputes().Transition(ctx, repositories.DisputeTransition{
			ID:                      dispute.ID,
			From:                    models.OpenDisputeStatuses,
			RefundStates:            refundable,
			SetRefundState:          &pending,
			RefundAmount:            &amount,
			RefundTransactionID:     &txnID,
			IncrementRefundAttempts: true,
		})
		if err != nil {
			return err
		}
		if !won {
			return ErrRefundInFlight
		}
		if err := s.ledger.CreateTransaction(ctx, tx, txn, operatorID); err != nil {
			if errors.Is(err, repositories.ErrDuplicateKey) {
				return ErrRefundInFlight
			}
			return err
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      operatorID,
			ResourceType: models.ResourceDisputeCase,
			ResourceID:   dispute.ID.String(),
			Action:       audit.ActionRefundStaged,
			Before:       map[string]interface{}{"refund_state": dispute.RefundState},
			After: map[string]interface{}{
				"refund_state":          pending,
				"refund_amount":         amount.StringFixed(2),
				"refund_transaction_id": txnID.String(),
				"idempotency_key":       key,
			},
		})
		return err
	})
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	return txn, nil
}

// commit credits the wallet and finalizes both the transaction and the case.
// Replaying it for the same transaction is safe: the balance delta is keyed
// by the transaction's idempotency key and both updates are conditional.
func (s *Service) commit(ctx context.Context, txn *models.Transaction, operatorID string) error {
	return s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		dispute, err := tx.Disputes().GetByRefundTransactionID(ctx, txn.ID)
		if err != nil {
			return err
		}
		if dispute.RefundState != models.RefundStatePendingReconciliation {
			return apperrors.ErrInvalidState.WithMessage("refund is not pending reconciliation")
		}

		if _, err := s.ledger.IncrementBalance(ctx, tx, ledger.Increment{
			UserID:         txn.UserID,
			Amount:         txn.Amount,
			Currency:       txn.Currency,
			IdempotencyKey: *txn.IdempotencyKey,
			Reason:         models.DeltaReasonDisputeRefund,
			ReferenceID:    &txn.ID,
			ActorID:        operatorID,
		}); err != nil && !errors.Is(err, repositories.ErrDuplicateKey) {
			return err
		}

		won, err := tx.Ledger().UpdateTransactionStatus(ctx, txn.ID, models.TransactionStatusPendingReconciliation, models.TransactionStatusCompleted)
		if err != nil {
			return err
		}
		if !won {
			return apperrors.ErrInvalidState.WithMessage("refund transaction is no longer pending")
		}

		now := s.now().UTC()
		completed := models.RefundStateCompleted
		won, err = tx.Disputes().Transition(ctx, repositories.DisputeTransition{
			ID:             dispute.ID,
			From:           models.OpenDisputeStatuses,
			RefundStates:   []models.RefundState{models.RefundStatePendingReconciliation},
			To:             models.DisputeStatusRefunded,
			SetRefundState: &completed,
			ResolvedBy:     &operatorID,
			ResolvedAt:     &now,
		})
		if err != nil {
			return err
		}
		if !won {
			return apperrors.ErrInvalidState.WithMessage("dispute changed while committing refund")
		}

		if _, err := s.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      operatorID,
			ResourceType: models.ResourceTransaction,
			ResourceID:   txn.ID.String(),
			Action:       audit.ActionStatusChanged,
			Before:       map[string]interface{}{"status": models.TransactionStatusPendingReconciliation},
			After:        map[string]interface{}{"status": models.TransactionStatusCompleted},
		}); err != nil {
			return err
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      operatorID,
			ResourceType: models.ResourceDisputeCase,
			ResourceID:   dispute.ID.String(),
			Action:       audit.ActionRefundCompleted,
			Before:       map[string]interface{}{"status": dispute.Status, "refund_state": dispute.RefundState},
			After:        map[string]interface{}{"status": models.DisputeStatusRefunded, "refund_state": completed},
		})
		return err
	})
}

// CompleteRefund retries the commit of a staged refund.
func (s *Service) CompleteRefund(ctx context.Context, transactionID uuid.UUID, actorID string) error {
	txn, err := s.store.Ledger().GetTransaction(ctx, transactionID)
	if err != nil {
		return apperrors.Unavailable(err)
	}
	if txn.Status != models.TransactionStatusPendingReconciliation {
		return nil
	}
	if err := s.commit(ctx, txn, actorID); err != nil {
		return apperrors.Unavailable(err)
	}
	s.log.WithField("transaction_id", transactionID).Info("reconciled pending refund")
	return nil
}

// ReverseRefund abandons a staged refund. The case stays open with
// refund_state reversed so an operator can try again.
func (s *Service) ReverseRefund(ctx context.Context, transactionID uuid.UUID, actorID, reason string) error {
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		won, err := tx.Ledger().UpdateTransactionStatus(ctx, transactionID, models.TransactionStatusPendingReconciliation, models.TransactionStatusReversed)
		if err != nil || !won {
			return err
		}
		if _, err := s.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      actorID,
			ResourceType: models.ResourceTransaction,
			ResourceID:   transactionID.String(),
			Action:       audit.ActionRefundReversed,
			Before:       map[string]interface{}{"status": models.TransactionStatusPendingReconciliation},
			After:        map[string]interface{}{"status": models.TransactionStatusReversed, "reason": reason},
		}); err != nil {
			return err
		}

		dispute, err := tx.Disputes().GetByRefundTransactionID(ctx, transactionID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		reversed := models.RefundStateReversed
		won, err = tx.Disputes().Transition(ctx, repositories.DisputeTransition{
			ID:             dispute.ID,
			RefundStates:   []models.RefundState{models.RefundStatePendingReconciliation},
			SetRefundState: &reversed,
		})
		if err != nil || !won {
			return err
		}
		_, err = s.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      actorID,
			ResourceType: models.ResourceDisputeCase,
			ResourceID:   dispute.ID.String(),
			Action:       audit.ActionRefundReversed,
			Before:       map[string]interface{}{"refund_state": dispute.RefundState},
			After:        map[string]interface{}{"refund_state": reversed, "reason": reason},
		})
		return err
	})
	if err != nil {
		return apperrors.Unavailable(err)
	}
	s.log.WithField("transaction_id", transactionID).Warn("pending refund reversed")
	return nil
}

// ExternalDispute is a dispute reported by the card processor.
type ExternalDispute struct {
	ExternalRef string
	ChargeRef   string
	Reason      string
	Amount      decimal.Decimal
	Currency    string
}

// ImportExternal files a case for a processor dispute once. It reports false
// when the dispute was imported before or the charge is unknown.
func (s *Service) ImportExternal(ctx context.Context, ext ExternalDispute) (bool, error) {
	exists, err := s.store.Disputes().ExistsByExternalRef(ctx, ext.ExternalRef)
	if err != nil {
		return false, apperrors.Unavailable(err)
	}
	if exists {
		return false, nil
	}
	txn, err := s.store.Ledger().GetTransactionByExternalRef(ctx, ext.ChargeRef)
	if errors.Is(err, apperrors.ErrNotFound) {
		s.log.WithFields(logrus.Fields{
			"external_ref": ext.ExternalRef,
			"charge":       ext.ChargeRef,
		}).Warn("skipping processor dispute for unknown charge")
		return false, nil
	}
	if err != nil {
		return false, apperrors.Unavailable(err)
	}

	ref := ext.ExternalRef
	currency := ext.Currency
	if currency == "" {
		currency = txn.Currency
	}
	dispute := &models.DisputeCase{
		ID:            uuid.New(),
		TransactionID: txn.ID,
		UserID:        txn.UserID,
		Reason:        ext.Reason,
		Amount:        ext.Amount,
		Currency:      currency,
		Status:        models.DisputeStatusPending,
		ExternalRef:   &ref,
	}
	err = s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		if _, err := tx.Disputes().FindOpenByTransactionID(ctx, txn.ID); err == nil {
			return ErrDisputeOpen
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if err := tx.Disputes().Create(ctx, dispute); err != nil {
			return err
		}
		_, err := s.recorder.Record(ctx, tx, audit.Entry{
			ActorID:      "stripe",
			ResourceType: models.ResourceDisputeCase,
			ResourceID:   dispute.ID.String(),
			Action:       audit.ActionImported,
			After:        dispute,
		})
		return err
	})
	if errors.Is(err, ErrDisputeOpen) || errors.Is(err, repositories.ErrDuplicateKey) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Unavailable(err)
	}
	return true, nil
}
