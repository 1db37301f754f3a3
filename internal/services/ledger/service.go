package ledger

import (
	"context"
	"errors"
	"fmt"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/services/audit"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultCurrency = "USD"

type service struct {
	store    repositories.Store
	recorder *audit.Recorder
	log      *logrus.Logger
}

// NewService creates a new ledger service
func NewService(store repositories.Store, recorder *audit.Recorder, log *logrus.Logger) Service {
	if store == nil {
		panic("store is required")
	}
	if recorder == nil {
		panic("audit recorder is required")
	}
	return &service{
		store:    store,
		recorder: recorder,
		log:      log,
	}
}

func (s *service) CreateTransaction(ctx context.Context, st repositories.Store, txn *models.Transaction, actorID string) error {
	if txn.Currency == "" {
		txn.Currency = defaultCurrency
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if err := st.Ledger().CreateTransaction(ctx, txn); err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return err
		}
		return apperrors.Unavailable(fmt.Errorf("create transaction: %w", err))
	}

	_, err := s.recorder.Record(ctx, st, audit.Entry{
		ActorID:      actorID,
		ResourceType: models.ResourceTransaction,
		ResourceID:   txn.ID.String(),
		Action:       audit.ActionCreated,
		After:        txn,
	})
	return err
}

func (s *service) IncrementBalance(ctx context.Context, st repositories.Store, inc Increment) (*models.Wallet, error) {
	if inc.Amount.IsZero() {
		return nil, apperrors.ErrInvalidAmount.WithMessage("increment amount must not be zero")
	}
	if inc.IdempotencyKey == "" {
		return nil, errors.New("ledger: increment requires an idempotency key")
	}
	currency := inc.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	if _, err := st.Ledger().EnsureWallet(ctx, inc.UserID, currency); err != nil {
		return nil, apperrors.Unavailable(fmt.Errorf("ensure wallet: %w", err))
	}

	delta := &models.BalanceDelta{
		UserID:         inc.UserID,
		Amount:         inc.Amount,
		IdempotencyKey: inc.IdempotencyKey,
		Reason:         inc.Reason,
		ReferenceID:    inc.ReferenceID,
	}
	wallet, err := st.Ledger().IncrementBalance(ctx, delta, inc.AllowNegative)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrDuplicateKey),
			errors.Is(err, apperrors.ErrInsufficientBalance),
			errors.Is(err, apperrors.ErrWalletNotFound):
			return nil, err
		}
		return nil, apperrors.Unavailable(fmt.Errorf("increment balance: %w", err))
	}

	// The balance may have moved since EnsureWallet; derive before from the update.
	before := wallet.Balance.Sub(inc.Amount)
	_, err = s.recorder.Record(ctx, st, audit.Entry{
		ActorID:      inc.ActorID,
		ResourceType: models.ResourceWallet,
		ResourceID:   inc.UserID.String(),
		Action:       audit.ActionBalanceIncremented,
		Before:       map[string]interface{}{"balance": before.StringFixed(2)},
		After: map[string]interface{}{
			"balance":         wallet.Balance.StringFixed(2),
			"delta":           inc.Amount.StringFixed(2),
			"idempotency_key": inc.IdempotencyKey,
			"reason":          inc.Reason,
		},
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (s *service) Apply(ctx context.Context, d Directive) (*models.LedgerAction, bool, error) {
	var (
		action  *models.LedgerAction
		applied bool
	)
	err := s.store.ExecuteInTransaction(ctx, func(tx repositories.Store) error {
		var err error
		action, applied, err = s.ApplyIn(ctx, tx, d)
		return err
	})
	if err != nil {
		return nil, false, apperrors.Unavailable(err)
	}

	s.log.WithFields(logrus.Fields{
		"key":     d.Key,
		"action":  action.Action,
		"applied": applied,
	}).Info("ledger directive processed")
	return action, applied, nil
}

func (s *service) ApplyIn(ctx context.Context, st repositories.Store, d Directive) (*models.LedgerAction, bool, error) {
	if d.Key == "" {
		return nil, false, errors.New("ledger: directive requires a key")
	}

	candidate := &models.LedgerAction{
		IdempotencyKey: d.Key,
		TransactionID:  d.TransactionID,
		AlertID:        d.AlertID,
		Action:         d.Action,
		ActorID:        d.ActorID,
	}
	err := st.Ledger().CreateAction(ctx, candidate)
	if errors.Is(err, repositories.ErrDuplicateKey) {
		existing, err := st.Ledger().GetActionByKey(ctx, d.Key)
		if err != nil {
			return nil, false, apperrors.Unavailable(err)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, apperrors.Unavailable(fmt.Errorf("create ledger action: %w", err))
	}

	after := map[string]interface{}{"action": d.Action, "key": d.Key}
	if d.Action == models.LedgerActionRefunded {
		refundID, err := s.refund(ctx, st, d)
		if err != nil {
			return nil, false, err
		}
		after["refund_transaction_id"] = refundID.String()
	}

	if _, err := s.recorder.Record(ctx, st, audit.Entry{
		ActorID:      d.ActorID,
		ResourceType: models.ResourceTransaction,
		ResourceID:   d.TransactionID.String(),
		Action:       audit.ActionEffectApplied,
		After:        after,
	}); err != nil {
		return nil, false, err
	}
	return candidate, true, nil
}

// refund books a completed refund transaction and credits the wallet.
func (s *service) refund(ctx context.Context, tx repositories.Store, d Directive) (uuid.UUID, error) {
	if !d.Amount.IsPositive() {
		return uuid.Nil, apperrors.ErrInvalidAmount.WithMessage("refund amount must be positive")
	}
	key := d.Key + ":refund"
	original := d.TransactionID
	txn := &models.Transaction{
		UserID:         d.UserID,
		Amount:         d.Amount,
		Currency:       d.Currency,
		Type:           models.TransactionTypeRefund,
		Status:         models.TransactionStatusCompleted,
		IdempotencyKey: &key,
		ReferenceID:    &original,
		Description:    "refund issued from alert resolution",
		Metadata:       models.JSON{"alert_id": d.AlertID.String()},
	}
	if err := s.CreateTransaction(ctx, tx, txn, d.ActorID); err != nil {
		return uuid.Nil, err
	}

	_, err := s.IncrementBalance(ctx, tx, Increment{
		UserID:         d.UserID,
		Amount:         d.Amount,
		Currency:       d.Currency,
		IdempotencyKey: key,
		Reason:         models.DeltaReasonAlertRefund,
		ReferenceID:    &txn.ID,
		ActorID:        d.ActorID,
	})
	return txn.ID, err
}

func (s *service) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	txn, err := s.store.Ledger().GetTransaction(ctx, id)
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	return txn, nil
}

func (s *service) CheckWallet(ctx context.Context, userID uuid.UUID) (*WalletReport, error) {
	wallet, err := s.store.Ledger().GetWallet(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrWalletNotFound) {
			return nil, apperrors.ErrNotFound.WithMessage("wallet not found")
		}
		return nil, apperrors.Unavailable(err)
	}
	sum, err := s.store.Ledger().SumDeltas(ctx, userID)
	if err != nil {
		return nil, apperrors.Unavailable(err)
	}
	return &WalletReport{
		Wallet:     wallet,
		DeltaSum:   sum,
		Consistent: sum.Equal(wallet.Balance),
	}, nil
}
