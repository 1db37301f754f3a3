package dispute

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/logging"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/repositories/memory"
	"disputedesk/internal/services/audit"
	"disputedesk/internal/services/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type fixture struct {
	store   *memory.Store
	ledger  ledger.Service
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.Discard()
	st := memory.NewStore()
	rec := audit.NewRecorder(log)
	ledgerSvc := ledger.NewService(st, rec, log)
	return &fixture{
		store:   st,
		ledger:  ledgerSvc,
		service: NewService(st, ledgerSvc, rec, log),
	}
}

func (f *fixture) payment(t *testing.T, amount string) *models.Transaction {
	t.Helper()
	charge := "ch_" + uuid.NewString()[:8]
	txn := &models.Transaction{
		UserID:      uuid.New(),
		Amount:      decimal.RequireFromString(amount),
		Currency:    "USD",
		Type:        models.TransactionTypePayment,
		Status:      models.TransactionStatusCompleted,
		ExternalRef: &charge,
	}
	require.NoError(t, f.store.Ledger().CreateTransaction(context.Background(), txn))
	return txn
}

func (f *fixture) file(t *testing.T, amount string) *models.DisputeCase {
	t.Helper()
	txn := f.payment(t, amount)
	dispute, err := f.service.FileDispute(context.Background(), txn.ID, txn.UserID, "item not received")
	require.NoError(t, err)
	return dispute
}

func (f *fixture) balance(t *testing.T, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	report, err := f.ledger.CheckWallet(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	return report.Wallet.Balance
}

func TestFileDispute(t *testing.T) {
	f := newFixture(t)
	txn := f.payment(t, "80.00")

	_, err := f.service.FileDispute(context.Background(), uuid.New(), txn.UserID, "x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.service.FileDispute(context.Background(), txn.ID, uuid.New(), "x")
	assert.ErrorIs(t, err, ErrNotTransactionOwner)

	dispute, err := f.service.FileDispute(context.Background(), txn.ID, txn.UserID, "item not received")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusPending, dispute.Status)
	assert.True(t, dispute.Amount.Equal(txn.Amount))
	assert.Equal(t, models.RefundStateNone, dispute.RefundState)

	_, err = f.service.FileDispute(context.Background(), txn.ID, txn.UserID, "again")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestFileDispute_OnlyPayments(t *testing.T) {
	f := newFixture(t)
	refund := &models.Transaction{UserID: uuid.New(), Amount: decimal.NewFromInt(5), Type: models.TransactionTypeRefund, Status: models.TransactionStatusCompleted}
	require.NoError(t, f.store.Ledger().CreateTransaction(context.Background(), refund))

	_, err := f.service.FileDispute(context.Background(), refund.ID, refund.UserID, "x")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestWorkflow(t *testing.T) {
	f := newFixture(t)
	dispute := f.file(t, "20.00")

	_, err := f.service.StartInvestigation(context.Background(), dispute.ID, "op-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	got, err := f.service.StartReview(context.Background(), dispute.ID, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusUnderReview, got.Status)

	got, err = f.service.StartInvestigation(context.Background(), dispute.ID, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusInvestigating, got.Status)

	got, err = f.service.Reject(context.Background(), dispute.ID, "op-2", "merchant proved delivery")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusRejected, got.Status)
	assert.Equal(t, "merchant proved delivery", got.Notes)
	require.NotNil(t, got.ResolvedBy)
	assert.Equal(t, "op-2", *got.ResolvedBy)

	_, err = f.service.Resolve(context.Background(), dispute.ID, "op-1", "")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyResolved)

	entries, err := audit.List(context.Background(), f.store, models.ResourceDisputeCase, dispute.ID.String())
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, audit.ActionRejected, entries[3].Action)

	_, err = f.service.GetDispute(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestProcessRefund(t *testing.T) {
	f := newFixture(t)
	dispute := f.file(t, "40.00")

	result, err := f.service.ProcessRefund(context.Background(), dispute.ID, decimal.RequireFromString("40.00"), "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusRefunded, result.Status)
	assert.Equal(t, models.RefundStateCompleted, result.RefundState)

	stored, err := f.service.GetDispute(context.Background(), dispute.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusRefunded, stored.Status)
	require.NotNil(t, stored.RefundTransactionID)
	assert.Equal(t, result.RefundTransactionID, *stored.RefundTransactionID)
	assert.Equal(t, 1, stored.RefundAttempts)

	txn, err := f.ledger.GetTransaction(context.Background(), result.RefundTransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, models.TransactionTypeRefund, txn.Type)
	require.NotNil(t, txn.IdempotencyKey)
	assert.Equal(t, refundKey(dispute.ID, 1), *txn.IdempotencyKey)

	assert.True(t, f.balance(t, dispute.UserID).Equal(decimal.RequireFromString("40.00")))

	_, err = f.service.ProcessRefund(context.Background(), dispute.ID, decimal.RequireFromString("40.00"), "op-1")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyResolved)
	assert.True(t, f.balance(t, dispute.UserID).Equal(decimal.RequireFromString("40.00")))

	entries, err := audit.List(context.Background(), f.store, models.ResourceDisputeCase, dispute.ID.String())
	require.NoError(t, err)
	actions := []string{}
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{audit.ActionCreated, audit.ActionRefundStaged, audit.ActionRefundCompleted}, actions)
}

func TestProcessRefund_Amounts(t *testing.T) {
	f := newFixture(t)
	dispute := f.file(t, "40.00")

	tests := []struct {
		name   string
		amount string
	}{
		{name: "zero", amount: "0"},
		{name: "negative", amount: "-5"},
		{name: "above disputed amount", amount: "40.01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.ProcessRefund(context.Background(), dispute.ID, decimal.RequireFromString(tt.amount), "op-1")
			assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)
		})
	}

	_, err := f.service.ProcessRefund(context.Background(), uuid.New(), decimal.NewFromInt(1), "op-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	result, err := f.service.ProcessRefund(context.Background(), dispute.ID, decimal.RequireFromString("15.00"), "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusRefunded, result.Status)
}

func TestProcessRefund_Concurrent(t *testing.T) {
	f := newFixture(t)
	dispute := f.file(t, "60.00")

	const operators = 6
	var ok, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < operators; i++ {
		g.Go(func() error {
			_, err := f.service.ProcessRefund(context.Background(), dispute.ID, decimal.RequireFromString("60.00"), uuid.NewString())
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, apperrors.ErrAlreadyResolved):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(operators-1), rejected.Load())
	assert.True(t, f.balance(t, dispute.UserID).Equal(decimal.RequireFromString("60.00")))
}

func TestProcessRefund_PartialFailureThenReconcile(t *testing.T) {
	f := newFixture(t)
	dispute := f.file(t, "25.00")
	f.store.FailNext(memory.OpIncrementBalance, errors.New("connection reset"))

	result, err := f.service.ProcessRefund(context.Background(), dispute.ID, decimal.RequireFromString("25.00"), "op-1")
	require.ErrorIs(t, err, apperrors.ErrPartialFailure)
	require.NotNil(t, result)
	assert.Equal(t, models.RefundStatePendingReconciliation, result.RefundState)
	assert.Equal(t, models.DisputeStatusPending, result.Status)

	txn, err := f.ledger.GetTransaction(context.Background(), result.RefundTransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusPendingReconciliation, txn.Status)

	_, err = f.service.ProcessRefund(context.Background(), dispute.ID, decimal.RequireFromString("25.00"), "op-1")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyResolved, "a staged refund blocks a second one")

	require.NoError(t, f.service.CompleteRefund(context.Background(), result.RefundTransactionID, "reconciler"))
	require.NoError(t, f.service.CompleteRefund(context.Background(), result.RefundTransactionID, "reconciler"))

	stored, err := f.service.GetDispute(context.Background(), dispute.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusRefunded, stored.Status)
	assert.Equal(t, models.RefundStateCompleted, stored.RefundState)
	assert.True(t, f.balance(t, dispute.UserID).Equal(decimal.RequireFromString("25.00")))
}

func TestReverseRefund_AllowsRetry(t *testing.T) {
	f := newFixture(t)
	dispute := f.file(t, "30.00")
	f.store.FailNext(memory.OpUpdateTransactionStatus, errors.New("timeout"))

	first, err := f.service.ProcessRefund(context.Background(), dispute.ID, decimal.RequireFromString("30.00"), "op-1")
	require.ErrorIs(t, err, apperrors.ErrPartialFailure)

	require.NoError(t, f.service.ReverseRefund(context.Background(), first.RefundTransactionID, "reconciler", "max attempts reached"))

	txn, err := f.ledger.GetTransaction(context.Background(), first.RefundTransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusReversed, txn.Status)

	stored, err := f.service.GetDispute(context.Background(), dispute.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusPending, stored.Status)
	assert.Equal(t, models.RefundStateReversed, stored.RefundState)

	_, err = f.ledger.CheckWallet(context.Background(), dispute.UserID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound, "no money moved")

	second, err := f.service.ProcessRefund(context.Background(), dispute.ID, decimal.RequireFromString("30.00"), "op-1")
	require.NoError(t, err)
	assert.NotEqual(t, first.RefundTransactionID, second.RefundTransactionID)

	txn, err = f.ledger.GetTransaction(context.Background(), second.RefundTransactionID)
	require.NoError(t, err)
	assert.Equal(t, refundKey(dispute.ID, 2), *txn.IdempotencyKey)
	assert.True(t, f.balance(t, dispute.UserID).Equal(decimal.RequireFromString("30.00")))

	assert.NoError(t, f.service.CompleteRefund(context.Background(), first.RefundTransactionID, "reconciler"), "reversed refunds are ignored")
}

func TestImportExternal(t *testing.T) {
	f := newFixture(t)
	txn := f.payment(t, "99.00")
	ext := ExternalDispute{
		ExternalRef: "dp_123",
		ChargeRef:   *txn.ExternalRef,
		Reason:      "fraudulent",
		Amount:      decimal.RequireFromString("99.00"),
	}

	imported, err := f.service.ImportExternal(context.Background(), ext)
	require.NoError(t, err)
	assert.True(t, imported)

	imported, err = f.service.ImportExternal(context.Background(), ext)
	require.NoError(t, err)
	assert.False(t, imported)

	imported, err = f.service.ImportExternal(context.Background(), ExternalDispute{ExternalRef: "dp_456", ChargeRef: "ch_unknown", Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.False(t, imported)

	imported, err = f.service.ImportExternal(context.Background(), ExternalDispute{ExternalRef: "dp_789", ChargeRef: *txn.ExternalRef, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.False(t, imported, "an open case already covers the charge")

	disputes, total, err := f.service.ListDisputes(context.Background(), repositories.DisputeFilter{TransactionID: &txn.ID, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "USD", disputes[0].Currency)
}

func TestWithClock(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.service.WithClock(func() time.Time { return fixed })
	dispute := f.file(t, "10.00")

	got, err := f.service.Resolve(context.Background(), dispute.ID, "op-1", "goodwill")
	require.NoError(t, err)
	require.NotNil(t, got.ResolvedAt)
	assert.True(t, fixed.Equal(*got.ResolvedAt))
}
