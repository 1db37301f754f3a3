package ledger

import (
	"context"
	"fmt"
	"testing"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/logging"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/repositories/memory"
	"disputedesk/internal/services/audit"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*memory.Store, Service) {
	t.Helper()
	st := memory.NewStore()
	log := logging.Discard()
	return st, NewService(st, audit.NewRecorder(log), log)
}

func increment(t *testing.T, st repositories.Store, svc Service, inc Increment) (*models.Wallet, error) {
	t.Helper()
	var wallet *models.Wallet
	err := st.ExecuteInTransaction(context.Background(), func(tx repositories.Store) error {
		var err error
		wallet, err = svc.IncrementBalance(context.Background(), tx, inc)
		return err
	})
	return wallet, err
}

func TestIncrementBalance(t *testing.T) {
	st, svc := setup(t)
	userID := uuid.New()

	tests := []struct {
		name    string
		inc     Increment
		balance string
		wantErr error
	}{
		{name: "credit", inc: Increment{UserID: userID, Amount: decimal.NewFromInt(50), IdempotencyKey: "c1"}, balance: "50"},
		{name: "debit", inc: Increment{UserID: userID, Amount: decimal.NewFromInt(-20), IdempotencyKey: "d1"}, balance: "30"},
		{name: "replayed key", inc: Increment{UserID: userID, Amount: decimal.NewFromInt(50), IdempotencyKey: "c1"}, wantErr: repositories.ErrDuplicateKey},
		{name: "overdraft", inc: Increment{UserID: userID, Amount: decimal.NewFromInt(-31), IdempotencyKey: "d2"}, wantErr: apperrors.ErrInsufficientBalance},
		{name: "zero", inc: Increment{UserID: userID, Amount: decimal.Zero, IdempotencyKey: "z"}, wantErr: apperrors.ErrInvalidAmount},
		{name: "allowed overdraft", inc: Increment{UserID: userID, Amount: decimal.NewFromInt(-31), IdempotencyKey: "d3", AllowNegative: true}, balance: "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wallet, err := increment(t, st, svc, tt.inc)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, wallet.Balance.Equal(decimal.RequireFromString(tt.balance)), "balance %s", wallet.Balance)
		})
	}

	report, err := svc.CheckWallet(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, report.Consistent)
	assert.True(t, report.DeltaSum.Equal(decimal.NewFromInt(-1)))

	entries, err := audit.List(context.Background(), st, models.ResourceWallet, userID.String())
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestApply_IsIdempotentPerKey(t *testing.T) {
	st, svc := setup(t)
	d := Directive{
		Key:           "fraud:1",
		AlertID:       uuid.New(),
		TransactionID: uuid.New(),
		UserID:        uuid.New(),
		Action:        models.LedgerActionBlocked,
		ActorID:       "op-1",
	}

	first, applied, err := svc.Apply(context.Background(), d)
	require.NoError(t, err)
	assert.True(t, applied)

	d.Action = models.LedgerActionApproved
	second, applied, err := svc.Apply(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.LedgerActionBlocked, second.Action)

	entries, err := audit.List(context.Background(), st, models.ResourceTransaction, d.TransactionID.String())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// interleavedLedger lets another writer credit the wallet right before each
// guarded increment, as a concurrent transaction would.
type interleavedLedger struct {
	repositories.LedgerRepository
	n int
}

func (l *interleavedLedger) IncrementBalance(ctx context.Context, delta *models.BalanceDelta, allowNegative bool) (*models.Wallet, error) {
	l.n++
	other := &models.BalanceDelta{UserID: delta.UserID, Amount: decimal.NewFromInt(100), IdempotencyKey: fmt.Sprintf("other:%d", l.n), Reason: "test"}
	if _, err := l.LedgerRepository.IncrementBalance(ctx, other, false); err != nil {
		return nil, err
	}
	return l.LedgerRepository.IncrementBalance(ctx, delta, allowNegative)
}

type interleavedStore struct {
	repositories.Store
	ledger *interleavedLedger
}

func (s *interleavedStore) Ledger() repositories.LedgerRepository { return s.ledger }

func TestIncrementBalance_AuditBeforeMatchesUpdate(t *testing.T) {
	st, svc := setup(t)
	userID := uuid.New()
	_, err := increment(t, st, svc, Increment{UserID: userID, Amount: decimal.NewFromInt(5), IdempotencyKey: "seed"})
	require.NoError(t, err)

	racing := &interleavedStore{Store: st, ledger: &interleavedLedger{LedgerRepository: st.Ledger()}}
	wallet, err := svc.IncrementBalance(context.Background(), racing, Increment{UserID: userID, Amount: decimal.NewFromInt(-3), IdempotencyKey: "debit"})
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(102)))

	entries, err := audit.List(context.Background(), st, models.ResourceWallet, userID.String())
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, "105.00", last.BeforeValue["balance"])
	assert.Equal(t, "102.00", last.AfterValue["balance"])
}

func TestApply_RefundCreditsWallet(t *testing.T) {
	st, svc := setup(t)
	userID := uuid.New()
	d := Directive{
		Key:           "predispute:1",
		AlertID:       uuid.New(),
		TransactionID: uuid.New(),
		UserID:        userID,
		Action:        models.LedgerActionRefunded,
		Amount:        decimal.RequireFromString("12.50"),
		ActorID:       "op-1",
	}

	for i := 0; i < 2; i++ {
		_, _, err := svc.Apply(context.Background(), d)
		require.NoError(t, err)
	}

	report, err := svc.CheckWallet(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, report.Wallet.Balance.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, report.Consistent)

	refund, err := st.Ledger().GetTransactionByKey(context.Background(), "predispute:1:refund")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeRefund, refund.Type)
	assert.Equal(t, "USD", refund.Currency)
}

func TestApply_RefundNeedsPositiveAmount(t *testing.T) {
	st, svc := setup(t)
	_, _, err := svc.Apply(context.Background(), Directive{
		Key:    "predispute:2",
		UserID: uuid.New(),
		Action: models.LedgerActionRefunded,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)

	_, err = st.Ledger().GetActionByKey(context.Background(), "predispute:2")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestApply_StoreFailureIsDependencyError(t *testing.T) {
	st, svc := setup(t)
	st.FailNext(memory.OpCreateAction, assert.AnError)

	_, _, err := svc.Apply(context.Background(), Directive{Key: "fraud:3", Action: models.LedgerActionApproved})
	assert.ErrorIs(t, err, apperrors.ErrDependencyUnavailable)
}

func TestCheckWallet_Missing(t *testing.T) {
	_, svc := setup(t)
	_, err := svc.CheckWallet(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
