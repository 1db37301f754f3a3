package memory

import (
	"context"
	"sort"
	"time"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ledgerRepo struct {
	v *view
}

func (r *ledgerRepo) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	defer r.v.lock()()
	if err := r.v.s.injected(OpCreateTransaction); err != nil {
		return err
	}
	d := r.v.s.data
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if _, ok := d.transactions[txn.ID]; ok {
		return repositories.ErrDuplicateKey
	}
	if txn.IdempotencyKey != nil {
		if _, ok := d.transactionKeys[*txn.IdempotencyKey]; ok {
			return repositories.ErrDuplicateKey
		}
	}
	if txn.ExternalRef != nil {
		for _, existing := range d.transactions {
			if existing.ExternalRef != nil && *existing.ExternalRef == *txn.ExternalRef {
				return repositories.ErrDuplicateKey
			}
		}
	}
	stamp(&txn.CreatedAt)
	txn.UpdatedAt = txn.CreatedAt
	d.transactions[txn.ID] = *txn
	if txn.IdempotencyKey != nil {
		d.transactionKeys[*txn.IdempotencyKey] = txn.ID
	}
	d.track(txn.ID)
	return nil
}

func (r *ledgerRepo) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	defer r.v.lock()()
	txn, ok := r.v.s.data.transactions[id]
	if !ok {
		return nil, apperrors.ErrNotFound.WithMessage("transaction not found")
	}
	return &txn, nil
}

func (r *ledgerRepo) GetTransactionByKey(ctx context.Context, key string) (*models.Transaction, error) {
	defer r.v.lock()()
	d := r.v.s.data
	id, ok := d.transactionKeys[key]
	if !ok {
		return nil, apperrors.ErrNotFound.WithMessage("transaction not found")
	}
	txn := d.transactions[id]
	return &txn, nil
}

func (r *ledgerRepo) GetTransactionByExternalRef(ctx context.Context, ref string) (*models.Transaction, error) {
	defer r.v.lock()()
	for _, txn := range r.v.s.data.transactions {
		if txn.ExternalRef != nil && *txn.ExternalRef == ref {
			return &txn, nil
		}
	}
	return nil, apperrors.ErrNotFound.WithMessage("transaction not found")
}

func (r *ledgerRepo) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, from, to models.TransactionStatus) (bool, error) {
	defer r.v.lock()()
	if err := r.v.s.injected(OpUpdateTransactionStatus); err != nil {
		return false, err
	}
	d := r.v.s.data
	txn, ok := d.transactions[id]
	if !ok || txn.Status != from {
		return false, nil
	}
	txn.Status = to
	txn.UpdatedAt = time.Now().UTC()
	d.transactions[id] = txn
	return true, nil
}

func (r *ledgerRepo) ListTransactionsByStatus(ctx context.Context, status models.TransactionStatus, olderThan time.Time, limit int) ([]*models.Transaction, error) {
	defer r.v.lock()()
	var rows []*models.Transaction
	for _, txn := range r.v.s.data.transactions {
		if txn.Status == status && !txn.CreatedAt.After(olderThan) {
			txn := txn
			rows = append(rows, &txn)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return r.v.rank(rows[i].ID) < r.v.rank(rows[j].ID) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r *ledgerRepo) IncrementReconcileAttempts(ctx context.Context, id uuid.UUID) error {
	defer r.v.lock()()
	d := r.v.s.data
	txn, ok := d.transactions[id]
	if !ok {
		return nil
	}
	txn.ReconcileAttempts++
	d.transactions[id] = txn
	return nil
}

func (r *ledgerRepo) EnsureWallet(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	defer r.v.lock()()
	d := r.v.s.data
	wallet, ok := d.wallets[userID]
	if !ok {
		now := time.Now().UTC()
		wallet = models.Wallet{
			UserID:    userID,
			Balance:   decimal.Zero,
			Currency:  currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
		d.wallets[userID] = wallet
	}
	return &wallet, nil
}

func (r *ledgerRepo) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	defer r.v.lock()()
	wallet, ok := r.v.s.data.wallets[userID]
	if !ok {
		return nil, apperrors.ErrWalletNotFound
	}
	return &wallet, nil
}

func (r *ledgerRepo) IncrementBalance(ctx context.Context, delta *models.BalanceDelta, allowNegative bool) (*models.Wallet, error) {
	defer r.v.lock()()
	if err := r.v.s.injected(OpIncrementBalance); err != nil {
		return nil, err
	}
	d := r.v.s.data
	if _, ok := d.deltaKeys[delta.IdempotencyKey]; ok {
		return nil, repositories.ErrDuplicateKey
	}
	wallet, ok := d.wallets[delta.UserID]
	if !ok {
		return nil, apperrors.ErrWalletNotFound
	}
	next := wallet.Balance.Add(delta.Amount)
	if !allowNegative && next.IsNegative() {
		return nil, apperrors.ErrInsufficientBalance
	}

	if delta.ID == uuid.Nil {
		delta.ID = uuid.New()
	}
	stamp(&delta.CreatedAt)
	d.deltas[delta.ID] = *delta
	d.deltaKeys[delta.IdempotencyKey] = delta.ID
	d.track(delta.ID)

	wallet.Balance = next
	wallet.Version++
	wallet.UpdatedAt = time.Now().UTC()
	d.wallets[delta.UserID] = wallet
	return &wallet, nil
}

func (r *ledgerRepo) SumDeltas(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	defer r.v.lock()()
	sum := decimal.Zero
	for _, delta := range r.v.s.data.deltas {
		if delta.UserID == userID {
			sum = sum.Add(delta.Amount)
		}
	}
	return sum, nil
}

func (r *ledgerRepo) CreateAction(ctx context.Context, action *models.LedgerAction) error {
	defer r.v.lock()()
	if err := r.v.s.injected(OpCreateAction); err != nil {
		return err
	}
	d := r.v.s.data
	if _, ok := d.actionKeys[action.IdempotencyKey]; ok {
		return repositories.ErrDuplicateKey
	}
	if action.ID == uuid.Nil {
		action.ID = uuid.New()
	}
	stamp(&action.CreatedAt)
	d.actions[action.ID] = *action
	d.actionKeys[action.IdempotencyKey] = action.ID
	d.track(action.ID)
	return nil
}

func (r *ledgerRepo) GetActionByKey(ctx context.Context, key string) (*models.LedgerAction, error) {
	defer r.v.lock()()
	d := r.v.s.data
	id, ok := d.actionKeys[key]
	if !ok {
		return nil, apperrors.ErrNotFound.WithMessage("ledger action not found")
	}
	action := d.actions[id]
	return &action, nil
}
