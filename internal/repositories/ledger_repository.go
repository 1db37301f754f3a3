package repositories

import (
	"context"
	"time"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// CreateTransaction inserts txn. A used idempotency key yields ErrDuplicateKey
// without aborting the surrounding transaction.
func (r *ledgerRepository) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(txn)
	if result.Error != nil {
		return translate(result.Error, "transaction not found")
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateKey
	}
	return nil
}

func (r *ledgerRepository) GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, translate(err, "transaction not found")
	}
	return &txn, nil
}

func (r *ledgerRepository) GetTransactionByKey(ctx context.Context, key string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).First(&txn, "idempotency_key = ?", key).Error; err != nil {
		return nil, translate(err, "transaction not found")
	}
	return &txn, nil
}

func (r *ledgerRepository) GetTransactionByExternalRef(ctx context.Context, ref string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).First(&txn, "external_ref = ?", ref).Error; err != nil {
		return nil, translate(err, "transaction not found")
	}
	return &txn, nil
}

func (r *ledgerRepository) UpdateTransactionStatus(ctx context.Context, id uuid.UUID, from, to models.TransactionStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *ledgerRepository) ListTransactionsByStatus(ctx context.Context, status models.TransactionStatus, olderThan time.Time, limit int) ([]*models.Transaction, error) {
	var txns []*models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at <= ?", status, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}

func (r *ledgerRepository) IncrementReconcileAttempts(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ?", id).
		UpdateColumn("reconcile_attempts", gorm.Expr("reconcile_attempts + 1")).Error
}

func (r *ledgerRepository) EnsureWallet(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error) {
	wallet := models.Wallet{UserID: userID, Balance: decimal.Zero, Currency: currency}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&wallet).Error; err != nil {
		return nil, err
	}
	return r.GetWallet(ctx, userID)
}

func (r *ledgerRepository) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "user_id = ?", userID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func (r *ledgerRepository) IncrementBalance(ctx context.Context, delta *models.BalanceDelta, allowNegative bool) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(delta)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrDuplicateKey
		}

		q := tx.Model(&models.Wallet{}).Where("user_id = ?", delta.UserID)
		if !allowNegative {
			q = q.Where("balance + ? >= 0", delta.Amount)
		}
		result = q.Updates(map[string]interface{}{
			"balance": gorm.Expr("balance + ?", delta.Amount),
			"version": gorm.Expr("version + 1"),
		})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Wallet{}).Where("user_id = ?", delta.UserID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return apperrors.ErrWalletNotFound
			}
			return apperrors.ErrInsufficientBalance
		}

		return tx.First(&wallet, "user_id = ?", delta.UserID).Error
	})
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *ledgerRepository) SumDeltas(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	row := r.db.WithContext(ctx).Model(&models.BalanceDelta{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (r *ledgerRepository) CreateAction(ctx context.Context, action *models.LedgerAction) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(action)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateKey
	}
	return nil
}

func (r *ledgerRepository) GetActionByKey(ctx context.Context, key string) (*models.LedgerAction, error) {
	var action models.LedgerAction
	if err := r.db.WithContext(ctx).First(&action, "idempotency_key = ?", key).Error; err != nil {
		return nil, translate(err, "ledger action not found")
	}
	return &action, nil
}
