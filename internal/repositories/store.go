package repositories

import (
	"context"
	"errors"
	"time"

	"disputedesk/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrDuplicateKey is returned when an insert hits a unique constraint, most
// importantly an idempotency key that has already been used.
var ErrDuplicateKey = errors.New("duplicate key value")

// Store groups the repositories that have to change together. Repositories
// obtained from the Store passed to ExecuteInTransaction share one unit of work.
type Store interface {
	Alerts() AlertRepository
	Disputes() DisputeRepository
	Ledger() LedgerRepository
	Audit() AuditRepository

	// ExecuteInTransaction commits when fn returns nil and rolls back otherwise.
	ExecuteInTransaction(ctx context.Context, fn func(tx Store) error) error
}

// ExpiryGuard restricts a pre-dispute transition by the alert's expires_at.
type ExpiryGuard int

const (
	ExpiryGuardNone ExpiryGuard = iota
	// ExpiryGuardUnexpired requires expires_at > At.
	ExpiryGuardUnexpired
	// ExpiryGuardExpired requires expires_at <= At.
	ExpiryGuardExpired
)

// PreDisputeTransition is a compare-and-set on a pre-dispute alert's status.
type PreDisputeTransition struct {
	AlertID uuid.UUID
	From    []models.PreDisputeStatus
	To      models.PreDisputeStatus
	At      time.Time
	Expiry  ExpiryGuard
}

type FraudAlertFilter struct {
	UserID       *uuid.UUID
	Acknowledged *bool
	Offset       int
	Limit        int
}

type PreDisputeAlertFilter struct {
	UserID   *uuid.UUID
	Statuses []models.PreDisputeStatus
	Offset   int
	Limit    int
}

// EffectFilter selects resolutions whose side effect still needs work.
type EffectFilter struct {
	Status models.EffectStatus
	// CreatedBefore keeps rows created at or before this instant when set.
	CreatedBefore *time.Time
	// MaxAttempts keeps rows with fewer attempts; zero disables the cap.
	MaxAttempts int
	Limit       int
}

type AlertRepository interface {
	CreateFraudAlert(ctx context.Context, alert *models.FraudAlert) error
	GetFraudAlert(ctx context.Context, id uuid.UUID) (*models.FraudAlert, error)
	ListFraudAlerts(ctx context.Context, filter FraudAlertFilter) ([]*models.FraudAlert, int64, error)
	// AcknowledgeFraudAlert reports false when the alert was already acknowledged.
	AcknowledgeFraudAlert(ctx context.Context, id uuid.UUID, resolution *models.FraudResolution, operatorID string, at time.Time) (bool, error)

	CreatePreDisputeAlert(ctx context.Context, alert *models.PreDisputeAlert) error
	GetPreDisputeAlert(ctx context.Context, id uuid.UUID) (*models.PreDisputeAlert, error)
	ListPreDisputeAlerts(ctx context.Context, filter PreDisputeAlertFilter) ([]*models.PreDisputeAlert, int64, error)
	// TransitionPreDisputeAlert reports false when the guard did not match.
	TransitionPreDisputeAlert(ctx context.Context, t PreDisputeTransition) (bool, error)
	ListOverduePreDisputeAlerts(ctx context.Context, now time.Time, limit int) ([]*models.PreDisputeAlert, error)

	CreateInstantResolution(ctx context.Context, res *models.InstantResolution) error
	GetInstantResolutionByAlert(ctx context.Context, alertID uuid.UUID) (*models.InstantResolution, error)
	// UpdateInstantResolutionEffect records one side effect attempt.
	UpdateInstantResolutionEffect(ctx context.Context, id uuid.UUID, status models.EffectStatus, effectErr string) error
	// ListInstantResolutionsByEffect returns the oldest resolutions matching
	// filter. Exhausted rows are filtered out by the query so they cannot
	// crowd out newer ones.
	ListInstantResolutionsByEffect(ctx context.Context, filter EffectFilter) ([]*models.InstantResolution, error)
}

type DisputeFilter struct {
	UserID        *uuid.UUID
	TransactionID *uuid.UUID
	Statuses      []models.DisputeStatus
	Offset        int
	Limit         int
}

// DisputeTransition is a compare-and-set on a dispute case. From and
// RefundStates are guards; the remaining fields are applied when they match.
type DisputeTransition struct {
	ID           uuid.UUID
	From         []models.DisputeStatus
	RefundStates []models.RefundState

	To                      models.DisputeStatus
	SetRefundState          *models.RefundState
	RefundAmount            *decimal.Decimal
	RefundTransactionID     *uuid.UUID
	IncrementRefundAttempts bool
	ResolvedBy              *string
	ResolvedAt              *time.Time
	Notes                   *string
}

type DisputeRepository interface {
	Create(ctx context.Context, dispute *models.DisputeCase) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.DisputeCase, error)
	GetByRefundTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.DisputeCase, error)
	FindOpenByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.DisputeCase, error)
	ExistsByExternalRef(ctx context.Context, ref string) (bool, error)
	List(ctx context.Context, filter DisputeFilter) ([]*models.DisputeCase, int64, error)
	Transition(ctx context.Context, t DisputeTransition) (bool, error)
}

type LedgerRepository interface {
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetTransactionByKey(ctx context.Context, key string) (*models.Transaction, error)
	GetTransactionByExternalRef(ctx context.Context, ref string) (*models.Transaction, error)
	// UpdateTransactionStatus is the only mutation allowed on a transaction row.
	UpdateTransactionStatus(ctx context.Context, id uuid.UUID, from, to models.TransactionStatus) (bool, error)
	ListTransactionsByStatus(ctx context.Context, status models.TransactionStatus, olderThan time.Time, limit int) ([]*models.Transaction, error)
	IncrementReconcileAttempts(ctx context.Context, id uuid.UUID) error

	EnsureWallet(ctx context.Context, userID uuid.UUID, currency string) (*models.Wallet, error)
	GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	// IncrementBalance appends delta and adds its amount to the wallet in one
	// step. Unless allowNegative is set the resulting balance must stay >= 0.
	IncrementBalance(ctx context.Context, delta *models.BalanceDelta, allowNegative bool) (*models.Wallet, error)
	SumDeltas(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)

	CreateAction(ctx context.Context, action *models.LedgerAction) error
	GetActionByKey(ctx context.Context, key string) (*models.LedgerAction, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	// LockTail returns the newest entry of a resource, or nil when it has
	// none, and holds the resource's chain until the unit of work ends so a
	// concurrent writer cannot take the same sequence.
	LockTail(ctx context.Context, resourceType, resourceID string) (*models.AuditEntry, error)
	List(ctx context.Context, resourceType, resourceID string) ([]*models.AuditEntry, error)
}
