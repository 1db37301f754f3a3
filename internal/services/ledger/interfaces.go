package ledger

import (
	"context"

	"disputedesk/internal/models"
	"disputedesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Increment describes one balance change.
type Increment struct {
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
	Reason         string
	ReferenceID    *uuid.UUID
	AllowNegative  bool
	ActorID        string
}

// Directive is a side effect requested on behalf of an alert resolution.
type Directive struct {
	Key           string
	AlertID       uuid.UUID
	TransactionID uuid.UUID
	UserID        uuid.UUID
	Action        models.LedgerActionType
	Amount        decimal.Decimal
	Currency      string
	ActorID       string
}

// WalletReport compares the materialized balance with the delta fold.
type WalletReport struct {
	Wallet     *models.Wallet  `json:"wallet"`
	DeltaSum   decimal.Decimal `json:"delta_sum"`
	Consistent bool            `json:"consistent"`
}

type Service interface {
	// CreateTransaction records an immutable transaction inside st.
	CreateTransaction(ctx context.Context, st repositories.Store, txn *models.Transaction, actorID string) error

	// IncrementBalance applies inc inside st and audits the wallet change.
	IncrementBalance(ctx context.Context, st repositories.Store, inc Increment) (*models.Wallet, error)

	// Apply performs d at most once per d.Key in its own unit of work.
	Apply(ctx context.Context, d Directive) (*models.LedgerAction, bool, error)

	// ApplyIn is Apply inside the caller's unit of work st. It reports false
	// with the stored action when d.Key was used before.
	ApplyIn(ctx context.Context, st repositories.Store, d Directive) (*models.LedgerAction, bool, error)

	GetTransaction(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	CheckWallet(ctx context.Context, userID uuid.UUID) (*WalletReport, error)
}
