package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Balance delta reasons
const (
	DeltaReasonDisputeRefund = "dispute_refund"
	DeltaReasonAlertRefund   = "alert_refund"
	DeltaReasonAdjustment    = "adjustment"
)

// BalanceDelta is one append-only entry of the wallet ledger.
type BalanceDelta struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null" json:"amount"`
	IdempotencyKey string          `gorm:"uniqueIndex;not null" json:"idempotency_key"`
	Reason         string          `gorm:"size:64;not null" json:"reason"`
	ReferenceID    *uuid.UUID      `gorm:"type:uuid" json:"reference_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (d *BalanceDelta) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

type LedgerActionType string

const (
	LedgerActionApproved LedgerActionType = "approved"
	LedgerActionBlocked  LedgerActionType = "blocked"
	LedgerActionRefunded LedgerActionType = "refunded"
)

// LedgerAction records a side effect applied on behalf of an alert. The
// idempotency key is unique so a retried delivery never applies twice.
type LedgerAction struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	IdempotencyKey string           `gorm:"uniqueIndex;not null" json:"idempotency_key"`
	TransactionID  uuid.UUID        `gorm:"type:uuid;index;not null" json:"transaction_id"`
	AlertID        uuid.UUID        `gorm:"type:uuid;index" json:"alert_id"`
	Action         LedgerActionType `gorm:"size:32;not null" json:"action"`
	ActorID        string           `gorm:"size:64;not null" json:"actor_id"`
	CreatedAt      time.Time        `json:"created_at"`
}

func (a *LedgerAction) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
