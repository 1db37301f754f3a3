package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

// Transaction types
const (
	TransactionTypePayment    TransactionType = "payment"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

type TransactionStatus string

// Transaction statuses. Refunds issued by the dispute desk move
// pending_reconciliation -> completed | reversed; nothing else changes after creation.
const (
	TransactionStatusPending               TransactionStatus = "pending"
	TransactionStatusCompleted             TransactionStatus = "completed"
	TransactionStatusPendingReconciliation TransactionStatus = "pending_reconciliation"
	TransactionStatusReversed              TransactionStatus = "reversed"
)

type Transaction struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID         `gorm:"type:uuid;index;not null" json:"user_id"`
	Amount            decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"amount"`
	Currency          string            `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Type              TransactionType   `gorm:"size:32;not null" json:"type"`
	Status            TransactionStatus `gorm:"size:32;not null;index" json:"status"`
	IdempotencyKey    *string           `gorm:"uniqueIndex" json:"idempotency_key,omitempty"`
	ExternalRef       *string           `gorm:"uniqueIndex" json:"external_ref,omitempty"` // processor charge id
	ReferenceID       *uuid.UUID        `gorm:"type:uuid;index" json:"reference_id,omitempty"`
	Description       string            `json:"description"`
	Metadata          JSON              `gorm:"type:jsonb" json:"metadata,omitempty"`
	ReconcileAttempts int               `gorm:"not null;default:0" json:"reconcile_attempts"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
