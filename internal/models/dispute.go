package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DisputeStatus string

const (
	DisputeStatusPending       DisputeStatus = "pending"
	DisputeStatusUnderReview   DisputeStatus = "under_review"
	DisputeStatusInvestigating DisputeStatus = "investigating"
	DisputeStatusResolved      DisputeStatus = "resolved"
	DisputeStatusRejected      DisputeStatus = "rejected"
	DisputeStatusRefunded      DisputeStatus = "refunded"
)

// OpenDisputeStatuses are the non-terminal states.
var OpenDisputeStatuses = []DisputeStatus{
	DisputeStatusPending,
	DisputeStatusUnderReview,
	DisputeStatusInvestigating,
}

func (s DisputeStatus) IsTerminal() bool {
	switch s {
	case DisputeStatusResolved, DisputeStatusRejected, DisputeStatusRefunded:
		return true
	}
	return false
}

// RefundState tracks the staged refund commit of a case.
type RefundState string

const (
	RefundStateNone                  RefundState = ""
	RefundStatePendingReconciliation RefundState = "pending_reconciliation"
	RefundStateCompleted             RefundState = "completed"
	RefundStateReversed              RefundState = "reversed"
)

type DisputeCase struct {
	ID                  uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID       uuid.UUID        `gorm:"type:uuid;index;not null" json:"transaction_id"`
	UserID              uuid.UUID        `gorm:"type:uuid;index;not null" json:"user_id"`
	Reason              string           `gorm:"not null" json:"reason"`
	Amount              decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"amount"`
	Currency            string           `gorm:"size:3;not null;default:'USD'" json:"currency"`
	Status              DisputeStatus    `gorm:"size:32;not null;default:'pending';index" json:"status"`
	RefundState         RefundState      `gorm:"size:32;not null;default:''" json:"refund_state"`
	RefundAmount        *decimal.Decimal `gorm:"type:numeric(20,2)" json:"refund_amount,omitempty"`
	RefundTransactionID *uuid.UUID       `gorm:"type:uuid;index" json:"refund_transaction_id,omitempty"`
	RefundAttempts      int              `gorm:"not null;default:0" json:"refund_attempts"`
	ResolvedBy          *string          `gorm:"size:64" json:"resolved_by,omitempty"`
	ResolvedAt          *time.Time       `json:"resolved_at,omitempty"`
	SourceAlertID       *uuid.UUID       `gorm:"type:uuid" json:"source_alert_id,omitempty"`
	ExternalRef         *string          `gorm:"uniqueIndex" json:"external_ref,omitempty"`
	Notes               string           `json:"notes,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func (d *DisputeCase) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
