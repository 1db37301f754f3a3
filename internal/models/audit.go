package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audited resource types
const (
	ResourceFraudAlert        = "fraud_alert"
	ResourcePreDisputeAlert   = "pre_dispute_alert"
	ResourceInstantResolution = "instant_resolution"
	ResourceDisputeCase       = "dispute_case"
	ResourceTransaction       = "transaction"
	ResourceWallet            = "wallet"
)

// AuditEntry is append-only. Sequence is per resource and, together with the
// hash chain, makes gaps and edits detectable.
type AuditEntry struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID      string    `gorm:"size:64;not null" json:"actor_id"`
	ResourceType string    `gorm:"size:64;not null;uniqueIndex:idx_audit_resource_seq,priority:1" json:"resource_type"`
	ResourceID   string    `gorm:"size:64;not null;uniqueIndex:idx_audit_resource_seq,priority:2" json:"resource_id"`
	Sequence     int64     `gorm:"not null;uniqueIndex:idx_audit_resource_seq,priority:3" json:"sequence"`
	Action       string    `gorm:"size:64;not null" json:"action"`
	BeforeValue  JSON      `gorm:"type:jsonb" json:"before_value"`
	AfterValue   JSON      `gorm:"type:jsonb" json:"after_value"`
	PrevHash     string    `gorm:"size:64" json:"prev_hash"`
	Hash         string    `gorm:"size:64;not null" json:"hash"`
	CreatedAt    time.Time `json:"created_at"`
}

func (e *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
