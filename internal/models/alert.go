package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AlertCategory names an event bus channel.
type AlertCategory string

const (
	AlertCategoryFraud      AlertCategory = "fraud"
	AlertCategoryPreDispute AlertCategory = "pre_dispute"
)

type FraudResolution string

const (
	FraudResolutionApproved FraudResolution = "approved"
	FraudResolutionBlocked  FraudResolution = "blocked"
	FraudResolutionDeferred FraudResolution = "deferred"
)

// FraudAlert is raised by the scoring collaborator. It is terminal once acknowledged.
type FraudAlert struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID  uuid.UUID        `gorm:"type:uuid;index;not null" json:"transaction_id"`
	UserID         uuid.UUID        `gorm:"type:uuid;index;not null" json:"user_id"`
	RiskScore      int              `gorm:"not null" json:"risk_score"`
	Amount         decimal.Decimal  `gorm:"type:numeric(20,2);not null" json:"amount"`
	Message        string           `json:"message"`
	Acknowledged   bool             `gorm:"not null;default:false;index" json:"acknowledged"`
	AcknowledgedAt *time.Time       `json:"acknowledged_at,omitempty"`
	AcknowledgedBy *string          `gorm:"size:64" json:"acknowledged_by,omitempty"`
	Resolution     *FraudResolution `gorm:"size:32" json:"resolution,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

func (a *FraudAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

type PreDisputeStatus string

const (
	PreDisputeStatusSent      PreDisputeStatus = "sent"
	PreDisputeStatusViewed    PreDisputeStatus = "viewed"
	PreDisputeStatusResolved  PreDisputeStatus = "resolved"
	PreDisputeStatusEscalated PreDisputeStatus = "escalated"
	PreDisputeStatusExpired   PreDisputeStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed.
func (s PreDisputeStatus) IsTerminal() bool {
	switch s {
	case PreDisputeStatusResolved, PreDisputeStatusEscalated, PreDisputeStatusExpired:
		return true
	}
	return false
}

// OpenPreDisputeStatuses are the states an operator can still act on.
var OpenPreDisputeStatuses = []PreDisputeStatus{PreDisputeStatusSent, PreDisputeStatusViewed}

// ResolutionOption is a presentation hint stored with the alert.
type ResolutionOption struct {
	Type   string `json:"type"`
	Label  string `json:"label"`
	Action string `json:"action"`
}

type ResolutionOptions []ResolutionOption

// Has reports whether an option of the given type was offered.
func (o ResolutionOptions) Has(resolutionType string) bool {
	for _, opt := range o {
		if opt.Type == resolutionType {
			return true
		}
	}
	return false
}

func (o ResolutionOptions) Value() (driver.Value, error) {
	if o == nil {
		return "[]", nil
	}
	return json.Marshal(o)
}

func (o *ResolutionOptions) Scan(value interface{}) error {
	var bytes []byte
	switch v := value.(type) {
	case nil:
		*o = nil
		return nil
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("models: cannot scan %T into ResolutionOptions", value)
	}
	return json.Unmarshal(bytes, o)
}

type PreDisputeAlert struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID     uuid.UUID         `gorm:"type:uuid;index;not null" json:"transaction_id"`
	UserID            uuid.UUID         `gorm:"type:uuid;index;not null" json:"user_id"`
	AlertType         string            `gorm:"size:64;not null" json:"alert_type"`
	Message           string            `json:"message"`
	Amount            decimal.Decimal   `gorm:"type:numeric(20,2);not null" json:"amount"`
	Currency          string            `gorm:"size:3;not null;default:'USD'" json:"currency"`
	ResolutionOptions ResolutionOptions `gorm:"type:jsonb" json:"resolution_options"`
	Status            PreDisputeStatus  `gorm:"size:16;not null;index" json:"status"`
	SentAt            time.Time         `gorm:"not null" json:"sent_at"`
	ExpiresAt         time.Time         `gorm:"not null;index" json:"expires_at"`
	ViewedAt          *time.Time        `json:"viewed_at,omitempty"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty"`
}

func (a *PreDisputeAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// IsExpiredAt reports whether the alert can no longer be acted on at now,
// regardless of what the stored status says.
func (a *PreDisputeAlert) IsExpiredAt(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}

// EffectiveStatus folds the expiry predicate into the stored status.
func (a *PreDisputeAlert) EffectiveStatus(now time.Time) PreDisputeStatus {
	if !a.Status.IsTerminal() && a.IsExpiredAt(now) {
		return PreDisputeStatusExpired
	}
	return a.Status
}

type ResolutionType string

// The closed set of resolution types the engine knows how to apply. An
// alert's stored options are checked against this set, never trusted alone.
const (
	ResolutionApprove ResolutionType = "approve"
	ResolutionBlock   ResolutionType = "block"
	ResolutionRefund  ResolutionType = "refund"
)

func ParseResolutionType(s string) (ResolutionType, bool) {
	switch ResolutionType(s) {
	case ResolutionApprove, ResolutionBlock, ResolutionRefund:
		return ResolutionType(s), true
	}
	return "", false
}

type EffectStatus string

const (
	EffectStatusPending EffectStatus = "pending"
	EffectStatusApplied EffectStatus = "applied"
	EffectStatusFailed  EffectStatus = "failed"
)

// InstantResolution exists at most once per PreDisputeAlert (unique alert_id).
type InstantResolution struct {
	ID               uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	AlertID          uuid.UUID        `gorm:"type:uuid;uniqueIndex;not null" json:"alert_id"`
	ResolutionType   ResolutionType   `gorm:"size:32;not null" json:"resolution_type"`
	Amount           *decimal.Decimal `gorm:"type:numeric(20,2)" json:"amount,omitempty"`
	ProcessingTimeMs int64            `gorm:"not null" json:"processing_time_ms"`
	OperatorID       string           `gorm:"size:64;not null" json:"operator_id"`
	Feedback         string           `json:"feedback,omitempty"`
	EffectStatus     EffectStatus     `gorm:"size:16;not null;index" json:"effect_status"`
	EffectAttempts   int              `gorm:"not null;default:0" json:"effect_attempts"`
	EffectError      string           `json:"effect_error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (r *InstantResolution) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
