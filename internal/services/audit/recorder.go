// Package audit appends hash-chained audit entries inside the caller's unit
// of work and verifies the chain of a resource on demand.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Actions recorded by the services.
const (
	ActionCreated            = "created"
	ActionViewed             = "viewed"
	ActionResolved           = "resolved"
	ActionEscalated          = "escalated"
	ActionExpired            = "expired"
	ActionAcknowledged       = "acknowledged"
	ActionStatusChanged      = "status_changed"
	ActionRejected           = "rejected"
	ActionRefundStaged       = "refund_staged"
	ActionRefundCompleted    = "refund_completed"
	ActionRefundReversed     = "refund_reversed"
	ActionBalanceIncremented = "balance_incremented"
	ActionEffectApplied      = "effect_applied"
	ActionEffectFailed       = "effect_failed"
	ActionImported           = "imported"
)

// Entry is what a caller wants recorded. Before and After are marshaled to JSON objects.
type Entry struct {
	ActorID      string
	ResourceType string
	ResourceID   string
	Action       string
	Before       interface{}
	After        interface{}
}

type Recorder struct {
	log *logrus.Logger
	now func() time.Time
}

func NewRecorder(log *logrus.Logger) *Recorder {
	return &Recorder{log: log, now: time.Now}
}

// Record appends e to the resource's chain through st, which should be the
// Store of the caller's unit of work. Any failure must abort that unit.
func (r *Recorder) Record(ctx context.Context, st repositories.Store, e Entry) (*models.AuditEntry, error) {
	before, err := toJSON(e.Before)
	if err != nil {
		return nil, fmt.Errorf("encode audit before value: %w", err)
	}
	after, err := toJSON(e.After)
	if err != nil {
		return nil, fmt.Errorf("encode audit after value: %w", err)
	}

	last, err := st.Audit().LockTail(ctx, e.ResourceType, e.ResourceID)
	if err != nil {
		return nil, apperrors.Unavailable(fmt.Errorf("read audit chain: %w", err))
	}

	entry := &models.AuditEntry{
		ID:           uuid.New(),
		ActorID:      e.ActorID,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Sequence:     1,
		Action:       e.Action,
		BeforeValue:  before,
		AfterValue:   after,
		CreatedAt:    r.now().UTC(),
	}
	if last != nil {
		entry.Sequence = last.Sequence + 1
		entry.PrevHash = last.Hash
	}
	entry.Hash, err = ComputeHash(entry)
	if err != nil {
		return nil, err
	}

	if err := st.Audit().Append(ctx, entry); err != nil {
		return nil, apperrors.Unavailable(fmt.Errorf("append audit entry: %w", err))
	}

	r.log.WithFields(logrus.Fields{
		"resource_type": e.ResourceType,
		"resource_id":   e.ResourceID,
		"action":        e.Action,
		"sequence":      entry.Sequence,
	}).Debug("audit entry recorded")
	return entry, nil
}

// ComputeHash hashes the entry's content together with its predecessor's hash.
func ComputeHash(e *models.AuditEntry) (string, error) {
	before, err := canonical(e.BeforeValue)
	if err != nil {
		return "", err
	}
	after, err := canonical(e.AfterValue)
	if err != nil {
		return "", err
	}
	data := fmt.Sprintf("%s|%s|%s|%s|%d|%s|%s|%s|%s",
		e.ID, e.ActorID, e.ResourceType, e.ResourceID, e.Sequence,
		e.Action, before, after, e.PrevHash)
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:]), nil
}

// canonical re-encodes a JSON object; encoding/json sorts map keys, which
// keeps the hash stable across a jsonb round trip.
func canonical(j models.JSON) (string, error) {
	if j == nil {
		return "null", nil
	}
	b, err := json.Marshal(map[string]interface{}(j))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func toJSON(v interface{}) (models.JSON, error) {
	if v == nil {
		return nil, nil
	}
	if j, ok := v.(models.JSON); ok {
		v = map[string]interface{}(j)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		var scalar interface{}
		if err := json.Unmarshal(raw, &scalar); err != nil {
			return nil, err
		}
		return models.JSON{"value": scalar}, nil
	}
	return models.JSON(m), nil
}
