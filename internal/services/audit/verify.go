package audit

import (
	"context"
	"fmt"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
)

// VerifyResult reports the first break in a resource's chain, if any.
type VerifyResult struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Entries      int    `json:"entries"`
	Valid        bool   `json:"valid"`
	BrokenAt     int64  `json:"broken_at,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// List returns a resource's entries in append order.
func List(ctx context.Context, st repositories.Store, resourceType, resourceID string) ([]*models.AuditEntry, error) {
	entries, err := st.Audit().List(ctx, resourceType, resourceID)
	if err != nil {
		return nil, apperrors.Unavailable(fmt.Errorf("list audit entries: %w", err))
	}
	return entries, nil
}

// Verify walks the chain checking sequence continuity, prev_hash links and
// each entry's own hash.
func Verify(ctx context.Context, st repositories.Store, resourceType, resourceID string) (*VerifyResult, error) {
	entries, err := List(ctx, st, resourceType, resourceID)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Entries:      len(entries),
		Valid:        true,
	}
	prevHash := ""
	for i, e := range entries {
		want := int64(i + 1)
		switch {
		case e.Sequence != want:
			return result.broken(want, fmt.Sprintf("expected sequence %d, found %d", want, e.Sequence)), nil
		case e.PrevHash != prevHash:
			return result.broken(e.Sequence, "previous hash does not match"), nil
		}
		hash, err := ComputeHash(e)
		if err != nil {
			return nil, err
		}
		if hash != e.Hash {
			return result.broken(e.Sequence, "entry content does not match its hash"), nil
		}
		prevHash = e.Hash
	}
	return result, nil
}

func (r *VerifyResult) broken(seq int64, reason string) *VerifyResult {
	r.Valid = false
	r.BrokenAt = seq
	r.Reason = reason
	return r
}
