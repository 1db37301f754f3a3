package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"

	"github.com/google/uuid"
)

type disputeRepo struct {
	v *view
}

func (r *disputeRepo) Create(ctx context.Context, dispute *models.DisputeCase) error {
	defer r.v.lock()()
	d := r.v.s.data
	if dispute.ID == uuid.Nil {
		dispute.ID = uuid.New()
	}
	if _, ok := d.disputes[dispute.ID]; ok {
		return repositories.ErrDuplicateKey
	}
	if dispute.ExternalRef != nil {
		for _, existing := range d.disputes {
			if existing.ExternalRef != nil && *existing.ExternalRef == *dispute.ExternalRef {
				return repositories.ErrDuplicateKey
			}
		}
	}
	if dispute.Status == "" {
		dispute.Status = models.DisputeStatusPending
	}
	stamp(&dispute.CreatedAt)
	dispute.UpdatedAt = dispute.CreatedAt
	d.disputes[dispute.ID] = *dispute
	d.track(dispute.ID)
	return nil
}

func (r *disputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.DisputeCase, error) {
	defer r.v.lock()()
	dispute, ok := r.v.s.data.disputes[id]
	if !ok {
		return nil, apperrors.ErrNotFound.WithMessage("dispute not found")
	}
	return &dispute, nil
}

func (r *disputeRepo) GetByRefundTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.DisputeCase, error) {
	defer r.v.lock()()
	for _, dispute := range r.v.s.data.disputes {
		if dispute.RefundTransactionID != nil && *dispute.RefundTransactionID == transactionID {
			return &dispute, nil
		}
	}
	return nil, apperrors.ErrNotFound.WithMessage("dispute not found")
}

func (r *disputeRepo) FindOpenByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.DisputeCase, error) {
	defer r.v.lock()()
	var found *models.DisputeCase
	for _, dispute := range r.v.s.data.disputes {
		if dispute.TransactionID != transactionID || dispute.Status.IsTerminal() {
			continue
		}
		if found == nil || r.v.rank(dispute.ID) < r.v.rank(found.ID) {
			dispute := dispute
			found = &dispute
		}
	}
	if found == nil {
		return nil, apperrors.ErrNotFound.WithMessage("no open dispute for transaction")
	}
	return found, nil
}

func (r *disputeRepo) ExistsByExternalRef(ctx context.Context, ref string) (bool, error) {
	defer r.v.lock()()
	for _, dispute := range r.v.s.data.disputes {
		if dispute.ExternalRef != nil && *dispute.ExternalRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (r *disputeRepo) List(ctx context.Context, filter repositories.DisputeFilter) ([]*models.DisputeCase, int64, error) {
	defer r.v.lock()()
	var rows []*models.DisputeCase
	for _, dispute := range r.v.s.data.disputes {
		if filter.UserID != nil && dispute.UserID != *filter.UserID {
			continue
		}
		if filter.TransactionID != nil && dispute.TransactionID != *filter.TransactionID {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, dispute.Status) {
			continue
		}
		dispute := dispute
		rows = append(rows, &dispute)
	}
	sort.Slice(rows, func(i, j int) bool { return r.v.rank(rows[i].ID) > r.v.rank(rows[j].ID) })
	return window(rows, filter.Offset, filter.Limit), int64(len(rows)), nil
}

func (r *disputeRepo) Transition(ctx context.Context, t repositories.DisputeTransition) (bool, error) {
	defer r.v.lock()()
	if err := r.v.s.injected(OpDisputeTransition); err != nil {
		return false, err
	}
	d := r.v.s.data
	dispute, ok := d.disputes[t.ID]
	if !ok {
		return false, nil
	}
	if len(t.From) > 0 && !hasStatus(t.From, dispute.Status) {
		return false, nil
	}
	if len(t.RefundStates) > 0 && !hasStatus(t.RefundStates, dispute.RefundState) {
		return false, nil
	}

	changed := false
	if t.To != "" {
		dispute.Status = t.To
		changed = true
	}
	if t.SetRefundState != nil {
		dispute.RefundState = *t.SetRefundState
		changed = true
	}
	if t.RefundAmount != nil {
		amount := *t.RefundAmount
		dispute.RefundAmount = &amount
		changed = true
	}
	if t.RefundTransactionID != nil {
		id := *t.RefundTransactionID
		dispute.RefundTransactionID = &id
		changed = true
	}
	if t.IncrementRefundAttempts {
		dispute.RefundAttempts++
		changed = true
	}
	if t.ResolvedBy != nil {
		by := *t.ResolvedBy
		dispute.ResolvedBy = &by
		changed = true
	}
	if t.ResolvedAt != nil {
		at := *t.ResolvedAt
		dispute.ResolvedAt = &at
		changed = true
	}
	if t.Notes != nil {
		dispute.Notes = *t.Notes
		changed = true
	}
	if !changed {
		return false, errors.New("dispute transition changes nothing")
	}
	dispute.UpdatedAt = time.Now().UTC()
	d.disputes[t.ID] = dispute
	return true, nil
}
