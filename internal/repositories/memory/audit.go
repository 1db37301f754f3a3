package memory

import (
	"context"
	"sort"

	"disputedesk/internal/models"
	"disputedesk/internal/repositories"

	"github.com/google/uuid"
)

type auditRepo struct {
	v *view
}

func (r *auditRepo) Append(ctx context.Context, entry *models.AuditEntry) error {
	defer r.v.lock()()
	if err := r.v.s.injected(OpAuditAppend); err != nil {
		return err
	}
	d := r.v.s.data
	for _, e := range d.audit {
		if e.ResourceType == entry.ResourceType && e.ResourceID == entry.ResourceID && e.Sequence == entry.Sequence {
			return repositories.ErrDuplicateKey
		}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	stamp(&entry.CreatedAt)
	d.audit[entry.ID] = *entry
	d.track(entry.ID)
	return nil
}

// LockTail needs no lock of its own: units of work are already serialized.
func (r *auditRepo) LockTail(ctx context.Context, resourceType, resourceID string) (*models.AuditEntry, error) {
	entries, err := r.List(ctx, resourceType, resourceID)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[len(entries)-1], nil
}

func (r *auditRepo) List(ctx context.Context, resourceType, resourceID string) ([]*models.AuditEntry, error) {
	defer r.v.lock()()
	var rows []*models.AuditEntry
	for _, e := range r.v.s.data.audit {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			e := e
			rows = append(rows, &e)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Sequence < rows[j].Sequence })
	return rows, nil
}

// Tamper overwrites a stored audit entry in place. Tests use it to check
// that verification notices edits.
func (s *Store) Tamper(id uuid.UUID, mutate func(*models.AuditEntry)) bool {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	e, ok := s.data.audit[id]
	if !ok {
		return false
	}
	mutate(&e)
	s.data.audit[id] = e
	return true
}
