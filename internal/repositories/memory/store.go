// Package memory is an in-process repositories.Store. Units of work are
// serialized and rolled back by restoring a snapshot, which is enough to
// exercise the conditional-update semantics the Postgres store relies on.
package memory

import (
	"context"
	"sync"

	"disputedesk/internal/models"
	"disputedesk/internal/repositories"

	"github.com/google/uuid"
)

// Operation names accepted by Fail.
const (
	OpCreateInstantResolution = "alerts.create_instant_resolution"
	OpTransitionPreDispute    = "alerts.transition_pre_dispute"
	OpAcknowledgeFraudAlert   = "alerts.acknowledge_fraud"
	OpDisputeTransition       = "disputes.transition"
	OpCreateTransaction       = "ledger.create_transaction"
	OpUpdateTransactionStatus = "ledger.update_transaction_status"
	OpIncrementBalance        = "ledger.increment_balance"
	OpCreateAction            = "ledger.create_action"
	OpAuditAppend             = "audit.append"
	OpUpdateResolutionEffect  = "alerts.update_resolution_effect"
)

type dataset struct {
	fraudAlerts       map[uuid.UUID]models.FraudAlert
	preDisputeAlerts  map[uuid.UUID]models.PreDisputeAlert
	resolutions       map[uuid.UUID]models.InstantResolution
	disputes          map[uuid.UUID]models.DisputeCase
	transactions      map[uuid.UUID]models.Transaction
	wallets           map[uuid.UUID]models.Wallet
	deltas            map[uuid.UUID]models.BalanceDelta
	actions           map[uuid.UUID]models.LedgerAction
	audit             map[uuid.UUID]models.AuditEntry
	deltaKeys         map[string]uuid.UUID
	actionKeys        map[string]uuid.UUID
	transactionKeys   map[string]uuid.UUID
	resolutionByAlert map[uuid.UUID]uuid.UUID
	order             map[uuid.UUID]int64
	seq               int64
}

func newDataset() *dataset {
	return &dataset{
		fraudAlerts:       map[uuid.UUID]models.FraudAlert{},
		preDisputeAlerts:  map[uuid.UUID]models.PreDisputeAlert{},
		resolutions:       map[uuid.UUID]models.InstantResolution{},
		disputes:          map[uuid.UUID]models.DisputeCase{},
		transactions:      map[uuid.UUID]models.Transaction{},
		wallets:           map[uuid.UUID]models.Wallet{},
		deltas:            map[uuid.UUID]models.BalanceDelta{},
		actions:           map[uuid.UUID]models.LedgerAction{},
		audit:             map[uuid.UUID]models.AuditEntry{},
		deltaKeys:         map[string]uuid.UUID{},
		actionKeys:        map[string]uuid.UUID{},
		transactionKeys:   map[string]uuid.UUID{},
		resolutionByAlert: map[uuid.UUID]uuid.UUID{},
		order:             map[uuid.UUID]int64{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone is shallow per row. Rows are replaced whole, never mutated in place.
func (d *dataset) clone() *dataset {
	return &dataset{
		fraudAlerts:       copyMap(d.fraudAlerts),
		preDisputeAlerts:  copyMap(d.preDisputeAlerts),
		resolutions:       copyMap(d.resolutions),
		disputes:          copyMap(d.disputes),
		transactions:      copyMap(d.transactions),
		wallets:           copyMap(d.wallets),
		deltas:            copyMap(d.deltas),
		actions:           copyMap(d.actions),
		audit:             copyMap(d.audit),
		deltaKeys:         copyMap(d.deltaKeys),
		actionKeys:        copyMap(d.actionKeys),
		transactionKeys:   copyMap(d.transactionKeys),
		resolutionByAlert: copyMap(d.resolutionByAlert),
		order:             copyMap(d.order),
		seq:               d.seq,
	}
}

// track records insertion order so listings are stable within one clock tick.
func (d *dataset) track(id uuid.UUID) {
	d.seq++
	d.order[id] = d.seq
}

type fault struct {
	err   error
	times int
}

// Store is safe for concurrent use.
type Store struct {
	txMu sync.Mutex
	data *dataset

	faultMu sync.Mutex
	faults  map[string]*fault
}

func NewStore() *Store {
	return &Store{
		data:   newDataset(),
		faults: map[string]*fault{},
	}
}

// Fail makes the next times calls of op return err. A negative times fails forever.
func (s *Store) Fail(op string, err error, times int) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults[op] = &fault{err: err, times: times}
}

// FailNext fails the next call of op only.
func (s *Store) FailNext(op string, err error) {
	s.Fail(op, err, 1)
}

func (s *Store) ClearFaults() {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults = map[string]*fault{}
}

func (s *Store) injected(op string) error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	f, ok := s.faults[op]
	if !ok {
		return nil
	}
	if f.times > 0 {
		f.times--
		if f.times == 0 {
			delete(s.faults, op)
		}
	}
	return f.err
}

func (s *Store) Alerts() repositories.AlertRepository     { return (&view{s: s}).Alerts() }
func (s *Store) Disputes() repositories.DisputeRepository { return (&view{s: s}).Disputes() }
func (s *Store) Ledger() repositories.LedgerRepository    { return (&view{s: s}).Ledger() }
func (s *Store) Audit() repositories.AuditRepository      { return (&view{s: s}).Audit() }

func (s *Store) ExecuteInTransaction(ctx context.Context, fn func(tx repositories.Store) error) error {
	return (&view{s: s}).ExecuteInTransaction(ctx, fn)
}

// view is the Store as seen from outside (inTx false) or from inside a unit of work.
type view struct {
	s    *Store
	inTx bool
}

func (v *view) Alerts() repositories.AlertRepository     { return &alertRepo{v: v} }
func (v *view) Disputes() repositories.DisputeRepository { return &disputeRepo{v: v} }
func (v *view) Ledger() repositories.LedgerRepository    { return &ledgerRepo{v: v} }
func (v *view) Audit() repositories.AuditRepository      { return &auditRepo{v: v} }

func (v *view) ExecuteInTransaction(ctx context.Context, fn func(tx repositories.Store) error) error {
	if v.inTx {
		return fn(v)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	v.s.txMu.Lock()
	defer v.s.txMu.Unlock()

	snapshot := v.s.data.clone()
	if err := fn(&view{s: v.s, inTx: true}); err != nil {
		v.s.data = snapshot
		return err
	}
	return nil
}

// lock serializes single statements issued outside a unit of work.
func (v *view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.txMu.Lock()
	return v.s.txMu.Unlock
}

func (v *view) rank(id uuid.UUID) int64 {
	return v.s.data.order[id]
}
