package resolution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "disputedesk/internal/errors"
	"disputedesk/internal/logging"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/repositories/memory"
	"disputedesk/internal/services/audit"
	"disputedesk/internal/services/ledger"
	"disputedesk/internal/services/notification"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store  *memory.Store
	ledger ledger.Service
	bus    *notification.MemoryBus
	clock  *clock
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logging.Discard()
	st := memory.NewStore()
	rec := audit.NewRecorder(log)
	ledgerSvc := ledger.NewService(st, rec, log)
	bus := notification.NewMemoryBus(64)
	t.Cleanup(func() { bus.Close() })
	c := &clock{t: time.Now().UTC()}

	return &fixture{
		store:  st,
		ledger: ledgerSvc,
		bus:    bus,
		clock:  c,
		engine: NewEngine(st, ledgerSvc, rec, notification.NewService(bus, log), log, WithClock(c.Now)),
	}
}

var allOptions = models.ResolutionOptions{
	{Type: "approve", Label: "Accept the charge", Action: "approve"},
	{Type: "block", Label: "Block the card", Action: "block"},
	{Type: "refund", Label: "Refund the customer", Action: "refund"},
	{Type: "call_back", Label: "Call the customer", Action: "contact"},
}

func (f *fixture) preDispute(t *testing.T, ttl time.Duration, options models.ResolutionOptions) *models.PreDisputeAlert {
	t.Helper()
	expires := f.clock.Now().Add(ttl)
	alert, err := f.engine.IngestPreDisputeAlert(context.Background(), PreDisputeAlertInput{
		TransactionID:     uuid.New(),
		UserID:            uuid.New(),
		AlertType:         "chargeback_warning",
		Message:           "cardholder contacted issuer",
		Amount:            decimal.RequireFromString("49.99"),
		ResolutionOptions: options,
		ExpiresAt:         &expires,
	}, "scorer")
	require.NoError(t, err)
	return alert
}

func (f *fixture) fraud(t *testing.T) *models.FraudAlert {
	t.Helper()
	alert, err := f.engine.IngestFraudAlert(context.Background(), FraudAlertInput{
		TransactionID: uuid.New(),
		UserID:        uuid.New(),
		RiskScore:     87,
		Amount:        decimal.RequireFromString("310.00"),
		Message:       "velocity spike",
	}, "scorer")
	require.NoError(t, err)
	return alert
}

func (f *fixture) auditActions(t *testing.T, resourceType string, id uuid.UUID) []string {
	t.Helper()
	entries, err := audit.List(context.Background(), f.store, resourceType, id.String())
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func TestIngestPreDisputeAlert_Validation(t *testing.T) {
	f := newFixture(t)
	past := f.clock.Now().Add(-time.Minute)

	tests := []struct {
		name    string
		in      PreDisputeAlertInput
		wantErr error
	}{
		{name: "zero amount", in: PreDisputeAlertInput{ResolutionOptions: allOptions}, wantErr: apperrors.ErrInvalidAmount},
		{name: "no options", in: PreDisputeAlertInput{Amount: decimal.NewFromInt(1)}, wantErr: apperrors.ErrValidation},
		{name: "already expired", in: PreDisputeAlertInput{Amount: decimal.NewFromInt(1), ResolutionOptions: allOptions, ExpiresAt: &past}, wantErr: apperrors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.IngestPreDisputeAlert(context.Background(), tt.in, "scorer")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	alert, err := f.engine.IngestPreDisputeAlert(context.Background(), PreDisputeAlertInput{
		Amount:            decimal.NewFromInt(5),
		ResolutionOptions: allOptions,
	}, "scorer")
	require.NoError(t, err)
	assert.Equal(t, "USD", alert.Currency)
	assert.Equal(t, models.PreDisputeStatusSent, alert.Status)
	assert.Equal(t, f.clock.Now().Add(DefaultAlertTTL), alert.ExpiresAt)
}

func TestSubmitResolution_Approve(t *testing.T) {
	f := newFixture(t)
	alert := f.preDispute(t, time.Hour, allOptions)
	events, cancel, err := f.bus.Subscribe(context.Background(), models.AlertCategoryPreDispute)
	require.NoError(t, err)
	defer cancel()

	f.clock.Advance(90 * time.Second)
	result, err := f.engine.SubmitResolution(context.Background(), ResolutionRequest{
		AlertID:        alert.ID,
		ResolutionType: "approve",
		OperatorID:     "op-1",
		Feedback:       "customer confirmed",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PreDisputeStatusResolved, result.Status)
	assert.Equal(t, models.EffectStatusApplied, result.EffectStatus)
	assert.Nil(t, result.DisputeID)

	stored, err := f.engine.GetPreDisputeAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PreDisputeStatusResolved, stored.Status)
	require.NotNil(t, stored.ResolvedAt)

	res, err := f.engine.GetResolution(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, result.ResolutionID, res.ID)
	assert.Equal(t, int64(90_000), res.ProcessingTimeMs)
	assert.Equal(t, "op-1", res.OperatorID)
	assert.Nil(t, res.Amount)

	assert.Equal(t, []string{audit.ActionCreated, audit.ActionResolved}, f.auditActions(t, models.ResourcePreDisputeAlert, alert.ID))

	action, err := f.store.Ledger().GetActionByKey(context.Background(), preDisputeKey(alert.ID))
	require.NoError(t, err)
	assert.Equal(t, models.LedgerActionApproved, action.Action)

	select {
	case ev := <-events:
		assert.Equal(t, notification.EventAlertUpdated, ev.Type)
		assert.Equal(t, alert.ID, ev.AlertID)
		assert.Equal(t, string(models.PreDisputeStatusResolved), ev.Status)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestSubmitResolution_RefundCreditsWallet(t *testing.T) {
	f := newFixture(t)
	alert := f.preDispute(t, time.Hour, allOptions)

	result, err := f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: alert.ID, ResolutionType: "refund", OperatorID: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, models.EffectStatusApplied, result.EffectStatus)

	report, err := f.ledger.CheckWallet(context.Background(), alert.UserID)
	require.NoError(t, err)
	assert.True(t, report.Wallet.Balance.Equal(alert.Amount))
	assert.True(t, report.Consistent)
}

func TestSubmitResolution_Errors(t *testing.T) {
	f := newFixture(t)
	limited := models.ResolutionOptions{{Type: "approve", Label: "Accept", Action: "approve"}, {Type: "call_back", Label: "Call", Action: "contact"}}

	t.Run("unknown alert", func(t *testing.T) {
		_, err := f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: uuid.New(), ResolutionType: "bogus"})
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("option not offered", func(t *testing.T) {
		alert := f.preDispute(t, time.Hour, limited)
		_, err := f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: alert.ID, ResolutionType: "refund"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidAction)
	})

	t.Run("presentation-only option", func(t *testing.T) {
		alert := f.preDispute(t, time.Hour, limited)
		_, err := f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: alert.ID, ResolutionType: "call_back"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidAction)
	})

	t.Run("terminal state wins over bad action", func(t *testing.T) {
		alert := f.preDispute(t, time.Hour, limited)
		_, err := f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: alert.ID, ResolutionType: "approve", OperatorID: "op-1"})
		require.NoError(t, err)

		_, err = f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: alert.ID, ResolutionType: "bogus"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
		assert.Equal(t, []string{audit.ActionCreated, audit.ActionResolved}, f.auditActions(t, models.ResourcePreDisputeAlert, alert.ID))
	})
}

func TestSubmitResolution_ExpiredAlert(t *testing.T) {
	f := newFixture(t)
	alert := f.preDispute(t, time.Minute, allOptions)
	f.clock.Advance(2 * time.Minute)

	_, err := f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: alert.ID, ResolutionType: "approve", OperatorID: "op-1"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	stored, err := f.store.Alerts().GetPreDisputeAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PreDisputeStatusExpired, stored.Status)

	_, err = f.engine.GetResolution(context.Background(), alert.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, []string{audit.ActionCreated, audit.ActionExpired}, f.auditActions(t, models.ResourcePreDisputeAlert, alert.ID))
}

func TestSubmitResolution_ConcurrentOperators(t *testing.T) {
	f := newFixture(t)
	alert := f.preDispute(t, time.Hour, allOptions)

	const operators = 8
	var wins, conflicts atomic.Int32
	var g errgroup.Group
	for i := 0; i < operators; i++ {
		resolutionType := []string{"approve", "block", "refund"}[i%3]
		g.Go(func() error {
			_, err := f.engine.SubmitResolution(context.Background(), ResolutionRequest{
				AlertID:        alert.ID,
				ResolutionType: resolutionType,
				OperatorID:     uuid.NewString(),
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, apperrors.ErrInvalidState):
				conflicts.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(operators-1), conflicts.Load())
	assert.Equal(t, []string{audit.ActionCreated, audit.ActionResolved}, f.auditActions(t, models.ResourcePreDisputeAlert, alert.ID))
}

func TestViewAlert(t *testing.T) {
	f := newFixture(t)
	alert := f.preDispute(t, time.Hour, allOptions)

	viewed, err := f.engine.ViewAlert(context.Background(), alert.ID, "op-1")
	require.NoError(t, err)
	assert.Equal(t, models.PreDisputeStatusViewed, viewed.Status)
	require.NotNil(t, viewed.ViewedAt)

	again, err := f.engine.ViewAlert(context.Background(), alert.ID, "op-2")
	require.NoError(t, err)
	assert.Equal(t, models.PreDisputeStatusViewed, again.Status)
	assert.Equal(t, []string{audit.ActionCreated, audit.ActionViewed}, f.auditActions(t, models.ResourcePreDisputeAlert, alert.ID))

	_, err = f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: alert.ID, ResolutionType: "block", OperatorID: "op-1"})
	assert.NoError(t, err)
}

func TestListPreDisputeAlerts_ReportsLapsedExpiry(t *testing.T) {
	f := newFixture(t)
	short := f.preDispute(t, time.Minute, allOptions)
	f.preDispute(t, time.Hour, allOptions)
	f.clock.Advance(5 * time.Minute)

	alerts, total, err := f.engine.ListPreDisputeAlerts(context.Background(), repositories.PreDisputeAlertFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	for _, a := range alerts {
		if a.ID == short.ID {
			assert.Equal(t, models.PreDisputeStatusExpired, a.Status)
		} else {
			assert.Equal(t, models.PreDisputeStatusSent, a.Status)
		}
	}

	got, err := f.engine.GetPreDisputeAlert(context.Background(), short.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PreDisputeStatusExpired, got.Status)
	assert.Equal(t, []string{audit.ActionCreated, audit.ActionExpired}, f.auditActions(t, models.ResourcePreDisputeAlert, short.ID))
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t)
	overdue := []*models.PreDisputeAlert{
		f.preDispute(t, time.Minute, allOptions),
		f.preDispute(t, 2*time.Minute, allOptions),
	}
	live := f.preDispute(t, time.Hour, allOptions)
	f.clock.Advance(10 * time.Minute)

	n, err := f.engine.ExpireOverdue(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.engine.ExpireOverdue(context.Background(), 50)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, a := range overdue {
		stored, err := f.store.Alerts().GetPreDisputeAlert(context.Background(), a.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PreDisputeStatusExpired, stored.Status)
	}
	stored, err := f.store.Alerts().GetPreDisputeAlert(context.Background(), live.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PreDisputeStatusSent, stored.Status)
}

func TestEscalateAlert(t *testing.T) {
	f := newFixture(t)
	alert := f.preDispute(t, time.Hour, allOptions)

	result, err := f.engine.EscalateAlert(context.Background(), alert.ID, "op-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.PreDisputeStatusEscalated, result.Status)

	dispute, err := f.store.Disputes().GetByID(context.Background(), result.DisputeID)
	require.NoError(t, err)
	assert.Equal(t, alert.TransactionID, dispute.TransactionID)
	assert.Equal(t, alert.Message, dispute.Reason)
	assert.True(t, dispute.Amount.Equal(alert.Amount))
	require.NotNil(t, dispute.SourceAlertID)
	assert.Equal(t, alert.ID, *dispute.SourceAlertID)
	assert.Equal(t, []string{audit.ActionCreated}, f.auditActions(t, models.ResourceDisputeCase, dispute.ID))

	_, err = f.engine.EscalateAlert(context.Background(), alert.ID, "op-2", "again")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	_, err = f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: alert.ID, ResolutionType: "approve"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestEscalateAlert_ReusesOpenDispute(t *testing.T) {
	f := newFixture(t)
	alert := f.preDispute(t, time.Hour, allOptions)
	existing := &models.DisputeCase{TransactionID: alert.TransactionID, UserID: alert.UserID, Reason: "filed by customer", Amount: alert.Amount}
	require.NoError(t, f.store.Disputes().Create(context.Background(), existing))

	result, err := f.engine.EscalateAlert(context.Background(), alert.ID, "op-1", "duplicate")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, result.DisputeID)

	_, total, err := f.store.Disputes().List(context.Background(), repositories.DisputeFilter{TransactionID: &alert.TransactionID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestSubmitResolution_ClosesLinkedDispute(t *testing.T) {
	f := newFixture(t)
	alert := f.preDispute(t, time.Hour, allOptions)
	open := &models.DisputeCase{TransactionID: alert.TransactionID, UserID: alert.UserID, Reason: "not received", Amount: alert.Amount}
	require.NoError(t, f.store.Disputes().Create(context.Background(), open))

	result, err := f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: alert.ID, ResolutionType: "approve", OperatorID: "op-1"})
	require.NoError(t, err)
	require.NotNil(t, result.DisputeID)
	assert.Equal(t, open.ID, *result.DisputeID)

	dispute, err := f.store.Disputes().GetByID(context.Background(), open.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, dispute.Status)
	require.NotNil(t, dispute.ResolvedBy)
	assert.Equal(t, "op-1", *dispute.ResolvedBy)
	assert.Equal(t, []string{audit.ActionStatusChanged}, f.auditActions(t, models.ResourceDisputeCase, open.ID))
}

func TestSubmitResolution_EffectRetried(t *testing.T) {
	f := newFixture(t)
	alert := f.preDispute(t, time.Hour, allOptions)
	f.store.FailNext(memory.OpCreateAction, errors.New("ledger offline"))

	result, err := f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: alert.ID, ResolutionType: "block", OperatorID: "op-1"})
	require.NoError(t, err, "a failed effect does not undo the resolution")
	assert.Equal(t, models.EffectStatusFailed, result.EffectStatus)

	res, err := f.engine.GetResolution(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EffectStatusFailed, res.EffectStatus)
	assert.Contains(t, res.EffectError, "ledger offline")

	applied, err := f.engine.RetryEffects(context.Background(), f.clock.Now(), 5, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	res, err = f.engine.GetResolution(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EffectStatusApplied, res.EffectStatus)
	assert.Equal(t, 2, res.EffectAttempts)

	applied, err = f.engine.RetryEffects(context.Background(), f.clock.Now(), 5, 10)
	require.NoError(t, err)
	assert.Zero(t, applied)
}

func TestRetryEffects_StopsAtMaxAttempts(t *testing.T) {
	f := newFixture(t)
	alert := f.preDispute(t, time.Hour, allOptions)
	f.store.Fail(memory.OpCreateAction, errors.New("ledger offline"), -1)

	_, err := f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: alert.ID, ResolutionType: "approve", OperatorID: "op-1"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.engine.RetryEffects(context.Background(), f.clock.Now(), 2, 10)
		require.NoError(t, err)
	}
	res, err := f.engine.GetResolution(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.EffectAttempts)
	assert.Equal(t, models.EffectStatusFailed, res.EffectStatus)
}

func TestRetryEffects_ExhaustedRowsDoNotStarveNewerOnes(t *testing.T) {
	f := newFixture(t)

	exhausted := f.preDispute(t, time.Hour, allOptions)
	f.store.Fail(memory.OpCreateAction, errors.New("ledger offline"), -1)
	_, err := f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: exhausted.ID, ResolutionType: "approve", OperatorID: "op-1"})
	require.NoError(t, err)
	_, err = f.engine.RetryEffects(context.Background(), f.clock.Now(), 2, 1)
	require.NoError(t, err)

	newer := f.preDispute(t, time.Hour, allOptions)
	_, err = f.engine.SubmitResolution(context.Background(), ResolutionRequest{AlertID: newer.ID, ResolutionType: "block", OperatorID: "op-1"})
	require.NoError(t, err)
	f.store.ClearFaults()

	applied, err := f.engine.RetryEffects(context.Background(), f.clock.Now(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	res, err := f.engine.GetResolution(context.Background(), newer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EffectStatusApplied, res.EffectStatus)

	res, err = f.engine.GetResolution(context.Background(), exhausted.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EffectStatusFailed, res.EffectStatus)
	assert.Equal(t, 2, res.EffectAttempts)
}

func TestIngestFraudAlert_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.IngestFraudAlert(context.Background(), FraudAlertInput{RiskScore: 101, Amount: decimal.NewFromInt(1)}, "scorer")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	_, err = f.engine.IngestFraudAlert(context.Background(), FraudAlertInput{RiskScore: 50, Amount: decimal.NewFromInt(-1)}, "scorer")
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)
}

func TestAcknowledgeAlert_Idempotent(t *testing.T) {
	f := newFixture(t)
	alert := f.fraud(t)

	first, err := f.engine.AcknowledgeAlert(context.Background(), alert.ID, "op-1")
	require.NoError(t, err)
	assert.True(t, first.Acknowledged)
	assert.False(t, first.AlreadyAcknowledged)

	second, err := f.engine.AcknowledgeAlert(context.Background(), alert.ID, "op-2")
	require.NoError(t, err)
	assert.True(t, second.AlreadyAcknowledged)

	stored, err := f.engine.GetFraudAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AcknowledgedBy)
	assert.Equal(t, "op-1", *stored.AcknowledgedBy)
	assert.Equal(t, []string{audit.ActionCreated, audit.ActionAcknowledged}, f.auditActions(t, models.ResourceFraudAlert, alert.ID))

	_, err = f.engine.AcknowledgeAlert(context.Background(), uuid.New(), "op-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAcknowledgeAlert_Concurrent(t *testing.T) {
	f := newFixture(t)
	alert := f.fraud(t)

	var fresh atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			res, err := f.engine.AcknowledgeAlert(context.Background(), alert.ID, uuid.NewString())
			if err != nil {
				return err
			}
			if !res.AlreadyAcknowledged {
				fresh.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), fresh.Load())
	assert.Len(t, f.auditActions(t, models.ResourceFraudAlert, alert.ID), 2)
}

func TestDeferAlert(t *testing.T) {
	f := newFixture(t)
	alert := f.fraud(t)

	res, err := f.engine.DeferAlert(context.Background(), alert.ID, "op-1")
	require.NoError(t, err)
	require.NotNil(t, res.Resolution)
	assert.Equal(t, models.FraudResolutionDeferred, *res.Resolution)

	_, err = f.store.Ledger().GetActionByKey(context.Background(), fraudKey(alert.ID))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestQuickAction(t *testing.T) {
	f := newFixture(t)

	t.Run("repeat returns the first outcome", func(t *testing.T) {
		alert := f.fraud(t)
		first, err := f.engine.QuickAction(context.Background(), alert.ID, "blocked", "op-1")
		require.NoError(t, err)
		assert.False(t, first.AlreadyAcknowledged)
		require.NotNil(t, first.Resolution)
		assert.Equal(t, models.FraudResolutionBlocked, *first.Resolution)

		second, err := f.engine.QuickAction(context.Background(), alert.ID, "approved", "op-2")
		require.NoError(t, err)
		assert.True(t, second.AlreadyAcknowledged)
		require.NotNil(t, second.Resolution)
		assert.Equal(t, models.FraudResolutionBlocked, *second.Resolution)

		action, err := f.store.Ledger().GetActionByKey(context.Background(), fraudKey(alert.ID))
		require.NoError(t, err)
		assert.Equal(t, models.LedgerActionBlocked, action.Action)
		assert.Equal(t, []string{audit.ActionEffectApplied}, f.auditActions(t, models.ResourceTransaction, alert.TransactionID))
	})

	t.Run("unknown action", func(t *testing.T) {
		alert := f.fraud(t)
		_, err := f.engine.QuickAction(context.Background(), alert.ID, "refund", "op-1")
		assert.ErrorIs(t, err, apperrors.ErrInvalidAction)
	})

	t.Run("acknowledged without action", func(t *testing.T) {
		alert := f.fraud(t)
		_, err := f.engine.AcknowledgeAlert(context.Background(), alert.ID, "op-1")
		require.NoError(t, err)

		_, err = f.engine.QuickAction(context.Background(), alert.ID, "approved", "op-1")
		assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	})

	t.Run("ledger failure leaves alert open", func(t *testing.T) {
		alert := f.fraud(t)
		f.store.FailNext(memory.OpCreateAction, errors.New("timeout"))

		_, err := f.engine.QuickAction(context.Background(), alert.ID, "approved", "op-1")
		assert.ErrorIs(t, err, apperrors.ErrDependencyUnavailable)

		stored, err := f.engine.GetFraudAlert(context.Background(), alert.ID)
		require.NoError(t, err)
		assert.False(t, stored.Acknowledged)
	})
}

func TestQuickAction_ConcurrentOperators(t *testing.T) {
	f := newFixture(t)
	alert := f.fraud(t)

	const operators = 8
	results := make([]*AckResult, operators)
	var g errgroup.Group
	for i := 0; i < operators; i++ {
		i := i
		action := "blocked"
		if i%2 == 1 {
			action = "approved"
		}
		g.Go(func() error {
			res, err := f.engine.QuickAction(context.Background(), alert.ID, action, uuid.NewString())
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	stored, err := f.engine.GetFraudAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Resolution)

	fresh := 0
	for _, res := range results {
		require.NotNil(t, res)
		assert.True(t, res.Acknowledged)
		require.NotNil(t, res.Resolution)
		assert.Equal(t, *stored.Resolution, *res.Resolution)
		if !res.AlreadyAcknowledged {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)

	action, err := f.store.Ledger().GetActionByKey(context.Background(), fraudKey(alert.ID))
	require.NoError(t, err)
	assert.Equal(t, string(*stored.Resolution), string(action.Action))
	assert.Equal(t, []string{audit.ActionEffectApplied}, f.auditActions(t, models.ResourceTransaction, alert.TransactionID))
	assert.Equal(t, []string{audit.ActionCreated, audit.ActionAcknowledged}, f.auditActions(t, models.ResourceFraudAlert, alert.ID))
}

func TestQuickAction_RacingDefer(t *testing.T) {
	f := newFixture(t)

	for round := 0; round < 20; round++ {
		alert := f.fraud(t)

		var g errgroup.Group
		for i := 0; i < 4; i++ {
			g.Go(func() error {
				_, err := f.engine.QuickAction(context.Background(), alert.ID, "blocked", "op-quick")
				if errors.Is(err, apperrors.ErrInvalidState) {
					return nil
				}
				return err
			})
			g.Go(func() error {
				_, err := f.engine.DeferAlert(context.Background(), alert.ID, "op-defer")
				return err
			})
		}
		require.NoError(t, g.Wait())

		stored, err := f.engine.GetFraudAlert(context.Background(), alert.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.Resolution)

		action, err := f.store.Ledger().GetActionByKey(context.Background(), fraudKey(alert.ID))
		if *stored.Resolution == models.FraudResolutionDeferred {
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
			assert.Empty(t, f.auditActions(t, models.ResourceTransaction, alert.TransactionID))
		} else {
			require.NoError(t, err)
			assert.Equal(t, models.LedgerActionBlocked, action.Action)
		}
	}
}

// deferringAlerts lets another operator defer the alert right after the
// first fraud alert read, before the reader gets to acknowledge.
type deferringAlerts struct {
	repositories.AlertRepository
	once    sync.Once
	onFirst func()
}

func (a *deferringAlerts) GetFraudAlert(ctx context.Context, id uuid.UUID) (*models.FraudAlert, error) {
	alert, err := a.AlertRepository.GetFraudAlert(ctx, id)
	a.once.Do(a.onFirst)
	return alert, err
}

type deferringStore struct {
	repositories.Store
	alerts *deferringAlerts
}

func (s *deferringStore) Alerts() repositories.AlertRepository { return s.alerts }

func TestQuickAction_DeferCommitsFirst(t *testing.T) {
	f := newFixture(t)
	alert := f.fraud(t)
	log := logging.Discard()

	st := &deferringStore{Store: f.store, alerts: &deferringAlerts{
		AlertRepository: f.store.Alerts(),
		onFirst: func() {
			_, err := f.engine.DeferAlert(context.Background(), alert.ID, "op-2")
			require.NoError(t, err)
		},
	}}
	engine := NewEngine(st, f.ledger, audit.NewRecorder(log), notification.NewService(f.bus, log), log, WithClock(f.clock.Now))

	_, err := engine.QuickAction(context.Background(), alert.ID, "blocked", "op-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)

	stored, err := f.engine.GetFraudAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Resolution)
	assert.Equal(t, models.FraudResolutionDeferred, *stored.Resolution)

	_, err = f.store.Ledger().GetActionByKey(context.Background(), fraudKey(alert.ID))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, f.auditActions(t, models.ResourceTransaction, alert.TransactionID))
}

func TestListFraudAlerts_FilterAcknowledged(t *testing.T) {
	f := newFixture(t)
	acked := f.fraud(t)
	f.fraud(t)
	_, err := f.engine.AcknowledgeAlert(context.Background(), acked.ID, "op-1")
	require.NoError(t, err)

	no := false
	alerts, total, err := f.engine.ListFraudAlerts(context.Background(), repositories.FraudAlertFilter{Acknowledged: &no, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, alerts, 1)
	assert.NotEqual(t, acked.ID, alerts[0].ID)
}
