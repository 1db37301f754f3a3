// Package reconciler finishes work that a request left half done: staged
// refunds stuck in pending_reconciliation, alert resolutions whose ledger
// effect failed, and pre-dispute alerts past their expiry.
package reconciler

import (
	"context"
	"time"

	"disputedesk/internal/config"
	"disputedesk/internal/models"
	"disputedesk/internal/repositories"
	"disputedesk/internal/services/dispute"
	"disputedesk/internal/services/resolution"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Actor is recorded in the audit log for reconciler decisions.
const Actor = "reconciler"

type Options struct {
	Interval      time.Duration
	Timeout       time.Duration
	MaxAttempts   int
	BatchSize     int
	SweepInterval time.Duration
}

// OptionsFromConfig reads the reconciler settings from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Interval:      cfg.ReconcileInterval,
		Timeout:       cfg.ReconcileTimeout,
		MaxAttempts:   cfg.ReconcileMaxAttempts,
		BatchSize:     cfg.ReconcileBatchSize,
		SweepInterval: cfg.ExpirySweepInterval,
	}
}

// Report summarizes one pass.
type Report struct {
	Completed      int `json:"completed"`
	Reversed       int `json:"reversed"`
	Failed         int `json:"failed"`
	EffectsApplied int `json:"effects_applied"`
	Expired        int `json:"expired"`
}

type Reconciler struct {
	store    repositories.Store
	disputes *dispute.Service
	engine   *resolution.Engine
	opts     Options
	log      *logrus.Logger
	now      func() time.Time
}

func New(store repositories.Store, disputes *dispute.Service, engine *resolution.Engine, opts Options, log *logrus.Logger) *Reconciler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &Reconciler{
		store:    store,
		disputes: disputes,
		engine:   engine,
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

// RunOnce reconciles refunds older than the timeout and retries failed
// alert effects. It does not sweep expiry.
func (r *Reconciler) RunOnce(ctx context.Context) (*Report, error) {
	report := &Report{}
	cutoff := r.now().UTC().Add(-r.opts.Timeout)

	pending, err := r.store.Ledger().ListTransactionsByStatus(ctx, models.TransactionStatusPendingReconciliation, cutoff, r.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	for _, txn := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.reconcile(ctx, txn, report)
	}

	applied, err := r.engine.RetryEffects(ctx, cutoff, r.opts.MaxAttempts, r.opts.BatchSize)
	if err != nil {
		return report, err
	}
	report.EffectsApplied = applied

	if report.Completed+report.Reversed+report.Failed+report.EffectsApplied > 0 {
		r.log.WithFields(logrus.Fields{
			"completed":       report.Completed,
			"reversed":        report.Reversed,
			"failed":          report.Failed,
			"effects_applied": report.EffectsApplied,
		}).Info("reconciliation pass finished")
	}
	return report, nil
}

func (r *Reconciler) reconcile(ctx context.Context, txn *models.Transaction, report *Report) {
	logger := r.log.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"attempts":       txn.ReconcileAttempts,
	})

	if txn.ReconcileAttempts >= r.opts.MaxAttempts {
		if err := r.disputes.ReverseRefund(ctx, txn.ID, Actor, "reconciliation attempts exhausted"); err != nil {
			logger.WithError(err).Error("failed to reverse refund")
			report.Failed++
			return
		}
		report.Reversed++
		return
	}

	if err := r.store.Ledger().IncrementReconcileAttempts(ctx, txn.ID); err != nil {
		logger.WithError(err).Warn("failed to count reconcile attempt")
		report.Failed++
		return
	}
	if err := r.disputes.CompleteRefund(ctx, txn.ID, Actor); err != nil {
		logger.WithError(err).Warn("refund still pending")
		report.Failed++
		return
	}
	report.Completed++
}

// Sweep expires overdue pre-dispute alerts.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	return r.engine.ExpireOverdue(ctx, r.opts.BatchSize)
}

// Run drives RunOnce and Sweep on their tickers until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return every(ctx, r.opts.Interval, func() {
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.log.WithError(err).Error("reconciliation pass failed")
			}
		})
	})
	g.Go(func() error {
		return every(ctx, r.opts.SweepInterval, func() {
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.log.WithError(err).Error("expiry sweep failed")
			}
		})
	})
	return g.Wait()
}

func every(ctx context.Context, interval time.Duration, fn func()) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}
