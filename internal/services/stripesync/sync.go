// Package stripesync imports card processor disputes as dispute cases.
package stripesync

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"disputedesk/internal/services/dispute"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

var ErrMissingKey = errors.New("stripe secret key is not configured")

// Importer is the part of the dispute service the sync needs.
type Importer interface {
	ImportExternal(ctx context.Context, ext dispute.ExternalDispute) (bool, error)
}

// Source lists disputes created at or after since.
type Source interface {
	ListDisputes(ctx context.Context, since time.Time) ([]dispute.ExternalDispute, error)
}

type stripeSource struct {
	api *client.API
}

// NewStripeSource returns a Source backed by the Stripe disputes API.
func NewStripeSource(secretKey string) (Source, error) {
	if secretKey == "" {
		return nil, ErrMissingKey
	}
	return &stripeSource{api: client.New(secretKey, nil)}, nil
}

func (s *stripeSource) ListDisputes(ctx context.Context, since time.Time) ([]dispute.ExternalDispute, error) {
	params := &stripe.DisputeListParams{}
	params.Context = ctx
	params.Filters.AddFilter("created", "gte", strconv.FormatInt(since.Unix(), 10))
	params.AddExpand("data.charge")

	var out []dispute.ExternalDispute
	iter := s.api.Disputes.List(params)
	for iter.Next() {
		out = append(out, fromStripe(iter.Dispute()))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// fromStripe converts a Stripe dispute. Amounts arrive in minor units.
func fromStripe(d *stripe.Dispute) dispute.ExternalDispute {
	ext := dispute.ExternalDispute{
		ExternalRef: d.ID,
		Reason:      string(d.Reason),
		Amount:      decimal.New(d.Amount, -2),
		Currency:    strings.ToUpper(string(d.Currency)),
	}
	if d.Charge != nil {
		ext.ChargeRef = d.Charge.ID
	}
	if ext.Reason == "" {
		ext.Reason = "processor dispute"
	}
	return ext
}

type Result struct {
	Seen     int `json:"seen"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

type Syncer struct {
	source   Source
	importer Importer
	log      *logrus.Logger
}

func NewSyncer(source Source, importer Importer, log *logrus.Logger) *Syncer {
	return &Syncer{source: source, importer: importer, log: log}
}

// Sync imports every dispute the source reports since the given time.
// Already imported disputes are skipped, so overlapping windows are safe.
func (s *Syncer) Sync(ctx context.Context, since time.Time) (*Result, error) {
	disputes, err := s.source.ListDisputes(ctx, since)
	if err != nil {
		return nil, err
	}

	result := &Result{Seen: len(disputes)}
	for _, ext := range disputes {
		imported, err := s.importer.ImportExternal(ctx, ext)
		if err != nil {
			return result, err
		}
		if imported {
			result.Imported++
		} else {
			result.Skipped++
		}
	}
	s.log.WithFields(logrus.Fields{
		"seen":     result.Seen,
		"imported": result.Imported,
		"skipped":  result.Skipped,
	}).Info("stripe dispute sync finished")
	return result, nil
}
