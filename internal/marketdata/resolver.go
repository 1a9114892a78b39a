// Package marketdata resolves a usable reference price for an instrument
// from live snapshots, with a fixed fallback chain and bounded retries.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/quaxel/eodstrangle/internal/gateway"
)

// ErrNoPrice indicates that no valid reference price could be resolved
// within the retry budget.
var ErrNoPrice = errors.New("no valid reference price")

// Source names where a resolved price came from.
type Source string

const (
	SourceMid        Source = "mid"
	SourceLast       Source = "last"
	SourceClose      Source = "close"
	SourceHistorical Source = "historical"
)

// RetryPolicy bounds how long the resolver keeps polling for a price.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	// AllowCloseFallback admits the snapshot close as a price source
	// before the historical bar fallback.
	AllowCloseFallback bool
}

// DefaultRetryPolicy matches the pace of an end-of-day entry window: a few
// seconds of polling, not minutes.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 7,
	Interval:    2 * time.Second,
}

// ReferencePrice is a resolved price with its provenance.
type ReferencePrice struct {
	Price  float64
	Source Source
}

// Resolver produces reference prices through a gateway.
type Resolver struct {
	gateway gateway.Gateway
	logger  *log.Logger
	policy  RetryPolicy
}

// NewResolver creates a Resolver. The policy is optional; omitting it uses
// DefaultRetryPolicy.
func NewResolver(gw gateway.Gateway, logger *log.Logger, policy ...RetryPolicy) *Resolver {
	p := DefaultRetryPolicy
	if len(policy) > 0 {
		p = policy[0]
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.Interval <= 0 {
		p.Interval = DefaultRetryPolicy.Interval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{gateway: gw, logger: logger, policy: p}
}

// Resolve returns the best available reference price for a qualified
// instrument. Each attempt takes a fresh snapshot and works down the chain:
// bid/ask midpoint, then last trade, then (if the policy allows) the close.
// When every attempt comes up empty it makes a single historical request for
// the prior close before giving up with ErrNoPrice.
func (r *Resolver) Resolve(ctx context.Context, inst gateway.Instrument) (*ReferencePrice, error) {
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("price resolution canceled: %w", ctx.Err())
		}

		quote, err := r.gateway.Snapshot(ctx, inst, true)
		if err != nil {
			r.logger.Printf("Snapshot attempt %d/%d for %s failed: %v",
				attempt, r.policy.MaxAttempts, inst.Symbol, err)
		} else if ref := r.fromQuote(quote); ref != nil {
			r.logger.Printf("Resolved %s reference price %.4f from %s on attempt %d",
				inst.Symbol, ref.Price, ref.Source, attempt)
			return ref, nil
		}

		if attempt < r.policy.MaxAttempts {
			select {
			case <-time.After(r.policy.Interval):
			case <-ctx.Done():
				return nil, fmt.Errorf("price resolution canceled during wait: %w", ctx.Err())
			}
		}
	}

	r.logger.Printf("No live price for %s after %d attempts, falling back to historical close",
		inst.Symbol, r.policy.MaxAttempts)
	return r.historicalClose(ctx, inst)
}

// fromQuote applies the fallback chain to a single snapshot. Returns nil
// when the snapshot holds nothing usable.
func (r *Resolver) fromQuote(q *gateway.Quote) *ReferencePrice {
	if q == nil {
		return nil
	}
	if q.HasBidAsk() {
		return &ReferencePrice{Price: q.Mid(), Source: SourceMid}
	}
	if gateway.ValidPrice(q.Last) {
		return &ReferencePrice{Price: q.Last, Source: SourceLast}
	}
	if r.policy.AllowCloseFallback && gateway.ValidPrice(q.Close) {
		return &ReferencePrice{Price: q.Close, Source: SourceClose}
	}
	return nil
}

func (r *Resolver) historicalClose(ctx context.Context, inst gateway.Instrument) (*ReferencePrice, error) {
	bars, err := r.gateway.HistoricalBars(ctx, inst, gateway.BarRequest{
		Duration:         "2 D",
		BarSize:          "1 day",
		Field:            "TRADES",
		RegularHoursOnly: false,
	})
	if err != nil {
		return nil, fmt.Errorf("%w for %s: historical fallback failed: %v", ErrNoPrice, inst.Symbol, err)
	}

	for i := len(bars) - 1; i >= 0; i-- {
		if gateway.ValidPrice(bars[i].Close) {
			return &ReferencePrice{Price: bars[i].Close, Source: SourceHistorical}, nil
		}
	}
	return nil, fmt.Errorf("%w for %s: no usable historical close", ErrNoPrice, inst.Symbol)
}
