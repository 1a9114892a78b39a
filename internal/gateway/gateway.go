// Package gateway provides the broker gateway boundary: instrument
// specification and qualification, market data snapshots, and order routing.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrQualification is returned when the venue rejects or cannot resolve an
// instrument spec. Callers treat it as recoverable per attempt.
var ErrQualification = errors.New("instrument qualification failed")

// OrderStatus is the venue-reported lifecycle state of an order.
type OrderStatus string

const (
	// StatusPendingSubmit means the order is held at the gateway, not yet
	// transmitted to the venue (staged orders report this).
	StatusPendingSubmit OrderStatus = "PendingSubmit"
	// StatusPreSubmitted means the order was transmitted but is not yet
	// working (e.g. waiting for a trigger or the session open).
	StatusPreSubmitted OrderStatus = "PreSubmitted"
	// StatusSubmitted means the order is live and working at the venue.
	StatusSubmitted OrderStatus = "Submitted"
	// StatusFilled means the order executed completely.
	StatusFilled OrderStatus = "Filled"
	// StatusCancelled means the order was cancelled.
	StatusCancelled OrderStatus = "Cancelled"
	// StatusRejected means the venue refused the order.
	StatusRejected OrderStatus = "Rejected"
	// StatusExpired means the order lapsed without executing.
	StatusExpired OrderStatus = "Expired"
	// StatusUnknown covers statuses this client does not recognize.
	StatusUnknown OrderStatus = "Unknown"
)

// Accepted reports whether the status belongs to the terminal-success set
// observed right after submission.
func (s OrderStatus) Accepted() bool {
	switch s {
	case StatusPendingSubmit, StatusPreSubmitted, StatusSubmitted, StatusFilled:
		return true
	default:
		return false
	}
}

// OrderType is the execution type of an order.
type OrderType string

const (
	// OrderMarket executes at the prevailing price.
	OrderMarket OrderType = "MKT"
	// OrderLimit executes at the limit price or better.
	OrderLimit OrderType = "LMT"
	// OrderStop triggers a market order when the stop price trades.
	OrderStop OrderType = "STP"
	// OrderTrail is a trailing stop whose trigger follows the market by a
	// fixed amount.
	OrderTrail OrderType = "TRAIL"
)

// PriceCondition attaches an underlying price trigger to an order: the order
// activates when the referenced instrument trades above (or below) Price.
type PriceCondition struct {
	ConID int64
	Venue string
	Above bool
	Price float64
}

// Order is the wire-level order submitted to the gateway. LimitPrice and
// AuxPrice use NaN for "unset" rather than a zero sentinel.
type Order struct {
	Action     Action
	Type       OrderType
	Quantity   int64
	LimitPrice float64
	AuxPrice   float64 // trail amount for TRAIL, stop trigger for STP
	ParentID   int64   // links a dependent order to its primary
	TIF        string  // time in force, e.g. "DAY"
	Transmit   bool
	Ref        string // strategy tag attached for audit grouping
	Condition  *PriceCondition
}

// NewOrder returns an Order with price fields initialized to unset.
func NewOrder(action Action, typ OrderType, quantity int64) Order {
	return Order{
		Action:     action,
		Type:       typ,
		Quantity:   quantity,
		LimitPrice: math.NaN(),
		AuxPrice:   math.NaN(),
		TIF:        "DAY",
	}
}

// OrderAck is the gateway's response to a submission or status query.
type OrderAck struct {
	OrderID      int64
	Status       OrderStatus
	Filled       float64
	Remaining    float64
	AvgFillPrice float64
}

// Gateway is the broker/routing collaborator consumed by the execution
// pipeline. All calls are blocking request/response; implementations own any
// settle waits needed where the venue delivers data asynchronously.
//
// Implementations must be safe for concurrent use: independent strangle
// attempts may run on separate goroutines sharing a single session handle.
type Gateway interface {
	// Snapshot returns a fresh point-in-time quote for a qualified
	// instrument. Every call issues a new outbound request; quotes are
	// never served from a cache.
	Snapshot(ctx context.Context, inst Instrument, refresh bool) (*Quote, error)

	// HistoricalBars returns an ordered sequence of bars, oldest first.
	HistoricalBars(ctx context.Context, inst Instrument, req BarRequest) ([]Bar, error)

	// ContractDetails enumerates the concrete instruments matching a spec,
	// e.g. the full strike ladder for an option spec without a strike.
	ContractDetails(ctx context.Context, spec InstrumentSpec) ([]Instrument, error)

	// ChainParams returns the option chain parameters for an underlying.
	ChainParams(ctx context.Context, und Instrument) ([]ChainParams, error)

	// Qualify resolves a spec to a single venue-native instrument identity,
	// or fails with ErrQualification.
	Qualify(ctx context.Context, spec InstrumentSpec) (Instrument, error)

	// SubmitOrder routes an order for an instrument and returns the
	// assigned identifier together with the live status.
	SubmitOrder(ctx context.Context, inst Instrument, order Order) (*OrderAck, error)

	// OrderStatus returns the current state of a previously submitted order.
	OrderStatus(ctx context.Context, orderID int64) (*OrderAck, error)
}

// QualifyAll qualifies a batch of specs, dropping those the venue cannot
// resolve. It returns an error only when the gateway call itself fails;
// per-spec qualification failures are skipped, matching ladder enumeration
// semantics where unresolvable strikes are simply not candidates.
func QualifyAll(ctx context.Context, gw Gateway, specs []InstrumentSpec) ([]Instrument, error) {
	qualified := make([]Instrument, 0, len(specs))
	for _, spec := range specs {
		inst, err := gw.Qualify(ctx, spec)
		if err != nil {
			if errors.Is(err, ErrQualification) {
				continue
			}
			return nil, fmt.Errorf("qualifying batch: %w", err)
		}
		qualified = append(qualified, inst)
	}
	return qualified, nil
}
