// Package orders submits linked primary/protective order pairs and tracks
// their progression through the venue.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/quaxel/eodstrangle/internal/gateway"
)

var (
	// ErrInvalidParams indicates the order intent failed validation; no
	// request left the process.
	ErrInvalidParams = errors.New("invalid order parameters")
	// ErrOrderIDTimeout indicates the venue did not confirm an order
	// identity within the wait budget. The pair must not proceed.
	ErrOrderIDTimeout = errors.New("timed out waiting for order id")
	// ErrSubmissionRejected indicates the venue reported a terminal
	// non-working status for a submitted order.
	ErrSubmissionRejected = errors.New("order submission rejected")
)

// State tracks how far a linked pair progressed.
type State string

const (
	StateBuilt            State = "built"
	StatePrimarySubmitted State = "primary_submitted"
	StateDependentLinked  State = "dependent_linked"
	// StateTransmitted means both orders are working at the venue.
	StateTransmitted State = "transmitted"
	// StateStaged means the pair is parked untransmitted for review.
	StateStaged State = "staged"
)

// Intent describes a primary combo order before submission.
type Intent struct {
	Combo    gateway.Instrument
	Action   gateway.Action
	Type     gateway.OrderType // Market or Limit
	Quantity int64
	// LimitPrice is required for limit intents and ignored for market.
	LimitPrice float64
	// Live transmits the pair when true; otherwise both orders stage at
	// the venue without working.
	Live bool
	Tag  string
}

// Ticket is one submitted order with its venue identity.
type Ticket struct {
	OrderID int64
	Order   gateway.Order
	Status  gateway.OrderStatus
}

// LinkedOrderPair is the result of a paired submission.
type LinkedOrderPair struct {
	ID        string
	Primary   Ticket
	Dependent Ticket
	State     State
}

// Controller submits linked order pairs through a gateway.
type Controller struct {
	gateway      gateway.Gateway
	logger       *log.Logger
	idTimeout    time.Duration
	pollInterval time.Duration
}

// NewController creates a Controller. idTimeout bounds how long a submission
// may wait for venue confirmation.
func NewController(gw gateway.Gateway, logger *log.Logger, idTimeout time.Duration) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	if idTimeout <= 0 {
		idTimeout = 15 * time.Second
	}
	return &Controller{
		gateway:      gw,
		logger:       logger,
		idTimeout:    idTimeout,
		pollInterval: 500 * time.Millisecond,
	}
}

// SubmitWithTrailingStop submits the primary limit order untransmitted, then
// links a trailing stop child in the opposite direction. trailAmount is the
// absolute trail distance. The child carries the transmit flag, releasing
// both orders at once when the intent is live.
func (c *Controller) SubmitWithTrailingStop(ctx context.Context, intent Intent, trailAmount float64) (*LinkedOrderPair, error) {
	if err := validateIntent(intent); err != nil {
		return nil, err
	}
	if !(trailAmount > 0) {
		return nil, fmt.Errorf("%w: trail amount must be > 0, got %v", ErrInvalidParams, trailAmount)
	}

	dependent := gateway.NewOrder(intent.Action.Opposite(), gateway.OrderTrail, intent.Quantity)
	dependent.AuxPrice = trailAmount
	return c.submitPair(ctx, intent, dependent)
}

// SubmitWithConditionalStop submits the primary limit order untransmitted,
// then links a stop child that only arms once the condition instrument
// crosses the condition price.
func (c *Controller) SubmitWithConditionalStop(ctx context.Context, intent Intent,
	stopPrice float64, cond gateway.PriceCondition) (*LinkedOrderPair, error) {
	if err := validateIntent(intent); err != nil {
		return nil, err
	}
	if !(stopPrice > 0) {
		return nil, fmt.Errorf("%w: stop price must be > 0, got %v", ErrInvalidParams, stopPrice)
	}
	if cond.ConID == 0 {
		return nil, fmt.Errorf("%w: price condition needs a qualified instrument", ErrInvalidParams)
	}

	dependent := gateway.NewOrder(intent.Action.Opposite(), gateway.OrderStop, intent.Quantity)
	dependent.AuxPrice = stopPrice
	dependent.Condition = &cond
	return c.submitPair(ctx, intent, dependent)
}

func validateIntent(intent Intent) error {
	if intent.Combo.SecType != gateway.SecCombo || len(intent.Combo.Legs) == 0 {
		return fmt.Errorf("%w: intent needs a combo with legs", ErrInvalidParams)
	}
	if !intent.Combo.Qualified() {
		return fmt.Errorf("%w: combo is not qualified", ErrInvalidParams)
	}
	if !intent.Action.Valid() {
		return fmt.Errorf("%w: action %q", ErrInvalidParams, intent.Action)
	}
	if intent.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be > 0, got %d", ErrInvalidParams, intent.Quantity)
	}
	switch intent.Type {
	case gateway.OrderMarket:
	case gateway.OrderLimit:
		if math.IsNaN(intent.LimitPrice) || !gateway.ValidPrice(intent.LimitPrice) || intent.LimitPrice <= 0 {
			return fmt.Errorf("%w: limit price %v", ErrInvalidParams, intent.LimitPrice)
		}
	default:
		return fmt.Errorf("%w: order type %q", ErrInvalidParams, intent.Type)
	}
	return nil
}

func (c *Controller) submitPair(ctx context.Context, intent Intent, dependent gateway.Order) (*LinkedOrderPair, error) {
	pair := &LinkedOrderPair{ID: uuid.NewString(), State: StateBuilt}

	// The primary never transmits on its own. Releasing the pair is the
	// dependent's job, so the venue holds both or neither.
	primary := gateway.NewOrder(intent.Action, intent.Type, intent.Quantity)
	if intent.Type == gateway.OrderLimit {
		primary.LimitPrice = intent.LimitPrice
	}
	primary.Transmit = false
	primary.Ref = intent.Tag

	primaryTicket, err := c.submitAndConfirm(ctx, intent.Combo, primary)
	if err != nil {
		return pair, fmt.Errorf("primary order: %w", err)
	}
	pair.Primary = *primaryTicket
	pair.State = StatePrimarySubmitted
	c.logger.Printf("Primary order %d for %s %s %d @ %.4f accepted (%s)",
		primaryTicket.OrderID, intent.Combo.Symbol, intent.Action, intent.Quantity,
		intent.LimitPrice, primaryTicket.Status)

	dependent.ParentID = primaryTicket.OrderID
	dependent.Transmit = intent.Live
	dependent.Ref = intent.Tag

	dependentTicket, err := c.submitAndConfirm(ctx, intent.Combo, dependent)
	if err != nil {
		return pair, fmt.Errorf("dependent order: %w", err)
	}
	pair.Dependent = *dependentTicket
	pair.State = StateDependentLinked

	if intent.Live {
		pair.State = StateTransmitted
	} else {
		pair.State = StateStaged
	}
	c.logger.Printf("Linked pair %s for %s: primary %d, dependent %d, state %s",
		pair.ID, intent.Combo.Symbol, pair.Primary.OrderID, pair.Dependent.OrderID, pair.State)
	return pair, nil
}

// submitAndConfirm routes one order and waits, bounded, for the venue to
// assign an id and report a working status.
func (c *Controller) submitAndConfirm(ctx context.Context, inst gateway.Instrument, order gateway.Order) (*Ticket, error) {
	ack, err := c.gateway.SubmitOrder(ctx, inst, order)
	if err != nil {
		return nil, err
	}
	if ack.OrderID == 0 {
		return nil, fmt.Errorf("%w after submit", ErrOrderIDTimeout)
	}

	deadline := time.Now().Add(c.idTimeout)
	for {
		if ack.Status.Accepted() {
			return &Ticket{OrderID: ack.OrderID, Order: order, Status: ack.Status}, nil
		}
		if terminal(ack.Status) {
			return nil, fmt.Errorf("%w: order %d status %s", ErrSubmissionRejected, ack.OrderID, ack.Status)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: order %d still %s after %v",
				ErrOrderIDTimeout, ack.OrderID, ack.Status, c.idTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("order confirmation canceled: %w", ctx.Err())
		case <-time.After(c.pollInterval):
		}

		ack, err = c.gateway.OrderStatus(ctx, ack.OrderID)
		if err != nil {
			return nil, err
		}
	}
}

func terminal(s gateway.OrderStatus) bool {
	switch s {
	case gateway.StatusCancelled, gateway.StatusRejected, gateway.StatusExpired:
		return true
	}
	return false
}
