// Package mock provides a simulated gateway for dry runs and tests. Quotes
// follow a small random walk around a configured spot price, and option
// premiums decay with distance from the money.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/quaxel/eodstrangle/internal/gateway"
	"github.com/quaxel/eodstrangle/internal/util"
)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// Gateway is an in-memory gateway.Gateway implementation.
type Gateway struct {
	mu         sync.Mutex
	spot       map[string]float64
	tick       float64
	nextConID  int64
	nextOrder  int64
	qualified  map[int64]gateway.Instrument
	orders     map[int64]*gateway.OrderAck
	FailOrders bool // new submissions come back Rejected
	Now        func() time.Time
}

var _ gateway.Gateway = (*Gateway)(nil)

// NewGateway creates a simulated gateway seeded with spot prices per symbol.
func NewGateway(spots map[string]float64) *Gateway {
	g := &Gateway{
		spot:      make(map[string]float64, len(spots)),
		tick:      0.01,
		nextConID: 1000,
		nextOrder: 1,
		qualified: make(map[int64]gateway.Instrument),
		orders:    make(map[int64]*gateway.OrderAck),
		Now:       time.Now,
	}
	for sym, px := range spots {
		g.spot[sym] = px
	}
	return g
}

func (g *Gateway) spotFor(symbol string) float64 {
	px, ok := g.spot[symbol]
	if !ok {
		px = 100 + secureFloat64()*10
	}
	// Small random walk on every read.
	px += (secureFloat64() - 0.5) * 0.1
	g.spot[symbol] = px
	return px
}

// premium is a crude distance-decayed option value, enough to exercise the
// selection and pricing paths.
func premium(spot, strike float64, right gateway.Right) float64 {
	intrinsic := 0.0
	switch right {
	case gateway.RightPut:
		intrinsic = math.Max(0, strike-spot)
	case gateway.RightCall:
		intrinsic = math.Max(0, spot-strike)
	}
	extrinsic := 1.2 * math.Exp(-math.Abs(spot-strike)/math.Max(spot*0.02, 0.5))
	return intrinsic + extrinsic
}

func (g *Gateway) Snapshot(_ context.Context, inst gateway.Instrument, _ bool) (*gateway.Quote, error) {
	if !inst.Qualified() {
		return nil, fmt.Errorf("mock snapshot: %s is not qualified", inst.Symbol)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if known, ok := g.qualified[inst.ConID]; ok {
		inst = known
	}
	spot := g.spotFor(inst.Symbol)

	var mid float64
	switch inst.SecType {
	case gateway.SecOption, gateway.SecFutureOption:
		mid = premium(spot, inst.Strike, inst.Right)
	default:
		mid = spot
	}
	spread := math.Max(g.tick, mid*0.01)
	return &gateway.Quote{
		Bid:       util.RoundToTick(mid-spread/2, g.tick),
		Ask:       util.RoundToTick(mid+spread/2, g.tick),
		Last:      util.RoundToTick(mid, g.tick),
		Close:     util.RoundToTick(spot*0.995, g.tick),
		Timestamp: time.Now(),
	}, nil
}

func (g *Gateway) HistoricalBars(_ context.Context, inst gateway.Instrument, _ gateway.BarRequest) ([]gateway.Bar, error) {
	if !inst.Qualified() {
		return nil, fmt.Errorf("mock history: %s is not qualified", inst.Symbol)
	}
	g.mu.Lock()
	spot := g.spotFor(inst.Symbol)
	g.mu.Unlock()

	now := time.Now()
	return []gateway.Bar{
		{Time: now.AddDate(0, 0, -2), Open: spot * 0.99, High: spot * 1.01, Low: spot * 0.98, Close: spot * 0.995, Volume: 1000},
		{Time: now.AddDate(0, 0, -1), Open: spot * 0.995, High: spot * 1.005, Low: spot * 0.99, Close: spot, Volume: 1200},
	}, nil
}

func (g *Gateway) ContractDetails(_ context.Context, spec gateway.InstrumentSpec) ([]gateway.Instrument, error) {
	inst, err := g.qualify(spec)
	if err != nil {
		return nil, err
	}
	return []gateway.Instrument{inst}, nil
}

func (g *Gateway) ChainParams(_ context.Context, und gateway.Instrument) ([]gateway.ChainParams, error) {
	if !und.Qualified() {
		return nil, fmt.Errorf("mock chain: %s is not qualified", und.Symbol)
	}
	g.mu.Lock()
	spot := g.spotFor(und.Symbol)
	g.mu.Unlock()

	base := util.RoundToDollar(spot)
	strikes := make([]float64, 0, 21)
	for d := -10.0; d <= 10.0; d++ {
		strikes = append(strikes, base+d)
	}

	today := g.Now()
	expirations := []string{
		today.AddDate(0, 0, 1).Format("20060102"),
		today.AddDate(0, 0, 2).Format("20060102"),
		today.AddDate(0, 0, 3).Format("20060102"),
	}
	return []gateway.ChainParams{{
		Venue:        und.Venue,
		TradingClass: und.Symbol,
		Multiplier:   und.Multiplier,
		Expirations:  expirations,
		Strikes:      strikes,
	}}, nil
}

func (g *Gateway) qualify(spec gateway.InstrumentSpec) (gateway.Instrument, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextConID++
	inst := gateway.Instrument{ConID: g.nextConID, SecType: spec.SecType(), Currency: "USD"}
	switch s := spec.(type) {
	case gateway.Stock:
		inst.Symbol, inst.Venue = s.Symbol, s.Venue
	case gateway.Index:
		inst.Symbol, inst.Venue = s.Symbol, s.Venue
	case gateway.Future:
		inst.Symbol, inst.Venue = s.Symbol, s.Venue
		inst.Expiry, inst.Multiplier = s.ContractMonth, s.Multiplier
		if inst.Expiry == "" {
			// Open month search resolves to a synthetic front month.
			inst.Expiry = g.Now().AddDate(0, 1, 0).Format("200601")
		}
	case gateway.FutureOption:
		inst.Symbol, inst.Venue = s.Symbol, s.Venue
		inst.Expiry, inst.Strike, inst.Right = s.Expiry, s.Strike, s.Right
		inst.Multiplier = s.Multiplier
	case gateway.Option:
		inst.Symbol, inst.Venue = s.Symbol, s.Venue
		inst.Expiry, inst.Strike, inst.Right = s.Expiry, s.Strike, s.Right
		inst.TradingClass = s.TradingClass
	default:
		return gateway.Instrument{}, fmt.Errorf("%w: unsupported spec %T", gateway.ErrQualification, spec)
	}
	if inst.Symbol == "" {
		return gateway.Instrument{}, fmt.Errorf("%w: empty symbol", gateway.ErrQualification)
	}
	g.qualified[inst.ConID] = inst
	return inst, nil
}

func (g *Gateway) Qualify(_ context.Context, spec gateway.InstrumentSpec) (gateway.Instrument, error) {
	return g.qualify(spec)
}

func (g *Gateway) SubmitOrder(_ context.Context, inst gateway.Instrument, order gateway.Order) (*gateway.OrderAck, error) {
	if !inst.Qualified() {
		return nil, fmt.Errorf("mock submit: %s is not qualified", inst.Symbol)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextOrder++
	// Untransmitted orders are held at the gateway, not working at the venue.
	status := gateway.StatusPendingSubmit
	if g.FailOrders {
		status = gateway.StatusRejected
	} else if order.Transmit {
		status = gateway.StatusSubmitted
	}
	ack := &gateway.OrderAck{
		OrderID:   g.nextOrder,
		Status:    status,
		Remaining: float64(order.Quantity),
	}
	g.orders[ack.OrderID] = ack
	return ack, nil
}

func (g *Gateway) OrderStatus(_ context.Context, orderID int64) (*gateway.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ack, ok := g.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("mock status: unknown order %d", orderID)
	}
	return ack, nil
}
