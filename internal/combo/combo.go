// Package combo assembles two-leg strangle instruments and aggregates their
// leg quotes into a tradable combo price.
package combo

import (
	"context"
	"fmt"
	"log"

	"github.com/quaxel/eodstrangle/internal/gateway"
	"github.com/quaxel/eodstrangle/internal/util"
)

// Build pairs qualified put and call legs into combo instruments, one combo
// per index, stopping at the shorter list. Every leg must be qualified and
// share the combo currency.
func Build(symbol, venue, currency string, action gateway.Action,
	puts, calls []gateway.Instrument) ([]gateway.Instrument, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("combo build: invalid action %q", action)
	}

	n := len(puts)
	if len(calls) < n {
		n = len(calls)
	}

	combos := make([]gateway.Instrument, 0, n)
	for i := 0; i < n; i++ {
		put, call := puts[i], calls[i]
		for _, leg := range []gateway.Instrument{put, call} {
			if !leg.Qualified() {
				return nil, fmt.Errorf("combo build: leg %s is not qualified", leg.Symbol)
			}
			if leg.Currency != currency {
				return nil, fmt.Errorf("combo build: leg %s currency %s does not match combo currency %s",
					leg.Symbol, leg.Currency, currency)
			}
		}
		combos = append(combos, gateway.Instrument{
			ConID:    put.ConID, // placeholder id so the combo counts as qualified
			Symbol:   symbol,
			SecType:  gateway.SecCombo,
			Venue:    venue,
			Currency: currency,
			Legs: []gateway.ComboLeg{
				{ConID: put.ConID, Action: action, Ratio: 1, Venue: venue},
				{ConID: call.ConID, Action: action, Ratio: 1, Venue: venue},
			},
		})
	}
	return combos, nil
}

// Price is an aggregated combo quote. Bid, Mid and Ask are each rounded to
// the instrument tick, so all three are directly usable as order prices.
type Price struct {
	Bid float64
	Mid float64
	Ask float64
}

// Pricer aggregates combo prices through a gateway.
type Pricer struct {
	gateway gateway.Gateway
	logger  *log.Logger
}

// NewPricer creates a Pricer.
func NewPricer(gw gateway.Gateway, logger *log.Logger) *Pricer {
	if logger == nil {
		logger = log.Default()
	}
	return &Pricer{gateway: gw, logger: logger}
}

// Price takes a fresh snapshot of every leg and accumulates signed leg
// quotes into a combo bid and ask. Sell legs add, buy legs subtract, scaled
// by ratio. A leg side with no valid quote contributes zero, which keeps a
// one-sided market visible in the aggregate instead of poisoning it with
// sentinels. Bid, mid and ask are each rounded to tick.
func (p *Pricer) Price(ctx context.Context, cmb gateway.Instrument, tick float64) (Price, error) {
	if cmb.SecType != gateway.SecCombo {
		return Price{}, fmt.Errorf("combo price: %s is not a combo", cmb.Symbol)
	}
	if len(cmb.Legs) == 0 {
		return Price{}, fmt.Errorf("combo price: %s has no legs", cmb.Symbol)
	}
	for _, leg := range cmb.Legs {
		if !leg.Action.Valid() {
			return Price{}, fmt.Errorf("combo price: leg %d of %s has invalid action %q",
				leg.ConID, cmb.Symbol, leg.Action)
		}
		if leg.Ratio <= 0 {
			return Price{}, fmt.Errorf("combo price: leg %d of %s has ratio %d",
				leg.ConID, cmb.Symbol, leg.Ratio)
		}
	}

	var bid, ask float64
	for _, leg := range cmb.Legs {
		legInst := gateway.Instrument{ConID: leg.ConID, Symbol: cmb.Symbol}
		quote, err := p.gateway.Snapshot(ctx, legInst, true)
		if err != nil {
			return Price{}, fmt.Errorf("combo price: snapshot for leg %d: %w", leg.ConID, err)
		}

		sign := float64(leg.Ratio)
		if leg.Action == gateway.ActionBuy {
			sign = -sign
		}
		if gateway.ValidPrice(quote.Bid) {
			bid += sign * quote.Bid
		}
		if gateway.ValidPrice(quote.Ask) {
			ask += sign * quote.Ask
		}
	}

	price := Price{
		Bid: util.RoundToTick(bid, tick),
		Mid: util.RoundToTick((bid+ask)/2, tick),
		Ask: util.RoundToTick(ask, tick),
	}
	p.logger.Printf("Combo %s priced bid=%.4f mid=%.4f ask=%.4f",
		cmb.Symbol, price.Bid, price.Mid, price.Ask)
	return price, nil
}
