package combo

import (
	"context"
	"io"
	"log"
	"math"
	"testing"

	"github.com/quaxel/eodstrangle/internal/gateway"
)

func qualifiedLeg(conid int64, right gateway.Right) gateway.Instrument {
	return gateway.Instrument{
		ConID:    conid,
		Symbol:   "CL",
		SecType:  gateway.SecFutureOption,
		Venue:    "NYMEX",
		Currency: "USD",
		Right:    right,
	}
}

func TestBuild(t *testing.T) {
	puts := []gateway.Instrument{qualifiedLeg(11, gateway.RightPut), qualifiedLeg(12, gateway.RightPut)}
	calls := []gateway.Instrument{qualifiedLeg(21, gateway.RightCall)}

	combos, err := Build("CL", "NYMEX", "USD", gateway.ActionSell, puts, calls)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(combos) != 1 {
		t.Fatalf("expected 1 combo (shorter list), got %d", len(combos))
	}

	cmb := combos[0]
	if cmb.SecType != gateway.SecCombo || !cmb.Qualified() {
		t.Errorf("combo not well formed: %+v", cmb)
	}
	if len(cmb.Legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(cmb.Legs))
	}
	for i, leg := range cmb.Legs {
		if leg.Action != gateway.ActionSell || leg.Ratio != 1 || leg.Venue != "NYMEX" {
			t.Errorf("leg %d = %+v", i, leg)
		}
	}
	if cmb.Legs[0].ConID != 11 || cmb.Legs[1].ConID != 21 {
		t.Errorf("legs must pair put then call, got %+v", cmb.Legs)
	}
}

func TestBuildRejections(t *testing.T) {
	put := qualifiedLeg(11, gateway.RightPut)
	call := qualifiedLeg(21, gateway.RightCall)

	unqualified := put
	unqualified.ConID = 0
	if _, err := Build("CL", "NYMEX", "USD", gateway.ActionSell,
		[]gateway.Instrument{unqualified}, []gateway.Instrument{call}); err == nil {
		t.Error("expected error for unqualified leg")
	}

	foreign := call
	foreign.Currency = "EUR"
	if _, err := Build("CL", "NYMEX", "USD", gateway.ActionSell,
		[]gateway.Instrument{put}, []gateway.Instrument{foreign}); err == nil {
		t.Error("expected error for currency mismatch")
	}

	if _, err := Build("CL", "NYMEX", "USD", gateway.Action("HOLD"),
		[]gateway.Instrument{put}, []gateway.Instrument{call}); err == nil {
		t.Error("expected error for invalid action")
	}
}

// quoteMap serves quotes by leg conid.
type quoteMap struct {
	gateway.Gateway
	quotes map[int64]*gateway.Quote
}

func (q *quoteMap) Snapshot(_ context.Context, inst gateway.Instrument, _ bool) (*gateway.Quote, error) {
	if quote, ok := q.quotes[inst.ConID]; ok {
		return quote, nil
	}
	return &gateway.Quote{Bid: math.NaN(), Ask: math.NaN()}, nil
}

func testPricer(quotes map[int64]*gateway.Quote) *Pricer {
	return NewPricer(&quoteMap{quotes: quotes}, log.New(io.Discard, "", 0))
}

func sellStrangle() gateway.Instrument {
	return gateway.Instrument{
		ConID:   11,
		Symbol:  "CL",
		SecType: gateway.SecCombo,
		Venue:   "NYMEX",
		Legs: []gateway.ComboLeg{
			{ConID: 11, Action: gateway.ActionSell, Ratio: 1, Venue: "NYMEX"},
			{ConID: 21, Action: gateway.ActionSell, Ratio: 1, Venue: "NYMEX"},
		},
	}
}

func TestPriceSellLegsAdd(t *testing.T) {
	pricer := testPricer(map[int64]*gateway.Quote{
		11: {Bid: 1.09, Ask: 1.15},
		21: {Bid: 1.18, Ask: 1.24},
	})

	price, err := pricer.Price(context.Background(), sellStrangle(), 0.01)
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if math.Abs(price.Bid-2.27) > 1e-9 || math.Abs(price.Ask-2.39) > 1e-9 {
		t.Errorf("price = %+v, want bid 2.27 ask 2.39", price)
	}
	if math.Abs(price.Mid-2.33) > 1e-9 {
		t.Errorf("mid = %v, want 2.33", price.Mid)
	}
}

func TestPriceLegOrderInvariance(t *testing.T) {
	quotes := map[int64]*gateway.Quote{
		11: {Bid: 1.09, Ask: 1.15},
		21: {Bid: 1.18, Ask: 1.24},
	}

	cmb := sellStrangle()
	forward, err := testPricer(quotes).Price(context.Background(), cmb, 0.01)
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}

	cmb.Legs[0], cmb.Legs[1] = cmb.Legs[1], cmb.Legs[0]
	reversed, err := testPricer(quotes).Price(context.Background(), cmb, 0.01)
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if forward != reversed {
		t.Errorf("leg permutation changed price: %+v vs %+v", forward, reversed)
	}
}

func TestPriceInvalidLegSideContributesZero(t *testing.T) {
	pricer := testPricer(map[int64]*gateway.Quote{
		11: {Bid: 1.09, Ask: gateway.NoDataPrice},
		21: {Bid: 1.18, Ask: 1.24},
	})

	price, err := pricer.Price(context.Background(), sellStrangle(), 0.01)
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if math.Abs(price.Bid-2.27) > 1e-9 {
		t.Errorf("bid = %v, want 2.27", price.Bid)
	}
	// Only the call ask survives.
	if math.Abs(price.Ask-1.24) > 1e-9 {
		t.Errorf("ask = %v, want 1.24", price.Ask)
	}
}

func TestPriceBuyLegsSubtract(t *testing.T) {
	cmb := sellStrangle()
	cmb.Legs[1].Action = gateway.ActionBuy

	pricer := testPricer(map[int64]*gateway.Quote{
		11: {Bid: 1.50, Ask: 1.60},
		21: {Bid: 0.40, Ask: 0.50},
	})

	price, err := pricer.Price(context.Background(), cmb, 0.01)
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if math.Abs(price.Bid-1.10) > 1e-9 || math.Abs(price.Ask-1.10) > 1e-9 {
		t.Errorf("price = %+v, want 1.10 both sides", price)
	}
}

func TestPriceTickRounding(t *testing.T) {
	pricer := testPricer(map[int64]*gateway.Quote{
		11: {Bid: 1.08, Ask: 1.12},
		21: {Bid: 1.17, Ask: 1.21},
	})

	price, err := pricer.Price(context.Background(), sellStrangle(), 0.1)
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if math.Abs(price.Bid-2.3) > 1e-9 || math.Abs(price.Ask-2.3) > 1e-9 {
		t.Errorf("price = %+v, want 2.3 both sides at 0.1 tick", price)
	}
}

func TestPriceMidLandsOnTick(t *testing.T) {
	// Bid and ask round one tick apart, so a raw midpoint would sit
	// between ticks and be unusable as an order price.
	pricer := testPricer(map[int64]*gateway.Quote{
		11: {Bid: 1.12, Ask: 1.18},
		21: {Bid: 1.18, Ask: 1.24},
	})

	price, err := pricer.Price(context.Background(), sellStrangle(), 0.1)
	if err != nil {
		t.Fatalf("Price() error: %v", err)
	}
	if math.Abs(price.Bid-2.3) > 1e-9 || math.Abs(price.Ask-2.4) > 1e-9 {
		t.Errorf("price = %+v, want bid 2.3 ask 2.4", price)
	}
	if math.Abs(price.Mid-2.4) > 1e-9 {
		t.Errorf("mid = %v, want 2.4 (tick-rounded), not the raw midpoint 2.36", price.Mid)
	}
	ticks := price.Mid / 0.1
	if math.Abs(ticks-math.Round(ticks)) > 1e-9 {
		t.Errorf("mid %v is not a tick multiple", price.Mid)
	}
}

func TestPriceValidation(t *testing.T) {
	pricer := testPricer(nil)

	notCombo := gateway.Instrument{ConID: 1, Symbol: "CL", SecType: gateway.SecFuture}
	if _, err := pricer.Price(context.Background(), notCombo, 0.01); err == nil {
		t.Error("expected error for non-combo instrument")
	}

	badAction := sellStrangle()
	badAction.Legs[0].Action = "HOLD"
	if _, err := pricer.Price(context.Background(), badAction, 0.01); err == nil {
		t.Error("expected error for invalid leg action")
	}

	badRatio := sellStrangle()
	badRatio.Legs[0].Ratio = 0
	if _, err := pricer.Price(context.Background(), badRatio, 0.01); err == nil {
		t.Error("expected error for zero ratio")
	}
}
