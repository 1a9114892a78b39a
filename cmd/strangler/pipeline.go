package main

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/quaxel/eodstrangle/internal/calendar"
	"github.com/quaxel/eodstrangle/internal/combo"
	"github.com/quaxel/eodstrangle/internal/config"
	"github.com/quaxel/eodstrangle/internal/gateway"
	"github.com/quaxel/eodstrangle/internal/marketdata"
	"github.com/quaxel/eodstrangle/internal/options"
	"github.com/quaxel/eodstrangle/internal/orders"
	"github.com/quaxel/eodstrangle/internal/storage"
	"github.com/quaxel/eodstrangle/internal/util"
)

// Pipeline runs one end-of-day strangle entry per symbol: resolve a
// reference price, pick strikes, price the combo and stage or transmit a
// linked order pair.
type Pipeline struct {
	cfg      *config.Config
	gateway  gateway.Gateway
	resolver *marketdata.Resolver
	pricer   *combo.Pricer
	orders   *orders.Controller
	store    storage.Interface
	cal      *calendar.Calendar
	logger   *log.Logger
	now      func() time.Time
}

// NewPipeline wires the pipeline from its collaborators.
func NewPipeline(cfg *config.Config, gw gateway.Gateway, store storage.Interface,
	cal *calendar.Calendar, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Default()
	}
	policy := marketdata.RetryPolicy{
		MaxAttempts:        cfg.MarketData.RetryAttempts,
		Interval:           cfg.RetryInterval(),
		AllowCloseFallback: cfg.MarketData.AllowCloseFallback,
	}
	return &Pipeline{
		cfg:      cfg,
		gateway:  gw,
		resolver: marketdata.NewResolver(gw, logger, policy),
		pricer:   combo.NewPricer(gw, logger),
		orders:   orders.NewController(gw, logger, cfg.OrderIDTimeout()),
		store:    store,
		cal:      cal,
		logger:   logger,
		now:      time.Now,
	}
}

// RunSymbol executes one entry attempt. Schedule gates skip quietly; every
// attempt that reaches strike selection leaves a record in the attempt log.
func (p *Pipeline) RunSymbol(ctx context.Context, sym config.SymbolConfig) error {
	now := p.now()
	expiry := p.cal.NextExpiry(now, sym.MWFExpiries)

	if ok, reason := p.cal.EventGate(now, expiry); !ok {
		p.logger.Printf("Skipping %s: %s", sym.Symbol, reason)
		return nil
	}
	if sym.SecType == "FUT" && !p.cal.IsFuturesSessionOpen(now) {
		p.logger.Printf("Skipping %s: futures session closed", sym.Symbol)
		return nil
	}

	und, err := p.qualifyUnderlying(ctx, sym)
	if err != nil {
		return fmt.Errorf("%s: %w", sym.Symbol, err)
	}
	p.logger.Printf("Qualified %s underlying: conid %d, expiry %q", sym.Symbol, und.ConID, und.Expiry)

	ref, err := p.resolver.Resolve(ctx, und)
	if err != nil {
		return fmt.Errorf("%s: %w", sym.Symbol, err)
	}
	refDollar := util.RoundToDollar(ref.Price)

	putTarget := refDollar - sym.PutDistance
	callTarget := refDollar + sym.CallDistance

	putLeg, putStrike, err := p.selectLeg(ctx, sym, und, expiry, gateway.RightPut, refDollar, putTarget)
	if err != nil {
		return p.recordFailure(sym, expiry, ref, err)
	}
	callLeg, callStrike, err := p.selectLeg(ctx, sym, und, expiry, gateway.RightCall, refDollar, callTarget)
	if err != nil {
		return p.recordFailure(sym, expiry, ref, err)
	}
	p.logger.Printf("%s strikes for %s: put %.2f, call %.2f (ref %.2f)",
		sym.Symbol, expiry, putStrike, callStrike, ref.Price)

	combos, err := combo.Build(sym.Symbol, p.optionVenue(sym), sym.Currency, gateway.ActionSell,
		[]gateway.Instrument{putLeg}, []gateway.Instrument{callLeg})
	if err != nil {
		return p.recordFailure(sym, expiry, ref, err)
	}
	strangle := combos[0]

	price, err := p.pricer.Price(ctx, strangle, sym.MinTick)
	if err != nil {
		return p.recordFailure(sym, expiry, ref, err)
	}
	if !(price.Bid > 0) {
		return p.recordFailure(sym, expiry, ref,
			fmt.Errorf("combo bid %.4f is not tradable", price.Bid))
	}

	trail := util.RoundToTick(price.Mid*p.cfg.Orders.StopLossMultiplier, sym.MinTick)
	intent := orders.Intent{
		Combo:      strangle,
		Action:     gateway.ActionSell,
		Type:       gateway.OrderLimit,
		Quantity:   sym.Quantity,
		LimitPrice: price.Bid,
		Live:       p.cfg.LiveFor(sym),
		Tag:        p.cfg.Orders.StrategyTag,
	}

	pair, err := p.orders.SubmitWithTrailingStop(ctx, intent, trail)

	rec := storage.AttemptRecord{
		Tag:             intent.Tag,
		Symbol:          sym.Symbol,
		Expiry:          expiry,
		PutStrike:       putStrike,
		CallStrike:      callStrike,
		ReferencePrice:  ref.Price,
		ReferenceSource: string(ref.Source),
		ComboBid:        price.Bid,
		ComboAsk:        price.Ask,
		Quantity:        sym.Quantity,
		LimitPrice:      intent.LimitPrice,
		TrailAmount:     trail,
		Live:            intent.Live,
		CreatedAt:       now,
	}
	if pair != nil {
		rec.ID = pair.ID
		rec.State = string(pair.State)
		rec.PrimaryOrderID = pair.Primary.OrderID
		rec.DependentOrderID = pair.Dependent.OrderID
	} else {
		// Rejected before a pair existed. Still audited.
		rec.ID = "failed-" + sym.Symbol + "-" + now.Format("20060102T150405")
		rec.State = "failed"
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if storeErr := p.store.RecordAttempt(rec); storeErr != nil {
		p.logger.Printf("Failed to record attempt for %s: %v", sym.Symbol, storeErr)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", sym.Symbol, err)
	}

	p.logger.Printf("%s pair %s: %s %d x %.2f/%.2f strangle @ %.2f, trail %.2f, state %s",
		sym.Symbol, pair.ID, intent.Action, intent.Quantity, putStrike, callStrike,
		intent.LimitPrice, trail, pair.State)
	return nil
}

func (p *Pipeline) recordFailure(sym config.SymbolConfig, expiry string,
	ref *marketdata.ReferencePrice, cause error) error {
	rec := storage.AttemptRecord{
		ID:        "failed-" + sym.Symbol + "-" + p.now().Format("20060102T150405"),
		Tag:       p.cfg.Orders.StrategyTag,
		Symbol:    sym.Symbol,
		Expiry:    expiry,
		State:     "failed",
		Error:     cause.Error(),
		CreatedAt: p.now(),
	}
	if ref != nil {
		rec.ReferencePrice = ref.Price
		rec.ReferenceSource = string(ref.Source)
	}
	if err := p.store.RecordAttempt(rec); err != nil {
		p.logger.Printf("Failed to record attempt for %s: %v", sym.Symbol, err)
	}
	return fmt.Errorf("%s: %w", sym.Symbol, cause)
}

// qualifyUnderlying resolves the tradable underlying. Futures without a
// pinned contract month resolve to the front month on the board.
func (p *Pipeline) qualifyUnderlying(ctx context.Context, sym config.SymbolConfig) (gateway.Instrument, error) {
	switch sym.SecType {
	case "STK":
		return p.gateway.Qualify(ctx, gateway.Stock{
			Symbol: sym.Symbol, Venue: sym.Venue, Currency: sym.Currency,
		})
	case "IND":
		return p.gateway.Qualify(ctx, gateway.Index{
			Symbol: sym.Symbol, Venue: sym.Venue, Currency: sym.Currency,
		})
	case "FUT":
		return p.frontMonth(ctx, sym)
	default:
		return gateway.Instrument{}, fmt.Errorf("%w: unsupported sec_type %s",
			gateway.ErrQualification, sym.SecType)
	}
}

// frontMonth lists every future on the board for the symbol and picks the
// nearest listing that has not expired.
func (p *Pipeline) frontMonth(ctx context.Context, sym config.SymbolConfig) (gateway.Instrument, error) {
	matches, err := p.gateway.ContractDetails(ctx, gateway.Future{
		Symbol: sym.Symbol, Venue: sym.Venue, Currency: sym.Currency, Multiplier: sym.Multiplier,
	})
	if err != nil {
		return gateway.Instrument{}, err
	}

	today := p.now().Format("20060102")
	live := matches[:0:0]
	for _, m := range matches {
		if m.ConID == 0 || m.Expiry == "" {
			continue
		}
		// Month-only expiries compare fine lexically against YYYYMMDD.
		if m.Expiry >= today[:6] {
			live = append(live, m)
		}
	}
	if len(live) == 0 {
		return gateway.Instrument{}, fmt.Errorf("%w: no live %s future on the board",
			gateway.ErrQualification, sym.Symbol)
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Expiry < live[j].Expiry })
	return live[0], nil
}

// selectLeg qualifies the candidate strikes on one side of the reference
// price, snapshots their quotes and picks the strike closest to target.
func (p *Pipeline) selectLeg(ctx context.Context, sym config.SymbolConfig, und gateway.Instrument,
	expiry string, right gateway.Right, refDollar, target float64) (gateway.Instrument, float64, error) {
	strikes, err := p.candidateStrikes(ctx, sym, und, expiry, right, refDollar, target)
	if err != nil {
		return gateway.Instrument{}, 0, err
	}

	specs := make([]gateway.InstrumentSpec, 0, len(strikes))
	for _, strike := range strikes {
		specs = append(specs, p.legSpec(sym, und, expiry, strike, right))
	}
	legs, err := gateway.QualifyAll(ctx, p.gateway, specs)
	if err != nil {
		return gateway.Instrument{}, 0, err
	}
	if len(legs) == 0 {
		return gateway.Instrument{}, 0, fmt.Errorf("%s %s: %w", sym.Symbol, right, options.ErrNoStrike)
	}

	ladder := make([]options.LadderEntry, 0, len(legs))
	byStrike := make(map[float64]gateway.Instrument, len(legs))
	for _, leg := range legs {
		quote, err := p.gateway.Snapshot(ctx, leg, true)
		if err != nil {
			p.logger.Printf("Snapshot for %s %s %.2f failed: %v", sym.Symbol, right, leg.Strike, err)
			continue
		}
		ladder = append(ladder, options.LadderEntry{Strike: leg.Strike, Bid: quote.Bid, Ask: quote.Ask})
		byStrike[leg.Strike] = leg
	}

	strike, err := options.ClosestStrike(ladder, target)
	if err != nil {
		return gateway.Instrument{}, 0, fmt.Errorf("%s %s: %w", sym.Symbol, right, err)
	}
	return byStrike[strike], strike, nil
}

// candidateStrikes narrows the chain to the listed strikes around target on
// the out-of-the-money side of the reference price.
func (p *Pipeline) candidateStrikes(ctx context.Context, sym config.SymbolConfig, und gateway.Instrument,
	expiry string, right gateway.Right, refDollar, target float64) ([]float64, error) {
	chains, err := p.gateway.ChainParams(ctx, und)
	if err != nil {
		return nil, err
	}

	venue := p.optionVenue(sym)
	var chain *gateway.ChainParams
	for i := range chains {
		if chains[i].Venue == venue && chains[i].HasExpiration(expiry) {
			chain = &chains[i]
			break
		}
	}
	if chain == nil {
		// Fall back to any chain listing the expiry.
		for i := range chains {
			if chains[i].HasExpiration(expiry) {
				chain = &chains[i]
				break
			}
		}
	}
	if chain == nil {
		return nil, fmt.Errorf("%s: no option chain lists expiry %s", sym.Symbol, expiry)
	}

	distance := sym.PutDistance
	if right == gateway.RightCall {
		distance = sym.CallDistance
	}
	low, high := target-distance, refDollar
	if right == gateway.RightCall {
		low, high = refDollar, target+distance
	}

	var out []float64
	for _, s := range chain.Strikes {
		if s >= low && s <= high {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s %s: no listed strikes in [%.2f, %.2f]", sym.Symbol, right, low, high)
	}
	return out, nil
}

func (p *Pipeline) legSpec(sym config.SymbolConfig, und gateway.Instrument,
	expiry string, strike float64, right gateway.Right) gateway.InstrumentSpec {
	venue := p.optionVenue(sym)
	if sym.SecType == "FUT" {
		return gateway.FutureOption{
			Symbol:     sym.Symbol,
			Venue:      venue,
			Currency:   sym.Currency,
			Expiry:     expiry,
			Strike:     strike,
			Right:      right,
			Multiplier: sym.Multiplier,
		}
	}
	return gateway.Option{
		Symbol:       und.Symbol,
		Venue:        venue,
		Currency:     sym.Currency,
		Expiry:       expiry,
		Strike:       strike,
		Right:        right,
		TradingClass: sym.TradingClass,
	}
}

func (p *Pipeline) optionVenue(sym config.SymbolConfig) string {
	if sym.OptionVenue != "" {
		return sym.OptionVenue
	}
	return sym.Venue
}
