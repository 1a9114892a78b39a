package gateway

import (
	"fmt"
	"math"
	"time"
)

// SecType identifies the security type of an instrument.
type SecType string

const (
	// SecStock is a common stock or ETF.
	SecStock SecType = "STK"
	// SecFuture is a futures contract.
	SecFuture SecType = "FUT"
	// SecFutureOption is an option on a futures contract.
	SecFutureOption SecType = "FOP"
	// SecOption is an option on a stock or index.
	SecOption SecType = "OPT"
	// SecIndex is a cash index.
	SecIndex SecType = "IND"
	// SecCombo is a multi-leg combination instrument.
	SecCombo SecType = "BAG"
)

// Right identifies the option right.
type Right string

const (
	// RightPut is a put option.
	RightPut Right = "P"
	// RightCall is a call option.
	RightCall Right = "C"
)

// Valid reports whether the Right is one of the defined constants.
func (r Right) Valid() bool {
	return r == RightPut || r == RightCall
}

// Action identifies the order side.
type Action string

const (
	// ActionBuy opens or increases a long position.
	ActionBuy Action = "BUY"
	// ActionSell opens or increases a short position.
	ActionSell Action = "SELL"
)

// Valid reports whether the Action is one of the defined constants.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// Opposite returns the opposing side, used when building protective orders.
func (a Action) Opposite() Action {
	if a == ActionBuy {
		return ActionSell
	}
	return ActionBuy
}

// InstrumentSpec describes an instrument to be qualified against the venue's
// reference data. It is a closed set: Stock, Future, FutureOption, Option,
// Index. Qualification maps a spec to a concrete Instrument or fails.
type InstrumentSpec interface {
	// SecType returns the security type tag for the spec.
	SecType() SecType
	// validate checks that all required fields for the type are set.
	validate() error
}

// Stock specifies a stock or ETF underlying.
type Stock struct {
	Symbol   string
	Venue    string
	Currency string
}

// SecType implements InstrumentSpec.
func (Stock) SecType() SecType { return SecStock }

func (s Stock) validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("stock spec: symbol is required")
	}
	return nil
}

// Future specifies a futures contract.
type Future struct {
	Symbol   string
	Venue    string
	Currency string
	// ContractMonth is YYYYMM or YYYYMMDD. Empty matches every listing,
	// which is how front month resolution searches the board.
	ContractMonth string
	Multiplier    string
}

// SecType implements InstrumentSpec.
func (Future) SecType() SecType { return SecFuture }

func (f Future) validate() error {
	if f.Symbol == "" {
		return fmt.Errorf("future spec: symbol is required")
	}
	return nil
}

// FutureOption specifies an option on a futures contract.
type FutureOption struct {
	Symbol     string
	Venue      string
	Currency   string
	Expiry     string // YYYYMMDD
	Strike     float64
	Right      Right
	Multiplier string
}

// SecType implements InstrumentSpec.
func (FutureOption) SecType() SecType { return SecFutureOption }

func (f FutureOption) validate() error {
	if f.Symbol == "" {
		return fmt.Errorf("future option spec: symbol is required")
	}
	if f.Expiry == "" || f.Strike <= 0 || !f.Right.Valid() {
		return fmt.Errorf("future option spec: expiry, strike and right are required for %s", f.Symbol)
	}
	return nil
}

// Option specifies an option on a stock or index.
type Option struct {
	Symbol       string
	Venue        string
	Currency     string
	Expiry       string // YYYYMMDD
	Strike       float64
	Right        Right
	TradingClass string
}

// SecType implements InstrumentSpec.
func (Option) SecType() SecType { return SecOption }

func (o Option) validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("option spec: symbol is required")
	}
	if o.Expiry == "" || o.Strike <= 0 || !o.Right.Valid() {
		return fmt.Errorf("option spec: expiry, strike and right are required for %s", o.Symbol)
	}
	return nil
}

// Index specifies a cash index underlying.
type Index struct {
	Symbol   string
	Venue    string
	Currency string
}

// SecType implements InstrumentSpec.
func (Index) SecType() SecType { return SecIndex }

func (i Index) validate() error {
	if i.Symbol == "" {
		return fmt.Errorf("index spec: symbol is required")
	}
	return nil
}

// ComboLeg is one constituent of a combo instrument. Action and Ratio are
// fixed at construction and never mutated after the combo is priced.
type ComboLeg struct {
	ConID  int64
	Action Action
	Ratio  int
	Venue  string
}

// Instrument is a concrete, venue-qualified instrument identity.
// A zero ConID means the instrument has not been qualified (combos excepted,
// which are identified by their legs).
type Instrument struct {
	ConID        int64
	Symbol       string
	SecType      SecType
	Venue        string
	Currency     string
	Expiry       string // YYYYMMDD, empty for non-derivatives
	Strike       float64
	Right        Right
	Multiplier   string
	TradingClass string
	LocalSymbol  string
	Legs         []ComboLeg // populated for SecCombo only
}

// Qualified reports whether the venue has assigned a contract identifier.
func (i Instrument) Qualified() bool {
	return i.ConID > 0 || i.SecType == SecCombo
}

// Spec reconstructs the InstrumentSpec for requalification of a derivative
// leg. Only the types that appear as combo legs are supported.
func (i Instrument) Spec() (InstrumentSpec, error) {
	switch i.SecType {
	case SecOption:
		return Option{
			Symbol:       i.Symbol,
			Venue:        i.Venue,
			Currency:     i.Currency,
			Expiry:       i.Expiry,
			Strike:       i.Strike,
			Right:        i.Right,
			TradingClass: i.TradingClass,
		}, nil
	case SecFutureOption:
		return FutureOption{
			Symbol:     i.Symbol,
			Venue:      i.Venue,
			Currency:   i.Currency,
			Expiry:     i.Expiry,
			Strike:     i.Strike,
			Right:      i.Right,
			Multiplier: i.Multiplier,
		}, nil
	case SecStock:
		return Stock{Symbol: i.Symbol, Venue: i.Venue, Currency: i.Currency}, nil
	case SecIndex:
		return Index{Symbol: i.Symbol, Venue: i.Venue, Currency: i.Currency}, nil
	case SecFuture:
		return Future{
			Symbol:        i.Symbol,
			Venue:         i.Venue,
			Currency:      i.Currency,
			ContractMonth: i.Expiry,
			Multiplier:    i.Multiplier,
		}, nil
	default:
		return nil, fmt.Errorf("no spec form for security type %q", i.SecType)
	}
}

// NoDataPrice is the venue sentinel for "no data" on a quote field.
const NoDataPrice = -1.0

// ValidPrice reports whether a quote field carries usable data: present
// (non-NaN) and not the venue's no-data sentinel.
func ValidPrice(p float64) bool {
	return !math.IsNaN(p) && p != NoDataPrice
}

// Quote is an immutable point-in-time snapshot of an instrument's market
// data. Fields without data are NaN or the venue sentinel; use ValidPrice.
type Quote struct {
	Bid       float64
	Ask       float64
	Last      float64
	Close     float64
	Timestamp time.Time
}

// HasBidAsk reports whether both sides of the book carry valid prices.
func (q Quote) HasBidAsk() bool {
	return ValidPrice(q.Bid) && ValidPrice(q.Ask)
}

// Mid returns the bid/ask midpoint. Only meaningful when HasBidAsk is true.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Bar is one historical price bar.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// BarRequest parameterizes a historical data query.
type BarRequest struct {
	Duration         string // e.g. "1 D"
	BarSize          string // e.g. "1 day"
	Field            string // e.g. "TRADES"
	RegularHoursOnly bool
}

// ChainParams describes one option chain attached to an underlying:
// the trading class with its listed expirations and strike ladder.
type ChainParams struct {
	Venue        string
	TradingClass string
	Multiplier   string
	Expirations  []string
	Strikes      []float64
}

// HasExpiration reports whether the chain lists the given expiry.
func (c ChainParams) HasExpiration(expiry string) bool {
	for _, e := range c.Expirations {
		if e == expiry {
			return true
		}
	}
	return false
}
