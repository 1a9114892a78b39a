package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// defaultSettleDelay is how long the client waits between priming a market
// data subscription and reading the snapshot. The bridge populates snapshot
// fields asynchronously; reading immediately observes empty quotes, so this
// wait is a correctness requirement, not a tuning knob.
const defaultSettleDelay = 1 * time.Second

// APIError represents a gateway bridge error with status code and body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Status, e.Body)
}

// Client is an HTTP client for the local gateway bridge. It implements
// Gateway. The client holds no process-wide state: it is an explicit session
// handle created by the driver and injected into every collaborator.
type Client struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	settleDelay time.Duration
	timeout     time.Duration
}

// Compile-time interface check.
var _ Gateway = (*Client)(nil)

// NewClient creates a gateway client with default settings.
func NewClient(baseURL, apiKey string) *Client {
	return NewClientWithHTTP(baseURL, apiKey, nil)
}

// NewClientWithHTTP creates a gateway client with a custom HTTP client
// (tests, custom transport).
func NewClientWithHTTP(baseURL, apiKey string, httpClient *http.Client) *Client {
	const defaultTimeout = 10 * time.Second

	if baseURL == "" {
		baseURL = "https://localhost:5000/v1/api"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		client:      httpClient,
		baseURL:     baseURL,
		apiKey:      apiKey,
		settleDelay: defaultSettleDelay,
		timeout:     defaultTimeout,
	}
}

// WithSettleDelay sets the wait between priming a snapshot subscription and
// reading it. Tests inject zero to avoid real sleeps.
func (c *Client) WithSettleDelay(d time.Duration) *Client {
	if d >= 0 {
		c.settleDelay = d
	}
	return c
}

// WithTimeout sets the HTTP client timeout duration.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	if c.client != nil {
		c.client.Timeout = timeout
	}
	return c
}

// ============ Bridge response structures ============

// Handle single-object vs array responses from the bridge.
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// snapshotResponse carries one market data snapshot. Fields the bridge has
// no data for are omitted, mapped to NaN on our side.
type snapshotResponse struct {
	ConID     int64    `json:"conid"`
	Bid       *float64 `json:"bid,omitempty"`
	Ask       *float64 `json:"ask,omitempty"`
	Last      *float64 `json:"last,omitempty"`
	Close     *float64 `json:"close,omitempty"`
	UpdatedAt int64    `json:"updated_at"` // unix milliseconds
}

func priceOrNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

type historyResponse struct {
	Bars []struct {
		Time   int64   `json:"t"` // unix milliseconds
		Open   float64 `json:"o"`
		High   float64 `json:"h"`
		Low    float64 `json:"l"`
		Close  float64 `json:"c"`
		Volume int64   `json:"v"`
	} `json:"bars"`
}

type contractJSON struct {
	ConID        int64   `json:"conid"`
	Symbol       string  `json:"symbol"`
	SecType      string  `json:"sec_type"`
	Venue        string  `json:"exchange"`
	Currency     string  `json:"currency"`
	Expiry       string  `json:"expiry,omitempty"`
	Strike       float64 `json:"strike,omitempty"`
	Right        string  `json:"right,omitempty"`
	Multiplier   string  `json:"multiplier,omitempty"`
	TradingClass string  `json:"trading_class,omitempty"`
	LocalSymbol  string  `json:"local_symbol,omitempty"`
}

func (c contractJSON) toInstrument() Instrument {
	return Instrument{
		ConID:        c.ConID,
		Symbol:       c.Symbol,
		SecType:      SecType(c.SecType),
		Venue:        c.Venue,
		Currency:     c.Currency,
		Expiry:       c.Expiry,
		Strike:       c.Strike,
		Right:        Right(c.Right),
		Multiplier:   c.Multiplier,
		TradingClass: c.TradingClass,
		LocalSymbol:  c.LocalSymbol,
	}
}

type secdefResponse struct {
	Contracts singleOrArray[contractJSON] `json:"contracts"`
}

type chainParamsResponse struct {
	Chains []struct {
		Venue        string    `json:"exchange"`
		TradingClass string    `json:"trading_class"`
		Multiplier   string    `json:"multiplier"`
		Expirations  []string  `json:"expirations"`
		Strikes      []float64 `json:"strikes"`
	} `json:"chains"`
}

type orderAckResponse struct {
	Order struct {
		ID           int64   `json:"id"`
		Status       string  `json:"status"`
		Filled       float64 `json:"filled"`
		Remaining    float64 `json:"remaining"`
		AvgFillPrice float64 `json:"avg_fill_price"`
	} `json:"order"`
}

func (r orderAckResponse) toAck() *OrderAck {
	status := OrderStatus(r.Order.Status)
	switch status {
	case StatusPendingSubmit, StatusPreSubmitted, StatusSubmitted, StatusFilled,
		StatusCancelled, StatusRejected, StatusExpired:
	default:
		status = StatusUnknown
	}
	return &OrderAck{
		OrderID:      r.Order.ID,
		Status:       status,
		Filled:       r.Order.Filled,
		Remaining:    r.Order.Remaining,
		AvgFillPrice: r.Order.AvgFillPrice,
	}
}

// ============ Gateway implementation ============

// Snapshot primes a market data subscription for the instrument, waits the
// settle delay, then reads the populated snapshot. Two round trips per call;
// nothing is cached between calls.
func (c *Client) Snapshot(ctx context.Context, inst Instrument, refresh bool) (*Quote, error) {
	if !inst.Qualified() {
		return nil, fmt.Errorf("snapshot: instrument %s is not qualified", inst.Symbol)
	}

	params := url.Values{}
	params.Set("conid", fmt.Sprintf("%d", inst.ConID))
	params.Set("refresh", fmt.Sprintf("%t", refresh))
	endpoint := c.baseURL + "/md/snapshot?" + params.Encode()

	// Priming read: registers the subscription on the bridge side.
	var primed snapshotResponse
	if err := c.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &primed); err != nil {
		return nil, err
	}

	if c.settleDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.settleDelay):
		}
	}

	var response snapshotResponse
	if err := c.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	ts := time.Now()
	if response.UpdatedAt > 0 {
		ts = time.UnixMilli(response.UpdatedAt)
	}
	return &Quote{
		Bid:       priceOrNaN(response.Bid),
		Ask:       priceOrNaN(response.Ask),
		Last:      priceOrNaN(response.Last),
		Close:     priceOrNaN(response.Close),
		Timestamp: ts,
	}, nil
}

// HistoricalBars retrieves historical bars for the instrument, oldest first.
func (c *Client) HistoricalBars(ctx context.Context, inst Instrument, req BarRequest) ([]Bar, error) {
	if !inst.Qualified() {
		return nil, fmt.Errorf("history: instrument %s is not qualified", inst.Symbol)
	}

	params := url.Values{}
	params.Set("conid", fmt.Sprintf("%d", inst.ConID))
	params.Set("duration", req.Duration)
	params.Set("bar_size", req.BarSize)
	params.Set("field", req.Field)
	params.Set("rth", fmt.Sprintf("%t", req.RegularHoursOnly))
	endpoint := c.baseURL + "/hmds/history?" + params.Encode()

	var response historyResponse
	if err := c.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, fmt.Errorf("historical bars for %s: %w", inst.Symbol, err)
	}

	bars := make([]Bar, len(response.Bars))
	for i, b := range response.Bars {
		bars[i] = Bar{
			Time:   time.UnixMilli(b.Time),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
	}
	return bars, nil
}

// ContractDetails enumerates concrete instruments matching a spec.
func (c *Client) ContractDetails(ctx context.Context, spec InstrumentSpec) ([]Instrument, error) {
	params, err := specParams(spec)
	if err != nil {
		return nil, err
	}
	endpoint := c.baseURL + "/secdef/search"

	var response secdefResponse
	if err := c.makeRequestCtx(ctx, http.MethodPost, endpoint, params, &response); err != nil {
		return nil, err
	}

	instruments := make([]Instrument, 0, len(response.Contracts))
	for _, contract := range response.Contracts {
		instruments = append(instruments, contract.toInstrument())
	}
	return instruments, nil
}

// ChainParams retrieves option chain parameters for a qualified underlying.
func (c *Client) ChainParams(ctx context.Context, und Instrument) ([]ChainParams, error) {
	if !und.Qualified() {
		return nil, fmt.Errorf("chain params: underlying %s is not qualified", und.Symbol)
	}

	params := url.Values{}
	params.Set("conid", fmt.Sprintf("%d", und.ConID))
	params.Set("sec_type", string(und.SecType))
	endpoint := c.baseURL + "/secdef/params?" + params.Encode()

	var response chainParamsResponse
	if err := c.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, fmt.Errorf("chain params for %s: %w", und.Symbol, err)
	}

	chains := make([]ChainParams, len(response.Chains))
	for i, ch := range response.Chains {
		chains[i] = ChainParams{
			Venue:        ch.Venue,
			TradingClass: ch.TradingClass,
			Multiplier:   ch.Multiplier,
			Expirations:  ch.Expirations,
			Strikes:      ch.Strikes,
		}
	}
	return chains, nil
}

// Qualify resolves a spec to exactly one venue-native instrument identity.
func (c *Client) Qualify(ctx context.Context, spec InstrumentSpec) (Instrument, error) {
	matches, err := c.ContractDetails(ctx, spec)
	if err != nil {
		return Instrument{}, err
	}
	if len(matches) == 0 {
		return Instrument{}, fmt.Errorf("%w: no match for %s spec", ErrQualification, spec.SecType())
	}
	inst := matches[0]
	if inst.ConID == 0 {
		return Instrument{}, fmt.Errorf("%w: venue returned no contract id for %s", ErrQualification, inst.Symbol)
	}
	return inst, nil
}

// SubmitOrder routes an order and returns the assigned identifier with the
// live status.
func (c *Client) SubmitOrder(ctx context.Context, inst Instrument, order Order) (*OrderAck, error) {
	params, err := orderParams(inst, order)
	if err != nil {
		return nil, err
	}
	endpoint := c.baseURL + "/orders"

	var response orderAckResponse
	if err := c.makeRequestCtx(ctx, http.MethodPost, endpoint, params, &response); err != nil {
		return nil, err
	}
	return response.toAck(), nil
}

// OrderStatus returns the current state of a previously submitted order.
func (c *Client) OrderStatus(ctx context.Context, orderID int64) (*OrderAck, error) {
	endpoint := fmt.Sprintf("%s/orders/%d", c.baseURL, orderID)

	var response orderAckResponse
	if err := c.makeRequestCtx(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return response.toAck(), nil
}

// specParams maps an InstrumentSpec to bridge search parameters. One case per
// spec type; unsupported field combinations fail here, before any I/O.
func specParams(spec InstrumentSpec) (url.Values, error) {
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQualification, err)
	}

	params := url.Values{}
	params.Set("sec_type", string(spec.SecType()))

	switch s := spec.(type) {
	case Stock:
		params.Set("symbol", s.Symbol)
		setIfPresent(params, "exchange", s.Venue)
		setIfPresent(params, "currency", s.Currency)
	case Index:
		params.Set("symbol", s.Symbol)
		setIfPresent(params, "exchange", s.Venue)
		setIfPresent(params, "currency", s.Currency)
	case Future:
		params.Set("symbol", s.Symbol)
		setIfPresent(params, "expiry", s.ContractMonth)
		setIfPresent(params, "exchange", s.Venue)
		setIfPresent(params, "currency", s.Currency)
		setIfPresent(params, "multiplier", s.Multiplier)
	case FutureOption:
		params.Set("symbol", s.Symbol)
		params.Set("expiry", s.Expiry)
		params.Set("strike", fmt.Sprintf("%g", s.Strike))
		params.Set("right", string(s.Right))
		setIfPresent(params, "exchange", s.Venue)
		setIfPresent(params, "currency", s.Currency)
		setIfPresent(params, "multiplier", s.Multiplier)
	case Option:
		params.Set("symbol", s.Symbol)
		params.Set("expiry", s.Expiry)
		params.Set("strike", fmt.Sprintf("%g", s.Strike))
		params.Set("right", string(s.Right))
		setIfPresent(params, "exchange", s.Venue)
		setIfPresent(params, "currency", s.Currency)
		setIfPresent(params, "trading_class", s.TradingClass)
	default:
		return nil, fmt.Errorf("%w: unsupported spec type %T", ErrQualification, spec)
	}
	return params, nil
}

// orderParams encodes an order for the bridge order endpoint.
func orderParams(inst Instrument, order Order) (url.Values, error) {
	if !inst.Qualified() {
		return nil, fmt.Errorf("submit: instrument %s is not qualified", inst.Symbol)
	}

	params := url.Values{}
	if inst.SecType == SecCombo {
		if len(inst.Legs) == 0 {
			return nil, fmt.Errorf("submit: combo for %s has no legs", inst.Symbol)
		}
		params.Set("sec_type", string(SecCombo))
		params.Set("symbol", inst.Symbol)
		params.Set("currency", inst.Currency)
		params.Set("exchange", inst.Venue)
		for i, leg := range inst.Legs {
			params.Set(fmt.Sprintf("leg_conid[%d]", i), fmt.Sprintf("%d", leg.ConID))
			params.Set(fmt.Sprintf("leg_action[%d]", i), string(leg.Action))
			params.Set(fmt.Sprintf("leg_ratio[%d]", i), fmt.Sprintf("%d", leg.Ratio))
			params.Set(fmt.Sprintf("leg_exchange[%d]", i), leg.Venue)
		}
	} else {
		params.Set("conid", fmt.Sprintf("%d", inst.ConID))
	}

	params.Set("action", string(order.Action))
	params.Set("type", string(order.Type))
	params.Set("quantity", fmt.Sprintf("%d", order.Quantity))
	params.Set("transmit", fmt.Sprintf("%t", order.Transmit))
	if order.TIF != "" {
		params.Set("tif", order.TIF)
	}
	if !math.IsNaN(order.LimitPrice) {
		params.Set("limit_price", fmt.Sprintf("%g", order.LimitPrice))
	}
	if !math.IsNaN(order.AuxPrice) {
		params.Set("aux_price", fmt.Sprintf("%g", order.AuxPrice))
	}
	if order.ParentID > 0 {
		params.Set("parent_id", fmt.Sprintf("%d", order.ParentID))
	}
	if order.Ref != "" {
		params.Set("ref", order.Ref)
	}
	if cond := order.Condition; cond != nil {
		params.Set("condition_conid", fmt.Sprintf("%d", cond.ConID))
		params.Set("condition_exchange", cond.Venue)
		params.Set("condition_above", fmt.Sprintf("%t", cond.Above))
		params.Set("condition_price", fmt.Sprintf("%g", cond.Price))
	}
	return params, nil
}

func setIfPresent(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

// makeRequestCtx makes an HTTP request with context support.
func (c *Client) makeRequestCtx(ctx context.Context, method, endpoint string,
	params url.Values, response interface{}) error {
	var req *http.Request
	var err error

	if method == http.MethodPost && params != nil {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err != nil {
			return err
		}
		req.Header.Add("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
		if err != nil {
			return err
		}
	}

	if c.apiKey != "" {
		req.Header.Add("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "eodstrangle/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if response == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}
