package orders

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/quaxel/eodstrangle/internal/gateway"
)

// recordingGateway captures submissions and serves scripted acks.
type recordingGateway struct {
	gateway.Gateway
	submitted   []gateway.Order
	acks        []*gateway.OrderAck
	statusAcks  []*gateway.OrderAck
	statusCalls int
}

func (r *recordingGateway) SubmitOrder(_ context.Context, _ gateway.Instrument, order gateway.Order) (*gateway.OrderAck, error) {
	r.submitted = append(r.submitted, order)
	idx := len(r.submitted) - 1
	if idx >= len(r.acks) {
		idx = len(r.acks) - 1
	}
	return r.acks[idx], nil
}

func (r *recordingGateway) OrderStatus(_ context.Context, _ int64) (*gateway.OrderAck, error) {
	idx := r.statusCalls
	r.statusCalls++
	if idx >= len(r.statusAcks) {
		idx = len(r.statusAcks) - 1
	}
	return r.statusAcks[idx], nil
}

func testCombo() gateway.Instrument {
	return gateway.Instrument{
		ConID:    11,
		Symbol:   "CL",
		SecType:  gateway.SecCombo,
		Venue:    "NYMEX",
		Currency: "USD",
		Legs: []gateway.ComboLeg{
			{ConID: 11, Action: gateway.ActionSell, Ratio: 1, Venue: "NYMEX"},
			{ConID: 21, Action: gateway.ActionSell, Ratio: 1, Venue: "NYMEX"},
		},
	}
}

func testController(gw gateway.Gateway) *Controller {
	c := NewController(gw, log.New(io.Discard, "", 0), time.Second)
	c.pollInterval = time.Millisecond
	return c
}

func sellIntent(live bool) Intent {
	return Intent{
		Combo:      testCombo(),
		Action:     gateway.ActionSell,
		Type:       gateway.OrderLimit,
		Quantity:   1,
		LimitPrice: 2.30,
		Live:       live,
		Tag:        "eod-strangle",
	}
}

func TestSubmitWithTrailingStopStaged(t *testing.T) {
	gw := &recordingGateway{acks: []*gateway.OrderAck{
		{OrderID: 100, Status: gateway.StatusPreSubmitted},
		{OrderID: 101, Status: gateway.StatusPreSubmitted},
	}}

	pair, err := testController(gw).SubmitWithTrailingStop(context.Background(), sellIntent(false), 1.10)
	if err != nil {
		t.Fatalf("SubmitWithTrailingStop() error: %v", err)
	}

	if pair.State != StateStaged {
		t.Errorf("state = %s, want staged", pair.State)
	}
	if pair.ID == "" {
		t.Error("pair must carry an attempt id")
	}
	if len(gw.submitted) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(gw.submitted))
	}

	primary := gw.submitted[0]
	if primary.Action != gateway.ActionSell || primary.Type != gateway.OrderLimit ||
		primary.Quantity != 1 || primary.LimitPrice != 2.30 {
		t.Errorf("primary = %+v", primary)
	}
	if primary.Transmit {
		t.Error("primary must never transmit on its own")
	}
	if primary.Ref != "eod-strangle" {
		t.Errorf("primary ref = %q", primary.Ref)
	}

	dependent := gw.submitted[1]
	if dependent.Action != gateway.ActionBuy || dependent.Type != gateway.OrderTrail ||
		dependent.Quantity != 1 || dependent.AuxPrice != 1.10 {
		t.Errorf("dependent = %+v", dependent)
	}
	if dependent.ParentID != 100 {
		t.Errorf("dependent parent = %d, want 100", dependent.ParentID)
	}
	if dependent.Transmit {
		t.Error("staged dependent must not transmit")
	}
	if pair.Primary.OrderID != 100 || pair.Dependent.OrderID != 101 {
		t.Errorf("pair ids = %d/%d", pair.Primary.OrderID, pair.Dependent.OrderID)
	}
}

func TestSubmitWithTrailingStopLive(t *testing.T) {
	gw := &recordingGateway{acks: []*gateway.OrderAck{
		{OrderID: 100, Status: gateway.StatusSubmitted},
		{OrderID: 101, Status: gateway.StatusSubmitted},
	}}

	pair, err := testController(gw).SubmitWithTrailingStop(context.Background(), sellIntent(true), 1.10)
	if err != nil {
		t.Fatalf("SubmitWithTrailingStop() error: %v", err)
	}
	if pair.State != StateTransmitted {
		t.Errorf("state = %s, want transmitted", pair.State)
	}
	if !gw.submitted[1].Transmit {
		t.Error("live dependent must carry the transmit flag")
	}
	if gw.submitted[0].Transmit {
		t.Error("primary must stay untransmitted even when live")
	}
}

func TestMarketPrimaryNeedsNoLimit(t *testing.T) {
	gw := &recordingGateway{acks: []*gateway.OrderAck{
		{OrderID: 300, Status: gateway.StatusSubmitted},
		{OrderID: 301, Status: gateway.StatusPreSubmitted},
	}}

	intent := sellIntent(false)
	intent.Type = gateway.OrderMarket
	intent.LimitPrice = math.NaN()

	pair, err := testController(gw).SubmitWithTrailingStop(context.Background(), intent, 1.10)
	if err != nil {
		t.Fatalf("SubmitWithTrailingStop() error: %v", err)
	}
	if pair.State != StateStaged {
		t.Errorf("state = %s, want staged", pair.State)
	}
	if gw.submitted[0].Type != gateway.OrderMarket {
		t.Errorf("primary type = %s, want MKT", gw.submitted[0].Type)
	}
	if !math.IsNaN(gw.submitted[0].LimitPrice) {
		t.Errorf("market primary must not carry a limit price, got %v", gw.submitted[0].LimitPrice)
	}
}

func TestSubmitWithConditionalStop(t *testing.T) {
	gw := &recordingGateway{acks: []*gateway.OrderAck{
		{OrderID: 200, Status: gateway.StatusPreSubmitted},
		{OrderID: 201, Status: gateway.StatusPreSubmitted},
	}}

	cond := gateway.PriceCondition{ConID: 77, Venue: "NYMEX", Above: true, Price: 66.0}
	pair, err := testController(gw).SubmitWithConditionalStop(context.Background(), sellIntent(false), 4.60, cond)
	if err != nil {
		t.Fatalf("SubmitWithConditionalStop() error: %v", err)
	}
	if pair.State != StateStaged {
		t.Errorf("state = %s, want staged", pair.State)
	}

	dependent := gw.submitted[1]
	if dependent.Type != gateway.OrderStop || dependent.AuxPrice != 4.60 {
		t.Errorf("dependent = %+v", dependent)
	}
	if dependent.Condition == nil || dependent.Condition.ConID != 77 || !dependent.Condition.Above {
		t.Errorf("condition = %+v", dependent.Condition)
	}
}

func TestInvalidParamsNoRequests(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(i *Intent)
		trail  float64
	}{
		{"nan limit", func(i *Intent) { i.LimitPrice = math.NaN() }, 1.10},
		{"sentinel limit", func(i *Intent) { i.LimitPrice = gateway.NoDataPrice }, 1.10},
		{"zero limit", func(i *Intent) { i.LimitPrice = 0 }, 1.10},
		{"zero quantity", func(i *Intent) { i.Quantity = 0 }, 1.10},
		{"bad action", func(i *Intent) { i.Action = "HOLD" }, 1.10},
		{"stop primary", func(i *Intent) { i.Type = gateway.OrderStop }, 1.10},
		{"empty type", func(i *Intent) { i.Type = "" }, 1.10},
		{"not a combo", func(i *Intent) { i.Combo.SecType = gateway.SecFuture }, 1.10},
		{"no legs", func(i *Intent) { i.Combo.Legs = nil }, 1.10},
		{"zero trail", func(i *Intent) {}, 0},
		{"negative trail", func(i *Intent) {}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &recordingGateway{acks: []*gateway.OrderAck{{OrderID: 1, Status: gateway.StatusSubmitted}}}
			intent := sellIntent(false)
			tt.mutate(&intent)

			_, err := testController(gw).SubmitWithTrailingStop(context.Background(), intent, tt.trail)
			if !errors.Is(err, ErrInvalidParams) {
				t.Fatalf("error = %v, want ErrInvalidParams", err)
			}
			if len(gw.submitted) != 0 {
				t.Errorf("validation failure must not reach the venue, saw %d submissions", len(gw.submitted))
			}
		})
	}
}

func TestConditionalStopNeedsQualifiedCondition(t *testing.T) {
	gw := &recordingGateway{acks: []*gateway.OrderAck{{OrderID: 1, Status: gateway.StatusSubmitted}}}
	_, err := testController(gw).SubmitWithConditionalStop(context.Background(), sellIntent(false),
		4.60, gateway.PriceCondition{})
	if !errors.Is(err, ErrInvalidParams) {
		t.Errorf("error = %v, want ErrInvalidParams", err)
	}
	if len(gw.submitted) != 0 {
		t.Error("no submissions expected")
	}
}

func TestMissingOrderIDIsFatal(t *testing.T) {
	gw := &recordingGateway{acks: []*gateway.OrderAck{{OrderID: 0, Status: gateway.StatusPendingSubmit}}}

	pair, err := testController(gw).SubmitWithTrailingStop(context.Background(), sellIntent(false), 1.10)
	if !errors.Is(err, ErrOrderIDTimeout) {
		t.Fatalf("error = %v, want ErrOrderIDTimeout", err)
	}
	if pair.State != StateBuilt {
		t.Errorf("state = %s, want built", pair.State)
	}
	if len(gw.submitted) != 1 {
		t.Errorf("dependent must not be submitted after primary failure, saw %d", len(gw.submitted))
	}
}

func TestRejectedPrimary(t *testing.T) {
	gw := &recordingGateway{acks: []*gateway.OrderAck{{OrderID: 100, Status: gateway.StatusRejected}}}

	pair, err := testController(gw).SubmitWithTrailingStop(context.Background(), sellIntent(false), 1.10)
	if !errors.Is(err, ErrSubmissionRejected) {
		t.Fatalf("error = %v, want ErrSubmissionRejected", err)
	}
	if pair.State != StateBuilt {
		t.Errorf("state = %s, want built", pair.State)
	}
}

func TestRejectedDependentLeavesPrimarySubmitted(t *testing.T) {
	gw := &recordingGateway{acks: []*gateway.OrderAck{
		{OrderID: 100, Status: gateway.StatusSubmitted},
		{OrderID: 101, Status: gateway.StatusRejected},
	}}

	pair, err := testController(gw).SubmitWithTrailingStop(context.Background(), sellIntent(false), 1.10)
	if !errors.Is(err, ErrSubmissionRejected) {
		t.Fatalf("error = %v, want ErrSubmissionRejected", err)
	}
	if pair.State != StatePrimarySubmitted {
		t.Errorf("state = %s, want primary_submitted", pair.State)
	}
	if pair.Primary.OrderID != 100 {
		t.Errorf("primary ticket lost: %+v", pair.Primary)
	}
}

func TestConfirmPollsUntilAccepted(t *testing.T) {
	gw := &recordingGateway{
		acks: []*gateway.OrderAck{
			{OrderID: 100, Status: gateway.StatusUnknown},
			{OrderID: 101, Status: gateway.StatusSubmitted},
		},
		statusAcks: []*gateway.OrderAck{
			{OrderID: 100, Status: gateway.StatusUnknown},
			{OrderID: 100, Status: gateway.StatusSubmitted},
		},
	}

	pair, err := testController(gw).SubmitWithTrailingStop(context.Background(), sellIntent(false), 1.10)
	if err != nil {
		t.Fatalf("SubmitWithTrailingStop() error: %v", err)
	}
	if pair.State != StateStaged {
		t.Errorf("state = %s, want staged", pair.State)
	}
	if gw.statusCalls < 2 {
		t.Errorf("expected status polling, got %d calls", gw.statusCalls)
	}
}

func TestConfirmTimesOut(t *testing.T) {
	gw := &recordingGateway{
		acks:       []*gateway.OrderAck{{OrderID: 100, Status: gateway.StatusUnknown}},
		statusAcks: []*gateway.OrderAck{{OrderID: 100, Status: gateway.StatusUnknown}},
	}
	c := NewController(gw, log.New(io.Discard, "", 0), 10*time.Millisecond)
	c.pollInterval = time.Millisecond

	_, err := c.SubmitWithTrailingStop(context.Background(), sellIntent(false), 1.10)
	if !errors.Is(err, ErrOrderIDTimeout) {
		t.Errorf("error = %v, want ErrOrderIDTimeout", err)
	}
}
