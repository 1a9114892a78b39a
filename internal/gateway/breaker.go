package gateway

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerGateway wraps a Gateway with circuit breaker functionality
type CircuitBreakerGateway struct {
	gateway Gateway
	breaker *gobreaker.CircuitBreaker
}

var _ Gateway = (*CircuitBreakerGateway)(nil)

// exec is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	gateway Gateway,
	fn func(Gateway) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(gateway) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerGateway creates a new CircuitBreakerGateway with sensible defaults
func NewCircuitBreakerGateway(gw Gateway) *CircuitBreakerGateway {
	return NewCircuitBreakerGatewayWithSettings(gw, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerGatewayWithSettings creates a CircuitBreakerGateway with custom settings
func NewCircuitBreakerGatewayWithSettings(gw Gateway, settings CircuitBreakerSettings) *CircuitBreakerGateway {
	gbSettings := gobreaker.Settings{
		Name:        "GatewayCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerGateway{
		gateway: gw,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Snapshot wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) Snapshot(ctx context.Context, inst Instrument, refresh bool) (*Quote, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (*Quote, error) {
		return g.Snapshot(ctx, inst, refresh)
	})
}

// HistoricalBars wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) HistoricalBars(ctx context.Context, inst Instrument, req BarRequest) ([]Bar, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) ([]Bar, error) {
		return g.HistoricalBars(ctx, inst, req)
	})
}

// ContractDetails wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) ContractDetails(ctx context.Context, spec InstrumentSpec) ([]Instrument, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) ([]Instrument, error) {
		return g.ContractDetails(ctx, spec)
	})
}

// ChainParams wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) ChainParams(ctx context.Context, und Instrument) ([]ChainParams, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) ([]ChainParams, error) {
		return g.ChainParams(ctx, und)
	})
}

// Qualify wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) Qualify(ctx context.Context, spec InstrumentSpec) (Instrument, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (Instrument, error) {
		return g.Qualify(ctx, spec)
	})
}

// SubmitOrder wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) SubmitOrder(ctx context.Context, inst Instrument, order Order) (*OrderAck, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (*OrderAck, error) {
		return g.SubmitOrder(ctx, inst, order)
	})
}

// OrderStatus wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerGateway) OrderStatus(ctx context.Context, orderID int64) (*OrderAck, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g Gateway) (*OrderAck, error) {
		return g.OrderStatus(ctx, orderID)
	})
}
