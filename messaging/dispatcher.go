package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/enginemux/enginemux-go/contracts"
	"github.com/enginemux/enginemux-go/correlation"
	"github.com/enginemux/enginemux-go/internal/metrics"
	"github.com/enginemux/enginemux-go/internal/reliability"
	"github.com/enginemux/enginemux-go/serialization"
)

// RequestDispatcher performs logical requests against engine sessions.
// It owns correlation-id allocation; ids are monotonically increasing and
// unique for the life of the process, including across retried attempts.
type RequestDispatcher struct {
	transport EngineTransport
	registry  *correlation.Registry
	logger    *slog.Logger
	metrics   *metrics.BridgeMetrics

	extra atomic.Uint64
}

// DispatcherOption configures the RequestDispatcher.
type DispatcherOption func(*RequestDispatcher)

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *RequestDispatcher) {
		d.logger = logger
	}
}

// WithDispatcherMetrics sets the metrics collector.
func WithDispatcherMetrics(m *metrics.BridgeMetrics) DispatcherOption {
	return func(d *RequestDispatcher) {
		d.metrics = m
	}
}

// NewRequestDispatcher creates a dispatcher sending through transport and
// awaiting fulfillment through registry.
func NewRequestDispatcher(transport EngineTransport, registry *correlation.Registry, options ...DispatcherOption) (*RequestDispatcher, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}

	d := &RequestDispatcher{
		transport: transport,
		registry:  registry,
		logger:    slog.Default(),
	}

	for _, opt := range options {
		opt(d)
	}

	return d, nil
}

// Execute sends request to the given session and returns its correlated
// response. The request's correlation tag is overwritten on every attempt;
// all other fields pass through untouched, and the response document is
// returned exactly as the engine produced it, including error responses.
//
// Rate limiting is absorbed: a 429 response carrying a "retry after N"
// interval re-issues the same request under a fresh correlation id after
// waiting out the mandated pause. The caller only observes the added latency.
func (d *RequestDispatcher) Execute(ctx context.Context, clientID contracts.ClientID, request map[string]interface{}) (*contracts.Envelope, error) {
	if request == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}

	for {
		env, err := d.attempt(ctx, clientID, request)
		if err != nil {
			return nil, err
		}

		delay, limited := reliability.RetryAfter(env)
		if !limited {
			return env, nil
		}

		d.logger.Info("engine rate limited request, backing off",
			"clientId", clientID,
			"delay", delay,
		)
		d.metrics.RecordRateLimitRetry()

		if err := reliability.Wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// attempt performs one tagged send-and-await cycle.
func (d *RequestDispatcher) attempt(ctx context.Context, clientID contracts.ClientID, request map[string]interface{}) (*contracts.Envelope, error) {
	id := d.extra.Add(1)
	request[contracts.FieldExtra] = id

	payload, err := serialization.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize request: %w", err)
	}

	// Subscribe before sending so a response cannot arrive ahead of the
	// waiter registration.
	waiter := d.registry.Subscribe(id)
	defer d.registry.Discard(id)

	d.metrics.RecordRequest()

	if err := d.transport.Send(clientID, payload); err != nil {
		d.metrics.RecordRequestDone()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	env, err := waiter.Wait(ctx)
	if err != nil {
		d.metrics.RecordRequestDone()
		if errors.Is(err, correlation.ErrWaiterClosed) {
			// The receive loop disappeared underneath an in-flight call.
			// Nothing can fulfill this request anymore.
			d.logger.Error("waiter closed without a response",
				"clientId", clientID,
				"correlationId", id,
			)
			return nil, fmt.Errorf("request %d: %w", id, err)
		}
		return nil, err
	}

	d.metrics.RecordResponse()
	return env, nil
}
