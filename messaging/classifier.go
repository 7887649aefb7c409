package messaging

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/enginemux/enginemux-go/contracts"
	"github.com/enginemux/enginemux-go/correlation"
	"github.com/enginemux/enginemux-go/internal/metrics"
	"github.com/enginemux/enginemux-go/serialization"
)

// DefaultReceiveTimeout bounds one Receive call against the engine so the
// driving loop stays responsive.
const DefaultReceiveTimeout = 2 * time.Second

// InboundClassifier routes engine documents to their destination: correlated
// responses go to the registry, everything else is decoded into a typed
// update for the driving loop. It holds no per-message state, so a decode
// failure on one document never affects the next.
type InboundClassifier struct {
	transport      EngineTransport
	registry       *correlation.Registry
	types          *serialization.UpdateTypeRegistry
	logger         *slog.Logger
	metrics        *metrics.BridgeMetrics
	receiveTimeout time.Duration
}

// ClassifierOption configures the InboundClassifier.
type ClassifierOption func(*InboundClassifier)

// WithClassifierLogger sets the logger.
func WithClassifierLogger(logger *slog.Logger) ClassifierOption {
	return func(c *InboundClassifier) {
		c.logger = logger
	}
}

// WithClassifierMetrics sets the metrics collector.
func WithClassifierMetrics(m *metrics.BridgeMetrics) ClassifierOption {
	return func(c *InboundClassifier) {
		c.metrics = m
	}
}

// WithReceiveTimeout sets the bounded wait for one Receive call.
func WithReceiveTimeout(timeout time.Duration) ClassifierOption {
	return func(c *InboundClassifier) {
		c.receiveTimeout = timeout
	}
}

// NewInboundClassifier creates a classifier pulling from transport, fulfilling
// waiters in registry, and decoding updates through types.
func NewInboundClassifier(transport EngineTransport, registry *correlation.Registry, types *serialization.UpdateTypeRegistry, options ...ClassifierOption) (*InboundClassifier, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if types == nil {
		return nil, fmt.Errorf("update type registry cannot be nil")
	}

	c := &InboundClassifier{
		transport:      transport,
		registry:       registry,
		types:          types,
		logger:         slog.Default(),
		receiveTimeout: DefaultReceiveTimeout,
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// Receive pulls the next document from the engine and classifies it.
//
// It returns (nil, 0, nil) when nothing arrived within the bounded wait and
// when the document was consumed internally: a correlated response handed to
// the registry, or an update body that failed to decode and was dropped with
// a warning. A non-nil error means the transport contract was violated (the
// document was not structured data, or an uncorrelated document carried no
// session id); the embedding loop chooses whether that is fatal.
//
// Exactly one goroutine may be inside Receive at a time.
func (c *InboundClassifier) Receive() (contracts.Update, contracts.ClientID, error) {
	raw, err := c.transport.Receive(c.receiveTimeout)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to receive from engine: %w", err)
	}
	if raw == nil {
		return nil, 0, nil
	}

	env, err := serialization.DecodeEnvelope(raw)
	if err != nil {
		c.metrics.RecordDropped(metrics.DropReasonMalformed)
		return nil, 0, err
	}

	if _, ok := env.CorrelationID(); ok {
		if !c.registry.Notify(env) {
			c.metrics.RecordDropped(metrics.DropReasonUnmatched)
		}
		return nil, 0, nil
	}

	clientID, ok := env.ClientID()
	if !ok {
		c.metrics.RecordDropped(metrics.DropReasonMissingClientID)
		return nil, 0, fmt.Errorf("%w: %s", contracts.ErrMissingClientID, raw)
	}

	update, err := c.types.Decode(env)
	if err != nil {
		c.logger.Warn("dropping undecodable engine update",
			"payload", string(raw),
			"error", err,
		)
		c.metrics.RecordDropped(metrics.DropReasonUnknownUpdate)
		return nil, 0, nil
	}

	c.metrics.RecordUpdate(update.UpdateType())
	return update, clientID, nil
}
