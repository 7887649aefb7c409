package enginemux

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/enginemux/enginemux-go/contracts"
	"github.com/enginemux/enginemux-go/correlation"
	"github.com/enginemux/enginemux-go/internal/metrics"
	"github.com/enginemux/enginemux-go/messaging"
	"github.com/enginemux/enginemux-go/serialization"
)

// Client is the main entry point for enginemux-go. It owns the correlation
// registry shared by the send and receive paths and wires the dispatcher and
// classifier onto one engine transport.
//
// Any number of goroutines may call Execute concurrently; exactly one
// goroutine must drive Receive in a loop for responses and updates to flow.
type Client struct {
	transport  messaging.EngineTransport
	registry   *correlation.Registry
	dispatcher *messaging.RequestDispatcher
	classifier *messaging.InboundClassifier
	types      *serialization.UpdateTypeRegistry
	metrics    *metrics.BridgeMetrics
	logger     *slog.Logger
}

// clientConfig holds client configuration
type clientConfig struct {
	logger         *slog.Logger
	receiveTimeout time.Duration
	registerer     prometheus.Registerer
	enableMetrics  bool
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithDefaultLogger uses the default logger
func WithDefaultLogger() ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = slog.Default()
	}
}

// WithReceiveTimeout sets the bounded wait used for each engine receive call
func WithReceiveTimeout(timeout time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.receiveTimeout = timeout
	}
}

// WithMetrics enables Prometheus metrics, registered against registerer.
// A nil registerer uses the default one.
func WithMetrics(registerer prometheus.Registerer) ClientOption {
	return func(cfg *clientConfig) {
		cfg.enableMetrics = true
		cfg.registerer = registerer
	}
}

// NewClient creates a new enginemux client on top of an engine transport.
func NewClient(transport messaging.EngineTransport, options ...ClientOption) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}

	cfg := &clientConfig{
		logger:         slog.Default(),
		receiveTimeout: messaging.DefaultReceiveTimeout,
	}

	for _, opt := range options {
		opt(cfg)
	}

	var bridgeMetrics *metrics.BridgeMetrics
	if cfg.enableMetrics {
		bridgeMetrics = metrics.NewBridgeMetrics(cfg.registerer)
		if err := bridgeMetrics.Register(); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	registry := correlation.NewRegistry(
		correlation.WithRegistryLogger(cfg.logger),
	)

	dispatcher, err := messaging.NewRequestDispatcher(
		transport,
		registry,
		messaging.WithDispatcherLogger(cfg.logger),
		messaging.WithDispatcherMetrics(bridgeMetrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	types := serialization.NewUpdateTypeRegistry()

	classifier, err := messaging.NewInboundClassifier(
		transport,
		registry,
		types,
		messaging.WithClassifierLogger(cfg.logger),
		messaging.WithClassifierMetrics(bridgeMetrics),
		messaging.WithReceiveTimeout(cfg.receiveTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}

	return &Client{
		transport:  transport,
		registry:   registry,
		dispatcher: dispatcher,
		classifier: classifier,
		types:      types,
		metrics:    bridgeMetrics,
		logger:     cfg.logger,
	}, nil
}

// CreateClient mints a new engine session handle. A session starts receiving
// updates once at least one request has been sent on it.
func (c *Client) CreateClient() (contracts.ClientID, error) {
	return c.transport.CreateClient()
}

// RegisterUpdate registers an update type so Receive can decode its
// documents. Unregistered update documents are dropped with a warning.
func (c *Client) RegisterUpdate(prototype contracts.Update) error {
	return c.types.Register(prototype)
}

// Execute performs one logical request against a session and returns its
// correlated response document, transparently absorbing engine rate limiting.
func (c *Client) Execute(ctx context.Context, clientID contracts.ClientID, request map[string]interface{}) (*contracts.Envelope, error) {
	return c.dispatcher.Execute(ctx, clientID, request)
}

// Receive pulls and classifies the next engine document. See
// messaging.InboundClassifier.Receive for the contract; only one goroutine
// may drive it.
func (c *Client) Receive() (contracts.Update, contracts.ClientID, error) {
	return c.classifier.Receive()
}

// Dispatcher returns the request dispatcher
func (c *Client) Dispatcher() *messaging.RequestDispatcher {
	return c.dispatcher
}

// Classifier returns the inbound classifier
func (c *Client) Classifier() *messaging.InboundClassifier {
	return c.classifier
}

// Registry returns the correlation registry shared by both paths
func (c *Client) Registry() *correlation.Registry {
	return c.registry
}

// Types returns the update type registry
func (c *Client) Types() *serialization.UpdateTypeRegistry {
	return c.types
}

// Close aborts every in-flight request. The engine transport itself is left
// open; its lifetime belongs to whoever created it.
func (c *Client) Close() error {
	c.registry.Close()
	return nil
}
