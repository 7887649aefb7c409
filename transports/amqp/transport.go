// Package amqp provides a RabbitMQ-backed messaging.EngineTransport for
// running the bridge against an engine hosted in another process. Requests
// are published to a topic exchange under a per-session routing key; every
// document the engine emits lands in one private inbox queue, preserving the
// single interleaved delivery stream the classifier expects.
package amqp

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/enginemux/enginemux-go/contracts"
	"github.com/enginemux/enginemux-go/messaging"
)

var _ messaging.EngineTransport = (*Transport)(nil)

const (
	requestExchange = "enginemux.requests"
	eventExchange   = "enginemux.events"
)

// Transport implements messaging.EngineTransport over RabbitMQ.
type Transport struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	inboxQueue string
	deliveries <-chan amqp.Delivery
	nextClient atomic.Int32

	mu     sync.Mutex
	closed bool
}

// TransportConfig holds configuration for the transport.
type TransportConfig struct {
	InboxQueue string
}

// TransportOption configures the transport.
type TransportOption func(*TransportConfig)

// WithInboxQueue sets a fixed inbox queue name instead of the generated one.
func WithInboxQueue(name string) TransportOption {
	return func(cfg *TransportConfig) {
		cfg.InboxQueue = name
	}
}

// NewTransport connects to the broker and declares the request and event
// exchanges plus this process's private inbox queue.
func NewTransport(connectionString string, options ...TransportOption) (*Transport, error) {
	cfg := &TransportConfig{
		InboxQueue: fmt.Sprintf("enginemux.inbox.%s", uuid.New().String()[:8]),
	}

	for _, opt := range options {
		opt(cfg)
	}

	conn, err := amqp.Dial(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	t := &Transport{
		conn:       conn,
		channel:    channel,
		inboxQueue: cfg.InboxQueue,
	}

	if err := t.declareTopology(); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	deliveries, err := channel.Consume(
		t.inboxQueue,
		"",    // consumer tag
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to consume inbox: %w", err)
	}
	t.deliveries = deliveries

	return t, nil
}

func (t *Transport) declareTopology() error {
	exchanges := []string{requestExchange, eventExchange}
	for _, name := range exchanges {
		err := t.channel.ExchangeDeclare(
			name,
			"topic",
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}

	_, err := t.channel.QueueDeclare(
		t.inboxQueue,
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to declare inbox queue %s: %w", t.inboxQueue, err)
	}

	// One binding catches every document the engine addresses to this
	// process, responses and updates alike.
	err = t.channel.QueueBind(t.inboxQueue, t.inboxQueue+".#", eventExchange, false, nil)
	if err != nil {
		return fmt.Errorf("failed to bind inbox queue: %w", err)
	}

	return nil
}

// CreateClient implements messaging.EngineTransport. Session ids are minted
// locally; the engine side treats the routing key of the first request as
// session creation.
func (t *Transport) CreateClient() (contracts.ClientID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, fmt.Errorf("transport is closed")
	}
	return contracts.ClientID(t.nextClient.Add(1)), nil
}

// Send implements messaging.EngineTransport.
func (t *Transport) Send(clientID contracts.ClientID, message []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("transport is closed")
	}

	return t.channel.PublishWithContext(
		context.Background(),
		requestExchange,
		fmt.Sprintf("client.%d", clientID),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        message,
			ReplyTo:     t.inboxQueue,
		},
	)
}

// Receive implements messaging.EngineTransport.
func (t *Transport) Receive(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d, ok := <-t.deliveries:
		if !ok {
			return nil, fmt.Errorf("inbox consumer closed")
		}
		return d.Body, nil
	case <-timer.C:
		return nil, nil
	}
}

// InboxQueue returns the private inbox queue name, for engine-side routing.
func (t *Transport) InboxQueue() string {
	return t.inboxQueue
}

// IsConnected returns connection status.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed && t.conn != nil && !t.conn.IsClosed()
}

// Close closes the channel and connection.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	if err := t.channel.Close(); err != nil {
		t.conn.Close()
		return fmt.Errorf("failed to close channel: %w", err)
	}
	return t.conn.Close()
}
