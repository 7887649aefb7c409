// Package inproc provides an in-process engine simulator implementing
// messaging.EngineTransport. Sessions are plain counters and every document
// flows through one shared inbox, matching the real engine's single
// interleaved delivery stream. It backs the module's tests and is useful for
// exercising embedding code without a native engine.
package inproc

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/enginemux/enginemux-go/contracts"
	"github.com/enginemux/enginemux-go/messaging"
)

var _ messaging.EngineTransport = (*Engine)(nil)

// RequestHandler produces the documents the simulated engine emits in
// reaction to one request. Returned documents are enqueued to the shared
// inbox in order. Handlers run on their own goroutine per send, so delivery
// interleaving across sessions mirrors the real engine.
type RequestHandler func(clientID contracts.ClientID, request []byte) [][]byte

// Engine is an in-process poll-based engine.
type Engine struct {
	handler    RequestHandler
	inbox      chan []byte
	nextClient atomic.Int32

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// EngineOption configures the Engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	inboxSize int
	handler   RequestHandler
}

// WithInboxSize sets the shared inbox capacity.
func WithInboxSize(size int) EngineOption {
	return func(c *engineConfig) {
		c.inboxSize = size
	}
}

// WithHandler sets the request handler.
func WithHandler(handler RequestHandler) EngineOption {
	return func(c *engineConfig) {
		c.handler = handler
	}
}

// NewEngine creates a simulated engine. Without a handler, sent requests are
// swallowed and only pushed documents are delivered.
func NewEngine(options ...EngineOption) *Engine {
	cfg := &engineConfig{
		inboxSize: 256,
	}

	for _, opt := range options {
		opt(cfg)
	}

	return &Engine{
		handler: cfg.handler,
		inbox:   make(chan []byte, cfg.inboxSize),
		done:    make(chan struct{}),
	}
}

// CreateClient implements messaging.EngineTransport.
func (e *Engine) CreateClient() (contracts.ClientID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, fmt.Errorf("engine is closed")
	}
	return contracts.ClientID(e.nextClient.Add(1)), nil
}

// Send implements messaging.EngineTransport. The handler's documents are
// enqueued asynchronously, so responses reach the inbox after Send returns.
func (e *Engine) Send(clientID contracts.ClientID, message []byte) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("engine is closed")
	}
	handler := e.handler
	e.mu.Unlock()

	if handler == nil {
		return nil
	}

	go func() {
		for _, doc := range handler(clientID, message) {
			e.Push(doc)
		}
	}()

	return nil
}

// Receive implements messaging.EngineTransport.
func (e *Engine) Receive(timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case doc := <-e.inbox:
		return doc, nil
	case <-e.done:
		return nil, fmt.Errorf("engine is closed")
	case <-timer.C:
		return nil, nil
	}
}

// Push enqueues one document to the shared inbox directly, bypassing any
// handler. Tests use it to inject unsolicited updates and raw payloads.
func (e *Engine) Push(message []byte) {
	select {
	case e.inbox <- message:
	case <-e.done:
	}
}

// Close shuts the engine down. In-flight Receive calls return an error.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	close(e.done)
}
