package correlation

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/enginemux/enginemux-go/contracts"
)

// ErrWaiterClosed indicates that a waiter was abandoned by its producer side
// before fulfillment. This only happens when the registry shuts down with
// requests still in flight; for a live receive loop it signals a bug in the
// driving application and the in-flight call cannot be recovered.
var ErrWaiterClosed = errors.New("correlation: waiter closed without a response")

// Waiter is a single-use fulfillment slot for one in-flight request.
// It is fulfilled at most once by the receive path and consumed at most once
// by the caller that subscribed it.
type Waiter struct {
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	envelope *contracts.Envelope
	err      error
}

func newWaiter() *Waiter {
	return &Waiter{done: make(chan struct{})}
}

// fulfill completes the waiter exactly once. Later calls are ignored.
func (w *Waiter) fulfill(env *contracts.Envelope) {
	w.once.Do(func() {
		w.mu.Lock()
		w.envelope = env
		w.mu.Unlock()
		close(w.done)
	})
}

// abort completes the waiter with ErrWaiterClosed if it has no value yet.
func (w *Waiter) abort() {
	w.once.Do(func() {
		w.mu.Lock()
		w.err = ErrWaiterClosed
		w.mu.Unlock()
		close(w.done)
	})
}

// Done returns a channel that is closed once the waiter is completed,
// for select-based waiting.
func (w *Waiter) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the waiter is fulfilled, aborted, or the context ends.
func (w *Waiter) Wait(ctx context.Context) (*contracts.Envelope, error) {
	select {
	case <-w.done:
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.envelope, w.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the response and whether the waiter has completed.
func (w *Waiter) Result() (*contracts.Envelope, bool) {
	select {
	case <-w.done:
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.envelope, true
	default:
		return nil, false
	}
}

// Registry owns the table of in-flight waiters keyed by correlation id.
// Subscribe and Notify may be called concurrently from the send and receive
// paths; the table holds at most one live waiter per id, and a waiter is
// removed from the table no later than the moment it is fulfilled.
type Registry struct {
	mu      sync.Mutex
	waiters map[uint64]*Waiter
	closed  bool
	logger  *slog.Logger
}

// RegistryOption configures the Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		waiters: make(map[uint64]*Waiter),
		logger:  slog.Default(),
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Subscribe registers a new empty waiter for id and returns it. Correlation
// ids are unique per attempt, so id is never already present. Subscribing on
// a closed registry returns an already-aborted waiter.
func (r *Registry) Subscribe(id uint64) *Waiter {
	w := newWaiter()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		w.abort()
		return w
	}
	r.waiters[id] = w
	r.mu.Unlock()

	return w
}

// Notify extracts the correlation id from env and delivers it to the waiter
// registered under that id, removing the entry. It reports whether a waiter
// was found; a miss is not an error, the document is simply discarded.
func (r *Registry) Notify(env *contracts.Envelope) bool {
	id, ok := env.CorrelationID()
	if !ok {
		return false
	}

	r.mu.Lock()
	w, exists := r.waiters[id]
	if exists {
		delete(r.waiters, id)
	}
	r.mu.Unlock()

	if !exists {
		r.logger.Debug("discarding response with no registered waiter", "correlationId", id)
		return false
	}

	w.fulfill(env)
	return true
}

// Discard removes the waiter for id without fulfilling it. Callers that give
// up on a request use this so the table does not accumulate stale entries.
func (r *Registry) Discard(id uint64) {
	r.mu.Lock()
	delete(r.waiters, id)
	r.mu.Unlock()
}

// Len returns the number of in-flight waiters.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}

// Close aborts every in-flight waiter and rejects further subscriptions.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	waiters := r.waiters
	r.waiters = make(map[uint64]*Waiter)
	r.mu.Unlock()

	for _, w := range waiters {
		w.abort()
	}
}
