// Package messaging bridges the engine's poll-based, single-consumer surface
// to concurrent asynchronous callers.
//
// The engine exposes exactly three primitives: create a session handle, send
// a serialized document to a handle, and receive the next document from any
// handle within a bounded wait. RequestDispatcher owns the send side: it tags
// each outgoing request with a fresh correlation id, subscribes with the
// correlation registry before sending, and transparently re-issues requests
// the engine rejects with a rate-limit backoff. InboundClassifier owns the
// receive side: it pulls one document per call and routes it either to the
// registry (correlated response) or out to the driving loop as a typed
// update. The two share no state except the registry.
//
// The engine is not re-entrant on the receive side, so exactly one goroutine
// may drive InboundClassifier.Receive at a time. Any number of goroutines may
// dispatch requests concurrently.
package messaging
