// Package correlation matches asynchronous callers to their eventual engine
// responses.
//
// The send path subscribes a single-use Waiter under a correlation id before
// sending, and the receive path notifies the registry with every correlated
// document it pulls off the engine. Each waiter is fulfilled at most once;
// notifications with no registered waiter are discarded, since stale or
// duplicate responses must never fail the system.
package correlation
