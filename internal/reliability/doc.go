// Package reliability implements the engine's rate-limit backoff protocol.
//
// The engine rejects over-eager senders with a status-429 document whose
// message embeds the mandated pause, e.g. "Too many requests: retry after 5".
// Recognition and the context-aware wait live here; the dispatcher loops on
// top of them with a fresh correlation id per attempt.
package reliability
