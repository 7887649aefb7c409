// Package contracts provides the wire-level message model shared by the
// enginemux send and receive paths.
//
// The engine speaks newline-less JSON documents with a small set of
// load-bearing fields:
//   - "@extra": correlation tag echoed from a request onto its response
//   - "@client_id": the engine session a message belongs to
//   - "@type": schema discriminator for unsolicited updates
//   - "code"/"message": error status fields, including rate limiting (429)
//
// Everything else in a document is opaque to this module and is passed
// through to the caller untouched.
package contracts
