package messaging

import (
	"time"

	"github.com/enginemux/enginemux-go/contracts"
)

// EngineTransport is the native engine surface this module is built on.
// Send may be called from any goroutine; Receive must only be in flight from
// one goroutine at a time.
type EngineTransport interface {
	// CreateClient mints a new opaque session handle. The handle's lifetime
	// is owned by the transport; this module never destroys it.
	CreateClient() (contracts.ClientID, error)

	// Send delivers one serialized document to the given session.
	// Fire-and-forget: a nil error means the transport accepted the
	// document, not that the engine processed it.
	Send(clientID contracts.ClientID, message []byte) error

	// Receive returns the next available document from any session, or
	// (nil, nil) if none arrives within timeout.
	Receive(timeout time.Duration) ([]byte, error)
}
