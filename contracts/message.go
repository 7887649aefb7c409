package contracts

import (
	"encoding/json"
	"strconv"
)

// ClientID identifies one engine session. It is minted by the transport and
// opaque to callers; the same id must be supplied on every subsequent send.
type ClientID int32

// Wire field names shared with the engine.
const (
	FieldExtra    = "@extra"
	FieldClientID = "@client_id"
	FieldType     = "@type"
	FieldCode     = "code"
	FieldMessage  = "message"
)

// CodeTooManyRequests is the engine status code signalling rate limiting.
const CodeTooManyRequests = 429

// Update is an unsolicited engine event decoded into its schema type.
// Implementations report the "@type" discriminator they decode from.
type Update interface {
	UpdateType() string
}

// Envelope is one raw engine document together with its decoded fields.
// Raw preserves the exact serialized form so callers can re-decode the
// document into a domain-specific response type.
type Envelope struct {
	Raw    []byte
	Fields map[string]interface{}
}

// CorrelationID returns the "@extra" tag if the document carries one.
// The engine echoes the tag back verbatim, but JSON decoding may surface it
// as a float, a json.Number, or a string depending on the codec.
func (e *Envelope) CorrelationID() (uint64, bool) {
	v, ok := e.Fields[FieldExtra]
	if !ok {
		return 0, false
	}

	switch id := v.(type) {
	case float64:
		if id < 0 {
			return 0, false
		}
		return uint64(id), true
	case json.Number:
		n, err := strconv.ParseUint(id.String(), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case string:
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// ClientID returns the owning session id if the document carries one.
func (e *Envelope) ClientID() (ClientID, bool) {
	v, ok := e.Fields[FieldClientID]
	if !ok {
		return 0, false
	}

	switch id := v.(type) {
	case float64:
		return ClientID(id), true
	case json.Number:
		n, err := id.Int64()
		if err != nil {
			return 0, false
		}
		return ClientID(n), true
	default:
		return 0, false
	}
}

// TypeName returns the "@type" discriminator, or "" if absent.
func (e *Envelope) TypeName() string {
	if v, ok := e.Fields[FieldType].(string); ok {
		return v
	}
	return ""
}

// ErrorCode returns the numeric status code if the document carries one.
func (e *Envelope) ErrorCode() (int, bool) {
	switch code := e.Fields[FieldCode].(type) {
	case float64:
		return int(code), true
	case json.Number:
		n, err := code.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}

// ErrorMessage returns the human-readable status message, or "" if absent.
func (e *Envelope) ErrorMessage() string {
	if v, ok := e.Fields[FieldMessage].(string); ok {
		return v
	}
	return ""
}
