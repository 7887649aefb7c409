package contracts

import "errors"

var (
	// ErrMalformedMessage indicates an inbound document that could not be
	// decoded as structured data at all. This is a transport-contract
	// violation, not an update-schema mismatch.
	ErrMalformedMessage = errors.New("message is not decodable as a JSON document")

	// ErrMissingClientID indicates an uncorrelated inbound document without
	// the mandatory "@client_id" field.
	ErrMissingClientID = errors.New("message is missing the @client_id field")
)
