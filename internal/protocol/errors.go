package protocol

import "errors"

var (
	// ErrUnknownType is returned for a well-formed message whose discriminant is not recognized.
	ErrUnknownType = errors.New("protocol: unknown message type")
	// ErrMalformed is returned when a message cannot be deserialized.
	ErrMalformed = errors.New("protocol: malformed message")
)
