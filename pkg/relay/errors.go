package relay

import "errors"

// Package-level sentinel errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed server.
	ErrClosed = errors.New("relay: closed")

	// ErrBindFailed is returned when the listen socket cannot be bound.
	ErrBindFailed = errors.New("relay: bind failed")

	// ErrMalformedSignal is returned for control packets that do not decode.
	ErrMalformedSignal = errors.New("relay: malformed signal")

	// ErrMalformedPacket is returned for data packets without a valid
	// stream id tag.
	ErrMalformedPacket = errors.New("relay: malformed data packet")

	// ErrDuplicatePublisher is returned when a second publisher announces
	// an id that is already live.
	ErrDuplicatePublisher = errors.New("relay: stream id already published")
)
