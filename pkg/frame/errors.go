package frame

import "errors"

// Package-level sentinel errors.
var (
	// ErrMalformedFrame is returned for segments that are truncated or carry
	// inconsistent header fields. Callers drop the segment and continue.
	ErrMalformedFrame = errors.New("frame: malformed segment")

	// ErrInvalidMTU is returned when the MTU cannot hold a header plus at
	// least one payload byte.
	ErrInvalidMTU = errors.New("frame: mtu too small for segment header")
)
