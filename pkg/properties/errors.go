package properties

import "errors"

// Package-level sentinel errors.
var (
	// ErrMalformed is returned by Decode for truncated or invalid input.
	ErrMalformed = errors.New("properties: malformed payload")
)
