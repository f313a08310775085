package discovery

import "errors"

// Package-level sentinel errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed
	// advertiser or browser.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("discovery: already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("discovery: not started")

	// ErrUnavailable is returned when the mDNS layer cannot be reached,
	// typically because the multicast socket failed to bind.
	ErrUnavailable = errors.New("discovery: service unavailable")
)
