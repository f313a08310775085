package session

import "errors"

// Package-level sentinel errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed session.
	ErrClosed = errors.New("session: closed")

	// ErrNoSink is returned when a receiver is created without a sink.
	ErrNoSink = errors.New("session: no sink configured")

	// ErrNoMulticastGroup is returned by SetMulticast when the sender was
	// created without a multicast group address.
	ErrNoMulticastGroup = errors.New("session: no multicast group configured")
)
