package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed endpoint.
	ErrClosed = errors.New("transport: closed")

	// ErrBindFailed is returned when a listen or group-join socket cannot be bound.
	ErrBindFailed = errors.New("transport: bind failed")

	// ErrConnectFailed is returned when a connection attempt fails outright.
	ErrConnectFailed = errors.New("transport: connect failed")

	// ErrConnectTimeout is returned when the bounded connect retry gives up.
	ErrConnectTimeout = errors.New("transport: connect timed out")

	// ErrDisconnected is returned when the remote peer closed the stream.
	ErrDisconnected = errors.New("transport: disconnected")

	// ErrInvalidAddress is returned for addresses the strategy cannot use.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrInvalidStrategy is returned for unknown strategy values.
	ErrInvalidStrategy = errors.New("transport: invalid strategy")

	// ErrPacketTooLarge is returned when a packet exceeds the wire bound.
	ErrPacketTooLarge = errors.New("transport: packet too large")

	// ErrMulticastRequiresUDP is returned when a multicast address does not
	// parse as an IPv4 group.
	ErrMulticastRequiresUDP = errors.New("transport: address is not an IPv4 multicast group")
)
