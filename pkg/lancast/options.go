package lancast

import (
	"net"
	"strconv"
	"time"

	"github.com/pion/logging"

	"github.com/lancast/lancast/pkg/discovery"
	"github.com/lancast/lancast/pkg/properties"
	"github.com/lancast/lancast/pkg/transport"
)

// SenderOptions configures CreateSender.
type SenderOptions struct {
	// Strategy selects the primary transport.
	Strategy transport.Strategy

	// Address is the strategy-specific address: listen address for Direct,
	// relay server for Relay, group address for Multicast.
	Address string

	// MTU bounds wire segments. Zero means transport.DefaultMTU.
	MTU int

	// Multicast starts the sender with the additive multicast path already
	// enabled. Requires MulticastGroup; ignored for the Multicast strategy,
	// which is inherently multicast.
	Multicast bool

	// MulticastGroup is the group address for the additive multicast path.
	MulticastGroup string

	// CodecDescription is an opaque codec string carried in the sender's
	// advertisement for receivers to pick decoders with.
	CodecDescription string

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// ReceiverOptions configures CreateReceiver.
type ReceiverOptions struct {
	// Strategy selects the transport to attach with.
	Strategy transport.Strategy

	// Address is the sender's address for Direct, the relay server for
	// Relay, or the group address for Multicast.
	Address string

	// ConnectTimeout bounds connect retries. Zero means
	// transport.DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Sink receives a handle-level receiver's demultiplexed output. Nil
// callbacks discard their media kind; a nil OnClose is simply skipped.
type Sink struct {
	// OnVideo consumes video buffers. Returning false stops the receiver.
	OnVideo func(flags uint32, timestamp int64, data []byte) bool

	// OnAudio consumes audio buffers. Returning false stops the receiver.
	OnAudio func(flags uint32, timestamp int64, data []byte) bool

	// OnClose fires exactly once when the receiver ends.
	OnClose func()
}

// ReceiverOptionsFromEntry maps a discovered sender advertisement to the
// stream id and receiver options needed to attach to it. The address
// preference is the advertised address property, then the resolved mDNS
// address and port.
func ReceiverOptionsFromEntry(entry discovery.Entry) (string, ReceiverOptions, error) {
	id := entry.Properties[properties.KeyID]
	if id == "" {
		return "", ReceiverOptions{}, ErrBadAdvertisement
	}

	strategy, err := transport.ParseStrategy(entry.Properties[properties.KeyStrategy])
	if err != nil {
		return "", ReceiverOptions{}, ErrBadAdvertisement
	}

	address := entry.Properties[properties.KeyAddress]
	if address == "" {
		ip := entry.PreferredIP()
		if ip == nil {
			return "", ReceiverOptions{}, ErrBadAdvertisement
		}
		port := entry.Port
		if p := entry.Properties[properties.KeyPort]; p != "" {
			if parsed, err := strconv.Atoi(p); err == nil {
				port = parsed
			}
		}
		address = net.JoinHostPort(ip.String(), strconv.Itoa(port))
	}

	return id, ReceiverOptions{Strategy: strategy, Address: address}, nil
}
