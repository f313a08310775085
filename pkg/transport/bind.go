package transport

import (
	"net"
	"time"

	"github.com/pion/logging"
)

// BindConfig carries the per-session knobs that a Descriptor does not.
type BindConfig struct {
	// ConnectTimeout bounds connect retries for connecting roles.
	// Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// ID is the stream id, required by the relay strategy.
	ID string

	// OnPeer is invoked by the Direct sender strategy when a remote peer
	// connects. Optional.
	OnPeer func(addr net.Addr)

	// MulticastLoopback enables local delivery of multicast sends.
	MulticastLoopback bool

	// MulticastTTL sets the sender's multicast TTL. Zero keeps the OS default.
	MulticastTTL int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Bind resolves a descriptor and role to a live endpoint. This is the
// single connect/bind contract shared by both session types; once an
// endpoint exists, the session layer treats all strategies identically.
func Bind(desc Descriptor, role Role, config BindConfig) (Endpoint, error) {
	desc = desc.withDefaults()
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	switch desc.Strategy {
	case StrategyDirect:
		if role == RoleSender {
			return ListenDirect(DirectListenerConfig{
				Address:       desc.Address,
				OnPeer:        config.OnPeer,
				LoggerFactory: config.LoggerFactory,
			})
		}
		return DialDirect(DialDirectConfig{
			Address:        desc.Address,
			ConnectTimeout: config.ConnectTimeout,
			LoggerFactory:  config.LoggerFactory,
		})

	case StrategyRelay:
		return DialRelay(RelayConfig{
			Address:        desc.Address,
			ID:             config.ID,
			ConnectTimeout: config.ConnectTimeout,
			LoggerFactory:  config.LoggerFactory,
		}, role)

	case StrategyMulticast:
		return BindMulticast(MulticastConfig{
			Address:       desc.Address,
			Loopback:      config.MulticastLoopback,
			TTL:           config.MulticastTTL,
			LoggerFactory: config.LoggerFactory,
		}, role)

	default:
		return nil, ErrInvalidStrategy
	}
}
