package transport

import "fmt"

// Strategy selects the connectivity topology for a session.
type Strategy uint8

const (
	// StrategyDirect is point-to-point: the sender binds and listens, the
	// receiver initiates the connection.
	StrategyDirect Strategy = iota

	// StrategyRelay routes both ends through a third-party forwarding
	// server that demultiplexes streams by id.
	StrategyRelay

	// StrategyMulticast fans out over a shared multicast group with no
	// handshake and no delivery acknowledgment.
	StrategyMulticast
)

// IsValid returns true for known strategies.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyDirect, StrategyRelay, StrategyMulticast:
		return true
	default:
		return false
	}
}

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyRelay:
		return "relay"
	case StrategyMulticast:
		return "multicast"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// ParseStrategy parses the string form used in discovery properties.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "direct":
		return StrategyDirect, nil
	case "relay":
		return StrategyRelay, nil
	case "multicast":
		return StrategyMulticast, nil
	default:
		return 0, ErrInvalidStrategy
	}
}

// Role distinguishes the two ends of a stream when binding a strategy.
type Role uint8

const (
	// RoleSender produces the byte stream.
	RoleSender Role = iota

	// RoleReceiver consumes it.
	RoleReceiver
)

func (r Role) String() string {
	switch r {
	case RoleSender:
		return "sender"
	case RoleReceiver:
		return "receiver"
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}
