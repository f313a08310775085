package transport

// DefaultMTU is the default wire segment size bound. It keeps segments
// under the common Ethernet MTU with headroom for IP and UDP headers.
const DefaultMTU = 1400

// Descriptor names a stream's transport: which strategy carries it, the
// strategy-specific address, and the segment size bound. Sender and
// receiver must agree on strategy and address; the MTU only matters on the
// sending side.
type Descriptor struct {
	// Strategy selects how packets travel.
	Strategy Strategy

	// Address is strategy-specific: the sender's listen address for Direct,
	// the relay server for Relay, the group address for Multicast.
	Address string

	// MTU bounds wire segments. Zero means DefaultMTU.
	MTU int
}

func (d Descriptor) withDefaults() Descriptor {
	if d.MTU == 0 {
		d.MTU = DefaultMTU
	}
	return d
}

// Validate checks the descriptor before binding.
func (d Descriptor) Validate() error {
	switch d.Strategy {
	case StrategyDirect, StrategyRelay, StrategyMulticast:
	default:
		return ErrInvalidStrategy
	}
	if d.Address == "" {
		return ErrInvalidAddress
	}
	return nil
}
