package transport

import (
	"fmt"
	"net"

	"github.com/pion/logging"
	"golang.org/x/net/ipv4"
)

// MulticastConfig configures a multicast endpoint for either role.
type MulticastConfig struct {
	// Address is the multicast group and port (e.g. "239.0.0.1:43165").
	Address string

	// Loopback enables local delivery of sent datagrams, so receivers on
	// the sending host (and tests) see the stream.
	Loopback bool

	// TTL is the multicast TTL for the sender role. Zero keeps the OS
	// default, which confines the stream to the local segment.
	TTL int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// BindMulticast creates the endpoint for the given role on a multicast
// group. The sender writes datagrams to the group with no handshake; each
// receiver independently joins the group. Packet loss is tolerated by the
// framing layer, not retried here.
func BindMulticast(config MulticastConfig, role Role) (Endpoint, error) {
	group, err := net.ResolveUDPAddr("udp4", config.Address)
	if err != nil || group.IP == nil || !group.IP.IsMulticast() {
		return nil, ErrMulticastRequiresUDP
	}

	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("transport-multicast")
	}

	if role == RoleSender {
		conn, err := net.ListenPacket("udp4", ":0")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBindFailed, err)
		}

		p := ipv4.NewPacketConn(conn)
		if config.TTL > 0 {
			if err := p.SetMulticastTTL(config.TTL); err != nil && log != nil {
				log.Warnf("setting multicast TTL: %v", err)
			}
		}
		if err := p.SetMulticastLoopback(config.Loopback); err != nil && log != nil {
			log.Warnf("setting multicast loopback: %v", err)
		}

		if log != nil {
			log.Infof("multicast sender bound on %s, group %s", conn.LocalAddr(), group)
		}

		return &packetEndpoint{conn: conn, remote: group}, nil
	}

	// Receiver role: join the group. ListenMulticastUDP sets address reuse
	// so multiple receiver sessions can share the group port on one host.
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	if log != nil {
		log.Infof("multicast receiver joined %s", group)
	}

	return &packetEndpoint{conn: conn, remote: group}, nil
}
