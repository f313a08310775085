// Package discovery advertises and finds cast senders on the local network
// via DNS-SD (mDNS).
//
// A sender registers one service instance carrying its stream properties as
// TXT records; receivers browse continuously and are told about every
// sender that appears. Discovery is advisory: losing mDNS does not tear
// down established streams.
package discovery

import (
	"net"

	"github.com/lancast/lancast/pkg/properties"
)

const (
	// Service is the DNS-SD service type for cast senders.
	Service = "_lancast._udp"

	// DefaultDomain is the mDNS domain.
	DefaultDomain = "local."
)

// Entry describes one discovered sender.
type Entry struct {
	// Instance is the DNS-SD instance name.
	Instance string

	// HostName is the advertised target host.
	HostName string

	// Port is the sender's service port.
	Port int

	// IPs are the resolved addresses, IPv4 first.
	IPs []net.IP

	// Properties is the sender's property set decoded from TXT records.
	Properties properties.Properties
}

// PreferredIP returns the first resolved address, or nil if none resolved.
func (e *Entry) PreferredIP() net.IP {
	if len(e.IPs) > 0 {
		return e.IPs[0]
	}
	return nil
}
