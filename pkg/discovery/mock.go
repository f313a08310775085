package discovery

import (
	"context"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/lancast/lancast/pkg/properties"
)

// MockMDNSResolver provides a mock mDNS resolver for testing without real
// network I/O.
type MockMDNSResolver struct {
	mu      sync.RWMutex
	entries []*zeroconf.ServiceEntry
}

// NewMockMDNSResolver creates a new mock resolver.
func NewMockMDNSResolver() *MockMDNSResolver {
	return &MockMDNSResolver{}
}

// AddEntry registers an entry that Browse will deliver.
func (m *MockMDNSResolver) AddEntry(entry *zeroconf.ServiceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
}

// Browse implements MDNSResolver. It delivers the registered entries and
// then blocks until the context ends, matching the continuous behavior of
// a real browse.
func (m *MockMDNSResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	defer close(entries)

	m.mu.RLock()
	pending := make([]*zeroconf.ServiceEntry, len(m.entries))
	copy(pending, m.entries)
	m.mu.RUnlock()

	for _, entry := range pending {
		select {
		case entries <- entry:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

// MockServerFactory records registrations instead of touching the network.
type MockServerFactory struct {
	mu      sync.Mutex
	servers []*MockServer

	// FailWith, when set, makes Register fail with this error.
	FailWith error
}

// MockServer is a recorded registration.
type MockServer struct {
	Instance string
	Service  string
	Domain   string
	Port     int
	TXT      []string

	mu   sync.Mutex
	down bool
}

// Shutdown implements MDNSServer.
func (s *MockServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = true
}

// Down reports whether the registration was shut down.
func (s *MockServer) Down() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

// Register implements MDNSServerFactory.
func (f *MockServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailWith != nil {
		return nil, f.FailWith
	}

	server := &MockServer{
		Instance: instance,
		Service:  service,
		Domain:   domain,
		Port:     port,
		TXT:      txt,
	}
	f.servers = append(f.servers, server)
	return server, nil
}

// Servers returns all recorded registrations.
func (f *MockServerFactory) Servers() []*MockServer {
	f.mu.Lock()
	defer f.mu.Unlock()
	servers := make([]*MockServer, len(f.servers))
	copy(servers, f.servers)
	return servers
}

// MockSenderEntry creates a service entry for a sender advertisement.
func MockSenderEntry(instance string, port int, ip net.IP, props properties.Properties) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: instance,
			Service:  Service,
			Domain:   DefaultDomain,
		},
		HostName: instance + ".local.",
		Port:     port,
		AddrIPv4: []net.IP{ip},
		Text:     properties.ToTXT(props),
	}
}
