package relay

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DefaultPingInterval is how often the server probes idle publishers.
const DefaultPingInterval = 30 * time.Second

// maxMissedPings drops a publisher that stops answering keepalives.
const maxMissedPings = 3

// ServerConfig configures the relay server.
type ServerConfig struct {
	// Listener is an optional pre-existing listener, mainly for tests.
	// If nil, a TCP listener is created on Address.
	Listener net.Listener

	// Address is the listen bind address (e.g. ":40100").
	// Ignored if Listener is provided.
	Address string

	// PingInterval is the publisher keepalive period.
	// Zero means DefaultPingInterval.
	PingInterval time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// conn wraps an accepted connection with write serialization.
type conn struct {
	net.Conn
	writeMu sync.Mutex

	mu     sync.Mutex
	missed int
}

func (c *conn) send(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writePacket(c.Conn, p)
}

// Server forwards published streams to their subscribers, demultiplexing by
// stream id. Streams with distinct ids never cross-deliver.
type Server struct {
	listener net.Listener
	interval time.Duration
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger

	mu          sync.Mutex
	publishers  map[string]*conn
	subscribers map[string][]*conn
	closed      bool
}

// NewServer creates a relay server and starts accepting connections.
func NewServer(config ServerConfig) (*Server, error) {
	s := &Server{
		listener:    config.Listener,
		interval:    config.PingInterval,
		closeCh:     make(chan struct{}),
		publishers:  make(map[string]*conn),
		subscribers: make(map[string][]*conn),
	}

	if s.interval == 0 {
		s.interval = DefaultPingInterval
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("relay")
	}

	if s.listener == nil {
		listener, err := net.Listen("tcp", config.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBindFailed, err)
		}
		s.listener = listener
	}

	if s.log != nil {
		s.log.Infof("relay server listening on %s", s.listener.Addr())
	}

	s.wg.Add(2)
	go s.acceptLoop()
	go s.pingLoop()

	return s, nil
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close shuts the server and every connection down.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	pubs := s.publishers
	subs := s.subscribers
	s.publishers = make(map[string]*conn)
	s.subscribers = make(map[string][]*conn)
	s.mu.Unlock()

	close(s.closeCh)
	s.listener.Close()

	for _, c := range pubs {
		c.Close()
	}
	for _, cs := range subs {
		for _, c := range cs {
			c.Close()
		}
	}

	s.wg.Wait()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		nc, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConn(&conn{Conn: nc})
	}
}

// handleConn performs the hello handshake and runs the connection's role.
func (s *Server) handleConn(c *conn) {
	defer s.wg.Done()

	hello, err := s.readHello(c)
	if err != nil {
		if s.log != nil {
			s.log.Warnf("rejecting %v: %v", c.RemoteAddr(), err)
		}
		c.Close()
		return
	}

	switch hello.Kind {
	case KindPublisher:
		s.runPublisher(c, hello.ID)
	case KindSubscriber:
		s.runSubscriber(c, hello.ID)
	default:
		c.Close()
	}
}

func (s *Server) readHello(c *conn) (Signal, error) {
	p, err := readPacket(c.Conn)
	if err != nil {
		return Signal{}, err
	}
	if len(p) < 1 || p[0] != PacketSignal {
		return Signal{}, ErrMalformedSignal
	}

	hello, err := DecodeSignal(p[1:])
	if err != nil {
		return Signal{}, err
	}
	if hello.Type != SignalHello || hello.ID == "" {
		return Signal{}, ErrMalformedSignal
	}
	return hello, nil
}

func (s *Server) runPublisher(c *conn, id string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.Close()
		return
	}
	if _, exists := s.publishers[id]; exists {
		s.mu.Unlock()
		if s.log != nil {
			s.log.Warnf("%v: %v", ErrDuplicatePublisher, id)
		}
		c.Close()
		return
	}
	s.publishers[id] = c
	s.mu.Unlock()

	if s.log != nil {
		s.log.Infof("publisher online, id=%s addr=%v", id, c.RemoteAddr())
	}

	for {
		p, err := readPacket(c.Conn)
		if err != nil {
			break
		}
		if len(p) < 1 {
			continue
		}

		switch p[0] {
		case PacketData:
			streamID, payload, err := UnwrapStream(p[1:])
			if err != nil || streamID != id {
				// A mistagged frame never routes to another stream.
				if s.log != nil {
					s.log.Warnf("dropping mistagged frame from id=%s", id)
				}
				continue
			}
			s.forward(id, payload)
		case PacketSignal:
			if sig, err := DecodeSignal(p[1:]); err == nil && sig.Type == SignalPong {
				c.mu.Lock()
				c.missed = 0
				c.mu.Unlock()
			}
		}
	}

	s.dropPublisher(c, id)
}

// forward delivers one payload to every subscriber of the stream.
// Subscribers whose connection fails are pruned.
func (s *Server) forward(id string, payload []byte) {
	s.mu.Lock()
	subs := append([]*conn(nil), s.subscribers[id]...)
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sub.send(payload); err != nil {
			s.removeSubscriber(id, sub)
			sub.Close()
		}
	}
}

// dropPublisher takes a publisher offline and closes its subscribers, so
// every receiver observes the disconnect promptly.
func (s *Server) dropPublisher(c *conn, id string) {
	c.Close()

	s.mu.Lock()
	if s.publishers[id] != c {
		s.mu.Unlock()
		return
	}
	delete(s.publishers, id)
	subs := s.subscribers[id]
	delete(s.subscribers, id)
	s.mu.Unlock()

	if s.log != nil {
		s.log.Infof("publisher offline, id=%s", id)
	}

	for _, sub := range subs {
		sub.Close()
	}
}

func (s *Server) runSubscriber(c *conn, id string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		c.Close()
		return
	}
	s.subscribers[id] = append(s.subscribers[id], c)
	s.mu.Unlock()

	if s.log != nil {
		s.log.Infof("subscriber online, id=%s addr=%v", id, c.RemoteAddr())
	}

	// Subscribers send nothing after the hello; reading only detects
	// their disconnect.
	for {
		if _, err := readPacket(c.Conn); err != nil {
			break
		}
	}

	s.removeSubscriber(id, c)
	c.Close()

	if s.log != nil {
		s.log.Infof("subscriber offline, id=%s", id)
	}
}

func (s *Server) removeSubscriber(id string, c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[id]
	for i, sub := range subs {
		if sub == c {
			s.subscribers[id] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// pingLoop probes publishers so half-dead connections are reclaimed even
// when no stream data flows.
func (s *Server) pingLoop() {
	defer s.wg.Done()

	ping, err := EncodeSignal(Signal{Type: SignalPing})
	if err != nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		pubs := make(map[string]*conn, len(s.publishers))
		for id, c := range s.publishers {
			pubs[id] = c
		}
		s.mu.Unlock()

		for id, c := range pubs {
			c.mu.Lock()
			c.missed++
			missed := c.missed
			c.mu.Unlock()

			if missed > maxMissedPings || c.send(ping) != nil {
				s.dropPublisher(c, id)
			}
		}
	}
}
