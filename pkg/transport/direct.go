package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pion/logging"
)

// DefaultConnectTimeout bounds the Direct receiver's connect retry loop.
const DefaultConnectTimeout = 10 * time.Second

// DirectListenerConfig configures the sender side of a Direct stream.
type DirectListenerConfig struct {
	// Listener is an optional pre-existing listener, mainly for tests.
	// If nil, a TCP listener is created on Address.
	Listener net.Listener

	// Address is the listen bind address (e.g. "0.0.0.0:43165").
	// Ignored if Listener is provided.
	Address string

	// OnPeer is invoked from the accept loop each time a remote peer
	// becomes the active one. Optional.
	OnPeer func(addr net.Addr)

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DirectListener is the sender-side Direct endpoint. It listens for a
// receiver and services exactly one remote peer at a time; connections
// arriving while a peer is active are refused. Writes with no active peer
// are dropped, which matches streaming semantics: a receiver that joins
// late starts at the next frame.
type DirectListener struct {
	listener net.Listener
	onPeer   func(net.Addr)
	closeCh  chan struct{}
	wg       sync.WaitGroup
	log      logging.LeveledLogger

	mu     sync.Mutex
	active *streamEndpoint
	closed bool
}

// ListenDirect binds the sender side of a Direct stream and starts its
// accept loop.
func ListenDirect(config DirectListenerConfig) (*DirectListener, error) {
	l := &DirectListener{
		listener: config.Listener,
		onPeer:   config.OnPeer,
		closeCh:  make(chan struct{}),
	}

	if config.LoggerFactory != nil {
		l.log = config.LoggerFactory.NewLogger("transport-direct")
	}

	if l.listener == nil {
		listener, err := net.Listen("tcp", config.Address)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBindFailed, err)
		}
		l.listener = listener
	}

	if l.log != nil {
		l.log.Infof("direct listener bound on %s", l.listener.Addr())
	}

	l.wg.Add(1)
	go l.acceptLoop()

	return l, nil
}

// WritePacket sends one packet to the active peer, if any. Packets written
// while no peer is connected are silently dropped. A write failure drops
// the peer and frees the slot for the next connection.
func (l *DirectListener) WritePacket(p []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	active := l.active
	l.mu.Unlock()

	if active == nil {
		return nil
	}

	if err := active.WritePacket(p); err != nil {
		if l.log != nil {
			l.log.Warnf("dropping peer after write failure: %v", err)
		}
		l.dropPeer(active)
	}
	return nil
}

// ReadPacket blocks until the listener is closed. The Direct data flow is
// one-way; the sender never receives segments.
func (l *DirectListener) ReadPacket() ([]byte, error) {
	<-l.closeCh
	return nil, ErrClosed
}

// Close shuts the listener and the active peer connection down and waits
// for the accept loop to exit.
func (l *DirectListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	active := l.active
	l.active = nil
	l.mu.Unlock()

	close(l.closeCh)
	l.listener.Close()
	if active != nil {
		active.Close()
	}
	l.wg.Wait()

	return nil
}

// LocalAddr returns the listen address.
func (l *DirectListener) LocalAddr() net.Addr {
	return l.listener.Addr()
}

// HasPeer reports whether a remote peer is currently being serviced.
func (l *DirectListener) HasPeer() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active != nil
}

func (l *DirectListener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
				return
			default:
				continue
			}
		}

		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			conn.Close()
			return
		}
		if l.active != nil {
			l.mu.Unlock()
			if l.log != nil {
				l.log.Infof("refusing %v: peer slot occupied", conn.RemoteAddr())
			}
			conn.Close()
			continue
		}
		ep := newStreamEndpoint(conn)
		l.active = ep
		l.mu.Unlock()

		if l.log != nil {
			l.log.Infof("direct peer connected: %v", conn.RemoteAddr())
		}

		// The receiver never writes segments, so the only read outcome is
		// detecting its disconnect.
		l.wg.Add(1)
		go l.watchPeer(ep)

		if l.onPeer != nil {
			l.onPeer(conn.RemoteAddr())
		}
	}
}

// watchPeer blocks on the peer connection to notice teardown and free the
// peer slot.
func (l *DirectListener) watchPeer(ep *streamEndpoint) {
	defer l.wg.Done()

	for {
		if _, err := ep.ReadPacket(); err != nil {
			break
		}
	}

	if l.log != nil {
		l.log.Info("direct peer disconnected")
	}
	l.dropPeer(ep)
}

func (l *DirectListener) dropPeer(ep *streamEndpoint) {
	ep.Close()
	l.mu.Lock()
	if l.active == ep {
		l.active = nil
	}
	l.mu.Unlock()
}

// DialDirectConfig configures the receiver side of a Direct stream.
type DialDirectConfig struct {
	// Address is the sender's listen address.
	Address string

	// ConnectTimeout bounds the retry loop. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DialDirect connects to a Direct sender with exponential backoff until the
// sender is reachable or the timeout elapses. A sender that is still
// starting up is the common case on a LAN, not an error.
func DialDirect(config DialDirectConfig) (Endpoint, error) {
	timeout := config.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}

	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("transport-direct")
	}

	var conn net.Conn
	operation := func() error {
		c, err := net.DialTimeout("tcp", config.Address, timeout)
		if err != nil {
			if log != nil {
				log.Debugf("connect attempt to %s failed: %v", config.Address, err)
			}
			return err
		}
		conn = c
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = time.Second
	policy.MaxElapsedTime = timeout

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, config.Address)
	}

	if log != nil {
		log.Infof("connected to direct sender at %s", config.Address)
	}

	return newStreamEndpoint(conn), nil
}
