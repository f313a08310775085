package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/lancast/lancast/pkg/relay"
)

// RelayConfig configures a relay-strategy endpoint for either role.
type RelayConfig struct {
	// Address is the relay server address.
	Address string

	// ID is the stream id: the id being published, or the id to
	// subscribe to.
	ID string

	// ConnectTimeout bounds the connect attempt. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// DialRelay connects to the relay server and announces the stream. For the
// sender role every written packet is wrapped with the stream id so the
// relay can route it; for the receiver role the returned endpoint reads the
// raw stream, indistinguishable from a Direct connection.
func DialRelay(config RelayConfig, role Role) (Endpoint, error) {
	if config.ID == "" || len(config.ID) > relay.MaxIDLen {
		return nil, ErrInvalidAddress
	}

	timeout := config.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}

	var log logging.LeveledLogger
	if config.LoggerFactory != nil {
		log = config.LoggerFactory.NewLogger("transport-relay")
	}

	conn, err := net.DialTimeout("tcp", config.Address, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: relay %s: %v", ErrConnectFailed, config.Address, err)
	}

	kind := relay.KindSubscriber
	if role == RoleSender {
		kind = relay.KindPublisher
	}

	hello, err := relay.EncodeSignal(relay.Signal{
		Type: relay.SignalHello,
		ID:   config.ID,
		Kind: kind,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	inner := newStreamEndpoint(conn)
	if err := inner.WritePacket(hello); err != nil {
		inner.Close()
		return nil, fmt.Errorf("%w: relay hello: %v", ErrConnectFailed, err)
	}

	if log != nil {
		log.Infof("%s joined relay %s, id=%s", role, config.Address, config.ID)
	}

	if role == RoleReceiver {
		return inner, nil
	}

	p := &relayPublisher{
		inner:   inner,
		id:      config.ID,
		closeCh: make(chan struct{}),
		log:     log,
	}
	p.wg.Add(1)
	go p.controlLoop()

	return p, nil
}

// relayPublisher is the sender-side relay endpoint. Data writes are tagged
// with the stream id; a background loop answers the relay's keepalives.
type relayPublisher struct {
	inner   *streamEndpoint
	id      string
	closeCh chan struct{}
	wg      sync.WaitGroup
	log     logging.LeveledLogger

	mu     sync.Mutex
	closed bool
}

func (p *relayPublisher) WritePacket(b []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	return p.inner.WritePacket(relay.WrapStream(p.id, b))
}

// ReadPacket blocks until the endpoint is closed; the publisher data path
// is one-way and control traffic is consumed internally.
func (p *relayPublisher) ReadPacket() ([]byte, error) {
	<-p.closeCh
	return nil, ErrClosed
}

func (p *relayPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.closeCh)
	p.inner.Close()
	p.wg.Wait()
	return nil
}

func (p *relayPublisher) LocalAddr() net.Addr {
	return p.inner.LocalAddr()
}

// controlLoop answers relay pings until the connection goes away.
func (p *relayPublisher) controlLoop() {
	defer p.wg.Done()

	for {
		pkt, err := p.inner.ReadPacket()
		if err != nil {
			return
		}
		if len(pkt) < 1 || pkt[0] != relay.PacketSignal {
			continue
		}

		sig, err := relay.DecodeSignal(pkt[1:])
		if err != nil || sig.Type != relay.SignalPing {
			continue
		}

		pong, err := relay.EncodeSignal(relay.Signal{Type: relay.SignalPong})
		if err != nil {
			continue
		}
		if err := p.inner.WritePacket(pong); err != nil {
			if p.log != nil {
				p.log.Warnf("pong failed: %v", err)
			}
			return
		}
	}
}
