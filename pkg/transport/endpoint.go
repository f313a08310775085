// Package transport implements the connectivity strategies of the casting
// core: Direct (TCP listen/dial), Relay (forwarding server), and Multicast
// (UDP group fan-out). All three are unified behind the Endpoint contract so
// the session layer never knows which topology carries its segments.
package transport

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/lancast/lancast/pkg/relay"
)

// MaxPacketSize bounds a single wire packet. Segments are MTU-bounded, so
// anything near this limit indicates a corrupt length prefix.
const MaxPacketSize = 1 << 16

// MaxMTU returns the largest session MTU the strategy can carry in one
// packet. The relay strategy reserves room for the stream-id tag prepended
// to every published packet, so its bound is below MaxPacketSize.
func MaxMTU(s Strategy) int {
	if s == StrategyRelay {
		return MaxPacketSize - relay.StreamOverhead(relay.MaxIDLen)
	}
	return MaxPacketSize
}

// lengthPrefixSize is the stream framing prefix (4 bytes, big-endian).
const lengthPrefixSize = 4

// Endpoint is the read/write primitive every strategy exposes to the
// session layer. Packet boundaries are preserved in both directions.
//
// WritePacket may be called from any goroutine; implementations serialize
// writes internally. ReadPacket is intended for a single read-loop owner.
// Close is idempotent; a closed endpoint returns ErrClosed from both sides,
// and a remote teardown surfaces as ErrDisconnected from ReadPacket.
type Endpoint interface {
	WritePacket(p []byte) error
	ReadPacket() ([]byte, error)
	Close() error
	LocalAddr() net.Addr
}

// streamEndpoint adapts a stream-oriented net.Conn to the packet contract
// with a 4-byte length prefix per packet.
type streamEndpoint struct {
	conn net.Conn

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

// newStreamEndpoint wraps an established stream connection.
func newStreamEndpoint(conn net.Conn) *streamEndpoint {
	return &streamEndpoint{conn: conn}
}

func (s *streamEndpoint) WritePacket(p []byte) error {
	if len(p) > MaxPacketSize {
		return ErrPacketTooLarge
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(p)))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.conn.Write(prefix[:]); err != nil {
		return s.mapError(err)
	}
	if _, err := s.conn.Write(p); err != nil {
		return s.mapError(err)
	}
	return nil
}

func (s *streamEndpoint) ReadPacket() ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(s.conn, prefix[:]); err != nil {
		return nil, s.mapError(err)
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size == 0 || size > MaxPacketSize {
		return nil, ErrDisconnected
	}

	p := make([]byte, size)
	if _, err := io.ReadFull(s.conn, p); err != nil {
		return nil, s.mapError(err)
	}
	return p, nil
}

func (s *streamEndpoint) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.conn.Close()
}

func (s *streamEndpoint) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// mapError folds transport-level failures into the package taxonomy.
func (s *streamEndpoint) mapError(err error) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF || errors.Is(err, net.ErrClosed) {
		return ErrDisconnected
	}
	return err
}

// packetEndpoint adapts a datagram net.PacketConn to the Endpoint contract:
// one packet per datagram, writes aimed at a fixed remote address.
type packetEndpoint struct {
	conn   net.PacketConn
	remote net.Addr

	mu     sync.Mutex
	closed bool
}

func (p *packetEndpoint) WritePacket(b []byte) error {
	if len(b) > MaxPacketSize {
		return ErrPacketTooLarge
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.mu.Unlock()

	_, err := p.conn.WriteTo(b, p.remote)
	if err != nil && p.isClosed() {
		return ErrClosed
	}
	return err
}

func (p *packetEndpoint) ReadPacket() ([]byte, error) {
	buf := make([]byte, MaxPacketSize)
	n, _, err := p.conn.ReadFrom(buf)
	if err != nil {
		if p.isClosed() {
			return nil, ErrClosed
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrDisconnected
		}
		return nil, err
	}
	return buf[:n], nil
}

func (p *packetEndpoint) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.conn.Close()
}

func (p *packetEndpoint) LocalAddr() net.Addr {
	return p.conn.LocalAddr()
}

func (p *packetEndpoint) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
