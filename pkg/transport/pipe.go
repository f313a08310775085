package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// Pipe provides a bidirectional in-memory endpoint pair for deterministic
// tests without real network I/O. It wraps pion's test.Bridge; queued
// packets are delivered by a background goroutine.
type Pipe struct {
	bridge *test.Bridge
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPipe creates a pipe delivering packets in the background.
func NewPipe() *Pipe {
	p := &Pipe{
		bridge: test.NewBridge(),
		stopCh: make(chan struct{}),
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()

	return p
}

// Endpoint0 returns one end of the pipe.
func (p *Pipe) Endpoint0() Endpoint {
	return &pipeEndpoint{conn: p.bridge.GetConn0()}
}

// Endpoint1 returns the other end.
func (p *Pipe) Endpoint1() Endpoint {
	return &pipeEndpoint{conn: p.bridge.GetConn1()}
}

// Drop discards the next n packets queued from the given end (0 or 1),
// simulating loss for reassembly tests.
func (p *Pipe) Drop(fromEnd, n int) {
	p.bridge.DropNextNWrites(fromEnd, n)
}

// Close closes both ends and stops packet delivery.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	err0 := p.bridge.GetConn0().Close()
	err1 := p.bridge.GetConn1().Close()
	if err0 != nil {
		return err0
	}
	return err1
}

// pipeEndpoint adapts one bridge connection to the Endpoint contract.
// Bridge connections preserve packet boundaries, so no framing is needed.
type pipeEndpoint struct {
	conn net.Conn

	mu     sync.Mutex
	closed bool
}

func (e *pipeEndpoint) WritePacket(p []byte) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.mu.Unlock()

	if len(p) > MaxPacketSize {
		return ErrPacketTooLarge
	}

	buf := make([]byte, len(p))
	copy(buf, p)
	if _, err := e.conn.Write(buf); err != nil {
		return e.mapError(err)
	}
	return nil
}

func (e *pipeEndpoint) ReadPacket() ([]byte, error) {
	buf := make([]byte, MaxPacketSize)
	n, err := e.conn.Read(buf)
	if err != nil {
		return nil, e.mapError(err)
	}
	return buf[:n], nil
}

func (e *pipeEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	return e.conn.Close()
}

func (e *pipeEndpoint) LocalAddr() net.Addr {
	return e.conn.LocalAddr()
}

func (e *pipeEndpoint) mapError(err error) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrDisconnected
	}
	return err
}
