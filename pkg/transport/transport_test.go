package transport

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/lancast/lancast/pkg/relay"
)

const testTimeout = 5 * time.Second

func tcpPair(t *testing.T) (Endpoint, Endpoint) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer listener.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- c
	}()

	dialed, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for accept")
	}

	a := newStreamEndpoint(dialed)
	b := newStreamEndpoint(server)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestStreamEndpointRoundTrip(t *testing.T) {
	a, b := tcpPair(t)

	payloads := [][]byte{
		[]byte("x"),
		bytes.Repeat([]byte{0xAB}, 9000), // larger than any socket read
		[]byte("after-large"),
	}

	for _, p := range payloads {
		if err := a.WritePacket(p); err != nil {
			t.Fatalf("WritePacket(%d bytes) error = %v", len(p), err)
		}
	}
	for _, want := range payloads {
		got, err := b.ReadPacket()
		if err != nil {
			t.Fatalf("ReadPacket() error = %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("ReadPacket() = %d bytes, want %d", len(got), len(want))
		}
	}
}

func TestStreamEndpointPacketTooLarge(t *testing.T) {
	a, _ := tcpPair(t)

	if err := a.WritePacket(make([]byte, MaxPacketSize+1)); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("WritePacket() error = %v, want %v", err, ErrPacketTooLarge)
	}
}

func TestStreamEndpointClosedAndDisconnected(t *testing.T) {
	a, b := tcpPair(t)

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := a.WritePacket([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("WritePacket() on closed endpoint error = %v, want %v", err, ErrClosed)
	}

	// The remote end observes the loss as a disconnect, not a local close.
	if _, err := b.ReadPacket(); !errors.Is(err, ErrDisconnected) {
		t.Errorf("ReadPacket() after peer close error = %v, want %v", err, ErrDisconnected)
	}
}

func TestDirectSinglePeer(t *testing.T) {
	listener, err := ListenDirect(DirectListenerConfig{Address: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("ListenDirect() error = %v", err)
	}
	defer listener.Close()

	// Writes with nobody connected are silently dropped.
	if err := listener.WritePacket([]byte("into the void")); err != nil {
		t.Errorf("WritePacket() with no peer error = %v, want nil", err)
	}

	addr := listener.LocalAddr().String()
	first, err := DialDirect(DialDirectConfig{Address: addr, ConnectTimeout: testTimeout})
	if err != nil {
		t.Fatalf("DialDirect() error = %v", err)
	}
	defer first.Close()

	waitPeer(t, listener)

	if err := listener.WritePacket([]byte("hello")); err != nil {
		t.Fatalf("WritePacket() error = %v", err)
	}
	got, err := first.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("ReadPacket() = %q, want %q", got, "hello")
	}

	// A second connection is refused while the first is active.
	second, err := DialDirect(DialDirectConfig{Address: addr, ConnectTimeout: testTimeout})
	if err != nil {
		t.Fatalf("second DialDirect() error = %v", err)
	}
	defer second.Close()

	if _, err := second.ReadPacket(); err == nil {
		t.Error("second peer ReadPacket() succeeded, want refusal")
	}
}

func TestDirectPeerReplacement(t *testing.T) {
	var peers []net.Addr
	peerCh := make(chan net.Addr, 4)

	listener, err := ListenDirect(DirectListenerConfig{
		Address: "127.0.0.1:0",
		OnPeer:  func(addr net.Addr) { peerCh <- addr },
	})
	if err != nil {
		t.Fatalf("ListenDirect() error = %v", err)
	}
	defer listener.Close()

	addr := listener.LocalAddr().String()

	first, err := DialDirect(DialDirectConfig{Address: addr, ConnectTimeout: testTimeout})
	if err != nil {
		t.Fatalf("DialDirect() error = %v", err)
	}
	peers = append(peers, waitPeerAddr(t, peerCh))

	// Once the first peer leaves, a new one may take its place.
	first.Close()
	waitNoPeer(t, listener)

	second, err := DialDirect(DialDirectConfig{Address: addr, ConnectTimeout: testTimeout})
	if err != nil {
		t.Fatalf("second DialDirect() error = %v", err)
	}
	defer second.Close()
	peers = append(peers, waitPeerAddr(t, peerCh))

	if len(peers) != 2 {
		t.Fatalf("observed %d peers, want 2", len(peers))
	}
}

func TestDialDirectTimeout(t *testing.T) {
	// Grab a port that nothing listens on.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := probe.Addr().String()
	probe.Close()

	start := time.Now()
	_, err = DialDirect(DialDirectConfig{Address: addr, ConnectTimeout: 300 * time.Millisecond})
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("DialDirect() error = %v, want %v", err, ErrConnectTimeout)
	}
	if elapsed := time.Since(start); elapsed > testTimeout {
		t.Errorf("DialDirect() took %v, want bounded by the connect timeout", elapsed)
	}
}

func TestRelayEndToEnd(t *testing.T) {
	server, err := relay.NewServer(relay.ServerConfig{Address: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("relay.NewServer() error = %v", err)
	}
	defer server.Close()

	addr := server.Addr().String()

	receiver, err := DialRelay(RelayConfig{Address: addr, ID: "stream-1"}, RoleReceiver)
	if err != nil {
		t.Fatalf("DialRelay(receiver) error = %v", err)
	}
	defer receiver.Close()

	sender, err := DialRelay(RelayConfig{Address: addr, ID: "stream-1"}, RoleSender)
	if err != nil {
		t.Fatalf("DialRelay(sender) error = %v", err)
	}
	defer sender.Close()

	// Registration races the first write; retry until the payload lands.
	got := make(chan []byte, 1)
	go func() {
		p, err := receiver.ReadPacket()
		if err == nil {
			got <- p
		}
	}()

	deadline := time.Now().Add(testTimeout)
	for {
		if err := sender.WritePacket([]byte("relayed")); err != nil {
			t.Fatalf("WritePacket() error = %v", err)
		}
		select {
		case p := <-got:
			if string(p) != "relayed" {
				t.Errorf("ReadPacket() = %q, want %q", p, "relayed")
			}
			return
		case <-time.After(50 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatal("timed out waiting for relayed packet")
			}
		}
	}
}

func TestRelaySenderSurvivesPing(t *testing.T) {
	server, err := relay.NewServer(relay.ServerConfig{
		Address:      "127.0.0.1:0",
		PingInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("relay.NewServer() error = %v", err)
	}
	defer server.Close()

	sender, err := DialRelay(RelayConfig{Address: server.Addr().String(), ID: "s"}, RoleSender)
	if err != nil {
		t.Fatalf("DialRelay() error = %v", err)
	}
	defer sender.Close()

	// Outlive several missed-ping budgets; the control loop's pongs keep
	// the publisher alive.
	time.Sleep(500 * time.Millisecond)

	if err := sender.WritePacket([]byte("still here")); err != nil {
		t.Errorf("WritePacket() after keepalives error = %v", err)
	}
}

func TestMaxMTUReservesRelayWrapOverhead(t *testing.T) {
	// A packet sized to the relay MTU bound must still fit the wire after
	// the stream-id tag is prepended, even for the longest possible id.
	id := strings.Repeat("x", relay.MaxIDLen)
	wrapped := relay.WrapStream(id, make([]byte, MaxMTU(StrategyRelay)))
	if len(wrapped) > MaxPacketSize {
		t.Errorf("wrapped packet = %d bytes, exceeds %d", len(wrapped), MaxPacketSize)
	}

	if got := MaxMTU(StrategyDirect); got != MaxPacketSize {
		t.Errorf("MaxMTU(direct) = %d, want %d", got, MaxPacketSize)
	}
}

func TestDialRelayRejectsOverlongID(t *testing.T) {
	config := RelayConfig{
		Address: "127.0.0.1:1",
		ID:      strings.Repeat("x", relay.MaxIDLen+1),
	}
	if _, err := DialRelay(config, RoleSender); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("DialRelay() error = %v, want %v", err, ErrInvalidAddress)
	}
}

func TestBindRejectsInvalidStrategy(t *testing.T) {
	_, err := Bind(Descriptor{Strategy: Strategy(42), Address: "127.0.0.1:0"}, RoleSender, BindConfig{})
	if !errors.Is(err, ErrInvalidStrategy) {
		t.Errorf("Bind() error = %v, want %v", err, ErrInvalidStrategy)
	}
}

func TestBindMulticastRejectsUnicastGroup(t *testing.T) {
	_, err := BindMulticast(MulticastConfig{Address: "192.168.1.1:5000"}, RoleSender)
	if !errors.Is(err, ErrMulticastRequiresUDP) {
		t.Errorf("BindMulticast() error = %v, want %v", err, ErrMulticastRequiresUDP)
	}
}

func TestPipeRoundTrip(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	a := pipe.Endpoint0()
	b := pipe.Endpoint1()

	if err := a.WritePacket([]byte("ping")); err != nil {
		t.Fatalf("WritePacket() error = %v", err)
	}
	got, err := b.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	if string(got) != "ping" {
		t.Errorf("ReadPacket() = %q, want %q", got, "ping")
	}
}

func TestPipeDrop(t *testing.T) {
	pipe := NewPipe()
	defer pipe.Close()

	a := pipe.Endpoint0()
	b := pipe.Endpoint1()

	pipe.Drop(0, 1)
	a.WritePacket([]byte("lost"))
	a.WritePacket([]byte("kept"))

	got, err := b.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	if string(got) != "kept" {
		t.Errorf("ReadPacket() = %q, want %q", got, "kept")
	}
}

func waitPeer(t *testing.T, l *DirectListener) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !l.HasPeer() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for peer")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitNoPeer(t *testing.T, l *DirectListener) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for l.HasPeer() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for peer drop")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitPeerAddr(t *testing.T, ch <-chan net.Addr) net.Addr {
	t.Helper()
	select {
	case addr := <-ch:
		return addr
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for peer callback")
		return nil
	}
}
