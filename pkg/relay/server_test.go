package relay

import (
	"net"
	"testing"
	"time"
)

func startServer(t *testing.T, interval time.Duration) *Server {
	t.Helper()

	server, err := NewServer(ServerConfig{
		Address:      "127.0.0.1:0",
		PingInterval: interval,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server
}

func dialHello(t *testing.T, server *Server, id string, kind PeerKind) net.Conn {
	t.Helper()

	c, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	hello, err := EncodeSignal(Signal{Type: SignalHello, ID: id, Kind: kind})
	if err != nil {
		t.Fatalf("EncodeSignal() error = %v", err)
	}
	if err := writePacket(c, hello); err != nil {
		t.Fatalf("writePacket(hello) error = %v", err)
	}
	return c
}

func readWithDeadline(t *testing.T, c net.Conn, d time.Duration) ([]byte, error) {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(d))
	defer c.SetReadDeadline(time.Time{})
	return readPacket(c)
}

func TestServerForwardsToSubscribers(t *testing.T) {
	server := startServer(t, time.Minute)

	sub1 := dialHello(t, server, "stream-a", KindSubscriber)
	sub2 := dialHello(t, server, "stream-a", KindSubscriber)
	pub := dialHello(t, server, "stream-a", KindPublisher)

	// Give the subscriber registrations a moment to land.
	time.Sleep(50 * time.Millisecond)

	payload := []byte("segment-1")
	if err := writePacket(pub, WrapStream("stream-a", payload)); err != nil {
		t.Fatalf("writePacket(data) error = %v", err)
	}

	for i, sub := range []net.Conn{sub1, sub2} {
		got, err := readWithDeadline(t, sub, 2*time.Second)
		if err != nil {
			t.Fatalf("subscriber %d read error = %v", i, err)
		}
		if string(got) != string(payload) {
			t.Errorf("subscriber %d got %q, want %q", i, got, payload)
		}
	}
}

func TestServerIsolatesStreams(t *testing.T) {
	server := startServer(t, time.Minute)

	subA := dialHello(t, server, "stream-a", KindSubscriber)
	subB := dialHello(t, server, "stream-b", KindSubscriber)
	pubA := dialHello(t, server, "stream-a", KindPublisher)
	pubB := dialHello(t, server, "stream-b", KindPublisher)

	time.Sleep(50 * time.Millisecond)

	if err := writePacket(pubA, WrapStream("stream-a", []byte("for-a"))); err != nil {
		t.Fatalf("publish a error = %v", err)
	}
	if err := writePacket(pubB, WrapStream("stream-b", []byte("for-b"))); err != nil {
		t.Fatalf("publish b error = %v", err)
	}

	got, err := readWithDeadline(t, subA, 2*time.Second)
	if err != nil {
		t.Fatalf("subscriber a read error = %v", err)
	}
	if string(got) != "for-a" {
		t.Errorf("subscriber a got %q, want %q", got, "for-a")
	}

	got, err = readWithDeadline(t, subB, 2*time.Second)
	if err != nil {
		t.Fatalf("subscriber b read error = %v", err)
	}
	if string(got) != "for-b" {
		t.Errorf("subscriber b got %q, want %q", got, "for-b")
	}
}

func TestServerDropsMistaggedFrames(t *testing.T) {
	server := startServer(t, time.Minute)

	subB := dialHello(t, server, "stream-b", KindSubscriber)
	pubA := dialHello(t, server, "stream-a", KindPublisher)

	time.Sleep(50 * time.Millisecond)

	// A publisher registered for stream-a must not reach stream-b's
	// subscribers even with a forged tag.
	if err := writePacket(pubA, WrapStream("stream-b", []byte("forged"))); err != nil {
		t.Fatalf("publish error = %v", err)
	}
	if err := writePacket(pubA, WrapStream("stream-a", []byte("honest"))); err != nil {
		t.Fatalf("publish error = %v", err)
	}

	if got, err := readWithDeadline(t, subB, 300*time.Millisecond); err == nil {
		t.Errorf("subscriber b got %q, want nothing", got)
	}
}

func TestServerClosesSubscribersOnPublisherExit(t *testing.T) {
	server := startServer(t, time.Minute)

	sub := dialHello(t, server, "stream-a", KindSubscriber)
	pub := dialHello(t, server, "stream-a", KindPublisher)

	time.Sleep(50 * time.Millisecond)
	pub.Close()

	if _, err := readWithDeadline(t, sub, 2*time.Second); err == nil {
		t.Error("subscriber read succeeded after publisher exit, want disconnect")
	}
}

func TestServerRejectsDuplicatePublisher(t *testing.T) {
	server := startServer(t, time.Minute)

	first := dialHello(t, server, "stream-a", KindPublisher)
	second := dialHello(t, server, "stream-a", KindPublisher)

	// The second publisher is closed by the server; the first stays up.
	if _, err := readWithDeadline(t, second, 2*time.Second); err == nil {
		t.Error("duplicate publisher read succeeded, want disconnect")
	}

	first.SetWriteDeadline(time.Now().Add(time.Second))
	if err := writePacket(first, WrapStream("stream-a", []byte("x"))); err != nil {
		t.Errorf("original publisher write error = %v", err)
	}
}

func TestServerRejectsMalformedHello(t *testing.T) {
	server := startServer(t, time.Minute)

	c, err := net.Dial("tcp", server.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	if err := writePacket(c, []byte{PacketData, 'x'}); err != nil {
		t.Fatalf("writePacket() error = %v", err)
	}
	if _, err := readWithDeadline(t, c, 2*time.Second); err == nil {
		t.Error("read succeeded after malformed hello, want disconnect")
	}
}

func TestServerPingsPublisher(t *testing.T) {
	server := startServer(t, 50*time.Millisecond)

	pub := dialHello(t, server, "stream-a", KindPublisher)

	got, err := readWithDeadline(t, pub, 2*time.Second)
	if err != nil {
		t.Fatalf("publisher read error = %v", err)
	}
	if len(got) < 1 || got[0] != PacketSignal {
		t.Fatalf("publisher got packet type %v, want signal", got[:1])
	}
	sig, err := DecodeSignal(got[1:])
	if err != nil {
		t.Fatalf("DecodeSignal() error = %v", err)
	}
	if sig.Type != SignalPing {
		t.Errorf("signal type = %v, want ping", sig.Type)
	}
}

func TestServerDropsSilentPublisher(t *testing.T) {
	server := startServer(t, 50*time.Millisecond)

	pub := dialHello(t, server, "stream-a", KindPublisher)

	// Never answer pings; the server reclaims the connection after the
	// missed-ping budget.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := readWithDeadline(t, pub, 200*time.Millisecond); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if time.Now().After(deadline) {
					t.Fatal("publisher still connected, want drop after missed pings")
				}
				continue
			}
			return // dropped
		}
	}
}

func TestSignalRoundTrip(t *testing.T) {
	tests := []Signal{
		{Type: SignalHello, ID: "abc", Kind: KindPublisher},
		{Type: SignalHello, ID: "abc", Kind: KindSubscriber},
		{Type: SignalPing},
		{Type: SignalPong},
	}

	for _, want := range tests {
		p, err := EncodeSignal(want)
		if err != nil {
			t.Fatalf("EncodeSignal(%+v) error = %v", want, err)
		}
		if p[0] != PacketSignal {
			t.Fatalf("EncodeSignal(%+v) prefix = %d, want %d", want, p[0], PacketSignal)
		}
		got, err := DecodeSignal(p[1:])
		if err != nil {
			t.Fatalf("DecodeSignal() error = %v", err)
		}
		if got != want {
			t.Errorf("DecodeSignal() = %+v, want %+v", got, want)
		}
	}
}

func TestUnwrapStream(t *testing.T) {
	p := WrapStream("id-1", []byte("payload"))
	if p[0] != PacketData {
		t.Fatalf("WrapStream prefix = %d, want %d", p[0], PacketData)
	}

	id, payload, err := UnwrapStream(p[1:])
	if err != nil {
		t.Fatalf("UnwrapStream() error = %v", err)
	}
	if id != "id-1" || string(payload) != "payload" {
		t.Errorf("UnwrapStream() = (%q, %q), want (%q, %q)", id, payload, "id-1", "payload")
	}

	if _, _, err := UnwrapStream(nil); err != ErrMalformedPacket {
		t.Errorf("UnwrapStream(nil) error = %v, want %v", err, ErrMalformedPacket)
	}
	if _, _, err := UnwrapStream([]byte{10, 'a'}); err != ErrMalformedPacket {
		t.Errorf("UnwrapStream(truncated) error = %v, want %v", err, ErrMalformedPacket)
	}
}
