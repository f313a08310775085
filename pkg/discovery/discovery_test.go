package discovery

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/lancast/lancast/pkg/properties"
)

func TestAdvertiserLifecycle(t *testing.T) {
	factory := &MockServerFactory{}
	adv := NewAdvertiser(AdvertiserConfig{ServerFactory: factory})

	props := properties.Properties{
		properties.KeyID:       "stream-1",
		properties.KeyStrategy: "direct",
	}

	if err := adv.Start(8080, props); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := adv.InstanceName(); got != "stream-1" {
		t.Errorf("InstanceName() = %q, want %q", got, "stream-1")
	}
	if err := adv.Start(8080, props); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want %v", err, ErrAlreadyStarted)
	}

	servers := factory.Servers()
	if len(servers) != 1 {
		t.Fatalf("registered %d servers, want 1", len(servers))
	}
	if servers[0].Service != Service {
		t.Errorf("service = %q, want %q", servers[0].Service, Service)
	}
	if servers[0].Port != 8080 {
		t.Errorf("port = %d, want 8080", servers[0].Port)
	}
	if got := properties.FromTXT(servers[0].TXT); !properties.Equal(got, props) {
		t.Errorf("TXT round trip = %v, want %v", got, props)
	}

	if err := adv.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !servers[0].Down() {
		t.Error("Stop() did not shut the registration down")
	}
	if err := adv.Stop(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("second Stop() error = %v, want %v", err, ErrNotStarted)
	}

	// Stop then Start again is allowed.
	if err := adv.Start(8081, props); err != nil {
		t.Fatalf("restart Start() error = %v", err)
	}

	if err := adv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := adv.Start(8080, props); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want %v", err, ErrClosed)
	}
}

func TestAdvertiserRandomInstanceName(t *testing.T) {
	factory := &MockServerFactory{}
	adv := NewAdvertiser(AdvertiserConfig{ServerFactory: factory})
	defer adv.Close()

	if err := adv.Start(9000, properties.Properties{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if name := adv.InstanceName(); len(name) != 16 {
		t.Errorf("InstanceName() = %q, want 16 hex chars", name)
	}
}

func TestAdvertiserRegistrationFailure(t *testing.T) {
	factory := &MockServerFactory{FailWith: errors.New("no multicast route")}
	adv := NewAdvertiser(AdvertiserConfig{ServerFactory: factory})
	defer adv.Close()

	err := adv.Start(9000, properties.Properties{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Start() error = %v, want %v", err, ErrUnavailable)
	}
}

func TestBrowserReportsEntries(t *testing.T) {
	props := properties.Properties{
		properties.KeyID:   "stream-2",
		properties.KeyPort: "8080",
	}

	resolver := NewMockMDNSResolver()
	resolver.AddEntry(MockSenderEntry("stream-2", 8080, net.IPv4(192, 168, 1, 10), props))

	browser, err := NewBrowser(BrowserConfig{MDNSResolver: resolver})
	if err != nil {
		t.Fatalf("NewBrowser() error = %v", err)
	}
	defer browser.Close()

	found := make(chan Entry, 4)
	if err := browser.Browse(func(e Entry) { found <- e }); err != nil {
		t.Fatalf("Browse() error = %v", err)
	}
	if err := browser.Browse(func(Entry) {}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Browse() error = %v, want %v", err, ErrAlreadyStarted)
	}

	select {
	case entry := <-found:
		if entry.Instance != "stream-2" {
			t.Errorf("Instance = %q, want %q", entry.Instance, "stream-2")
		}
		if entry.Port != 8080 {
			t.Errorf("Port = %d, want 8080", entry.Port)
		}
		if !properties.Equal(entry.Properties, props) {
			t.Errorf("Properties = %v, want %v", entry.Properties, props)
		}
		if got := entry.PreferredIP(); !got.Equal(net.IPv4(192, 168, 1, 10)) {
			t.Errorf("PreferredIP() = %v, want 192.168.1.10", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for entry")
	}
}

func TestBrowserHandlerPanicDoesNotStopBrowse(t *testing.T) {
	props := properties.Properties{properties.KeyID: "a"}

	resolver := NewMockMDNSResolver()
	resolver.AddEntry(MockSenderEntry("a", 1, net.IPv4(10, 0, 0, 1), props))
	resolver.AddEntry(MockSenderEntry("b", 2, net.IPv4(10, 0, 0, 2), props))

	browser, err := NewBrowser(BrowserConfig{MDNSResolver: resolver})
	if err != nil {
		t.Fatalf("NewBrowser() error = %v", err)
	}
	defer browser.Close()

	found := make(chan Entry, 4)
	err = browser.Browse(func(e Entry) {
		if e.Instance == "a" {
			panic("handler failure")
		}
		found <- e
	})
	if err != nil {
		t.Fatalf("Browse() error = %v", err)
	}

	select {
	case entry := <-found:
		if entry.Instance != "b" {
			t.Errorf("Instance = %q, want %q", entry.Instance, "b")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("browse stopped after handler panic")
	}
}

func TestBrowserCloseIdempotent(t *testing.T) {
	browser, err := NewBrowser(BrowserConfig{MDNSResolver: NewMockMDNSResolver()})
	if err != nil {
		t.Fatalf("NewBrowser() error = %v", err)
	}
	if err := browser.Browse(func(Entry) {}); err != nil {
		t.Fatalf("Browse() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := browser.Close(); err != nil {
			t.Fatalf("Close() #%d error = %v", i, err)
		}
	}
	if err := browser.Browse(func(Entry) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Browse() after Close error = %v, want %v", err, ErrClosed)
	}
}
