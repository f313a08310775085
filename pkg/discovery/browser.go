package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"

	"github.com/lancast/lancast/pkg/properties"
)

// DefaultRestartDelay is the pause between browse rounds when the
// underlying browse returns early.
const DefaultRestartDelay = time.Second

// MDNSResolver is the interface for mDNS service resolution.
// This allows for dependency injection in tests.
type MDNSResolver interface {
	// Browse browses for services of the given type. Implementations close
	// the entries channel when the context ends.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfBrowseResolver is the production implementation using grandcat/zeroconf.
type zeroconfBrowseResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfBrowseResolver() (*zeroconfBrowseResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfBrowseResolver{resolver: r}, nil
}

func (z *zeroconfBrowseResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

// EntryHandler consumes discovered senders. It is invoked from the
// browser's own goroutine; a panic in the handler is logged and does not
// stop the browse.
type EntryHandler func(Entry)

// BrowserConfig holds configuration for the Browser.
type BrowserConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// RestartDelay is the pause before restarting an early-ended browse.
	// If zero, DefaultRestartDelay is used.
	RestartDelay time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Browser continuously watches the network for cast senders. Unlike a
// one-shot lookup it keeps browsing until closed, so senders that appear
// late are still reported.
type Browser struct {
	resolver     MDNSResolver
	restartDelay time.Duration
	log          logging.LeveledLogger

	mu       sync.Mutex
	cancel   context.CancelFunc
	closed   bool
	browsing bool

	wg sync.WaitGroup
}

// NewBrowser creates a new Browser with the given configuration.
func NewBrowser(config BrowserConfig) (*Browser, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfBrowseResolver()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		resolver = zr
	}

	restartDelay := config.RestartDelay
	if restartDelay == 0 {
		restartDelay = DefaultRestartDelay
	}

	b := &Browser{
		resolver:     resolver,
		restartDelay: restartDelay,
	}
	if config.LoggerFactory != nil {
		b.log = config.LoggerFactory.NewLogger("discovery")
	}
	return b, nil
}

// Browse starts the continuous watch, reporting every discovered sender to
// the handler. Only one watch may run per browser.
func (b *Browser) Browse(handler EntryHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if b.browsing {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.browsing = true

	b.wg.Add(1)
	go b.browseLoop(ctx, handler)
	return nil
}

// Close stops the watch and waits for the browse goroutine to exit.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

func (b *Browser) browseLoop(ctx context.Context, handler EntryHandler) {
	defer b.wg.Done()

	for {
		entries := make(chan *zeroconf.ServiceEntry, 16)
		done := make(chan struct{})

		go func() {
			defer close(done)
			if err := b.resolver.Browse(ctx, Service, DefaultDomain, entries); err != nil {
				if b.log != nil {
					b.log.Warnf("browse failed: %v", err)
				}
			}
		}()

		for entry := range entries {
			if entry == nil {
				continue
			}
			b.dispatch(handler, toEntry(entry))
		}
		<-done

		// The entries channel closed: either we are shutting down, or the
		// browse ended early and should be restarted.
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.restartDelay):
		}
	}
}

// dispatch isolates handler panics from the browse loop.
func (b *Browser) dispatch(handler EntryHandler, entry Entry) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.Errorf("handler panic: %v", r)
		}
	}()
	handler(entry)
}

func toEntry(entry *zeroconf.ServiceEntry) Entry {
	e := Entry{
		Instance:   entry.Instance,
		HostName:   entry.HostName,
		Port:       entry.Port,
		Properties: properties.FromTXT(entry.Text),
	}
	e.IPs = append(e.IPs, entry.AddrIPv4...)
	e.IPs = append(e.IPs, entry.AddrIPv6...)
	return e
}
