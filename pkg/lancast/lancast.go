// Package lancast is the host-facing surface of the casting stack. It
// wraps the session and discovery objects behind opaque numeric handles so
// foreign-function bindings never hold Go pointers; the underlying packages
// remain available for pure-Go callers.
package lancast

import (
	"io"
	"strconv"

	"github.com/lancast/lancast/pkg/discovery"
	"github.com/lancast/lancast/pkg/frame"
	"github.com/lancast/lancast/pkg/properties"
	"github.com/lancast/lancast/pkg/session"
	"github.com/lancast/lancast/pkg/transport"
)

// SenderHandle refers to a sender session created by CreateSender.
type SenderHandle uint64

// ReceiverHandle refers to a receiver session created by CreateReceiver.
type ReceiverHandle uint64

// DiscoveryHandle refers to an advertisement or query created by
// DiscoveryRegister or DiscoveryQuery.
type DiscoveryHandle uint64

var (
	senders     handleTable[*session.Sender]
	receivers   handleTable[*session.Receiver]
	discoveries handleTable[io.Closer]
)

// CreateSender creates a sender session and returns its handle. The sender
// is active immediately; release it with SenderRelease.
func CreateSender(options SenderOptions) (SenderHandle, error) {
	sender, err := session.NewSender(session.SenderConfig{
		Descriptor: transport.Descriptor{
			Strategy: options.Strategy,
			Address:  options.Address,
			MTU:      options.MTU,
		},
		MulticastGroup: options.MulticastGroup,
		LoggerFactory:  options.LoggerFactory,
	})
	if err != nil {
		return 0, err
	}

	if options.Multicast && options.Strategy != transport.StrategyMulticast {
		if err := sender.SetMulticast(true); err != nil {
			sender.Close()
			return 0, err
		}
	}

	return SenderHandle(senders.put(sender)), nil
}

// SenderSend frames one media buffer and sends it. Returns false when the
// handle is stale or the session has ended; the producer should then stop
// and release the handle.
func SenderSend(h SenderHandle, kind frame.Kind, flags uint32, timestamp int64, data []byte) bool {
	sender, ok := senders.get(uint64(h))
	if !ok {
		return false
	}
	return sender.Send(frame.BufferInfo{Kind: kind, Flags: flags, Timestamp: timestamp}, data)
}

// SenderID returns the stream identity behind a sender handle.
func SenderID(h SenderHandle) (session.StreamID, error) {
	sender, ok := senders.get(uint64(h))
	if !ok {
		return session.StreamID{}, ErrInvalidHandle
	}
	return sender.ID(), nil
}

// SenderSetMulticast toggles the sender's additive multicast path.
func SenderSetMulticast(h SenderHandle, enable bool) error {
	sender, ok := senders.get(uint64(h))
	if !ok {
		return ErrInvalidHandle
	}
	return sender.SetMulticast(enable)
}

// SenderGetMulticast reports whether the multicast path is enabled. Stale
// handles report false.
func SenderGetMulticast(h SenderHandle) bool {
	sender, ok := senders.get(uint64(h))
	if !ok {
		return false
	}
	return sender.GetMulticast()
}

// SenderRelease closes the sender and invalidates the handle. Releasing a
// stale handle returns ErrInvalidHandle and touches nothing.
func SenderRelease(h SenderHandle) error {
	sender, ok := senders.take(uint64(h))
	if !ok {
		return ErrInvalidHandle
	}
	return sender.Close()
}

// CreateReceiver attaches to the stream with the given id and returns the
// receiver's handle. Buffers flow to the sink before this returns.
func CreateReceiver(id string, options ReceiverOptions, sink Sink) (ReceiverHandle, error) {
	receiver, err := session.NewReceiver(session.ReceiverConfig{
		ID: id,
		Descriptor: transport.Descriptor{
			Strategy: options.Strategy,
			Address:  options.Address,
		},
		Sink:           sinkAdapter{sink},
		ConnectTimeout: options.ConnectTimeout,
		LoggerFactory:  options.LoggerFactory,
	})
	if err != nil {
		return 0, err
	}
	return ReceiverHandle(receivers.put(receiver)), nil
}

// ReceiverRelease closes the receiver and invalidates the handle. The
// sink's OnClose fires if it has not already.
func ReceiverRelease(h ReceiverHandle) error {
	receiver, ok := receivers.take(uint64(h))
	if !ok {
		return ErrInvalidHandle
	}
	return receiver.Close()
}

// DiscoveryRegister advertises a sender on the local network. The property
// set should carry at least the stream id and strategy; release the handle
// to withdraw the advertisement.
func DiscoveryRegister(port int, props properties.Properties) (DiscoveryHandle, error) {
	adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{})
	if err := adv.Start(port, props); err != nil {
		return 0, err
	}
	return DiscoveryHandle(discoveries.put(adv)), nil
}

// DiscoveryQuery watches the local network for senders, reporting each one
// to the handler from a background goroutine. Release the handle to stop.
func DiscoveryQuery(handler discovery.EntryHandler) (DiscoveryHandle, error) {
	browser, err := discovery.NewBrowser(discovery.BrowserConfig{})
	if err != nil {
		return 0, err
	}
	if err := browser.Browse(handler); err != nil {
		browser.Close()
		return 0, err
	}
	return DiscoveryHandle(discoveries.put(browser)), nil
}

// DiscoveryRelease stops the advertisement or query behind the handle.
func DiscoveryRelease(h DiscoveryHandle) error {
	closer, ok := discoveries.take(uint64(h))
	if !ok {
		return ErrInvalidHandle
	}
	return closer.Close()
}

// SenderAdvertisement builds the property set a sender should register
// with DiscoveryRegister.
func SenderAdvertisement(h SenderHandle, options SenderOptions) (properties.Properties, error) {
	id, err := SenderID(h)
	if err != nil {
		return nil, err
	}

	props := properties.Properties{
		properties.KeyID:       id.UID,
		properties.KeyPort:     strconv.Itoa(int(id.Port)),
		properties.KeyStrategy: options.Strategy.String(),
	}
	if options.Address != "" {
		props[properties.KeyAddress] = options.Address
	}
	if options.CodecDescription != "" {
		props[properties.KeyCodec] = options.CodecDescription
	}
	return props, nil
}

// sinkAdapter demultiplexes session buffers onto the kind-specific
// callbacks of the handle-level sink.
type sinkAdapter struct {
	sink Sink
}

func (a sinkAdapter) OnBuffer(info frame.BufferInfo, data []byte) bool {
	switch info.Kind {
	case frame.KindVideo:
		if a.sink.OnVideo != nil {
			return a.sink.OnVideo(info.Flags, info.Timestamp, data)
		}
	case frame.KindAudio:
		if a.sink.OnAudio != nil {
			return a.sink.OnAudio(info.Flags, info.Timestamp, data)
		}
	}
	return true
}

func (a sinkAdapter) OnClose() {
	if a.sink.OnClose != nil {
		a.sink.OnClose()
	}
}
