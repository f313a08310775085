// Package session implements the sender and receiver halves of a cast
// stream on top of the transport endpoints.
package session

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/lancast/lancast/pkg/frame"
	"github.com/lancast/lancast/pkg/transport"
)

// SenderConfig configures a sender session.
type SenderConfig struct {
	// Descriptor selects the primary transport strategy and address.
	Descriptor transport.Descriptor

	// MulticastGroup is the group address used when multicast distribution
	// is toggled on for a Direct or Relay sender. Optional.
	MulticastGroup string

	// MulticastLoopback enables local delivery of multicast sends.
	MulticastLoopback bool

	// MulticastTTL sets the multicast TTL. Zero keeps the OS default.
	MulticastTTL int

	// ConnectTimeout bounds connect retries for connecting strategies.
	// Zero means transport.DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// OnClose is invoked exactly once when the session ends, whether by an
	// explicit Close or by a transport failure. Optional.
	OnClose func()

	// Endpoint overrides transport binding. If set, the Descriptor is used
	// only for its MTU. This is how tests inject in-memory transports.
	Endpoint transport.Endpoint

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// snapshot is the minimal stream state replayed to late joiners: the codec
// configuration per media kind plus the most recent video keyframe. A peer
// that connects mid-stream cannot decode anything until it has these.
type snapshot struct {
	videoConfig *frame.Buffer
	audioConfig *frame.Buffer
	keyframe    *frame.Buffer
}

// Sender is the producing half of a cast stream. One encoder thread calls
// Send; Close may be called from any goroutine, any number of times.
type Sender struct {
	id       StreamID
	endpoint transport.Endpoint
	state    stateMachine
	onClose  func()
	once     sync.Once
	log      logging.LeveledLogger

	// mu serializes Send, SetMulticast and teardown so segments of distinct
	// buffers never interleave on the wire.
	mu      sync.Mutex
	encoder *frame.FragmentEncoder
	snap    snapshot

	mcGroup    string
	mcLoopback bool
	mcTTL      int
	mcEndpoint transport.Endpoint
	mcEncoder  *frame.FragmentEncoder
}

// NewSender creates a sender session and binds its transport. The returned
// sender is Active and ready for Send.
func NewSender(config SenderConfig) (*Sender, error) {
	s := &Sender{
		id:         StreamID{UID: uuid.NewString()},
		onClose:    config.OnClose,
		mcGroup:    config.MulticastGroup,
		mcLoopback: config.MulticastLoopback,
		mcTTL:      config.MulticastTTL,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("sender")
	}

	encoder, err := frame.NewFragmentEncoder(mtuOf(config.Descriptor))
	if err != nil {
		return nil, err
	}
	s.encoder = encoder

	s.state.set(StateConnecting)
	s.endpoint = config.Endpoint
	if s.endpoint == nil {
		s.endpoint, err = transport.Bind(config.Descriptor, transport.RoleSender, transport.BindConfig{
			ConnectTimeout:    config.ConnectTimeout,
			ID:                s.id.UID,
			OnPeer:            s.handlePeer,
			MulticastLoopback: config.MulticastLoopback,
			MulticastTTL:      config.MulticastTTL,
			LoggerFactory:     config.LoggerFactory,
		})
		if err != nil {
			s.state.set(StateClosed)
			return nil, err
		}
	}

	s.id.Port = streamPortFor(config.Descriptor, s.endpoint)
	s.state.set(StateActive)
	return s, nil
}

// ID returns the stream identity minted for this session.
func (s *Sender) ID() StreamID {
	return s.id
}

// State returns the current lifecycle state.
func (s *Sender) State() State {
	return s.state.get()
}

// Send frames one buffer and writes its segments to the transport. It
// returns false once the session is no longer active; a false return means
// the producer should stop and release the sender. Buffers are sent
// best-effort: transient receiver loss does not surface here.
func (s *Sender) Send(info frame.BufferInfo, data []byte) bool {
	if s.state.get() != StateActive {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seg := range s.encoder.Encode(info, data) {
		if err := s.endpoint.WritePacket(seg); err != nil {
			if s.log != nil {
				s.log.Warnf("Send: transport failed: %v", err)
			}
			go s.Close()
			return false
		}
	}

	if s.mcEndpoint != nil {
		for _, seg := range s.mcEncoder.Encode(info, data) {
			if err := s.mcEndpoint.WritePacket(seg); err != nil {
				if s.log != nil {
					s.log.Warnf("Send: multicast failed, disabling: %v", err)
				}
				s.dropMulticastLocked()
				break
			}
		}
	}

	s.snap.record(info, data)
	return true
}

// SetMulticast toggles the additive multicast distribution path. Enabling
// requires a MulticastGroup in the config. Disabling releases the group
// socket. Idempotent in both directions.
func (s *Sender) SetMulticast(enable bool) error {
	if s.state.get() != StateActive {
		return ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !enable {
		s.dropMulticastLocked()
		return nil
	}
	if s.mcEndpoint != nil {
		return nil
	}
	if s.mcGroup == "" {
		return ErrNoMulticastGroup
	}

	endpoint, err := transport.BindMulticast(transport.MulticastConfig{
		Address:  s.mcGroup,
		Loopback: s.mcLoopback,
		TTL:      s.mcTTL,
	}, transport.RoleSender)
	if err != nil {
		return err
	}

	encoder, err := frame.NewFragmentEncoder(s.encoder.MTU())
	if err != nil {
		endpoint.Close()
		return err
	}

	s.mcEndpoint = endpoint
	s.mcEncoder = encoder
	s.replaySnapshotLocked(s.mcEncoder, s.mcEndpoint)
	return nil
}

// GetMulticast reports whether the multicast path is currently enabled.
func (s *Sender) GetMulticast() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mcEndpoint != nil
}

// Close tears the session down. Safe to call repeatedly and from any
// goroutine; the OnClose callback fires at most once.
func (s *Sender) Close() error {
	if !s.state.advance(StateActive, StateClosing) &&
		!s.state.advance(StateConnecting, StateClosing) &&
		!s.state.advance(StateCreated, StateClosing) {
		return nil
	}

	s.mu.Lock()
	if s.endpoint != nil {
		s.endpoint.Close()
	}
	s.dropMulticastLocked()
	s.mu.Unlock()

	s.state.set(StateClosed)
	s.once.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}

// handlePeer runs when a Direct peer connects. The new peer missed the
// stream preamble, so the codec configuration and the latest keyframe are
// replayed before any further live buffers reach it.
func (s *Sender) handlePeer(addr net.Addr) {
	if s.log != nil {
		s.log.Infof("peer connected: %s", addr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaySnapshotLocked(s.encoder, s.endpoint)
}

func (s *Sender) replaySnapshotLocked(enc *frame.FragmentEncoder, ep transport.Endpoint) {
	for _, buf := range []*frame.Buffer{s.snap.videoConfig, s.snap.audioConfig, s.snap.keyframe} {
		if buf == nil {
			continue
		}
		for _, seg := range enc.Encode(buf.Info, buf.Data) {
			if err := ep.WritePacket(seg); err != nil {
				if s.log != nil {
					s.log.Warnf("snapshot replay failed: %v", err)
				}
				return
			}
		}
	}
}

func (s *Sender) dropMulticastLocked() {
	if s.mcEndpoint != nil {
		s.mcEndpoint.Close()
		s.mcEndpoint = nil
		s.mcEncoder = nil
	}
}

// record retains the buffers a late joiner needs. Data is copied because
// producers are free to reuse their buffers after Send returns.
func (sn *snapshot) record(info frame.BufferInfo, data []byte) {
	var slot **frame.Buffer
	switch {
	case info.Flags&frame.FlagConfig != 0 && info.Kind == frame.KindVideo:
		slot = &sn.videoConfig
	case info.Flags&frame.FlagConfig != 0 && info.Kind == frame.KindAudio:
		slot = &sn.audioConfig
	case info.Flags&frame.FlagKeyFrame != 0 && info.Kind == frame.KindVideo:
		slot = &sn.keyframe
	default:
		return
	}

	*slot = &frame.Buffer{Info: info, Data: append([]byte(nil), data...)}
	if slot == &sn.keyframe {
		return
	}
	// A new codec configuration invalidates any keyframe captured under the
	// previous one.
	if info.Kind == frame.KindVideo {
		sn.keyframe = nil
	}
}

// mtuOf resolves the session MTU, clamped to what the strategy can carry
// in one packet; the relay path tags every packet with the stream id.
func mtuOf(desc transport.Descriptor) int {
	mtu := desc.MTU
	if mtu <= 0 {
		mtu = transport.DefaultMTU
	}
	if max := transport.MaxMTU(desc.Strategy); mtu > max {
		mtu = max
	}
	return mtu
}

// streamPortFor derives the advertised port from the bound endpoint so
// that an ":0" descriptor address still yields the real listening port.
func streamPortFor(desc transport.Descriptor, ep transport.Endpoint) uint16 {
	if port := portOf(ep.LocalAddr()); port != 0 {
		return port
	}
	return portOfAddress(desc.Address)
}

func portOf(addr net.Addr) uint16 {
	if addr == nil {
		return 0
	}
	switch a := addr.(type) {
	case *net.TCPAddr:
		return uint16(a.Port)
	case *net.UDPAddr:
		return uint16(a.Port)
	}
	return portOfAddress(addr.String())
}

func portOfAddress(address string) uint16 {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return uint16(port)
}
