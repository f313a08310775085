package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/lancast/lancast/pkg/frame"
	"github.com/lancast/lancast/pkg/transport"
)

// ReceiverConfig configures a receiver session.
type ReceiverConfig struct {
	// ID is the stream UID to attach to, as advertised by the sender.
	// Required for the relay strategy.
	ID string

	// Descriptor selects the transport strategy and address to attach to.
	Descriptor transport.Descriptor

	// Sink consumes the reassembled buffers. Required.
	Sink Sink

	// ConnectTimeout bounds connect retries. Zero means
	// transport.DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Endpoint overrides transport binding, for tests.
	Endpoint transport.Endpoint

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Receiver is the consuming half of a cast stream. It owns a read loop that
// reassembles segments and hands complete buffers to the sink.
type Receiver struct {
	id       string
	endpoint transport.Endpoint
	sink     Sink
	state    stateMachine
	log      logging.LeveledLogger

	closed atomic.Bool

	// dispatching is set around every sink callback. Close consults it to
	// decide whether joining the read loop is safe: a sink that closes its
	// own session would otherwise deadlock waiting for itself.
	dispatching atomic.Bool

	once sync.Once
	wg   sync.WaitGroup
}

// NewReceiver creates a receiver session, connects its transport and starts
// the read loop. Buffers begin flowing to the sink before this returns.
func NewReceiver(config ReceiverConfig) (*Receiver, error) {
	if config.Sink == nil {
		return nil, ErrNoSink
	}

	r := &Receiver{
		id:   config.ID,
		sink: config.Sink,
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("receiver")
	}

	r.state.set(StateConnecting)
	r.endpoint = config.Endpoint
	if r.endpoint == nil {
		var err error
		r.endpoint, err = transport.Bind(config.Descriptor, transport.RoleReceiver, transport.BindConfig{
			ConnectTimeout: config.ConnectTimeout,
			ID:             config.ID,
			LoggerFactory:  config.LoggerFactory,
		})
		if err != nil {
			r.state.set(StateClosed)
			return nil, err
		}
	}

	r.state.set(StateActive)
	r.wg.Add(1)
	go r.readLoop()
	return r, nil
}

// ID returns the stream UID this receiver is attached to.
func (r *Receiver) ID() string {
	return r.id
}

// State returns the current lifecycle state.
func (r *Receiver) State() State {
	return r.state.get()
}

// Close tears the session down. Safe to call repeatedly, from any
// goroutine, and from inside the sink's own callbacks; OnClose fires at
// most once per session.
func (r *Receiver) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.state.set(StateClosing)
	r.endpoint.Close()

	// With a sink dispatch in flight this may be the read loop's own
	// goroutine calling back in; joining it would deadlock. Leave the final
	// teardown to the loop, which exits once the callback returns, so
	// OnClose never fires while OnBuffer is still executing.
	if r.dispatching.Load() {
		return nil
	}

	r.wg.Wait()
	r.state.set(StateClosed)
	r.once.Do(r.sink.OnClose)
	return nil
}

func (r *Receiver) readLoop() {
	defer r.wg.Done()
	defer r.finish()

	asm := frame.NewAssembler()
	for {
		pkt, err := r.endpoint.ReadPacket()
		if err != nil {
			if !errors.Is(err, transport.ErrClosed) && r.log != nil {
				r.log.Warnf("readLoop: transport failed: %v", err)
			}
			return
		}

		buf, err := asm.Push(pkt)
		if err != nil {
			if r.log != nil {
				r.log.Debugf("readLoop: dropping malformed segment: %v", err)
			}
			continue
		}
		if buf == nil {
			continue
		}

		// Nothing reaches the sink after Close has been observed.
		if r.closed.Load() {
			return
		}

		r.dispatching.Store(true)
		ok := r.sink.OnBuffer(buf.Info, buf.Data)
		r.dispatching.Store(false)
		if !ok {
			return
		}
	}
}

// finish runs when the read loop exits for any reason and performs the
// teardown an external Close would have done.
func (r *Receiver) finish() {
	r.closed.Store(true)
	r.endpoint.Close()
	r.state.set(StateClosed)
	r.once.Do(r.sink.OnClose)
}
