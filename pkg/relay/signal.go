// Package relay implements the stream forwarding server and the control
// protocol spoken between it and relay-strategy sessions.
//
// Every connection opens with a Hello signal naming the stream id and
// whether the peer publishes or subscribes. Publisher packets are wrapped
// with the stream id so the relay can route them; subscribers receive the
// raw payload, indistinguishable from a Direct stream.
package relay

import (
	"github.com/fxamacker/cbor/v2"
)

// Packet type prefixes on relay control connections. Data flowing from the
// relay to a subscriber carries no prefix; that direction is payload only.
const (
	// PacketSignal marks a CBOR-encoded control signal.
	PacketSignal byte = 0x00

	// PacketData marks a stream-id-wrapped media packet.
	PacketData byte = 0x01
)

// PeerKind distinguishes the two ends of a relayed stream.
type PeerKind uint8

const (
	// KindSubscriber consumes a stream by id.
	KindSubscriber PeerKind = 0

	// KindPublisher produces a stream under its id.
	KindPublisher PeerKind = 1
)

// SignalType enumerates the control signals.
type SignalType uint8

const (
	// SignalHello opens a connection, carrying the stream id and peer kind.
	SignalHello SignalType = iota

	// SignalPing is the relay's keepalive probe to publishers.
	SignalPing

	// SignalPong answers a ping.
	SignalPong
)

// Signal is a control message on a relay connection.
type Signal struct {
	Type SignalType `cbor:"t"`
	ID   string     `cbor:"i,omitempty"`
	Kind PeerKind   `cbor:"k,omitempty"`
}

// EncodeSignal serializes a signal with its packet type prefix.
func EncodeSignal(s Signal) ([]byte, error) {
	payload, err := cbor.Marshal(&s)
	if err != nil {
		return nil, err
	}
	return append([]byte{PacketSignal}, payload...), nil
}

// DecodeSignal parses a signal packet body (after the type prefix).
func DecodeSignal(data []byte) (Signal, error) {
	var s Signal
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Signal{}, ErrMalformedSignal
	}
	return s, nil
}

// MaxIDLen is the longest stream id a data packet can carry; the wrap
// format stores the id length in a single byte.
const MaxIDLen = 255

// StreamOverhead is the number of bytes WrapStream adds to a payload
// carrying an id of the given length.
func StreamOverhead(idLen int) int {
	return 2 + idLen
}

// WrapStream tags a payload with its stream id for relay routing:
// [type][idlen][id][payload].
func WrapStream(id string, payload []byte) []byte {
	buf := make([]byte, 0, 2+len(id)+len(payload))
	buf = append(buf, PacketData, byte(len(id)))
	buf = append(buf, id...)
	buf = append(buf, payload...)
	return buf
}

// UnwrapStream splits a data packet body (after the type prefix) into its
// stream id and payload.
func UnwrapStream(data []byte) (string, []byte, error) {
	if len(data) < 1 {
		return "", nil, ErrMalformedPacket
	}
	n := int(data[0])
	if n == 0 || 1+n > len(data) {
		return "", nil, ErrMalformedPacket
	}
	return string(data[1 : 1+n]), data[1+n:], nil
}
