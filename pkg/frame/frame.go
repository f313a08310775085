// Package frame implements the wire framing for cast streams.
//
// Each logical media buffer is split into segments no larger than the
// session MTU. Every segment carries a fixed-size header with the buffer
// metadata, the total payload length, a per-stream sequence number, and the
// fragment's byte offset, so a receiver can reassemble buffers from an
// unordered, lossy packet flow. All multi-byte fields are big-endian.
package frame

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies the media type of a buffer.
type Kind uint8

const (
	// KindVideo marks an encoded video buffer.
	KindVideo Kind = 0

	// KindAudio marks an encoded audio buffer.
	KindAudio Kind = 1
)

// IsValid returns true for known kinds.
func (k Kind) IsValid() bool {
	return k == KindVideo || k == KindAudio
}

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Buffer flag bits. Producers attach them; this layer carries them unchanged.
const (
	// FlagKeyFrame marks a video keyframe.
	FlagKeyFrame uint32 = 1 << 0

	// FlagConfig marks out-of-band codec configuration data.
	FlagConfig uint32 = 1 << 1
)

// BufferInfo is the metadata accompanying every buffer across the wire.
// Consumers receive it exactly as the producer attached it.
type BufferInfo struct {
	Kind      Kind
	Flags     uint32
	Timestamp int64 // Producer-defined unit.
}

// Buffer is a fully reassembled logical buffer.
type Buffer struct {
	Info BufferInfo
	Data []byte
}

// HeaderSize is the fixed segment header size in bytes:
// kind(1) + flags(4) + timestamp(8) + length(4) + sequence(4) + offset(4).
const HeaderSize = 25

// MaxBufferSize bounds the declared length of a logical buffer. Reassembly
// sizes its allocation from the wire Length field before any payload
// arrives, so lengths above this bound are rejected as malformed rather
// than trusted.
const MaxBufferSize = 1 << 24

// Header is the per-segment wire header.
type Header struct {
	BufferInfo

	// Length is the total payload length of the logical buffer.
	Length uint32

	// Sequence is the per-stream buffer sequence number; all fragments of
	// one buffer share it.
	Sequence uint32

	// Offset is the byte offset of this fragment within the buffer.
	Offset uint32
}

// EncodeTo serializes the header into buf, which must be at least HeaderSize
// bytes long. Returns the number of bytes written.
func (h *Header) EncodeTo(buf []byte) int {
	buf[0] = byte(h.Kind)
	binary.BigEndian.PutUint32(buf[1:], h.Flags)
	binary.BigEndian.PutUint64(buf[5:], uint64(h.Timestamp))
	binary.BigEndian.PutUint32(buf[13:], h.Length)
	binary.BigEndian.PutUint32(buf[17:], h.Sequence)
	binary.BigEndian.PutUint32(buf[21:], h.Offset)
	return HeaderSize
}

// Decode parses a header from the start of data.
func (h *Header) Decode(data []byte) error {
	if len(data) < HeaderSize {
		return ErrMalformedFrame
	}

	h.Kind = Kind(data[0])
	if !h.Kind.IsValid() {
		return ErrMalformedFrame
	}

	h.Flags = binary.BigEndian.Uint32(data[1:])
	h.Timestamp = int64(binary.BigEndian.Uint64(data[5:]))
	h.Length = binary.BigEndian.Uint32(data[13:])
	h.Sequence = binary.BigEndian.Uint32(data[17:])
	h.Offset = binary.BigEndian.Uint32(data[21:])

	if h.Length > MaxBufferSize {
		return ErrMalformedFrame
	}

	// The fragment payload must fit inside the declared buffer.
	payload := len(data) - HeaderSize
	if uint64(h.Offset)+uint64(payload) > uint64(h.Length) {
		return ErrMalformedFrame
	}

	return nil
}
