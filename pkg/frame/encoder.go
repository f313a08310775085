package frame

// FragmentEncoder splits logical buffers into MTU-bounded wire segments.
// It keeps the per-stream sequence counter, so one encoder instance belongs
// to exactly one outgoing stream. Not safe for concurrent use; the sender
// session serializes access.
type FragmentEncoder struct {
	mtu      int
	sequence uint32
}

// NewFragmentEncoder creates an encoder producing segments of at most mtu
// bytes. The MTU is fixed for the encoder's lifetime.
func NewFragmentEncoder(mtu int) (*FragmentEncoder, error) {
	if mtu <= HeaderSize {
		return nil, ErrInvalidMTU
	}
	return &FragmentEncoder{mtu: mtu}, nil
}

// MTU returns the configured segment size bound.
func (e *FragmentEncoder) MTU() int {
	return e.mtu
}

// Encode frames one logical buffer into segments. A buffer of exactly
// mtu-HeaderSize bytes yields one segment; one byte more yields two. Empty
// buffers and buffers above MaxBufferSize yield no segments; receivers
// would refuse the latter anyway. The sequence number advances once per
// buffer.
func (e *FragmentEncoder) Encode(info BufferInfo, data []byte) [][]byte {
	if len(data) == 0 || len(data) > MaxBufferSize {
		return nil
	}

	maxPayload := e.mtu - HeaderSize
	segments := make([][]byte, 0, (len(data)+maxPayload-1)/maxPayload)

	h := Header{
		BufferInfo: info,
		Length:     uint32(len(data)),
		Sequence:   e.sequence,
	}

	for offset := 0; offset < len(data); offset += maxPayload {
		end := offset + maxPayload
		if end > len(data) {
			end = len(data)
		}

		h.Offset = uint32(offset)
		seg := make([]byte, HeaderSize+end-offset)
		h.EncodeTo(seg)
		copy(seg[HeaderSize:], data[offset:end])
		segments = append(segments, seg)
	}

	e.sequence++
	return segments
}
