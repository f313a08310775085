package frame

// DefaultReorderWindow is how many buffer sequence numbers an incomplete
// frame may lag behind the newest seen sequence before it is discarded.
// Freshness beats completeness on a LAN, so lost fragments are never
// retried; the frame is simply dropped.
const DefaultReorderWindow = 8

type partial struct {
	info BufferInfo
	data []byte
	// offsets maps fragment offset to payload length. Completion is judged
	// by summing payload bytes, which is only sound while accepted
	// fragments cover disjoint ranges.
	offsets map[uint32]int
	got     int
}

// overlaps reports whether a fragment at offset with n payload bytes
// intersects any fragment already accepted.
func (p *partial) overlaps(offset uint32, n int) bool {
	for off, ln := range p.offsets {
		if offset < off+uint32(ln) && off < offset+uint32(n) {
			return true
		}
	}
	return false
}

// Assembler reassembles logical buffers from wire segments. Segments may
// arrive out of order or not at all; complete buffers are returned as soon
// as their last fragment lands. Not safe for concurrent use; the receiver
// session's read loop owns it.
type Assembler struct {
	window    uint32
	pending   map[uint32]*partial
	delivered map[uint32]struct{}
	maxSeen   uint32
	seen      bool
}

// NewAssembler creates an assembler with the default reorder window.
func NewAssembler() *Assembler {
	return &Assembler{
		window:    DefaultReorderWindow,
		pending:   make(map[uint32]*partial),
		delivered: make(map[uint32]struct{}),
	}
}

// Push consumes one wire segment. It returns a non-nil Buffer when the
// segment completes a logical buffer, nil when more fragments are needed or
// the segment was stale or duplicate, and ErrMalformedFrame for segments
// that cannot be parsed. Malformed and stale segments are recoverable: the
// caller logs, drops, and keeps reading.
func (a *Assembler) Push(segment []byte) (*Buffer, error) {
	var h Header
	if err := h.Decode(segment); err != nil {
		return nil, err
	}

	if !a.seen || seqNewer(h.Sequence, a.maxSeen) {
		a.maxSeen = h.Sequence
		a.seen = true
		a.evict()
	} else if seqNewer(a.maxSeen, h.Sequence) && a.maxSeen-h.Sequence > a.window {
		// Beyond the reorder window; too old to be worth assembling.
		return nil, nil
	}

	if _, done := a.delivered[h.Sequence]; done {
		return nil, nil
	}

	payload := segment[HeaderSize:]
	if len(payload) == 0 {
		return nil, nil
	}

	p, ok := a.pending[h.Sequence]
	if !ok {
		p = &partial{
			info:    h.BufferInfo,
			data:    make([]byte, h.Length),
			offsets: make(map[uint32]int),
		}
		a.pending[h.Sequence] = p
	}

	// Duplicates and overlapping fragments are dropped alike: the bytes
	// they carry are either already accounted for or would hide a hole.
	if p.overlaps(h.Offset, len(payload)) {
		return nil, nil
	}
	p.offsets[h.Offset] = len(payload)

	copy(p.data[h.Offset:], payload)
	p.got += len(payload)

	if p.got < len(p.data) {
		return nil, nil
	}

	delete(a.pending, h.Sequence)
	a.delivered[h.Sequence] = struct{}{}
	return &Buffer{Info: p.info, Data: p.data}, nil
}

// evict discards incomplete frames and delivery records that fell out of
// the reorder window.
func (a *Assembler) evict() {
	for seq := range a.pending {
		if seqNewer(a.maxSeen, seq) && a.maxSeen-seq > a.window {
			delete(a.pending, seq)
		}
	}
	for seq := range a.delivered {
		if seqNewer(a.maxSeen, seq) && a.maxSeen-seq > a.window {
			delete(a.delivered, seq)
		}
	}
}

// seqNewer reports whether a is ahead of b in wraparound sequence order.
func seqNewer(a, b uint32) bool {
	return a != b && a-b < 1<<31
}
