package lancast

import "sync"

// Handles pack a 32-bit slot index (plus one, so zero is never valid) in
// the low word and a per-slot generation counter in the high word. Release
// bumps the generation, so a stale handle can never reach a slot that was
// reused for a newer object.

type slot[T any] struct {
	gen  uint32
	val  T
	live bool
}

type handleTable[T any] struct {
	mu    sync.Mutex
	slots []slot[T]
	free  []uint32
}

func (t *handleTable[T]) put(v T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot[T]{})
		idx = uint32(len(t.slots) - 1)
	}

	s := &t.slots[idx]
	s.val = v
	s.live = true
	return uint64(s.gen)<<32 | uint64(idx+1)
}

func (t *handleTable[T]) get(h uint64) (T, bool) {
	var zero T
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.slot(h)
	if s == nil {
		return zero, false
	}
	return s.val, true
}

// take removes the object and invalidates the handle.
func (t *handleTable[T]) take(h uint64) (T, bool) {
	var zero T
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.slot(h)
	if s == nil {
		return zero, false
	}

	v := s.val
	s.val = zero
	s.live = false
	s.gen++
	t.free = append(t.free, uint32(h&0xFFFFFFFF)-1)
	return v, true
}

func (t *handleTable[T]) slot(h uint64) *slot[T] {
	idx := uint32(h & 0xFFFFFFFF)
	if idx == 0 || int(idx) > len(t.slots) {
		return nil
	}
	s := &t.slots[idx-1]
	if !s.live || s.gen != uint32(h>>32) {
		return nil
	}
	return s
}
