package crypto

// DefaultReplayWindow is the number of trailing sequence numbers tracked
const DefaultReplayWindow = 2048

const wordBits = 64

// ReplayWindow is a sliding bitmap of recently accepted sequence numbers.
// It is anchored at the highest accepted sequence; anything at or below
// last-size is rejected as too old. Sequence 0 is pre-marked as seen.
//
// Check and Accept are split so a packet is committed only after it has been
// authenticated. ReplayWindow is not safe for concurrent use.
type ReplayWindow struct {
	size   uint64
	last   uint64
	blocks []uint64
}

// NewReplayWindow creates a window tracking size sequence numbers, rounded
// up to a multiple of 64
func NewReplayWindow(size int) *ReplayWindow {
	if size <= 0 {
		size = DefaultReplayWindow
	}
	words := (size + wordBits - 1) / wordBits
	w := &ReplayWindow{
		size:   uint64(words * wordBits),
		blocks: make([]uint64, words+1),
	}
	w.Reset()
	return w
}

// Size returns the window width
func (w *ReplayWindow) Size() uint64 { return w.size }

// Last returns the highest accepted sequence number
func (w *ReplayWindow) Last() uint64 { return w.last }

// Reset forgets all history
func (w *ReplayWindow) Reset() {
	w.last = 0
	for i := range w.blocks {
		w.blocks[i] = 0
	}
	w.blocks[0] = 1
}

// Check returns nil if seq would be accepted, without modifying state
func (w *ReplayWindow) Check(seq uint64) error {
	if seq > w.last {
		return nil
	}
	if w.last-seq >= w.size {
		return ErrReplayed
	}
	idx, bit := w.position(seq)
	if w.blocks[idx]&bit != 0 {
		return ErrReplayed
	}
	return nil
}

// Accept commits seq. Must only be called after Check(seq) returned nil and
// the packet authenticated.
func (w *ReplayWindow) Accept(seq uint64) {
	if seq > w.last {
		current := w.last / wordBits
		next := seq / wordBits
		diff := next - current
		if diff > uint64(len(w.blocks)) {
			diff = uint64(len(w.blocks))
		}
		for i := uint64(1); i <= diff; i++ {
			w.blocks[(current+i)%uint64(len(w.blocks))] = 0
		}
		w.last = seq
	}
	idx, bit := w.position(seq)
	w.blocks[idx] |= bit
}

func (w *ReplayWindow) position(seq uint64) (int, uint64) {
	return int((seq / wordBits) % uint64(len(w.blocks))), 1 << (seq % wordBits)
}
