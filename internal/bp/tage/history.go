package tage

// globalHistory is a ring buffer of branch outcome bits, newest at position 0.
type globalHistory struct {
	bits []uint8
	ptr  int
	mask int
}

func newGlobalHistory(maxLen int) *globalHistory {
	size := 1
	for size < maxLen+2 {
		size <<= 1
	}
	return &globalHistory{bits: make([]uint8, size), mask: size - 1}
}

func (h *globalHistory) push(taken bool) {
	h.ptr = (h.ptr - 1) & h.mask
	h.bits[h.ptr] = b2u(taken)
}

// at returns the bit pushed i updates ago.
func (h *globalHistory) at(i int) uint32 {
	return uint32(h.bits[(h.ptr+i)&h.mask])
}

// foldedHistory compresses the newest origLen history bits into compLen bits.
type foldedHistory struct {
	comp     uint32
	compLen  int
	origLen  int
	outPoint int
}

func newFoldedHistory(origLen, compLen int) foldedHistory {
	return foldedHistory{compLen: compLen, origLen: origLen, outPoint: origLen % compLen}
}

// update must run right after the ring buffer received its newest bit.
func (f *foldedHistory) update(h *globalHistory) {
	f.comp = (f.comp << 1) ^ h.at(0)
	f.comp ^= h.at(f.origLen) << f.outPoint
	f.comp ^= f.comp >> f.compLen
	f.comp &= (1 << f.compLen) - 1
}

func b2u(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// satUpdate moves a signed counter of the given width towards the outcome.
func satUpdate(ctr int8, taken bool, bits int) int8 {
	hi := int8(1<<(bits-1)) - 1
	lo := -int8(1 << (bits - 1))
	if taken {
		if ctr < hi {
			ctr++
		}
	} else if ctr > lo {
		ctr--
	}
	return ctr
}
