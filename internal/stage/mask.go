package stage

import "math/bits"

// ReadyMask is a bit set over player slots used by the "everyone has acted" predicate.
type ReadyMask struct {
	words []uint64
}

func (m *ReadyMask) Set(pid PlayerID) {
	i, b := int(pid)/64, uint(pid)%64
	for len(m.words) <= i {
		m.words = append(m.words, 0)
	}
	m.words[i] |= 1 << b
}

func (m *ReadyMask) Unset(pid PlayerID) {
	i, b := int(pid)/64, uint(pid)%64
	if i < len(m.words) {
		m.words[i] &^= 1 << b
	}
}

func (m *ReadyMask) Has(pid PlayerID) bool {
	i, b := int(pid)/64, uint(pid)%64
	return pid >= 0 && i < len(m.words) && m.words[i]&(1<<b) != 0
}

func (m *ReadyMask) Clear() {
	for i := range m.words {
		m.words[i] = 0
	}
}

func (m *ReadyMask) Count() int {
	n := 0
	for _, w := range m.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Covers reports whether every Active slot of host is set. An empty active set is never
// covered, so a stage whose players are all hooked waits for its timer instead.
func (m *ReadyMask) Covers(host Host) bool {
	active := 0
	for pid := PlayerID(0); int(pid) < host.PlayerCount(); pid++ {
		if host.PlayerState(pid) != Active {
			continue
		}
		active++
		if !m.Has(pid) {
			return false
		}
	}
	return active > 0
}
