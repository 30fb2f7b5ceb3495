package graph

import "math/bits"

// bitset is a fixed-size set of small non-negative integers.
type bitset []uint64

func newBitset(n int) bitset {
	return make(bitset, (n+63)/64)
}

func (s bitset) set(i int) {
	s[i/64] |= 1 << (uint(i) % 64)
}

func (s bitset) has(i int) bool {
	if i < 0 || i/64 >= len(s) {
		return false
	}
	return s[i/64]&(1<<(uint(i)%64)) != 0
}

func (s bitset) union(o bitset) {
	for i := range o {
		s[i] |= o[i]
	}
}

func (s bitset) intersects(o bitset) bool {
	for i := range s {
		if i < len(o) && s[i]&o[i] != 0 {
			return true
		}
	}
	return false
}

// members returns set elements in ascending order.
func (s bitset) members() []int {
	var out []int
	for w, word := range s {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			out = append(out, w*64+b)
			word &^= 1 << uint(b)
		}
	}
	return out
}
