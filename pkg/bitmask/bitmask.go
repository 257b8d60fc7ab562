// Copyright 2021 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bitmask provides fixed-size bit vectors used to select packets in a
// batch and to describe send/skip pacing patterns.
package bitmask

import (
	"fmt"
	"math/bits"
	"strings"
)

// Bitmask is a fixed-size vector of bits.
//
// Bit i lives in word i/64 at position i%64. Bits at or beyond Size in the
// last word are always zero.
type Bitmask struct {
	// size is the number of addressable bits.
	size int

	// numOnes is the number of set bits.
	numOnes int

	words []uint64
}

// New creates a Bitmask of size bits, all clear.
func New(size int) *Bitmask {
	if size < 0 {
		panic(fmt.Sprintf("bitmask: negative size %d", size))
	}
	return &Bitmask{
		size:  size,
		words: make([]uint64, (size+63)/64),
	}
}

// Parse creates a Bitmask from a string of '0' and '1' characters, bit 0
// first. Underscores and spaces are ignored so long patterns can be grouped.
func Parse(s string) (*Bitmask, error) {
	s = strings.NewReplacer("_", "", " ", "").Replace(s)
	if len(s) == 0 {
		return nil, fmt.Errorf("bitmask: empty pattern")
	}
	m := New(len(s))
	for i, c := range s {
		switch c {
		case '1':
			m.Set(i)
		case '0':
		default:
			return nil, fmt.Errorf("bitmask: invalid character %q at %d in %q", c, i, s)
		}
	}
	return m, nil
}

// Size returns the number of bits in the mask.
func (m *Bitmask) Size() int {
	return m.size
}

// Count returns the number of set bits.
func (m *Bitmask) Count() int {
	return m.numOnes
}

// IsEmpty reports whether no bit is set.
func (m *Bitmask) IsEmpty() bool {
	return m.numOnes == 0
}

func (m *Bitmask) index(i int) (int, uint64) {
	if i < 0 || i >= m.size {
		panic(fmt.Sprintf("bitmask: index %d out of range [0, %d)", i, m.size))
	}
	return i / 64, uint64(1) << (i % 64)
}

// Get reports whether bit i is set.
func (m *Bitmask) Get(i int) bool {
	w, mask := m.index(i)
	return m.words[w]&mask != 0
}

// Set sets bit i.
func (m *Bitmask) Set(i int) {
	w, mask := m.index(i)
	if m.words[w]&mask == 0 {
		m.words[w] |= mask
		m.numOnes++
	}
}

// Clear clears bit i.
func (m *Bitmask) Clear(i int) {
	w, mask := m.index(i)
	if m.words[w]&mask != 0 {
		m.words[w] &^= mask
		m.numOnes--
	}
}

// SetAll sets every bit.
func (m *Bitmask) SetAll() {
	m.SetN(m.size)
}

// ClearAll clears every bit.
func (m *Bitmask) ClearAll() {
	for i := range m.words {
		m.words[i] = 0
	}
	m.numOnes = 0
}

// SetN sets bits [0, n) and clears the rest. n is clamped to Size.
func (m *Bitmask) SetN(n int) {
	if n > m.size {
		n = m.size
	}
	if n < 0 {
		n = 0
	}
	full := n / 64
	for i := range m.words {
		switch {
		case i < full:
			m.words[i] = ^uint64(0)
		case i == full && n%64 != 0:
			m.words[i] = uint64(1)<<(n%64) - 1
		default:
			m.words[i] = 0
		}
	}
	m.numOnes = n
}

// trim clears the bits past size in the last word and recounts.
func (m *Bitmask) trim() {
	if r := m.size % 64; r != 0 {
		m.words[len(m.words)-1] &= uint64(1)<<r - 1
	}
	m.numOnes = 0
	for _, w := range m.words {
		m.numOnes += bits.OnesCount64(w)
	}
}

func (m *Bitmask) combine(o *Bitmask, op func(a, b uint64) uint64) {
	for i := range m.words {
		var w uint64
		if i < len(o.words) {
			w = o.words[i]
		}
		m.words[i] = op(m.words[i], w)
	}
	m.trim()
}

// And clears every bit that is not also set in o. Bits beyond o's size count
// as clear.
func (m *Bitmask) And(o *Bitmask) {
	m.combine(o, func(a, b uint64) uint64 { return a & b })
}

// Or sets every bit that is set in o.
func (m *Bitmask) Or(o *Bitmask) {
	m.combine(o, func(a, b uint64) uint64 { return a | b })
}

// Xor flips every bit that is set in o.
func (m *Bitmask) Xor(o *Bitmask) {
	m.combine(o, func(a, b uint64) uint64 { return a ^ b })
}

// Not flips every bit.
func (m *Bitmask) Not() {
	for i := range m.words {
		m.words[i] = ^m.words[i]
	}
	m.trim()
}

// Clone returns a copy of m.
func (m *Bitmask) Clone() *Bitmask {
	c := &Bitmask{size: m.size, numOnes: m.numOnes, words: make([]uint64, len(m.words))}
	copy(c.words, m.words)
	return c
}

// FirstOne returns the first set bit in [start, Size), or false if there is
// none.
func (m *Bitmask) FirstOne(start int) (int, bool) {
	if start < 0 {
		start = 0
	}
	if start >= m.size {
		return 0, false
	}
	i, nbit := start/64, uint(start%64)
	w := m.words[i] & (^uint64(0) << nbit)
	for {
		if w != 0 {
			return i*64 + bits.TrailingZeros64(w), true
		}
		i++
		if i == len(m.words) {
			return 0, false
		}
		w = m.words[i]
	}
}

// ToSlice returns the indexes of the set bits in ascending order. For
// example, a mask of [0, 1, 0, 1] returns [1, 3].
func (m *Bitmask) ToSlice() []int {
	s := make([]int, 0, m.numOnes)
	for i, w := range m.words {
		for w != 0 {
			s = append(s, i*64+bits.TrailingZeros64(w))
			w &= w - 1
		}
	}
	return s
}

// String returns the mask as '0'/'1' characters, bit 0 first.
func (m *Bitmask) String() string {
	var sb strings.Builder
	sb.Grow(m.size)
	for i := 0; i < m.size; i++ {
		if m.Get(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
