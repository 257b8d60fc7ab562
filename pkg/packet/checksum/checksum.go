// Copyright 2018 The gVisor Authors.
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

// Package checksum implements the Internet checksum defined in RFC 1071.
package checksum

import (
	"encoding/binary"
)

// Size is the size of a checksum in bytes.
const Size = 2

// Put stores xsum in b in network byte order.
func Put(b []byte, xsum uint16) {
	binary.BigEndian.PutUint16(b, xsum)
}

// fold reduces a wide ones'-complement accumulator to 16 bits.
func fold(v uint64) uint16 {
	v = (v >> 32) + (v & 0xffffffff)
	v = (v >> 32) + (v & 0xffffffff)
	v = (v >> 16) + (v & 0xffff)
	v = (v >> 16) + (v & 0xffff)
	return uint16(v)
}

// sum adds buf to initial as a sequence of big-endian 16-bit words. If odd is
// set, the first byte of buf is the low half of a word started by the
// previous call. It returns the folded sum and whether buf left a dangling
// high byte.
func sum(buf []byte, odd bool, initial uint16) (uint16, bool) {
	v := uint64(initial)
	if odd && len(buf) > 0 {
		v += uint64(buf[0])
		buf = buf[1:]
	}
	// Eight bytes at a time: the four words of a big-endian uint64 are
	// summed by splitting it into two 32-bit halves, which is exact in
	// ones'-complement arithmetic once folded.
	for len(buf) >= 8 {
		w := binary.BigEndian.Uint64(buf)
		v += w >> 32
		v += w & 0xffffffff
		buf = buf[8:]
		if v >= 1<<62 {
			v = uint64(fold(v))
		}
	}
	for len(buf) >= 2 {
		v += uint64(binary.BigEndian.Uint16(buf))
		buf = buf[2:]
	}
	odd = len(buf) == 1
	if odd {
		v += uint64(buf[0]) << 8
	}
	return fold(v), odd
}

// Checksum calculates the checksum (as defined in RFC 1071) of the bytes in
// buf, starting from initial. The result is not complemented.
//
// The initial checksum must have been computed on an even number of bytes.
func Checksum(buf []byte, initial uint16) uint16 {
	s, _ := sum(buf, false, initial)
	return s
}

// Combine adds two partial checksums, propagating the carry.
//
// Checksum a must have been computed on an even number of bytes.
func Combine(a, b uint16) uint16 {
	v := uint32(a) + uint32(b)
	return uint16(v + v>>16)
}

// Update returns the checksum xsum adjusted for a 16-bit word changing from
// old to new, per RFC 1624 (HC' = ~(~HC + ~m + m')). xsum is the complemented
// value stored in the header.
func Update(xsum, old, new uint16) uint16 {
	return ^Combine(Combine(^xsum, ^old), new)
}

// Checksumer calculates a checksum over data added in pieces of any length.
type Checksumer struct {
	sum uint16
	odd bool
}

// Add adds b to the checksum.
func (c *Checksumer) Add(b []byte) {
	if len(b) > 0 {
		c.sum, c.odd = sum(b, c.odd, c.sum)
	}
}

// Checksum returns the checksum of the data added so far.
func (c *Checksumer) Checksum() uint16 {
	return c.sum
}

// PseudoHeader returns the partial checksum of an IPv4 or IPv6
// pseudo-header: source and destination addresses, protocol number and
// upper-layer length.
func PseudoHeader(protocol uint8, src, dst []byte, length uint32) uint16 {
	xsum := Checksum(src, 0)
	xsum = Checksum(dst, xsum)
	var tail [8]byte
	binary.BigEndian.PutUint32(tail[0:], length)
	tail[7] = protocol
	// The IPv6 layout (32-bit length, 24 zero bits, next header) sums to
	// the same value as the IPv4 one for lengths below 64KiB.
	return Checksum(tail[:], xsum)
}
