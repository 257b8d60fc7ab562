// Copyright 2026 The gVisor Authors.
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

// Package field encodes and decodes big-endian header fields at bit
// granularity inside a byte slice.
package field

import (
	"fmt"

	"pktgen.dev/pktgen/pkg/packet"
)

// MaxWidth is the widest field, in bits, that Read and Write support.
const MaxWidth = 64

// Descriptor describes where a field lives inside a header.
//
// BitOffset counts from the most significant bit of the byte at Offset, so a
// nibble in the high half of byte 0 is {Offset: 0, BitOffset: 0, Width: 4}.
type Descriptor struct {
	// Offset is the byte offset of the first byte holding the field.
	Offset int

	// BitOffset is the position of the field's most significant bit within
	// the first byte, 0 being the MSB.
	BitOffset uint

	// Width is the field width in bits.
	Width uint
}

// Bits returns the descriptor of a sub-byte or bit-spanning field.
func Bits(offset int, bitOffset, width uint) Descriptor {
	return Descriptor{Offset: offset, BitOffset: bitOffset, Width: width}
}

// Uint8 returns the descriptor of a byte-aligned 8-bit field.
func Uint8(offset int) Descriptor { return Descriptor{Offset: offset, Width: 8} }

// Uint16 returns the descriptor of a byte-aligned 16-bit field.
func Uint16(offset int) Descriptor { return Descriptor{Offset: offset, Width: 16} }

// Uint32 returns the descriptor of a byte-aligned 32-bit field.
func Uint32(offset int) Descriptor { return Descriptor{Offset: offset, Width: 32} }

// Uint64 returns the descriptor of a byte-aligned 64-bit field.
func Uint64(offset int) Descriptor { return Descriptor{Offset: offset, Width: 64} }

// Len returns the number of bytes the field touches.
func (d Descriptor) Len() int {
	return int((d.BitOffset + d.Width + 7) / 8)
}

// End returns the offset one past the last byte the field touches.
func (d Descriptor) End() int {
	return d.Offset + d.Len()
}

// Max returns the largest value that fits in the field.
func (d Descriptor) Max() uint64 {
	if d.Width >= 64 {
		return ^uint64(0)
	}
	return 1<<d.Width - 1
}

// Fits reports whether v can be stored in the field.
func (d Descriptor) Fits(v uint64) bool {
	return v <= d.Max()
}

func (d Descriptor) check(b []byte) error {
	if d.Width == 0 || d.Width > MaxWidth || d.BitOffset > 7 || d.Offset < 0 {
		return fmt.Errorf("descriptor %+v: %w", d, packet.ErrOutOfBounds)
	}
	// A 64-bit field with a non-zero bit offset spans nine bytes, which
	// does not fit in the accumulator.
	if d.Len() > 8 {
		return fmt.Errorf("descriptor %+v spans %d bytes: %w", d, d.Len(), packet.ErrOutOfBounds)
	}
	if d.End() > len(b) {
		return fmt.Errorf("field [%d, %d) in %d byte buffer: %w", d.Offset, d.End(), len(b), packet.ErrOutOfBounds)
	}
	return nil
}

// shift is the number of low-order bits that follow the field in the last
// byte it touches.
func (d Descriptor) shift() uint {
	return uint(d.Len())*8 - d.BitOffset - d.Width
}

// Read returns the value of the field described by d.
func Read(b []byte, d Descriptor) (uint64, error) {
	if err := d.check(b); err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b[d.Offset:d.End()] {
		v = v<<8 | uint64(c)
	}
	return (v >> d.shift()) & d.Max(), nil
}

// Write stores v in the field described by d. Bits outside the field are
// preserved, and nothing is written if v does not fit.
func Write(b []byte, d Descriptor, v uint64) error {
	if err := d.check(b); err != nil {
		return err
	}
	if !d.Fits(v) {
		return fmt.Errorf("%d does not fit in %d bits: %w", v, d.Width, packet.ErrValueOutOfRange)
	}
	s := d.shift()
	mask := d.Max() << s
	v <<= s
	n := d.Len()
	for i := n - 1; i >= 0; i-- {
		m := byte(mask)
		c := &b[d.Offset+i]
		*c = *c&^m | byte(v)&m
		mask >>= 8
		v >>= 8
	}
	return nil
}

// ReadBytes returns the n bytes starting at off. The returned slice aliases
// b.
func ReadBytes(b []byte, off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(b) {
		return nil, fmt.Errorf("bytes [%d, %d) in %d byte buffer: %w", off, off+n, len(b), packet.ErrOutOfBounds)
	}
	return b[off : off+n : off+n], nil
}

// WriteBytes copies v into b at off.
func WriteBytes(b []byte, off int, v []byte) error {
	if off < 0 || off+len(v) > len(b) {
		return fmt.Errorf("bytes [%d, %d) in %d byte buffer: %w", off, off+len(v), len(b), packet.ErrOutOfBounds)
	}
	copy(b[off:], v)
	return nil
}
