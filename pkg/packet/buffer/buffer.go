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

// Package buffer provides the packet buffers that header views and the stack
// builder operate on.
//
// A Buffer has a logical size (the bytes that make up the frame) and a fixed
// capacity. Views into a buffer are Regions: they record the buffer's
// generation when created, and any operation that moves bytes around (VLAN
// insertion or removal, Reset) bumps the generation so that stale views fail
// with packet.ErrInvalidatedView instead of silently aliasing the wrong
// bytes.
package buffer

import (
	"fmt"

	"pktgen.dev/pktgen/pkg/packet"
)

// Buffer is a packet buffer. It must not be used from two goroutines at once.
type Buffer struct {
	// data holds capacity bytes; data[:size] is the frame.
	data []byte
	size int

	// gen is bumped whenever existing byte offsets stop meaning what they
	// meant.
	gen uint64

	// pool is the pool the buffer is returned to, nil if unpooled.
	pool     *Pool
	released bool
}

// New allocates an unpooled buffer of the given capacity with size 0.
func New(capacity int) *Buffer {
	if capacity < 0 {
		panic(fmt.Sprintf("buffer: negative capacity %d", capacity))
	}
	return &Buffer{data: make([]byte, capacity)}
}

// FromBytes returns a buffer holding a copy of b, with size and capacity
// len(b).
func FromBytes(b []byte) *Buffer {
	buf := New(len(b))
	copy(buf.data, b)
	buf.size = len(b)
	return buf
}

// Capacity returns the number of allocated bytes.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Size returns the number of meaningful bytes.
func (b *Buffer) Size() int {
	return b.size
}

// SetSize sets the logical size of the buffer. Bytes exposed by growing keep
// whatever they held before. Views that extend past a reduced size become
// invalid.
func (b *Buffer) SetSize(n int) error {
	if n < 0 {
		return fmt.Errorf("size %d: %w", n, packet.ErrValueOutOfRange)
	}
	if n > len(b.data) {
		return fmt.Errorf("size %d > capacity %d: %w", n, len(b.data), packet.ErrSizeExceedsCapacity)
	}
	b.size = n
	return nil
}

// Bytes returns the frame bytes. The slice aliases the buffer and is only
// meaningful until the next call that changes the buffer's size or layout.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.size]
}

// Generation returns the current layout generation.
func (b *Buffer) Generation() uint64 {
	return b.gen
}

// Reset zeroes the buffer, sets its size to 0 and invalidates all views.
func (b *Buffer) Reset() {
	clear(b.data)
	b.size = 0
	b.gen++
}

// Region returns a view of n bytes at off. The region must lie within the
// current size.
func (b *Buffer) Region(off, n int) (Region, error) {
	if off < 0 || n < 0 || off+n > b.size {
		return Region{}, fmt.Errorf("region [%d, %d) in %d byte buffer: %w", off, off+n, b.size, packet.ErrBufferTooSmall)
	}
	return Region{buf: b, off: off, n: n, gen: b.gen}, nil
}

// invalidate bumps the generation after bytes at or past a layout change
// moved.
func (b *Buffer) invalidate() {
	b.gen++
}
