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

// Package batch operates on groups of packet buffers selected by a bitmask.
package batch

import (
	"fmt"

	"pktgen.dev/pktgen/pkg/bitmask"
	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/header"
	"pktgen.dev/pktgen/pkg/packet/stack"
)

// Batch is a group of buffers of a common size allocated from one pool.
type Batch struct {
	pool *buffer.Pool
	bufs []*buffer.Buffer
}

// New allocates n buffers of size bytes from pool.
func New(pool *buffer.Pool, n, size int) (*Batch, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative batch length %d", n)
	}
	b := &Batch{pool: pool, bufs: make([]*buffer.Buffer, 0, n)}
	for i := 0; i < n; i++ {
		buf, err := pool.Allocate(size)
		if err != nil {
			b.Release()
			return nil, err
		}
		if err := buf.SetSize(size); err != nil {
			pool.Release(buf)
			b.Release()
			return nil, err
		}
		b.bufs = append(b.bufs, buf)
	}
	return b, nil
}

// FromBuffers wraps bufs in a batch without a pool. Release is a no-op.
func FromBuffers(bufs ...*buffer.Buffer) *Batch {
	return &Batch{bufs: bufs}
}

// Len returns the number of buffers.
func (b *Batch) Len() int {
	return len(b.bufs)
}

// Buffer returns buffer i.
func (b *Batch) Buffer(i int) *buffer.Buffer {
	return b.bufs[i]
}

// Buffers returns the buffers. The slice must not be modified.
func (b *Batch) Buffers() []*buffer.Buffer {
	return b.bufs
}

// Select returns the buffers whose bit is set in m, in order.
func (b *Batch) Select(m *bitmask.Bitmask) []*buffer.Buffer {
	var out []*buffer.Buffer
	for _, i := range m.ToSlice() {
		if i >= len(b.bufs) {
			break
		}
		out = append(out, b.bufs[i])
	}
	return out
}

// Build lays out chain in every buffer, with args routed as for
// stack.BuildArgs. Each buffer gets its own copy of args.
func (b *Batch) Build(chain []header.Protocol, args header.Args) ([]*stack.Stack, error) {
	stacks := make([]*stack.Stack, len(b.bufs))
	for i, buf := range b.bufs {
		s, err := stack.BuildArgs(buf, chain, args.Clone())
		if err != nil {
			return nil, fmt.Errorf("buffer %d: %w", i, err)
		}
		stacks[i] = s
	}
	return stacks, nil
}

// Release returns every buffer to the pool and empties the batch.
func (b *Batch) Release() {
	if b.pool != nil {
		for _, buf := range b.bufs {
			b.pool.Release(buf)
		}
	}
	b.bufs = nil
}

// CheckIPv4Valid clears out and then sets bit i of out for every buffer i
// selected by in that carries a valid IPv4 header after its Ethernet header:
// ethertype 0x0800, at least 20 bytes, consistent lengths and a correct
// header checksum. Bits past the end of the batch or of out are ignored.
func (b *Batch) CheckIPv4Valid(in, out *bitmask.Bitmask) {
	out.ClearAll()
	for _, i := range in.ToSlice() {
		if i >= len(b.bufs) || i >= out.Size() {
			break
		}
		if IsIPv4Valid(b.bufs[i]) {
			out.Set(i)
		}
	}
}

// IsIPv4Valid reports whether buf carries a valid IPv4 header after its
// Ethernet header and any VLAN tags.
func IsIPv4Valid(buf *buffer.Buffer) bool {
	off := header.EthernetMinimumSize + buffer.VLANTagSize*len(buf.VLANs())
	eth, err := buf.Region(0, off)
	if err != nil {
		return false
	}
	if t, err := header.NewEthernet(eth).Type(); err != nil || t != packet.IPv4ProtocolNumber {
		return false
	}
	r, err := buf.Region(off, header.IPv4MinimumSize)
	if err != nil {
		return false
	}
	hlen, err := header.NewIPv4(r).HeaderLength()
	if err != nil || hlen < header.IPv4MinimumSize {
		return false
	}
	if r, err = buf.Region(off, hlen); err != nil {
		return false
	}
	ip := header.NewIPv4(r)
	if !ip.IsValid(buf.Size() - off) {
		return false
	}
	ok, err := ip.IsChecksumValid()
	return err == nil && ok
}
