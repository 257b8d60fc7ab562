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

package buffer

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
)

const (
	// This is log2(baseClassSize). It is used to find the pool for a
	// capacity by shifting the capacity right by this number.
	baseClassSizeLog2 = 6

	// baseClassSize is the capacity of buffers in the first class. Each
	// subsequent class holds buffers twice as large as the previous one.
	baseClassSize = 1 << baseClassSizeLog2 // 64

	// numClasses is the number of size classes.
	numClasses = 11

	// MaxPooledCapacity is the largest capacity that is pooled. Larger
	// buffers are allocated from the heap and left to the garbage collector.
	MaxPooledCapacity = baseClassSize << (numClasses - 1) // 64k
)

// Pool hands out packet buffers and takes them back after transmission.
// It is safe for concurrent use.
type Pool struct {
	classes [numClasses]sync.Pool

	allocated atomic.Uint64
	released  atomic.Uint64
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	p := &Pool{}
	for i := range p.classes {
		classSize := baseClassSize << i
		p.classes[i].New = func() any {
			return make([]byte, classSize)
		}
	}
	return p
}

// classIndex returns the class whose buffers hold at least capacity bytes.
//
// Precondition: 0 <= capacity <= MaxPooledCapacity.
func classIndex(capacity int) int {
	if capacity <= baseClassSize {
		return 0
	}
	return bits.Len(uint(capacity-1)) - baseClassSizeLog2
}

// Allocate returns a zeroed buffer of exactly capacity bytes and size 0.
func (p *Pool) Allocate(capacity int) (*Buffer, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("negative capacity %d", capacity)
	}
	p.allocated.Add(1)
	if capacity > MaxPooledCapacity {
		return &Buffer{data: make([]byte, capacity), pool: p}, nil
	}
	backing := p.classes[classIndex(capacity)].Get().([]byte)
	data := backing[:capacity]
	clear(data)
	return &Buffer{data: data, pool: p}, nil
}

// Release returns b to the pool. The buffer and every view of it must not be
// used afterwards.
func (p *Pool) Release(b *Buffer) {
	if b.pool != p {
		panic("buffer: released to a pool it was not allocated from")
	}
	if b.released {
		panic("buffer: released twice")
	}
	b.released = true
	b.invalidate()
	p.released.Add(1)
	if c := cap(b.data); c <= MaxPooledCapacity && c == baseClassSize<<classIndex(c) {
		p.classes[classIndex(c)].Put(b.data[:c])
	}
	b.data = nil
	b.size = 0
}

// Outstanding returns the number of allocated buffers not yet released.
func (p *Pool) Outstanding() uint64 {
	return p.allocated.Load() - p.released.Load()
}
