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

	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/field"
)

// Region is a non-owning window onto a Buffer. The zero Region is invalid.
//
// Every accessor re-checks that the buffer generation is unchanged and that
// the window still lies within the buffer's size.
type Region struct {
	buf *Buffer
	off int
	n   int
	gen uint64
}

// Buffer returns the buffer the region indexes.
func (r Region) Buffer() *Buffer {
	return r.buf
}

// Offset returns the offset of the region in its buffer.
func (r Region) Offset() int {
	return r.off
}

// Len returns the length of the region.
func (r Region) Len() int {
	return r.n
}

// Valid reports whether the region may still be used.
func (r Region) Valid() bool {
	return r.check() == nil
}

func (r Region) check() error {
	if r.buf == nil {
		return fmt.Errorf("zero region: %w", packet.ErrInvalidatedView)
	}
	if r.gen != r.buf.gen {
		return fmt.Errorf("region created at generation %d, buffer at %d: %w", r.gen, r.buf.gen, packet.ErrInvalidatedView)
	}
	if r.off+r.n > r.buf.size {
		return fmt.Errorf("region [%d, %d) past buffer size %d: %w", r.off, r.off+r.n, r.buf.size, packet.ErrInvalidatedView)
	}
	return nil
}

// Bytes returns the bytes of the region. The slice aliases the buffer.
func (r Region) Bytes() ([]byte, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.buf.data[r.off : r.off+r.n : r.off+r.n], nil
}

// Tail returns the bytes from the start of the region to the end of the
// buffer, i.e. the header and everything it encapsulates.
func (r Region) Tail() ([]byte, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.buf.data[r.off:r.buf.size], nil
}

// Read reads the field d, relative to the region.
func (r Region) Read(d field.Descriptor) (uint64, error) {
	b, err := r.Bytes()
	if err != nil {
		return 0, err
	}
	return field.Read(b, d)
}

// Write writes v to the field d, relative to the region.
func (r Region) Write(d field.Descriptor, v uint64) error {
	b, err := r.Bytes()
	if err != nil {
		return err
	}
	return field.Write(b, d, v)
}

// ReadBytes returns n bytes at off within the region. The slice aliases the
// buffer.
func (r Region) ReadBytes(off, n int) ([]byte, error) {
	b, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	return field.ReadBytes(b, off, n)
}

// WriteBytes copies v to off within the region.
func (r Region) WriteBytes(off int, v []byte) error {
	b, err := r.Bytes()
	if err != nil {
		return err
	}
	return field.WriteBytes(b, off, v)
}
