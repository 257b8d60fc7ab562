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

package field

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pktgen.dev/pktgen/pkg/packet"
)

func TestReadWriteRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		d    Descriptor
		v    uint64
		want []byte
	}{
		{"HighNibble", Bits(0, 0, 4), 0x4, []byte{0x40, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"LowNibble", Bits(0, 4, 4), 0x5, []byte{0x05, 0, 0, 0, 0, 0, 0, 0, 0}},
		{"SingleBit", Bits(1, 6, 1), 1, []byte{0, 0x02, 0, 0, 0, 0, 0, 0, 0}},
		{"SpanningTwoBytes", Bits(0, 3, 13), 0x1abc, []byte{0x1a, 0xbc, 0, 0, 0, 0, 0, 0, 0}},
		{"FlowLabel", Bits(1, 4, 20), 0xfedcb, []byte{0, 0x0f, 0xed, 0xcb, 0, 0, 0, 0, 0}},
		{"Uint16", Uint16(2), 0xbeef, []byte{0, 0, 0xbe, 0xef, 0, 0, 0, 0, 0}},
		{"Uint32", Uint32(1), 0xdeadbeef, []byte{0, 0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0}},
		{"Uint64", Uint64(1), 0x0102030405060708, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := make([]byte, 9)
			if err := Write(b, tc.d, tc.v); err != nil {
				t.Fatalf("Write(_, %+v, %#x): %v", tc.d, tc.v, err)
			}
			if diff := cmp.Diff(tc.want, b); diff != "" {
				t.Errorf("buffer mismatch (-want +got):\n%s", diff)
			}
			got, err := Read(b, tc.d)
			if err != nil {
				t.Fatalf("Read(_, %+v): %v", tc.d, err)
			}
			if got != tc.v {
				t.Errorf("Read(_, %+v) = %#x, want %#x", tc.d, got, tc.v)
			}
		})
	}
}

func TestWritePreservesSiblingBits(t *testing.T) {
	b := []byte{0xff, 0xff}
	if err := Write(b, Bits(0, 3, 7), 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if diff := cmp.Diff([]byte{0xe0, 0x3f}, b); diff != "" {
		t.Errorf("buffer mismatch (-want +got):\n%s", diff)
	}
}

func TestEveryValueOfNarrowFields(t *testing.T) {
	for width := uint(1); width <= 12; width++ {
		for bitOffset := uint(0); bitOffset < 8; bitOffset++ {
			d := Bits(1, bitOffset, width)
			b := []byte{0xa5, 0x5a, 0xa5, 0x5a, 0xa5}
			orig := append([]byte(nil), b...)
			for v := uint64(0); v <= d.Max(); v++ {
				if err := Write(b, d, v); err != nil {
					t.Fatalf("Write(_, %+v, %d): %v", d, v, err)
				}
				got, err := Read(b, d)
				if err != nil || got != v {
					t.Fatalf("Read(_, %+v) = %d, %v; want %d, nil", d, got, err, v)
				}
			}
			if err := Write(b, d, d.Max()+1); !errors.Is(err, packet.ErrValueOutOfRange) {
				t.Fatalf("Write(_, %+v, %d) = %v, want ErrValueOutOfRange", d, d.Max()+1, err)
			}
			if b[0] != orig[0] || b[4] != orig[4] {
				t.Fatalf("bytes outside the field changed: %x -> %x", orig, b)
			}
		}
	}
}

func TestOutOfRangeLeavesBufferUntouched(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	if err := Write(b, Uint8(1), 256); !errors.Is(err, packet.ErrValueOutOfRange) {
		t.Fatalf("Write = %v, want ErrValueOutOfRange", err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 4}, b); diff != "" {
		t.Errorf("buffer changed (-want +got):\n%s", diff)
	}
}

func TestOutOfBounds(t *testing.T) {
	b := make([]byte, 4)
	for _, d := range []Descriptor{
		Uint32(1),
		Uint16(3),
		Bits(3, 4, 8),
		Bits(0, 8, 1),
		Bits(0, 1, 64),
		{Offset: -1, Width: 8},
		{Offset: 0, Width: 0},
	} {
		if _, err := Read(b, d); !errors.Is(err, packet.ErrOutOfBounds) {
			t.Errorf("Read(_, %+v) = %v, want ErrOutOfBounds", d, err)
		}
		if err := Write(b, d, 0); !errors.Is(err, packet.ErrOutOfBounds) {
			t.Errorf("Write(_, %+v) = %v, want ErrOutOfBounds", d, err)
		}
	}
	if _, err := ReadBytes(b, 2, 3); !errors.Is(err, packet.ErrOutOfBounds) {
		t.Errorf("ReadBytes = %v, want ErrOutOfBounds", err)
	}
	if err := WriteBytes(b, 3, []byte{1, 2}); !errors.Is(err, packet.ErrOutOfBounds) {
		t.Errorf("WriteBytes = %v, want ErrOutOfBounds", err)
	}
}
