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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/field"
)

func TestSetSize(t *testing.T) {
	b := New(64)
	if err := b.SetSize(64); err != nil {
		t.Fatalf("SetSize(64): %v", err)
	}
	if err := b.SetSize(65); !errors.Is(err, packet.ErrSizeExceedsCapacity) {
		t.Fatalf("SetSize(65) = %v, want ErrSizeExceedsCapacity", err)
	}
	if got := b.Size(); got != 64 {
		t.Errorf("Size() = %d after failed SetSize, want 64", got)
	}
}

func TestRegionInvalidatedByShrink(t *testing.T) {
	b := New(64)
	if err := b.SetSize(60); err != nil {
		t.Fatalf("SetSize: %v", err)
	}
	r, err := b.Region(40, 20)
	if err != nil {
		t.Fatalf("Region: %v", err)
	}
	if err := r.Write(field.Uint16(0), 0xabcd); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := b.SetSize(50); err != nil {
		t.Fatalf("SetSize: %v", err)
	}
	if _, err := r.Read(field.Uint16(0)); !errors.Is(err, packet.ErrInvalidatedView) {
		t.Fatalf("Read after shrink = %v, want ErrInvalidatedView", err)
	}
	// Growing back makes the window valid again: no bytes moved.
	if err := b.SetSize(60); err != nil {
		t.Fatalf("SetSize: %v", err)
	}
	if v, err := r.Read(field.Uint16(0)); err != nil || v != 0xabcd {
		t.Fatalf("Read = %#x, %v, want 0xabcd, nil", v, err)
	}
}

func TestRegionOutsideSize(t *testing.T) {
	b := New(64)
	b.SetSize(10)
	if _, err := b.Region(0, 14); !errors.Is(err, packet.ErrBufferTooSmall) {
		t.Errorf("Region(0, 14) = %v, want ErrBufferTooSmall", err)
	}
	var zero Region
	if _, err := zero.Bytes(); !errors.Is(err, packet.ErrInvalidatedView) {
		t.Errorf("zero Region.Bytes() = %v, want ErrInvalidatedView", err)
	}
}

func frame(n int) *Buffer {
	b := New(128)
	b.SetSize(n)
	for i := range b.Bytes() {
		b.Bytes()[i] = byte(i)
	}
	return b
}

func TestSetVLANsShiftsPayload(t *testing.T) {
	b := frame(60)
	orig := append([]byte(nil), b.Bytes()...)
	ip, err := b.Region(14, 20)
	if err != nil {
		t.Fatalf("Region: %v", err)
	}

	tags := []VLANTag{
		{TPID: packet.QinQProtocolNumber, ID: 100},
		{Priority: 5, DropEligible: true, ID: 0xfff},
	}
	if err := b.SetVLANs(tags); err != nil {
		t.Fatalf("SetVLANs: %v", err)
	}
	if got, want := b.Size(), 68; got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}
	got := b.Bytes()
	if diff := cmp.Diff(orig[:12], got[:12]); diff != "" {
		t.Errorf("MAC addresses changed (-want +got):\n%s", diff)
	}
	wantTags := []byte{0x88, 0xa8, 0x00, 0x64, 0x81, 0x00, 0xbf, 0xff}
	if diff := cmp.Diff(wantTags, got[12:20]); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(orig[12:], got[20:]); diff != "" {
		t.Errorf("frame not shifted by 8 bytes (-want +got):\n%s", diff)
	}
	if _, err := ip.Bytes(); !errors.Is(err, packet.ErrInvalidatedView) {
		t.Errorf("old region Bytes() = %v, want ErrInvalidatedView", err)
	}

	wantDecoded := []VLANTag{
		{TPID: packet.QinQProtocolNumber, ID: 100},
		{TPID: packet.VLANProtocolNumber, Priority: 5, DropEligible: true, ID: 0xfff},
	}
	if diff := cmp.Diff(wantDecoded, b.VLANs()); diff != "" {
		t.Errorf("VLANs() mismatch (-want +got):\n%s", diff)
	}

	// Rewriting with one tag shifts back by 4; removing all restores the
	// original frame.
	if err := b.SetVLANs([]VLANTag{{ID: 7}}); err != nil {
		t.Fatalf("SetVLANs(one): %v", err)
	}
	if diff := cmp.Diff(orig[12:], b.Bytes()[16:]); diff != "" {
		t.Errorf("frame after one tag (-want +got):\n%s", diff)
	}
	if err := b.SetVLANs(nil); err != nil {
		t.Fatalf("SetVLANs(nil): %v", err)
	}
	if diff := cmp.Diff(orig, b.Bytes()); diff != "" {
		t.Errorf("frame after removing tags (-want +got):\n%s", diff)
	}
}

func TestSetVLANsErrors(t *testing.T) {
	b := frame(126)
	if err := b.SetVLANs([]VLANTag{{ID: 1}}); !errors.Is(err, packet.ErrSizeExceedsCapacity) {
		t.Errorf("SetVLANs past capacity = %v, want ErrSizeExceedsCapacity", err)
	}
	b = frame(60)
	orig := append([]byte(nil), b.Bytes()...)
	gen := b.Generation()
	for _, tag := range []VLANTag{{ID: 0x1000}, {Priority: 8}, {TPID: 0x0800}} {
		if err := b.SetVLANs([]VLANTag{{ID: 1}, tag}); !errors.Is(err, packet.ErrValueOutOfRange) {
			t.Errorf("SetVLANs(%+v) = %v, want ErrValueOutOfRange", tag, err)
		}
	}
	if diff := cmp.Diff(orig, b.Bytes()); diff != "" || b.Generation() != gen {
		t.Errorf("failed SetVLANs changed the frame (-want +got):\n%s", diff)
	}
}

func TestPool(t *testing.T) {
	p := NewPool()
	for _, capacity := range []int{0, 1, 64, 65, 1518, 9000, MaxPooledCapacity, MaxPooledCapacity + 1} {
		b, err := p.Allocate(capacity)
		if err != nil {
			t.Fatalf("Allocate(%d): %v", capacity, err)
		}
		if b.Capacity() != capacity || b.Size() != 0 {
			t.Errorf("Allocate(%d): capacity %d size %d", capacity, b.Capacity(), b.Size())
		}
		b.SetSize(capacity)
		for i := range b.Bytes() {
			b.Bytes()[i] = 0xff
		}
		p.Release(b)
	}
	if got := p.Outstanding(); got != 0 {
		t.Errorf("Outstanding() = %d, want 0", got)
	}
	// Reused memory comes back zeroed.
	b, _ := p.Allocate(1518)
	b.SetSize(1518)
	for i, c := range b.Bytes() {
		if c != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, c)
		}
	}
}

func TestPoolDoubleRelease(t *testing.T) {
	p := NewPool()
	b, _ := p.Allocate(100)
	p.Release(b)
	defer func() {
		if recover() == nil {
			t.Errorf("second Release did not panic")
		}
	}()
	p.Release(b)
}
