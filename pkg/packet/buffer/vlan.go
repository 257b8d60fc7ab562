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

const (
	// VLANTagSize is the size of an 802.1Q tag.
	VLANTagSize = 4

	// VLANOffset is where the first tag goes: right after the destination
	// and source MAC addresses.
	VLANOffset = 12

	// MaxVLANs bounds the number of stacked tags VLANs will parse.
	MaxVLANs = 8
)

var (
	vlanTPID     = field.Uint16(0)
	vlanPriority = field.Bits(2, 0, 3)
	vlanDEI      = field.Bits(2, 3, 1)
	vlanID       = field.Bits(2, 4, 12)
)

// VLANTag is an IEEE 802.1Q tag.
type VLANTag struct {
	// TPID is the tag protocol identifier; zero means 0x8100.
	TPID packet.NetworkProtocolNumber

	// Priority is the 3-bit priority code point.
	Priority uint8

	// DropEligible is the drop eligible indicator.
	DropEligible bool

	// ID is the 12-bit VLAN identifier.
	ID uint16
}

func isTPID(v uint64) bool {
	switch packet.NetworkProtocolNumber(v) {
	case packet.VLANProtocolNumber, packet.QinQProtocolNumber, 0x9100:
		return true
	}
	return false
}

func (t VLANTag) encode(b []byte) error {
	tpid := t.TPID
	if tpid == 0 {
		tpid = packet.VLANProtocolNumber
	}
	if !isTPID(uint64(tpid)) {
		return fmt.Errorf("vlan TPID %#04x: %w", tpid, packet.ErrValueOutOfRange)
	}
	var dei uint64
	if t.DropEligible {
		dei = 1
	}
	if err := field.Write(b, vlanPriority, uint64(t.Priority)); err != nil {
		return fmt.Errorf("vlan priority: %w", err)
	}
	if err := field.Write(b, vlanID, uint64(t.ID)); err != nil {
		return fmt.Errorf("vlan id: %w", err)
	}
	if err := field.Write(b, vlanDEI, dei); err != nil {
		return err
	}
	return field.Write(b, vlanTPID, uint64(tpid))
}

func decodeVLAN(b []byte) VLANTag {
	tpid, _ := field.Read(b, vlanTPID)
	pcp, _ := field.Read(b, vlanPriority)
	dei, _ := field.Read(b, vlanDEI)
	id, _ := field.Read(b, vlanID)
	return VLANTag{
		TPID:         packet.NetworkProtocolNumber(tpid),
		Priority:     uint8(pcp),
		DropEligible: dei == 1,
		ID:           uint16(id),
	}
}

// VLANs returns the tags currently present after the MAC addresses.
func (b *Buffer) VLANs() []VLANTag {
	var tags []VLANTag
	for off := VLANOffset; len(tags) < MaxVLANs && off+VLANTagSize+2 <= b.size; off += VLANTagSize {
		tpid, _ := field.Read(b.data[off:], vlanTPID)
		if !isTPID(tpid) {
			break
		}
		tags = append(tags, decodeVLAN(b.data[off:off+VLANTagSize]))
	}
	return tags
}

// SetVLANs replaces the VLAN tags of the frame with tags, inserting or
// removing 4 bytes per tag right after the MAC addresses and shifting the
// rest of the frame accordingly. A nil or empty tags removes all tags.
//
// If the number of tags changes, every Region of the buffer is invalidated
// and headers must be rebuilt.
func (b *Buffer) SetVLANs(tags []VLANTag) error {
	if b.size < VLANOffset {
		return fmt.Errorf("%d byte frame has no MAC addresses: %w", b.size, packet.ErrBufferTooSmall)
	}
	if len(tags) > MaxVLANs {
		return fmt.Errorf("%d vlan tags, max %d: %w", len(tags), MaxVLANs, packet.ErrValueOutOfRange)
	}
	// Encode into scratch first so a bad tag leaves the frame untouched.
	var scratch [MaxVLANs * VLANTagSize]byte
	for i, t := range tags {
		if err := t.encode(scratch[i*VLANTagSize:]); err != nil {
			return err
		}
	}
	old := len(b.VLANs())
	delta := (len(tags) - old) * VLANTagSize
	newSize := b.size + delta
	if newSize > len(b.data) {
		return fmt.Errorf("%d vlan tags need %d bytes, capacity %d: %w", len(tags), newSize, len(b.data), packet.ErrSizeExceedsCapacity)
	}
	rest := VLANOffset + old*VLANTagSize
	copy(b.data[rest+delta:newSize], b.data[rest:b.size])
	copy(b.data[VLANOffset:], scratch[:len(tags)*VLANTagSize])
	b.size = newSize
	if delta != 0 {
		b.invalidate()
	}
	return nil
}
