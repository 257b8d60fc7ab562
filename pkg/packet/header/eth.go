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

package header

import (
	"fmt"
	"net"

	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/field"
)

const (
	ethDstMAC = 0
	ethSrcMAC = 6
)

const (
	// EthernetMinimumSize is the size of an untagged Ethernet II header.
	EthernetMinimumSize = 14

	// EthernetTypeSize is the size of the ethertype field.
	EthernetTypeSize = 2
)

// EthernetFields contains the fields of an Ethernet II header. It is used to
// describe the fields of a frame that needs to be encoded.
type EthernetFields struct {
	// SrcAddr is the "MAC source" field.
	SrcAddr net.HardwareAddr

	// DstAddr is the "MAC destination" field.
	DstAddr net.HardwareAddr

	// Type is the "ethertype" field.
	Type packet.NetworkProtocolNumber
}

// Ethernet is a view of an Ethernet II header, including any 802.1Q tags
// between the source address and the ethertype.
type Ethernet struct {
	r buffer.Region
}

// NewEthernet returns an Ethernet view over r.
func NewEthernet(r buffer.Region) Ethernet {
	return Ethernet{r}
}

// Protocol implements Header.Protocol.
func (Ethernet) Protocol() Protocol {
	return ProtocolEthernet
}

// Region implements Header.Region.
func (b Ethernet) Region() buffer.Region {
	return b.r
}

// PayloadEnd implements Header.PayloadEnd. An Ethernet payload runs to the
// end of the frame.
func (b Ethernet) PayloadEnd() (int, error) {
	return frameEnd(b.r)
}

func (b Ethernet) typeField() field.Descriptor {
	return field.Uint16(b.r.Len() - EthernetTypeSize)
}

// DestinationAddress returns the "MAC destination" field.
func (b Ethernet) DestinationAddress() (net.HardwareAddr, error) {
	return readMAC(b.r, ethDstMAC)
}

// SetDestinationAddress sets the "MAC destination" field.
func (b Ethernet) SetDestinationAddress(mac net.HardwareAddr) error {
	return writeMAC(b.r, ethDstMAC, mac)
}

// SetDestinationAddressString parses s and sets the "MAC destination" field.
func (b Ethernet) SetDestinationAddressString(s string) error {
	mac, err := ParseMAC(s)
	if err != nil {
		return err
	}
	return b.SetDestinationAddress(mac)
}

// SourceAddress returns the "MAC source" field.
func (b Ethernet) SourceAddress() (net.HardwareAddr, error) {
	return readMAC(b.r, ethSrcMAC)
}

// SetSourceAddress sets the "MAC source" field.
func (b Ethernet) SetSourceAddress(mac net.HardwareAddr) error {
	return writeMAC(b.r, ethSrcMAC, mac)
}

// SetSourceAddressString parses s and sets the "MAC source" field.
func (b Ethernet) SetSourceAddressString(s string) error {
	mac, err := ParseMAC(s)
	if err != nil {
		return err
	}
	return b.SetSourceAddress(mac)
}

// Type returns the "ethertype" field, which follows any VLAN tags.
func (b Ethernet) Type() (packet.NetworkProtocolNumber, error) {
	v, err := b.r.Read(b.typeField())
	return packet.NetworkProtocolNumber(v), err
}

// SetType sets the "ethertype" field.
func (b Ethernet) SetType(t packet.NetworkProtocolNumber) error {
	return b.r.Write(b.typeField(), uint64(t))
}

// VLANs returns the 802.1Q tags covered by the view.
func (b Ethernet) VLANs() ([]buffer.VLANTag, error) {
	n := (b.r.Len() - EthernetMinimumSize) / buffer.VLANTagSize
	if _, err := b.r.Bytes(); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	tags := b.r.Buffer().VLANs()
	if b.r.Offset() != 0 || len(tags) < n {
		return nil, fmt.Errorf("view covers %d tags, frame has %d: %w", n, len(tags), packet.ErrInvalidatedView)
	}
	return tags[:n], nil
}

// Encode encodes all the fields of the Ethernet header.
func (b Ethernet) Encode(e *EthernetFields) error {
	if err := b.SetDestinationAddress(e.DstAddr); err != nil {
		return err
	}
	if err := b.SetSourceAddress(e.SrcAddr); err != nil {
		return err
	}
	return b.SetType(e.Type)
}

// etherType maps the protocol following an Ethernet header to its
// ethertype, or 0 if there is none.
func etherType(next Protocol) packet.NetworkProtocolNumber {
	switch next {
	case ProtocolIPv4:
		return packet.IPv4ProtocolNumber
	case ProtocolIPv6:
		return packet.IPv6ProtocolNumber
	case ProtocolARP:
		return packet.ARPProtocolNumber
	case ProtocolPTP:
		return packet.PTPProtocolNumber
	}
	return 0
}

// SetDefaultNamedArgs implements Header.SetDefaultNamedArgs.
//
// The destination defaults to broadcast, the source to all zeroes and the
// type to the ethertype of next. An unknown next layer leaves the type zero
// so that the layer after it may fill it in.
func (b Ethernet) SetDefaultNamedArgs(_ Header, args Args, next Protocol, _ int) error {
	dst, err := macArg(args, "dstMac", BroadcastMAC)
	if err != nil {
		return err
	}
	src, err := macArg(args, "srcMac", zeroMAC)
	if err != nil {
		return err
	}
	if err := b.Encode(&EthernetFields{DstAddr: dst, SrcAddr: src}); err != nil {
		return err
	}
	return writeUint(b.r, b.typeField(), args, "ethType", uint64(etherType(next)))
}
