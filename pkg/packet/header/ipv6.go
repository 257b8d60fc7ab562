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
	"net/netip"

	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/checksum"
	"pktgen.dev/pktgen/pkg/packet/field"
)

var (
	ipv6Version      = field.Bits(0, 0, 4)
	ipv6TrafficClass = field.Bits(0, 4, 8)
	ipv6FlowLabel    = field.Bits(1, 4, 20)
	ipv6PayloadLen   = field.Uint16(4)
	ipv6NextHeader   = field.Uint8(6)
	ipv6HopLimit     = field.Uint8(7)
)

const (
	ipv6SrcAddr = 8
	ipv6DstAddr = 24
)

const (
	// IPv6MinimumSize is the size of the fixed IPv6 header.
	IPv6MinimumSize = 40

	// IPv6Version is the version of the IPv6 protocol.
	IPv6Version = 6

	// IPv6DefaultHopLimit is the hop limit of built packets.
	IPv6DefaultHopLimit = 64
)

// IPv6 is a view of the fixed IPv6 header.
type IPv6 struct {
	r buffer.Region
}

// NewIPv6 returns an IPv6 view over r.
func NewIPv6(r buffer.Region) IPv6 {
	return IPv6{r}
}

// Protocol implements Header.Protocol.
func (IPv6) Protocol() Protocol {
	return ProtocolIPv6
}

// Region implements Header.Region.
func (b IPv6) Region() buffer.Region {
	return b.r
}

// Version returns the "version" field.
func (b IPv6) Version() (uint8, error) {
	v, err := b.r.Read(ipv6Version)
	return uint8(v), err
}

// SetVersion sets the "version" field.
func (b IPv6) SetVersion(v uint8) error {
	return b.r.Write(ipv6Version, uint64(v))
}

// TrafficClass returns the "traffic class" field.
func (b IPv6) TrafficClass() (uint8, error) {
	v, err := b.r.Read(ipv6TrafficClass)
	return uint8(v), err
}

// SetTrafficClass sets the "traffic class" field.
func (b IPv6) SetTrafficClass(v uint8) error {
	return b.r.Write(ipv6TrafficClass, uint64(v))
}

// FlowLabel returns the 20-bit "flow label" field.
func (b IPv6) FlowLabel() (uint32, error) {
	v, err := b.r.Read(ipv6FlowLabel)
	return uint32(v), err
}

// SetFlowLabel sets the 20-bit "flow label" field.
func (b IPv6) SetFlowLabel(v uint32) error {
	return b.r.Write(ipv6FlowLabel, uint64(v))
}

// PayloadLength returns the "payload length" field.
func (b IPv6) PayloadLength() (uint16, error) {
	v, err := b.r.Read(ipv6PayloadLen)
	return uint16(v), err
}

// SetPayloadLength sets the "payload length" field.
func (b IPv6) SetPayloadLength(v uint16) error {
	return b.r.Write(ipv6PayloadLen, uint64(v))
}

// NextHeader returns the "next header" field.
func (b IPv6) NextHeader() (packet.TransportProtocolNumber, error) {
	v, err := b.r.Read(ipv6NextHeader)
	return packet.TransportProtocolNumber(v), err
}

// SetNextHeader sets the "next header" field.
func (b IPv6) SetNextHeader(p packet.TransportProtocolNumber) error {
	return b.r.Write(ipv6NextHeader, uint64(p))
}

// HopLimit returns the "hop limit" field.
func (b IPv6) HopLimit() (uint8, error) {
	v, err := b.r.Read(ipv6HopLimit)
	return uint8(v), err
}

// SetHopLimit sets the "hop limit" field.
func (b IPv6) SetHopLimit(v uint8) error {
	return b.r.Write(ipv6HopLimit, uint64(v))
}

// SourceAddress returns the "source address" field.
func (b IPv6) SourceAddress() (netip.Addr, error) {
	return readIP(b.r, ipv6SrcAddr, false)
}

// SetSourceAddress sets the "source address" field.
func (b IPv6) SetSourceAddress(a netip.Addr) error {
	return writeIP(b.r, ipv6SrcAddr, a, false)
}

// SetSourceAddressString parses s and sets the "source address" field.
func (b IPv6) SetSourceAddressString(s string) error {
	a, err := ParseIPv6(s)
	if err != nil {
		return err
	}
	return b.SetSourceAddress(a)
}

// DestinationAddress returns the "destination address" field.
func (b IPv6) DestinationAddress() (netip.Addr, error) {
	return readIP(b.r, ipv6DstAddr, false)
}

// SetDestinationAddress sets the "destination address" field.
func (b IPv6) SetDestinationAddress(a netip.Addr) error {
	return writeIP(b.r, ipv6DstAddr, a, false)
}

// SetDestinationAddressString parses s and sets the "destination address"
// field.
func (b IPv6) SetDestinationAddressString(s string) error {
	a, err := ParseIPv6(s)
	if err != nil {
		return err
	}
	return b.SetDestinationAddress(a)
}

// PayloadEnd implements Header.PayloadEnd. It is the end of the fixed
// header plus the payload length, capped at the end of the frame.
func (b IPv6) PayloadEnd() (int, error) {
	n, err := b.PayloadLength()
	if err != nil {
		return 0, err
	}
	return min(b.r.Offset()+IPv6MinimumSize+int(n), b.r.Buffer().Size()), nil
}

// PseudoHeaderChecksum implements Network.PseudoHeaderChecksum.
func (b IPv6) PseudoHeaderChecksum(protocol packet.TransportProtocolNumber, length uint32) (uint16, error) {
	src, err := b.r.ReadBytes(ipv6SrcAddr, IPv6AddressSize)
	if err != nil {
		return 0, err
	}
	dst, _ := b.r.ReadBytes(ipv6DstAddr, IPv6AddressSize)
	return checksum.PseudoHeader(uint8(protocol), src, dst, length), nil
}

// IsValid reports whether the view holds an IPv6 header whose payload fits
// within pktSize bytes.
func (b IPv6) IsValid(pktSize int) bool {
	if v, err := b.Version(); err != nil || v != IPv6Version {
		return false
	}
	n, _ := b.PayloadLength()
	return IPv6MinimumSize+int(n) <= pktSize
}

// SetDefaultNamedArgs implements Header.SetDefaultNamedArgs.
//
// The payload length defaults to the bytes after the fixed header up to the
// end of the enclosing payload. The next header defaults to the number of
// next, or No Next Header when nothing follows.
func (b IPv6) SetDefaultNamedArgs(prev Header, args Args, next Protocol, accumulatedLength int) error {
	rem, err := remaining(prev, b.r, accumulatedLength)
	if err != nil {
		return err
	}
	if rem < IPv6MinimumSize {
		return fmt.Errorf("%d bytes left for an IPv6 header: %w", rem, packet.ErrBufferTooSmall)
	}
	for _, f := range []struct {
		d   field.Descriptor
		key string
		def uint64
	}{
		{ipv6Version, ArgVersion, IPv6Version},
		{ipv6TrafficClass, "trafficClass", 0},
		{ipv6FlowLabel, "flowLabel", 0},
		{ipv6PayloadLen, ArgLength, rem - IPv6MinimumSize},
		{ipv6NextHeader, ArgNextHeader, uint64(nextIPProtocol(next, true))},
		{ipv6HopLimit, "hopLimit", IPv6DefaultHopLimit},
	} {
		if err := writeUint(b.r, f.d, args, f.key, f.def); err != nil {
			return err
		}
	}
	src, err := ipArg(args, ArgSrcIP, false, netip.IPv6Unspecified())
	if err != nil {
		return err
	}
	dst, err := ipArg(args, ArgDstIP, false, netip.IPv6Unspecified())
	if err != nil {
		return err
	}
	if err := b.SetSourceAddress(src); err != nil {
		return err
	}
	if err := b.SetDestinationAddress(dst); err != nil {
		return err
	}
	return patchEtherType(prev, packet.IPv6ProtocolNumber)
}
