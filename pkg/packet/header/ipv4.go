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
	ipv4Version  = field.Bits(0, 0, 4)
	ipv4IHL      = field.Bits(0, 4, 4)
	ipv4TOS      = field.Uint8(1)
	ipv4TotalLen = field.Uint16(2)
	ipv4ID       = field.Uint16(4)
	ipv4Flags    = field.Bits(6, 0, 3)
	ipv4FragOff  = field.Bits(6, 3, 13)
	ipv4TTL      = field.Uint8(8)
	ipv4Protocol = field.Uint8(9)
	ipv4Checksum = field.Uint16(10)
)

const (
	ipv4SrcAddr     = 12
	ipv4DstAddr     = 16
	ipv4OptionsOffs = IPv4MinimumSize
)

const (
	// IPv4MinimumSize is the minimum size of a valid IPv4 packet.
	IPv4MinimumSize = 20

	// IPv4MaximumHeaderSize is the maximum size of an IPv4 header.
	IPv4MaximumHeaderSize = 60

	// IPv4Version is the version of the IPv4 protocol.
	IPv4Version = 4

	// IPv4DefaultTTL is the TTL of built packets.
	IPv4DefaultTTL = 64
)

// Flags that may be set in an IPv4 packet.
const (
	IPv4FlagMoreFragments = 1 << iota
	IPv4FlagDontFragment
)

// IPv4Fields contains the fields of an IPv4 packet. It is used to describe
// the fields of a packet that needs to be encoded.
type IPv4Fields struct {
	// TOS is the "type of service" field.
	TOS uint8

	// TotalLength is the "total length" field.
	TotalLength uint16

	// ID is the "identification" field.
	ID uint16

	// Flags is the "flags" field.
	Flags uint8

	// FragmentOffset is the "fragment offset" field, in 8-byte units.
	FragmentOffset uint16

	// TTL is the "time to live" field.
	TTL uint8

	// Protocol is the "protocol" field.
	Protocol packet.TransportProtocolNumber

	// SrcAddr is the "source ip address".
	SrcAddr netip.Addr

	// DstAddr is the "destination ip address".
	DstAddr netip.Addr
}

// IPv4 is a view of an IPv4 header, including its options.
type IPv4 struct {
	r buffer.Region
}

// NewIPv4 returns an IPv4 view over r.
func NewIPv4(r buffer.Region) IPv4 {
	return IPv4{r}
}

// Protocol implements Header.Protocol.
func (IPv4) Protocol() Protocol {
	return ProtocolIPv4
}

// Region implements Header.Region.
func (b IPv4) Region() buffer.Region {
	return b.r
}

// Version returns the "version" field.
func (b IPv4) Version() (uint8, error) {
	v, err := b.r.Read(ipv4Version)
	return uint8(v), err
}

// SetVersion sets the "version" field.
func (b IPv4) SetVersion(v uint8) error {
	return b.r.Write(ipv4Version, uint64(v))
}

// IHL returns the "header length" field in 32-bit words.
func (b IPv4) IHL() (uint8, error) {
	v, err := b.r.Read(ipv4IHL)
	return uint8(v), err
}

// SetIHL sets the "header length" field in 32-bit words.
func (b IPv4) SetIHL(words uint8) error {
	return b.r.Write(ipv4IHL, uint64(words))
}

// HeaderLength returns the header length in bytes.
func (b IPv4) HeaderLength() (int, error) {
	v, err := b.IHL()
	return int(v) * 4, err
}

// TOS returns the "type of service" field.
func (b IPv4) TOS() (uint8, error) {
	v, err := b.r.Read(ipv4TOS)
	return uint8(v), err
}

// SetTOS sets the "type of service" field.
func (b IPv4) SetTOS(v uint8) error {
	return b.r.Write(ipv4TOS, uint64(v))
}

// TotalLength returns the "total length" field.
func (b IPv4) TotalLength() (uint16, error) {
	v, err := b.r.Read(ipv4TotalLen)
	return uint16(v), err
}

// SetTotalLength sets the "total length" field.
func (b IPv4) SetTotalLength(v uint16) error {
	return b.r.Write(ipv4TotalLen, uint64(v))
}

// ID returns the "identification" field.
func (b IPv4) ID() (uint16, error) {
	v, err := b.r.Read(ipv4ID)
	return uint16(v), err
}

// SetID sets the "identification" field.
func (b IPv4) SetID(v uint16) error {
	return b.r.Write(ipv4ID, uint64(v))
}

// Flags returns the "flags" field.
func (b IPv4) Flags() (uint8, error) {
	v, err := b.r.Read(ipv4Flags)
	return uint8(v), err
}

// SetFlags sets the "flags" field.
func (b IPv4) SetFlags(v uint8) error {
	return b.r.Write(ipv4Flags, uint64(v))
}

// FragmentOffset returns the "fragment offset" field in 8-byte units.
func (b IPv4) FragmentOffset() (uint16, error) {
	v, err := b.r.Read(ipv4FragOff)
	return uint16(v), err
}

// SetFragmentOffset sets the "fragment offset" field in 8-byte units.
func (b IPv4) SetFragmentOffset(v uint16) error {
	return b.r.Write(ipv4FragOff, uint64(v))
}

// TTL returns the "TTL" field.
func (b IPv4) TTL() (uint8, error) {
	v, err := b.r.Read(ipv4TTL)
	return uint8(v), err
}

// SetTTL sets the "TTL" field.
func (b IPv4) SetTTL(v uint8) error {
	return b.r.Write(ipv4TTL, uint64(v))
}

// TransportProtocol returns the "protocol" field.
func (b IPv4) TransportProtocol() (packet.TransportProtocolNumber, error) {
	v, err := b.r.Read(ipv4Protocol)
	return packet.TransportProtocolNumber(v), err
}

// SetTransportProtocol sets the "protocol" field.
func (b IPv4) SetTransportProtocol(p packet.TransportProtocolNumber) error {
	return b.r.Write(ipv4Protocol, uint64(p))
}

// Checksum returns the "header checksum" field.
func (b IPv4) Checksum() (uint16, error) {
	v, err := b.r.Read(ipv4Checksum)
	return uint16(v), err
}

// SetChecksum sets the "header checksum" field.
func (b IPv4) SetChecksum(v uint16) error {
	return b.r.Write(ipv4Checksum, uint64(v))
}

// headerBytes returns the bytes covered by the header checksum.
func (b IPv4) headerBytes() ([]byte, error) {
	hb, err := b.r.Bytes()
	if err != nil {
		return nil, err
	}
	if n, _ := b.HeaderLength(); n >= IPv4MinimumSize && n <= len(hb) {
		hb = hb[:n]
	}
	return hb, nil
}

// CalculateChecksum returns the checksum of the header with the checksum
// field taken as zero.
func (b IPv4) CalculateChecksum() (uint16, error) {
	hb, err := b.headerBytes()
	if err != nil {
		return 0, err
	}
	xsum := checksum.Checksum(hb, 0)
	if cur, _ := b.Checksum(); cur != 0 {
		// Adding the complement of the stored value cancels it out.
		xsum = checksum.Combine(xsum, ^cur)
	}
	return ^xsum, nil
}

// UpdateChecksum computes and stores the header checksum.
func (b IPv4) UpdateChecksum() error {
	if err := b.SetChecksum(0); err != nil {
		return err
	}
	hb, err := b.headerBytes()
	if err != nil {
		return err
	}
	return b.SetChecksum(^checksum.Checksum(hb, 0))
}

// IsChecksumValid reports whether the stored header checksum is correct.
func (b IPv4) IsChecksumValid() (bool, error) {
	hb, err := b.headerBytes()
	if err != nil {
		return false, err
	}
	return checksum.Checksum(hb, 0) == 0xffff, nil
}

// SourceAddress returns the "source address" field.
func (b IPv4) SourceAddress() (netip.Addr, error) {
	return readIP(b.r, ipv4SrcAddr, true)
}

// SetSourceAddress sets the "source address" field.
func (b IPv4) SetSourceAddress(a netip.Addr) error {
	return writeIP(b.r, ipv4SrcAddr, a, true)
}

// SetSourceAddressString parses s and sets the "source address" field.
func (b IPv4) SetSourceAddressString(s string) error {
	a, err := ParseIPv4(s)
	if err != nil {
		return err
	}
	return b.SetSourceAddress(a)
}

// DestinationAddress returns the "destination address" field.
func (b IPv4) DestinationAddress() (netip.Addr, error) {
	return readIP(b.r, ipv4DstAddr, true)
}

// SetDestinationAddress sets the "destination address" field.
func (b IPv4) SetDestinationAddress(a netip.Addr) error {
	return writeIP(b.r, ipv4DstAddr, a, true)
}

// SetDestinationAddressString parses s and sets the "destination address"
// field.
func (b IPv4) SetDestinationAddressString(s string) error {
	a, err := ParseIPv4(s)
	if err != nil {
		return err
	}
	return b.SetDestinationAddress(a)
}

// Options returns the options area of the view.
func (b IPv4) Options() ([]byte, error) {
	return b.r.ReadBytes(ipv4OptionsOffs, b.r.Len()-IPv4MinimumSize)
}

// SetOptions copies opts into the options area and pads the rest of it
// with end-of-list bytes. opts must fit the area.
func (b IPv4) SetOptions(opts []byte) error {
	area, err := b.Options()
	if err != nil {
		return err
	}
	if len(opts) > len(area) {
		return fmt.Errorf("%d bytes of options, room for %d: %w", len(opts), len(area), packet.ErrValueOutOfRange)
	}
	clear(area[copy(area, opts):])
	return nil
}

// PayloadEnd implements Header.PayloadEnd. It is the end of the datagram as
// given by the total length, capped at the end of the frame.
func (b IPv4) PayloadEnd() (int, error) {
	n, err := b.TotalLength()
	if err != nil {
		return 0, err
	}
	return min(b.r.Offset()+int(n), b.r.Buffer().Size()), nil
}

// PseudoHeaderChecksum implements Network.PseudoHeaderChecksum.
func (b IPv4) PseudoHeaderChecksum(protocol packet.TransportProtocolNumber, length uint32) (uint16, error) {
	src, err := b.r.ReadBytes(ipv4SrcAddr, IPv4AddressSize)
	if err != nil {
		return 0, err
	}
	dst, _ := b.r.ReadBytes(ipv4DstAddr, IPv4AddressSize)
	return checksum.PseudoHeader(uint8(protocol), src, dst, length), nil
}

// IsValid reports whether the view holds a well-formed IPv4 header that
// fits within pktSize bytes.
func (b IPv4) IsValid(pktSize int) bool {
	if v, err := b.Version(); err != nil || v != IPv4Version {
		return false
	}
	hlen, _ := b.HeaderLength()
	tlen, _ := b.TotalLength()
	return hlen >= IPv4MinimumSize && hlen <= b.r.Len() && int(tlen) >= hlen && int(tlen) <= pktSize
}

// Encode encodes all the fields of the IPv4 header other than the
// checksum. The header length is taken from the size of the view.
func (b IPv4) Encode(i *IPv4Fields) error {
	for _, f := range []struct {
		d field.Descriptor
		v uint64
	}{
		{ipv4Version, IPv4Version},
		{ipv4IHL, uint64(b.r.Len() / 4)},
		{ipv4TOS, uint64(i.TOS)},
		{ipv4TotalLen, uint64(i.TotalLength)},
		{ipv4ID, uint64(i.ID)},
		{ipv4Flags, uint64(i.Flags)},
		{ipv4FragOff, uint64(i.FragmentOffset)},
		{ipv4TTL, uint64(i.TTL)},
		{ipv4Protocol, uint64(i.Protocol)},
	} {
		if err := b.r.Write(f.d, f.v); err != nil {
			return err
		}
	}
	if err := b.SetSourceAddress(i.SrcAddr); err != nil {
		return err
	}
	return b.SetDestinationAddress(i.DstAddr)
}

// SetDefaultNamedArgs implements Header.SetDefaultNamedArgs.
//
// The total length defaults to the bytes from this header to the end of the
// enclosing payload and the protocol to the number of next. The checksum is
// left zero unless given; the stack builder computes it once every layer is
// in place.
func (b IPv4) SetDefaultNamedArgs(prev Header, args Args, next Protocol, accumulatedLength int) error {
	total, err := remaining(prev, b.r, accumulatedLength)
	if err != nil {
		return err
	}
	opts, _, err := args.Bytes(ArgOptions)
	if err != nil {
		return err
	}
	if err := b.SetOptions(opts); err != nil {
		return err
	}
	for _, f := range []struct {
		d   field.Descriptor
		key string
		def uint64
	}{
		{ipv4Version, ArgVersion, IPv4Version},
		{ipv4IHL, "headerLength", uint64(b.r.Len() / 4)},
		{ipv4TOS, "tos", 0},
		{ipv4TotalLen, ArgLength, total},
		{ipv4ID, "id", 0},
		{ipv4Flags, ArgFlags, 0},
		{ipv4FragOff, "fragment", 0},
		{ipv4TTL, "ttl", IPv4DefaultTTL},
		{ipv4Protocol, "protocol", uint64(nextIPProtocol(next, false))},
	} {
		if err := writeUint(b.r, f.d, args, f.key, f.def); err != nil {
			return err
		}
	}
	if err := writeChecksum(b.r, ipv4Checksum, args); err != nil {
		return err
	}
	src, err := ipArg(args, ArgSrcIP, true, netip.IPv4Unspecified())
	if err != nil {
		return err
	}
	dst, err := ipArg(args, ArgDstIP, true, netip.IPv4Unspecified())
	if err != nil {
		return err
	}
	if err := b.SetSourceAddress(src); err != nil {
		return err
	}
	if err := b.SetDestinationAddress(dst); err != nil {
		return err
	}
	return patchEtherType(prev, packet.IPv4ProtocolNumber)
}
