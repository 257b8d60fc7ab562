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

// Package header provides typed views of network protocol headers laid out
// inside a packet buffer.
//
// Every view is a window onto a buffer.Region. Getters and setters go through
// the field codec, so out-of-width values fail with
// packet.ErrValueOutOfRange and views whose buffer was reshaped fail with
// packet.ErrInvalidatedView.
package header

import (
	"fmt"
	"strings"

	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
)

// Protocol identifies one of the supported header layouts.
type Protocol int

// Supported protocols. ProtocolNone marks the end of a chain.
const (
	ProtocolNone Protocol = iota
	ProtocolEthernet
	ProtocolARP
	ProtocolIPv4
	ProtocolIPv6
	ProtocolTCP
	ProtocolUDP
	ProtocolICMP
	ProtocolAH
	ProtocolESP
	ProtocolPTP
)

var protocolNames = map[Protocol]string{
	ProtocolNone:     "none",
	ProtocolEthernet: "ethernet",
	ProtocolARP:      "arp",
	ProtocolIPv4:     "ipv4",
	ProtocolIPv6:     "ipv6",
	ProtocolTCP:      "tcp",
	ProtocolUDP:      "udp",
	ProtocolICMP:     "icmp",
	ProtocolAH:       "ah",
	ProtocolESP:      "esp",
	ProtocolPTP:      "ptp",
}

var protocolAliases = map[string]Protocol{
	"eth":   ProtocolEthernet,
	"ip4":   ProtocolIPv4,
	"ip6":   ProtocolIPv6,
	"icmp4": ProtocolICMP,
	"icmp6": ProtocolICMP,
}

// String implements fmt.Stringer.
func (p Protocol) String() string {
	if s, ok := protocolNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Protocol(%d)", int(p))
}

// ParseProtocol returns the protocol named s, case-insensitively. Short
// aliases such as "eth" and "ip4" are accepted.
func ParseProtocol(s string) (Protocol, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for p, name := range protocolNames {
		if p != ProtocolNone && name == s {
			return p, nil
		}
	}
	if p, ok := protocolAliases[s]; ok {
		return p, nil
	}
	return ProtocolNone, fmt.Errorf("protocol %q: %w", s, packet.ErrUnsupportedProtocol)
}

// Header is the capability shared by every protocol view.
type Header interface {
	// Protocol returns the protocol of the view.
	Protocol() Protocol

	// Region returns the bytes the header occupies.
	Region() buffer.Region

	// PayloadEnd returns the buffer offset where the data encapsulated by
	// this header ends.
	PayloadEnd() (int, error)

	// SetDefaultNamedArgs fills every field of the header. Fields named in
	// args take the given value; the others take the protocol default,
	// which may depend on the preceding header, the protocol of the next
	// layer and the number of bytes in front of this header.
	SetDefaultNamedArgs(prev Header, args Args, next Protocol, accumulatedLength int) error
}

// Network is implemented by the IPv4 and IPv6 views.
type Network interface {
	Header

	// PseudoHeaderChecksum returns the partial checksum of the
	// pseudo-header used by upper-layer checksums.
	PseudoHeaderChecksum(protocol packet.TransportProtocolNumber, length uint32) (uint16, error)
}

// Layout returns the number of bytes a header of protocol p occupies when
// placed at off in buf and built from args.
func (p Protocol) Layout(buf *buffer.Buffer, off int, args Args) (int, error) {
	switch p {
	case ProtocolEthernet:
		n := EthernetMinimumSize
		if off == 0 {
			n += len(buf.VLANs()) * buffer.VLANTagSize
		}
		return n, nil
	case ProtocolARP:
		return ARPSize, nil
	case ProtocolIPv4:
		opts, _, err := args.Bytes(ArgOptions)
		if err != nil {
			return 0, err
		}
		return IPv4MinimumSize + paddedLen(len(opts)), nil
	case ProtocolIPv6:
		return IPv6MinimumSize, nil
	case ProtocolTCP:
		opts, _, err := args.Bytes(ArgOptions)
		if err != nil {
			return 0, err
		}
		return TCPMinimumSize + paddedLen(len(opts)), nil
	case ProtocolUDP:
		return UDPMinimumSize, nil
	case ProtocolICMP:
		return ICMPMinimumSize, nil
	case ProtocolAH:
		n, err := ahICVLength(args)
		if err != nil {
			return 0, err
		}
		return AHMinimumSize + n, nil
	case ProtocolESP:
		n, err := espIVLength(args)
		if err != nil {
			return 0, err
		}
		return ESPMinimumSize + n, nil
	case ProtocolPTP:
		return PTPSize, nil
	}
	return 0, fmt.Errorf("%v: %w", p, packet.ErrUnsupportedProtocol)
}

// New returns the view of protocol p over r, following prev. args supplies
// the lengths of variable-size parts that are not recorded in the header
// itself.
func (p Protocol) New(r buffer.Region, prev Header, args Args) (Header, error) {
	switch p {
	case ProtocolEthernet:
		return Ethernet{r}, nil
	case ProtocolARP:
		return ARP{r}, nil
	case ProtocolIPv4:
		return IPv4{r}, nil
	case ProtocolIPv6:
		return IPv6{r}, nil
	case ProtocolTCP:
		return TCP{r}, nil
	case ProtocolUDP:
		return UDP{r}, nil
	case ProtocolICMP:
		return ICMP{r}, nil
	case ProtocolAH:
		return AH{r}, nil
	case ProtocolESP:
		n, err := espICVLength(args)
		if err != nil {
			return nil, err
		}
		return NewESP(r, prev, n), nil
	case ProtocolPTP:
		return PTP{r}, nil
	}
	return nil, fmt.Errorf("%v: %w", p, packet.ErrUnsupportedProtocol)
}

// Fields returns the named arguments understood by p.
func (p Protocol) Fields() []string {
	return protocolFields[p]
}

// Declares reports whether p understands the named argument key.
func (p Protocol) Declares(key string) bool {
	for _, f := range protocolFields[p] {
		if f == key {
			return true
		}
	}
	return false
}

// paddedLen rounds n up to a multiple of 4.
func paddedLen(n int) int {
	return (n + 3) &^ 3
}

// limit returns where the payload of a header following prev ends.
func limit(prev Header, r buffer.Region) (int, error) {
	if prev != nil {
		return prev.PayloadEnd()
	}
	if r.Buffer() == nil {
		return 0, fmt.Errorf("zero region: %w", packet.ErrInvalidatedView)
	}
	return r.Buffer().Size(), nil
}

// remaining returns the number of bytes from accumulatedLength to the end of
// the enclosing payload, as a length field value.
func remaining(prev Header, r buffer.Region, accumulatedLength int) (uint64, error) {
	end, err := limit(prev, r)
	if err != nil {
		return 0, err
	}
	if end < accumulatedLength {
		return 0, fmt.Errorf("payload ends at %d before header at %d: %w", end, accumulatedLength, packet.ErrBufferTooSmall)
	}
	return uint64(end - accumulatedLength), nil
}

// frameEnd returns the size of the buffer r indexes, checking r first.
func frameEnd(r buffer.Region) (int, error) {
	if _, err := r.Bytes(); err != nil {
		return 0, err
	}
	return r.Buffer().Size(), nil
}

// patchEtherType sets the type of a preceding Ethernet header that was left
// unset because its next layer was unknown when it was built.
func patchEtherType(prev Header, t packet.NetworkProtocolNumber) error {
	eth, ok := prev.(Ethernet)
	if !ok {
		return nil
	}
	cur, err := eth.Type()
	if err != nil || cur != 0 {
		return err
	}
	return eth.SetType(t)
}

// nextIPProtocol maps the next layer of an IP header to a protocol number.
func nextIPProtocol(next Protocol, ipv6 bool) packet.TransportProtocolNumber {
	switch next {
	case ProtocolTCP:
		return packet.TCPProtocolNumber
	case ProtocolUDP:
		return packet.UDPProtocolNumber
	case ProtocolICMP:
		if ipv6 {
			return packet.ICMPv6ProtocolNumber
		}
		return packet.ICMPv4ProtocolNumber
	case ProtocolAH:
		return packet.AHProtocolNumber
	case ProtocolESP:
		return packet.ESPProtocolNumber
	case ProtocolIPv4:
		return packet.IPv4InIPProtocolNumber
	case ProtocolIPv6:
		return packet.IPv6InIPProtocolNumber
	case ProtocolNone:
		if ipv6 {
			return packet.NoNextHeaderNumber
		}
	}
	return 0
}

// PrecedingNetwork returns the closest IPv4 or IPv6 header before
// layers[i], or nil if there is none.
func PrecedingNetwork(layers []Header, i int) Network {
	for j := i - 1; j >= 0; j-- {
		if n, ok := layers[j].(Network); ok {
			return n
		}
	}
	return nil
}

// boundedNetwork is a Network whose payload ends early, at the end of the
// payload of a header it carries.
type boundedNetwork struct {
	Network
	end int
}

// PayloadEnd implements Header.PayloadEnd.
func (b boundedNetwork) PayloadEnd() (int, error) {
	return b.end, nil
}

// EnclosingNetwork is like PrecedingNetwork, but the returned Network ends
// its payload at the nearest end declared by any header before layers[i].
// Segments nested in ESP thus stop where the ESP trailer starts, and the
// upper-layer checksum and pseudo-header length cover the segment only.
func EnclosingNetwork(layers []Header, i int) (Network, error) {
	n := PrecedingNetwork(layers, i)
	if n == nil {
		return nil, nil
	}
	end, err := n.PayloadEnd()
	if err != nil {
		return nil, err
	}
	bound := end
	for _, h := range layers[:i] {
		e, err := h.PayloadEnd()
		if err != nil {
			return nil, err
		}
		bound = min(bound, e)
	}
	if bound == end {
		return n, nil
	}
	return boundedNetwork{Network: n, end: bound}, nil
}
