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

// Package packet holds the types shared by the packet construction
// packages: protocol numbers and the error space.
package packet

// NetworkProtocolNumber is the EtherType of a network protocol in an
// Ethernet frame.
type NetworkProtocolNumber uint16

// TransportProtocolNumber is the number of a protocol carried by IPv4
// ("protocol") or IPv6 ("next header").
type TransportProtocolNumber uint8

// EtherType values used by the header views.
const (
	IPv4ProtocolNumber NetworkProtocolNumber = 0x0800
	ARPProtocolNumber  NetworkProtocolNumber = 0x0806
	VLANProtocolNumber NetworkProtocolNumber = 0x8100
	QinQProtocolNumber NetworkProtocolNumber = 0x88a8
	IPv6ProtocolNumber NetworkProtocolNumber = 0x86dd
	PTPProtocolNumber  NetworkProtocolNumber = 0x88f7
)

// IP protocol numbers used by the header views.
const (
	ICMPv4ProtocolNumber   TransportProtocolNumber = 1
	IPv4InIPProtocolNumber TransportProtocolNumber = 4
	TCPProtocolNumber      TransportProtocolNumber = 6
	UDPProtocolNumber      TransportProtocolNumber = 17
	IPv6InIPProtocolNumber TransportProtocolNumber = 41
	ESPProtocolNumber      TransportProtocolNumber = 50
	AHProtocolNumber       TransportProtocolNumber = 51
	ICMPv6ProtocolNumber   TransportProtocolNumber = 58
	NoNextHeaderNumber     TransportProtocolNumber = 59
)

// UDP ports assigned to PTP (IEEE 1588 annex D).
const (
	PTPEventPort   = 319
	PTPGeneralPort = 320
)
