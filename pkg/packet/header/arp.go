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
	"net"
	"net/netip"

	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/field"
)

const (
	// ARPSize is the size of an IPv4-over-Ethernet ARP packet.
	ARPSize = 28

	// ARPHardwareEther is the hardware type of Ethernet.
	ARPHardwareEther = 1
)

var (
	arpHardwareType = field.Uint16(0)
	arpProtocolType = field.Uint16(2)
	arpHardwareLen  = field.Uint8(4)
	arpProtocolLen  = field.Uint8(5)
	arpOp           = field.Uint16(6)
)

const (
	arpSenderMAC = 8
	arpSenderIP  = 14
	arpTargetMAC = 18
	arpTargetIP  = 24
)

// ARPOp is an ARP opcode.
type ARPOp uint16

// Typical ARP opcodes defined in RFC 826.
const (
	ARPRequest ARPOp = 1
	ARPReply   ARPOp = 2
)

// ARP is a view of an ARP packet for IPv4 over Ethernet.
type ARP struct {
	r buffer.Region
}

// NewARP returns an ARP view over r.
func NewARP(r buffer.Region) ARP {
	return ARP{r}
}

// Protocol implements Header.Protocol.
func (ARP) Protocol() Protocol {
	return ProtocolARP
}

// Region implements Header.Region.
func (a ARP) Region() buffer.Region {
	return a.r
}

// PayloadEnd implements Header.PayloadEnd. ARP carries no payload.
func (a ARP) PayloadEnd() (int, error) {
	if _, err := a.r.Bytes(); err != nil {
		return 0, err
	}
	return a.r.Offset() + a.r.Len(), nil
}

// HardwareType returns the hardware address space.
func (a ARP) HardwareType() (uint16, error) {
	v, err := a.r.Read(arpHardwareType)
	return uint16(v), err
}

// ProtocolType returns the protocol address space.
func (a ARP) ProtocolType() (packet.NetworkProtocolNumber, error) {
	v, err := a.r.Read(arpProtocolType)
	return packet.NetworkProtocolNumber(v), err
}

// Op returns the ARP opcode.
func (a ARP) Op() (ARPOp, error) {
	v, err := a.r.Read(arpOp)
	return ARPOp(v), err
}

// SetOp sets the ARP opcode.
func (a ARP) SetOp(op ARPOp) error {
	return a.r.Write(arpOp, uint64(op))
}

// SetIPv4OverEthernet configures the hardware and protocol types and
// address lengths for IPv4 over Ethernet.
func (a ARP) SetIPv4OverEthernet() error {
	for _, f := range []struct {
		d field.Descriptor
		v uint64
	}{
		{arpHardwareType, ARPHardwareEther},
		{arpProtocolType, uint64(packet.IPv4ProtocolNumber)},
		{arpHardwareLen, MACAddressSize},
		{arpProtocolLen, IPv4AddressSize},
	} {
		if err := a.r.Write(f.d, f.v); err != nil {
			return err
		}
	}
	return nil
}

// IsValid reports whether the packet describes IPv4 over Ethernet.
func (a ARP) IsValid() bool {
	ht, err := a.r.Read(arpHardwareType)
	if err != nil {
		return false
	}
	pt, _ := a.r.Read(arpProtocolType)
	hl, _ := a.r.Read(arpHardwareLen)
	pl, _ := a.r.Read(arpProtocolLen)
	return ht == ARPHardwareEther && pt == uint64(packet.IPv4ProtocolNumber) && hl == MACAddressSize && pl == IPv4AddressSize
}

// HardwareAddressSender returns the sender MAC address.
func (a ARP) HardwareAddressSender() (net.HardwareAddr, error) {
	return readMAC(a.r, arpSenderMAC)
}

// SetHardwareAddressSender sets the sender MAC address.
func (a ARP) SetHardwareAddressSender(mac net.HardwareAddr) error {
	return writeMAC(a.r, arpSenderMAC, mac)
}

// SetHardwareAddressSenderString parses s and sets the sender MAC address.
func (a ARP) SetHardwareAddressSenderString(s string) error {
	mac, err := ParseMAC(s)
	if err != nil {
		return err
	}
	return a.SetHardwareAddressSender(mac)
}

// ProtocolAddressSender returns the sender IPv4 address.
func (a ARP) ProtocolAddressSender() (netip.Addr, error) {
	return readIP(a.r, arpSenderIP, true)
}

// SetProtocolAddressSender sets the sender IPv4 address.
func (a ARP) SetProtocolAddressSender(ip netip.Addr) error {
	return writeIP(a.r, arpSenderIP, ip, true)
}

// SetProtocolAddressSenderString parses s and sets the sender IPv4 address.
func (a ARP) SetProtocolAddressSenderString(s string) error {
	ip, err := ParseIPv4(s)
	if err != nil {
		return err
	}
	return a.SetProtocolAddressSender(ip)
}

// HardwareAddressTarget returns the target MAC address.
func (a ARP) HardwareAddressTarget() (net.HardwareAddr, error) {
	return readMAC(a.r, arpTargetMAC)
}

// SetHardwareAddressTarget sets the target MAC address.
func (a ARP) SetHardwareAddressTarget(mac net.HardwareAddr) error {
	return writeMAC(a.r, arpTargetMAC, mac)
}

// SetHardwareAddressTargetString parses s and sets the target MAC address.
func (a ARP) SetHardwareAddressTargetString(s string) error {
	mac, err := ParseMAC(s)
	if err != nil {
		return err
	}
	return a.SetHardwareAddressTarget(mac)
}

// ProtocolAddressTarget returns the target IPv4 address.
func (a ARP) ProtocolAddressTarget() (netip.Addr, error) {
	return readIP(a.r, arpTargetIP, true)
}

// SetProtocolAddressTarget sets the target IPv4 address.
func (a ARP) SetProtocolAddressTarget(ip netip.Addr) error {
	return writeIP(a.r, arpTargetIP, ip, true)
}

// SetProtocolAddressTargetString parses s and sets the target IPv4 address.
func (a ARP) SetProtocolAddressTargetString(s string) error {
	ip, err := ParseIPv4(s)
	if err != nil {
		return err
	}
	return a.SetProtocolAddressTarget(ip)
}

// SetDefaultNamedArgs implements Header.SetDefaultNamedArgs.
//
// Defaults describe an IPv4-over-Ethernet request. The sender MAC defaults
// to the source of a preceding Ethernet header.
func (a ARP) SetDefaultNamedArgs(prev Header, args Args, _ Protocol, _ int) error {
	if err := a.SetIPv4OverEthernet(); err != nil {
		return err
	}
	if err := writeUint(a.r, arpHardwareType, args, "hardwareType", ARPHardwareEther); err != nil {
		return err
	}
	if err := writeUint(a.r, arpProtocolType, args, "protocolType", uint64(packet.IPv4ProtocolNumber)); err != nil {
		return err
	}
	if err := writeUint(a.r, arpOp, args, "op", uint64(ARPRequest)); err != nil {
		return err
	}
	senderDef := zeroMAC
	if eth, ok := prev.(Ethernet); ok {
		if src, err := eth.SourceAddress(); err == nil {
			senderDef = src
		}
	}
	sha, err := macArg(args, "senderMac", senderDef)
	if err != nil {
		return err
	}
	tha, err := macArg(args, "targetMac", zeroMAC)
	if err != nil {
		return err
	}
	spa, err := ipArg(args, "senderIp", true, netip.IPv4Unspecified())
	if err != nil {
		return err
	}
	tpa, err := ipArg(args, "targetIp", true, netip.IPv4Unspecified())
	if err != nil {
		return err
	}
	if err := a.SetHardwareAddressSender(sha); err != nil {
		return err
	}
	if err := a.SetProtocolAddressSender(spa); err != nil {
		return err
	}
	if err := a.SetHardwareAddressTarget(tha); err != nil {
		return err
	}
	if err := a.SetProtocolAddressTarget(tpa); err != nil {
		return err
	}
	return patchEtherType(prev, packet.ARPProtocolNumber)
}
