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
	"net/netip"

	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
)

// Address sizes.
const (
	MACAddressSize  = 6
	IPv4AddressSize = 4
	IPv6AddressSize = 16
)

var (
	// BroadcastMAC is the Ethernet broadcast address.
	BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

	zeroMAC = net.HardwareAddr{0, 0, 0, 0, 0, 0}
)

// ParseMAC parses a colon, hyphen or dot separated 48-bit MAC address.
func ParseMAC(s string) (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(s)
	if err != nil || len(mac) != MACAddressSize {
		return nil, fmt.Errorf("MAC address %q: %w", s, packet.ErrMalformedAddress)
	}
	return mac, nil
}

// ParseIPv4 parses a dotted-quad IPv4 address.
func ParseIPv4(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil || !a.Is4() {
		return netip.Addr{}, fmt.Errorf("IPv4 address %q: %w", s, packet.ErrMalformedAddress)
	}
	return a, nil
}

// ParseIPv6 parses a colon-hex IPv6 address.
func ParseIPv6(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil || !a.Is6() {
		return netip.Addr{}, fmt.Errorf("IPv6 address %q: %w", s, packet.ErrMalformedAddress)
	}
	return a, nil
}

// parseIP parses an address of the given family.
func parseIP(s string, v4 bool) (netip.Addr, error) {
	if v4 {
		return ParseIPv4(s)
	}
	return ParseIPv6(s)
}

// checkIP verifies a has the given family.
func checkIP(a netip.Addr, v4 bool) error {
	if (v4 && !a.Is4()) || (!v4 && !a.Is6()) {
		return fmt.Errorf("address %v has the wrong family: %w", a, packet.ErrMalformedAddress)
	}
	return nil
}

// macArg returns key as a MAC address, or def if key is unset.
func macArg(args Args, key string, def net.HardwareAddr) (net.HardwareAddr, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	var mac []byte
	switch v := raw.(type) {
	case string:
		return ParseMAC(v)
	case net.HardwareAddr:
		mac = v
	case []byte:
		mac = v
	default:
		return nil, fmt.Errorf("argument %q has type %T, want MAC address: %w", key, raw, packet.ErrMalformedAddress)
	}
	if len(mac) != MACAddressSize {
		return nil, fmt.Errorf("argument %q has %d bytes: %w", key, len(mac), packet.ErrMalformedAddress)
	}
	return mac, nil
}

// ipArg returns key as an address of the given family, or def if key is
// unset.
func ipArg(args Args, key string, v4 bool, def netip.Addr) (netip.Addr, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}
	var a netip.Addr
	switch v := raw.(type) {
	case string:
		return parseIP(v, v4)
	case netip.Addr:
		a = v
	case net.IP:
		if v4 {
			v = v.To4()
		}
		var ok bool
		if a, ok = netip.AddrFromSlice(v); !ok {
			return netip.Addr{}, fmt.Errorf("argument %q: %w", key, packet.ErrMalformedAddress)
		}
	case []byte:
		var ok bool
		if a, ok = netip.AddrFromSlice(v); !ok {
			return netip.Addr{}, fmt.Errorf("argument %q: %w", key, packet.ErrMalformedAddress)
		}
	default:
		return netip.Addr{}, fmt.Errorf("argument %q has type %T, want IP address: %w", key, raw, packet.ErrMalformedAddress)
	}
	if err := checkIP(a, v4); err != nil {
		return netip.Addr{}, fmt.Errorf("argument %q: %w", key, err)
	}
	return a, nil
}

// readMAC reads the MAC address at off in r.
func readMAC(r buffer.Region, off int) (net.HardwareAddr, error) {
	b, err := r.ReadBytes(off, MACAddressSize)
	if err != nil {
		return nil, err
	}
	return append(net.HardwareAddr(nil), b...), nil
}

// writeMAC writes mac at off in r.
func writeMAC(r buffer.Region, off int, mac net.HardwareAddr) error {
	if len(mac) != MACAddressSize {
		return fmt.Errorf("MAC address %v: %w", mac, packet.ErrMalformedAddress)
	}
	return r.WriteBytes(off, mac)
}

// readIP reads an address of the given family at off in r.
func readIP(r buffer.Region, off int, v4 bool) (netip.Addr, error) {
	n := IPv6AddressSize
	if v4 {
		n = IPv4AddressSize
	}
	b, err := r.ReadBytes(off, n)
	if err != nil {
		return netip.Addr{}, err
	}
	a, _ := netip.AddrFromSlice(b)
	return a, nil
}

// writeIP writes a, which must have the given family, at off in r.
func writeIP(r buffer.Region, off int, a netip.Addr, v4 bool) error {
	if err := checkIP(a, v4); err != nil {
		return err
	}
	return r.WriteBytes(off, a.AsSlice())
}
