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

// Package flow tracks connections by their address four-tuple and computes
// SYN cookies.
package flow

import (
	"fmt"
	"net/netip"

	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/header"
	"pktgen.dev/pktgen/pkg/packet/stack"
)

// FourTuple identifies a flow by its source and destination endpoints.
type FourTuple struct {
	SrcIP   netip.Addr
	DstIP   netip.Addr
	SrcPort uint16
	DstPort uint16
}

// String implements fmt.Stringer.
func (t FourTuple) String() string {
	return fmt.Sprintf("%v -> %v", netip.AddrPortFrom(t.SrcIP, t.SrcPort), netip.AddrPortFrom(t.DstIP, t.DstPort))
}

// Reverse returns the tuple of the opposite direction.
func (t FourTuple) Reverse() FourTuple {
	return FourTuple{SrcIP: t.DstIP, DstIP: t.SrcIP, SrcPort: t.DstPort, DstPort: t.SrcPort}
}

// Compare orders tuples by source address, destination address, source port
// and destination port. It returns -1, 0 or +1.
func (t FourTuple) Compare(o FourTuple) int {
	if c := t.SrcIP.Compare(o.SrcIP); c != 0 {
		return c
	}
	if c := t.DstIP.Compare(o.DstIP); c != 0 {
		return c
	}
	switch {
	case t.SrcPort < o.SrcPort:
		return -1
	case t.SrcPort > o.SrcPort:
		return 1
	case t.DstPort < o.DstPort:
		return -1
	case t.DstPort > o.DstPort:
		return 1
	}
	return 0
}

// FourTupleFromStack extracts the tuple of a stack with an IPv4 or IPv6
// layer and a TCP or UDP layer.
func FourTupleFromStack(s *stack.Stack) (FourTuple, error) {
	var (
		t   FourTuple
		err error
	)
	if ip, ok := stack.Find[header.IPv4](s); ok {
		if t.SrcIP, err = ip.SourceAddress(); err != nil {
			return FourTuple{}, err
		}
		if t.DstIP, err = ip.DestinationAddress(); err != nil {
			return FourTuple{}, err
		}
	} else if ip, ok := stack.Find[header.IPv6](s); ok {
		if t.SrcIP, err = ip.SourceAddress(); err != nil {
			return FourTuple{}, err
		}
		if t.DstIP, err = ip.DestinationAddress(); err != nil {
			return FourTuple{}, err
		}
	} else {
		return FourTuple{}, fmt.Errorf("%v has no network layer: %w", s, packet.ErrUnsupportedProtocol)
	}
	if tcp, ok := stack.Find[header.TCP](s); ok {
		if t.SrcPort, err = tcp.SourcePort(); err != nil {
			return FourTuple{}, err
		}
		if t.DstPort, err = tcp.DestinationPort(); err != nil {
			return FourTuple{}, err
		}
	} else if udp, ok := stack.Find[header.UDP](s); ok {
		if t.SrcPort, err = udp.SourcePort(); err != nil {
			return FourTuple{}, err
		}
		if t.DstPort, err = udp.DestinationPort(); err != nil {
			return FourTuple{}, err
		}
	} else {
		return FourTuple{}, fmt.Errorf("%v has no port-based transport layer: %w", s, packet.ErrUnsupportedProtocol)
	}
	return t, nil
}
