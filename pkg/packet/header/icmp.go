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

	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/field"
)

var (
	icmpType     = field.Uint8(0)
	icmpCode     = field.Uint8(1)
	icmpChecksum = field.Uint16(2)
	icmpIdent    = field.Uint16(4)
	icmpSequence = field.Uint16(6)
)

const (
	// ICMPMinimumSize is the size of the fixed ICMP header, including the
	// echo identifier and sequence number.
	ICMPMinimumSize = 8

	// ICMPv4EchoRequest is the ICMPv4 echo request type.
	ICMPv4EchoRequest = 8

	// ICMPv4EchoReply is the ICMPv4 echo reply type.
	ICMPv4EchoReply = 0

	// ICMPv6EchoRequest is the ICMPv6 echo request type.
	ICMPv6EchoRequest = 128

	// ICMPv6EchoReply is the ICMPv6 echo reply type.
	ICMPv6EchoReply = 129
)

// ICMP is a view of an ICMPv4 or ICMPv6 header. The message body follows
// the view and runs to the end of the network payload.
type ICMP struct {
	r buffer.Region
}

// NewICMP returns an ICMP view over r.
func NewICMP(r buffer.Region) ICMP {
	return ICMP{r}
}

// Protocol implements Header.Protocol.
func (ICMP) Protocol() Protocol {
	return ProtocolICMP
}

// Region implements Header.Region.
func (b ICMP) Region() buffer.Region {
	return b.r
}

// PayloadEnd implements Header.PayloadEnd.
func (b ICMP) PayloadEnd() (int, error) {
	return frameEnd(b.r)
}

// Type returns the "type" field.
func (b ICMP) Type() (uint8, error) {
	v, err := b.r.Read(icmpType)
	return uint8(v), err
}

// SetType sets the "type" field.
func (b ICMP) SetType(t uint8) error {
	return b.r.Write(icmpType, uint64(t))
}

// Code returns the "code" field.
func (b ICMP) Code() (uint8, error) {
	v, err := b.r.Read(icmpCode)
	return uint8(v), err
}

// SetCode sets the "code" field.
func (b ICMP) SetCode(c uint8) error {
	return b.r.Write(icmpCode, uint64(c))
}

// Checksum returns the "checksum" field.
func (b ICMP) Checksum() (uint16, error) {
	v, err := b.r.Read(icmpChecksum)
	return uint16(v), err
}

// SetChecksum sets the "checksum" field.
func (b ICMP) SetChecksum(v uint16) error {
	return b.r.Write(icmpChecksum, uint64(v))
}

// Ident returns the echo identifier.
func (b ICMP) Ident() (uint16, error) {
	v, err := b.r.Read(icmpIdent)
	return uint16(v), err
}

// SetIdent sets the echo identifier.
func (b ICMP) SetIdent(v uint16) error {
	return b.r.Write(icmpIdent, uint64(v))
}

// Sequence returns the echo sequence number.
func (b ICMP) Sequence() (uint16, error) {
	v, err := b.r.Read(icmpSequence)
	return uint16(v), err
}

// SetSequence sets the echo sequence number.
func (b ICMP) SetSequence(v uint16) error {
	return b.r.Write(icmpSequence, uint64(v))
}

// Body returns the message body, from the end of the view to the end of the
// frame. The slice aliases the buffer.
func (b ICMP) Body() ([]byte, error) {
	tail, err := b.r.Tail()
	if err != nil {
		return nil, err
	}
	return tail[b.r.Len():], nil
}

// SetBody copies body to the start of the message body. It fails if body
// is longer than the bytes left in the frame.
func (b ICMP) SetBody(body []byte) error {
	dst, err := b.Body()
	if err != nil {
		return err
	}
	if len(body) > len(dst) {
		return fmt.Errorf("%d bytes of body, room for %d: %w", len(body), len(dst), packet.ErrBufferTooSmall)
	}
	copy(dst, body)
	return nil
}

// isICMPv6 reports whether a message carried by n is ICMPv6.
func isICMPv6(n Network) bool {
	if b, ok := n.(boundedNetwork); ok {
		n = b.Network
	}
	_, ok := n.(IPv6)
	return ok
}

// CalculateChecksum returns the checksum of the message, which ends where
// the payload of n ends. ICMPv6 messages, those carried by IPv6, include
// the pseudo-header of n.
func (b ICMP) CalculateChecksum(n Network) (uint16, error) {
	end, err := networkEnd(b.r, n)
	if err != nil {
		return 0, err
	}
	return transportChecksum(b.r, icmpChecksum, end, n, packet.ICMPv6ProtocolNumber, isICMPv6(n))
}

// UpdateChecksum computes and stores the checksum of the message.
func (b ICMP) UpdateChecksum(n Network) error {
	if err := b.SetChecksum(0); err != nil {
		return err
	}
	xsum, err := b.CalculateChecksum(n)
	if err != nil {
		return err
	}
	return b.SetChecksum(xsum)
}

// IsChecksumValid reports whether the stored checksum is correct.
func (b ICMP) IsChecksumValid(n Network) (bool, error) {
	end, err := networkEnd(b.r, n)
	if err != nil {
		return false, err
	}
	return transportChecksumValid(b.r, end, n, packet.ICMPv6ProtocolNumber, isICMPv6(n))
}

// SetDefaultNamedArgs implements Header.SetDefaultNamedArgs.
//
// The type defaults to echo request, using the ICMPv6 number when the
// preceding header is IPv6.
func (b ICMP) SetDefaultNamedArgs(prev Header, args Args, _ Protocol, _ int) error {
	var typ uint64 = ICMPv4EchoRequest
	if _, ok := prev.(IPv6); ok {
		typ = ICMPv6EchoRequest
	}
	for _, f := range []struct {
		d   field.Descriptor
		key string
		def uint64
	}{
		{icmpType, "type", typ},
		{icmpCode, "code", 0},
		{icmpIdent, "ident", 0},
		{icmpSequence, "sequence", 0},
	} {
		if err := writeUint(b.r, f.d, args, f.key, f.def); err != nil {
			return err
		}
	}
	body, _, err := args.Bytes("body")
	if err != nil {
		return err
	}
	if err := b.SetBody(body); err != nil {
		return err
	}
	return writeChecksum(b.r, icmpChecksum, args)
}
