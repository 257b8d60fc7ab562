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
	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/field"
)

var (
	udpSrcPort  = field.Uint16(0)
	udpDstPort  = field.Uint16(2)
	udpLength   = field.Uint16(4)
	udpChecksum = field.Uint16(6)
)

// UDPMinimumSize is the minimum size of a valid UDP packet.
const UDPMinimumSize = 8

// UDP is a view of a UDP header.
type UDP struct {
	r buffer.Region
}

// NewUDP returns a UDP view over r.
func NewUDP(r buffer.Region) UDP {
	return UDP{r}
}

// Protocol implements Header.Protocol.
func (UDP) Protocol() Protocol {
	return ProtocolUDP
}

// Region implements Header.Region.
func (b UDP) Region() buffer.Region {
	return b.r
}

// SourcePort returns the "source port" field.
func (b UDP) SourcePort() (uint16, error) {
	v, err := b.r.Read(udpSrcPort)
	return uint16(v), err
}

// SetSourcePort sets the "source port" field.
func (b UDP) SetSourcePort(port uint16) error {
	return b.r.Write(udpSrcPort, uint64(port))
}

// DestinationPort returns the "destination port" field.
func (b UDP) DestinationPort() (uint16, error) {
	v, err := b.r.Read(udpDstPort)
	return uint16(v), err
}

// SetDestinationPort sets the "destination port" field.
func (b UDP) SetDestinationPort(port uint16) error {
	return b.r.Write(udpDstPort, uint64(port))
}

// Length returns the "length" field.
func (b UDP) Length() (uint16, error) {
	v, err := b.r.Read(udpLength)
	return uint16(v), err
}

// SetLength sets the "length" field.
func (b UDP) SetLength(v uint16) error {
	return b.r.Write(udpLength, uint64(v))
}

// Checksum returns the "checksum" field.
func (b UDP) Checksum() (uint16, error) {
	v, err := b.r.Read(udpChecksum)
	return uint16(v), err
}

// SetChecksum sets the "checksum" field.
func (b UDP) SetChecksum(v uint16) error {
	return b.r.Write(udpChecksum, uint64(v))
}

// PayloadEnd implements Header.PayloadEnd. It is the end of the datagram as
// given by the length field, capped at the end of the frame.
func (b UDP) PayloadEnd() (int, error) {
	n, err := b.Length()
	if err != nil {
		return 0, err
	}
	return min(b.r.Offset()+int(n), b.r.Buffer().Size()), nil
}

// CalculateChecksum returns the checksum of the datagram, as delimited by
// its length field, and the pseudo-header of n, with the checksum field
// taken as zero. A computed value of zero is returned as 0xffff.
func (b UDP) CalculateChecksum(n Network) (uint16, error) {
	end, err := b.PayloadEnd()
	if err != nil {
		return 0, err
	}
	xsum, err := transportChecksum(b.r, udpChecksum, end, n, packet.UDPProtocolNumber, true)
	if err != nil {
		return 0, err
	}
	if xsum == 0 {
		xsum = 0xffff
	}
	return xsum, nil
}

// UpdateChecksum computes and stores the checksum of the datagram.
func (b UDP) UpdateChecksum(n Network) error {
	if err := b.SetChecksum(0); err != nil {
		return err
	}
	xsum, err := b.CalculateChecksum(n)
	if err != nil {
		return err
	}
	return b.SetChecksum(xsum)
}

// IsChecksumValid reports whether the stored checksum is correct. A zero
// checksum means none was computed and is accepted.
func (b UDP) IsChecksumValid(n Network) (bool, error) {
	cur, err := b.Checksum()
	if err != nil || cur == 0 {
		return err == nil, err
	}
	end, err := b.PayloadEnd()
	if err != nil {
		return false, err
	}
	return transportChecksumValid(b.r, end, n, packet.UDPProtocolNumber, true)
}

// SetDefaultNamedArgs implements Header.SetDefaultNamedArgs.
//
// The length defaults to the bytes from this header to the end of the
// enclosing payload. A PTP next layer selects the PTP event port as the
// destination.
func (b UDP) SetDefaultNamedArgs(prev Header, args Args, next Protocol, accumulatedLength int) error {
	length, err := remaining(prev, b.r, accumulatedLength)
	if err != nil {
		return err
	}
	var dstPort uint64
	if next == ProtocolPTP {
		dstPort = packet.PTPEventPort
	}
	for _, f := range []struct {
		d   field.Descriptor
		key string
		def uint64
	}{
		{udpSrcPort, ArgSrcPort, 0},
		{udpDstPort, ArgDstPort, dstPort},
		{udpLength, ArgLength, length},
	} {
		if err := writeUint(b.r, f.d, args, f.key, f.def); err != nil {
			return err
		}
	}
	return writeChecksum(b.r, udpChecksum, args)
}
