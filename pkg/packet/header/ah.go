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
	ahNextHeader = field.Uint8(0)
	ahPayloadLen = field.Uint8(1)
	ahReserved   = field.Uint16(2)
	ahSPI        = field.Uint32(4)
	ahSQN        = field.Uint32(8)
)

const (
	// AHMinimumSize is the size of the fixed part of an Authentication
	// Header.
	AHMinimumSize = 12

	// AHDefaultICVLength is the ICV length used unless one is given.
	AHDefaultICVLength = 16

	// ahMaximumSize is the largest header the payload length field can
	// describe.
	ahMaximumSize = (0xff + 2) * 4
)

// ahICVLength returns the ICV length requested by args.
func ahICVLength(args Args) (int, error) {
	icv, ok, err := args.Bytes(ArgICV)
	if err != nil {
		return 0, err
	}
	n := len(icv)
	if !ok {
		v, ok, err := args.Uint(ArgICVLength)
		if err != nil {
			return 0, err
		}
		n = AHDefaultICVLength
		if ok {
			if v > ahMaximumSize {
				return 0, fmt.Errorf("ICV length %d: %w", v, packet.ErrValueOutOfRange)
			}
			n = int(v)
		}
	}
	if n%4 != 0 || AHMinimumSize+n > ahMaximumSize {
		return 0, fmt.Errorf("ICV length %d is not a multiple of 4 up to %d: %w", n, ahMaximumSize-AHMinimumSize, packet.ErrValueOutOfRange)
	}
	return n, nil
}

// AH is a view of an IPsec Authentication Header (RFC 4302). The ICV is an
// opaque byte string; no authentication is performed.
type AH struct {
	r buffer.Region
}

// NewAH returns an AH view over r.
func NewAH(r buffer.Region) AH {
	return AH{r}
}

// Protocol implements Header.Protocol.
func (AH) Protocol() Protocol {
	return ProtocolAH
}

// Region implements Header.Region.
func (b AH) Region() buffer.Region {
	return b.r
}

// PayloadEnd implements Header.PayloadEnd.
func (b AH) PayloadEnd() (int, error) {
	return frameEnd(b.r)
}

// NextHeader returns the "next header" field.
func (b AH) NextHeader() (packet.TransportProtocolNumber, error) {
	v, err := b.r.Read(ahNextHeader)
	return packet.TransportProtocolNumber(v), err
}

// SetNextHeader sets the "next header" field.
func (b AH) SetNextHeader(p packet.TransportProtocolNumber) error {
	return b.r.Write(ahNextHeader, uint64(p))
}

// PayloadLength returns the "payload length" field: the header length in
// 32-bit words minus 2.
func (b AH) PayloadLength() (uint8, error) {
	v, err := b.r.Read(ahPayloadLen)
	return uint8(v), err
}

// SetPayloadLength sets the "payload length" field.
func (b AH) SetPayloadLength(v uint8) error {
	return b.r.Write(ahPayloadLen, uint64(v))
}

// SPI returns the "security parameters index" field.
func (b AH) SPI() (uint32, error) {
	v, err := b.r.Read(ahSPI)
	return uint32(v), err
}

// SetSPI sets the "security parameters index" field.
func (b AH) SetSPI(v uint32) error {
	return b.r.Write(ahSPI, uint64(v))
}

// SequenceNumber returns the "sequence number" field.
func (b AH) SequenceNumber() (uint32, error) {
	v, err := b.r.Read(ahSQN)
	return uint32(v), err
}

// SetSequenceNumber sets the "sequence number" field.
func (b AH) SetSequenceNumber(v uint32) error {
	return b.r.Write(ahSQN, uint64(v))
}

// ICVLength returns the ICV length declared by the payload length field.
func (b AH) ICVLength() (int, error) {
	v, err := b.PayloadLength()
	if err != nil {
		return 0, err
	}
	n := (int(v)+2)*4 - AHMinimumSize
	if n < 0 {
		return 0, fmt.Errorf("payload length %d: %w", v, packet.ErrValueOutOfRange)
	}
	return n, nil
}

// ICV returns the integrity check value. The slice aliases the buffer.
func (b AH) ICV() ([]byte, error) {
	n, err := b.ICVLength()
	if err != nil {
		return nil, err
	}
	return b.r.ReadBytes(AHMinimumSize, n)
}

// SetICV copies icv into the header. Its length must match the declared
// ICV length.
func (b AH) SetICV(icv []byte) error {
	n, err := b.ICVLength()
	if err != nil {
		return err
	}
	if len(icv) != n {
		return fmt.Errorf("ICV of %d bytes, header declares %d: %w", len(icv), n, packet.ErrValueOutOfRange)
	}
	return b.r.WriteBytes(AHMinimumSize, icv)
}

// SetDefaultNamedArgs implements Header.SetDefaultNamedArgs.
//
// The payload length is derived from the size of the view and the next
// header from next.
func (b AH) SetDefaultNamedArgs(prev Header, args Args, next Protocol, _ int) error {
	_, v6 := prev.(IPv6)
	for _, f := range []struct {
		d   field.Descriptor
		key string
		def uint64
	}{
		{ahNextHeader, ArgNextHeader, uint64(nextIPProtocol(next, v6))},
		{ahSPI, ArgSPI, 0},
		{ahSQN, ArgSQN, 0},
	} {
		if err := writeUint(b.r, f.d, args, f.key, f.def); err != nil {
			return err
		}
	}
	if err := b.r.Write(ahReserved, 0); err != nil {
		return err
	}
	if err := b.r.Write(ahPayloadLen, uint64(b.r.Len()/4-2)); err != nil {
		return err
	}
	return writeOpaque(b.r, AHMinimumSize, b.r.Len()-AHMinimumSize, args, ArgICV)
}
