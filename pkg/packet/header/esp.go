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
	espSPI = field.Uint32(0)
	espSQN = field.Uint32(4)
)

const (
	// ESPMinimumSize is the size of the SPI and sequence number.
	ESPMinimumSize = 8

	// ESPDefaultIVLength is the IV length used unless one is given.
	ESPDefaultIVLength = 8

	// ESPDefaultICVLength is the ICV length used unless one is given.
	ESPDefaultICVLength = 16

	// espTrailerFixedSize covers the pad length and next header bytes.
	espTrailerFixedSize = 2

	espMaxPadding = 0xff
)

// espIVLength returns the IV length requested by args.
func espIVLength(args Args) (int, error) {
	if iv, ok, err := args.Bytes("iv"); ok || err != nil {
		return len(iv), err
	}
	return lengthArg(args, "ivLength", ESPDefaultIVLength)
}

// espICVLength returns the ICV length requested by args.
func espICVLength(args Args) (int, error) {
	if icv, ok, err := args.Bytes(ArgICV); ok || err != nil {
		return len(icv), err
	}
	return lengthArg(args, ArgICVLength, ESPDefaultICVLength)
}

// lengthArg returns key as a byte length of at most 255, or def if unset.
func lengthArg(args Args, key string, def int) (int, error) {
	v, ok, err := args.Uint(key)
	if err != nil || !ok {
		return def, err
	}
	if v > 0xff {
		return 0, fmt.Errorf("argument %q: %d: %w", key, v, packet.ErrValueOutOfRange)
	}
	return int(v), nil
}

// ESP is a view of an IPsec Encapsulating Security Payload header (RFC
// 4303). The view covers the SPI, sequence number and IV; the trailer of
// padding, pad length, next header and ICV ends where the payload of the
// enclosing header ends, or at the end of the frame if there is none.
// Nothing is encrypted.
type ESP struct {
	r      buffer.Region
	outer  Header
	icvLen int
}

// NewESP returns an ESP view over r carried by outer, which may be nil,
// whose trailer holds an ICV of icvLen bytes.
func NewESP(r buffer.Region, outer Header, icvLen int) ESP {
	return ESP{r: r, outer: outer, icvLen: icvLen}
}

// Protocol implements Header.Protocol.
func (ESP) Protocol() Protocol {
	return ProtocolESP
}

// Region implements Header.Region.
func (b ESP) Region() buffer.Region {
	return b.r
}

// SPI returns the "security parameters index" field.
func (b ESP) SPI() (uint32, error) {
	v, err := b.r.Read(espSPI)
	return uint32(v), err
}

// SetSPI sets the "security parameters index" field.
func (b ESP) SetSPI(v uint32) error {
	return b.r.Write(espSPI, uint64(v))
}

// SequenceNumber returns the "sequence number" field.
func (b ESP) SequenceNumber() (uint32, error) {
	v, err := b.r.Read(espSQN)
	return uint32(v), err
}

// SetSequenceNumber sets the "sequence number" field.
func (b ESP) SetSequenceNumber(v uint32) error {
	return b.r.Write(espSQN, uint64(v))
}

// IV returns the initialization vector. The slice aliases the buffer.
func (b ESP) IV() ([]byte, error) {
	return b.r.ReadBytes(ESPMinimumSize, b.r.Len()-ESPMinimumSize)
}

// SetIV copies iv into the header. Its length must match the IV length of
// the view.
func (b ESP) SetIV(iv []byte) error {
	if n := b.r.Len() - ESPMinimumSize; len(iv) != n {
		return fmt.Errorf("IV of %d bytes, header has %d: %w", len(iv), n, packet.ErrValueOutOfRange)
	}
	return b.r.WriteBytes(ESPMinimumSize, iv)
}

// ICVLength returns the length of the ICV in the trailer.
func (b ESP) ICVLength() int {
	return b.icvLen
}

// trailerEnd returns the offset where the trailer ends.
func (b ESP) trailerEnd() (int, error) {
	if b.outer == nil {
		return frameEnd(b.r)
	}
	if _, err := b.r.Bytes(); err != nil {
		return 0, err
	}
	return b.outer.PayloadEnd()
}

// trailerFixed returns the region holding the pad length, next header and
// ICV.
func (b ESP) trailerFixed() (buffer.Region, error) {
	end, err := b.trailerEnd()
	if err != nil {
		return buffer.Region{}, err
	}
	off := end - b.icvLen - espTrailerFixedSize
	if off < b.r.Offset()+b.r.Len() {
		return buffer.Region{}, fmt.Errorf("no room for a %d byte ICV after the header: %w", b.icvLen, packet.ErrBufferTooSmall)
	}
	return b.r.Buffer().Region(off, espTrailerFixedSize+b.icvLen)
}

// PadLength returns the "pad length" trailer field.
func (b ESP) PadLength() (uint8, error) {
	t, err := b.trailerFixed()
	if err != nil {
		return 0, err
	}
	v, err := t.Read(field.Uint8(0))
	return uint8(v), err
}

// TrailerNextHeader returns the "next header" trailer field.
func (b ESP) TrailerNextHeader() (packet.TransportProtocolNumber, error) {
	t, err := b.trailerFixed()
	if err != nil {
		return 0, err
	}
	v, err := t.Read(field.Uint8(1))
	return packet.TransportProtocolNumber(v), err
}

// SetTrailerNextHeader sets the "next header" trailer field.
func (b ESP) SetTrailerNextHeader(p packet.TransportProtocolNumber) error {
	t, err := b.trailerFixed()
	if err != nil {
		return err
	}
	return t.Write(field.Uint8(1), uint64(p))
}

// ICV returns the integrity check value ending the trailer. The slice
// aliases the buffer.
func (b ESP) ICV() ([]byte, error) {
	t, err := b.trailerFixed()
	if err != nil {
		return nil, err
	}
	return t.ReadBytes(espTrailerFixedSize, b.icvLen)
}

// SetICV copies icv into the trailer. Its length must match the ICV length
// of the view.
func (b ESP) SetICV(icv []byte) error {
	if len(icv) != b.icvLen {
		return fmt.Errorf("ICV of %d bytes, trailer has %d: %w", len(icv), b.icvLen, packet.ErrValueOutOfRange)
	}
	t, err := b.trailerFixed()
	if err != nil {
		return err
	}
	return t.WriteBytes(espTrailerFixedSize, icv)
}

// TrailerLength returns the size of the trailer: padding, pad length, next
// header and ICV.
func (b ESP) TrailerLength() (int, error) {
	pad, err := b.PadLength()
	if err != nil {
		return 0, err
	}
	return int(pad) + espTrailerFixedSize + b.icvLen, nil
}

// PayloadEnd implements Header.PayloadEnd. The protected payload ends where
// the padding starts.
func (b ESP) PayloadEnd() (int, error) {
	n, err := b.TrailerLength()
	if err != nil {
		return 0, err
	}
	end, err := b.trailerEnd()
	if err != nil {
		return 0, err
	}
	end -= n
	if end < b.r.Offset()+b.r.Len() {
		return 0, fmt.Errorf("trailer of %d bytes overlaps the header: %w", n, packet.ErrBufferTooSmall)
	}
	return end, nil
}

// SetTrailer writes the padding, pad length and next header. The padding
// bytes are 1, 2, 3 and so on.
func (b ESP) SetTrailer(padLen uint8, next packet.TransportProtocolNumber) error {
	t, err := b.trailerFixed()
	if err != nil {
		return err
	}
	start := t.Offset() - int(padLen)
	if start < b.r.Offset()+b.r.Len() {
		return fmt.Errorf("%d bytes of padding overlap the header: %w", padLen, packet.ErrBufferTooSmall)
	}
	pad, err := b.r.Buffer().Region(start, int(padLen))
	if err != nil {
		return err
	}
	pb, err := pad.Bytes()
	if err != nil {
		return err
	}
	for i := range pb {
		pb[i] = byte(i + 1)
	}
	if err := t.Write(field.Uint8(0), uint64(padLen)); err != nil {
		return err
	}
	return t.Write(field.Uint8(1), uint64(next))
}

// SetDefaultNamedArgs implements Header.SetDefaultNamedArgs.
//
// The trailer is placed at the end of the payload of prev. Unless
// padLength is given, the padding makes the length of the protected
// payload a multiple of 4. The trailer next
// header defaults to the number of next.
func (b ESP) SetDefaultNamedArgs(_ Header, args Args, next Protocol, _ int) error {
	for _, f := range []struct {
		d   field.Descriptor
		key string
	}{
		{espSPI, ArgSPI},
		{espSQN, ArgSQN},
	} {
		if err := writeUint(b.r, f.d, args, f.key, 0); err != nil {
			return err
		}
	}
	if err := writeOpaque(b.r, ESPMinimumSize, b.r.Len()-ESPMinimumSize, args, "iv"); err != nil {
		return err
	}
	t, err := b.trailerFixed()
	if err != nil {
		return err
	}
	// Bytes between the header and the pad length field.
	room := t.Offset() - (b.r.Offset() + b.r.Len())
	padLen, ok, err := args.Uint("padLength")
	if err != nil {
		return err
	}
	if !ok {
		padLen = uint64(room % 4)
	}
	if padLen > espMaxPadding || int(padLen) > room {
		return fmt.Errorf("padding of %d bytes with %d available: %w", padLen, room, packet.ErrValueOutOfRange)
	}
	nh, ok, err := args.Uint(ArgNextHeader)
	if err != nil {
		return err
	}
	if !ok {
		nh = uint64(nextIPProtocol(next, true))
	}
	if nh > 0xff {
		return fmt.Errorf("argument %q: %d: %w", ArgNextHeader, nh, packet.ErrValueOutOfRange)
	}
	if err := b.SetTrailer(uint8(padLen), packet.TransportProtocolNumber(nh)); err != nil {
		return err
	}
	icv, ok, err := args.Bytes(ArgICV)
	if err != nil {
		return err
	}
	if !ok {
		icv = make([]byte, b.icvLen)
	}
	return b.SetICV(icv)
}
