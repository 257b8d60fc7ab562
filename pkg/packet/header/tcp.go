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
	tcpSrcPort    = field.Uint16(0)
	tcpDstPort    = field.Uint16(2)
	tcpSeqNum     = field.Uint32(4)
	tcpAckNum     = field.Uint32(8)
	tcpDataOffset = field.Bits(12, 0, 4)
	tcpReserved   = field.Bits(12, 4, 3)
	tcpNS         = field.Bits(12, 7, 1)
	tcpFlags      = field.Uint8(13)
	tcpWinSize    = field.Uint16(14)
	tcpChecksum   = field.Uint16(16)
	tcpUrgentPtr  = field.Uint16(18)
)

const (
	// TCPMinimumSize is the minimum size of a valid TCP packet.
	TCPMinimumSize = 20

	// TCPOptionsMaximumSize is the maximum size of TCP options.
	TCPOptionsMaximumSize = 40

	// TCPDefaultWindow is the window advertised by built segments.
	TCPDefaultWindow = 0xffff
)

// TCPFlags is the set of flags carried in the TCP flags byte.
type TCPFlags uint8

// Flags that may be set in a TCP segment.
const (
	TCPFlagFin TCPFlags = 1 << iota
	TCPFlagSyn
	TCPFlagRst
	TCPFlagPsh
	TCPFlagAck
	TCPFlagUrg
	TCPFlagEce
	TCPFlagCwr
)

// Contains returns true iff all the flags in o are contained in l.
func (l TCPFlags) Contains(o TCPFlags) bool {
	return l&o == o
}

// String implements fmt.Stringer.
func (l TCPFlags) String() string {
	var b [8]byte
	for i, c := range "FSRPAUEC" {
		if l&(1<<i) != 0 {
			b[i] = byte(c)
		} else {
			b[i] = ' '
		}
	}
	return string(b[:])
}

// TCPFields contains the fields of a TCP packet. It is used to describe the
// fields of a packet that needs to be encoded.
type TCPFields struct {
	// SrcPort is the "source port" field.
	SrcPort uint16

	// DstPort is the "destination port" field.
	DstPort uint16

	// SeqNum is the "sequence number" field.
	SeqNum uint32

	// AckNum is the "acknowledgement number" field.
	AckNum uint32

	// Flags is the "flags" field.
	Flags TCPFlags

	// WindowSize is the "window size" field.
	WindowSize uint16

	// UrgentPointer is the "urgent pointer" field.
	UrgentPointer uint16
}

// TCP is a view of a TCP header, including its options.
type TCP struct {
	r buffer.Region
}

// NewTCP returns a TCP view over r.
func NewTCP(r buffer.Region) TCP {
	return TCP{r}
}

// Protocol implements Header.Protocol.
func (TCP) Protocol() Protocol {
	return ProtocolTCP
}

// Region implements Header.Region.
func (b TCP) Region() buffer.Region {
	return b.r
}

// PayloadEnd implements Header.PayloadEnd. TCP has no length of its own;
// the payload runs to the end of the frame.
func (b TCP) PayloadEnd() (int, error) {
	return frameEnd(b.r)
}

// SourcePort returns the "source port" field.
func (b TCP) SourcePort() (uint16, error) {
	v, err := b.r.Read(tcpSrcPort)
	return uint16(v), err
}

// SetSourcePort sets the "source port" field.
func (b TCP) SetSourcePort(port uint16) error {
	return b.r.Write(tcpSrcPort, uint64(port))
}

// DestinationPort returns the "destination port" field.
func (b TCP) DestinationPort() (uint16, error) {
	v, err := b.r.Read(tcpDstPort)
	return uint16(v), err
}

// SetDestinationPort sets the "destination port" field.
func (b TCP) SetDestinationPort(port uint16) error {
	return b.r.Write(tcpDstPort, uint64(port))
}

// SequenceNumber returns the "sequence number" field.
func (b TCP) SequenceNumber() (uint32, error) {
	v, err := b.r.Read(tcpSeqNum)
	return uint32(v), err
}

// SetSequenceNumber sets the "sequence number" field.
func (b TCP) SetSequenceNumber(v uint32) error {
	return b.r.Write(tcpSeqNum, uint64(v))
}

// AckNumber returns the "ack number" field.
func (b TCP) AckNumber() (uint32, error) {
	v, err := b.r.Read(tcpAckNum)
	return uint32(v), err
}

// SetAckNumber sets the "ack number" field.
func (b TCP) SetAckNumber(v uint32) error {
	return b.r.Write(tcpAckNum, uint64(v))
}

// DataOffset returns the "data offset" field in 32-bit words.
func (b TCP) DataOffset() (uint8, error) {
	v, err := b.r.Read(tcpDataOffset)
	return uint8(v), err
}

// SetDataOffset sets the "data offset" field in 32-bit words.
func (b TCP) SetDataOffset(words uint8) error {
	return b.r.Write(tcpDataOffset, uint64(words))
}

// HeaderLength returns the header length in bytes, per the data offset.
func (b TCP) HeaderLength() (int, error) {
	v, err := b.DataOffset()
	return int(v) * 4, err
}

// Reserved returns the three reserved bits.
func (b TCP) Reserved() (uint8, error) {
	v, err := b.r.Read(tcpReserved)
	return uint8(v), err
}

// SetReserved sets the three reserved bits.
func (b TCP) SetReserved(v uint8) error {
	return b.r.Write(tcpReserved, uint64(v))
}

// Flags returns the flags byte.
func (b TCP) Flags() (TCPFlags, error) {
	v, err := b.r.Read(tcpFlags)
	return TCPFlags(v), err
}

// SetFlags sets the flags byte.
func (b TCP) SetFlags(f TCPFlags) error {
	return b.r.Write(tcpFlags, uint64(f))
}

// SetFlag sets or clears the flags in f, leaving the others unchanged.
func (b TCP) SetFlag(f TCPFlags, on bool) error {
	cur, err := b.Flags()
	if err != nil {
		return err
	}
	if on {
		cur |= f
	} else {
		cur &^= f
	}
	return b.SetFlags(cur)
}

// NS returns the ECN-nonce flag.
func (b TCP) NS() (bool, error) {
	v, err := b.r.Read(tcpNS)
	return v == 1, err
}

// SetNS sets or clears the ECN-nonce flag.
func (b TCP) SetNS(on bool) error {
	var v uint64
	if on {
		v = 1
	}
	return b.r.Write(tcpNS, v)
}

// SetCWR sets or clears the CWR flag.
func (b TCP) SetCWR(on bool) error { return b.SetFlag(TCPFlagCwr, on) }

// SetECE sets or clears the ECE flag.
func (b TCP) SetECE(on bool) error { return b.SetFlag(TCPFlagEce, on) }

// SetURG sets or clears the URG flag.
func (b TCP) SetURG(on bool) error { return b.SetFlag(TCPFlagUrg, on) }

// SetACK sets or clears the ACK flag.
func (b TCP) SetACK(on bool) error { return b.SetFlag(TCPFlagAck, on) }

// SetPSH sets or clears the PSH flag.
func (b TCP) SetPSH(on bool) error { return b.SetFlag(TCPFlagPsh, on) }

// SetRST sets or clears the RST flag.
func (b TCP) SetRST(on bool) error { return b.SetFlag(TCPFlagRst, on) }

// SetSYN sets or clears the SYN flag.
func (b TCP) SetSYN(on bool) error { return b.SetFlag(TCPFlagSyn, on) }

// SetFIN sets or clears the FIN flag.
func (b TCP) SetFIN(on bool) error { return b.SetFlag(TCPFlagFin, on) }

// WindowSize returns the "window size" field.
func (b TCP) WindowSize() (uint16, error) {
	v, err := b.r.Read(tcpWinSize)
	return uint16(v), err
}

// SetWindowSize sets the "window size" field.
func (b TCP) SetWindowSize(v uint16) error {
	return b.r.Write(tcpWinSize, uint64(v))
}

// Checksum returns the "checksum" field.
func (b TCP) Checksum() (uint16, error) {
	v, err := b.r.Read(tcpChecksum)
	return uint16(v), err
}

// SetChecksum sets the "checksum" field.
func (b TCP) SetChecksum(v uint16) error {
	return b.r.Write(tcpChecksum, uint64(v))
}

// UrgentPointer returns the "urgent pointer" field.
func (b TCP) UrgentPointer() (uint16, error) {
	v, err := b.r.Read(tcpUrgentPtr)
	return uint16(v), err
}

// SetUrgentPointer sets the "urgent pointer" field.
func (b TCP) SetUrgentPointer(v uint16) error {
	return b.r.Write(tcpUrgentPtr, uint64(v))
}

// Options returns the options area of the view.
func (b TCP) Options() ([]byte, error) {
	return b.r.ReadBytes(TCPMinimumSize, b.r.Len()-TCPMinimumSize)
}

// SetOptions copies opts into the options area and pads the rest of it
// with end-of-list bytes. opts must fit the area.
func (b TCP) SetOptions(opts []byte) error {
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

// CalculateChecksum returns the checksum of the segment and the
// pseudo-header of n, with the checksum field taken as zero. The segment
// ends where the payload of n ends.
func (b TCP) CalculateChecksum(n Network) (uint16, error) {
	end, err := networkEnd(b.r, n)
	if err != nil {
		return 0, err
	}
	return transportChecksum(b.r, tcpChecksum, end, n, packet.TCPProtocolNumber, true)
}

// UpdateChecksum computes and stores the checksum of the segment.
func (b TCP) UpdateChecksum(n Network) error {
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
func (b TCP) IsChecksumValid(n Network) (bool, error) {
	end, err := networkEnd(b.r, n)
	if err != nil {
		return false, err
	}
	return transportChecksumValid(b.r, end, n, packet.TCPProtocolNumber, true)
}

// Encode encodes all the fields of the TCP header other than the checksum.
// The data offset is taken from the size of the view.
func (b TCP) Encode(t *TCPFields) error {
	for _, f := range []struct {
		d field.Descriptor
		v uint64
	}{
		{tcpSrcPort, uint64(t.SrcPort)},
		{tcpDstPort, uint64(t.DstPort)},
		{tcpSeqNum, uint64(t.SeqNum)},
		{tcpAckNum, uint64(t.AckNum)},
		{tcpDataOffset, uint64(b.r.Len() / 4)},
		{tcpFlags, uint64(t.Flags)},
		{tcpWinSize, uint64(t.WindowSize)},
		{tcpUrgentPtr, uint64(t.UrgentPointer)},
	} {
		if err := b.r.Write(f.d, f.v); err != nil {
			return err
		}
	}
	return nil
}

// SetDefaultNamedArgs implements Header.SetDefaultNamedArgs.
//
// The data offset defaults to the size of the header including options.
func (b TCP) SetDefaultNamedArgs(_ Header, args Args, _ Protocol, _ int) error {
	opts, _, err := args.Bytes(ArgOptions)
	if err != nil {
		return err
	}
	if err := b.SetOptions(opts); err != nil {
		return err
	}
	if err := b.r.Write(tcpReserved, 0); err != nil {
		return err
	}
	if err := b.r.Write(tcpNS, 0); err != nil {
		return err
	}
	for _, f := range []struct {
		d   field.Descriptor
		key string
		def uint64
	}{
		{tcpSrcPort, ArgSrcPort, 0},
		{tcpDstPort, ArgDstPort, 0},
		{tcpSeqNum, "seq", 0},
		{tcpAckNum, "ack", 0},
		{tcpDataOffset, "dataOffset", uint64(b.r.Len() / 4)},
		{tcpFlags, ArgFlags, 0},
		{tcpWinSize, "window", TCPDefaultWindow},
		{tcpUrgentPtr, "urgentPointer", 0},
	} {
		if err := writeUint(b.r, f.d, args, f.key, f.def); err != nil {
			return err
		}
	}
	return writeChecksum(b.r, tcpChecksum, args)
}
