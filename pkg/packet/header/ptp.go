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

	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/field"
)

var (
	ptpTransportSpecific  = field.Bits(0, 0, 4)
	ptpMessageType        = field.Bits(0, 4, 4)
	ptpReserved0          = field.Bits(1, 0, 4)
	ptpVersion            = field.Bits(1, 4, 4)
	ptpMessageLength      = field.Uint16(2)
	ptpDomain             = field.Uint8(4)
	ptpReserved1          = field.Uint8(5)
	ptpFlags              = field.Uint16(6)
	ptpCorrection         = field.Uint64(8)
	ptpReserved2          = field.Uint32(16)
	ptpPortNumber         = field.Uint16(28)
	ptpSequenceID         = field.Uint16(30)
	ptpControl            = field.Uint8(32)
	ptpLogMessageInterval = field.Uint8(33)
)

const ptpClockIdentity = 20

const (
	// PTPSize is the size of the PTPv2 common header.
	PTPSize = 34

	// PTPClockIdentitySize is the size of a clock identity.
	PTPClockIdentitySize = 8

	// PTPVersion2 is the version of IEEE 1588-2008.
	PTPVersion2 = 2
)

// PTPMessageType is the type of a PTP message.
type PTPMessageType uint8

// PTP message types.
const (
	PTPSync               PTPMessageType = 0x0
	PTPDelayReq           PTPMessageType = 0x1
	PTPPdelayReq          PTPMessageType = 0x2
	PTPPdelayResp         PTPMessageType = 0x3
	PTPFollowUp           PTPMessageType = 0x8
	PTPDelayResp          PTPMessageType = 0x9
	PTPPdelayRespFollowUp PTPMessageType = 0xa
	PTPAnnounce           PTPMessageType = 0xb
	PTPSignaling          PTPMessageType = 0xc
	PTPManagement         PTPMessageType = 0xd
)

// PTP is a view of the IEEE 1588v2 common message header.
type PTP struct {
	r buffer.Region
}

// NewPTP returns a PTP view over r.
func NewPTP(r buffer.Region) PTP {
	return PTP{r}
}

// Protocol implements Header.Protocol.
func (PTP) Protocol() Protocol {
	return ProtocolPTP
}

// Region implements Header.Region.
func (b PTP) Region() buffer.Region {
	return b.r
}

// PayloadEnd implements Header.PayloadEnd. It is the end of the message as
// given by the message length, capped at the end of the frame.
func (b PTP) PayloadEnd() (int, error) {
	n, err := b.MessageLength()
	if err != nil {
		return 0, err
	}
	return min(b.r.Offset()+int(n), b.r.Buffer().Size()), nil
}

// TransportSpecific returns the "transportSpecific" nibble.
func (b PTP) TransportSpecific() (uint8, error) {
	v, err := b.r.Read(ptpTransportSpecific)
	return uint8(v), err
}

// SetTransportSpecific sets the "transportSpecific" nibble.
func (b PTP) SetTransportSpecific(v uint8) error {
	return b.r.Write(ptpTransportSpecific, uint64(v))
}

// MessageType returns the "messageType" nibble.
func (b PTP) MessageType() (PTPMessageType, error) {
	v, err := b.r.Read(ptpMessageType)
	return PTPMessageType(v), err
}

// SetMessageType sets the "messageType" nibble.
func (b PTP) SetMessageType(t PTPMessageType) error {
	return b.r.Write(ptpMessageType, uint64(t))
}

// Version returns the "versionPTP" nibble.
func (b PTP) Version() (uint8, error) {
	v, err := b.r.Read(ptpVersion)
	return uint8(v), err
}

// SetVersion sets the "versionPTP" nibble.
func (b PTP) SetVersion(v uint8) error {
	return b.r.Write(ptpVersion, uint64(v))
}

// MessageLength returns the "messageLength" field.
func (b PTP) MessageLength() (uint16, error) {
	v, err := b.r.Read(ptpMessageLength)
	return uint16(v), err
}

// SetMessageLength sets the "messageLength" field.
func (b PTP) SetMessageLength(v uint16) error {
	return b.r.Write(ptpMessageLength, uint64(v))
}

// Domain returns the "domainNumber" field.
func (b PTP) Domain() (uint8, error) {
	v, err := b.r.Read(ptpDomain)
	return uint8(v), err
}

// SetDomain sets the "domainNumber" field.
func (b PTP) SetDomain(v uint8) error {
	return b.r.Write(ptpDomain, uint64(v))
}

// Flags returns the "flagField".
func (b PTP) Flags() (uint16, error) {
	v, err := b.r.Read(ptpFlags)
	return uint16(v), err
}

// SetFlags sets the "flagField".
func (b PTP) SetFlags(v uint16) error {
	return b.r.Write(ptpFlags, uint64(v))
}

// Correction returns the "correctionField" in units of 2^-16 ns.
func (b PTP) Correction() (int64, error) {
	v, err := b.r.Read(ptpCorrection)
	return int64(v), err
}

// SetCorrection sets the "correctionField".
func (b PTP) SetCorrection(v int64) error {
	return b.r.Write(ptpCorrection, uint64(v))
}

// ClockIdentity returns the clock identity of the source port.
func (b PTP) ClockIdentity() ([]byte, error) {
	return b.r.ReadBytes(ptpClockIdentity, PTPClockIdentitySize)
}

// SetClockIdentity sets the clock identity of the source port.
func (b PTP) SetClockIdentity(id []byte) error {
	if len(id) != PTPClockIdentitySize {
		return fmt.Errorf("clock identity of %d bytes: %w", len(id), packet.ErrMalformedAddress)
	}
	return b.r.WriteBytes(ptpClockIdentity, id)
}

// SetClockIdentityString parses an EUI-64 such as 00:11:22:ff:fe:33:44:55
// and sets the clock identity.
func (b PTP) SetClockIdentityString(s string) error {
	id, err := parseClockIdentity(s)
	if err != nil {
		return err
	}
	return b.SetClockIdentity(id)
}

func parseClockIdentity(s string) ([]byte, error) {
	id, err := net.ParseMAC(s)
	if err != nil || len(id) != PTPClockIdentitySize {
		return nil, fmt.Errorf("clock identity %q: %w", s, packet.ErrMalformedAddress)
	}
	return id, nil
}

// PortNumber returns the port number of the source port.
func (b PTP) PortNumber() (uint16, error) {
	v, err := b.r.Read(ptpPortNumber)
	return uint16(v), err
}

// SetPortNumber sets the port number of the source port.
func (b PTP) SetPortNumber(v uint16) error {
	return b.r.Write(ptpPortNumber, uint64(v))
}

// SequenceID returns the "sequenceId" field.
func (b PTP) SequenceID() (uint16, error) {
	v, err := b.r.Read(ptpSequenceID)
	return uint16(v), err
}

// SetSequenceID sets the "sequenceId" field.
func (b PTP) SetSequenceID(v uint16) error {
	return b.r.Write(ptpSequenceID, uint64(v))
}

// Control returns the "controlField".
func (b PTP) Control() (uint8, error) {
	v, err := b.r.Read(ptpControl)
	return uint8(v), err
}

// SetControl sets the "controlField".
func (b PTP) SetControl(v uint8) error {
	return b.r.Write(ptpControl, uint64(v))
}

// LogMessageInterval returns the "logMessageInterval" field.
func (b PTP) LogMessageInterval() (int8, error) {
	v, err := b.r.Read(ptpLogMessageInterval)
	return int8(v), err
}

// SetLogMessageInterval sets the "logMessageInterval" field.
func (b PTP) SetLogMessageInterval(v int8) error {
	return b.r.Write(ptpLogMessageInterval, uint64(uint8(v)))
}

// SetDefaultNamedArgs implements Header.SetDefaultNamedArgs.
//
// Defaults describe a version 2 Sync message whose length runs to the end
// of the enclosing payload.
func (b PTP) SetDefaultNamedArgs(prev Header, args Args, _ Protocol, accumulatedLength int) error {
	length, err := remaining(prev, b.r, accumulatedLength)
	if err != nil {
		return err
	}
	for _, d := range []field.Descriptor{ptpReserved0, ptpReserved1, ptpReserved2} {
		if err := b.r.Write(d, 0); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		d   field.Descriptor
		key string
		def uint64
	}{
		{ptpTransportSpecific, "transportSpecific", 0},
		{ptpMessageType, "messageType", uint64(PTPSync)},
		{ptpVersion, ArgVersion, PTPVersion2},
		{ptpMessageLength, ArgLength, length},
		{ptpDomain, "domain", 0},
		{ptpFlags, ArgFlags, 0},
		{ptpPortNumber, "portNumber", 0},
		{ptpSequenceID, "sequenceId", 0},
		{ptpControl, "control", 0},
	} {
		if err := writeUint(b.r, f.d, args, f.key, f.def); err != nil {
			return err
		}
	}
	for _, f := range []struct {
		key string
		set func(int64) error
		lo  int64
		hi  int64
	}{
		{"correction", b.SetCorrection, -1 << 63, 1<<63 - 1},
		{"logMessageInterval", func(v int64) error { return b.SetLogMessageInterval(int8(v)) }, -128, 127},
	} {
		v, _, err := args.Int(f.key)
		if err != nil {
			return err
		}
		if v < f.lo || v > f.hi {
			return fmt.Errorf("argument %q: %d: %w", f.key, v, packet.ErrValueOutOfRange)
		}
		if err := f.set(v); err != nil {
			return err
		}
	}
	id := make([]byte, PTPClockIdentitySize)
	if raw, ok := args["clockIdentity"]; ok {
		switch v := raw.(type) {
		case string:
			if id, err = parseClockIdentity(v); err != nil {
				return err
			}
		case []byte:
			id = v
		default:
			return fmt.Errorf("argument %q has type %T: %w", "clockIdentity", raw, packet.ErrMalformedAddress)
		}
	}
	if err := b.SetClockIdentity(id); err != nil {
		return err
	}
	return patchEtherType(prev, packet.PTPProtocolNumber)
}
