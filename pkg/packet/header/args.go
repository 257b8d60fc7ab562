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
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"

	"github.com/spf13/cast"
	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/field"
)

// Named arguments shared by several protocols.
const (
	ArgChecksum   = "checksum"
	ArgLength     = "length"
	ArgNextHeader = "nextHeader"
	ArgOptions    = "options"
	ArgVersion    = "version"
	ArgSrcIP      = "srcIp"
	ArgDstIP      = "dstIp"
	ArgSrcPort    = "srcPort"
	ArgDstPort    = "dstPort"
	ArgFlags      = "flags"
	ArgSPI        = "spi"
	ArgSQN        = "sqn"
	ArgICV        = "icv"
	ArgICVLength  = "icvLength"
)

// checksumAuto selects checksum computation when given as the checksum
// argument.
const checksumAuto = "auto"

var protocolFields = map[Protocol][]string{
	ProtocolEthernet: {"dstMac", "srcMac", "ethType"},
	ProtocolARP:      {"op", "senderMac", "senderIp", "targetMac", "targetIp", "hardwareType", "protocolType"},
	ProtocolIPv4: {ArgSrcIP, ArgDstIP, "ttl", "tos", "id", ArgFlags, "fragment", "protocol", ArgLength,
		"headerLength", ArgChecksum, ArgOptions, ArgVersion},
	ProtocolIPv6: {ArgSrcIP, ArgDstIP, "trafficClass", "flowLabel", "hopLimit", ArgNextHeader, ArgLength, ArgVersion},
	ProtocolTCP: {ArgSrcPort, ArgDstPort, "seq", "ack", "dataOffset", ArgFlags, "window", ArgChecksum,
		"urgentPointer", ArgOptions},
	ProtocolUDP:  {ArgSrcPort, ArgDstPort, ArgLength, ArgChecksum},
	ProtocolICMP: {"type", "code", ArgChecksum, "ident", "sequence", "body"},
	ProtocolAH:   {ArgNextHeader, ArgSPI, ArgSQN, ArgICV, ArgICVLength},
	ProtocolESP:  {ArgSPI, ArgSQN, "iv", "ivLength", ArgICV, ArgICVLength, ArgNextHeader, "padLength"},
	ProtocolPTP: {"messageType", ArgVersion, ArgLength, "domain", ArgFlags, "correction", "clockIdentity",
		"portNumber", "sequenceId", "control", "logMessageInterval", "transportSpecific"},
}

// Args is a set of named header arguments. Values may be any integer type,
// a numeric string, a byte slice, an address or its textual form, depending
// on the field.
type Args map[string]any

// Has reports whether key is set.
func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Clone returns a shallow copy of a.
func (a Args) Clone() Args {
	c := make(Args, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// Uint returns key as an unsigned integer. ok is false if key is unset.
func (a Args) Uint(key string) (v uint64, ok bool, err error) {
	raw, ok := a[key]
	if !ok {
		return 0, false, nil
	}
	v, err = cast.ToUint64E(underlying(raw))
	if err != nil {
		return 0, true, fmt.Errorf("argument %q: %v: %w", key, err, packet.ErrValueOutOfRange)
	}
	return v, true, nil
}

// Int returns key as a signed integer. ok is false if key is unset.
func (a Args) Int(key string) (v int64, ok bool, err error) {
	raw, ok := a[key]
	if !ok {
		return 0, false, nil
	}
	v, err = cast.ToInt64E(underlying(raw))
	if err != nil {
		return 0, true, fmt.Errorf("argument %q: %v: %w", key, err, packet.ErrValueOutOfRange)
	}
	return v, true, nil
}

// String returns key as a string. ok is false if key is unset.
func (a Args) String(key string) (s string, ok bool, err error) {
	raw, ok := a[key]
	if !ok {
		return "", false, nil
	}
	if st, isStringer := raw.(fmt.Stringer); isStringer {
		return st.String(), true, nil
	}
	s, err = cast.ToStringE(raw)
	if err != nil {
		return "", true, fmt.Errorf("argument %q: %v: %w", key, err, packet.ErrValueOutOfRange)
	}
	return s, true, nil
}

// Bytes returns key as a byte string. Strings are decoded as hex, with an
// optional 0x prefix and optional ':' separators.
func (a Args) Bytes(key string) (b []byte, ok bool, err error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	switch v := raw.(type) {
	case []byte:
		return v, true, nil
	case string:
		s := strings.ReplaceAll(strings.TrimPrefix(v, "0x"), ":", "")
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, true, fmt.Errorf("argument %q: %v: %w", key, err, packet.ErrValueOutOfRange)
		}
		return b, true, nil
	}
	return nil, true, fmt.Errorf("argument %q has type %T, want bytes: %w", key, raw, packet.ErrValueOutOfRange)
}

// AutoChecksum reports whether the checksum of a header built from a
// should be computed rather than taken from the arguments.
func (a Args) AutoChecksum() bool {
	raw, ok := a[ArgChecksum]
	if !ok || raw == nil {
		return true
	}
	s, isString := raw.(string)
	return isString && strings.EqualFold(s, checksumAuto)
}

// underlying converts values of named integer types, such as TCPFlags, to
// their underlying kind so that cast recognizes them.
func underlying(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	}
	return v
}

// writeUint writes key, or def if key is unset, to the field d of r.
func writeUint(r buffer.Region, d field.Descriptor, args Args, key string, def uint64) error {
	v, ok, err := args.Uint(key)
	if err != nil {
		return err
	}
	if !ok {
		v = def
	}
	if err := r.Write(d, v); err != nil {
		return fmt.Errorf("argument %q: %w", key, err)
	}
	return nil
}

// writeChecksum writes an explicit checksum argument to d and zeroes the
// field otherwise.
func writeChecksum(r buffer.Region, d field.Descriptor, args Args) error {
	if args.AutoChecksum() {
		return r.Write(d, 0)
	}
	return writeUint(r, d, args, ArgChecksum, 0)
}

// writeOpaque copies key, or zeroes if unset, into n bytes at off. A value
// of a different length fails.
func writeOpaque(r buffer.Region, off, n int, args Args, key string) error {
	v, ok, err := args.Bytes(key)
	if err != nil {
		return err
	}
	if !ok {
		v = make([]byte, n)
	}
	if len(v) != n {
		return fmt.Errorf("argument %q has %d bytes, want %d: %w", key, len(v), n, packet.ErrValueOutOfRange)
	}
	if err := r.WriteBytes(off, v); err != nil {
		return fmt.Errorf("argument %q: %w", key, err)
	}
	return nil
}
