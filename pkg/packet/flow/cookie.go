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

package flow

import (
	"crypto/rand"
	"encoding/binary"
	"net/netip"

	"github.com/dchest/siphash"
)

// CookieKey is a 128-bit SipHash key.
type CookieKey struct {
	k0, k1 uint64
}

// DefaultCookieKey is the fixed key used when none is configured.
var DefaultCookieKey = CookieKeyFromBytes([]byte("518dee47394431d4"))

// CookieKeyFromBytes builds a key from 16 bytes, each half read in
// little-endian order.
func CookieKeyFromBytes(b []byte) CookieKey {
	var k [16]byte
	copy(k[:], b)
	return CookieKey{
		k0: binary.LittleEndian.Uint64(k[0:]),
		k1: binary.LittleEndian.Uint64(k[8:]),
	}
}

// NewCookieKey returns a random key.
func NewCookieKey() (CookieKey, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return CookieKey{}, err
	}
	return CookieKeyFromBytes(b[:]), nil
}

// Cookie returns the SipHash-2-4 of the flow endpoints and timestamp ts.
// The message is the source and destination addresses and ports in network
// byte order followed by ts in little-endian order.
func (k CookieKey) Cookie(t FourTuple, ts uint32) uint64 {
	var msg [2*16 + 2 + 2 + 4]byte
	b := msg[:0]
	b = append(b, t.SrcIP.AsSlice()...)
	b = append(b, t.DstIP.AsSlice()...)
	b = binary.BigEndian.AppendUint16(b, t.SrcPort)
	b = binary.BigEndian.AppendUint16(b, t.DstPort)
	b = binary.LittleEndian.AppendUint32(b, ts)
	return siphash.Hash(k.k0, k.k1, b)
}

// ISN returns the cookie truncated to a TCP initial sequence number.
func (k CookieKey) ISN(t FourTuple, ts uint32) uint32 {
	return uint32(k.Cookie(t, ts))
}

// VerifyISN reports whether isn was issued for t at a time within window
// ticks before now.
func (k CookieKey) VerifyISN(t FourTuple, isn, now, window uint32) bool {
	for d := uint32(0); d <= window; d++ {
		if k.ISN(t, now-d) == isn {
			return true
		}
	}
	return false
}

// Cookie returns the SYN cookie of a connection from src:srcPort to
// dst:dstPort at timestamp ts under key.
func Cookie(key CookieKey, src, dst netip.Addr, srcPort, dstPort uint16, ts uint32) uint64 {
	return key.Cookie(FourTuple{SrcIP: src, DstIP: dst, SrcPort: srcPort, DstPort: dstPort}, ts)
}
