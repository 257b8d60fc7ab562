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
	"pktgen.dev/pktgen/pkg/packet/checksum"
	"pktgen.dev/pktgen/pkg/packet/field"
)

// networkEnd returns where the payload of n ends, or the end of the frame
// when n is nil.
func networkEnd(r buffer.Region, n Network) (int, error) {
	if n != nil {
		return n.PayloadEnd()
	}
	return frameEnd(r)
}

// segment returns the bytes from the start of r to end.
func segment(r buffer.Region, end int) ([]byte, error) {
	tail, err := r.Tail()
	if err != nil {
		return nil, err
	}
	if end < r.Offset()+r.Len() || end > r.Offset()+len(tail) {
		return nil, fmt.Errorf("segment end %d outside [%d, %d]: %w", end, r.Offset()+r.Len(), r.Offset()+len(tail), packet.ErrBufferTooSmall)
	}
	return tail[:end-r.Offset()], nil
}

// transportChecksum computes the checksum of the segment from the start of r
// to end with its checksum field d taken as zero. If pseudo is set and n is
// not nil, the pseudo-header of n is included.
func transportChecksum(r buffer.Region, d field.Descriptor, end int, n Network, protocol packet.TransportProtocolNumber, pseudo bool) (uint16, error) {
	seg, err := segment(r, end)
	if err != nil {
		return 0, err
	}
	cur, err := r.Read(d)
	if err != nil {
		return 0, err
	}
	var xsum uint16
	if pseudo && n != nil {
		if xsum, err = n.PseudoHeaderChecksum(protocol, uint32(len(seg))); err != nil {
			return 0, err
		}
	}
	xsum = checksum.Checksum(seg, xsum)
	if cur != 0 {
		xsum = checksum.Combine(xsum, ^uint16(cur))
	}
	return ^xsum, nil
}

// transportChecksumValid reports whether the segment from the start of r to
// end sums to all ones, with the pseudo-header of n included as for transportChecksum.
func transportChecksumValid(r buffer.Region, end int, n Network, protocol packet.TransportProtocolNumber, pseudo bool) (bool, error) {
	seg, err := segment(r, end)
	if err != nil {
		return false, err
	}
	var xsum uint16
	if pseudo && n != nil {
		if xsum, err = n.PseudoHeaderChecksum(protocol, uint32(len(seg))); err != nil {
			return false, err
		}
	}
	return checksum.Checksum(seg, xsum) == 0xffff, nil
}
