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

// Package stack lays a chain of protocol headers out in a packet buffer.
//
// Layers are written outermost first. Each layer sees the header before it,
// the protocol after it and the number of bytes in front of it, from which
// it derives its defaults: length fields cover the rest of the enclosing
// payload, type and next-header fields name the next layer. Checksums are
// computed last, innermost first, once every byte they cover is in place.
package stack

import (
	"fmt"
	"strings"

	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/header"
)

// Stack is a chain of headers built in a buffer.
type Stack struct {
	buf    *buffer.Buffer
	chain  []header.Protocol
	args   []header.Args
	layers []header.Header
}

// Build writes the headers of chain to the start of buf. args[i], if
// present, holds the named arguments of chain[i]; explicit arguments take
// precedence over values implied by neighbouring layers and are written
// as given.
//
// The chain must fit within the current size of buf.
func Build(buf *buffer.Buffer, chain []header.Protocol, args []header.Args) (*Stack, error) {
	if len(args) > len(chain) {
		return nil, fmt.Errorf("%d argument sets for %d layers: %w", len(args), len(chain), packet.ErrUnknownArgument)
	}
	s := &Stack{
		buf:   buf,
		chain: append([]header.Protocol(nil), chain...),
		args:  make([]header.Args, len(chain)),
	}
	for i := range s.args {
		if i < len(args) && args[i] != nil {
			s.args[i] = args[i]
		} else {
			s.args[i] = header.Args{}
		}
	}
	if err := s.Rebuild(); err != nil {
		return nil, err
	}
	return s, nil
}

// BuildArgs is like Build, but takes a single set of arguments and routes
// each one to a layer. A key of the form "proto.name", such as "udp.dstPort",
// goes to the first layer of that protocol; a bare key goes to the first
// layer that understands it. Keys no layer understands fail with
// packet.ErrUnknownArgument.
func BuildArgs(buf *buffer.Buffer, chain []header.Protocol, flat header.Args) (*Stack, error) {
	args, err := Route(chain, flat)
	if err != nil {
		return nil, err
	}
	return Build(buf, chain, args)
}

// Route splits flat into per-layer argument sets as described for
// BuildArgs.
func Route(chain []header.Protocol, flat header.Args) ([]header.Args, error) {
	args := make([]header.Args, len(chain))
	for i := range args {
		args[i] = header.Args{}
	}
	for key, v := range flat {
		i, name, err := route(chain, key)
		if err != nil {
			return nil, err
		}
		args[i][name] = v
	}
	return args, nil
}

func route(chain []header.Protocol, key string) (int, string, error) {
	if proto, name, ok := strings.Cut(key, "."); ok {
		p, err := header.ParseProtocol(proto)
		if err != nil {
			return 0, "", fmt.Errorf("argument %q: %w", key, packet.ErrUnknownArgument)
		}
		for i, c := range chain {
			if c == p && c.Declares(name) {
				return i, name, nil
			}
		}
		return 0, "", fmt.Errorf("argument %q: no %v layer declares %q: %w", key, p, name, packet.ErrUnknownArgument)
	}
	for i, c := range chain {
		if c.Declares(key) {
			return i, key, nil
		}
	}
	return 0, "", fmt.Errorf("argument %q: %w", key, packet.ErrUnknownArgument)
}

// Rebuild lays the chain out again with the same arguments. It is needed
// after the buffer was reshaped, for example by a VLAN change, which
// invalidates every previous view.
func (s *Stack) Rebuild() error {
	layers := make([]header.Header, 0, len(s.chain))
	var (
		prev header.Header
		off  int
	)
	for i, p := range s.chain {
		next := header.ProtocolNone
		if i+1 < len(s.chain) {
			next = s.chain[i+1]
		}
		n, err := p.Layout(s.buf, off, s.args[i])
		if err != nil {
			return fmt.Errorf("layer %d (%v): %w", i, p, err)
		}
		r, err := s.buf.Region(off, n)
		if err != nil {
			return fmt.Errorf("layer %d (%v) needs [%d, %d) of %d bytes: %w", i, p, off, off+n, s.buf.Size(), err)
		}
		h, err := p.New(r, prev, s.args[i])
		if err != nil {
			return fmt.Errorf("layer %d (%v): %w", i, p, err)
		}
		if err := h.SetDefaultNamedArgs(prev, s.args[i], next, off); err != nil {
			return fmt.Errorf("layer %d (%v): %w", i, p, err)
		}
		layers = append(layers, h)
		prev = h
		off += n
	}
	s.layers = layers
	return s.UpdateChecksums()
}

// UpdateChecksums recomputes, innermost first, the checksum of every layer
// whose checksum argument was absent or "auto".
func (s *Stack) UpdateChecksums() error {
	for i := len(s.layers) - 1; i >= 0; i-- {
		if !s.args[i].AutoChecksum() {
			continue
		}
		if err := s.updateChecksum(i); err != nil {
			return fmt.Errorf("layer %d (%v) checksum: %w", i, s.chain[i], err)
		}
	}
	return nil
}

func (s *Stack) updateChecksum(i int) error {
	switch h := s.layers[i].(type) {
	case header.IPv4:
		return h.UpdateChecksum()
	case header.TCP, header.UDP, header.ICMP:
		n, err := header.EnclosingNetwork(s.layers, i)
		if err != nil {
			return err
		}
		switch h := h.(type) {
		case header.TCP:
			return h.UpdateChecksum(n)
		case header.UDP:
			return h.UpdateChecksum(n)
		case header.ICMP:
			return h.UpdateChecksum(n)
		}
	}
	return nil
}

// Buffer returns the buffer the stack was built in.
func (s *Stack) Buffer() *buffer.Buffer {
	return s.buf
}

// Chain returns the protocols of the stack, outermost first.
func (s *Stack) Chain() []header.Protocol {
	return append([]header.Protocol(nil), s.chain...)
}

// Layers returns the headers of the stack, outermost first.
func (s *Stack) Layers() []header.Header {
	return append([]header.Header(nil), s.layers...)
}

// Layer returns the i-th header.
func (s *Stack) Layer(i int) header.Header {
	return s.layers[i]
}

// Len returns the number of bytes taken by the headers.
func (s *Stack) Len() int {
	if len(s.layers) == 0 {
		return 0
	}
	r := s.layers[len(s.layers)-1].Region()
	return r.Offset() + r.Len()
}

// Payload returns the bytes following the innermost header, up to the
// nearest end of payload declared by any layer. The slice aliases the
// buffer.
func (s *Stack) Payload() ([]byte, error) {
	start := s.Len()
	end := s.buf.Size()
	for i, h := range s.layers {
		e, err := h.PayloadEnd()
		if err != nil {
			return nil, fmt.Errorf("layer %d (%v): %w", i, s.chain[i], err)
		}
		end = min(end, e)
	}
	if end < start {
		return nil, fmt.Errorf("payload ends at %d before the headers end at %d: %w", end, start, packet.ErrBufferTooSmall)
	}
	r, err := s.buf.Region(start, end-start)
	if err != nil {
		return nil, err
	}
	return r.Bytes()
}

// String returns the chain, such as "ethernet/ipv4/udp".
func (s *Stack) String() string {
	return ChainString(s.chain)
}

// ChainString formats chain the way ParseChain reads it.
func ChainString(chain []header.Protocol) string {
	names := make([]string, len(chain))
	for i, p := range chain {
		names[i] = p.String()
	}
	return strings.Join(names, "/")
}

// Find returns the first layer of type T.
func Find[T header.Header](s *Stack) (T, bool) {
	for _, h := range s.layers {
		if t, ok := h.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// ParseChain parses a chain written as protocol names separated by '/',
// ',' or whitespace, such as "eth/ip4/udp".
func ParseChain(s string) ([]header.Protocol, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == ',' || r == ' ' || r == '\t'
	})
	chain := make([]header.Protocol, 0, len(fields))
	for _, f := range fields {
		p, err := header.ParseProtocol(f)
		if err != nil {
			return nil, err
		}
		chain = append(chain, p)
	}
	return chain, nil
}
