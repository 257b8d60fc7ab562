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

package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/subcommands"
	"pktgen.dev/pktgen/pkg/link/pcapfile"
	"pktgen.dev/pktgen/pkg/log"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/header"
	"pktgen.dev/pktgen/pkg/packet/stack"
)

// argList collects repeated -arg key=value flags.
type argList header.Args

// String implements flag.Value.String.
func (a argList) String() string {
	var parts []string
	for k, v := range a {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, ",")
}

// Set implements flag.Value.Set.
func (a argList) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("argument %q is not key=value", s)
	}
	a[k] = v
	return nil
}

// vlanList collects repeated -vlan flags, outermost first.
type vlanList []buffer.VLANTag

// String implements flag.Value.String.
func (l *vlanList) String() string {
	var parts []string
	for _, t := range *l {
		parts = append(parts, strconv.Itoa(int(t.ID)))
	}
	return strings.Join(parts, ",")
}

// Set implements flag.Value.Set.
func (l *vlanList) Set(s string) error {
	id, err := strconv.ParseUint(s, 0, 12)
	if err != nil {
		return fmt.Errorf("vlan id %q: %v", s, err)
	}
	*l = append(*l, buffer.VLANTag{ID: uint16(id)})
	return nil
}

// Build implements subcommands.Command for the "build" command.
type Build struct {
	chain string
	size  int
	args  argList
	vlans vlanList
	out   string

	stdout io.Writer
}

// Name implements subcommands.Command.Name.
func (*Build) Name() string {
	return "build"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Build) Synopsis() string {
	return "build one packet and print it"
}

// Usage implements subcommands.Command.Usage.
func (*Build) Usage() string {
	return `build -chain <protocols> [-size n] [-arg key=value]... [-vlan id]... [-out file.pcap]

Builds one packet from a protocol chain such as ethernet/ipv4/udp and prints
a hex dump of it, or writes it to a pcap file.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Build) SetFlags(f *flag.FlagSet) {
	b.args = argList{}
	f.StringVar(&b.chain, "chain", "ethernet/ipv4/udp", "protocol chain, separated by '/' or ','.")
	f.IntVar(&b.size, "size", 64, "frame size in bytes.")
	f.Var(b.args, "arg", "named header argument as key=value or protocol.key=value; may be repeated.")
	f.Var(&b.vlans, "vlan", "802.1Q tag to insert after the MAC addresses, outermost first; may be repeated.")
	f.StringVar(&b.out, "out", "", "write the packet to this pcap file instead of printing it.")
}

// Execute implements subcommands.Command.Execute.
func (b *Build) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	buf, s, err := b.build()
	if err != nil {
		return Errorf("%v", err)
	}
	log.Debugf("built %v, %d bytes", s, buf.Size())

	if b.out != "" {
		w, err := pcapfile.Create(b.out, 0)
		if err != nil {
			return Errorf("%v", err)
		}
		if _, err := w.Transmit([]*buffer.Buffer{buf}); err != nil {
			w.Close()
			return Errorf("%v", err)
		}
		if err := w.Close(); err != nil {
			return Errorf("%v", err)
		}
		return subcommands.ExitSuccess
	}
	out := b.stdout
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "%v, %d bytes\n", s, buf.Size())
	fmt.Fprint(out, hex.Dump(buf.Bytes()))
	return subcommands.ExitSuccess
}

// build lays out the packet, inserting VLAN tags before the layout is
// repeated so lengths and checksums see the final frame.
func (b *Build) build() (*buffer.Buffer, *stack.Stack, error) {
	chain, err := stack.ParseChain(b.chain)
	if err != nil {
		return nil, nil, err
	}
	capacity := b.size + buffer.VLANTagSize*len(b.vlans)
	buf := buffer.New(capacity)
	if err := buf.SetSize(b.size); err != nil {
		return nil, nil, err
	}
	s, err := stack.BuildArgs(buf, chain, header.Args(b.args))
	if err != nil {
		return nil, nil, err
	}
	if len(b.vlans) > 0 {
		if err := buf.SetVLANs(b.vlans); err != nil {
			return nil, nil, err
		}
		if err := s.Rebuild(); err != nil {
			return nil, nil, err
		}
	}
	return buf, s, nil
}
