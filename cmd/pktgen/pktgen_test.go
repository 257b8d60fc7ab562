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
	"bytes"
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/google/subcommands"
	"pktgen.dev/pktgen/pkg/config"
	"pktgen.dev/pktgen/pkg/faketime"
)

func parse(t *testing.T, c subcommands.Command, args ...string) *flag.FlagSet {
	t.Helper()
	f := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	c.SetFlags(f)
	if err := f.Parse(args); err != nil {
		t.Fatalf("parsing %v: %v", args, err)
	}
	return f
}

func TestBuildHexDump(t *testing.T) {
	var out bytes.Buffer
	b := &Build{stdout: &out}
	f := parse(t, b, "-chain", "eth,ipv4,udp", "-size", "60", "-arg", "srcIp=10.0.0.1", "-arg", "udp.dstPort=53")
	if got := b.Execute(context.Background(), f); got != subcommands.ExitSuccess {
		t.Fatalf("Execute() = %v, output %q", got, out.String())
	}
	lines := strings.Split(out.String(), "\n")
	if got, want := lines[0], "ethernet/ipv4/udp, 60 bytes"; got != want {
		t.Errorf("header line = %q, want %q", got, want)
	}
	if want := "00000000  ff ff ff ff ff ff 00 00  00 00 00 00 08 00 45 00"; !strings.HasPrefix(lines[1], want) {
		t.Errorf("first dump line = %q, want prefix %q", lines[1], want)
	}
}

func TestBuildVLAN(t *testing.T) {
	b := &Build{}
	parse(t, b, "-chain", "ethernet/ipv4/udp", "-size", "60", "-vlan", "100", "-vlan", "200", "-arg", "dstPort=7")
	buf, _, err := b.build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got, want := buf.Size(), 68; got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}
	pkt := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
	var ids []uint16
	for _, l := range pkt.Layers() {
		if q, ok := l.(*layers.Dot1Q); ok {
			ids = append(ids, q.VLANIdentifier)
		}
	}
	if diff := cmp.Diff([]uint16{100, 200}, ids); diff != "" {
		t.Errorf("VLAN ids mismatch (-want +got):\n%s", diff)
	}
	ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		t.Fatalf("no IPv4 layer in %v", pkt)
	}
	if ip.Length != 68-22 {
		t.Errorf("IPv4 length = %d, want %d", ip.Length, 68-22)
	}
	if udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP); !ok || udp.DstPort != 7 {
		t.Errorf("no UDP layer to port 7 in %v", pkt)
	}
}

func TestBuildPcap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.pcap")
	b := &Build{}
	f := parse(t, b, "-chain", "ethernet/ipv6/icmp", "-size", "70", "-out", path)
	if got := b.Execute(context.Background(), f); got != subcommands.ExitSuccess {
		t.Fatalf("Execute() = %v", got)
	}
	fh, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()
	r, err := pcapgo.NewReader(fh)
	if err != nil {
		t.Fatal(err)
	}
	data, _, err := r.ReadPacketData()
	if err != nil {
		t.Fatal(err)
	}
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	if pkt.Layer(layers.LayerTypeICMPv6) == nil {
		t.Errorf("no ICMPv6 layer in %v", pkt)
	}
}

func TestBuildErrors(t *testing.T) {
	for _, args := range [][]string{
		{"-chain", "ethernet/ipx"},
		{"-chain", "ethernet/ipv4/tcp", "-size", "30"},
		{"-chain", "ethernet/ipv4", "-arg", "dstPort=1"},
	} {
		b := &Build{stdout: &bytes.Buffer{}}
		f := parse(t, b, args...)
		if got := b.Execute(context.Background(), f); got != subcommands.ExitFailure {
			t.Errorf("Execute(%v) = %v, want ExitFailure", args, got)
		}
	}
	f := flag.NewFlagSet("build", flag.ContinueOnError)
	f.SetOutput(&bytes.Buffer{})
	(&Build{}).SetFlags(f)
	for _, args := range [][]string{{"-arg", "novalue"}, {"-vlan", "5000"}} {
		if err := f.Parse(args); err == nil {
			t.Errorf("Parse(%v) succeeded", args)
		}
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	pcapPath := filepath.Join(dir, "out.pcap")
	conf, err := config.Parse([]byte(`
output:
  kind: pcap
  path: `+pcapPath+`
streams:
  - name: udp
    chain: ethernet/ipv4/udp
    size: 64
    count: 5
    rate: 100
    args: {dstIp: 10.9.9.9}
  - name: ptp
    chain: ethernet/ipv4/udp/ptp
    size: 90
    count: 3
    pattern: "01"
`), "yaml")
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	var out bytes.Buffer
	if err := run(context.Background(), conf, faketime.NewManualClock(), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	lines := strings.Split(out.String(), "\n")
	want := [][]string{
		{"STREAM", "RELEASED", "SKIPPED", "ERRORS", "BYTES"},
		{"udp", "5", "0", "0", "320"},
		{"ptp", "3", "3", "0", "270"},
	}
	for i, w := range want {
		if diff := cmp.Diff(w, strings.Fields(lines[i])); diff != "" {
			t.Errorf("line %d mismatch (-want +got):\n%s", i, diff)
		}
	}

	fh, err := os.Open(pcapPath)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()
	r, err := pcapgo.NewReader(fh)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for {
		if _, _, err := r.ReadPacketData(); err != nil {
			break
		}
		n++
	}
	if n != 8 {
		t.Errorf("pcap holds %d frames, want 8", n)
	}
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	v := &Version{out: &out}
	if got := v.Execute(context.Background(), parse(t, v)); got != subcommands.ExitSuccess {
		t.Fatalf("Execute() = %v", got)
	}
	if !strings.HasPrefix(out.String(), "pktgen version dev\n") {
		t.Errorf("output = %q", out.String())
	}
}

func TestNewEmitter(t *testing.T) {
	for _, format := range []string{"text", "json", "logrus"} {
		if _, err := newEmitter(format, &bytes.Buffer{}); err != nil {
			t.Errorf("newEmitter(%q): %v", format, err)
		}
	}
	if _, err := newEmitter("xml", &bytes.Buffer{}); err == nil {
		t.Errorf("newEmitter(xml) succeeded")
	}
}
