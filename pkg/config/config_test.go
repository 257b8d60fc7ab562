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

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"pktgen.dev/pktgen/pkg/faketime"
	"pktgen.dev/pktgen/pkg/packet/header"
)

const tomlConfig = `
log_level = "debug"

[output]
kind = "pcap"
path = "/tmp/out.pcap"

[[stream]]
name = "ptp"
chain = "ethernet/ipv4/udp/ptp"
size = 90
count = 100
rate = 1000
delay = "10us"
pattern = "1010"

[stream.args]
srcIp = "10.0.0.1"
dstIp = "10.0.0.2"
"ipv4.ttl" = 5

[[stream]]
chain = "eth,ip6,tcp"
size = 74
`

const yamlConfig = `
log_level: debug
output:
  kind: pcap
  path: /tmp/out.pcap
streams:
  - name: ptp
    chain: ethernet/ipv4/udp/ptp
    size: 90
    count: 100
    rate: 1000
    delay: 10us
    pattern: "1010"
    args:
      srcIp: 10.0.0.1
      dstIp: 10.0.0.2
      ipv4.ttl: 5
  - chain: eth,ip6,tcp
    size: 74
`

func TestParseFormats(t *testing.T) {
	for _, tc := range []struct {
		format string
		data   string
	}{
		{format: "toml", data: tomlConfig},
		{format: "yaml", data: yamlConfig},
	} {
		t.Run(tc.format, func(t *testing.T) {
			c, err := Parse([]byte(tc.data), tc.format)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if c.LogLevel != "debug" || c.Output.Kind != OutputPcap || c.Output.Path != "/tmp/out.pcap" {
				t.Errorf("got log level %q, output %+v", c.LogLevel, c.Output)
			}
			if len(c.Streams) != 2 {
				t.Fatalf("got %d streams, want 2", len(c.Streams))
			}
			s := c.Streams[0]
			if s.Name != "ptp" || s.Size != 90 || s.Count != 100 || s.Rate != 1000 || s.Pattern != "1010" {
				t.Errorf("stream 0 = %+v", s)
			}
			if got, want := time.Duration(s.Delay), 10*time.Microsecond; got != want {
				t.Errorf("Delay = %v, want %v", got, want)
			}
			args := header.Args(s.Args)
			if ttl, ok, err := args.Uint("ipv4.ttl"); !ok || err != nil || ttl != 5 {
				t.Errorf("ipv4.ttl = %d, %t, %v; want 5", ttl, ok, err)
			}
			if src, _, _ := args.String("srcIp"); src != "10.0.0.1" {
				t.Errorf("srcIp = %q", src)
			}
			if got := c.Streams[1].Name; got != "stream1" {
				t.Errorf("default name = %q, want stream1", got)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		format string
		data   string
		want   string
	}{
		{name: "format", format: "ini", data: "", want: "unknown config format"},
		{name: "no streams", format: "toml", data: `log_level = "info"`, want: "no streams"},
		{name: "unknown key", format: "toml", data: "colour = 1\n[[stream]]\nchain = \"eth\"\nsize = 60", want: "unknown keys"},
		{name: "level", format: "yaml", data: "log_level: loud\nstreams: [{chain: eth, size: 60}]", want: "unknown log level"},
		{name: "output kind", format: "yaml", data: "output: {kind: tape}\nstreams: [{chain: eth, size: 60}]", want: "unknown output kind"},
		{name: "pcap path", format: "yaml", data: "output: {kind: pcap}\nstreams: [{chain: eth, size: 60}]", want: "needs a path"},
		{name: "raw interface", format: "yaml", data: "output: {kind: raw}\nstreams: [{chain: eth, size: 60}]", want: "needs an interface"},
		{name: "protocol", format: "yaml", data: "streams: [{chain: eth/ipx, size: 60}]", want: "unsupported protocol"},
		{name: "size", format: "yaml", data: "streams: [{chain: eth}]", want: "must be positive"},
		{name: "pattern", format: "yaml", data: "streams: [{chain: eth, size: 60, pattern: 10x1}]", want: "pattern"},
		{name: "delay", format: "yaml", data: "streams: [{chain: eth, size: 60, delay: soon}]", want: "duration"},
		{name: "argument", format: "yaml", data: "streams: [{chain: eth/ipv4, size: 60, args: {dstPort: 1}}]", want: "unknown named argument"},
		{name: "duplicate", format: "yaml", data: "streams: [{name: a, chain: eth, size: 60}, {name: a, chain: eth, size: 60}]", want: "duplicate"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data), tc.format)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Parse() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestNestedArgs(t *testing.T) {
	for _, tc := range []struct {
		format string
		data   string
	}{
		{
			format: "toml",
			data: `
[[stream]]
chain = "eth/ipv4/udp"
size = 60

[stream.args]
udp.dstPort = 53
ipv4.ttl = 9
srcIp = "10.0.0.1"
`,
		},
		{
			format: "toml",
			data: `
[[stream]]
chain = "eth/ipv4/udp"
size = 60

[stream.args]
srcIp = "10.0.0.1"

[stream.args.udp]
dstPort = 53

[stream.args.ipv4]
ttl = 9
`,
		},
		{
			format: "yaml",
			data: `
streams:
  - chain: eth/ipv4/udp
    size: 60
    args:
      srcIp: 10.0.0.1
      udp: {dstPort: 53}
      ipv4:
        ttl: 9
`,
		},
	} {
		t.Run(tc.format, func(t *testing.T) {
			c, err := Parse([]byte(tc.data), tc.format)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			args := header.Args(c.Streams[0].Args)
			for key, want := range map[string]uint64{"udp.dstPort": 53, "ipv4.ttl": 9} {
				if v, ok, err := args.Uint(key); !ok || err != nil || v != want {
					t.Errorf("%s = %d, %t, %v; want %d", key, v, ok, err, want)
				}
			}
			if _, ok := args["udp"]; ok {
				t.Errorf("nested table udp left in %v", args)
			}
			st, err := c.Streams[0].TxStream(faketime.NewManualClock())
			if err != nil {
				t.Fatalf("TxStream: %v", err)
			}
			if src, _, _ := st.Args.String("srcIp"); src != "10.0.0.1" {
				t.Errorf("srcIp = %q", src)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"c.toml", "c.yml"} {
		data := tomlConfig
		if strings.HasSuffix(name, ".yml") {
			data = yamlConfig
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err != nil {
			t.Errorf("Load(%s): %v", name, err)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Errorf("Load of a missing file succeeded")
	}
}

func TestTxStream(t *testing.T) {
	c, err := Parse([]byte(yamlConfig), "yaml")
	if err != nil {
		t.Fatal(err)
	}
	clock := faketime.NewManualClock()
	st, err := c.Streams[0].TxStream(clock)
	if err != nil {
		t.Fatalf("TxStream: %v", err)
	}
	want := []header.Protocol{header.ProtocolEthernet, header.ProtocolIPv4, header.ProtocolUDP, header.ProtocolPTP}
	if diff := cmp.Diff(want, st.Chain); diff != "" {
		t.Errorf("chain mismatch (-want +got):\n%s", diff)
	}
	if got, want := st.Controller.Interval(), time.Millisecond+10*time.Microsecond; got != want {
		t.Errorf("Interval() = %v, want %v", got, want)
	}
	var sent []bool
	for i := 0; i < 4; i++ {
		ok, err := st.Controller.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		sent = append(sent, ok)
	}
	if diff := cmp.Diff([]bool{true, false, true, false}, sent); diff != "" {
		t.Errorf("pattern mismatch (-want +got):\n%s", diff)
	}
	if err := st.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
