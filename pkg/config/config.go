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

// Package config loads descriptions of packet streams and where to send
// them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
	"pktgen.dev/pktgen/pkg/bitmask"
	"pktgen.dev/pktgen/pkg/log"
	"pktgen.dev/pktgen/pkg/pacing"
	"pktgen.dev/pktgen/pkg/packet/header"
	"pktgen.dev/pktgen/pkg/packet/stack"
	"pktgen.dev/pktgen/pkg/tx"
)

// Output kinds.
const (
	OutputPcap    = "pcap"
	OutputRaw     = "raw"
	OutputDiscard = "discard"
)

// Duration is a time.Duration written as a string such as "10us".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Output selects the transmitter.
type Output struct {
	// Kind is one of OutputPcap, OutputRaw or OutputDiscard.
	Kind string `toml:"kind" yaml:"kind"`

	// Path is the pcap file written by OutputPcap.
	Path string `toml:"path" yaml:"path"`

	// SnapLen truncates frames written by OutputPcap.
	SnapLen int `toml:"snaplen" yaml:"snaplen"`

	// Interface is the network interface used by OutputRaw.
	Interface string `toml:"interface" yaml:"interface"`
}

// Stream describes one packet stream.
type Stream struct {
	Name string `toml:"name" yaml:"name"`

	// Chain is a protocol chain such as "ethernet/ipv4/udp".
	Chain string `toml:"chain" yaml:"chain"`

	// Size is the frame size in bytes.
	Size int `toml:"size" yaml:"size"`

	// Count is the number of packets; zero runs until interrupted.
	Count uint64 `toml:"count" yaml:"count"`

	// Rate is in packets per second; zero is unlimited.
	Rate float64 `toml:"rate" yaml:"rate"`

	// Delay is added to every packet interval.
	Delay Duration `toml:"delay" yaml:"delay"`

	// Pattern is a bit string such as "1010"; clear bits skip a slot.
	Pattern string `toml:"pattern" yaml:"pattern"`

	// BusyWait spins instead of sleeping between packets.
	BusyWait bool `toml:"busy_wait" yaml:"busy_wait"`

	// Args are named header arguments.
	Args map[string]any `toml:"args" yaml:"args"`
}

// Config is a complete run description.
type Config struct {
	// LogLevel is "warning", "info" or "debug".
	LogLevel string   `toml:"log_level" yaml:"log_level"`
	Output   Output   `toml:"output" yaml:"output"`
	Streams  []Stream `toml:"stream" yaml:"streams"`
}

// Load reads the file at path as TOML or YAML, chosen by its extension,
// and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes data in format "toml", "yaml" or "yml" and validates it.
func Parse(data []byte, format string) (*Config, error) {
	var c Config
	switch strings.ToLower(format) {
	case "toml":
		md, err := toml.Decode(string(data), &c)
		if err != nil {
			return nil, err
		}
		if undec := md.Undecoded(); len(undec) > 0 {
			return nil, fmt.Errorf("unknown keys %v", undec)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
	c.setDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.Output.Kind == "" {
		c.Output.Kind = OutputDiscard
	}
	for i := range c.Streams {
		if c.Streams[i].Name == "" {
			c.Streams[i].Name = fmt.Sprintf("stream%d", i)
		}
		c.Streams[i].Args = c.Streams[i].headerArgs()
	}
}

// headerArgs returns the arguments of s with nested tables flattened into
// "proto.name" keys. An unquoted TOML key such as udp.dstPort decodes as
// the table {udp: {dstPort: ...}}.
func (s *Stream) headerArgs() header.Args {
	if s.Args == nil {
		return nil
	}
	args := make(header.Args, len(s.Args))
	flattenArgs(args, "", s.Args)
	return args
}

func flattenArgs(dst header.Args, prefix string, m map[string]any) {
	for k, v := range m {
		if prefix != "" {
			k = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flattenArgs(dst, k, sub)
			continue
		}
		dst[k] = v
	}
}

// Validate checks the output and every stream.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Output.Kind {
	case OutputPcap:
		if c.Output.Path == "" {
			return fmt.Errorf("pcap output needs a path")
		}
	case OutputRaw:
		if c.Output.Interface == "" {
			return fmt.Errorf("raw output needs an interface")
		}
	case OutputDiscard:
	default:
		return fmt.Errorf("unknown output kind %q", c.Output.Kind)
	}
	if len(c.Streams) == 0 {
		return fmt.Errorf("no streams")
	}
	names := make(map[string]bool)
	for i := range c.Streams {
		s := &c.Streams[i]
		if names[s.Name] {
			return fmt.Errorf("duplicate stream name %q", s.Name)
		}
		names[s.Name] = true
		if err := s.Validate(); err != nil {
			return fmt.Errorf("stream %q: %w", s.Name, err)
		}
	}
	return nil
}

// Validate checks the chain, size, pacing and arguments of s.
func (s *Stream) Validate() error {
	chain, err := stack.ParseChain(s.Chain)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return fmt.Errorf("empty chain")
	}
	if s.Size <= 0 {
		return fmt.Errorf("size %d must be positive", s.Size)
	}
	if s.Rate < 0 || s.Delay < 0 {
		return fmt.Errorf("negative rate or delay")
	}
	if s.Pattern != "" {
		if _, err := bitmask.Parse(s.Pattern); err != nil {
			return fmt.Errorf("pattern: %w", err)
		}
	}
	_, err = stack.Route(chain, s.headerArgs())
	return err
}

// Controller returns a pacing controller configured for s.
func (s *Stream) Controller(clock pacing.Clock) (*pacing.Controller, error) {
	c := pacing.NewController(clock)
	if err := c.SetRate(s.Rate); err != nil {
		return nil, err
	}
	if err := c.SetDelay(time.Duration(s.Delay)); err != nil {
		return nil, err
	}
	if s.Pattern != "" {
		p, err := bitmask.Parse(s.Pattern)
		if err != nil {
			return nil, err
		}
		if err := c.SetPattern(p); err != nil {
			return nil, err
		}
	}
	if s.BusyWait {
		c.SetWaitMode(pacing.WaitBusy)
	}
	return c, nil
}

// TxStream converts s for a tx.Sender, with its controller reading clock.
func (s *Stream) TxStream(clock pacing.Clock) (*tx.Stream, error) {
	chain, err := stack.ParseChain(s.Chain)
	if err != nil {
		return nil, err
	}
	ctrl, err := s.Controller(clock)
	if err != nil {
		return nil, err
	}
	return &tx.Stream{
		Name:       s.Name,
		Chain:      chain,
		Args:       s.headerArgs(),
		Size:       s.Size,
		Count:      s.Count,
		Controller: ctrl,
	}, nil
}
