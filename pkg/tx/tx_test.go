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

package tx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"pktgen.dev/pktgen/pkg/bitmask"
	"pktgen.dev/pktgen/pkg/faketime"
	"pktgen.dev/pktgen/pkg/link/channel"
	"pktgen.dev/pktgen/pkg/log"
	"pktgen.dev/pktgen/pkg/pacing"
	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/header"
	"pktgen.dev/pktgen/pkg/packet/stack"
)

var ethIPv4UDP = []header.Protocol{header.ProtocolEthernet, header.ProtocolIPv4, header.ProtocolUDP}

func udpStream(name string, count uint64, ctrl *pacing.Controller) *Stream {
	return &Stream{
		Name:       name,
		Chain:      ethIPv4UDP,
		Args:       header.Args{"srcIp": "10.0.0.1", "dstIp": "10.0.0.2", "dstPort": 5000},
		Size:       64,
		Count:      count,
		Controller: ctrl,
	}
}

func TestRunPatternAndMutate(t *testing.T) {
	clock := faketime.NewManualClock()
	ctrl := pacing.NewController(clock)
	if err := ctrl.SetRate(1000); err != nil {
		t.Fatal(err)
	}
	p, _ := bitmask.Parse("110")
	if err := ctrl.SetPattern(p); err != nil {
		t.Fatal(err)
	}
	st := udpStream("a", 6, ctrl)
	st.Mutate = func(seq uint64, s *stack.Stack) error {
		udp, _ := stack.Find[header.UDP](s)
		return udp.SetSourcePort(uint16(1000 + seq))
	}

	ep := channel.New(16, 0)
	defer ep.Close()
	pool := buffer.NewPool()
	start := clock.Now()
	got, err := NewSender(pool, ep).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []Counters{{Released: 6, Skipped: 2, Bytes: 6 * 64}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("counters mismatch (-want +got):\n%s", diff)
	}
	if n := pool.Outstanding(); n != 0 {
		t.Errorf("%d buffers not returned to the pool", n)
	}
	// Slots 0 1 _ 3 4 _ 6 7, one millisecond apart.
	if got, want := clock.Since(start), 7*time.Millisecond; got != want {
		t.Errorf("last frame released after %v, want %v", got, want)
	}
	for seq := 0; seq < 6; seq++ {
		pi, ok := ep.Read()
		if !ok {
			t.Fatalf("frame %d missing", seq)
		}
		pkt := gopacket.NewPacket(pi.Data, layers.LayerTypeEthernet, gopacket.Default)
		udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if !ok {
			t.Fatalf("frame %d: no UDP layer", seq)
		}
		if udp.SrcPort != layers.UDPPort(1000+seq) {
			t.Errorf("frame %d: source port %d, want %d", seq, udp.SrcPort, 1000+seq)
		}
		if ok, err := udpChecksumOK(pi.Data); err != nil || !ok {
			t.Errorf("frame %d: bad UDP checksum (%v)", seq, err)
		}
	}
}

// udpChecksumOK rebuilds the stack views over data and checks the UDP
// checksum.
func udpChecksumOK(data []byte) (bool, error) {
	buf := buffer.FromBytes(data)
	ipr, err := buf.Region(header.EthernetMinimumSize, header.IPv4MinimumSize)
	if err != nil {
		return false, err
	}
	udpr, err := buf.Region(header.EthernetMinimumSize+header.IPv4MinimumSize, header.UDPMinimumSize)
	if err != nil {
		return false, err
	}
	return header.NewUDP(udpr).IsChecksumValid(header.NewIPv4(ipr))
}

type failingTransmitter struct {
	calls int
}

func (f *failingTransmitter) Transmit(bufs []*buffer.Buffer) (int, error) {
	f.calls++
	if f.calls%2 == 0 {
		return 0, nil
	}
	return 0, fmt.Errorf("link down")
}

func TestRunTransmitErrors(t *testing.T) {
	ft := &failingTransmitter{}
	s := NewSender(buffer.NewPool(), ft)
	s.SetLogger(&log.BasicLogger{Level: log.Warning, Emitter: &log.TestEmitter{TestLogger: t}})
	got, err := s.Run(context.Background(), udpStream("lossy", 4, pacing.NewController(faketime.NewManualClock())))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]Counters{{Errors: 4}}, got); diff != "" {
		t.Errorf("counters mismatch (-want +got):\n%s", diff)
	}
	if ft.calls != 4 {
		t.Errorf("Transmit called %d times, want 4", ft.calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := udpStream("endless", 0, pacing.NewController(faketime.NewManualClock()))
	st.Mutate = func(seq uint64, _ *stack.Stack) error {
		if seq == 5 {
			cancel()
		}
		return nil
	}
	ep := channel.New(64, 0)
	defer ep.Close()
	pool := buffer.NewPool()
	got, err := NewSender(pool, ep).Run(ctx, st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got[0].Released != 5 {
		t.Errorf("Released = %d, want 5", got[0].Released)
	}
	if n := pool.Outstanding(); n != 0 {
		t.Errorf("%d buffers not returned to the pool", n)
	}
}

func TestRunStopsOnControllerStop(t *testing.T) {
	ctrl := pacing.NewController(faketime.NewManualClock())
	st := udpStream("stopped", 0, ctrl)
	st.Mutate = func(seq uint64, _ *stack.Stack) error {
		if seq == 3 {
			ctrl.Stop()
		}
		return nil
	}
	ep := channel.New(64, 0)
	defer ep.Close()
	got, err := NewSender(buffer.NewPool(), ep).Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got[0].Released != 3 || ep.NumQueued() != 3 {
		t.Errorf("Released = %d, queued %d; want 3, 3", got[0].Released, ep.NumQueued())
	}
}

func TestRunMutateErrorCancelsOthers(t *testing.T) {
	errBoom := errors.New("boom")
	bad := udpStream("bad", 10, pacing.NewController(faketime.NewManualClock()))
	bad.Mutate = func(seq uint64, _ *stack.Stack) error {
		if seq == 2 {
			return errBoom
		}
		return nil
	}
	endless := udpStream("endless", 0, nil)
	ep := channel.New(1, 0)
	defer ep.Close()
	s := NewSender(buffer.NewPool(), ep)
	s.SetLogger(&log.BasicLogger{Level: log.Warning, Emitter: &log.Writer{Next: io.Discard}})
	_, err := s.Run(context.Background(), bad, endless)
	if !errors.Is(err, errBoom) {
		t.Errorf("Run() = %v, want %v", err, errBoom)
	}
}

func TestStreamValidate(t *testing.T) {
	for _, tc := range []struct {
		name    string
		mod     func(*Stream)
		wantErr error
	}{
		{name: "empty chain", mod: func(s *Stream) { s.Chain = nil }},
		{name: "zero size", mod: func(s *Stream) { s.Size = 0 }, wantErr: packet.ErrValueOutOfRange},
		{name: "unknown arg", mod: func(s *Stream) { s.Args = header.Args{"hopLimit": 3} }, wantErr: packet.ErrUnknownArgument},
	} {
		t.Run(tc.name, func(t *testing.T) {
			st := udpStream(tc.name, 1, nil)
			tc.mod(st)
			err := st.Validate()
			if err == nil {
				t.Fatalf("Validate() succeeded")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tc.wantErr)
			}
			if _, err := NewSender(buffer.NewPool(), channel.New(1, 0)).Run(context.Background(), st); err == nil {
				t.Errorf("Run() accepted an invalid stream")
			}
		})
	}
}
