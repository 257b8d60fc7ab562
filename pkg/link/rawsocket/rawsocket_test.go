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

//go:build linux
// +build linux

package rawsocket

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"
	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	t.Cleanup(func() { unix.Close(fds[1]) })
	return fds[0], fds[1]
}

func TestTransmit(t *testing.T) {
	wfd, rfd := socketPair(t)
	e := NewFromFD(wfd, 1514)
	defer e.Close()

	want := [][]byte{
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 1, 2, 3, 4, 5, 6, 0x08, 0x00},
		make([]byte, 1514),
	}
	var bufs []*buffer.Buffer
	for _, b := range want {
		bufs = append(bufs, buffer.FromBytes(b))
	}
	if n, err := e.Transmit(bufs); n != 2 || err != nil {
		t.Fatalf("Transmit() = %d, %v; want 2, nil", n, err)
	}
	for i, w := range want {
		got := make([]byte, 2048)
		n, err := unix.Read(rfd, got)
		if err != nil {
			t.Fatalf("Read #%d: %v", i, err)
		}
		if diff := cmp.Diff(w, got[:n]); diff != "" {
			t.Errorf("frame %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestTransmitErrors(t *testing.T) {
	wfd, _ := socketPair(t)
	e := NewFromFD(wfd, 64)
	n, err := e.Transmit([]*buffer.Buffer{buffer.FromBytes(make([]byte, 65))})
	if n != 0 || !errors.Is(err, packet.ErrValueOutOfRange) {
		t.Errorf("Transmit(oversized) = %d, %v; want 0, %v", n, err, packet.ErrValueOutOfRange)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := e.Transmit([]*buffer.Buffer{buffer.FromBytes(make([]byte, 60))}); !errors.Is(err, unix.EBADF) {
		t.Errorf("Transmit after Close = %v, want %v", err, unix.EBADF)
	}
}

func TestOpenUnknownInterface(t *testing.T) {
	if _, err := Open("does-not-exist0"); err == nil {
		t.Errorf("Open(does-not-exist0) succeeded")
	}
}

func tagged(t *testing.T, size int) *buffer.Buffer {
	t.Helper()
	b := buffer.New(size + buffer.VLANTagSize)
	if err := b.SetSize(size); err != nil {
		t.Fatalf("SetSize(%d): %v", size, err)
	}
	if err := b.SetVLANs([]buffer.VLANTag{{ID: 5}}); err != nil {
		t.Fatalf("SetVLANs: %v", err)
	}
	return b
}

func TestTransmitVLANTagged(t *testing.T) {
	wfd, rfd := socketPair(t)
	e := NewFromFD(wfd, 64)
	defer e.Close()

	ok := tagged(t, 64)
	if n, err := e.Transmit([]*buffer.Buffer{ok}); n != 1 || err != nil {
		t.Fatalf("Transmit(68 byte tagged frame) = %d, %v; want 1, nil", n, err)
	}
	got := make([]byte, 128)
	n, err := unix.Read(rfd, got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff(ok.Bytes(), got[:n]); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
	if n, err := e.Transmit([]*buffer.Buffer{tagged(t, 65)}); n != 0 || !errors.Is(err, packet.ErrValueOutOfRange) {
		t.Errorf("Transmit(69 byte tagged frame) = %d, %v; want 0, %v", n, err, packet.ErrValueOutOfRange)
	}
}
