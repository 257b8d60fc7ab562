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

// Package rawsocket provides a transmit sink that sends frames on a network
// interface through an AF_PACKET socket.
package rawsocket

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
	"pktgen.dev/pktgen/pkg/packet/header"
)

// Endpoint writes whole frames to a packet socket.
type Endpoint struct {
	mtu int

	// mu protects fd.
	mu sync.Mutex
	fd int
}

// Open creates a raw AF_PACKET socket bound to the interface named ifName.
// It needs CAP_NET_RAW.
func Open(ifName string) (*Endpoint, error) {
	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, err
	}
	// Protocol 0 sends only; the kernel queues no received frames on the
	// socket.
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("socket(AF_PACKET): %w", err)
	}
	sa := &unix.SockaddrLinklayer{
		Ifindex: iface.Index,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding to %q: %w", ifName, err)
	}
	// The link layer header is part of every frame.
	return NewFromFD(fd, iface.MTU+header.EthernetMinimumSize), nil
}

// NewFromFD returns an endpoint writing to fd, which must preserve message
// boundaries. Untagged frames larger than mtu bytes are rejected unless mtu
// is zero; each VLAN tag of a frame raises its limit by 4 bytes. The
// endpoint takes ownership of fd.
func NewFromFD(fd, mtu int) *Endpoint {
	return &Endpoint{fd: fd, mtu: mtu}
}

// MTU returns the largest untagged frame e sends, or zero.
func (e *Endpoint) MTU() int {
	return e.mtu
}

// Transmit writes each frame in bufs with one write call and returns the
// number sent. It stops early without an error when the socket would block
// or the device queue is full.
func (e *Endpoint) Transmit(bufs []*buffer.Buffer) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fd < 0 {
		return 0, unix.EBADF
	}
	for i, b := range bufs {
		data := b.Bytes()
		if e.mtu > 0 {
			if limit := e.mtu + buffer.VLANTagSize*len(b.VLANs()); len(data) > limit {
				return i, fmt.Errorf("frame of %d bytes exceeds MTU %d: %w", len(data), limit, packet.ErrValueOutOfRange)
			}
		}
		n, err := unix.Write(e.fd, data)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ENOBUFS):
			return i, nil
		case err != nil:
			return i, fmt.Errorf("write: %w", err)
		case n != len(data):
			return i, fmt.Errorf("short write of %d of %d bytes", n, len(data))
		}
	}
	return len(bufs), nil
}

// Close closes the socket.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fd < 0 {
		return nil
	}
	err := unix.Close(e.fd)
	e.fd = -1
	return err
}
