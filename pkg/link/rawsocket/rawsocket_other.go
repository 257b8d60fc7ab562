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

//go:build !linux
// +build !linux

// Package rawsocket provides a transmit sink that sends frames on a network
// interface through an AF_PACKET socket.
package rawsocket

import (
	"errors"
	"runtime"

	"pktgen.dev/pktgen/pkg/packet/buffer"
)

var errUnsupported = errors.New("raw packet sockets are not supported on " + runtime.GOOS)

// Endpoint is unavailable on this platform.
type Endpoint struct{}

// Open always fails on this platform.
func Open(string) (*Endpoint, error) {
	return nil, errUnsupported
}

// MTU returns zero.
func (*Endpoint) MTU() int {
	return 0
}

// Transmit always fails on this platform.
func (*Endpoint) Transmit([]*buffer.Buffer) (int, error) {
	return 0, errUnsupported
}

// Close does nothing.
func (*Endpoint) Close() error {
	return nil
}
