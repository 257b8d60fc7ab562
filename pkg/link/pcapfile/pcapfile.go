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

// Package pcapfile provides a transmit sink that records frames to a pcap
// file instead of sending them.
package pcapfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"pktgen.dev/pktgen/pkg/packet/buffer"
)

// DefaultSnapLen is the capture length used when none is given.
const DefaultSnapLen = 65535

// Writer writes transmitted frames to a pcap stream with Ethernet link type.
// It is safe for concurrent use.
type Writer struct {
	snapLen int
	now     func() time.Time

	// mu protects the fields below.
	mu      sync.Mutex
	bw      *bufio.Writer
	w       *pcapgo.Writer
	closer  io.Closer
	written uint64
}

// NewWriter writes the pcap file header to w and returns a Writer appending
// frames to it, truncated to snapLen bytes. A zero snapLen selects
// DefaultSnapLen.
func NewWriter(w io.Writer, snapLen int) (*Writer, error) {
	if snapLen <= 0 {
		snapLen = DefaultSnapLen
	}
	bw := bufio.NewWriter(w)
	pw := pcapgo.NewWriter(bw)
	if err := pw.WriteFileHeader(uint32(snapLen), layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("writing pcap header: %w", err)
	}
	return &Writer{
		snapLen: snapLen,
		now:     time.Now,
		bw:      bw,
		w:       pw,
	}, nil
}

// Create creates or truncates the file at path and returns a Writer for it.
func Create(path string, snapLen int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, snapLen)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// SetClock sets the source of frame timestamps.
func (w *Writer) SetClock(now func() time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
}

// Transmit appends the frames in bufs to the file and returns the number
// written.
func (w *Writer) Transmit(bufs []*buffer.Buffer) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return 0, os.ErrClosed
	}
	for i, b := range bufs {
		data := b.Bytes()
		ci := gopacket.CaptureInfo{
			Timestamp:     w.now(),
			CaptureLength: min(len(data), w.snapLen),
			Length:        len(data),
		}
		if err := w.w.WritePacket(ci, data[:ci.CaptureLength]); err != nil {
			return i, fmt.Errorf("writing frame %d: %w", w.written, err)
		}
		w.written++
	}
	return len(bufs), nil
}

// Written returns the number of frames written.
func (w *Writer) Written() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Flush writes buffered frames to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bw == nil {
		return os.ErrClosed
	}
	return w.bw.Flush()
}

// Close flushes w and closes the file opened by Create.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	err := w.bw.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	w.w, w.bw, w.closer = nil, nil, nil
	return err
}
