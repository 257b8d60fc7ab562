// Copyright 2018 The gVisor Authors.
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

// Package channel provides the implementation of channel-based transmit
// sinks that can be used by tests to check the frames a sender produces.
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pktgen.dev/pktgen/pkg/packet"
	"pktgen.dev/pktgen/pkg/packet/buffer"
)

// PacketInfo holds a copy of a transmitted frame and when it was queued.
type PacketInfo struct {
	Data      []byte
	Timestamp time.Time
}

// Notification is the interface for receiving notification from the packet
// queue.
type Notification interface {
	// WriteNotify will be called when a write happens to the queue.
	WriteNotify()
}

// NotificationHandle is an opaque handle to the registered notification
// target. It can be used to unregister the notification when no longer
// interested.
type NotificationHandle struct {
	n Notification
}

type queue struct {
	// c is the outbound packet channel.
	c chan PacketInfo
	// mu protects fields below.
	mu     sync.RWMutex
	notify []*NotificationHandle
}

func (q *queue) Close() {
	close(q.c)
}

func (q *queue) Read() (PacketInfo, bool) {
	select {
	case p := <-q.c:
		return p, true
	default:
		return PacketInfo{}, false
	}
}

func (q *queue) ReadContext(ctx context.Context) (PacketInfo, bool) {
	select {
	case pkt, ok := <-q.c:
		return pkt, ok
	case <-ctx.Done():
		return PacketInfo{}, false
	}
}

func (q *queue) Write(p PacketInfo) bool {
	wrote := false
	select {
	case q.c <- p:
		wrote = true
	default:
	}
	q.mu.RLock()
	notify := q.notify
	q.mu.RUnlock()

	if wrote {
		// Send notification outside of lock.
		for _, h := range notify {
			h.n.WriteNotify()
		}
	}
	return wrote
}

func (q *queue) Num() int {
	return len(q.c)
}

func (q *queue) AddNotify(notify Notification) *NotificationHandle {
	q.mu.Lock()
	defer q.mu.Unlock()
	h := &NotificationHandle{n: notify}
	q.notify = append(q.notify, h)
	return h
}

func (q *queue) RemoveNotify(handle *NotificationHandle) {
	q.mu.Lock()
	defer q.mu.Unlock()
	// Make a copy, since we reads the array outside of lock when notifying.
	notify := make([]*NotificationHandle, 0, len(q.notify))
	for _, h := range q.notify {
		if h != handle {
			notify = append(notify, h)
		}
	}
	q.notify = notify
}

// Endpoint is a transmit sink that stores copies of outbound frames in a
// bounded queue. Frames written while the queue is full are dropped.
type Endpoint struct {
	mtu int
	now func() time.Time

	// Outbound packet queue.
	q *queue
}

// New creates a new channel endpoint holding up to size frames of at most
// mtu bytes. A zero mtu does not limit frame size.
func New(size, mtu int) *Endpoint {
	return &Endpoint{
		q: &queue{
			c: make(chan PacketInfo, size),
		},
		mtu: mtu,
		now: time.Now,
	}
}

// SetClock sets the time source of frame timestamps.
func (e *Endpoint) SetClock(now func() time.Time) {
	e.now = now
}

// Close closes e. Further frames will be written to a closed channel and
// panic; readers see the end of the queue.
func (e *Endpoint) Close() {
	e.q.Close()
}

// Read does non-blocking read one frame from the outbound packet queue.
func (e *Endpoint) Read() (PacketInfo, bool) {
	return e.q.Read()
}

// ReadContext does blocking read for one frame from the outbound packet
// queue. It can be cancelled by ctx, and in this case, it returns false.
func (e *Endpoint) ReadContext(ctx context.Context) (PacketInfo, bool) {
	return e.q.ReadContext(ctx)
}

// Drain removes all outbound frames from the channel and counts them.
func (e *Endpoint) Drain() int {
	c := 0
	for {
		if _, ok := e.Read(); !ok {
			return c
		}
		c++
	}
}

// NumQueued returns the number of frames queued for outbound.
func (e *Endpoint) NumQueued() int {
	return e.q.Num()
}

// MTU returns the largest frame e accepts, or zero.
func (e *Endpoint) MTU() int {
	return e.mtu
}

// Transmit copies the frames in bufs to the queue in order. It stops at the
// first frame that does not fit in the queue and returns the number queued.
// A frame larger than the MTU fails the call.
func (e *Endpoint) Transmit(bufs []*buffer.Buffer) (int, error) {
	n := 0
	for _, b := range bufs {
		if e.mtu > 0 && b.Size() > e.mtu {
			return n, fmt.Errorf("frame of %d bytes exceeds MTU %d: %w", b.Size(), e.mtu, packet.ErrValueOutOfRange)
		}
		p := PacketInfo{
			Data:      append([]byte(nil), b.Bytes()...),
			Timestamp: e.now(),
		}
		if !e.q.Write(p) {
			break
		}
		n++
	}
	return n, nil
}

// AddNotify adds a notification target for receiving event about outgoing
// frames.
func (e *Endpoint) AddNotify(notify Notification) *NotificationHandle {
	return e.q.AddNotify(notify)
}

// RemoveNotify removes handle from the list of notification targets.
func (e *Endpoint) RemoveNotify(handle *NotificationHandle) {
	e.q.RemoveNotify(handle)
}
