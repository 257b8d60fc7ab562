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

// Package pacing releases packets on a schedule.
//
// A Controller divides time into slots of 1/rate plus an optional extra
// delay. Each call to Next consumes one slot: it waits until the slot
// starts and reports whether the slot may send, as selected by an optional
// bit pattern. Deadlines are computed from the previous deadline, not from
// the time Next returned, so the mean interval does not drift with caller
// latency.
package pacing

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"pktgen.dev/pktgen/pkg/bitmask"
	"pktgen.dev/pktgen/pkg/log"
	"pktgen.dev/pktgen/pkg/packet"
)

// Clock is the time source of a Controller.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for d, or advances a fake clock by d.
	Sleep(d time.Duration)
}

type realClock struct{}

// Now implements Clock.Now.
func (realClock) Now() time.Time { return time.Now() }

// Sleep implements Clock.Sleep.
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// State is the scheduling state of a Controller.
type State int32

// Controller states. A controller moves Idle -> Armed -> Releasing -> Idle
// on every call to Next; Stopped is terminal.
const (
	Idle State = iota
	Armed
	Releasing
	Stopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Armed:
		return "Armed"
	case Releasing:
		return "Releasing"
	case Stopped:
		return "Stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// WaitMode selects how Next waits for a slot.
type WaitMode int

const (
	// WaitIdle yields the processor while waiting.
	WaitIdle WaitMode = iota

	// WaitBusy spins on the clock. It gives the most precise release times
	// with the real clock at the cost of a busy core.
	WaitBusy
)

// maxLagSlots bounds how far the schedule may fall behind before it is
// re-anchored at the current time rather than releasing a burst.
const maxLagSlots = 10

// Controller paces a single stream of packets. Controllers share no state.
//
// Next must not be called concurrently; Stop may be called from any
// goroutine.
type Controller struct {
	clock Clock

	// stop is closed by Stop.
	stop     chan struct{}
	stopOnce sync.Once
	state    atomic.Int32

	// mu protects the fields below.
	mu       sync.Mutex
	rate     float64
	delay    time.Duration
	pattern  *bitmask.Bitmask
	mode     WaitMode
	slot     int
	deadline time.Time
	armed    bool
	released uint64
	skipped  uint64
}

// NewController returns an idle controller with no rate limit that reads
// time from clock. A nil clock selects RealClock.
func NewController(clock Clock) *Controller {
	if clock == nil {
		clock = RealClock
	}
	return &Controller{
		clock: clock,
		stop:  make(chan struct{}),
	}
}

// SetRate sets the number of slots per second. Zero removes the limit.
func (c *Controller) SetRate(pps float64) error {
	if pps < 0 || math.IsNaN(pps) || math.IsInf(pps, 0) {
		return fmt.Errorf("rate %v: %w", pps, packet.ErrValueOutOfRange)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = pps
	return nil
}

// SetDelay sets a delay added to every slot on top of the rate interval.
func (c *Controller) SetDelay(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("delay %v: %w", d, packet.ErrValueOutOfRange)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delay = d
	return nil
}

// SetPattern sets the send pattern. Slot i of every cycle of p.Size() slots
// sends if bit i is set and is skipped otherwise. A nil pattern sends in
// every slot. The pattern restarts at its first bit.
func (c *Controller) SetPattern(p *bitmask.Bitmask) error {
	if p != nil && p.Size() == 0 {
		return fmt.Errorf("empty pattern: %w", packet.ErrValueOutOfRange)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p != nil {
		p = p.Clone()
	}
	c.pattern = p
	c.slot = 0
	return nil
}

// SetWaitMode selects how Next waits.
func (c *Controller) SetWaitMode(m WaitMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// Interval returns the length of one slot.
func (c *Controller) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.intervalLocked()
}

func (c *Controller) intervalLocked() time.Duration {
	var d time.Duration
	if c.rate > 0 {
		d = time.Duration(float64(time.Second) / c.rate)
	}
	return d + c.delay
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// setState moves to s unless the controller is stopped.
func (c *Controller) setState(s State) {
	for {
		cur := c.state.Load()
		if State(cur) == Stopped || c.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}

// Counts returns the number of released and skipped slots.
func (c *Controller) Counts() (released, skipped uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released, c.skipped
}

// Stop stops the controller. A Next in progress returns
// packet.ErrControllerStopped as soon as its wait ends, and every later
// call fails the same way.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.state.Store(int32(Stopped))
		close(c.stop)
	})
}

// Reset restarts the schedule and the pattern. The next call to Next
// releases at once. Reset has no effect on a stopped controller.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = 0
	c.armed = false
	c.deadline = time.Time{}
	c.setState(Idle)
}

func (c *Controller) checkStop(ctx context.Context) error {
	if c.State() == Stopped {
		return packet.ErrControllerStopped
	}
	return ctx.Err()
}

// Next waits for the next slot and reports whether it may send. A skipped
// slot returns false at once and moves the schedule on by one slot without
// waiting.
func (c *Controller) Next(ctx context.Context) (bool, error) {
	if err := c.checkStop(ctx); err != nil {
		return false, err
	}
	c.mu.Lock()
	now := c.clock.Now()
	interval := c.intervalLocked()
	if !c.armed {
		c.deadline = now
		c.armed = true
	} else if interval > 0 && now.Sub(c.deadline) > maxLagSlots*interval {
		log.Debugf("pacing: %v behind schedule, re-anchoring", now.Sub(c.deadline))
		c.deadline = now
	}
	deadline := c.deadline
	c.deadline = c.deadline.Add(interval)
	send := true
	if c.pattern != nil {
		send = c.pattern.Get(c.slot)
		c.slot = (c.slot + 1) % c.pattern.Size()
	}
	if !send {
		c.skipped++
		c.mu.Unlock()
		return false, nil
	}
	mode := c.mode
	c.mu.Unlock()

	c.setState(Armed)
	if err := c.waitUntil(ctx, deadline, mode); err != nil {
		c.setState(Idle)
		return false, err
	}
	c.setState(Releasing)
	c.mu.Lock()
	c.released++
	c.mu.Unlock()
	c.setState(Idle)
	return true, nil
}

// waitUntil waits until t, checking for a stop before and after.
func (c *Controller) waitUntil(ctx context.Context, t time.Time, mode WaitMode) error {
	if err := c.checkStop(ctx); err != nil {
		return err
	}
	if d := t.Sub(c.clock.Now()); d > 0 {
		switch {
		case mode == WaitBusy && c.clock == RealClock:
			c.spin(ctx, t)
		case c.clock == RealClock:
			c.sleepReal(ctx, d)
		default:
			c.clock.Sleep(d)
		}
	}
	return c.checkStop(ctx)
}

// spin busy-waits on the real clock until t, a stop or ctx is done.
func (c *Controller) spin(ctx context.Context, t time.Time) {
	for i := 0; time.Now().Before(t); i++ {
		if i%1024 == 0 && c.checkStop(ctx) != nil {
			return
		}
	}
}

// sleepReal sleeps on the real clock for d, waking early on a stop or when
// ctx is done.
func (c *Controller) sleepReal(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.stop:
	case <-ctx.Done():
	}
}

// SleepMicros busy-waits for us microseconds.
func (c *Controller) SleepMicros(ctx context.Context, us int64) error {
	return c.sleepFor(ctx, time.Duration(us)*time.Microsecond, WaitBusy)
}

// SleepMillis busy-waits for ms milliseconds.
func (c *Controller) SleepMillis(ctx context.Context, ms int64) error {
	return c.sleepFor(ctx, time.Duration(ms)*time.Millisecond, WaitBusy)
}

// SleepMicrosIdle sleeps for us microseconds, yielding the processor.
func (c *Controller) SleepMicrosIdle(ctx context.Context, us int64) error {
	return c.sleepFor(ctx, time.Duration(us)*time.Microsecond, WaitIdle)
}

// SleepMillisIdle sleeps for ms milliseconds, yielding the processor.
func (c *Controller) SleepMillisIdle(ctx context.Context, ms int64) error {
	return c.sleepFor(ctx, time.Duration(ms)*time.Millisecond, WaitIdle)
}

func (c *Controller) sleepFor(ctx context.Context, d time.Duration, mode WaitMode) error {
	if d < 0 {
		return fmt.Errorf("sleep of %v: %w", d, packet.ErrValueOutOfRange)
	}
	if d == 0 {
		runtime.Gosched()
		return c.checkStop(ctx)
	}
	return c.waitUntil(ctx, c.clock.Now().Add(d), mode)
}
