// Copyright 2020 The gVisor Authors.
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

// Package faketime provides clocks for tests that advance only when told
// to.
package faketime

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// NullClock implements a clock that never advances. Sleep returns at once.
type NullClock struct{}

// Now returns the zero time.
func (*NullClock) Now() time.Time {
	return time.Time{}
}

// Sleep returns immediately.
func (*NullClock) Sleep(time.Duration) {}

// ManualClock is a clock that only advances through Advance and Sleep. Sleep
// advances the clock by the requested duration instead of blocking, so code
// that paces itself with a ManualClock runs as fast as it can while seeing
// exactly the times it asked for.
type ManualClock struct {
	clock clockwork.FakeClock

	// mu protects the fields below.
	mu sync.Mutex

	// sleeps is the number of calls to Sleep with a positive duration.
	sleeps int

	// slept is the total duration passed to Sleep.
	slept time.Duration
}

// NewManualClock creates a new ManualClock instance.
func NewManualClock() *ManualClock {
	return &ManualClock{clock: clockwork.NewFakeClock()}
}

// NewManualClockAt creates a ManualClock reading t.
func NewManualClockAt(t time.Time) *ManualClock {
	return &ManualClock{clock: clockwork.NewFakeClockAt(t)}
}

// Now returns the current fake time.
func (mc *ManualClock) Now() time.Time {
	return mc.clock.Now()
}

// Since returns the fake time elapsed since t.
func (mc *ManualClock) Since(t time.Time) time.Duration {
	return mc.clock.Since(t)
}

// Sleep advances the clock by d and records the sleep.
func (mc *ManualClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	mc.mu.Lock()
	mc.sleeps++
	mc.slept += d
	mc.mu.Unlock()
	mc.clock.Advance(d)
}

// Advance moves the clock forward by d without counting it as a sleep.
// Timers created through the clock that fall due are fired.
func (mc *ManualClock) Advance(d time.Duration) {
	mc.clock.Advance(d)
}

// AfterFunc calls f in its own goroutine once the clock has advanced by d.
func (mc *ManualClock) AfterFunc(d time.Duration, f func()) clockwork.Timer {
	return mc.clock.AfterFunc(d, f)
}

// Sleeps returns the number of sleeps and their total duration.
func (mc *ManualClock) Sleeps() (int, time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.sleeps, mc.slept
}
