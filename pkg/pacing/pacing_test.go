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

package pacing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"pktgen.dev/pktgen/pkg/bitmask"
	"pktgen.dev/pktgen/pkg/faketime"
	"pktgen.dev/pktgen/pkg/packet"
)

func TestMeanInterval(t *testing.T) {
	for _, tc := range []struct {
		name  string
		rate  float64
		delay time.Duration
		want  time.Duration
	}{
		{name: "rate only", rate: 1000, want: time.Millisecond},
		{name: "delay only", delay: 250 * time.Microsecond, want: 250 * time.Microsecond},
		{name: "rate and delay", rate: 10000, delay: 50 * time.Microsecond, want: 150 * time.Microsecond},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clock := faketime.NewManualClock()
			c := NewController(clock)
			if err := c.SetRate(tc.rate); err != nil {
				t.Fatalf("SetRate(%v): %v", tc.rate, err)
			}
			if err := c.SetDelay(tc.delay); err != nil {
				t.Fatalf("SetDelay(%v): %v", tc.delay, err)
			}
			const n = 10000
			start := clock.Now()
			for i := 0; i < n; i++ {
				ok, err := c.Next(context.Background())
				if err != nil || !ok {
					t.Fatalf("Next() #%d = %t, %v; want true, nil", i, ok, err)
				}
			}
			if got := clock.Since(start) / (n - 1); got != tc.want {
				t.Errorf("mean interval = %v, want %v", got, tc.want)
			}
			if released, skipped := c.Counts(); released != n || skipped != 0 {
				t.Errorf("Counts() = %d, %d; want %d, 0", released, skipped, n)
			}
		})
	}
}

func TestFirstReleaseImmediate(t *testing.T) {
	clock := faketime.NewManualClock()
	c := NewController(clock)
	if err := c.SetRate(1); err != nil {
		t.Fatal(err)
	}
	if ok, err := c.Next(context.Background()); err != nil || !ok {
		t.Fatalf("Next() = %t, %v; want true, nil", ok, err)
	}
	if n, _ := clock.Sleeps(); n != 0 {
		t.Errorf("first Next slept %d times", n)
	}
	if got := c.State(); got != Idle {
		t.Errorf("State() = %v, want Idle", got)
	}
}

func TestPattern(t *testing.T) {
	clock := faketime.NewManualClock()
	c := NewController(clock)
	if err := c.SetRate(1000); err != nil {
		t.Fatal(err)
	}
	p, err := bitmask.Parse("1010")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetPattern(p); err != nil {
		t.Fatalf("SetPattern: %v", err)
	}
	// Changing the caller's mask afterwards has no effect.
	p.SetAll()

	start := clock.Now()
	var sent []int
	var at []time.Duration
	for i := 1; i <= 8; i++ {
		ok, err := c.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() #%d: %v", i, err)
		}
		if ok {
			sent = append(sent, i)
			at = append(at, clock.Since(start))
		}
	}
	if diff := cmp.Diff([]int{1, 3, 5, 7}, sent); diff != "" {
		t.Errorf("released calls mismatch (-want +got):\n%s", diff)
	}
	ms := time.Millisecond
	if diff := cmp.Diff([]time.Duration{0, 2 * ms, 4 * ms, 6 * ms}, at); diff != "" {
		t.Errorf("release times mismatch (-want +got):\n%s", diff)
	}
	if released, skipped := c.Counts(); released != 4 || skipped != 4 {
		t.Errorf("Counts() = %d, %d; want 4, 4", released, skipped)
	}
}

func TestSetPatternErrors(t *testing.T) {
	c := NewController(faketime.NewManualClock())
	if err := c.SetPattern(bitmask.New(0)); !errors.Is(err, packet.ErrValueOutOfRange) {
		t.Errorf("SetPattern(empty) = %v, want %v", err, packet.ErrValueOutOfRange)
	}
	if err := c.SetPattern(nil); err != nil {
		t.Errorf("SetPattern(nil) = %v", err)
	}
	if err := c.SetRate(-1); !errors.Is(err, packet.ErrValueOutOfRange) {
		t.Errorf("SetRate(-1) = %v, want %v", err, packet.ErrValueOutOfRange)
	}
	if err := c.SetDelay(-time.Second); !errors.Is(err, packet.ErrValueOutOfRange) {
		t.Errorf("SetDelay(-1s) = %v, want %v", err, packet.ErrValueOutOfRange)
	}
	if err := c.SleepMillisIdle(context.Background(), -1); !errors.Is(err, packet.ErrValueOutOfRange) {
		t.Errorf("SleepMillisIdle(-1) = %v, want %v", err, packet.ErrValueOutOfRange)
	}
}

func TestStop(t *testing.T) {
	clock := faketime.NewManualClock()
	c := NewController(clock)
	if ok, err := c.Next(context.Background()); err != nil || !ok {
		t.Fatalf("Next() = %t, %v; want true, nil", ok, err)
	}
	c.Stop()
	c.Stop()
	c.Reset()
	if got := c.State(); got != Stopped {
		t.Errorf("State() = %v, want Stopped", got)
	}
	for i := 0; i < 3; i++ {
		if ok, err := c.Next(context.Background()); ok || !errors.Is(err, packet.ErrControllerStopped) {
			t.Errorf("Next() after Stop = %t, %v; want false, %v", ok, err, packet.ErrControllerStopped)
		}
	}
	if err := c.SleepMicros(context.Background(), 10); !errors.Is(err, packet.ErrControllerStopped) {
		t.Errorf("SleepMicros after Stop = %v, want %v", err, packet.ErrControllerStopped)
	}
}

func TestStopInterruptsWait(t *testing.T) {
	c := NewController(RealClock)
	if err := c.SetRate(0.5); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		c.Stop()
	}()
	start := time.Now()
	ok, err := c.Next(context.Background())
	if ok || !errors.Is(err, packet.ErrControllerStopped) {
		t.Errorf("Next() = %t, %v; want false, %v", ok, err, packet.ErrControllerStopped)
	}
	if d := time.Since(start); d > time.Second {
		t.Errorf("Next() returned after %v, want well under the 2s slot", d)
	}
}

func TestContextCanceled(t *testing.T) {
	c := NewController(RealClock)
	c.SetWaitMode(WaitBusy)
	if err := c.SetRate(0.5); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Next(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Next() = %v, want %v", err, context.DeadlineExceeded)
	}
	if got := c.State(); got != Idle {
		t.Errorf("State() = %v, want Idle", got)
	}
}

func TestReanchor(t *testing.T) {
	clock := faketime.NewManualClock()
	c := NewController(clock)
	if err := c.SetRate(1000); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	clock.Advance(time.Second)
	before, _ := clock.Sleeps()
	for i := 0; i < 2; i++ {
		if _, err := c.Next(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	// The first late call releases at once; the second waits one slot.
	after, slept := clock.Sleeps()
	if after-before != 1 {
		t.Errorf("slept %d times after falling behind, want 1", after-before)
	}
	if slept != 3*time.Millisecond {
		t.Errorf("total sleep = %v, want 3ms", slept)
	}
}

func TestReset(t *testing.T) {
	clock := faketime.NewManualClock()
	c := NewController(clock)
	if err := c.SetRate(100); err != nil {
		t.Fatal(err)
	}
	p, _ := bitmask.Parse("01")
	if err := c.SetPattern(p); err != nil {
		t.Fatal(err)
	}
	if ok, _ := c.Next(context.Background()); ok {
		t.Fatalf("slot 0 released, want skipped")
	}
	c.Reset()
	if ok, _ := c.Next(context.Background()); ok {
		t.Errorf("slot 0 after Reset released, want skipped")
	}
	start := clock.Now()
	if ok, _ := c.Next(context.Background()); !ok {
		t.Errorf("slot 1 after Reset skipped, want released")
	}
	if got := clock.Since(start); got != 10*time.Millisecond {
		t.Errorf("slot 1 released after %v, want 10ms", got)
	}
}

func TestIndependentControllers(t *testing.T) {
	clock := faketime.NewManualClock()
	a := NewController(clock)
	b := NewController(clock)
	if err := a.SetRate(1000); err != nil {
		t.Fatal(err)
	}
	p, _ := bitmask.Parse("0")
	if err := b.SetPattern(p); err != nil {
		t.Fatal(err)
	}
	b.Stop()
	for i := 0; i < 5; i++ {
		if ok, err := a.Next(context.Background()); err != nil || !ok {
			t.Fatalf("a.Next() = %t, %v", ok, err)
		}
	}
	if got := a.State(); got != Idle {
		t.Errorf("a.State() = %v, want Idle", got)
	}
	if got, want := a.Interval(), time.Millisecond; got != want {
		t.Errorf("a.Interval() = %v, want %v", got, want)
	}
	if got := b.Interval(); got != 0 {
		t.Errorf("b.Interval() = %v, want 0", got)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		Idle:      "Idle",
		Armed:     "Armed",
		Releasing: "Releasing",
		Stopped:   "Stopped",
		State(9):  "State(9)",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), got, want)
		}
	}
}
