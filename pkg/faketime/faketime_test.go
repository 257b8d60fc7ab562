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

package faketime

import (
	"sync"
	"testing"
	"time"
)

func TestManualClockSleep(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := NewManualClockAt(start)
	clock.Sleep(3 * time.Millisecond)
	clock.Sleep(0)
	clock.Sleep(-time.Second)
	clock.Sleep(2 * time.Millisecond)
	if got, want := clock.Now(), start.Add(5*time.Millisecond); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
	if n, d := clock.Sleeps(); n != 2 || d != 5*time.Millisecond {
		t.Errorf("Sleeps() = %d, %v; want 2, 5ms", n, d)
	}
	clock.Advance(time.Second)
	if got := clock.Since(start); got != time.Second+5*time.Millisecond {
		t.Errorf("Since(start) = %v, want 1.005s", got)
	}
	if n, _ := clock.Sleeps(); n != 2 {
		t.Errorf("Advance counted as a sleep: %d sleeps", n)
	}
}

func TestManualClockAfterFunc(t *testing.T) {
	clock := NewManualClock()
	var wg sync.WaitGroup
	wg.Add(1)
	fired := false
	clock.AfterFunc(time.Second, func() {
		fired = true
		wg.Done()
	})
	clock.Sleep(999 * time.Millisecond)
	clock.Sleep(time.Millisecond)
	wg.Wait()
	if !fired {
		t.Errorf("AfterFunc callback did not run")
	}
}

func TestNullClock(t *testing.T) {
	var c NullClock
	c.Sleep(time.Hour)
	if !c.Now().IsZero() {
		t.Errorf("Now() = %v, want zero time", c.Now())
	}
}
