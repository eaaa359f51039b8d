// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFakeClock_StandsStill(t *testing.T) {
	t.Parallel()

	c := NewFakeClock(epoch)
	if got := c.Now(); !got.Equal(epoch) {
		t.Errorf("Now() = %v, want %v", got, epoch)
	}
	if got := c.Now(); !got.Equal(epoch) {
		t.Errorf("second Now() = %v, want %v", got, epoch)
	}
}

func TestFakeClock_ZeroStartsAtEpoch(t *testing.T) {
	t.Parallel()

	if got := NewFakeClock(time.Time{}).Now(); !got.Equal(Epoch) {
		t.Errorf("Now() = %v, want %v", got, Epoch)
	}
}

func TestFakeClock_AdvanceAndSet(t *testing.T) {
	t.Parallel()

	c := NewFakeClock(epoch)
	c.Advance(90 * time.Second)
	if got, want := c.Now(), epoch.Add(90*time.Second); !got.Equal(want) {
		t.Errorf("after Advance Now() = %v, want %v", got, want)
	}

	later := epoch.Add(24 * time.Hour)
	c.Set(later)
	if got := c.Now(); !got.Equal(later) {
		t.Errorf("after Set Now() = %v, want %v", got, later)
	}
}

func TestTickingClock(t *testing.T) {
	t.Parallel()

	c := NewTickingClock(epoch, time.Millisecond)
	first, second := c.Now(), c.Now()
	if !first.Equal(epoch) {
		t.Errorf("first Now() = %v, want %v", first, epoch)
	}
	if got := second.Sub(first); got != time.Millisecond {
		t.Errorf("tick = %v, want 1ms", got)
	}
}

func TestFakeClock_ConcurrentUse(t *testing.T) {
	t.Parallel()

	c := NewTickingClock(epoch, time.Nanosecond)
	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Now()
		}()
	}
	wg.Wait()

	if got, want := c.Now(), epoch.Add(n*time.Nanosecond); !got.Equal(want) {
		t.Errorf("Now() after %d concurrent reads = %v, want %v", n, got, want)
	}
}
