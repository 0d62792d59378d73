package timeutil

import (
	"testing"
	"time"
)

func TestRealClockNow(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	now := c.Now()
	after := time.Now()
	if now.Before(before) || now.After(after) {
		t.Errorf("RealClock.Now() = %v, want between %v and %v", now, before, after)
	}
}

func TestMockClockSleepRecords(t *testing.T) {
	c := NewMockClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	c.Sleep(100 * time.Millisecond)
	c.Sleep(4 * time.Second)

	sleeps := c.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("expected 2 recorded sleeps, got %d", len(sleeps))
	}
	if sleeps[0] != 100*time.Millisecond || sleeps[1] != 4*time.Second {
		t.Errorf("unexpected sleep durations: %v", sleeps)
	}
}

func TestMockClockAfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	ch := c.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before the clock was advanced")
	default:
	}

	c.Advance(3 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before the deadline")
	default:
	}

	c.Advance(2 * time.Second)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(5 * time.Second)) {
			t.Errorf("After delivered %v, want %v", got, start.Add(5*time.Second))
		}
	case <-time.After(time.Second):
		t.Fatal("After did not fire after the deadline passed")
	}
}

func TestMockClockSince(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	c.Advance(90 * time.Second)
	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("Since = %v, want 90s", got)
	}
}
