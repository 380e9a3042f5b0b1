package clock

import (
	"testing"
	"time"
)

func TestLogicalStrictlyIncreasing(t *testing.T) {
	c := NewLogical(1700000000000)
	prev := c.Now()
	for i := 0; i < 100; i++ {
		next := c.Now()
		if next <= prev {
			t.Fatalf("clock went from %d to %d", prev, next)
		}
		prev = next
	}
	if prev != 1700000000101 {
		t.Fatalf("unexpected final reading %d", prev)
	}
}

func TestMonotonicNeverRepeatsOnFrozenWall(t *testing.T) {
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Monotonic{wall: func() time.Time { return frozen }}
	a, b, d := c.Now(), c.Now(), c.Now()
	if !(a < b && b < d) {
		t.Fatalf("expected strictly increasing, got %d %d %d", a, b, d)
	}
	if a.Time() != frozen {
		t.Fatalf("first reading should match wall clock, got %v", a.Time())
	}
}
