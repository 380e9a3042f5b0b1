package clock

import (
	"sync"
	"time"

	"stageline/internal/domain"
)

// Clock yields a strictly greater Timestamp on every call.
type Clock interface {
	Now() domain.Timestamp
}

// Logical counts up from a seed, one millisecond per call.
type Logical struct {
	mu   sync.Mutex
	last domain.Timestamp
}

func NewLogical(seed domain.Timestamp) *Logical {
	return &Logical{last: seed}
}

func (c *Logical) Now() domain.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last
}

// Monotonic follows wall-clock time but never repeats or goes backwards.
type Monotonic struct {
	mu   sync.Mutex
	last domain.Timestamp
	wall func() time.Time
}

func NewMonotonic() *Monotonic {
	return &Monotonic{wall: time.Now}
}

func (c *Monotonic) Now() domain.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	wall := time.Now
	if c.wall != nil {
		wall = c.wall
	}
	ts := domain.Timestamp(wall().UnixMilli())
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}
