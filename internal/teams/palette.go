package teams

import "sync"

var DefaultColors = []string{"blue", "green", "purple", "orange"}

// Palette hands out display colors.
type Palette interface {
	Next() string
}

// RoundRobin cycles through a fixed color list.
type RoundRobin struct {
	mu     sync.Mutex
	colors []string
	next   int
}

func NewRoundRobin(colors ...string) *RoundRobin {
	if len(colors) == 0 {
		colors = DefaultColors
	}
	return &RoundRobin{colors: append([]string(nil), colors...)}
}

func (r *RoundRobin) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.colors[r.next%len(r.colors)]
	r.next++
	return c
}

// NewRoundRobinFrom starts the cycle at offset, so a fresh process can
// continue where the stored teams left off.
func NewRoundRobinFrom(offset int, colors ...string) *RoundRobin {
	r := NewRoundRobin(colors...)
	if offset > 0 {
		r.next = offset % len(r.colors)
	}
	return r
}
