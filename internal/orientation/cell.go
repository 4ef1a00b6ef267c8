package orientation

import (
	"sync"

	"github.com/shaunagostinho/dualtrack/internal/geo"
)

// Cell holds the most recent heading. Writes overwrite; there is no queue.
type Cell struct {
	mu      sync.RWMutex
	heading float64
	ok      bool
}

// Set stores r's angle. Readings with a nil or NaN alpha are ignored and
// Set returns false.
func (c *Cell) Set(r Reading) bool {
	if !r.usable() {
		return false
	}
	c.mu.Lock()
	c.heading = geo.NormalizeDeg(*r.Alpha)
	c.ok = true
	c.mu.Unlock()
	return true
}

// Heading returns the latest heading and whether any sample has arrived.
func (c *Cell) Heading() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heading, c.ok
}

// Current returns the latest heading, or 0 if none has been received.
func (c *Cell) Current() float64 {
	h, _ := c.Heading()
	return h
}
