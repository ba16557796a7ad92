package alarm

import (
	"sync"
	"time"

	"bessmon/internal/model"
)

// Cooldown suppresses repeats of the same alarm kind for one BESS within a
// window. A zero window allows every alarm.
type Cooldown struct {
	window time.Duration
	mu     sync.Mutex
	last   map[string]time.Time
}

func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{window: window, last: make(map[string]time.Time)}
}

func (c *Cooldown) Allow(a model.Alarm, now time.Time) bool {
	if c == nil || c.window <= 0 {
		return true
	}
	key := a.BessID + "|" + string(a.Kind)
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.last[key]; ok && now.Sub(ts) < c.window {
		return false
	}
	c.last[key] = now
	return true
}
