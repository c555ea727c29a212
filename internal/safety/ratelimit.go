package safety

import (
	"sync"
	"time"

	"github.com/khanhnv2901/webposture/internal/shared/constants"
)

// Cooldown enforces a per-client minimum interval between scans. A client
// is admitted at most once per window; the admission is recorded at check
// time so a rejected scan attempt does not reset the clock.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time

	now func() time.Time // test hook
}

// NewCooldown returns a Cooldown with the given window. A zero window
// falls back to the default scan cooldown.
func NewCooldown(window time.Duration) *Cooldown {
	if window <= 0 {
		window = constants.ScanCooldown
	}
	return &Cooldown{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Admit reports whether clientID may scan now. When denied, remaining is
// the time left until the next admission.
func (c *Cooldown) Admit(clientID string) (ok bool, remaining time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, found := c.seen[clientID]; found {
		elapsed := now.Sub(last)
		if elapsed < c.window {
			return false, c.window - elapsed
		}
	}
	c.seen[clientID] = now
	return true, 0
}

// Purge drops entries old enough that they can no longer deny an admission.
func (c *Cooldown) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-2 * c.window)
	for id, last := range c.seen {
		if last.Before(cutoff) {
			delete(c.seen, id)
		}
	}
}
