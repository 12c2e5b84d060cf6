package schedule

import "time"

// Cache holds the authoritative normalized event list. The whole set is
// replaced atomically on a successful fetch; a failed fetch leaves the
// previous set untouched. Single-writer: only the calendar pipeline mutates
// it, the state machine only reads snapshots.
type Cache struct {
	events        []Event
	lastRefreshed time.Time
}

func NewCache() *Cache {
	return &Cache{}
}

// Replace swaps in a new event set and records the refresh time
func (c *Cache) Replace(events []Event, at time.Time) {
	c.events = events
	c.lastRefreshed = at
}

// Events returns the current event snapshot
func (c *Cache) Events() []Event {
	return c.events
}

// LastRefreshed returns the time of the last successful replacement
func (c *Cache) LastRefreshed() time.Time {
	return c.lastRefreshed
}

// Len returns the number of cached events
func (c *Cache) Len() int {
	return len(c.events)
}

// Truncate drops all but the first n entries. Used as the memory-pressure
// fallback; cache order is provider start-time order, so the near-term
// events survive.
func (c *Cache) Truncate(n int) int {
	if len(c.events) <= n {
		return 0
	}
	dropped := len(c.events) - n
	c.events = c.events[:n]
	return dropped
}
