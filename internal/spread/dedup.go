package spread

import (
	"sync"
	"time"
)

// Deduper suppresses an opportunity that was already reported within the
// cooldown window. It is safe for concurrent use.
type Deduper struct {
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time // dedup key -> last reported
}

// NewDeduper returns a Deduper; a zero cooldown allows everything.
func NewDeduper(cooldown time.Duration) *Deduper {
	return &Deduper{cooldown: cooldown, now: time.Now, seen: make(map[string]time.Time)}
}

// Allow records key and reports whether it was not seen within the cooldown.
func (d *Deduper) Allow(key string) bool {
	if d.cooldown <= 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	d.seen[key] = now
	return true
}

// Sweep drops entries whose cooldown has expired.
func (d *Deduper) Sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.cooldown {
			delete(d.seen, k)
		}
	}
}

// Len returns the number of tracked keys.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
