// Package date keeps a cached IMF-fixdate string for the Date response header.
package date

import (
	"sync/atomic"
	"time"
)

// Layout is the IMF-fixdate layout HTTP uses for Date.
const Layout = "Mon, 02 Jan 2006 15:04:05 GMT"

// Cache holds the formatted current time, refreshed by a ticker so request
// handling never formats a time itself.
type Cache struct {
	now  func() time.Time
	v    atomic.Pointer[string]
}

// New returns a cache that is already populated.
func New() *Cache {
	return newWithClock(time.Now)
}

func newWithClock(now func() time.Time) *Cache {
	c := &Cache{now: now}
	c.refresh()
	return c
}

func (c *Cache) refresh() {
	s := c.now().UTC().Format(Layout)
	c.v.Store(&s)
}

// Start refreshes the value every interval until the returned stop function
// is called. Calling stop more than once is safe.
func (c *Cache) Start(interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	c.refresh()
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.refresh()
			case <-done:
				return
			}
		}
	}()

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			close(done)
		}
	}
}

// Value returns the cached Date header value.
func (c *Cache) Value() string {
	return *c.v.Load()
}
