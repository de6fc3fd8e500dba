// Package stats holds the byte counters a Connection exposes for
// operational visibility, mirroring the bytes_read/bytes_written
// fields the reference session baton carries per connection.
package stats

import "sync/atomic"

// Counter is a monotonically increasing byte counter safe for
// concurrent use by the connection's read and write paths.
type Counter struct {
	v int64
}

// Add adds delta to the counter and returns the new value.
func (c *Counter) Add(delta int64) int64 {
	return atomic.AddInt64(&c.v, delta)
}

// Load returns the current value.
func (c *Counter) Load() int64 {
	return atomic.LoadInt64(&c.v)
}
