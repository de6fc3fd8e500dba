// Package scratch pools the byte buffers handed to a command handler
// for one dispatch iteration and to a block handler for one
// invocation, mirroring the per-command subpool the
// reference command loop allocates and destroys every iteration.
package scratch

import (
	"bytes"
	"sync"
)

var pool sync.Pool

// Get returns a zeroed buffer from the pool or allocates a new one.
func Get() *bytes.Buffer {
	b, ok := pool.Get().(*bytes.Buffer)
	if !ok {
		b = &bytes.Buffer{}
	}
	return b
}

// Put resets b and returns it to the pool.
func Put(b *bytes.Buffer) {
	b.Reset()
	pool.Put(b)
}
