package svnwire

import "time"

// defaultBufferSize is the minimum read/write buffer size a
// conforming implementation must use.
const defaultBufferSize = 4096

// defaultMaxDepth is the floor on list nesting an implementation must
// enforce.
const defaultMaxDepth = 64

// defaultStringChunkSize bounds peak memory while reading a String
// payload.
const defaultStringChunkSize = 4096

type options struct {
	readBufferSize  int
	writeBufferSize int
	maxDepth        int
	stringChunkSize int
	blockHandler    BlockHandler
	readTimeout     *time.Duration
	writeTimeout    *time.Duration
}

func defaultOptions() options {
	return options{
		readBufferSize:  defaultBufferSize,
		writeBufferSize: defaultBufferSize,
		maxDepth:        defaultMaxDepth,
		stringChunkSize: defaultStringChunkSize,
	}
}

// Option configures a Connection. The pattern mirrors the rest of the
// ecosystem's dial/accept option structs: a private options struct
// mutated by a chain of functions supplied to NewConnection.
type Option func(*options)

// WithReadBufferSize overrides the read buffer size. Panics at
// NewConnection time if n is below the 4096-byte floor.
func WithReadBufferSize(n int) Option {
	return func(o *options) { o.readBufferSize = n }
}

// WithWriteBufferSize overrides the write buffer size. Panics at
// NewConnection time if n is below the 4096-byte floor.
func WithWriteBufferSize(n int) Option {
	return func(o *options) { o.writeBufferSize = n }
}

// WithMaxDepth overrides the maximum list nesting depth the ItemCodec
// will parse before failing with MalformedData. Must be at least 64.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithStringChunkSize overrides the chunk size used to bound peak
// memory while reading String payloads.
func WithStringChunkSize(n int) Option {
	return func(o *options) { o.stringChunkSize = n }
}

// WithBlockHandler installs the write-block cooperation callback.
// Installing a handler switches the transport to non-blocking writes
// with retry-via-handler; leaving it unset (the default) keeps
// synchronous, fully blocking RPC semantics.
func WithBlockHandler(h BlockHandler) Option {
	return func(o *options) { o.blockHandler = h }
}

// WithReadTimeout bounds every blocking read on the underlying
// transport. A nil duration (the default) blocks forever.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) { o.readTimeout = &d }
}

// WithWriteTimeout bounds every blocking write on the underlying
// transport.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) { o.writeTimeout = &d }
}
