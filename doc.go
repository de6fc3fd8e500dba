// Package svnwire implements the ra_svn wire protocol core: a
// self-describing, recursive, tagged-value marshalling format layered
// over an arbitrary byte stream, the buffered full-duplex connection
// framing built on top of it, and the command/response dispatch
// protocol that the higher-level repository-access layer speaks.
//
// Data flows through the package in a fixed pipeline:
//
//	bytes <-> ByteTransport <-> Connection <-> Item codec <-> tuple codec <-> dispatch
//
// Transports (TCP sockets, pipe pairs, or the adapters in wstransport)
// satisfy ByteTransport. A Connection buffers reads and writes over a
// ByteTransport and cooperates with a write-block handler to avoid
// pipeline deadlocks. Items are encoded and decoded directly on a
// Connection; the tuple codec layers a format-string mini-language on
// top for fixed-shape messages; and the dispatch package-level helpers
// build the command/success/failure envelopes used by a server's
// command loop and a client's response reader.
//
// Authentication (CRAM-MD5 only; see the cram subpackage) shares the
// same tuple vocabulary as ordinary commands.
package svnwire
