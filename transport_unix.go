//go:build unix

package svnwire

import (
	"net"

	"golang.org/x/sys/unix"
)

// tuneTCP disables Nagle's algorithm on conn when it is a TCP
// connection. ra_svn traffic is a tight request/response exchange of
// small frames; batching them for 40ms at a time measurably hurts
// interactive latency, which is why the reference implementation sets
// this unconditionally on accept.
func tuneTCP(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}
	_ = raw.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	})
}
