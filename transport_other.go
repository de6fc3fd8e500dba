//go:build !unix

package svnwire

import "net"

func tuneTCP(conn net.Conn) {}
