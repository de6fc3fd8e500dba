package wstransport

import (
	"context"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/svnwire/svnwire"
)

// GobwasTransport adapts a client-side WebSocket connection dialed
// with gobwas/ws to svnwire.ByteTransport.
type GobwasTransport struct {
	conn    net.Conn
	pending []byte
	timeout *time.Duration
}

// Dial connects to url and performs the WebSocket client handshake,
// returning the connection wrapped as a ByteTransport.
func Dial(ctx context.Context, url string) (*GobwasTransport, error) {
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, &svnwire.Error{Kind: svnwire.KindIO, Message: "websocket dial: " + err.Error()}
	}
	return &GobwasTransport{conn: conn}, nil
}

func (t *GobwasTransport) Send(b []byte) (int, error) {
	t.applyDeadline()
	if err := wsutil.WriteClientBinary(t.conn, b); err != nil {
		if isTimeoutErr(err) {
			return 0, nil
		}
		return 0, &svnwire.Error{Kind: svnwire.KindIO, Message: "websocket send: " + err.Error()}
	}
	return len(b), nil
}

func (t *GobwasTransport) Recv(b []byte) (int, error) {
	for len(t.pending) == 0 {
		t.applyDeadline()
		msg, err := wsutil.ReadServerBinary(t.conn)
		if err != nil {
			if isTimeoutErr(err) {
				return 0, nil
			}
			if err == net.ErrClosed {
				return 0, nil
			}
			return 0, &svnwire.Error{Kind: svnwire.KindIO, Message: "websocket recv: " + err.Error()}
		}
		t.pending = msg
	}
	n := copy(b, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

func (t *GobwasTransport) Pending() bool { return len(t.pending) > 0 }

func (t *GobwasTransport) SetTimeout(d *time.Duration) { t.timeout = d }

func (t *GobwasTransport) applyDeadline() {
	t.conn.SetDeadline(deadlineFor(t.timeout))
}

func isTimeoutErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
