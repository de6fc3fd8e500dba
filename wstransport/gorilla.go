// Package wstransport adapts WebSocket connections to
// svnwire.ByteTransport, letting the wire protocol tunnel through
// infrastructure (load balancers, browser clients) that only speaks
// HTTP and WebSocket upgrades. It deliberately uses two different
// WebSocket libraries for the two directions: gorilla/websocket on
// the accept side, where its http.Handler-friendly Upgrader is the
// natural fit for a server, and gobwas/ws on the dial side, where its
// lower-allocation client API suits a long-lived RPC client dialing
// out repeatedly.
package wstransport

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/svnwire/svnwire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// GorillaTransport adapts a *websocket.Conn (server-accepted) to
// svnwire.ByteTransport. The wire protocol is a byte stream; each
// WebSocket binary message is treated as an arbitrary-length chunk of
// that stream, buffered and handed out in whatever pieces Recv's
// caller asked for.
type GorillaTransport struct {
	conn    *websocket.Conn
	pending []byte
	timeout *time.Duration
}

// Accept upgrades an incoming HTTP request to a WebSocket connection
// and returns it wrapped as a ByteTransport.
func Accept(w http.ResponseWriter, r *http.Request) (*GorillaTransport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, &svnwire.Error{Kind: svnwire.KindIO, Message: "websocket upgrade: " + err.Error()}
	}
	return &GorillaTransport{conn: conn}, nil
}

func (t *GorillaTransport) Send(b []byte) (int, error) {
	t.applyWriteDeadline()
	if err := t.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		if isDeadlineErr(err) {
			return 0, nil
		}
		return 0, &svnwire.Error{Kind: svnwire.KindIO, Message: "websocket send: " + err.Error()}
	}
	return len(b), nil
}

func (t *GorillaTransport) Recv(b []byte) (int, error) {
	for len(t.pending) == 0 {
		t.applyReadDeadline()
		_, msg, err := t.conn.ReadMessage()
		if err != nil {
			if isDeadlineErr(err) {
				return 0, nil
			}
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
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

func (t *GorillaTransport) Pending() bool { return len(t.pending) > 0 }

func (t *GorillaTransport) SetTimeout(d *time.Duration) { t.timeout = d }

func (t *GorillaTransport) applyReadDeadline() {
	t.conn.SetReadDeadline(deadlineFor(t.timeout))
}

func (t *GorillaTransport) applyWriteDeadline() {
	t.conn.SetWriteDeadline(deadlineFor(t.timeout))
}

func deadlineFor(d *time.Duration) time.Time {
	if d == nil {
		return time.Time{}
	}
	if *d == 0 {
		return time.Now()
	}
	return time.Now().Add(*d)
}

func isDeadlineErr(err error) bool {
	type timeouter interface{ Timeout() bool }
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
