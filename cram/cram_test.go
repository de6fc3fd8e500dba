package cram_test

import (
	"bufio"
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/svnwire/svnwire"
	"github.com/svnwire/svnwire/cram"
	"github.com/svnwire/svnwire/internal/test/assert"
)

func TestCramSuccess(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	serverConn := svnwire.NewConnection(svnwire.NewSocketTransport(c1))
	clientConn := svnwire.NewConnection(svnwire.NewSocketTransport(c2))

	server := &cram.Server{
		Hostname: "example.com",
		Lookup: func(username string) (string, bool) {
			if username == "alice" {
				return "correct-horse", true
			}
			return "", false
		},
	}
	client := &cram.Client{Username: "alice", Secret: "correct-horse"}

	serverErr := make(chan error, 1)
	go func() {
		_, err := server.Authenticate(serverConn)
		serverErr <- err
	}()

	assert.Success(t, client.Authenticate(clientConn))
	assert.Success(t, <-serverErr)
}

func TestCramWrongPassword(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	serverConn := svnwire.NewConnection(svnwire.NewSocketTransport(c1))
	clientConn := svnwire.NewConnection(svnwire.NewSocketTransport(c2))

	server := &cram.Server{
		Hostname: "example.com",
		Lookup: func(username string) (string, bool) {
			return "correct-horse", true
		},
	}
	client := &cram.Client{Username: "alice", Secret: "wrong-password"}

	serverErr := make(chan error, 1)
	go func() {
		_, err := server.Authenticate(serverConn)
		serverErr <- err
	}()

	err := client.Authenticate(clientConn)
	assert.Error(t, err)
	assert.Error(t, <-serverErr)
}

func TestCramUnknownUser(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	serverConn := svnwire.NewConnection(svnwire.NewSocketTransport(c1))
	clientConn := svnwire.NewConnection(svnwire.NewSocketTransport(c2))

	server := &cram.Server{
		Hostname: "example.com",
		Lookup: func(username string) (string, bool) {
			return "", false
		},
	}
	client := &cram.Client{Username: "mallory", Secret: "whatever"}

	serverErr := make(chan error, 1)
	go func() {
		_, err := server.Authenticate(serverConn)
		serverErr <- err
	}()

	err := client.Authenticate(clientConn)
	assert.Error(t, err)
	if !svnwire.IsKind(err, svnwire.KindNotAuthorized) {
		t.Fatalf("expected KindNotAuthorized, got %v", err)
	}
	assert.Error(t, <-serverErr)
}

// readToken reads one whitespace-delimited wire token: a bare "(" or
// ")", a Word, a Number, or a length-prefixed String (none of which
// contain an embedded space in this test, so splitting on the
// trailing space is exact).
func readToken(r *bufio.Reader) (string, error) {
	tok, err := r.ReadString(' ')
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(tok, " "), nil
}

func expectToken(t *testing.T, r *bufio.Reader, want string) {
	t.Helper()
	got, err := readToken(r)
	assert.Success(t, err)
	assert.Equal(t, "token", want, got)
}

func expectString(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	tok, err := readToken(r)
	assert.Success(t, err)
	i := strings.IndexByte(tok, ':')
	if i < 0 {
		t.Fatalf("expected a length-prefixed string, got %q", tok)
	}
	n, err := strconv.Atoi(tok[:i])
	assert.Success(t, err)
	val := tok[i+1:]
	if len(val) != n {
		t.Fatalf("string length header says %d, got %d raw bytes (%q)", n, len(val), val)
	}
	return val
}

// TestCramWireFormat drives the server side against a raw byte stream
// instead of another Connection, to pin the exact bytes on the wire:
// the challenge envelope is ( step ( c:challenge ) ), the client's
// reply is a single bare String with no enclosing list, and a
// successful exchange ends with ( success ( ) ).
func TestCramWireFormat(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	serverConn := svnwire.NewConnection(svnwire.NewSocketTransport(c1))
	server := &cram.Server{
		Hostname: "example.com",
		Lookup: func(username string) (string, bool) {
			if username == "alice" {
				return "correct-horse", true
			}
			return "", false
		},
	}

	serverErr := make(chan error, 1)
	go func() {
		_, err := server.Authenticate(serverConn)
		serverErr <- err
	}()

	raw := bufio.NewReader(c2)

	expectToken(t, raw, "(")
	expectToken(t, raw, "step")
	expectToken(t, raw, "(")
	challenge := expectString(t, raw)
	expectToken(t, raw, ")")
	expectToken(t, raw, ")")

	h := hmac.New(md5.New, []byte("correct-horse"))
	h.Write([]byte(challenge))
	response := "alice " + hex.EncodeToString(h.Sum(nil))

	_, err := c2.Write([]byte(fmt.Sprintf("%d:%s ", len(response), response)))
	assert.Success(t, err)

	expectToken(t, raw, "(")
	expectToken(t, raw, "success")
	expectToken(t, raw, "(")
	expectToken(t, raw, ")")
	expectToken(t, raw, ")")

	assert.Success(t, <-serverErr)
}
