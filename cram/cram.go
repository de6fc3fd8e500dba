// Package cram implements the CRAM-MD5 challenge-response
// authentication exchange that ra_svn sessions run before dispatch
// begins. The wire vocabulary is the same tuple/item grammar as
// everything else in the protocol; auth is just an exchange that
// happens before a connection starts serving ordinary commands.
package cram

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/svnwire/svnwire"
	"github.com/svnwire/svnwire/internal/xrand"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// CredentialLookup resolves a username to its shared secret. ok is
// false if the username is unknown.
type CredentialLookup func(username string) (secret string, ok bool)

// Server runs the server side of a CRAM-MD5 exchange.
type Server struct {
	// Hostname is embedded in the challenge string; it has no
	// protocol meaning beyond making replayed challenges from a
	// different host detectable to a careful client.
	Hostname string
	Lookup   CredentialLookup
	// Limiter, if set, bounds the rate of authentication attempts
	// this Server will answer, independent of how many distinct
	// connections present them. A CRAM-MD5 exchange is cheap for an
	// attacker to retry and expensive only in aggregate, so the limit
	// belongs here rather than on any single connection.
	Limiter *rate.Limiter
}

// Authenticate runs one challenge-response exchange over conn. On
// success it returns the authenticated username. On a rejected
// credential it returns ("", err) after having already told the peer
// the exchange failed; on a transport or framing error it returns
// ("", err) without any guarantee the peer was told anything.
func (s *Server) Authenticate(conn *svnwire.Connection) (string, error) {
	if s.Limiter != nil && !s.Limiter.Allow() {
		return "", s.fail(conn, "Too many authentication attempts")
	}

	challenge := s.makeChallenge()
	if err := conn.WriteEnvelope("step", "c", challenge); err != nil {
		return "", err
	}
	if err := conn.Flush(); err != nil {
		return "", err
	}

	it, err := conn.ReadItem()
	if err != nil {
		return "", err
	}
	if it.Kind != svnwire.KindString {
		return "", &svnwire.Error{Kind: svnwire.KindAuthMalformed, Message: "malformed client response in authentication"}
	}
	response := it.AsString()

	username, digestHex, ok := splitResponse(response)
	if !ok {
		return "", s.fail(conn, "Malformed client response in authentication")
	}

	secret, ok := s.Lookup(username)
	if !ok {
		return "", s.fail(conn, "Username not found")
	}

	if !hmac.Equal([]byte(digestHex), []byte(computeDigestHex(secret, challenge))) {
		return "", s.fail(conn, "Password incorrect")
	}

	if err := conn.WriteEnvelope(statusSuccess, ""); err != nil {
		return "", err
	}
	if err := conn.Flush(); err != nil {
		return "", err
	}
	return username, nil
}

func (s *Server) fail(conn *svnwire.Connection, message string) error {
	if err := conn.WriteEnvelope(statusFailure, "c", message); err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return err
	}
	return &svnwire.Error{Kind: svnwire.KindNotAuthorized, Message: message}
}

func (s *Server) makeChallenge() string {
	nonce := hex.EncodeToString(xrand.Bytes(16))
	return fmt.Sprintf("<%s.%d@%s>", nonce, time.Now().UnixNano(), s.Hostname)
}

// splitResponse splits "username hexdigest" on the last space, since
// a username may itself legally contain spaces.
func splitResponse(response string) (username, digestHex string, ok bool) {
	i := strings.LastIndexByte(response, ' ')
	if i < 0 {
		return "", "", false
	}
	return response[:i], response[i+1:], true
}

// computeDigestHex is CRAM-MD5's keyed digest: ordinary HMAC-MD5 of
// the challenge under the shared secret. The reference implementation
// hand-rolls the ipad/opad construction because its C runtime predates
// a shared HMAC helper; crypto/hmac already implements exactly that
// construction, secret-longer-than-blocksize hashing included.
func computeDigestHex(secret, challenge string) string {
	h := hmac.New(md5.New, []byte(secret))
	h.Write([]byte(challenge))
	return hex.EncodeToString(h.Sum(nil))
}

// Client runs the client side of a CRAM-MD5 exchange.
type Client struct {
	Username string
	Secret   string
}

// Authenticate runs one challenge-response exchange over conn as the
// client.
func (c *Client) Authenticate(conn *svnwire.Connection) error {
	var challenge string
	word, err := conn.ReadEnvelope("c", &challenge)
	if err != nil {
		return err
	}
	if word != "step" {
		return &svnwire.Error{Kind: svnwire.KindAuthMalformed, Message: "expected a CRAM-MD5 step challenge, got " + word}
	}

	digestHex := computeDigestHex(c.Secret, challenge)
	response := c.Username + " " + digestHex
	if err := conn.WriteItem(svnwire.NewString([]byte(response))); err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return err
	}

	it, err := conn.ReadItem()
	if err != nil {
		return err
	}
	if it.Kind != svnwire.KindList || len(it.List) == 0 || it.List[0].Kind != svnwire.KindWord {
		return &svnwire.Error{Kind: svnwire.KindAuthMalformed, Message: "malformed authentication result"}
	}
	switch it.List[0].Word {
	case statusSuccess:
		return nil
	case statusFailure:
		msg := "authentication failed"
		if len(it.List) > 1 && it.List[1].Kind == svnwire.KindList && len(it.List[1].List) > 0 {
			msg = it.List[1].List[0].AsString()
		}
		return &svnwire.Error{Kind: svnwire.KindNotAuthorized, Message: msg}
	default:
		return &svnwire.Error{Kind: svnwire.KindAuthMalformed, Message: "unknown authentication status " + it.List[0].Word}
	}
}
