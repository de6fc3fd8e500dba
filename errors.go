package svnwire

import (
	"fmt"
	"strings"
)

// ErrorKind classifies a protocol-level Error.
type ErrorKind uint8

const (
	// KindMalformedData reports a grammar violation, an overflow, or a
	// size-limit breach. Fatal for the connection.
	KindMalformedData ErrorKind = iota + 1
	// KindConnectionClosed reports a clean EOF or a zero-length read. Fatal.
	KindConnectionClosed
	// KindIO reports an underlying transport failure. Fatal.
	KindIO
	// KindUnknownCommand reports a server-side command table lookup miss.
	// Non-fatal: returned to the peer as a failure envelope.
	KindUnknownCommand
	// KindCommandError is a handler-generated error, distinguished by
	// CommandErrorCode. Non-fatal: returned as a failure envelope with
	// the handler's child error chain.
	KindCommandError
	// KindNotAuthorized reports a CRAM-MD5 terminal failure. Fatal for
	// the auth exchange but not for the underlying transport.
	KindNotAuthorized
	// KindAuthMalformed reports an ill-formed client response during
	// authentication.
	KindAuthMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformedData:
		return "malformed data"
	case KindConnectionClosed:
		return "connection closed"
	case KindIO:
		return "io error"
	case KindUnknownCommand:
		return "unknown command"
	case KindCommandError:
		return "command error"
	case KindNotAuthorized:
		return "not authorized"
	case KindAuthMalformed:
		return "malformed authentication response"
	default:
		return "unknown error kind"
	}
}

// CommandErrorCode is the single reserved code used to
// distinguish handler-produced application errors, which the dispatch
// loop converts into a failure envelope and continues, from transport
// or framing errors, which are fatal.
const CommandErrorCode uint32 = 210001

// UnknownCommandCode is the code attached to the failure envelope the
// server sends when a command name has no entry in the command table.
const UnknownCommandCode uint32 = 210002

// Error is a wire protocol error. Errors form a singly-linked cause
// chain in memory, topmost error first and root cause last via Cause;
// the failure envelope serializes the chain root cause first, and the
// response reader reconstructs the original chain by walking the
// wire list forward and threading each link in as the Cause of the
// one after it.
type Error struct {
	Kind ErrorKind
	// Code is the numeric error code carried on the wire. Errors
	// originated locally carry 0, except those built by
	// NewCommandError (CommandErrorCode) and the unknown-command
	// failure ServeCommands sends (UnknownCommandCode); errors
	// reconstructed from a failure envelope carry the peer's code
	// verbatim.
	Code uint32
	// Message is the human-readable description, or "" if there is
	// none (the empty string is the wire encoding of "no message").
	Message string
	// File and Line identify the call site that created the error when
	// its creator supplies them. Errors originated in this package
	// leave them empty ("" and 0); errors reconstructed from a failure
	// envelope carry the peer's values.
	File  string
	Line  uint64
	Cause *Error
}

func (e *Error) Error() string {
	var b strings.Builder
	for cur := e; cur != nil; cur = cur.Cause {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		if cur.Message != "" {
			b.WriteString(cur.Message)
		} else {
			b.WriteString(cur.Kind.String())
		}
	}
	return b.String()
}

// Unwrap exposes the cause chain to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

// RootCause walks to the end of the cause chain.
func (e *Error) RootCause() *Error {
	cur := e
	for cur.Cause != nil {
		cur = cur.Cause
	}
	return cur
}

// newError builds a leaf Error (no cause) with the given call site.
// Callers in this package pass an empty file and a zero line.
func newError(kind ErrorKind, code uint32, file string, line uint64, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		File:    file,
		Line:    line,
	}
}

// wrapError pushes a new Error onto the front of an existing chain,
// root cause preserved at the tail.
func wrapError(cause *Error, kind ErrorKind, code uint32, file string, line uint64, format string, args ...interface{}) *Error {
	e := newError(kind, code, file, line, format, args...)
	e.Cause = cause
	return e
}

// NewCommandError builds a handler-level application error carrying
// the reserved command-error code. A CommandHandler returns one of
// these to report a failure specific to the command it implements;
// ServeCommands converts it into a failure envelope and keeps
// serving. Any error a handler returns that is not one of these is
// fatal and ends the dispatch loop.
func NewCommandError(message string) *Error {
	return &Error{Kind: KindCommandError, Code: CommandErrorCode, Message: message}
}

// IsKind reports whether err is, or wraps, a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		if pe, ok := err.(*Error); ok {
			if pe.Kind == kind {
				return true
			}
			err = pe.Cause
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
