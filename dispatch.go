package svnwire

import (
	"bytes"

	"github.com/svnwire/svnwire/internal/scratch"
)

// CommandHandler implements one server-side command. It receives the
// parsed parameter list item (the tuple that followed the command
// word) and a scratch buffer good for this one dispatch iteration
// only, and is responsible for writing its own success response via
// WriteSuccess before returning nil. Returning a *Error built by
// NewCommandError causes ServeCommands to write a failure envelope
// for it and continue serving. Any other error — a different *Error
// kind/code propagated from a nested operation, or a plain Go error —
// is fatal and ends the dispatch loop, since only the reserved
// command-error code distinguishes an application-level failure from
// a transport or framing failure.
type CommandHandler func(c *Connection, params Item, scratch *bytes.Buffer) error

// CommandEntry binds a command name to its handler. Terminate marks a
// command as session-ending: ServeCommands stops the dispatch loop
// after serving it (successfully or not), for commands like a
// protocol-level disconnect that have no further request to answer.
type CommandEntry struct {
	Name      string
	Handler   CommandHandler
	Terminate bool
}

// CommandTable is a server's full set of recognized commands, scanned
// linearly per dispatched command. These tables are small and looked
// up once per round trip, so a map buys nothing a reader can't
// already see from a short slice.
type CommandTable []CommandEntry

func (t CommandTable) lookup(name string) (CommandEntry, bool) {
	for _, e := range t {
		if e.Name == name {
			return e, true
		}
	}
	return CommandEntry{}, false
}

// WriteCommand writes a command envelope: ( name ( args... ) ),
// encoded per format. It does not flush. The name and params are
// encoded as a single nested tuple ("w" followed by a parenthesized
// group for format) so that TupleCodec itself produces the envelope,
// the same delegation write_command performs in the reference
// implementation.
func (c *Connection) WriteCommand(name string, format string, args ...interface{}) error {
	return c.WriteEnvelope(name, format, args...)
}

// WriteEnvelope builds and writes the ( word ( args... ) ) shape
// shared by commands, success/failure responses, and cram's CRAM-MD5
// "step" challenge, by delegating to TupleCodec's nested '(' directive
// for the inner params tuple instead of hand-assembling the envelope
// with NewList.
func (c *Connection) WriteEnvelope(word string, format string, args ...interface{}) error {
	it, err := BuildTuple("w("+format+")", word, args)
	if err != nil {
		return err
	}
	return c.WriteItem(it)
}

// ReadEnvelope reads one ( word ( args... ) ) envelope and decodes its
// inner tuple per format, returning the word that headed it. Callers
// that expect a specific word (cram's "step", say) check it
// themselves; ReadEnvelope doesn't assume one.
func (c *Connection) ReadEnvelope(format string, out ...interface{}) (word string, err error) {
	it, err := c.ReadItem()
	if err != nil {
		return "", err
	}
	if e := validateEnvelope(it); e != nil {
		return "", e
	}
	if err := ParseTuple(it.List[1], format, out...); err != nil {
		return "", err
	}
	return it.List[0].Word, nil
}

// WriteSuccess writes a success response envelope: ( success
// ( results... ) ), encoded per format. It does not flush.
func (c *Connection) WriteSuccess(format string, args ...interface{}) error {
	return c.WriteEnvelope("success", format, args...)
}

// WriteFailure writes a failure response envelope for err, serializing
// its full cause chain. Each link becomes a four-element
// list (code message file line); links are written root cause first,
// so that a reader walking the wire list front-to-back and threading
// each link's Cause to the previously built link reconstructs the
// exact in-memory chain, topmost error last. It does not flush.
func (c *Connection) WriteFailure(err *Error) error {
	chain := chainRootFirst(err)
	items := make([]Item, len(chain))
	for i, e := range chain {
		items[i] = NewList(
			NewNumber(uint64(e.Code)),
			NewString([]byte(e.Message)),
			NewString([]byte(e.File)),
			NewNumber(e.Line),
		)
	}
	return c.WriteItem(NewList(NewWord("failure"), NewList(items...)))
}

func chainRootFirst(err *Error) []*Error {
	var topFirst []*Error
	for cur := err; cur != nil; cur = cur.Cause {
		topFirst = append(topFirst, cur)
	}
	for i, j := 0, len(topFirst)-1; i < j; i, j = i+1, j-1 {
		topFirst[i], topFirst[j] = topFirst[j], topFirst[i]
	}
	return topFirst
}

// ReadCommand reads one command envelope: ( name params ). Servers
// call this in their dispatch loop; ServeCommands is the common case
// and most servers should use it directly instead.
func (c *Connection) ReadCommand() (name string, params Item, err error) {
	it, err := c.ReadItem()
	if err != nil {
		return "", Item{}, err
	}
	if e := validateEnvelope(it); e != nil {
		return "", Item{}, e
	}
	return it.List[0].Word, it.List[1], nil
}

func validateEnvelope(it Item) error {
	if it.Kind != KindList || len(it.List) != 2 || it.List[0].Kind != KindWord {
		return wrapError(nil, KindMalformedData, 0, "", 0, "malformed command or response envelope")
	}
	return nil
}

// ReadResponse reads one response envelope, either ( success
// ( results... ) ) or ( failure ( chain... ) ). On success, ok is
// true and params holds the result tuple. On failure, ok is false and
// failure holds the reconstructed error chain.
func (c *Connection) ReadResponse() (ok bool, params Item, failure *Error, err error) {
	it, rerr := c.ReadItem()
	if rerr != nil {
		return false, Item{}, nil, rerr
	}
	if e := validateEnvelope(it); e != nil {
		return false, Item{}, nil, e
	}
	switch it.List[0].Word {
	case "success":
		return true, it.List[1], nil, nil
	case "failure":
		fe, ferr := parseFailureChain(it.List[1])
		if ferr != nil {
			return false, Item{}, nil, ferr
		}
		return false, Item{}, fe, nil
	default:
		return false, Item{}, nil, wrapError(nil, KindMalformedData, 0, "", 0, "unknown response status %q", it.List[0].Word)
	}
}

func parseFailureChain(chainList Item) (*Error, error) {
	if chainList.Kind != KindList {
		return nil, wrapError(nil, KindMalformedData, 0, "", 0, "failure chain must be a list")
	}
	var cause *Error
	for _, elem := range chainList.List {
		var code uint64
		var msg, file string
		var line uint64
		if err := ParseTuple(elem, "nccn", &code, &msg, &file, &line); err != nil {
			return nil, err
		}
		kind := KindCommandError
		switch uint32(code) {
		case UnknownCommandCode:
			kind = KindUnknownCommand
		}
		cause = &Error{Kind: kind, Code: uint32(code), Message: msg, File: file, Line: line, Cause: cause}
	}
	return cause, nil
}

// writeFailureWord is a convenience for the single-message failure
// ServeCommands itself emits for an unknown command, where no handler
// has built a richer *Error chain.
func (c *Connection) writeFailureWord(code uint32, message string) error {
	return c.WriteFailure(&Error{Kind: KindCommandError, Code: code, Message: message})
}

// ServeCommands runs the server-side command loop: read a command
// envelope, dispatch to the matching handler, write a success or
// failure envelope, flush, repeat. It returns nil when the connection
// closes cleanly. It also returns non-nil, ending the loop, in two
// other cases: a framing or transport failure (always fatal), and a
// handler error that is not a *Error carrying CommandErrorCode, since
// only that reserved code marks an application-level command failure
// rather than a fatal error surfacing from some nested operation. A
// matched entry with Terminate set ends the loop after it is served,
// win or lose.
func ServeCommands(c *Connection, table CommandTable) error {
	for {
		name, params, err := c.ReadCommand()
		if err != nil {
			if IsKind(err, KindConnectionClosed) {
				return nil
			}
			return err
		}
		entry, ok := table.lookup(name)
		if !ok {
			if err := c.writeFailureWord(UnknownCommandCode, "Unknown command '"+name+"'"); err != nil {
				return err
			}
			if err := c.Flush(); err != nil {
				return err
			}
			continue
		}
		buf := scratch.Get()
		herr := entry.Handler(c, params, buf)
		scratch.Put(buf)
		if herr != nil {
			pe, ok := herr.(*Error)
			if !ok || pe.Kind != KindCommandError || pe.Code != CommandErrorCode {
				return herr
			}
			if err := c.WriteFailure(pe); err != nil {
				return err
			}
		}
		if err := c.Flush(); err != nil {
			return err
		}
		if entry.Terminate {
			return nil
		}
	}
}
