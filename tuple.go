package svnwire

// Revision is a repository revision number. InvalidRevision is the
// sentinel an 'r' directive omits on write (when optional) and binds
// on read when the tail runs out before the format does.
type Revision int64

// InvalidRevision is the sentinel value of an absent or not-yet-known
// revision.
const InvalidRevision Revision = -1

// Tuple format strings describe a fixed-shape sequence of items.
// Each character consumes one positional argument:
//
//	n  uint64, encoded as Number
//	r  Revision, encoded as Number; InvalidRevision is omitted
//	   entirely from the output when the directive is optional
//	s  []byte, encoded as String
//	w  string, encoded as Word
//	c  string, encoded as String (the "cstring" convenience used for
//	   things like error messages where the caller already has a Go
//	   string rather than a []byte)
//	b  bool, encoded as the Word "true"/"false"
//	l  *Item (read only); binds the raw sublist item without
//	   interpreting its contents
//	(  []interface{}, a nested sub-tuple: on write the argument is the
//	   nested tuple's own flat argument list; on read it is a slice of
//	   output pointers for the nested format. Must be balanced by a
//	   later ')' in the same format string.
//	)  closes the nested sub-tuple opened by the matching '('
//
// A '?' marks the start of an optional tail: every directive after it,
// including ones inside a nested group it precedes, may be absent
// from the actual list. BuildTuple stops encoding once it runs out of
// supplied arguments and leaves out an optional 'r' argument that is
// the sentinel, still encoding any arguments after it; ParseTuple leaves non-revision output pointers untouched and
// sets *Revision outputs to InvalidRevision when the wire tuple is
// shorter than the format. This optional-tail convention is used
// throughout the protocol so that adding a trailing field to a
// response doesn't break older readers.
//
// A leading or trailing '!' suppresses the automatic outer list
// token that WriteTuple/ReadTuple would otherwise emit or expect,
// for use when the caller is already streaming list tokens of its
// own around the tuple (see write_command's use of a leading '!' to
// avoid wrapping its params tuple a second time). BuildTuple and
// ParseTuple, which always produce or consume a single self-contained
// Item, ignore the bang markers.
type tupleNode struct {
	ch       byte
	optional bool
	group    []tupleNode
}

func compileFormat(format string) (nodes []tupleNode, leadingBang, trailingBang bool) {
	body := format
	if len(body) > 0 && body[0] == '!' {
		leadingBang = true
		body = body[1:]
	}
	if len(body) > 0 && body[len(body)-1] == '!' {
		trailingBang = true
		body = body[:len(body)-1]
	}
	nodes, rest := compileNodes(body, false)
	if rest != "" {
		panic("svnwire: unmatched ')' in tuple format " + format)
	}
	return nodes, leadingBang, trailingBang
}

// compileNodes parses directives up to end-of-string or an unmatched
// ')', which it leaves unconsumed in the returned remainder so the
// caller (itself, recursing for a '(' group) can confirm it closes
// the group it opened.
func compileNodes(format string, optional bool) (nodes []tupleNode, rest string) {
	for len(format) > 0 {
		ch := format[0]
		switch ch {
		case ')':
			return nodes, format
		case '?':
			optional = true
			format = format[1:]
		case '(':
			children, after := compileNodes(format[1:], optional)
			if len(after) == 0 || after[0] != ')' {
				panic("svnwire: unterminated '(' in tuple format")
			}
			nodes = append(nodes, tupleNode{ch: '(', optional: optional, group: children})
			format = after[1:]
		case 'n', 'r', 's', 'c', 'w', 'b', 'l':
			nodes = append(nodes, tupleNode{ch: ch, optional: optional})
			format = format[1:]
		default:
			panic("svnwire: unknown tuple format character " + string(ch))
		}
	}
	return nodes, ""
}

func requiredCount(nodes []tupleNode) int {
	n := 0
	for _, node := range nodes {
		if !node.optional {
			n++
		}
	}
	return n
}

// encodeNodes encodes args against nodes, returning the flat sequence
// of items a wrapping list (or the caller's own list tokens, in the
// '!' case) should contain.
func encodeNodes(nodes []tupleNode, args []interface{}) ([]Item, error) {
	if len(args) < requiredCount(nodes) {
		panic("svnwire: too few arguments for required tuple directives")
	}
	if len(args) > len(nodes) {
		panic("svnwire: too many arguments for tuple format")
	}
	items := make([]Item, 0, len(args))
	for i, node := range nodes {
		if i >= len(args) {
			break
		}
		if node.ch == '(' {
			nested, ok := args[i].([]interface{})
			if !ok {
				return nil, wrapError(nil, KindMalformedData, 0, "", 0, "nested tuple directive wants []interface{}, got %T", args[i])
			}
			subItems, err := encodeNodes(node.group, nested)
			if err != nil {
				return nil, err
			}
			items = append(items, NewList(subItems...))
			continue
		}
		it, omit, err := encodeField(node.ch, node.optional, args[i])
		if err != nil {
			return nil, err
		}
		if omit {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func encodeField(ch byte, optional bool, arg interface{}) (it Item, omit bool, err error) {
	switch ch {
	case 'n':
		v, ok := arg.(uint64)
		if !ok {
			return Item{}, false, wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'n' wants uint64, got %T", arg)
		}
		return NewNumber(v), false, nil
	case 'r':
		v, ok := arg.(Revision)
		if !ok {
			return Item{}, false, wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'r' wants Revision, got %T", arg)
		}
		if v == InvalidRevision {
			if optional {
				return Item{}, true, nil
			}
			return Item{}, false, wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'r' is required but revision is invalid")
		}
		return NewNumber(uint64(v)), false, nil
	case 's':
		v, ok := arg.([]byte)
		if !ok {
			return Item{}, false, wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 's' wants []byte, got %T", arg)
		}
		return NewString(v), false, nil
	case 'c':
		v, ok := arg.(string)
		if !ok {
			return Item{}, false, wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'c' wants string, got %T", arg)
		}
		return NewString([]byte(v)), false, nil
	case 'w':
		v, ok := arg.(string)
		if !ok {
			return Item{}, false, wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'w' wants string, got %T", arg)
		}
		return NewWord(v), false, nil
	case 'b':
		v, ok := arg.(bool)
		if !ok {
			return Item{}, false, wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'b' wants bool, got %T", arg)
		}
		return NewBool(v), false, nil
	case 'l':
		return Item{}, false, wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'l' is read-only and cannot be written")
	default:
		return Item{}, false, wrapError(nil, KindMalformedData, 0, "", 0, "unknown tuple format character %q", ch)
	}
}

// BuildTuple encodes args according to format into a single List
// Item. args may be shorter than format, provided the cutoff falls at
// or after the '?' marker; anything required that is missing is a
// programmer error and panics, since format strings are constants at
// call sites. Leading/trailing '!' are ignored: BuildTuple always
// returns one self-contained, wrapped Item.
func BuildTuple(format string, args ...interface{}) (Item, error) {
	nodes, _, _ := compileFormat(format)
	items, err := encodeNodes(nodes, args)
	if err != nil {
		return Item{}, err
	}
	return NewList(items...), nil
}

// decodeNodes decodes items against nodes into out. items may be
// shorter than nodes for an optional tail; any remaining 'r' outputs
// are set to InvalidRevision, and all other remaining outputs are
// left untouched.
func decodeNodes(nodes []tupleNode, items []Item, out []interface{}) error {
	if len(out) != len(nodes) {
		panic("svnwire: tuple format expects " + itoa(len(nodes)) + " outputs, got " + itoa(len(out)))
	}
	if len(items) < requiredCount(nodes) {
		return wrapError(nil, KindMalformedData, 0, "", 0, "tuple has %d elements, format requires %d", len(items), requiredCount(nodes))
	}
	if len(items) > len(nodes) {
		return wrapError(nil, KindMalformedData, 0, "", 0, "tuple has %d elements, format allows at most %d", len(items), len(nodes))
	}
	for i, node := range nodes {
		if i >= len(items) {
			if err := setSentinel(node.ch, out[i]); err != nil {
				return err
			}
			continue
		}
		if node.ch == '(' {
			if items[i].Kind != KindList {
				return wrapError(nil, KindMalformedData, 0, "", 0, "nested tuple field wants a list, got %s", items[i].Kind)
			}
			nestedOut, ok := out[i].([]interface{})
			if !ok {
				return wrapError(nil, KindMalformedData, 0, "", 0, "nested tuple directive wants []interface{} output, got %T", out[i])
			}
			if err := decodeNodes(node.group, items[i].List, nestedOut); err != nil {
				return err
			}
			continue
		}
		if err := decodeField(node.ch, items[i], out[i]); err != nil {
			return err
		}
	}
	return nil
}

func setSentinel(ch byte, out interface{}) error {
	if ch != 'r' {
		return nil
	}
	p, ok := out.(*Revision)
	if !ok {
		return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'r' wants *Revision output, got %T", out)
	}
	*p = InvalidRevision
	return nil
}

func decodeField(ch byte, it Item, out interface{}) error {
	switch ch {
	case 'n':
		if it.Kind != KindNumber {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'n' wants a number, got %s", it.Kind)
		}
		p, ok := out.(*uint64)
		if !ok {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'n' wants *uint64 output, got %T", out)
		}
		*p = it.Number
		return nil
	case 'r':
		if it.Kind != KindNumber {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'r' wants a number, got %s", it.Kind)
		}
		p, ok := out.(*Revision)
		if !ok {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'r' wants *Revision output, got %T", out)
		}
		*p = Revision(it.Number)
		return nil
	case 's':
		if it.Kind != KindString {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 's' wants a string, got %s", it.Kind)
		}
		p, ok := out.(*[]byte)
		if !ok {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 's' wants *[]byte output, got %T", out)
		}
		*p = it.String
		return nil
	case 'c':
		if it.Kind != KindString {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'c' wants a string, got %s", it.Kind)
		}
		p, ok := out.(*string)
		if !ok {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'c' wants *string output, got %T", out)
		}
		*p = it.AsString()
		return nil
	case 'w':
		if it.Kind != KindWord {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'w' wants a word, got %s", it.Kind)
		}
		p, ok := out.(*string)
		if !ok {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'w' wants *string output, got %T", out)
		}
		*p = it.Word
		return nil
	case 'b':
		v, ok := it.Bool()
		if !ok {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'b' wants true/false, got %s", it.Describe())
		}
		p, ok := out.(*bool)
		if !ok {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'b' wants *bool output, got %T", out)
		}
		*p = v
		return nil
	case 'l':
		if it.Kind != KindList {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'l' wants a list, got %s", it.Kind)
		}
		p, ok := out.(*Item)
		if !ok {
			return wrapError(nil, KindMalformedData, 0, "", 0, "tuple field 'l' wants *Item output, got %T", out)
		}
		*p = it
		return nil
	default:
		return wrapError(nil, KindMalformedData, 0, "", 0, "unknown tuple format character %q", ch)
	}
}

// ParseTuple decodes it (which must be a List) into out according to
// format. out entries are pointers: *uint64, *Revision, *[]byte,
// *string (for both 'c' and 'w'), *bool, *Item (for 'l'), or
// []interface{} (for a nested '(' group). Absent optional fields
// leave their pointer untouched except *Revision, which is set to
// InvalidRevision, so callers should zero-initialize other defaults
// before calling ParseTuple.
func ParseTuple(it Item, format string, out ...interface{}) error {
	if it.Kind != KindList {
		return wrapError(nil, KindMalformedData, 0, "", 0, "tuple must be a list, got %s", it.Kind)
	}
	nodes, _, _ := compileFormat(format)
	return decodeNodes(nodes, it.List, out)
}

// WriteTuple encodes args per format and writes them to the
// connection. Unless format begins with '!', it first writes the
// list open token; unless format ends with '!', it writes the list
// close token afterward. A fully bang-wrapped format ("!...!") writes
// just the bare sequence of items, for composing into a list the
// caller is managing itself (see write_command's use of this to
// splice its params tuple directly after the command name, inside a
// single envelope list it already opened).
func (c *Connection) WriteTuple(format string, args ...interface{}) error {
	nodes, leadingBang, trailingBang := compileFormat(format)
	items, err := encodeNodes(nodes, args)
	if err != nil {
		return err
	}
	if !leadingBang {
		if err := c.writeBytes([]byte("( ")); err != nil {
			return err
		}
	}
	for _, it := range items {
		if err := c.WriteItem(it); err != nil {
			return err
		}
	}
	if !trailingBang {
		return c.writeBytes([]byte(") "))
	}
	return nil
}

// ReadTuple decodes out according to format. Unless format begins or
// ends with '!', it reads one List item and decodes its elements;
// a bang-wrapped format instead reads exactly len(nodes) bare items
// directly off the wire, matching the symmetric WriteTuple form and
// relying on the caller to have already consumed the enclosing list's
// open token (optional-tail shortfall is not supported in this form,
// since there is no wrapping list to ask "how many elements arrived").
func (c *Connection) ReadTuple(format string, out ...interface{}) error {
	nodes, leadingBang, trailingBang := compileFormat(format)
	if !leadingBang && !trailingBang {
		it, err := c.ReadItem()
		if err != nil {
			return err
		}
		return ParseTuple(it, format, out...)
	}
	items := make([]Item, len(nodes))
	for i := range nodes {
		it, err := c.ReadItem()
		if err != nil {
			return err
		}
		items[i] = it
	}
	return decodeNodes(nodes, items, out)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
