package svnwire_test

import (
	"testing"

	"github.com/svnwire/svnwire"
	"github.com/svnwire/svnwire/internal/test/assert"
)

func TestTupleRoundTrip(t *testing.T) {
	writer, reader := pipeConns(t)

	go func() {
		err := writer.WriteTuple("ncswb", uint64(7), "a-cstring", []byte("payload"), "a-word", true)
		assert.Success(t, err)
		assert.Success(t, writer.Flush())
	}()

	var n uint64
	var cstr string
	var s []byte
	var w string
	var b bool
	err := reader.ReadTuple("ncswb", &n, &cstr, &s, &w, &b)
	assert.Success(t, err)
	assert.Equal(t, "n", uint64(7), n)
	assert.Equal(t, "c", "a-cstring", cstr)
	assert.Equal(t, "s", "payload", string(s))
	assert.Equal(t, "w", "a-word", w)
	assert.Equal(t, "b", true, b)
}

func TestTupleRevision(t *testing.T) {
	writer, reader := pipeConns(t)

	go func() {
		err := writer.WriteTuple("r", svnwire.Revision(42))
		assert.Success(t, err)
		assert.Success(t, writer.Flush())
	}()

	var r svnwire.Revision
	err := reader.ReadTuple("r", &r)
	assert.Success(t, err)
	assert.Equal(t, "r", svnwire.Revision(42), r)
}

func TestTupleOptionalRevisionOmittedOnWrite(t *testing.T) {
	it, err := svnwire.BuildTuple("n?r", uint64(1), svnwire.InvalidRevision)
	assert.Success(t, err)
	assert.Equal(t, "len", 1, len(it.List))

	var n uint64
	r := svnwire.Revision(99)
	err = svnwire.ParseTuple(it, "n?r", &n, &r)
	assert.Success(t, err)
	assert.Equal(t, "n", uint64(1), n)
	assert.Equal(t, "r sentinel", svnwire.InvalidRevision, r)
}

func TestTupleRequiredRevisionInvalidIsError(t *testing.T) {
	_, err := svnwire.BuildTuple("r", svnwire.InvalidRevision)
	assert.Error(t, err)
	if !svnwire.IsKind(err, svnwire.KindMalformedData) {
		t.Fatalf("expected KindMalformedData, got %v", err)
	}
}

func TestTupleListBind(t *testing.T) {
	inner := svnwire.NewList(svnwire.NewNumber(1), svnwire.NewNumber(2), svnwire.NewNumber(3))
	it := svnwire.NewList(svnwire.NewWord("before"), inner)

	var word string
	var bound svnwire.Item
	err := svnwire.ParseTuple(it, "wl", &word, &bound)
	assert.Success(t, err)
	assert.Equal(t, "word", "before", word)
	assert.Equal(t, "bound kind", svnwire.KindList, bound.Kind)
	assert.Equal(t, "bound len", 3, len(bound.List))
}

func TestTupleNestedGroup(t *testing.T) {
	it, err := svnwire.BuildTuple("w(nc)", "outer", []interface{}{uint64(5), "inner-c"})
	assert.Success(t, err)
	assert.Equal(t, "outer len", 2, len(it.List))
	assert.Equal(t, "outer[0] kind", svnwire.KindWord, it.List[0].Kind)
	assert.Equal(t, "outer[1] kind", svnwire.KindList, it.List[1].Kind)
	assert.Equal(t, "inner len", 2, len(it.List[1].List))

	var word string
	var n uint64
	var c string
	err = svnwire.ParseTuple(it, "w(nc)", &word, []interface{}{&n, &c})
	assert.Success(t, err)
	assert.Equal(t, "word", "outer", word)
	assert.Equal(t, "n", uint64(5), n)
	assert.Equal(t, "c", "inner-c", c)
}

func TestTupleBangSuppressesOuterWrap(t *testing.T) {
	writer, reader := pipeConns(t)

	go func() {
		assert.Success(t, writer.WriteItem(svnwire.NewWord("marker")))
		err := writer.WriteTuple("!nc!", uint64(9), "tail")
		assert.Success(t, err)
		assert.Success(t, writer.Flush())
	}()

	marker, err := reader.ReadItem()
	assert.Success(t, err)
	assert.Equal(t, "marker kind", svnwire.KindWord, marker.Kind)

	var n uint64
	var c string
	err = reader.ReadTuple("!nc!", &n, &c)
	assert.Success(t, err)
	assert.Equal(t, "n", uint64(9), n)
	assert.Equal(t, "c", "tail", c)
}

func TestTupleOptionalTail(t *testing.T) {
	writer, reader := pipeConns(t)

	// Format declares four fields but only the first two are
	// required; the writer only supplies those two.
	go func() {
		err := writer.WriteTuple("nw?cb", uint64(3), "present")
		assert.Success(t, err)
		assert.Success(t, writer.Flush())
	}()

	var n uint64
	var w string
	var c string = "untouched"
	var b bool = true
	err := reader.ReadTuple("nw?cb", &n, &w, &c, &b)
	assert.Success(t, err)
	assert.Equal(t, "n", uint64(3), n)
	assert.Equal(t, "w", "present", w)
	assert.Equal(t, "c", "untouched", c)
	assert.Equal(t, "b", true, b)
}

func TestTupleMissingRequiredField(t *testing.T) {
	it := svnwire.NewList(svnwire.NewNumber(1))
	var n, n2 uint64
	err := svnwire.ParseTuple(it, "nn", &n, &n2)
	assert.Error(t, err)
	if !svnwire.IsKind(err, svnwire.KindMalformedData) {
		t.Fatalf("expected KindMalformedData, got %v", err)
	}
}

func TestTupleTypeMismatch(t *testing.T) {
	it := svnwire.NewList(svnwire.NewWord("not-a-number"))
	var n uint64
	err := svnwire.ParseTuple(it, "n", &n)
	assert.Error(t, err)
}
