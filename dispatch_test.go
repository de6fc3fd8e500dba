package svnwire_test

import (
	"bytes"
	"net"
	"testing"

	"github.com/svnwire/svnwire"
	"github.com/svnwire/svnwire/internal/test/assert"
)

func TestCommandRoundTrip(t *testing.T) {
	writer, reader := pipeConns(t)

	go func() {
		assert.Success(t, writer.WriteCommand("echo", "c", "hello"))
		assert.Success(t, writer.Flush())
	}()

	name, params, err := reader.ReadCommand()
	assert.Success(t, err)
	assert.Equal(t, "name", "echo", name)

	var msg string
	assert.Success(t, svnwire.ParseTuple(params, "c", &msg))
	assert.Equal(t, "msg", "hello", msg)
}

func TestFailureChainRoundTrip(t *testing.T) {
	root := &svnwire.Error{Kind: svnwire.KindCommandError, Code: 1, Message: "root cause", File: "a.go", Line: 1}
	mid := &svnwire.Error{Kind: svnwire.KindCommandError, Code: 2, Message: "middle", File: "b.go", Line: 2, Cause: root}
	top := &svnwire.Error{Kind: svnwire.KindCommandError, Code: 3, Message: "top", File: "c.go", Line: 3, Cause: mid}

	writer, reader := pipeConns(t)

	go func() {
		assert.Success(t, writer.WriteFailure(top))
		assert.Success(t, writer.Flush())
	}()

	ok, _, failure, err := reader.ReadResponse()
	assert.Success(t, err)
	if ok {
		t.Fatal("expected a failure response")
	}

	// The reconstructed chain must read top -> middle -> root, same
	// as the original.
	assert.Equal(t, "top message", "top", failure.Message)
	assert.Equal(t, "top code", uint32(3), failure.Code)
	assert.Equal(t, "mid message", "middle", failure.Cause.Message)
	assert.Equal(t, "root message", "root cause", failure.Cause.Cause.Message)
	if failure.Cause.Cause.Cause != nil {
		t.Fatal("expected root cause to terminate the chain")
	}
	assert.Equal(t, "root cause via RootCause()", "root cause", failure.RootCause().Message)
}

func TestServeCommandsUnknownCommand(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	server := svnwire.NewConnection(svnwire.NewSocketTransport(c1))
	client := svnwire.NewConnection(svnwire.NewSocketTransport(c2))

	table := svnwire.CommandTable{
		{Name: "ping", Handler: func(c *svnwire.Connection, params svnwire.Item, scratch *bytes.Buffer) error {
			return c.WriteSuccess("")
		}},
	}

	go func() { _ = svnwire.ServeCommands(server, table) }()

	assert.Success(t, client.WriteCommand("does-not-exist", ""))
	assert.Success(t, client.Flush())

	ok, _, failure, err := client.ReadResponse()
	assert.Success(t, err)
	if ok {
		t.Fatal("expected a failure response for an unknown command")
	}
	assert.Equal(t, "code", svnwire.UnknownCommandCode, failure.Code)

	assert.Success(t, client.WriteCommand("ping", ""))
	assert.Success(t, client.Flush())
	ok, _, _, err = client.ReadResponse()
	assert.Success(t, err)
	if !ok {
		t.Fatal("expected ping to succeed")
	}
}

func TestServeCommandsHandlerError(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	server := svnwire.NewConnection(svnwire.NewSocketTransport(c1))
	client := svnwire.NewConnection(svnwire.NewSocketTransport(c2))

	table := svnwire.CommandTable{
		{Name: "fail", Handler: func(c *svnwire.Connection, params svnwire.Item, scratch *bytes.Buffer) error {
			return svnwire.NewCommandError("deliberate failure")
		}},
	}

	go func() { _ = svnwire.ServeCommands(server, table) }()

	assert.Success(t, client.WriteCommand("fail", ""))
	assert.Success(t, client.Flush())

	ok, _, failure, err := client.ReadResponse()
	assert.Success(t, err)
	if ok {
		t.Fatal("expected a failure response")
	}
	assert.Equal(t, "message", "deliberate failure", failure.Message)

	// The loop must still be alive after a command-error failure.
	assert.Success(t, client.WriteCommand("fail", ""))
	assert.Success(t, client.Flush())
	ok, _, failure, err = client.ReadResponse()
	assert.Success(t, err)
	if ok {
		t.Fatal("expected a second failure response")
	}
	assert.Equal(t, "message", "deliberate failure", failure.Message)
}

func TestServeCommandsNonCommandErrorIsFatal(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	server := svnwire.NewConnection(svnwire.NewSocketTransport(c1))
	client := svnwire.NewConnection(svnwire.NewSocketTransport(c2))

	served := make(chan error, 1)
	table := svnwire.CommandTable{
		{Name: "blow-up", Handler: func(c *svnwire.Connection, params svnwire.Item, scratch *bytes.Buffer) error {
			return &svnwire.Error{Kind: svnwire.KindMalformedData, Message: "nested framing failure"}
		}},
	}

	go func() { served <- svnwire.ServeCommands(server, table) }()

	assert.Success(t, client.WriteCommand("blow-up", ""))
	assert.Success(t, client.Flush())

	err := <-served
	assert.Error(t, err)
	if !svnwire.IsKind(err, svnwire.KindMalformedData) {
		t.Fatalf("expected the handler's error kind to propagate fatally, got %v", err)
	}
}

func TestServeCommandsTerminateEndsLoop(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	server := svnwire.NewConnection(svnwire.NewSocketTransport(c1))
	client := svnwire.NewConnection(svnwire.NewSocketTransport(c2))

	served := make(chan error, 1)
	table := svnwire.CommandTable{
		{Name: "quit", Terminate: true, Handler: func(c *svnwire.Connection, params svnwire.Item, scratch *bytes.Buffer) error {
			return c.WriteSuccess("")
		}},
	}

	go func() { served <- svnwire.ServeCommands(server, table) }()

	assert.Success(t, client.WriteCommand("quit", ""))
	assert.Success(t, client.Flush())

	ok, _, _, err := client.ReadResponse()
	assert.Success(t, err)
	if !ok {
		t.Fatal("expected quit to succeed before the loop exits")
	}

	assert.Success(t, <-served)
}
