// Command svnserved is a minimal ra_svn-protocol server: it accepts
// TCP connections, negotiates capabilities, runs the CRAM-MD5 auth
// exchange, and dispatches a small demonstration command table. It
// exists to exercise the svnwire package end to end, not to
// reimplement the full Subversion repository-access command set.
package main

import (
	"bytes"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/netutil"
	"golang.org/x/time/rate"

	"github.com/svnwire/svnwire"
	"github.com/svnwire/svnwire/authdb"
	"github.com/svnwire/svnwire/cram"
)

func main() {
	listenAddr := flag.String("listen", ":3690", "TCP address to accept connections on")
	httpAddr := flag.String("http", ":8090", "address to serve /healthz and /stats on")
	passwdFile := flag.String("passwd-file", "", "flat-file CRAM-MD5 credential store; empty disables authenticated access")
	maxConns := flag.Int("max-connections", 256, "maximum concurrent connections")
	hostname := flag.String("hostname", mustHostname(), "hostname embedded in CRAM-MD5 challenges")
	flag.Parse()

	db := authdb.New()
	if *passwdFile != "" {
		var err error
		db, err = authdb.Load(*passwdFile)
		if err != nil {
			log.Fatalf("svnserved: %v", err)
		}
	}

	srv := &server{
		hostname: *hostname,
		cram: &cram.Server{
			Hostname: *hostname,
			Lookup:   db.Lookup,
			Limiter:  rate.NewLimiter(rate.Every(time.Second), 5),
		},
		anonOK: *passwdFile == "",
	}

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatalf("svnserved: listen: %v", err)
	}
	ln = netutil.LimitListener(ln, *maxConns)
	log.Printf("svnserved: listening on %s (max %d connections)", *listenAddr, *maxConns)

	go srv.serveHTTP(*httpAddr)

	for {
		nc, err := ln.Accept()
		if err != nil {
			log.Printf("svnserved: accept: %v", err)
			continue
		}
		go srv.handle(nc)
	}
}

func mustHostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}

type server struct {
	hostname string
	cram     *cram.Server
	anonOK   bool

	activeConns int64
}

func (s *server) serveHTTP(addr string) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"active_connections": atomic.LoadInt64(&s.activeConns),
		})
	})
	if err := r.Run(addr); err != nil {
		log.Printf("svnserved: http server: %v", err)
	}
}

func (s *server) handle(nc net.Conn) {
	atomic.AddInt64(&s.activeConns, 1)
	defer atomic.AddInt64(&s.activeConns, -1)
	defer nc.Close()

	remote := nc.RemoteAddr()
	transport := svnwire.NewSocketTransport(nc)
	conn := svnwire.NewConnection(transport, svnwire.WithReadTimeout(2*time.Minute), svnwire.WithWriteTimeout(30*time.Second))

	if err := conn.SetCapabilities([]string{"edit-pipeline"}); err != nil {
		log.Printf("svnserved: %s: %v", remote, err)
		return
	}

	mechs := []svnwire.Item{svnwire.NewWord("CRAM-MD5")}
	if s.anonOK {
		mechs = append([]svnwire.Item{svnwire.NewWord("ANONYMOUS")}, mechs...)
	}
	greeting := svnwire.NewList(
		svnwire.NewNumber(2),
		svnwire.NewNumber(2),
		svnwire.NewList(mechs...),
		svnwire.NewList(svnwire.NewWord("edit-pipeline")),
	)
	if err := conn.WriteItem(greeting); err != nil {
		log.Printf("svnserved: %s: %v", remote, err)
		return
	}
	if err := conn.Flush(); err != nil {
		log.Printf("svnserved: %s: %v", remote, err)
		return
	}

	choice, err := conn.ReadItem()
	if err != nil {
		log.Printf("svnserved: %s: %v", remote, err)
		return
	}
	if choice.Kind != svnwire.KindList || len(choice.List) == 0 || choice.List[0].Kind != svnwire.KindWord {
		log.Printf("svnserved: %s: malformed auth selection", remote)
		return
	}

	var username string
	switch choice.List[0].Word {
	case "ANONYMOUS":
		if !s.anonOK {
			log.Printf("svnserved: %s: anonymous access disabled", remote)
			return
		}
		username = "anonymous"
	case "CRAM-MD5":
		username, err = s.cram.Authenticate(conn)
		if err != nil {
			log.Printf("svnserved: %s: auth failed: %v", remote, err)
			return
		}
	default:
		log.Printf("svnserved: %s: unsupported auth mechanism %q", remote, choice.List[0].Word)
		return
	}

	log.Printf("svnserved: %s: authenticated as %q", remote, username)

	if err := svnwire.ServeCommands(conn, demoCommands); err != nil {
		log.Printf("svnserved: %s: %v", remote, err)
	}
}

// demoCommands is a small, illustrative command table. A real
// repository-access server would register the full RA command set on
// top of the same ServeCommands loop; that command set is out of
// scope here.
var demoCommands = svnwire.CommandTable{
	{Name: "ping", Handler: func(c *svnwire.Connection, params svnwire.Item, scratch *bytes.Buffer) error {
		return c.WriteSuccess("")
	}},
	{Name: "echo", Handler: func(c *svnwire.Connection, params svnwire.Item, scratch *bytes.Buffer) error {
		var msg string
		if err := svnwire.ParseTuple(params, "c", &msg); err != nil {
			return err
		}
		scratch.WriteString(msg)
		return c.WriteSuccess("c", scratch.String())
	}},
	{Name: "stat", Handler: func(c *svnwire.Connection, params svnwire.Item, scratch *bytes.Buffer) error {
		var path string
		if err := svnwire.ParseTuple(params, "c", &path); err != nil {
			return err
		}
		return svnwire.NewCommandError("path not found: " + path)
	}},
	{Name: "quit", Terminate: true, Handler: func(c *svnwire.Connection, params svnwire.Item, scratch *bytes.Buffer) error {
		return c.WriteSuccess("")
	}},
}
