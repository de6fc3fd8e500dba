// Command svnwire-passwd manages the flat-file CRAM-MD5 credential
// store that cmd/svnserved reads.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh/terminal"

	"github.com/svnwire/svnwire/authdb"
)

func main() {
	passwdFile := flag.String("passwd-file", "", "path to the flat-file credential store")
	flag.Parse()
	args := flag.Args()

	if *passwdFile == "" || len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: svnwire-passwd -passwd-file FILE <add|delete|list> [username]")
		os.Exit(2)
	}

	db, err := authdb.Load(*passwdFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			db = authdb.New()
		} else {
			fatal(err)
		}
	}

	switch args[0] {
	case "add":
		if len(args) != 2 {
			fatal(errors.New("add requires a username"))
		}
		username := args[1]
		fmt.Print("Password: ")
		pw, err := terminal.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			fatal(err)
		}
		db.Set(username, string(pw))
		if err := db.Save(*passwdFile); err != nil {
			fatal(err)
		}
	case "delete":
		if len(args) != 2 {
			fatal(errors.New("delete requires a username"))
		}
		db.Delete(args[1])
		if err := db.Save(*passwdFile); err != nil {
			fatal(err)
		}
	case "list":
		for _, u := range db.Users() {
			fmt.Println(u)
		}
	default:
		fatal(fmt.Errorf("unknown subcommand %q", args[0]))
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "svnwire-passwd:", err)
	os.Exit(1)
}
