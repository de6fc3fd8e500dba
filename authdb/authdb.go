// Package authdb is a minimal flat-file username/secret store for
// CRAM-MD5 authentication, the same role svnserve's passwd file
// plays, restyled as a small Go type so cmd/svnserved and
// cmd/svnwire-passwd can share it.
package authdb

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/svnwire/svnwire/internal/errd"
)

// DB is a concurrency-safe in-memory username/secret table backed by
// a flat file of "username:secret" lines. Lines starting with '#' and
// blank lines are ignored.
type DB struct {
	mu    sync.RWMutex
	users map[string]string
}

// New returns an empty DB.
func New() *DB {
	return &DB{users: make(map[string]string)}
}

// Load reads a DB from path.
func Load(path string) (db *DB, err error) {
	defer errd.Wrap(&err, "authdb: load %s", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	db = New()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.IndexByte(line, ':')
		if i < 0 {
			return nil, fmt.Errorf("malformed line %q", line)
		}
		db.users[line[:i]] = line[i+1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return db, nil
}

// Save writes db to path, overwriting it.
func (db *DB) Save(path string) (err error) {
	defer errd.Wrap(&err, "authdb: save %s", path)

	db.mu.RLock()
	defer db.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for user, secret := range db.users {
		if _, err := fmt.Fprintf(w, "%s:%s\n", user, secret); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Lookup returns the secret for username, if any.
func (db *DB) Lookup(username string) (secret string, ok bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	secret, ok = db.users[username]
	return secret, ok
}

// Set adds or replaces the secret for username.
func (db *DB) Set(username, secret string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[username] = secret
}

// Delete removes username, if present.
func (db *DB) Delete(username string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.users, username)
}

// Users returns the known usernames in sorted order.
func (db *DB) Users() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	users := make([]string, 0, len(db.users))
	for u := range db.users {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}
