package authdb_test

import (
	"path/filepath"
	"testing"

	"github.com/svnwire/svnwire/authdb"
	"github.com/svnwire/svnwire/internal/test/assert"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwd")

	db := authdb.New()
	db.Set("alice", "secret1")
	db.Set("bob", "secret2")
	assert.Success(t, db.Save(path))

	loaded, err := authdb.Load(path)
	assert.Success(t, err)

	secret, ok := loaded.Lookup("alice")
	assert.Equal(t, "ok", true, ok)
	assert.Equal(t, "secret", "secret1", secret)

	users := loaded.Users()
	assert.Equal(t, "users", []string{"alice", "bob"}, users)
}

func TestDelete(t *testing.T) {
	db := authdb.New()
	db.Set("alice", "secret1")
	db.Delete("alice")
	_, ok := db.Lookup("alice")
	assert.Equal(t, "ok", false, ok)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := authdb.Load(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)
}
