// Package secrets resolves credentials by name from mounted secret files,
// falling back to the process environment and then to a configured default.
package secrets

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Resolver looks up a credential by name. It never fails: a missing secret
// resolves to the default.
type Resolver interface {
	Lookup(name string) string
	// Find is Lookup without the default; ok is false when nothing is set.
	Find(name string) (value string, ok bool)
}

// Store is the file/env backed Resolver.
type Store struct {
	dir      string
	fallback string
	getenv   func(string) (string, bool)
}

// NewStore returns a store reading "<dir>/<lowercase name>".
func NewStore(dir, fallback string) *Store {
	return &Store{dir: dir, fallback: fallback, getenv: os.LookupEnv}
}

// Lookup returns the first line of the secret file, the environment value, or
// the fallback, in that order.
func (s *Store) Lookup(name string) string {
	if v, ok := s.Find(name); ok {
		return v
	}
	return s.fallback
}

// Find returns the secret file's first line or the environment value
func (s *Store) Find(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if v, ok := s.readFile(filepath.Join(s.dir, strings.ToLower(name))); ok {
		return v, true
	}
	return s.getenv(name)
}

func (s *Store) readFile(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		// An empty secret file is still an explicit secret.
		return "", sc.Err() == nil
	}
	return strings.TrimRight(sc.Text(), "\r"), true
}

// Static is a fixed map Resolver for tests and one-off tools.
type Static map[string]string

func (s Static) Lookup(name string) string {
	return s[name]
}

func (s Static) Find(name string) (string, bool) {
	v, ok := s[name]
	return v, ok
}
