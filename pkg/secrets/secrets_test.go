package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLookupOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "postgres_password"), []byte("from-file\nsecond line\n"), 0o600))

	env := map[string]string{"POSTGRES_PASSWORD": "from-env", "PCP_PASSWORD": "pcp-env"}
	s := NewStore(dir, "postgres")
	s.getenv = func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	assert.Equal(t, "from-file", s.Lookup("POSTGRES_PASSWORD"), "file wins over env, first line only")
	assert.Equal(t, "pcp-env", s.Lookup("PCP_PASSWORD"))
	assert.Equal(t, "postgres", s.Lookup("REPLICATION_PASSWORD"))
	assert.Equal(t, "postgres", s.Lookup(""))
}

func TestStoreLookupEmptyFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "token"), nil, 0o600))

	s := NewStore(dir, "fallback")
	s.getenv = func(string) (string, bool) { return "env", true }

	assert.Equal(t, "", s.Lookup("TOKEN"))
}

func TestStoreLookupCRLF(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pw"), []byte("secret\r\n"), 0o600))

	assert.Equal(t, "secret", NewStore(dir, "").Lookup("PW"))
}

func TestStatic(t *testing.T) {
	s := Static{"a": "1"}
	assert.Equal(t, "1", s.Lookup("a"))
	assert.Equal(t, "", s.Lookup("b"))
}

func TestStoreFind(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aws_key"), []byte("AKIA\n"), 0o600))

	s := NewStore(dir, "postgres")
	s.getenv = func(string) (string, bool) { return "", false }

	v, ok := s.Find("AWS_KEY")
	assert.True(t, ok)
	assert.Equal(t, "AKIA", v)

	_, ok = s.Find("AWS_SECRET")
	assert.False(t, ok, "Find never falls back to the default")

	_, ok = Static{"a": "1"}.Find("b")
	assert.False(t, ok)
}
