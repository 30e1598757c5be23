package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSessionStorage_Persists(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s, err := NewFileSessionStorage(path)
	require.NoError(t, err)

	// Act
	require.NoError(t, s.Set(TokenKey, "jwt"))
	reopened, err := NewFileSessionStorage(path)
	require.NoError(t, err)

	// Assert
	token, err := reopened.Get(TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "jwt", token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileSessionStorage_DeleteAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s, err := NewFileSessionStorage(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(TokenKey, "jwt"))
	require.NoError(t, s.Set("theme", "dark"))

	require.NoError(t, s.Delete(TokenKey))
	require.NoError(t, s.Delete("never-set"))

	_, err = s.Get(TokenKey)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Clear())
	reopened, err := NewFileSessionStorage(path)
	require.NoError(t, err)
	_, err = reopened.Get("theme")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFileSessionStorage_CorruptFileStartsEmpty(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	// Act
	s, err := NewFileSessionStorage(path)

	// Assert
	require.NoError(t, err)
	_, err = s.Get(TokenKey)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.NoError(t, s.Set(TokenKey, "fresh"))
}

func TestMemorySessionStorage(t *testing.T) {
	var s SessionStorage = NewMemorySessionStorage()

	_, err := s.Get(TokenKey)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Set(TokenKey, "jwt"))
	token, err := s.Get(TokenKey)
	require.NoError(t, err)
	assert.Equal(t, "jwt", token)

	require.NoError(t, s.Clear())
	_, err = s.Get(TokenKey)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
