package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrGenerateKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "persona.key")

	first, created, err := LoadOrGenerateKeyFile(path, KeyTypeEd25519)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := LoadOrGenerateKeyFile(path, KeyTypeEd25519)
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, first.Equals(second))
}

func TestReadKeyFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.key")
	require.NoError(t, os.WriteFile(path, []byte("0OIl-not-base58"), 0o600))

	_, err := ReadKeyFile(path)
	assert.ErrorIs(t, err, ErrInvalidKeyFile)
}

func TestWriteKeyFile_Mode(t *testing.T) {
	priv, _, err := GenerateKeyPair(KeyTypeDilithium3)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "home.key")
	require.NoError(t, WriteKeyFile(path, priv))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := ReadKeyFile(path)
	require.NoError(t, err)
	assert.True(t, priv.Equals(got))
}
