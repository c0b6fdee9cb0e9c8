package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	t.Run("empty", func(t *testing.T) {
		k, err := ParseKey("  ")
		require.NoError(t, err)
		assert.Nil(t, k)
	})
	t.Run("hex", func(t *testing.T) {
		k, err := ParseKey(hex.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, k)
	})
	t.Run("hex with prefix", func(t *testing.T) {
		k, err := ParseKey("0x" + hex.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, k)
	})
	t.Run("base64", func(t *testing.T) {
		k, err := ParseKey(base64.StdEncoding.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, k)
	})
	t.Run("short hex", func(t *testing.T) {
		_, err := ParseKey("abcd")
		assert.Error(t, err)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := ParseKey(strings.Repeat("!", 10))
		assert.Error(t, err)
	})
}

func TestStore_GetSetAndLoadOrCreate(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SetString("empty", ""))
	v, found, err := s.GetString("empty")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "", v)

	k1, err := s.LoadOrCreateKey("root")
	require.NoError(t, err)
	assert.Len(t, k1, 32)

	k2, err := s.LoadOrCreateKey("root")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	_, _, err = s.Get(" ")
	assert.Error(t, err)
}

func TestStore_KeyPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(OpenOptions{Path: dir})
	require.NoError(t, err)
	k1, err := s.LoadOrCreateKey("root")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(OpenOptions{Path: dir})
	require.NoError(t, err)
	defer s.Close()
	k2, err := s.LoadOrCreateKey("root")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(OpenOptions{})
	assert.Error(t, err)
}
