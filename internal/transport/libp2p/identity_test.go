package libp2p

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadOrCreateIdentity 测试首次生成、再次加载得到同一身份
func TestLoadOrCreateIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "node.key")

	k1, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	k2, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)

	id1, err := peer.IDFromPrivateKey(k1)
	require.NoError(t, err)
	id2, err := peer.IDFromPrivateKey(k2)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

// TestLoadOrCreateIdentity_Ephemeral 测试空路径生成临时密钥
func TestLoadOrCreateIdentity_Ephemeral(t *testing.T) {
	k1, err := LoadOrCreateIdentity("")
	require.NoError(t, err)
	k2, err := LoadOrCreateIdentity("")
	require.NoError(t, err)
	assert.False(t, k1.Equals(k2))
}

// TestLoadOrCreateIdentity_Invalid 测试损坏的密钥文件
func TestLoadOrCreateIdentity_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	_, err := LoadOrCreateIdentity(path)
	assert.ErrorIs(t, err, ErrInvalidPEM)
}
