package types

import (
	"crypto/rand"
	"math"
	"testing"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeRoles 测试角色握手解码
func TestDecodeRoles(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want ObservedRole
		err  error
	}{
		{"full", []byte{1}, ObservedFull, nil},
		{"light", []byte{2}, ObservedLight, nil},
		{"authority", []byte{4}, ObservedAuthority, nil},
		{"authority wins", []byte{5}, ObservedAuthority, nil},
		{"empty bits", []byte{0}, RoleUnknown, ErrInvalidRoles},
		{"too long", []byte{1, 1}, RoleUnknown, ErrInvalidRoles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeRoles(tt.in)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestReputationChange 测试致命惩罚判定
func TestReputationChange(t *testing.T) {
	assert.True(t, NewFatalReputationChange("bad").IsFatal())
	assert.False(t, NewReputationChange(-100, "slow").IsFatal())
	assert.Equal(t, int32(math.MinInt32), NewFatalReputationChange("x").Value)
	assert.Equal(t, "-100 (slow)", NewReputationChange(-100, "slow").String())
}

// TestSplitP2PAddr 测试拆分带节点标识的地址
func TestSplitP2PAddr(t *testing.T) {
	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	require.NoError(t, err)
	id, err := peer.IDFromPrivateKey(priv)
	require.NoError(t, err)

	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/30333/p2p/" + id.String())
	require.NoError(t, err)

	gotID, transport, err := SplitP2PAddr(addr)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "/ip4/127.0.0.1/tcp/30333", transport.String())

	bare, _ := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/30333")
	_, _, err = SplitP2PAddr(bare)
	assert.ErrorIs(t, err, ErrMissingPeerID)
}
