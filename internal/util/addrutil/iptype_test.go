package addrutil

import (
	"testing"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClassify 测试地址分类
func TestClassify(t *testing.T) {
	tests := []struct {
		addr     string
		want     AddrType
		routable bool
	}{
		{"/ip4/127.0.0.1/tcp/30333", AddrLoopback, false},
		{"/ip6/::1/tcp/30333", AddrLoopback, false},
		{"/ip4/0.0.0.0/tcp/30333", AddrUnspecified, false},
		{"/ip4/192.168.1.2/tcp/30333", AddrPrivate, true},
		{"/ip4/10.0.0.1/udp/30333/quic-v1", AddrPrivate, true},
		{"/ip6/fe80::1/tcp/1", AddrPrivate, true},
		{"/ip4/203.0.113.7/tcp/30333", AddrPublic, true},
		{"/dns4/boot.example.org/tcp/30333", AddrUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			addr, err := ma.NewMultiaddr(tt.addr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Classify(addr), tt.want.String())
			assert.Equal(t, tt.routable, IsRoutable(addr))
		})
	}

	assert.Equal(t, AddrUnknown, Classify(nil))
	assert.False(t, IsRoutable(nil))
}
