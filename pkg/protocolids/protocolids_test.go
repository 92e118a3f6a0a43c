package protocolids

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-chainnet/pkg/types"
)

// TestValidateUserProtocol 测试应用协议名校验
func TestValidateUserProtocol(t *testing.T) {
	tests := []struct {
		name types.ProtocolName
		want error
	}{
		{"/dot/sync/2", nil},
		{"/91b171bb/light/2", nil},
		{"", ErrInvalidProtocolFormat},
		{"/", ErrInvalidProtocolFormat},
		{"dot/sync/2", ErrInvalidProtocolFormat},
		{"/dot/sync 2", ErrInvalidProtocolFormat},
		{Roles, ErrReservedProtocol},
		{"/chainnet/anything", ErrReservedProtocol},
		{"/dot/kad", ErrReservedProtocol},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			err := ValidateUserProtocol(tt.name)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// TestProtocolKinds 测试协议分类
func TestProtocolKinds(t *testing.T) {
	assert.True(t, IsSystemProtocol(Roles))
	assert.False(t, IsSystemProtocol("/dot/sync/2"))
	assert.True(t, IsKademliaProtocol("/abcd/rococo/kad"))
	assert.False(t, IsKademliaProtocol("/dot/sync/2"))
}
