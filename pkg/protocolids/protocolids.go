package protocolids

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/dep2p/go-chainnet/pkg/types"
)

// SysPrefix 系统协议前缀
const SysPrefix = "/chainnet/"

// kadSuffix Kademlia 协议名后缀
const kadSuffix = "/kad"

// ============================================================================
//                              系统协议
// ============================================================================

// Roles 角色握手协议，连接建立后读取对方的单字节角色
const Roles types.ProtocolName = SysPrefix + "roles/1"

var (
	// ErrInvalidProtocolFormat 协议名格式无效
	ErrInvalidProtocolFormat = errors.New("invalid protocol format")

	// ErrReservedProtocol 协议名占用了保留命名空间
	ErrReservedProtocol = errors.New("protocol uses reserved name")
)

// IsSystemProtocol 是否系统协议
func IsSystemProtocol(name types.ProtocolName) bool {
	return strings.HasPrefix(string(name), SysPrefix)
}

// IsKademliaProtocol 是否 Kademlia 协议名
func IsKademliaProtocol(name types.ProtocolName) bool {
	return strings.HasSuffix(string(name), kadSuffix)
}

// ValidateUserProtocol 校验应用注册的请求-响应协议名
func ValidateUserProtocol(name types.ProtocolName) error {
	s := string(name)
	if len(s) < 2 || s[0] != '/' {
		return fmt.Errorf("%w: %q must start with /", ErrInvalidProtocolFormat, s)
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidProtocolFormat, s)
	}
	if IsSystemProtocol(name) || IsKademliaProtocol(name) {
		return fmt.Errorf("%w: %s", ErrReservedProtocol, s)
	}
	return nil
}
