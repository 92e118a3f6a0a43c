// Package addrutil 提供地址分类工具
package addrutil

import (
	"net"

	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dep2p/go-chainnet/pkg/types"
)

// ============================================================================
//                              IP 类型判断工具
// ============================================================================

// AddrType 地址类别
type AddrType int

const (
	// AddrUnknown 无 IP 部分（如 /dns4）
	AddrUnknown AddrType = iota
	// AddrLoopback 回环地址
	AddrLoopback
	// AddrUnspecified 0.0.0.0 或 ::
	AddrUnspecified
	// AddrPrivate 私网或链路本地
	AddrPrivate
	// AddrPublic 公网单播
	AddrPublic
)

// String 返回类别名
func (t AddrType) String() string {
	switch t {
	case AddrLoopback:
		return "loopback"
	case AddrUnspecified:
		return "unspecified"
	case AddrPrivate:
		return "private"
	case AddrPublic:
		return "public"
	default:
		return "unknown"
	}
}

// Classify 按首个 IP 部分对地址分类
func Classify(addr types.Multiaddr) AddrType {
	if addr == nil {
		return AddrUnknown
	}
	ip, err := manet.ToIP(addr)
	if err != nil {
		return AddrUnknown
	}
	return classifyIP(ip)
}

func classifyIP(ip net.IP) AddrType {
	switch {
	case ip.IsLoopback():
		return AddrLoopback
	case ip.IsUnspecified():
		return AddrUnspecified
	case ip.IsPrivate() || ip.IsLinkLocalUnicast():
		return AddrPrivate
	case ip.IsGlobalUnicast():
		return AddrPublic
	default:
		return AddrUnknown
	}
}

// IsRoutable 地址能否被其他主机拨号
//
// 回环与未指定地址不可路由；无 IP 部分的地址（DNS）视为可路由。
func IsRoutable(addr types.Multiaddr) bool {
	if addr == nil {
		return false
	}
	switch Classify(addr) {
	case AddrLoopback, AddrUnspecified:
		return false
	default:
		return true
	}
}
