package types

import "errors"

// ============================================================================
//                              请求结果错误
// ============================================================================

var (
	// ErrNotConnected 远端未连接
	ErrNotConnected = errors.New("not connected")

	// ErrRefused 远端拒绝、超时或负载过大
	ErrRefused = errors.New("request refused")

	// ErrUnknownProtocol 协议未注册
	ErrUnknownProtocol = errors.New("unknown protocol")

	// ErrNetwork 本地协议实例已不可用
	ErrNetwork = errors.New("network error")

	// ErrObsolete 请求已被本地取消
	ErrObsolete = errors.New("request obsolete")
)

// ============================================================================
//                              解码错误
// ============================================================================

var (
	// ErrMissingPeerID 地址缺少 /p2p 组件
	ErrMissingPeerID = errors.New("address has no /p2p component")

	// ErrInvalidRoles 角色握手无效
	ErrInvalidRoles = errors.New("invalid roles handshake")
)
