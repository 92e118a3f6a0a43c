package discovery

import "errors"

var (
	// ErrCommandChannelFull Kademlia 命令通道已满
	ErrCommandChannelFull = errors.New("kademlia command channel full")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid discovery config")
)
