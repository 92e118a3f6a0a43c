package libp2p

import "errors"

var (
	// ErrFrameTooLarge 帧长度超过上限
	ErrFrameTooLarge = errors.New("transport: frame too large")

	// ErrNotStarted 传输层尚未启动
	ErrNotStarted = errors.New("transport: not started")

	// ErrAlreadyStarted 传输层已启动
	ErrAlreadyStarted = errors.New("transport: already started")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("transport: invalid config")
)
