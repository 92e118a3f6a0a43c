package service

import "errors"

var (
	// ErrServiceClosed 后端已停止
	ErrServiceClosed = errors.New("service: backend closed")

	// ErrDiscoveryExhausted 发现模块的基础事件源已终止
	ErrDiscoveryExhausted = errors.New("service: discovery exhausted")

	// ErrProtocolsExhausted 请求-响应协议的事件源已终止
	ErrProtocolsExhausted = errors.New("service: request-response protocols exhausted")

	// ErrInvalidSignature 签名或公钥无效
	ErrInvalidSignature = errors.New("service: invalid signature")
)

var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("service: invalid config")
)
