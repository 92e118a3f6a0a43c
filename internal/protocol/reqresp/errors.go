package reqresp

import "errors"

var (
	// ErrInboundQueueFull 应用的入站通道已满，请求被拒绝
	ErrInboundQueueFull = errors.New("reqresp: inbound queue full")

	// ErrDuplicateProtocol 协议重复注册
	ErrDuplicateProtocol = errors.New("reqresp: protocol already registered")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("reqresp: invalid config")

	// ErrAnswerDropped 应用放弃作答
	ErrAnswerDropped = errors.New("reqresp: answer dropped")
)
