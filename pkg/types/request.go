package types

// IfDisconnected 目标未连接时的行为
type IfDisconnected int

const (
	// TryConnect 尝试建立连接
	TryConnect IfDisconnected = iota
	// ImmediateError 立即失败
	ImmediateError
)

// ShouldConnect 是否允许发起连接
func (d IfDisconnected) ShouldConnect() bool {
	return d == TryConnect
}

// String 返回名称
func (d IfDisconnected) String() string {
	if d == ImmediateError {
		return "immediate-error"
	}
	return "try-connect"
}

// Response 出站请求的应答
type Response struct {
	// Payload 响应负载
	Payload []byte

	// Protocol 实际应答所用的协议（可能是回退协议）
	Protocol ProtocolName
}
