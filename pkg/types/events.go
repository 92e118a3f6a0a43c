package types

import "time"

// ============================================================================
//                              网络事件
// ============================================================================

// Event 事件流上投递的网络事件
type Event interface {
	isEvent()
}

// Record DHT 记录
type Record struct {
	Key   []byte
	Value []byte

	// Publisher 发布者，未知时为空
	Publisher PeerID

	// Expires 过期时间，零值表示未设置
	Expires time.Time
}

// DhtValueFound 查到记录
type DhtValueFound struct {
	Key    []byte
	Record Record
}

// DhtValueNotFound 未查到记录
type DhtValueNotFound struct {
	Key []byte
}

// DhtValuePut 记录已写入
type DhtValuePut struct {
	Key []byte
}

// DhtValuePutFailed 记录写入失败
type DhtValuePutFailed struct {
	Key []byte
}

func (DhtValueFound) isEvent()     {}
func (DhtValueNotFound) isEvent()  {}
func (DhtValuePut) isEvent()       {}
func (DhtValuePutFailed) isEvent() {}

// PeerConnected 节点已连接
type PeerConnected struct {
	Peer PeerID
	Role ObservedRole
}

// PeerDisconnected 节点已断开
type PeerDisconnected struct {
	Peer PeerID
}

func (PeerConnected) isEvent()    {}
func (PeerDisconnected) isEvent() {}

// ============================================================================
//                              连接通知
// ============================================================================

// ConnectionEvent 传输层报告的连接变化
type ConnectionEvent struct {
	Peer      PeerID
	Connected bool

	// Handshake 角色握手内容，断开或握手失败时为空
	Handshake []byte
}
