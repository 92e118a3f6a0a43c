package interfaces

import "github.com/dep2p/go-chainnet/pkg/types"

// PeerStore 节点信誉存储
//
// 发现模块与请求-响应引擎通过它读取节点数量和角色，并上报信誉调整。
// 实现必须可被多个 goroutine 并发调用。
type PeerStore interface {
	// PeerCount 已知节点数
	PeerCount() int

	// PeerRole 节点角色，未知时返回 false
	PeerRole(peer types.PeerID) (types.ObservedRole, bool)

	// ReportPeer 上报信誉调整
	ReportPeer(peer types.PeerID, change types.ReputationChange)

	// AddKnownPeer 登记新发现的节点
	AddKnownPeer(peer types.PeerID)
}
