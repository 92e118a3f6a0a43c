package service

import (
	"slices"
	"sync/atomic"

	"github.com/dep2p/go-chainnet/pkg/types"
)

// peerset 单个协议的保留节点集合
type peerset struct {
	protocol     types.ProtocolName
	reserved     map[types.PeerID]struct{}
	reservedOnly bool
}

func newPeerset(protocol types.ProtocolName) *peerset {
	return &peerset{protocol: protocol, reserved: make(map[types.PeerID]struct{})}
}

// set 替换保留集，返回新增与移除的节点
func (p *peerset) set(peers []types.PeerID) (added, removed []types.PeerID) {
	next := make(map[types.PeerID]struct{}, len(peers))
	for _, id := range peers {
		next[id] = struct{}{}
		if _, ok := p.reserved[id]; !ok {
			added = append(added, id)
		}
	}
	for id := range p.reserved {
		if _, ok := next[id]; !ok {
			removed = append(removed, id)
		}
	}
	p.reserved = next
	return added, removed
}

func (p *peerset) add(peers []types.PeerID) (added []types.PeerID) {
	for _, id := range peers {
		if _, ok := p.reserved[id]; !ok {
			p.reserved[id] = struct{}{}
			added = append(added, id)
		}
	}
	return added
}

func (p *peerset) remove(peers []types.PeerID) (removed []types.PeerID) {
	for _, id := range peers {
		if _, ok := p.reserved[id]; ok {
			delete(p.reserved, id)
			removed = append(removed, id)
		}
	}
	return removed
}

func (p *peerset) isReserved(id types.PeerID) bool {
	_, ok := p.reserved[id]
	return ok
}

func (p *peerset) list() []types.PeerID {
	out := make([]types.PeerID, 0, len(p.reserved))
	for id := range p.reserved {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// ============================================================================
//                              准入快照
// ============================================================================

type admissionState struct {
	reservedOnly bool
	reserved     map[types.PeerID]struct{}
}

// Admission 连接准入快照
//
// 由后端在默认协议的保留集变化时更新，连接拦截器在任意 goroutine 中读取。
type Admission struct {
	state atomic.Pointer[admissionState]
}

// NewAdmission 创建准入快照，初始接受所有节点
func NewAdmission() *Admission {
	a := &Admission{}
	a.state.Store(&admissionState{})
	return a
}

// Allow 是否接受该节点的连接
func (a *Admission) Allow(id types.PeerID) bool {
	st := a.state.Load()
	if !st.reservedOnly {
		return true
	}
	_, ok := st.reserved[id]
	return ok
}

func (a *Admission) update(p *peerset) {
	reserved := make(map[types.PeerID]struct{}, len(p.reserved))
	for id := range p.reserved {
		reserved[id] = struct{}{}
	}
	a.state.Store(&admissionState{reservedOnly: p.reservedOnly, reserved: reserved})
}
