package types

// ============================================================================
//                              节点角色
// ============================================================================

// Roles 握手中声明的角色位
type Roles uint8

const (
	// RoleFull 全节点
	RoleFull Roles = 1 << 0
	// RoleLight 轻节点
	RoleLight Roles = 1 << 1
	// RoleAuthority 出块节点
	RoleAuthority Roles = 1 << 2
)

// ObservedRole 从远端观察到的角色
type ObservedRole int

const (
	// RoleUnknown 未知
	RoleUnknown ObservedRole = iota
	// ObservedFull 全节点
	ObservedFull
	// ObservedLight 轻节点
	ObservedLight
	// ObservedAuthority 出块节点
	ObservedAuthority
)

// String 返回角色名
func (r ObservedRole) String() string {
	switch r {
	case ObservedFull:
		return "full"
	case ObservedLight:
		return "light"
	case ObservedAuthority:
		return "authority"
	default:
		return "unknown"
	}
}

// IsLight 是否轻节点
func (r ObservedRole) IsLight() bool {
	return r == ObservedLight
}

// DecodeRoles 解码单字节角色握手
//
// 出块节点优先于全节点判定。
func DecodeRoles(handshake []byte) (ObservedRole, error) {
	if len(handshake) != 1 {
		return RoleUnknown, ErrInvalidRoles
	}
	return RolesToObserved(Roles(handshake[0]))
}

// RolesToObserved 将角色位映射为观察角色
func RolesToObserved(r Roles) (ObservedRole, error) {
	switch {
	case r&RoleAuthority != 0:
		return ObservedAuthority, nil
	case r&RoleFull != 0:
		return ObservedFull, nil
	case r&RoleLight != 0:
		return ObservedLight, nil
	default:
		return RoleUnknown, ErrInvalidRoles
	}
}

// Encode 编码为单字节握手
func (r Roles) Encode() []byte {
	return []byte{byte(r)}
}
